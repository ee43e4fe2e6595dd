package episode

import (
	"errors"
	"strconv"
	"unicode/utf16"

	"github.com/tiger/kobayashi/api/sim"
	"github.com/tiger/kobayashi/internal/engine/runstate"
)

// ErrUnknownPack is returned when a pack id has no embedded timeline.
var ErrUnknownPack = errors.New("unknown scenario pack")

// HashSeed folds input into a non-negative seed with a 31-multiplier
// polynomial hash over UTF-16 code units and 32-bit wrap-around.
func HashSeed(input string) int64 {
	var hash int32
	for _, unit := range utf16.Encode([]rune(input)) {
		hash = hash<<5 - hash + int32(unit)
	}
	seed := int64(hash)
	if seed < 0 {
		seed = -seed
	}
	return seed
}

// ResolveSeed returns the explicit seed when present, else the hash of pack|role|org.
func ResolveSeed(pack, role, org string, seed *int64) int64 {
	if seed != nil {
		return *seed
	}
	return HashSeed(pack + "|" + role + "|" + org)
}

// InitialState derives the opening state vector for a seed.
func InitialState(seed int64) sim.RunState {
	return runstate.WithReadiness(sim.RunState{
		PublicSentiment:  runstate.Clamp(42+int(seed%7), 0, 100),
		TrustScore:       runstate.Clamp(45+int(seed%9), 0, 100),
		LegalRisk:        sim.LegalRiskMedium,
		NewsVelocity:     sim.VelocityRising,
		TimeRemainingSec: runstate.RoundLengthSec,
	})
}

// EpisodeID formats the deterministic episode id for a seed.
func EpisodeID(seed int64) string {
	hex := strconv.FormatInt(seed, 16)
	if len(hex) > 8 {
		hex = hex[:8]
	}
	return "ep_" + hex
}

// Generate builds the episode for pack, parameterized by role and org.
// Identical inputs always produce identical episodes.
func Generate(pack, role, org string, seed *int64) (sim.Episode, error) {
	definition, err := lookupPack(pack)
	if err != nil {
		return sim.Episode{}, err
	}
	resolved := ResolveSeed(pack, role, org, seed)
	rendered := definition.render(org)
	return sim.Episode{
		EpisodeID:     EpisodeID(resolved),
		Title:         rendered.title,
		Role:          role,
		Org:           org,
		Objective:     rendered.objective,
		InitialState:  InitialState(resolved),
		Beats:         rendered.beats,
		ScoringRubric: rendered.rubric,
		Constraints:   rendered.constraints,
	}, nil
}

// DueBeats returns the beats whose offsets have elapsed and are not yet applied.
func DueBeats(beats []sim.Beat, elapsedSec int, applied map[string]bool) []sim.Beat {
	due := make([]sim.Beat, 0, len(beats))
	for _, beat := range beats {
		if beat.AtSec > elapsedSec {
			break
		}
		if applied[beat.ID] {
			continue
		}
		due = append(due, beat)
	}
	return due
}

// FirstCall returns the first beat carrying a reporter call.
func FirstCall(beats []sim.Beat) (sim.Beat, bool) {
	for _, beat := range beats {
		if beat.Call != nil {
			return beat, true
		}
	}
	return sim.Beat{}, false
}
