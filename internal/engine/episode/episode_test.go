package episode

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/tiger/kobayashi/api/sim"
	"github.com/tiger/kobayashi/internal/engine/runstate"
)

func TestHashSeedVectors(t *testing.T) {
	t.Parallel()

	cases := map[string]int64{
		"":      0,
		"hello": 99162322,
		"pr_meltdown|Head of Communications|SkyWave Air": 769728811,
	}
	for input, want := range cases {
		if got := HashSeed(input); got != want {
			t.Fatalf("HashSeed(%q): expected %d, got %d", input, want, got)
		}
	}
}

func TestGenerateSeed42(t *testing.T) {
	t.Parallel()

	seed := int64(42)
	ep, err := Generate(sim.PackPRMeltdown, "Head of Communications", "SkyWave Air", &seed)
	if err != nil {
		t.Fatalf("unexpected generate error: %v", err)
	}
	if ep.EpisodeID != "ep_2a" {
		t.Fatalf("expected episode id ep_2a, got %s", ep.EpisodeID)
	}
	state := ep.InitialState
	if state.PublicSentiment != 42 || state.TrustScore != 51 || state.ReadinessScore != 40 {
		t.Fatalf("unexpected initial state %+v", state)
	}
	if state.LegalRisk != sim.LegalRiskMedium || state.NewsVelocity != sim.VelocityRising || state.TimeRemainingSec != runstate.RoundLengthSec {
		t.Fatalf("unexpected initial enums/time %+v", state)
	}
	if err := runstate.CheckConsistent(state); err != nil {
		t.Fatalf("expected consistent initial state, got %v", err)
	}
	if err := ep.Validate(); err != nil {
		t.Fatalf("expected valid episode, got %v", err)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	t.Parallel()

	seed := int64(42)
	first, err := Generate(sim.PackPRMeltdown, "Head of Communications", "SkyWave Air", &seed)
	if err != nil {
		t.Fatalf("unexpected generate error: %v", err)
	}
	second, err := Generate(sim.PackPRMeltdown, "Head of Communications", "SkyWave Air", &seed)
	if err != nil {
		t.Fatalf("unexpected generate error: %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Fatalf("expected byte-identical episodes")
	}

	unseeded, err := Generate(sim.PackPRMeltdown, "Head of Communications", "SkyWave Air", nil)
	if err != nil {
		t.Fatalf("unexpected generate error: %v", err)
	}
	if unseeded.EpisodeID != "ep_2de1212b" {
		t.Fatalf("expected hashed episode id ep_2de1212b, got %s", unseeded.EpisodeID)
	}
	if unseeded.InitialState.PublicSentiment != 47 || unseeded.InitialState.TrustScore != 49 {
		t.Fatalf("unexpected hashed initial state %+v", unseeded.InitialState)
	}
}

func TestGenerateTimeline(t *testing.T) {
	t.Parallel()

	ep, err := Generate(sim.PackPRMeltdown, "Comms Lead", "Blue Harbor Rail", nil)
	if err != nil {
		t.Fatalf("unexpected generate error: %v", err)
	}
	wantOffsets := []int{20, 90, 180, 300, 400}
	if len(ep.Beats) != len(wantOffsets) {
		t.Fatalf("expected %d beats, got %d", len(wantOffsets), len(ep.Beats))
	}
	for i, beat := range ep.Beats {
		if beat.AtSec != wantOffsets[i] {
			t.Fatalf("beat %d: expected atSec %d, got %d", i, wantOffsets[i], beat.AtSec)
		}
	}
	callBeat, ok := FirstCall(ep.Beats)
	if !ok || callBeat.ID != "beat_002" {
		t.Fatalf("expected beat_002 to carry the reporter call, got %+v", callBeat)
	}
	if !strings.HasPrefix(ep.Beats[0].FeedItems[0].Text, "Blue Harbor Rail flight") {
		t.Fatalf("expected org-parameterized feed text, got %q", ep.Beats[0].FeedItems[0].Text)
	}
	if !strings.HasPrefix(ep.Beats[3].FeedItems[1].Text, "#BoycottBlueHarborRail ") {
		t.Fatalf("expected org hashtag, got %q", ep.Beats[3].FeedItems[1].Text)
	}
	if ep.ScoringRubric.Acknowledgment != 0.2 || ep.ScoringRubric.Empathy != 0.1 {
		t.Fatalf("unexpected rubric %+v", ep.ScoringRubric)
	}
	if len(ep.Constraints) != 2 {
		t.Fatalf("expected two constraints, got %d", len(ep.Constraints))
	}
}

func TestGenerateUnknownPack(t *testing.T) {
	t.Parallel()

	if _, err := Generate("data_breach", "role", "org", nil); !errors.Is(err, ErrUnknownPack) {
		t.Fatalf("expected ErrUnknownPack, got %v", err)
	}
	ids, err := Packs()
	if err != nil {
		t.Fatalf("unexpected packs error: %v", err)
	}
	if len(ids) != 1 || ids[0] != sim.PackPRMeltdown {
		t.Fatalf("expected only the reference pack, got %v", ids)
	}
}

func TestParsePackRejectsInvalidTimelines(t *testing.T) {
	t.Parallel()

	base := func(beats string) []byte {
		return []byte("id: test\ntitle: Test\nobjective: Test objective\nrubric: {acknowledgment: 0.2}\nbeats:\n" + beats)
	}
	call := "    call: {persona: P, transcript: T, tts_text: S}\n"
	cases := []struct {
		name string
		raw  []byte
	}{
		{
			name: "too few beats",
			raw:  base("  - {id: b1, at_sec: 10}\n  - id: b2\n    at_sec: 20\n" + call),
		},
		{
			name: "non increasing offsets",
			raw:  base("  - {id: b1, at_sec: 10}\n  - id: b2\n    at_sec: 10\n" + call + "  - {id: b3, at_sec: 30}\n"),
		},
		{
			name: "missing call",
			raw:  base("  - {id: b1, at_sec: 10}\n  - {id: b2, at_sec: 20}\n  - {id: b3, at_sec: 30}\n"),
		},
		{
			name: "unknown field",
			raw:  []byte("id: test\nsurprise: true\n"),
		},
		{
			name: "invalid tone",
			raw:  base("  - id: b1\n    at_sec: 10\n    feed: [{id: f, source: s, text: t, tone: furious}]\n  - id: b2\n    at_sec: 20\n" + call + "  - {id: b3, at_sec: 30}\n"),
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParsePack(tc.raw); err == nil {
				t.Fatalf("expected pack to be rejected")
			}
		})
	}

	valid := base("  - {id: b1, at_sec: 10}\n  - id: b2\n    at_sec: 20\n" + call + "  - {id: b3, at_sec: 30}\n")
	if _, err := ParsePack(valid); err != nil {
		t.Fatalf("expected minimal pack to parse, got %v", err)
	}
}

func TestDueBeats(t *testing.T) {
	t.Parallel()

	ep, err := Generate(sim.PackPRMeltdown, "Comms Lead", "SkyWave Air", nil)
	if err != nil {
		t.Fatalf("unexpected generate error: %v", err)
	}
	if due := DueBeats(ep.Beats, 19, nil); len(due) != 0 {
		t.Fatalf("expected no beats due before 20s, got %d", len(due))
	}
	due := DueBeats(ep.Beats, 180, map[string]bool{"beat_001": true})
	if len(due) != 2 || due[0].ID != "beat_002" || due[1].ID != "beat_003" {
		t.Fatalf("unexpected due beats %+v", due)
	}
}
