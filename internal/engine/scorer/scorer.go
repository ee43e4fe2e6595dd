package scorer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/tiger/kobayashi/api/sim"
	"github.com/tiger/kobayashi/internal/engine/runstate"
)

// ErrInvalidAction is returned for blank or over-length action text.
var ErrInvalidAction = errors.New("invalid action text")

const maxDelta = 10

// Category is one independent pattern class with its additive adjustments.
type Category struct {
	Name      string
	Pattern   *regexp.Regexp
	Sentiment int
	Trust     int
	Score     int
}

// Categories is the fixed heuristic table, applied in order.
var Categories = []Category{
	{Name: "apology", Pattern: regexp.MustCompile(`sorry|apolog|understand|hear`), Sentiment: 3, Trust: 2, Score: 2},
	{Name: "investigation", Pattern: regexp.MustCompile(`investigat|review|verify|facts`), Sentiment: 1, Trust: 2, Score: 2},
	{Name: "support", Pattern: regexp.MustCompile(`hotline|support|refund|rebook|assist`), Sentiment: 3, Trust: 2, Score: 3},
	{Name: "legal", Pattern: regexp.MustCompile(`legal|counsel|compliance`), Sentiment: 0, Trust: 1, Score: 1},
	{Name: "stonewalling", Pattern: regexp.MustCompile(`no comment|can't comment|cannot comment`), Sentiment: -4, Trust: -3, Score: -4},
	{Name: "fault_admission", Pattern: regexp.MustCompile(`fault|liable|our mistake|we caused`), Sentiment: -2, Trust: -1, Score: -3},
}

const (
	noteAffirming = "Strong move. You balanced empathy and verifiable action while reducing speculation."
	noteWarning   = "Risk is increasing. Acknowledge impact, avoid unverified admissions, and provide concrete support actions."
	noteNeutral   = "Your response was received. Add explicit next steps to improve confidence."

	suggestMemo    = "Draft internal memo aligning legal, support, and media responses."
	suggestHolding = "Send a concise holding statement with customer help channels and review timeline."
)

// Breakdown is the clamped heuristic score of one action.
type Breakdown struct {
	SentimentDelta int
	TrustDelta     int
	ScoreDelta     int
	Matched        []string
}

var apostrophe = strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'")

// Normalize folds case and typographic apostrophes before matching. A Caser
// holds state, so each call gets its own.
func Normalize(action string) string {
	return cases.Fold().String(apostrophe.Replace(action))
}

// Score applies every matching category and clamps the totals to [-10, 10].
func Score(action string) Breakdown {
	normalized := Normalize(action)
	var out Breakdown
	for _, category := range Categories {
		if !category.Pattern.MatchString(normalized) {
			continue
		}
		out.SentimentDelta += category.Sentiment
		out.TrustDelta += category.Trust
		out.ScoreDelta += category.Score
		out.Matched = append(out.Matched, category.Name)
	}
	out.SentimentDelta = runstate.Clamp(out.SentimentDelta, -maxDelta, maxDelta)
	out.TrustDelta = runstate.Clamp(out.TrustDelta, -maxDelta, maxDelta)
	out.ScoreDelta = runstate.Clamp(out.ScoreDelta, -maxDelta, maxDelta)
	return out
}

// Coaching selects the coaching note and optional next-action suggestion for a score.
func Coaching(scoreDelta int) (note string, suggestion string) {
	switch {
	case scoreDelta >= 4:
		return noteAffirming, suggestMemo
	case scoreDelta <= -3:
		return noteWarning, suggestHolding
	default:
		return noteNeutral, ""
	}
}

// ValidateAction enforces the 1..220 character action contract.
func ValidateAction(action string) error {
	if strings.TrimSpace(action) == "" {
		return fmt.Errorf("%w: action is blank", ErrInvalidAction)
	}
	if n := utf8.RuneCountInString(action); n > sim.MaxActionLength {
		return fmt.Errorf("%w: action has %d characters, limit is %d", ErrInvalidAction, n, sim.MaxActionLength)
	}
	return nil
}

// Evaluate scores action against current and returns the full evaluation
// with the superseding state. current is not modified.
func Evaluate(action string, current sim.RunState) (sim.EvaluateResponse, Breakdown, error) {
	if err := ValidateAction(action); err != nil {
		return sim.EvaluateResponse{}, Breakdown{}, err
	}
	scored := Score(action)
	next := runstate.Advance(current, scored.SentimentDelta, scored.TrustDelta, runstate.ActionTimeCostSec)
	note, suggestion := Coaching(scored.ScoreDelta)
	return sim.EvaluateResponse{
		StateDelta: sim.StateDelta{
			PublicSentiment:  scored.SentimentDelta,
			TrustScore:       scored.TrustDelta,
			LegalRisk:        next.LegalRisk,
			NewsVelocity:     next.NewsVelocity,
			TimeRemainingSec: -runstate.ActionTimeCostSec,
		},
		ScoreDelta:          scored.ScoreDelta,
		CoachingNote:        note,
		SuggestedNextAction: suggestion,
		UpdatedState:        next,
		UpdatedReadiness:    next.ReadinessScore,
		Mode:                sim.ModeMock,
	}, scored, nil
}
