package scorer

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/tiger/kobayashi/api/sim"
	"github.com/tiger/kobayashi/internal/engine/runstate"
)

func openingState() sim.RunState {
	return runstate.WithReadiness(sim.RunState{
		PublicSentiment:  42,
		TrustScore:       45,
		LegalRisk:        sim.LegalRiskMedium,
		NewsVelocity:     sim.VelocityRising,
		TimeRemainingSec: 480,
	})
}

func TestEvaluateApologyAndSupport(t *testing.T) {
	t.Parallel()

	action := "We are so sorry, a dedicated support hotline is live, and we will share verified updates every 30 minutes."
	resp, breakdown, err := Evaluate(action, openingState())
	if err != nil {
		t.Fatalf("unexpected evaluate error: %v", err)
	}
	if !reflect.DeepEqual(breakdown.Matched, []string{"apology", "support"}) {
		t.Fatalf("expected apology+support categories, got %v", breakdown.Matched)
	}
	if resp.StateDelta.PublicSentiment != 6 || resp.StateDelta.TrustScore != 4 || resp.ScoreDelta != 5 {
		t.Fatalf("unexpected deltas %+v score=%d", resp.StateDelta, resp.ScoreDelta)
	}
	if resp.CoachingNote != noteAffirming || resp.SuggestedNextAction != suggestMemo {
		t.Fatalf("expected affirming coaching with memo suggestion, got %q / %q", resp.CoachingNote, resp.SuggestedNextAction)
	}
	want := sim.RunState{PublicSentiment: 48, TrustScore: 49, LegalRisk: sim.LegalRiskMedium, NewsVelocity: sim.VelocityFalling, TimeRemainingSec: 460, ReadinessScore: 52}
	if resp.UpdatedState != want {
		t.Fatalf("expected updated state %+v, got %+v", want, resp.UpdatedState)
	}
	if resp.UpdatedReadiness != 52 || resp.StateDelta.TimeRemainingSec != -20 || resp.Mode != sim.ModeMock {
		t.Fatalf("unexpected response envelope %+v", resp)
	}
	if err := resp.Validate(); err != nil {
		t.Fatalf("expected valid response, got %v", err)
	}
}

func TestEvaluateStonewalling(t *testing.T) {
	t.Parallel()

	resp, breakdown, err := Evaluate("No comment at this time.", openingState())
	if err != nil {
		t.Fatalf("unexpected evaluate error: %v", err)
	}
	if !reflect.DeepEqual(breakdown.Matched, []string{"stonewalling"}) {
		t.Fatalf("expected stonewalling only, got %v", breakdown.Matched)
	}
	if resp.StateDelta.PublicSentiment != -4 || resp.StateDelta.TrustScore != -3 || resp.ScoreDelta != -4 {
		t.Fatalf("unexpected deltas %+v score=%d", resp.StateDelta, resp.ScoreDelta)
	}
	if resp.CoachingNote != noteWarning || resp.SuggestedNextAction != suggestHolding {
		t.Fatalf("expected warning coaching with holding suggestion, got %q / %q", resp.CoachingNote, resp.SuggestedNextAction)
	}
	want := sim.RunState{PublicSentiment: 38, TrustScore: 42, LegalRisk: sim.LegalRiskMedium, NewsVelocity: sim.VelocityRising, TimeRemainingSec: 460, ReadinessScore: 33}
	if resp.UpdatedState != want {
		t.Fatalf("expected updated state %+v, got %+v", want, resp.UpdatedState)
	}
}

func TestScoreCategories(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		action string
		want   Breakdown
	}{
		{name: "neutral", action: "Flights resume tomorrow.", want: Breakdown{}},
		{name: "case folded", action: "We APOLOGIZE.", want: Breakdown{SentimentDelta: 3, TrustDelta: 2, ScoreDelta: 2, Matched: []string{"apology"}}},
		{name: "typographic apostrophe", action: "We can’t comment.", want: Breakdown{SentimentDelta: -4, TrustDelta: -3, ScoreDelta: -4, Matched: []string{"stonewalling"}}},
		{name: "legal only", action: "Counsel is engaged.", want: Breakdown{TrustDelta: 1, ScoreDelta: 1, Matched: []string{"legal"}}},
		{name: "fault admission", action: "This was our mistake.", want: Breakdown{SentimentDelta: -2, TrustDelta: -1, ScoreDelta: -3, Matched: []string{"fault_admission"}}},
		{
			name:   "multi-pronged",
			action: "Sorry, we will investigate, open a hotline, and brief legal.",
			want:   Breakdown{SentimentDelta: 7, TrustDelta: 7, ScoreDelta: 8, Matched: []string{"apology", "investigation", "support", "legal"}},
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Score(tc.action)
			if got.SentimentDelta != tc.want.SentimentDelta || got.TrustDelta != tc.want.TrustDelta || got.ScoreDelta != tc.want.ScoreDelta {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
			if len(got.Matched) != len(tc.want.Matched) {
				t.Fatalf("expected matched %v, got %v", tc.want.Matched, got.Matched)
			}
			for i := range got.Matched {
				if got.Matched[i] != tc.want.Matched[i] {
					t.Fatalf("expected matched %v, got %v", tc.want.Matched, got.Matched)
				}
			}
		})
	}
}

func TestCoachingThresholds(t *testing.T) {
	t.Parallel()

	cases := map[int]string{10: noteAffirming, 4: noteAffirming, 3: noteNeutral, 0: noteNeutral, -2: noteNeutral, -3: noteWarning, -10: noteWarning}
	for score, want := range cases {
		note, suggestion := Coaching(score)
		if note != want {
			t.Fatalf("score %d: expected %q, got %q", score, want, note)
		}
		if (note == noteNeutral) != (suggestion == "") {
			t.Fatalf("score %d: suggestion %q inconsistent with note", score, suggestion)
		}
	}
}

func TestEvaluateBoundedForAllStates(t *testing.T) {
	t.Parallel()

	actions := []string{
		"No comment. It was our fault and we caused it; we cannot comment.",
		"Sorry. We hear you, we are investigating with counsel, and refunds plus rebooking support are open.",
		"x",
		strings.Repeat("a", sim.MaxActionLength),
	}
	for _, action := range actions {
		for sentiment := 0; sentiment <= 100; sentiment += 25 {
			for trust := 0; trust <= 100; trust += 25 {
				for _, remaining := range []int{0, 10, 480} {
					current := runstate.WithReadiness(sim.RunState{PublicSentiment: sentiment, TrustScore: trust, LegalRisk: sim.LegalRiskHigh, NewsVelocity: sim.VelocitySteady, TimeRemainingSec: remaining})
					resp, _, err := Evaluate(action, current)
					if err != nil {
						t.Fatalf("unexpected evaluate error: %v", err)
					}
					if err := resp.Validate(); err != nil {
						t.Fatalf("expected valid response, got %v", err)
					}
					if err := runstate.CheckConsistent(resp.UpdatedState); err != nil {
						t.Fatalf("expected consistent updated state, got %v", err)
					}
				}
			}
		}
	}
}

func TestEvaluateRejectsInvalidAction(t *testing.T) {
	t.Parallel()

	for _, action := range []string{"", "   ", strings.Repeat("a", sim.MaxActionLength+1)} {
		if _, _, err := Evaluate(action, openingState()); !errors.Is(err, ErrInvalidAction) {
			t.Fatalf("expected ErrInvalidAction for %d-char action, got %v", len(action), err)
		}
	}
}
