package runstate

import (
	"fmt"
	"math"

	"github.com/tiger/kobayashi/api/sim"
)

const (
	// RoundLengthSec is the length of one timed run.
	RoundLengthSec = 8 * 60
	// ActionTimeCostSec is the fixed engine-paced cost of one evaluated action.
	ActionTimeCostSec = 20
)

var legalPenalty = map[sim.LegalRisk]int{
	sim.LegalRiskLow:    0,
	sim.LegalRiskMedium: 8,
	sim.LegalRiskHigh:   18,
}

var velocityPenalty = map[sim.NewsVelocity]int{
	sim.VelocityFalling: 0,
	sim.VelocitySteady:  5,
	sim.VelocityRising:  12,
}

// Clamp bounds value to [min, max].
func Clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Round rounds to the nearest integer with halves rounded up.
func Round(value float64) int {
	return int(math.Floor(value + 0.5))
}

// DeriveReadiness computes the composite readiness score. The stored
// ReadinessScore of state is ignored.
func DeriveReadiness(state sim.RunState) int {
	timeFactor := Round(float64(state.TimeRemainingSec) / float64(RoundLengthSec) * 20)
	sentiment := float64(float64(state.PublicSentiment) * 0.4)
	trust := float64(float64(state.TrustScore) * 0.45)
	base := Round(sentiment+trust+float64(timeFactor)) - legalPenalty[state.LegalRisk] - velocityPenalty[state.NewsVelocity]
	return Clamp(base, 0, 100)
}

// WithReadiness returns a copy of state carrying its derived readiness.
func WithReadiness(state sim.RunState) sim.RunState {
	state.ReadinessScore = DeriveReadiness(state)
	return state
}

// CheckConsistent validates state ranges and that readiness matches the derivation.
func CheckConsistent(state sim.RunState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	if derived := DeriveReadiness(state); derived != state.ReadinessScore {
		return fmt.Errorf("readinessScore %d does not match derived value %d", state.ReadinessScore, derived)
	}
	return nil
}

// LegalRiskForSentiment escalates legal risk as sentiment falls.
func LegalRiskForSentiment(sentiment int) sim.LegalRisk {
	switch {
	case sentiment < 30:
		return sim.LegalRiskHigh
	case sentiment < 55:
		return sim.LegalRiskMedium
	default:
		return sim.LegalRiskLow
	}
}

// VelocityForDelta maps a sentiment delta onto the news-velocity trend.
// An improving delta means attention is falling away.
func VelocityForDelta(sentimentDelta int) sim.NewsVelocity {
	switch {
	case sentimentDelta >= 4:
		return sim.VelocityFalling
	case sentimentDelta <= -4:
		return sim.VelocityRising
	default:
		return sim.VelocitySteady
	}
}

// Grade is a letter grade with its headline label.
type Grade struct {
	Letter string
	Label  string
}

var grades = []struct {
	min   int
	grade Grade
}{
	{70, Grade{Letter: "A", Label: "Strong, decisive action under pressure"}},
	{55, Grade{Letter: "B", Label: "Solid, room to tighten timing and escalation"}},
	{40, Grade{Letter: "C", Label: "Mixed, key windows were missed"}},
	{25, Grade{Letter: "D", Label: "Needs Work, critical gaps in crisis response"}},
}

// GradeFor maps a readiness score onto a grade. Every integer maps to exactly one grade.
func GradeFor(readiness int) Grade {
	for _, step := range grades {
		if readiness >= step.min {
			return step.grade
		}
	}
	return Grade{Letter: "F", Label: "Failing, the crisis outpaced the response"}
}

// Advance returns the state after applying delta sentiment and trust
// adjustments and spending timeCostSec. Legal risk and velocity are derived.
func Advance(current sim.RunState, sentimentDelta, trustDelta, timeCostSec int) sim.RunState {
	sentiment := Clamp(current.PublicSentiment+sentimentDelta, 0, 100)
	next := sim.RunState{
		PublicSentiment:  sentiment,
		TrustScore:       Clamp(current.TrustScore+trustDelta, 0, 100),
		LegalRisk:        LegalRiskForSentiment(sentiment),
		NewsVelocity:     VelocityForDelta(sentimentDelta),
		TimeRemainingSec: current.TimeRemainingSec - timeCostSec,
	}
	if next.TimeRemainingSec < 0 {
		next.TimeRemainingSec = 0
	}
	return WithReadiness(next)
}
