package normalizer

import (
	"github.com/tiger/kobayashi/api/sim"
	"github.com/tiger/kobayashi/internal/engine/runstate"
	"github.com/tiger/kobayashi/internal/engine/scorer"
	"github.com/tiger/kobayashi/internal/schema"
)

const (
	maxAxis     = 5.0
	missingAxis = 2.5
	maxNoteLen  = 600
)

// Axes are the six 0..5 rubric ratings a live evaluator returns.
type Axes struct {
	Acknowledgment float64 `json:"acknowledgment"`
	Clarity        float64 `json:"clarity"`
	Actionability  float64 `json:"actionability"`
	Escalation     float64 `json:"escalation"`
	LegalSafety    float64 `json:"legalSafety"`
	Empathy        float64 `json:"empathy"`
}

type liveEvaluation struct {
	Axes                Axes             `json:"axes"`
	CoachingNote        string           `json:"coachingNote"`
	SuggestedNextAction string           `json:"suggestedNextAction,omitempty"`
	LegalRisk           sim.LegalRisk    `json:"legalRisk,omitempty"`
	NewsVelocity        sim.NewsVelocity `json:"newsVelocity,omitempty"`
}

var axisAliases = []struct {
	names []string
	set   func(*Axes, float64)
}{
	{[]string{"acknowledgment", "acknowledgement", "ack"}, func(a *Axes, v float64) { a.Acknowledgment = v }},
	{[]string{"clarity", "clear"}, func(a *Axes, v float64) { a.Clarity = v }},
	{[]string{"actionability", "actionable", "action"}, func(a *Axes, v float64) { a.Actionability = v }},
	{[]string{"escalation", "escalate"}, func(a *Axes, v float64) { a.Escalation = v }},
	{[]string{"legalSafety", "legal"}, func(a *Axes, v float64) { a.LegalSafety = v }},
	{[]string{"empathy", "empathetic"}, func(a *Axes, v float64) { a.Empathy = v }},
}

// Evaluation converts live rubric axes into a bounded evaluation for req.
func (n *Normalizer) Evaluation(raw []byte, req sim.EvaluateRequest) (resp sim.EvaluateResponse, ok bool) {
	defer recoverInto(&ok)

	parsed, ok := n.strictEvaluation(raw)
	if !ok {
		parsed, ok = looseEvaluation(raw, req)
		if !ok {
			return sim.EvaluateResponse{}, false
		}
	}
	resp = ApplyAxes(parsed.Axes, req.RunState)
	resp.CoachingNote = parsed.CoachingNote
	resp.SuggestedNextAction = parsed.SuggestedNextAction
	if parsed.LegalRisk.Validate() == nil || parsed.NewsVelocity.Validate() == nil {
		next := resp.UpdatedState
		if parsed.LegalRisk.Validate() == nil {
			next.LegalRisk = parsed.LegalRisk
		}
		if parsed.NewsVelocity.Validate() == nil {
			next.NewsVelocity = parsed.NewsVelocity
		}
		next = runstate.WithReadiness(next)
		resp.UpdatedState = next
		resp.UpdatedReadiness = next.ReadinessScore
		resp.StateDelta.LegalRisk = next.LegalRisk
		resp.StateDelta.NewsVelocity = next.NewsVelocity
	}
	if err := resp.Validate(); err != nil {
		return sim.EvaluateResponse{}, false
	}
	if err := n.validator.ValidateValue(schema.EvaluateResponse, resp); err != nil {
		return sim.EvaluateResponse{}, false
	}
	return resp, true
}

func (n *Normalizer) strictEvaluation(raw []byte) (liveEvaluation, bool) {
	var parsed liveEvaluation
	if err := n.validator.Decode(schema.LiveEvaluation, raw, &parsed); err != nil {
		return liveEvaluation{}, false
	}
	return parsed, true
}

func looseEvaluation(raw []byte, req sim.EvaluateRequest) (liveEvaluation, bool) {
	data, ok := decodeObject(raw)
	if !ok {
		return liveEvaluation{}, false
	}
	axesData := data.child("axes", "scores", "ratings", "rubric")
	if axesData == nil {
		axesData = data
	}
	axes := Axes{
		Acknowledgment: missingAxis,
		Clarity:        missingAxis,
		Actionability:  missingAxis,
		Escalation:     missingAxis,
		LegalSafety:    missingAxis,
		Empathy:        missingAxis,
	}
	found := 0
	for _, alias := range axisAliases {
		if value, ok := axesData.number(alias.names...); ok {
			alias.set(&axes, clampFloat(value, 0, maxAxis))
			found++
		}
	}
	if found == 0 {
		return liveEvaluation{}, false
	}

	note := data.str("coachingNote", "coaching", "feedback", "note")
	if note == "" {
		skeleton, _, err := scorer.Evaluate(req.Action, req.RunState)
		if err != nil {
			return liveEvaluation{}, false
		}
		note = skeleton.CoachingNote
	}
	return liveEvaluation{
		Axes:                axes,
		CoachingNote:        truncateRunes(note, maxNoteLen),
		SuggestedNextAction: truncateRunes(data.str("suggestedNextAction", "nextAction", "suggestion"), maxNoteLen),
		LegalRisk:           sim.LegalRisk(data.str("legalRisk")),
		NewsVelocity:        sim.NewsVelocity(data.str("newsVelocity")),
	}, true
}

// ApplyAxes maps rubric axes onto state deltas and the superseding state.
// Coaching text is left to the caller.
func ApplyAxes(axes Axes, current sim.RunState) sim.EvaluateResponse {
	legalPenalty := 0
	switch {
	case axes.LegalSafety <= 1:
		legalPenalty = -3
	case axes.LegalSafety <= 2:
		legalPenalty = -1
	}
	sentimentBase := float64(axes.Acknowledgment+axes.Empathy+axes.Actionability+axes.Clarity-10) / 2
	trustBase := float64(axes.Clarity+axes.Actionability+axes.Escalation+axes.LegalSafety-10) / 2
	sentimentDelta := runstate.Clamp(runstate.Round(sentimentBase+float64(legalPenalty)), -10, 10)
	trustDelta := runstate.Clamp(runstate.Round(trustBase+float64(legalPenalty)), -10, 10)

	weighted := float64(axes.Acknowledgment*0.18) +
		float64(axes.Clarity*0.2) +
		float64(axes.Actionability*0.2) +
		float64(axes.Escalation*0.12) +
		float64(axes.LegalSafety*0.2) +
		float64(axes.Empathy*0.1)
	scoreDelta := runstate.Clamp(runstate.Round(float64((weighted-2.5)*3)+float64(legalPenalty)), -10, 10)

	sentiment := runstate.Clamp(current.PublicSentiment+sentimentDelta, 0, 100)
	remaining := current.TimeRemainingSec - runstate.ActionTimeCostSec
	if remaining < 0 {
		remaining = 0
	}
	next := runstate.WithReadiness(sim.RunState{
		PublicSentiment:  sentiment,
		TrustScore:       runstate.Clamp(current.TrustScore+trustDelta, 0, 100),
		LegalRisk:        legalRiskForAxes(sentiment, axes.LegalSafety),
		NewsVelocity:     runstate.VelocityForDelta(sentimentDelta),
		TimeRemainingSec: remaining,
	})
	return sim.EvaluateResponse{
		StateDelta: sim.StateDelta{
			PublicSentiment:  sentimentDelta,
			TrustScore:       trustDelta,
			LegalRisk:        next.LegalRisk,
			NewsVelocity:     next.NewsVelocity,
			TimeRemainingSec: -runstate.ActionTimeCostSec,
		},
		ScoreDelta:       scoreDelta,
		UpdatedState:     next,
		UpdatedReadiness: next.ReadinessScore,
		Mode:             sim.ModeLive,
	}
}

func legalRiskForAxes(sentiment int, legalSafety float64) sim.LegalRisk {
	switch {
	case legalSafety <= 1:
		return sim.LegalRiskHigh
	case legalSafety <= 2 || sentiment < 45:
		return sim.LegalRiskMedium
	default:
		return sim.LegalRiskLow
	}
}
