package normalizer

import (
	"github.com/tiger/kobayashi/api/sim"
	"github.com/tiger/kobayashi/internal/engine/reporter"
	"github.com/tiger/kobayashi/internal/schema"
)

type liveReporterReply struct {
	ReporterReply  string           `json:"reporterReply"`
	TTSText        string           `json:"ttsText,omitempty"`
	Tone           sim.ReporterTone `json:"tone"`
	ShouldContinue bool             `json:"shouldContinue"`
}

// ReporterReply accepts a live reporter turn and enforces the turn policy on
// top of it: calls end at the final player turn, continue before the second,
// and carry the closing tone exactly when they end.
func (n *Normalizer) ReporterReply(raw []byte, req sim.ReporterRequest) (resp sim.ReporterResponse, ok bool) {
	defer recoverInto(&ok)

	turns := reporter.PlayerTurns(req.ConversationHistory)
	policy := reporter.Policy(turns)

	var parsed liveReporterReply
	if err := n.validator.Decode(schema.LiveReporterReply, raw, &parsed); err != nil {
		parsed, ok = looseReporterReply(raw, policy)
		if !ok {
			return sim.ReporterResponse{}, false
		}
	}

	shouldContinue := parsed.ShouldContinue
	switch {
	case turns >= reporter.MaxPlayerTurns:
		shouldContinue = false
	case turns < 2:
		shouldContinue = true
	}
	tone := parsed.Tone
	switch {
	case !shouldContinue:
		tone = sim.ReporterClosing
	case tone == sim.ReporterClosing || tone.Validate() != nil:
		tone = policy.Tone
		if tone == sim.ReporterClosing {
			tone = sim.ReporterSkeptical
		}
	}

	reply := truncateRunes(parsed.ReporterReply, sim.MaxDialogueTextLength)
	resp = sim.ReporterResponse{
		ReporterReply:  reply,
		TTSText:        truncateRunes(firstNonEmpty(parsed.TTSText, reply), sim.MaxDialogueTextLength),
		Tone:           tone,
		ShouldContinue: shouldContinue,
		Mode:           sim.ModeLive,
	}
	if err := resp.Validate(); err != nil {
		return sim.ReporterResponse{}, false
	}
	if err := n.validator.ValidateValue(schema.ReporterResponse, resp); err != nil {
		return sim.ReporterResponse{}, false
	}
	return resp, true
}

func looseReporterReply(raw []byte, policy reporter.Decision) (liveReporterReply, bool) {
	data, ok := decodeObject(raw)
	if !ok {
		return liveReporterReply{}, false
	}
	reply := data.str("reporterReply", "reply", "response", "message", "text")
	if reply == "" {
		return liveReporterReply{}, false
	}
	tone := sim.ReporterTone(data.str("tone"))
	if tone.Validate() != nil {
		tone = policy.Tone
	}
	shouldContinue, found := data.boolean("shouldContinue", "continue", "continueCall")
	if !found {
		shouldContinue = policy.ShouldContinue
	}
	return liveReporterReply{
		ReporterReply:  reply,
		TTSText:        data.str("ttsText", "tts", "speech", "spokenText"),
		Tone:           tone,
		ShouldContinue: shouldContinue,
	}, true
}
