package normalizer

import (
	"github.com/tiger/kobayashi/api/sim"
	"github.com/tiger/kobayashi/internal/engine/aar"
	"github.com/tiger/kobayashi/internal/schema"
)

type liveReport struct {
	AARMarkdown string        `json:"aarMarkdown"`
	Artifacts   sim.Artifacts `json:"artifacts"`
}

// Report accepts a live after-action report. Loose output must carry
// markdown; missing artifacts are filled from the deterministic templates.
func (n *Normalizer) Report(raw []byte, req sim.AfterActionRequest) (resp sim.AfterActionResponse, ok bool) {
	defer recoverInto(&ok)

	var parsed liveReport
	if err := n.validator.Decode(schema.LiveReport, raw, &parsed); err != nil {
		parsed, ok = looseReport(raw, aar.Artifacts(aar.ResolveOrg(req.Org, req.RunLog)))
		if !ok {
			return sim.AfterActionResponse{}, false
		}
	}
	resp = sim.AfterActionResponse{
		RunID:       req.RunID,
		AARMarkdown: parsed.AARMarkdown,
		Artifacts:   parsed.Artifacts,
		Mode:        sim.ModeLive,
	}
	if err := resp.Validate(); err != nil {
		return sim.AfterActionResponse{}, false
	}
	if err := n.validator.ValidateValue(schema.AfterActionResponse, resp); err != nil {
		return sim.AfterActionResponse{}, false
	}
	return resp, true
}

func looseReport(raw []byte, fallback sim.Artifacts) (liveReport, bool) {
	data, ok := decodeObject(raw)
	if !ok {
		return liveReport{}, false
	}
	markdown := data.str("aarMarkdown", "markdown", "report", "aar", "afterActionReport")
	if markdown == "" {
		return liveReport{}, false
	}
	artifacts := data.child("artifacts", "drafts")
	return liveReport{
		AARMarkdown: markdown,
		Artifacts: sim.Artifacts{
			HoldingStatement: firstNonEmpty(artifacts.str("holding_statement", "holdingStatement", "statement"), fallback.HoldingStatement),
			ReporterEmail:    firstNonEmpty(artifacts.str("reporter_email", "stakeholderEmail", "email"), fallback.ReporterEmail),
			SupportScript:    firstNonEmpty(artifacts.str("support_script", "script"), fallback.SupportScript),
			InternalMemo:     firstNonEmpty(artifacts.str("internal_memo", "memo"), fallback.InternalMemo),
		},
	}, true
}
