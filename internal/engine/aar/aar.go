package aar

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tiger/kobayashi/api/sim"
	"github.com/tiger/kobayashi/internal/engine/runstate"
)

// ErrEmptyLog is returned when a report is requested for a run with no events.
var ErrEmptyLog = errors.New("run log is empty")

// DefaultOrg names the organization when neither the request nor the log carries one.
const DefaultOrg = "SkyWave Air"

// Counts are the per-type event tallies of a run log.
type Counts struct {
	Total       int
	Beats       int
	Actions     int
	Evaluations int
}

// Count tallies run-log events by type.
func Count(log []sim.RunLogEvent) Counts {
	counts := Counts{Total: len(log)}
	for _, event := range log {
		switch event.Type {
		case sim.EventBeat:
			counts.Beats++
		case sim.EventAction:
			counts.Actions++
		case sim.EventEvaluation:
			counts.Evaluations++
		}
	}
	return counts
}

// WentWell selects the positive findings. The result is never empty.
func WentWell(counts Counts, final sim.RunState) []string {
	var points []string
	if counts.Actions >= 3 {
		points = append(points, "Maintained a steady response cadence throughout the crisis window.")
	}
	if final.PublicSentiment >= 50 {
		points = append(points, "Public sentiment held above the critical threshold, indicating effective audience management.")
	}
	if final.TrustScore >= 50 {
		points = append(points, "Trust score remained stable, suggesting consistent and credible messaging.")
	}
	if final.LegalRisk == sim.LegalRiskLow {
		points = append(points, "Legal exposure stayed contained and language discipline was strong.")
	}
	if len(points) == 0 {
		points = append(points, "Engaged with the crisis scenario and submitted responses under time pressure.")
	}
	return points
}

// Missed selects the gaps. The result is never empty.
func Missed(counts Counts, final sim.RunState) []string {
	var points []string
	if counts.Actions < 2 {
		points = append(points, "Response volume was low. In a live crisis, silence is interpreted as avoidance.")
	}
	if final.PublicSentiment < 40 {
		points = append(points, "Public sentiment dropped significantly. Earlier acknowledgment could have slowed the decline.")
	}
	if final.TrustScore < 40 {
		points = append(points, "Trust eroded below recovery threshold. Concrete next-steps and transparency were needed sooner.")
	}
	if final.LegalRisk == sim.LegalRiskHigh {
		points = append(points, "Legal risk escalated to high. Unverified admissions or unclear language may have contributed.")
	}
	if len(points) == 0 {
		points = append(points, "Minor: Initial holding statement could include more specific customer support actions.")
	}
	return points
}

// Runbook is the fixed recommended response sequence.
var Runbook = []string{
	"Publish a factual holding statement within the first 90 seconds of any crisis trigger.",
	"Stand up a support channel script before the second media wave hits.",
	"Escalate legal review in parallel with customer comms updates, not after them.",
	"Align all internal teams on a single source-of-truth cadence (every 20 minutes).",
	"Prepare a reporter response template that acknowledges concern without admitting cause.",
}

// ResolveOrg picks the organization for artifacts: the explicit org, then the
// first "org" string in an event payload, then DefaultOrg.
func ResolveOrg(explicit string, log []sim.RunLogEvent) string {
	if org := strings.TrimSpace(explicit); org != "" {
		return org
	}
	for _, event := range log {
		if org, ok := event.Payload["org"].(string); ok && strings.TrimSpace(org) != "" {
			return strings.TrimSpace(org)
		}
	}
	return DefaultOrg
}

// Markdown renders the graded after-action narrative.
func Markdown(runID string, counts Counts, final sim.RunState) string {
	grade := runstate.GradeFor(final.ReadinessScore)
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("# After-Action Report")
	line("")
	line("**Overall Grade: %s** - %s", grade.Letter, grade.Label)
	line("")
	line("## Timeline Snapshot")
	line("| Metric | Value |")
	line("|--------|-------|")
	line("| Run ID | %s |", runID)
	line("| Total Events | %d |", counts.Total)
	line("| Beats Triggered | %d |", counts.Beats)
	line("| Actions Submitted | %d |", counts.Actions)
	line("| Evaluations | %d |", counts.Evaluations)
	line("")
	line("## Final State")
	line("| Metric | Value |")
	line("|--------|-------|")
	line("| Public Sentiment | %d/100 |", final.PublicSentiment)
	line("| Trust Score | %d/100 |", final.TrustScore)
	line("| Readiness Score | %d/100 |", final.ReadinessScore)
	line("| Legal Risk | %s |", final.LegalRisk)
	line("| News Velocity | %s |", final.NewsVelocity)
	line("")
	line("## What Went Well")
	for _, point := range WentWell(counts, final) {
		line("- %s", point)
	}
	line("")
	line("## What Missed")
	for _, point := range Missed(counts, final) {
		line("- %s", point)
	}
	line("")
	line("## Recommended Runbook")
	for i, step := range Runbook {
		line("%d. %s", i+1, step)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Summarize reduces a run log and final state into the deterministic report.
func Summarize(req sim.AfterActionRequest) (sim.AfterActionResponse, error) {
	if len(req.RunLog) == 0 {
		return sim.AfterActionResponse{}, ErrEmptyLog
	}
	if err := req.FinalState.Validate(); err != nil {
		return sim.AfterActionResponse{}, fmt.Errorf("final state: %w", err)
	}
	return sim.AfterActionResponse{
		RunID:       req.RunID,
		AARMarkdown: Markdown(req.RunID, Count(req.RunLog), req.FinalState),
		Artifacts:   Artifacts(ResolveOrg(req.Org, req.RunLog)),
		Mode:        sim.ModeMock,
	}, nil
}
