package aar

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/tiger/kobayashi/api/sim"
	"github.com/tiger/kobayashi/internal/engine/runstate"
)

func event(offset int, eventType sim.EventType, message string, payload map[string]any) sim.RunLogEvent {
	return sim.RunLogEvent{
		TS:      time.Date(2026, 3, 1, 12, 0, offset, 0, time.UTC),
		Type:    eventType,
		Message: message,
		Payload: payload,
	}
}

func strongRun() sim.AfterActionRequest {
	return sim.AfterActionRequest{
		RunID: "run_golden",
		RunLog: []sim.RunLogEvent{
			event(0, sim.EventSystem, "Run started", map[string]any{"org": "Blue Harbor Rail"}),
			event(20, sim.EventBeat, "beat_001 applied", nil),
			event(30, sim.EventAction, "Holding statement sent", nil),
			event(31, sim.EventEvaluation, "Action scored", nil),
			event(90, sim.EventBeat, "beat_002 applied", nil),
			event(100, sim.EventAction, "Support hotline announced", nil),
			event(101, sim.EventEvaluation, "Action scored", nil),
			event(150, sim.EventAction, "Internal memo sent", nil),
			event(151, sim.EventEvaluation, "Action scored", nil),
		},
		FinalState: runstate.WithReadiness(sim.RunState{
			PublicSentiment:  55,
			TrustScore:       52,
			LegalRisk:        sim.LegalRiskLow,
			NewsVelocity:     sim.VelocityFalling,
			TimeRemainingSec: 300,
		}),
	}
}

func worstCase() sim.AfterActionRequest {
	return sim.AfterActionRequest{
		RunID:  "run_worst",
		RunLog: []sim.RunLogEvent{event(0, sim.EventSystem, "Run started", nil)},
		FinalState: runstate.WithReadiness(sim.RunState{
			LegalRisk:    sim.LegalRiskHigh,
			NewsVelocity: sim.VelocityRising,
		}),
	}
}

func TestSummarizeGolden(t *testing.T) {
	t.Parallel()

	cases := map[string]sim.AfterActionRequest{
		"strong_run": strongRun(),
		"worst_case": worstCase(),
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for name, req := range cases {
		resp, err := Summarize(req)
		if err != nil {
			t.Fatalf("%s: unexpected summarize error: %v", name, err)
		}
		g.Assert(t, name, []byte(resp.AARMarkdown))
	}
}

func TestSummarizeGuarantees(t *testing.T) {
	t.Parallel()

	for _, req := range []sim.AfterActionRequest{strongRun(), worstCase()} {
		resp, err := Summarize(req)
		if err != nil {
			t.Fatalf("unexpected summarize error: %v", err)
		}
		if err := resp.Validate(); err != nil {
			t.Fatalf("expected valid report, got %v", err)
		}
		if resp.RunID != req.RunID || resp.Mode != sim.ModeMock {
			t.Fatalf("unexpected envelope %+v", resp)
		}
		counts := Count(req.RunLog)
		if len(WentWell(counts, req.FinalState)) == 0 || len(Missed(counts, req.FinalState)) == 0 {
			t.Fatalf("expected non-empty findings")
		}
		for _, heading := range []string{"# After-Action Report", "**Overall Grade: ", "## Timeline Snapshot", "## Final State", "## What Went Well", "## What Missed", "## Recommended Runbook"} {
			if !strings.Contains(resp.AARMarkdown, heading) {
				t.Fatalf("expected markdown to contain %q", heading)
			}
		}
	}
}

func TestResolveOrg(t *testing.T) {
	t.Parallel()

	run := strongRun()
	if got := ResolveOrg("Northwind Ferries", run.RunLog); got != "Northwind Ferries" {
		t.Fatalf("expected explicit org, got %q", got)
	}
	if got := ResolveOrg("", run.RunLog); got != "Blue Harbor Rail" {
		t.Fatalf("expected payload org, got %q", got)
	}
	if got := ResolveOrg(" ", worstCase().RunLog); got != DefaultOrg {
		t.Fatalf("expected default org, got %q", got)
	}

	resp, err := Summarize(run)
	if err != nil {
		t.Fatalf("unexpected summarize error: %v", err)
	}
	if !strings.HasPrefix(resp.Artifacts.HoldingStatement, "Blue Harbor Rail is actively addressing") {
		t.Fatalf("expected org-parameterized holding statement, got %q", resp.Artifacts.HoldingStatement)
	}
	if strings.Contains(resp.Artifacts.ReporterEmail, "{org}") {
		t.Fatalf("expected all placeholders to be rendered")
	}
}

func TestSummarizeRejectsEmptyLog(t *testing.T) {
	t.Parallel()

	req := strongRun()
	req.RunLog = nil
	if _, err := Summarize(req); !errors.Is(err, ErrEmptyLog) {
		t.Fatalf("expected ErrEmptyLog, got %v", err)
	}
}
