package invocation

import (
	"context"
	"errors"
	"testing"

	"github.com/tiger/kobayashi/internal/provider/contracts"
	"github.com/tiger/kobayashi/internal/provider/registry"
	"github.com/tiger/kobayashi/internal/telemetry"
)

func llmInput(actions ...string) Input {
	return Input{
		RunID:                  "run_01",
		Operation:              "evaluate",
		Modality:               contracts.ModalityLLM,
		AllowedAdaptiveActions: actions,
		Request:                contracts.Request{System: "evaluator", Prompt: "score this"},
	}
}

func TestInvokeRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	attempts := 0
	catalog, err := registry.NewCatalog([]contracts.Adapter{
		contracts.StaticAdapter{
			ID:   "llm-a",
			Mode: contracts.ModalityLLM,
			InvokeFn: func(_ context.Context, req contracts.Request) (contracts.Response, error) {
				attempts++
				if req.Attempt != attempts || req.Prompt != "score this" || req.RunID != "run_01" {
					t.Errorf("unexpected request: %+v", req)
				}
				if attempts == 1 {
					return contracts.Response{Outcome: contracts.Outcome{Class: contracts.OutcomeTimeout, Retryable: true, Reason: "provider_timeout"}}, nil
				}
				return contracts.Response{Outcome: contracts.Outcome{Class: contracts.OutcomeSuccess}, Text: `{"ok":true}`}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected catalog error: %v", err)
	}

	result, err := NewControllerWithConfig(catalog, Config{MaxAttemptsPerProvider: 2}).Invoke(context.Background(), llmInput(contracts.ActionRetry))
	if err != nil {
		t.Fatalf("unexpected invoke error: %v", err)
	}
	if !result.Succeeded() || result.Response.Text != `{"ok":true}` {
		t.Fatalf("expected success with payload, got %+v", result)
	}
	if result.RetryDecision != contracts.ActionRetry || len(result.Attempts) != 2 {
		t.Fatalf("expected one retry, got decision=%s attempts=%d", result.RetryDecision, len(result.Attempts))
	}
}

func TestInvokeSwitchesProviderAfterCircuitOpen(t *testing.T) {
	t.Parallel()

	catalog, err := registry.NewCatalog([]contracts.Adapter{
		contracts.StaticAdapter{
			ID:   "llm-a",
			Mode: contracts.ModalityLLM,
			InvokeFn: func(context.Context, contracts.Request) (contracts.Response, error) {
				return contracts.Response{Outcome: contracts.Outcome{Class: contracts.OutcomeOverload, Retryable: true, CircuitOpen: true, Reason: "provider_overload", BackoffMS: 500}}, nil
			},
		},
		contracts.StaticAdapter{
			ID:   "llm-b",
			Mode: contracts.ModalityLLM,
			InvokeFn: func(context.Context, contracts.Request) (contracts.Response, error) {
				return contracts.Response{Outcome: contracts.Outcome{Class: contracts.OutcomeSuccess}, Text: "b"}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected catalog error: %v", err)
	}

	result, err := NewController(catalog).Invoke(context.Background(), llmInput(DefaultAdaptiveActions...))
	if err != nil {
		t.Fatalf("unexpected invoke error: %v", err)
	}
	if result.SelectedProvider != "llm-b" || result.RetryDecision != contracts.ActionProviderSwitch {
		t.Fatalf("expected switch to llm-b, got %+v", result)
	}
	if len(result.Attempts) != 2 || result.Attempts[0].ProviderID != "llm-a" {
		t.Fatalf("expected circuit-open provider to be tried once, got %+v", result.Attempts)
	}
}

func TestInvokeWithoutAdaptiveActionsStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	calls := 0
	failing := func(context.Context, contracts.Request) (contracts.Response, error) {
		calls++
		return contracts.Response{}, errors.New("boom")
	}
	catalog, err := registry.NewCatalog([]contracts.Adapter{
		contracts.StaticAdapter{ID: "llm-a", Mode: contracts.ModalityLLM, InvokeFn: failing},
		contracts.StaticAdapter{ID: "llm-b", Mode: contracts.ModalityLLM, InvokeFn: failing},
	})
	if err != nil {
		t.Fatalf("unexpected catalog error: %v", err)
	}

	result, err := NewController(catalog).Invoke(context.Background(), llmInput())
	if err != nil {
		t.Fatalf("unexpected invoke error: %v", err)
	}
	if result.Succeeded() || calls != 1 {
		t.Fatalf("expected a single failed attempt, got calls=%d result=%+v", calls, result)
	}
	if result.Outcome.Class != contracts.OutcomeInfrastructureFailure || result.Outcome.Reason != "adapter_invoke_error" {
		t.Fatalf("expected adapter error to map to infrastructure failure, got %+v", result.Outcome)
	}
}

func TestInvokeHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	called := false
	catalog, err := registry.NewCatalog([]contracts.Adapter{
		contracts.StaticAdapter{ID: "llm-a", Mode: contracts.ModalityLLM, InvokeFn: func(context.Context, contracts.Request) (contracts.Response, error) {
			called = true
			return contracts.Response{Outcome: contracts.Outcome{Class: contracts.OutcomeSuccess}}, nil
		}},
	})
	if err != nil {
		t.Fatalf("unexpected catalog error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewController(catalog).Invoke(ctx, llmInput(DefaultAdaptiveActions...))
	if err != nil {
		t.Fatalf("unexpected invoke error: %v", err)
	}
	if called || result.Outcome.Class != contracts.OutcomeCancelled {
		t.Fatalf("expected cancellation before attempt, got called=%v %+v", called, result.Outcome)
	}
}

func TestInvokeRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	catalog, err := registry.NewCatalog(nil)
	if err != nil {
		t.Fatalf("unexpected catalog error: %v", err)
	}
	controller := NewController(catalog)
	if _, err := controller.Invoke(context.Background(), Input{Modality: contracts.ModalityLLM}); err == nil {
		t.Fatalf("expected missing operation error")
	}
	if _, err := controller.Invoke(context.Background(), llmInput("escalate")); err == nil {
		t.Fatalf("expected unsupported action error")
	}
	if _, err := controller.Invoke(context.Background(), llmInput()); err == nil {
		t.Fatalf("expected empty catalog error")
	}
}

func TestInvokeEmitsAttemptTelemetry(t *testing.T) {
	sink := telemetry.NewMemorySink()
	pipeline := telemetry.NewPipeline(sink, telemetry.Config{QueueCapacity: 16})
	telemetry.SetDefaultEmitter(pipeline)
	defer telemetry.SetDefaultEmitter(nil)

	catalog, err := registry.NewCatalog([]contracts.Adapter{contracts.StaticAdapter{ID: "llm-a", Mode: contracts.ModalityLLM}})
	if err != nil {
		t.Fatalf("unexpected catalog error: %v", err)
	}
	if _, err := NewController(catalog).Invoke(context.Background(), llmInput()); err != nil {
		t.Fatalf("unexpected invoke error: %v", err)
	}
	_ = pipeline.Close()

	events := sink.Events()
	if len(events) != 2 {
		t.Fatalf("expected metric and log events, got %d", len(events))
	}
	if events[0].Metric == nil || events[0].Metric.Name != telemetry.MetricProviderLatencyMS || events[0].Correlation.Provider != "llm-a" {
		t.Fatalf("unexpected metric event: %+v", events[0])
	}
	if events[1].Log == nil || events[1].Log.Severity != telemetry.SeverityInfo || events[1].Correlation.Operation != "evaluate" {
		t.Fatalf("unexpected log event: %+v", events[1])
	}
}
