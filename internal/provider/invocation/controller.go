package invocation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tiger/kobayashi/internal/provider/contracts"
	"github.com/tiger/kobayashi/internal/provider/registry"
	"github.com/tiger/kobayashi/internal/telemetry"
)

// DefaultAdaptiveActions lets a failed attempt retry once, then move on to
// the next provider.
var DefaultAdaptiveActions = []string{contracts.ActionRetry, contracts.ActionProviderSwitch}

// Config bounds attempts per invocation.
type Config struct {
	MaxAttemptsPerProvider int
	MaxCandidateProviders  int
}

// Controller runs provider attempts with retry and provider switching.
type Controller struct {
	catalog registry.Catalog
	cfg     Config
}

// Input describes one logical provider call. Request carries the payload;
// the controller fills ProviderID, Modality and Attempt per attempt.
type Input struct {
	RunID                  string
	Operation              string
	Modality               contracts.Modality
	PreferredProvider      string
	AllowedAdaptiveActions []string
	Request                contracts.Request
}

// Attempt records one provider attempt with its normalized outcome.
type Attempt struct {
	ProviderID string
	Attempt    int
	Outcome    contracts.Outcome
	LatencyMS  int64
}

// Result summarizes an invocation. Response is the last attempt's response
// and carries the payload when Outcome is a success.
type Result struct {
	SelectedProvider string
	Outcome          contracts.Outcome
	RetryDecision    string
	Attempts         []Attempt
	Response         contracts.Response
}

// Succeeded reports whether some attempt returned a success outcome.
func (r Result) Succeeded() bool {
	return r.Outcome.Class == contracts.OutcomeSuccess
}

func NewController(catalog registry.Catalog) Controller {
	return NewControllerWithConfig(catalog, Config{})
}

func NewControllerWithConfig(catalog registry.Catalog, cfg Config) Controller {
	if cfg.MaxAttemptsPerProvider < 1 {
		cfg.MaxAttemptsPerProvider = 2
	}
	if cfg.MaxCandidateProviders < 1 {
		cfg.MaxCandidateProviders = 3
	}
	return Controller{catalog: catalog, cfg: cfg}
}

// Catalog exposes the provider catalog backing the controller.
func (c Controller) Catalog() registry.Catalog {
	return c.catalog
}

// Invoke tries candidates in order until one succeeds, the adaptive actions
// are exhausted, or ctx is done.
func (c Controller) Invoke(ctx context.Context, in Input) (Result, error) {
	if in.Operation == "" {
		return Result{}, fmt.Errorf("operation is required")
	}
	if err := in.Modality.Validate(); err != nil {
		return Result{}, err
	}
	actions, err := parseAdaptiveActions(in.AllowedAdaptiveActions)
	if err != nil {
		return Result{}, err
	}
	candidates, err := c.catalog.Candidates(in.Modality, in.PreferredProvider, c.cfg.MaxCandidateProviders)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		RetryDecision: "none",
		Attempts:      make([]Attempt, 0, c.cfg.MaxAttemptsPerProvider*len(candidates)),
	}

	for providerIndex, adapter := range candidates {
		for attempt := 1; attempt <= c.cfg.MaxAttemptsPerProvider; attempt++ {
			if ctx.Err() != nil {
				result.SelectedProvider = adapter.ProviderID()
				result.Outcome = contracts.Cancelled()
				result.Response = contracts.Response{Outcome: result.Outcome}
				emitAttempt(in, adapter.ProviderID(), attempt, result.Outcome, 0)
				return result, nil
			}

			req := in.Request
			req.RunID = in.RunID
			req.Operation = in.Operation
			req.ProviderID = adapter.ProviderID()
			req.Modality = in.Modality
			req.Attempt = attempt

			start := time.Now()
			resp, invokeErr := adapter.Invoke(ctx, req)
			latencyMS := time.Since(start).Milliseconds()
			if invokeErr != nil {
				resp = contracts.Response{Outcome: contracts.Outcome{
					Class:     contracts.OutcomeInfrastructureFailure,
					Retryable: true,
					Reason:    "adapter_invoke_error",
				}}
			}
			if err := resp.Outcome.Validate(); err != nil {
				return Result{}, fmt.Errorf("provider %s returned invalid outcome: %w", adapter.ProviderID(), err)
			}
			emitAttempt(in, adapter.ProviderID(), attempt, resp.Outcome, latencyMS)

			result.Attempts = append(result.Attempts, Attempt{
				ProviderID: adapter.ProviderID(),
				Attempt:    attempt,
				Outcome:    resp.Outcome,
				LatencyMS:  latencyMS,
			})
			result.SelectedProvider = adapter.ProviderID()
			result.Outcome = resp.Outcome
			result.Response = resp

			if resp.Outcome.Class == contracts.OutcomeSuccess {
				return result, nil
			}
			if resp.Outcome.Class == contracts.OutcomeCancelled {
				return result, nil
			}
			if resp.Outcome.Retryable && !resp.Outcome.CircuitOpen && actions.retry && attempt < c.cfg.MaxAttemptsPerProvider {
				result.RetryDecision = contracts.ActionRetry
				continue
			}
			break
		}

		if providerIndex < len(candidates)-1 && (actions.providerSwitch || actions.fallback) {
			if actions.providerSwitch {
				result.RetryDecision = contracts.ActionProviderSwitch
			} else {
				result.RetryDecision = contracts.ActionFallback
			}
			continue
		}
		return result, nil
	}
	return result, nil
}

func emitAttempt(in Input, providerID string, attempt int, outcome contracts.Outcome, latencyMS int64) {
	attributes := map[string]string{
		"provider_id": providerID,
		"modality":    string(in.Modality),
		"attempt":     strconv.Itoa(attempt),
		"outcome":     string(outcome.Class),
		"retryable":   strconv.FormatBool(outcome.Retryable),
	}
	correlation := telemetry.Correlation{RunID: in.RunID, Operation: in.Operation, Provider: providerID}
	emitter := telemetry.DefaultEmitter()
	emitter.EmitMetric(telemetry.MetricProviderLatencyMS, float64(latencyMS), "ms", attributes, correlation)

	severity := telemetry.SeverityInfo
	message := "provider attempt succeeded"
	if outcome.Class != contracts.OutcomeSuccess {
		severity = telemetry.SeverityWarn
		message = "provider attempt failed: " + outcome.Reason
	}
	emitter.EmitLog("provider_invocation_attempt", severity, message, attributes, correlation)
}

type adaptiveActions struct {
	retry          bool
	providerSwitch bool
	fallback       bool
}

func parseAdaptiveActions(actions []string) (adaptiveActions, error) {
	normalized, err := contracts.NormalizeAdaptiveActions(actions)
	if err != nil {
		return adaptiveActions{}, err
	}
	out := adaptiveActions{}
	for _, action := range normalized {
		switch action {
		case contracts.ActionRetry:
			out.retry = true
		case contracts.ActionProviderSwitch:
			out.providerSwitch = true
		case contracts.ActionFallback:
			out.fallback = true
		}
	}
	return out, nil
}
