package contracts

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Modality defines the provider families the simulator invokes.
type Modality string

const (
	ModalityLLM Modality = "llm"
	ModalityTTS Modality = "tts"
)

// Modalities lists every supported modality in catalog order.
var Modalities = []Modality{ModalityLLM, ModalityTTS}

func (m Modality) Validate() error {
	switch m {
	case ModalityLLM, ModalityTTS:
		return nil
	default:
		return fmt.Errorf("unsupported modality: %q", m)
	}
}

// OutcomeClass is the normalized invocation-outcome taxonomy.
type OutcomeClass string

const (
	OutcomeSuccess               OutcomeClass = "success"
	OutcomeTimeout               OutcomeClass = "timeout"
	OutcomeOverload              OutcomeClass = "overload"
	OutcomeBlocked               OutcomeClass = "blocked"
	OutcomeInfrastructureFailure OutcomeClass = "infrastructure_failure"
	OutcomeCancelled             OutcomeClass = "cancelled"
)

func (o OutcomeClass) Validate() error {
	switch o {
	case OutcomeSuccess, OutcomeTimeout, OutcomeOverload, OutcomeBlocked, OutcomeInfrastructureFailure, OutcomeCancelled:
		return nil
	default:
		return fmt.Errorf("unsupported outcome_class: %q", o)
	}
}

// Adaptive actions the invocation controller may take after a failed attempt.
const (
	ActionRetry          = "retry"
	ActionProviderSwitch = "provider_switch"
	ActionFallback       = "fallback"
)

// NormalizeAdaptiveActions validates and returns sorted unique adaptive actions.
func NormalizeAdaptiveActions(actions []string) ([]string, error) {
	if len(actions) == 0 {
		return nil, nil
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(actions))
	for _, action := range actions {
		switch action {
		case ActionRetry, ActionProviderSwitch, ActionFallback:
			if _, exists := seen[action]; exists {
				return nil, fmt.Errorf("duplicate adaptive action: %q", action)
			}
			seen[action] = struct{}{}
			out = append(out, action)
		default:
			return nil, fmt.Errorf("unsupported adaptive action: %q", action)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Request is one provider attempt. LLM adapters read System and Prompt;
// speech adapters read Text and VoiceID.
type Request struct {
	RunID      string
	Operation  string
	ProviderID string
	Modality   Modality
	Attempt    int

	System  string
	Prompt  string
	Text    string
	VoiceID string
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Operation) == "" || strings.TrimSpace(r.ProviderID) == "" {
		return fmt.Errorf("operation and provider_id are required")
	}
	if err := r.Modality.Validate(); err != nil {
		return err
	}
	if r.Attempt < 1 {
		return fmt.Errorf("attempt must be >=1")
	}
	switch r.Modality {
	case ModalityLLM:
		if strings.TrimSpace(r.Prompt) == "" {
			return fmt.Errorf("prompt is required for llm requests")
		}
	case ModalityTTS:
		if strings.TrimSpace(r.Text) == "" {
			return fmt.Errorf("text is required for tts requests")
		}
	}
	return nil
}

// Outcome is an adapter-normalized invocation result.
type Outcome struct {
	Class       OutcomeClass
	Retryable   bool
	Reason      string
	CircuitOpen bool
	BackoffMS   int64
	StatusCode  int
}

func (o Outcome) Validate() error {
	if err := o.Class.Validate(); err != nil {
		return err
	}
	if o.Class != OutcomeSuccess && o.Reason == "" {
		return fmt.Errorf("reason is required for non-success outcomes")
	}
	if o.BackoffMS < 0 {
		return fmt.Errorf("backoff_ms must be >=0")
	}
	if o.CircuitOpen && o.Class == OutcomeSuccess {
		return fmt.Errorf("circuit_open cannot be true for success")
	}
	return nil
}

// Response carries the normalized outcome plus the payload of a successful attempt.
type Response struct {
	Outcome     Outcome
	Text        string
	Audio       []byte
	ContentType string
}

// Adapter is one configured provider.
type Adapter interface {
	ProviderID() string
	Modality() Modality
	Invoke(ctx context.Context, req Request) (Response, error)
}

// StaticAdapter is a small utility adapter for tests and static catalogs.
type StaticAdapter struct {
	ID       string
	Mode     Modality
	InvokeFn func(context.Context, Request) (Response, error)
}

func (a StaticAdapter) ProviderID() string {
	return a.ID
}

func (a StaticAdapter) Modality() Modality {
	return a.Mode
}

func (a StaticAdapter) Invoke(ctx context.Context, req Request) (Response, error) {
	if a.InvokeFn != nil {
		return a.InvokeFn(ctx, req)
	}
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	return Response{Outcome: Outcome{Class: OutcomeSuccess}}, nil
}

// Cancelled is the outcome every adapter reports when ctx is done before an attempt.
func Cancelled() Outcome {
	return Outcome{Class: OutcomeCancelled, Reason: "provider_cancelled"}
}
