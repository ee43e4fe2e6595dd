// Package simulator serves the five simulator operations. Each operation
// tries the live provider path when one is configured and otherwise, or on
// any live failure, answers from the deterministic engine.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tiger/kobayashi/api/sim"
	"github.com/tiger/kobayashi/internal/engine/aar"
	"github.com/tiger/kobayashi/internal/engine/episode"
	"github.com/tiger/kobayashi/internal/engine/normalizer"
	"github.com/tiger/kobayashi/internal/engine/reporter"
	"github.com/tiger/kobayashi/internal/engine/runstate"
	"github.com/tiger/kobayashi/internal/engine/scorer"
	"github.com/tiger/kobayashi/internal/provider/bootstrap"
	"github.com/tiger/kobayashi/internal/provider/contracts"
	"github.com/tiger/kobayashi/internal/provider/invocation"
	"github.com/tiger/kobayashi/internal/schema"
	"github.com/tiger/kobayashi/internal/telemetry"
	"github.com/tiger/kobayashi/providers/tts/placeholder"
)

var (
	// ErrMalformedRequest wraps request contract violations.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrOutputContract wraps a produced response that fails its own contract.
	ErrOutputContract = errors.New("response failed output contract")
)

const (
	OperationGenerate    = "episode_generate"
	OperationEvaluate    = "episode_evaluate"
	OperationReporter    = "reporter_respond"
	OperationAfterAction = "after_action"
	OperationTTS         = "tts"
)

// Audio is a synthesized clip.
type Audio struct {
	Data        []byte
	ContentType string
	Mode        sim.Mode
	Provider    string
}

// Service is safe for concurrent use and holds no per-run state.
type Service struct {
	cfg        Config
	providers  bootstrap.RuntimeProviders
	validator  *schema.Validator
	normalizer *normalizer.Normalizer
	ids        *runIDs
	now        func() time.Time
}

type Option func(*Service)

// WithClock overrides the wall clock used for run ids and startedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Service over providers. An empty catalog serves every
// operation deterministically.
func New(cfg Config, providers bootstrap.RuntimeProviders, opts ...Option) (*Service, error) {
	validator, err := schema.Default()
	if err != nil {
		return nil, fmt.Errorf("load contract schema: %w", err)
	}
	if cfg.LiveTimeout <= 0 {
		cfg.LiveTimeout = DefaultConfig().LiveTimeout
	}
	s := &Service{
		cfg:        cfg,
		providers:  providers,
		validator:  validator,
		normalizer: normalizer.New(validator),
		ids:        newRunIDs(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Validator exposes the contract validator shared with transport adapters.
func (s *Service) Validator() *schema.Validator {
	return s.validator
}

// Live reports whether the LLM operations have a configured provider.
func (s *Service) Live() bool {
	return s.providers.Live(contracts.ModalityLLM)
}

// LiveSpeech reports whether speech synthesis has a configured provider.
func (s *Service) LiveSpeech() bool {
	return s.providers.Live(contracts.ModalityTTS)
}

func (s *Service) GenerateEpisode(ctx context.Context, req sim.GenerateEpisodeRequest) (sim.GenerateEpisodeResponse, error) {
	if err := req.Validate(); err != nil {
		return sim.GenerateEpisodeResponse{}, malformed(err)
	}
	now := s.now()
	runID := s.ids.next(now)

	ep, mode := sim.Episode{}, sim.ModeMock
	if raw, provider, ok := s.liveJSON(ctx, runID, OperationGenerate, episodePrompt(req)); ok {
		if live, ok := s.normalizer.Episode(raw, req); ok {
			ep, mode = live, sim.ModeLive
		} else {
			s.fallback(runID, OperationGenerate, provider, "", "live_output_unusable")
		}
	}
	if mode == sim.ModeMock {
		generated, err := episode.Generate(req.Pack, req.Role, req.Org, req.Seed)
		if err != nil {
			if errors.Is(err, episode.ErrUnknownPack) {
				return sim.GenerateEpisodeResponse{}, malformed(err)
			}
			return sim.GenerateEpisodeResponse{}, err
		}
		ep = generated
	}

	resp := sim.GenerateEpisodeResponse{
		RunID:     runID,
		EpisodeID: ep.EpisodeID,
		Episode:   ep,
		RunState:  ep.InitialState,
		StartedAt: now.UTC().Format(time.RFC3339),
		Mode:      mode,
	}
	if err := s.checkOutput(schema.GenerateResponse, resp, resp.RunState); err != nil {
		return sim.GenerateEpisodeResponse{}, err
	}
	return resp, nil
}

func (s *Service) Evaluate(ctx context.Context, req sim.EvaluateRequest) (sim.EvaluateResponse, error) {
	if err := req.Validate(); err != nil {
		return sim.EvaluateResponse{}, malformed(err)
	}

	var resp sim.EvaluateResponse
	live := false
	if raw, provider, ok := s.liveJSON(ctx, req.RunID, OperationEvaluate, evaluatePrompt(req)); ok {
		if evaluated, ok := s.normalizer.Evaluation(raw, req); ok {
			resp, live = evaluated, true
		} else {
			s.fallback(req.RunID, OperationEvaluate, provider, "", "live_output_unusable")
		}
	}
	if !live {
		evaluated, breakdown, err := scorer.Evaluate(req.Action, req.RunState)
		if err != nil {
			return sim.EvaluateResponse{}, malformed(err)
		}
		resp = evaluated
		telemetry.DefaultEmitter().EmitLog("action_scored", telemetry.SeverityDebug,
			"matched: "+strings.Join(breakdown.Matched, ","),
			map[string]string{"score_delta": fmt.Sprint(breakdown.ScoreDelta)},
			telemetry.Correlation{RunID: req.RunID, EpisodeID: req.EpisodeID, Operation: OperationEvaluate})
	}
	if err := s.checkOutput(schema.EvaluateResponse, resp, resp.UpdatedState); err != nil {
		return sim.EvaluateResponse{}, err
	}
	return resp, nil
}

func (s *Service) RespondReporter(ctx context.Context, req sim.ReporterRequest) (sim.ReporterResponse, error) {
	if err := req.Validate(); err != nil {
		return sim.ReporterResponse{}, malformed(err)
	}

	resp := reporter.Respond(req)
	if raw, provider, ok := s.liveJSON(ctx, req.RunID, OperationReporter, reporterPrompt(req)); ok {
		if reply, ok := s.normalizer.ReporterReply(raw, req); ok {
			resp = reply
		} else {
			s.fallback(req.RunID, OperationReporter, provider, "", "live_output_unusable")
		}
	}
	if err := s.checkOutput(schema.ReporterResponse, resp); err != nil {
		return sim.ReporterResponse{}, err
	}
	return resp, nil
}

func (s *Service) AfterAction(ctx context.Context, req sim.AfterActionRequest) (sim.AfterActionResponse, error) {
	if err := req.Validate(); err != nil {
		return sim.AfterActionResponse{}, malformed(err)
	}

	var resp sim.AfterActionResponse
	live := false
	if raw, provider, ok := s.liveJSON(ctx, req.RunID, OperationAfterAction, afterActionPrompt(req)); ok {
		if report, ok := s.normalizer.Report(raw, req); ok {
			resp, live = report, true
		} else {
			s.fallback(req.RunID, OperationAfterAction, provider, "", "live_output_unusable")
		}
	}
	if !live {
		summarized, err := aar.Summarize(req)
		if err != nil {
			return sim.AfterActionResponse{}, malformed(err)
		}
		resp = summarized
	}
	if err := s.checkOutput(schema.AfterActionResponse, resp); err != nil {
		return sim.AfterActionResponse{}, err
	}
	return resp, nil
}

// Synthesize speaks req.Text through the speech providers, or returns the
// silent placeholder clip.
func (s *Service) Synthesize(ctx context.Context, req sim.TTSRequest) (Audio, error) {
	if err := req.Validate(); err != nil {
		return Audio{}, malformed(err)
	}
	if !s.providers.Live(contracts.ModalityTTS) {
		return placeholderAudio(), nil
	}

	liveCtx, cancel := context.WithTimeout(ctx, s.cfg.LiveTimeout)
	defer cancel()
	result, err := s.providers.Controller.Invoke(liveCtx, invocation.Input{
		Operation:              OperationTTS,
		Modality:               contracts.ModalityTTS,
		PreferredProvider:      s.preferred(contracts.ModalityTTS),
		AllowedAdaptiveActions: invocation.DefaultAdaptiveActions,
		Request:                contracts.Request{Text: req.Text, VoiceID: req.VoiceID},
	})
	if err != nil {
		s.fallback("", OperationTTS, "", "", err.Error())
		return placeholderAudio(), nil
	}
	if !result.Succeeded() || len(result.Response.Audio) == 0 {
		s.fallback("", OperationTTS, result.SelectedProvider, string(result.Outcome.Class), result.Outcome.Reason)
		return placeholderAudio(), nil
	}
	contentType := result.Response.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return Audio{Data: result.Response.Audio, ContentType: contentType, Mode: sim.ModeLive, Provider: result.SelectedProvider}, nil
}

func placeholderAudio() Audio {
	return Audio{Data: placeholder.SilentWAV(), ContentType: placeholder.ContentType, Mode: sim.ModeMock}
}

// liveJSON runs one LLM invocation and extracts its JSON object. ok=false
// means the caller answers deterministically; failures are already reported.
func (s *Service) liveJSON(ctx context.Context, runID, operation string, p prompt) (raw []byte, provider string, ok bool) {
	if !s.Live() {
		return nil, "", false
	}
	liveCtx, cancel := context.WithTimeout(ctx, s.cfg.LiveTimeout)
	defer cancel()

	result, err := s.providers.Controller.Invoke(liveCtx, invocation.Input{
		RunID:                  runID,
		Operation:              operation,
		Modality:               contracts.ModalityLLM,
		PreferredProvider:      s.preferred(contracts.ModalityLLM),
		AllowedAdaptiveActions: invocation.DefaultAdaptiveActions,
		Request:                contracts.Request{System: p.system, Prompt: p.user},
	})
	if err != nil {
		s.fallback(runID, operation, "", "", err.Error())
		return nil, "", false
	}
	if !result.Succeeded() {
		s.fallback(runID, operation, result.SelectedProvider, string(result.Outcome.Class), result.Outcome.Reason)
		return nil, result.SelectedProvider, false
	}
	text, found := normalizer.ExtractJSON(result.Response.Text)
	if !found {
		s.fallback(runID, operation, result.SelectedProvider, string(result.Outcome.Class), "no_json_object")
		return nil, result.SelectedProvider, false
	}
	return []byte(text), result.SelectedProvider, true
}

// preferred returns the configured provider for modality when it is registered.
func (s *Service) preferred(modality contracts.Modality) string {
	id := s.cfg.PreferredLLMProvider
	if modality == contracts.ModalityTTS {
		id = s.cfg.PreferredTTSProvider
	}
	if id == "" {
		return ""
	}
	if _, ok := s.providers.Catalog.Adapter(modality, id); !ok {
		return ""
	}
	return id
}

func (s *Service) fallback(runID, operation, provider, outcome, reason string) {
	attributes := map[string]string{
		"operation": operation,
		"provider":  provider,
		"outcome":   outcome,
		"reason":    reason,
	}
	correlation := telemetry.Correlation{RunID: runID, Operation: operation, Provider: provider}
	emitter := telemetry.DefaultEmitter()
	emitter.EmitMetric(telemetry.MetricLiveFallbackTotal, 1, "count", attributes, correlation)
	emitter.EmitLog("live_fallback", telemetry.SeverityWarn, "live path failed, serving deterministic result: "+reason, attributes, correlation)
}

// checkOutput validates resp against its typed and schema contracts and
// checks that every listed state carries its derived readiness.
func (s *Service) checkOutput(def schema.Definition, resp interface{ Validate() error }, states ...sim.RunState) error {
	if err := resp.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrOutputContract, err)
	}
	if err := s.validator.ValidateValue(def, resp); err != nil {
		return fmt.Errorf("%w: %w", ErrOutputContract, err)
	}
	for _, state := range states {
		if err := runstate.CheckConsistent(state); err != nil {
			return fmt.Errorf("%w: %w", ErrOutputContract, err)
		}
	}
	return nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformedRequest, err)
}
