package sim

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Mode reports whether a result came from the deterministic engine or a live provider.
type Mode string

const (
	ModeMock Mode = "mock"
	ModeLive Mode = "live"
)

func (m Mode) Validate() error {
	switch m {
	case ModeMock, ModeLive:
		return nil
	default:
		return fmt.Errorf("invalid mode: %q", m)
	}
}

// LegalRisk is exposure to liability-admission consequences.
type LegalRisk string

const (
	LegalRiskLow    LegalRisk = "low"
	LegalRiskMedium LegalRisk = "medium"
	LegalRiskHigh   LegalRisk = "high"
)

func (l LegalRisk) Validate() error {
	switch l {
	case LegalRiskLow, LegalRiskMedium, LegalRiskHigh:
		return nil
	default:
		return fmt.Errorf("invalid legalRisk: %q", l)
	}
}

// NewsVelocity tracks media attention. Falling is favourable, rising is not.
type NewsVelocity string

const (
	VelocityFalling NewsVelocity = "falling"
	VelocitySteady  NewsVelocity = "steady"
	VelocityRising  NewsVelocity = "rising"
)

func (v NewsVelocity) Validate() error {
	switch v {
	case VelocityFalling, VelocitySteady, VelocityRising:
		return nil
	default:
		return fmt.Errorf("invalid newsVelocity: %q", v)
	}
}

// FeedTone classifies a public-facing feed item.
type FeedTone string

const (
	ToneNeutral   FeedTone = "neutral"
	ToneConcerned FeedTone = "concerned"
	ToneCritical  FeedTone = "critical"
)

// Priority classifies an internal message.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ReporterTone is advisory display metadata on a reporter turn.
type ReporterTone string

const (
	ReporterNeutral   ReporterTone = "neutral"
	ReporterPressing  ReporterTone = "pressing"
	ReporterSkeptical ReporterTone = "skeptical"
	ReporterClosing   ReporterTone = "closing"
)

func (t ReporterTone) Validate() error {
	switch t {
	case ReporterNeutral, ReporterPressing, ReporterSkeptical, ReporterClosing:
		return nil
	default:
		return fmt.Errorf("invalid tone: %q", t)
	}
}

// Speaker identifies who produced a dialogue turn.
type Speaker string

const (
	SpeakerReporter Speaker = "reporter"
	SpeakerPlayer   Speaker = "player"
)

// EventType classifies a run-log entry.
type EventType string

const (
	EventBeat       EventType = "beat"
	EventAction     EventType = "action"
	EventEvaluation EventType = "evaluation"
	EventSystem     EventType = "system"
)

func (e EventType) Validate() error {
	switch e {
	case EventBeat, EventAction, EventEvaluation, EventSystem:
		return nil
	default:
		return fmt.Errorf("invalid event type: %q", e)
	}
}

// RunState is the canonical state vector. ReadinessScore is always derived from the other fields.
type RunState struct {
	PublicSentiment  int          `json:"publicSentiment"`
	TrustScore       int          `json:"trustScore"`
	LegalRisk        LegalRisk    `json:"legalRisk"`
	NewsVelocity     NewsVelocity `json:"newsVelocity"`
	TimeRemainingSec int          `json:"timeRemainingSec"`
	ReadinessScore   int          `json:"readinessScore"`
}

func (s RunState) Validate() error {
	if s.PublicSentiment < 0 || s.PublicSentiment > 100 {
		return fmt.Errorf("publicSentiment must be within 0..100")
	}
	if s.TrustScore < 0 || s.TrustScore > 100 {
		return fmt.Errorf("trustScore must be within 0..100")
	}
	if err := s.LegalRisk.Validate(); err != nil {
		return err
	}
	if err := s.NewsVelocity.Validate(); err != nil {
		return err
	}
	if s.TimeRemainingSec < 0 {
		return fmt.Errorf("timeRemainingSec must be >=0")
	}
	if s.ReadinessScore < 0 || s.ReadinessScore > 100 {
		return fmt.Errorf("readinessScore must be within 0..100")
	}
	return nil
}

type FeedItem struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Text   string   `json:"text"`
	Tone   FeedTone `json:"tone"`
}

func (f FeedItem) Validate() error {
	if f.ID == "" || f.Source == "" || f.Text == "" {
		return fmt.Errorf("feed item id, source, and text are required")
	}
	switch f.Tone {
	case ToneNeutral, ToneConcerned, ToneCritical:
		return nil
	default:
		return fmt.Errorf("invalid feed tone: %q", f.Tone)
	}
}

type InternalMessage struct {
	ID       string   `json:"id"`
	From     string   `json:"from"`
	Text     string   `json:"text"`
	Channel  string   `json:"channel"`
	Priority Priority `json:"priority"`
}

func (m InternalMessage) Validate() error {
	if m.ID == "" || m.From == "" || m.Text == "" || m.Channel == "" {
		return fmt.Errorf("internal message id, from, text, and channel are required")
	}
	switch m.Priority {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return nil
	default:
		return fmt.Errorf("invalid priority: %q", m.Priority)
	}
}

// ReporterCall is the optional incoming media call attached to a beat.
type ReporterCall struct {
	Transcript string `json:"transcript"`
	TTSText    string `json:"ttsText"`
	Persona    string `json:"persona"`
}

func (c ReporterCall) Validate() error {
	if c.Transcript == "" || c.TTSText == "" || c.Persona == "" {
		return fmt.Errorf("call transcript, ttsText, and persona are required")
	}
	return nil
}

// Beat is a scheduled narrative event. AtSec is an offset from run start.
type Beat struct {
	ID               string            `json:"id"`
	AtSec            int               `json:"atSec"`
	FeedItems        []FeedItem        `json:"feedItems"`
	InternalMessages []InternalMessage `json:"internalMessages"`
	Call             *ReporterCall     `json:"call,omitempty"`
}

func (b Beat) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("beat id is required")
	}
	if b.AtSec < 0 {
		return fmt.Errorf("beat %s: atSec must be >=0", b.ID)
	}
	for _, item := range b.FeedItems {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("beat %s: %w", b.ID, err)
		}
	}
	for _, msg := range b.InternalMessages {
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("beat %s: %w", b.ID, err)
		}
	}
	if b.Call != nil {
		if err := b.Call.Validate(); err != nil {
			return fmt.Errorf("beat %s: %w", b.ID, err)
		}
	}
	return nil
}

// ScoringRubric carries six 0..1 weights.
type ScoringRubric struct {
	Acknowledgment float64 `json:"acknowledgment"`
	Clarity        float64 `json:"clarity"`
	Actionability  float64 `json:"actionability"`
	Escalation     float64 `json:"escalation"`
	LegalSafety    float64 `json:"legalSafety"`
	Empathy        float64 `json:"empathy"`
}

func (r ScoringRubric) Validate() error {
	for _, w := range []float64{r.Acknowledgment, r.Clarity, r.Actionability, r.Escalation, r.LegalSafety, r.Empathy} {
		if w < 0 || w > 1 {
			return fmt.Errorf("rubric weights must be within 0..1")
		}
	}
	return nil
}

// ConstraintCard is display-only scenario guidance.
type ConstraintCard struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Episode is one immutable scenario instance.
type Episode struct {
	EpisodeID     string           `json:"episodeId"`
	Title         string           `json:"title"`
	Role          string           `json:"role"`
	Org           string           `json:"org"`
	Objective     string           `json:"objective"`
	InitialState  RunState         `json:"initialState"`
	Beats         []Beat           `json:"beats"`
	ScoringRubric ScoringRubric    `json:"scoringRubric"`
	Constraints   []ConstraintCard `json:"constraints"`
}

func (e Episode) Validate() error {
	if e.EpisodeID == "" || e.Title == "" || e.Role == "" || e.Org == "" || e.Objective == "" {
		return fmt.Errorf("episodeId, title, role, org, and objective are required")
	}
	if err := e.InitialState.Validate(); err != nil {
		return fmt.Errorf("initialState: %w", err)
	}
	if len(e.Beats) == 0 {
		return fmt.Errorf("episode requires at least one beat")
	}
	previous := -1
	for _, beat := range e.Beats {
		if err := beat.Validate(); err != nil {
			return err
		}
		if beat.AtSec < previous {
			return fmt.Errorf("beat %s: atSec must be non-decreasing", beat.ID)
		}
		previous = beat.AtSec
	}
	if err := e.ScoringRubric.Validate(); err != nil {
		return err
	}
	for _, c := range e.Constraints {
		if c.ID == "" || c.Title == "" || c.Description == "" {
			return fmt.Errorf("constraint id, title, and description are required")
		}
	}
	return nil
}

// StateDelta is the signed adjustment applied by one evaluation.
type StateDelta struct {
	PublicSentiment  int          `json:"publicSentiment"`
	TrustScore       int          `json:"trustScore"`
	LegalRisk        LegalRisk    `json:"legalRisk,omitempty"`
	NewsVelocity     NewsVelocity `json:"newsVelocity,omitempty"`
	TimeRemainingSec int          `json:"timeRemainingSec,omitempty"`
}

func (d StateDelta) Validate() error {
	if d.PublicSentiment < -10 || d.PublicSentiment > 10 || d.TrustScore < -10 || d.TrustScore > 10 {
		return fmt.Errorf("stateDelta sentiment and trust must be within -10..10")
	}
	if d.LegalRisk != "" {
		if err := d.LegalRisk.Validate(); err != nil {
			return err
		}
	}
	if d.NewsVelocity != "" {
		if err := d.NewsVelocity.Validate(); err != nil {
			return err
		}
	}
	if d.TimeRemainingSec < -60 || d.TimeRemainingSec > 0 {
		return fmt.Errorf("stateDelta.timeRemainingSec must be within -60..0")
	}
	return nil
}

const (
	PackPRMeltdown = "pr_meltdown"

	MaxRoleLength         = 100
	MaxOrgLength          = 120
	MaxActionLength       = 220
	MaxContextItems       = 50
	MaxContextNoteLength  = 300
	MaxPersonaLength      = 120
	MaxDialogueTextLength = 600
	MaxDialogueTurns      = 40
	MaxTTSTextLength      = 2000
	MaxTTSPersonaLength   = 80
	MaxVoiceIDLength      = 120
)

type GenerateEpisodeRequest struct {
	Pack string `json:"pack"`
	Role string `json:"role"`
	Org  string `json:"org"`
	Seed *int64 `json:"seed,omitempty"`
}

func (r GenerateEpisodeRequest) Validate() error {
	if r.Pack != PackPRMeltdown {
		return fmt.Errorf("pack must be %q", PackPRMeltdown)
	}
	if err := boundedText("role", r.Role, MaxRoleLength); err != nil {
		return err
	}
	return boundedText("org", r.Org, MaxOrgLength)
}

type GenerateEpisodeResponse struct {
	RunID     string   `json:"runId"`
	EpisodeID string   `json:"episodeId"`
	Episode   Episode  `json:"episode"`
	RunState  RunState `json:"runState"`
	StartedAt string   `json:"startedAt"`
	Mode      Mode     `json:"mode"`
}

func (r GenerateEpisodeResponse) Validate() error {
	if r.RunID == "" || r.EpisodeID == "" {
		return fmt.Errorf("runId and episodeId are required")
	}
	if err := r.Episode.Validate(); err != nil {
		return err
	}
	if err := r.RunState.Validate(); err != nil {
		return err
	}
	if _, err := time.Parse(time.RFC3339, r.StartedAt); err != nil {
		return fmt.Errorf("startedAt must be RFC3339: %w", err)
	}
	return r.Mode.Validate()
}

// EvaluateContext is optional scene context for the live evaluator.
type EvaluateContext struct {
	RecentFeed             []FeedItem        `json:"recentFeed,omitempty"`
	RecentInternalMessages []InternalMessage `json:"recentInternalMessages,omitempty"`
	Note                   string            `json:"note,omitempty"`
}

func (c EvaluateContext) Validate() error {
	if len(c.RecentFeed) > MaxContextItems || len(c.RecentInternalMessages) > MaxContextItems {
		return fmt.Errorf("context lists are limited to %d items", MaxContextItems)
	}
	for _, item := range c.RecentFeed {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	for _, msg := range c.RecentInternalMessages {
		if err := msg.Validate(); err != nil {
			return err
		}
	}
	if utf8.RuneCountInString(c.Note) > MaxContextNoteLength {
		return fmt.Errorf("context note exceeds %d characters", MaxContextNoteLength)
	}
	return nil
}

type EvaluateRequest struct {
	RunID     string           `json:"runId"`
	EpisodeID string           `json:"episodeId"`
	RunState  RunState         `json:"runState"`
	Action    string           `json:"action"`
	Context   *EvaluateContext `json:"context,omitempty"`
}

func (r EvaluateRequest) Validate() error {
	if r.RunID == "" || r.EpisodeID == "" {
		return fmt.Errorf("runId and episodeId are required")
	}
	if err := r.RunState.Validate(); err != nil {
		return fmt.Errorf("runState: %w", err)
	}
	if err := boundedText("action", r.Action, MaxActionLength); err != nil {
		return err
	}
	if r.Context != nil {
		return r.Context.Validate()
	}
	return nil
}

type EvaluateResponse struct {
	StateDelta          StateDelta `json:"stateDelta"`
	ScoreDelta          int        `json:"scoreDelta"`
	CoachingNote        string     `json:"coachingNote"`
	SuggestedNextAction string     `json:"suggestedNextAction,omitempty"`
	UpdatedState        RunState   `json:"updatedState"`
	UpdatedReadiness    int        `json:"updatedReadiness"`
	Mode                Mode       `json:"mode"`
}

func (r EvaluateResponse) Validate() error {
	if err := r.StateDelta.Validate(); err != nil {
		return err
	}
	if r.ScoreDelta < -10 || r.ScoreDelta > 10 {
		return fmt.Errorf("scoreDelta must be within -10..10")
	}
	if strings.TrimSpace(r.CoachingNote) == "" {
		return fmt.Errorf("coachingNote is required")
	}
	if err := r.UpdatedState.Validate(); err != nil {
		return fmt.Errorf("updatedState: %w", err)
	}
	if r.UpdatedReadiness != r.UpdatedState.ReadinessScore {
		return fmt.Errorf("updatedReadiness must equal updatedState.readinessScore")
	}
	return r.Mode.Validate()
}

// DialogueTurn is one entry of an in-call exchange.
type DialogueTurn struct {
	Speaker Speaker      `json:"speaker"`
	Text    string       `json:"text"`
	Tone    ReporterTone `json:"tone,omitempty"`
}

func (t DialogueTurn) Validate() error {
	if t.Speaker != SpeakerReporter && t.Speaker != SpeakerPlayer {
		return fmt.Errorf("invalid speaker: %q", t.Speaker)
	}
	if err := boundedText("turn text", t.Text, MaxDialogueTextLength); err != nil {
		return err
	}
	if t.Tone != "" {
		return t.Tone.Validate()
	}
	return nil
}

// ScenarioContext carries optional call context from the caller.
type ScenarioContext struct {
	EpisodeID     string `json:"episodeId,omitempty"`
	LastBeatID    string `json:"lastBeatId,omitempty"`
	Org           string `json:"org,omitempty"`
	Role          string `json:"role,omitempty"`
	Objective     string `json:"objective,omitempty"`
	ReplyToTurnID string `json:"replyToTurnId,omitempty"`
	ReplyToText   string `json:"replyToText,omitempty"`
}

type ReporterRequest struct {
	RunID               string           `json:"runId"`
	Persona             string           `json:"persona"`
	UserResponse        string           `json:"userResponse"`
	ConversationHistory []DialogueTurn   `json:"conversationHistory"`
	ScenarioContext     *ScenarioContext `json:"scenarioContext,omitempty"`
}

func (r ReporterRequest) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("runId is required")
	}
	if err := boundedText("persona", r.Persona, MaxPersonaLength); err != nil {
		return err
	}
	if err := boundedText("userResponse", r.UserResponse, MaxDialogueTextLength); err != nil {
		return err
	}
	if len(r.ConversationHistory) > MaxDialogueTurns {
		return fmt.Errorf("conversationHistory is limited to %d turns", MaxDialogueTurns)
	}
	for _, turn := range r.ConversationHistory {
		if err := turn.Validate(); err != nil {
			return err
		}
	}
	return nil
}

type ReporterResponse struct {
	ReporterReply  string       `json:"reporterReply"`
	TTSText        string       `json:"ttsText"`
	Tone           ReporterTone `json:"tone"`
	ShouldContinue bool         `json:"shouldContinue"`
	Mode           Mode         `json:"mode"`
}

func (r ReporterResponse) Validate() error {
	if err := boundedText("reporterReply", r.ReporterReply, MaxDialogueTextLength); err != nil {
		return err
	}
	if err := boundedText("ttsText", r.TTSText, MaxDialogueTextLength); err != nil {
		return err
	}
	if err := r.Tone.Validate(); err != nil {
		return err
	}
	if (r.Tone == ReporterClosing) == r.ShouldContinue {
		return fmt.Errorf("tone must be closing exactly when shouldContinue=false")
	}
	return r.Mode.Validate()
}

// RunLogEvent is one append-only run-log record.
type RunLogEvent struct {
	TS      time.Time      `json:"ts"`
	Type    EventType      `json:"type"`
	Message string         `json:"message"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (e RunLogEvent) Validate() error {
	if e.TS.IsZero() {
		return fmt.Errorf("event ts is required")
	}
	if err := e.Type.Validate(); err != nil {
		return err
	}
	if e.Message == "" {
		return fmt.Errorf("event message is required")
	}
	return nil
}

type AfterActionRequest struct {
	RunID      string        `json:"runId"`
	RunLog     []RunLogEvent `json:"runLog"`
	FinalState RunState      `json:"finalState"`
	// Org is optional; artifacts fall back to run-log payloads when unset.
	Org string `json:"org,omitempty"`
}

func (r AfterActionRequest) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("runId is required")
	}
	if len(r.RunLog) == 0 {
		return fmt.Errorf("runLog requires at least one event")
	}
	for i, event := range r.RunLog {
		if err := event.Validate(); err != nil {
			return fmt.Errorf("runLog[%d]: %w", i, err)
		}
		if i > 0 && event.TS.Before(r.RunLog[i-1].TS) {
			return fmt.Errorf("runLog[%d]: ts precedes the previous event", i)
		}
	}
	if err := r.FinalState.Validate(); err != nil {
		return fmt.Errorf("finalState: %w", err)
	}
	if utf8.RuneCountInString(r.Org) > MaxOrgLength {
		return fmt.Errorf("org exceeds %d characters", MaxOrgLength)
	}
	return nil
}

// Artifacts are the four communication drafts attached to a report.
type Artifacts struct {
	HoldingStatement string `json:"holding_statement"`
	ReporterEmail    string `json:"reporter_email"`
	SupportScript    string `json:"support_script"`
	InternalMemo     string `json:"internal_memo"`
}

func (a Artifacts) Validate() error {
	if strings.TrimSpace(a.HoldingStatement) == "" || strings.TrimSpace(a.ReporterEmail) == "" ||
		strings.TrimSpace(a.SupportScript) == "" || strings.TrimSpace(a.InternalMemo) == "" {
		return fmt.Errorf("all four artifacts are required")
	}
	return nil
}

type AfterActionResponse struct {
	RunID       string    `json:"runId"`
	AARMarkdown string    `json:"aarMarkdown"`
	Artifacts   Artifacts `json:"artifacts"`
	Mode        Mode      `json:"mode"`
}

func (r AfterActionResponse) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("runId is required")
	}
	if strings.TrimSpace(r.AARMarkdown) == "" {
		return fmt.Errorf("aarMarkdown is required")
	}
	if err := r.Artifacts.Validate(); err != nil {
		return err
	}
	return r.Mode.Validate()
}

type TTSRequest struct {
	Text    string `json:"text"`
	Persona string `json:"persona,omitempty"`
	VoiceID string `json:"voiceId,omitempty"`
}

func (r TTSRequest) Validate() error {
	if err := boundedText("text", r.Text, MaxTTSTextLength); err != nil {
		return err
	}
	if utf8.RuneCountInString(r.Persona) > MaxTTSPersonaLength {
		return fmt.Errorf("persona exceeds %d characters", MaxTTSPersonaLength)
	}
	if utf8.RuneCountInString(r.VoiceID) > MaxVoiceIDLength {
		return fmt.Errorf("voiceId exceeds %d characters", MaxVoiceIDLength)
	}
	return nil
}

func boundedText(field, value string, max int) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if utf8.RuneCountInString(value) > max {
		return fmt.Errorf("%s exceeds %d characters", field, max)
	}
	return nil
}
