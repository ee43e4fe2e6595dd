// Package session threads one run's state through successive simulator
// calls on the caller side.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tiger/kobayashi/api/sim"
	"github.com/tiger/kobayashi/internal/engine/episode"
	"github.com/tiger/kobayashi/internal/engine/runstate"
)

var (
	ErrUnknownBeat     = errors.New("beat is not part of the episode")
	ErrBeatApplied     = errors.New("beat already applied")
	ErrStaleEvaluation = errors.New("evaluation was computed from a superseded state")
	ErrInconsistent    = errors.New("evaluation does not carry a consistent state")
)

type Option func(*Run)

// WithClock sets the clock used for log timestamps and wall-clock pacing.
func WithClock(now func() time.Time) Option {
	return func(r *Run) {
		if now != nil {
			r.now = now
		}
	}
}

// WithWallClock makes the remaining time follow the wall clock instead of
// the fixed per-action cost.
func WithWallClock() Option {
	return func(r *Run) {
		r.wallClock = true
	}
}

// Run is one single-writer run. All methods are safe for concurrent use.
type Run struct {
	mu        sync.Mutex
	runID     string
	episode   sim.Episode
	state     sim.RunState
	log       []sim.RunLogEvent
	applied   map[string]bool
	revision  uint64
	startedAt time.Time
	now       func() time.Time
	wallClock bool
}

// Start opens a run from a generate response and logs its start.
func Start(resp sim.GenerateEpisodeResponse, opts ...Option) (*Run, error) {
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	startedAt, err := time.Parse(time.RFC3339, resp.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	r := &Run{
		runID:     resp.RunID,
		episode:   resp.Episode,
		state:     runstate.WithReadiness(resp.RunState),
		applied:   make(map[string]bool, len(resp.Episode.Beats)),
		startedAt: startedAt,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.appendLocked(sim.EventSystem, "Run started: "+resp.Episode.Title, map[string]any{
		"episodeId": resp.EpisodeID,
		"org":       resp.Episode.Org,
		"role":      resp.Episode.Role,
		"mode":      string(resp.Mode),
	})
	return r, nil
}

func (r *Run) ID() string {
	return r.runID
}

func (r *Run) Episode() sim.Episode {
	return r.episode
}

// State returns the current state. Under wall-clock pacing the remaining
// time is recomputed from the clock and readiness re-derived.
func (r *Run) State() sim.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

func (r *Run) stateLocked() sim.RunState {
	if !r.wallClock {
		return r.state
	}
	state := r.state
	state.TimeRemainingSec = runstate.Clamp(r.episode.InitialState.TimeRemainingSec-r.wallElapsedLocked(), 0, r.episode.InitialState.TimeRemainingSec)
	return runstate.WithReadiness(state)
}

func (r *Run) wallElapsedLocked() int {
	elapsed := int(r.now().Sub(r.startedAt) / time.Second)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// ElapsedSec is how far into the round the run is.
func (r *Run) ElapsedSec() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsedLocked()
}

func (r *Run) elapsedLocked() int {
	if r.wallClock {
		return r.wallElapsedLocked()
	}
	return r.episode.InitialState.TimeRemainingSec - r.state.TimeRemainingSec
}

// Finished reports whether the round clock has run out.
func (r *Run) Finished() bool {
	return r.State().TimeRemainingSec == 0
}

// DueBeats returns unapplied beats whose offsets have elapsed, in order.
func (r *Run) DueBeats() []sim.Beat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return episode.DueBeats(r.episode.Beats, r.elapsedLocked(), r.applied)
}

// ApplyBeat marks beat as delivered and logs it.
func (r *Run) ApplyBeat(beatID string) (sim.Beat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var beat sim.Beat
	found := false
	for _, candidate := range r.episode.Beats {
		if candidate.ID == beatID {
			beat, found = candidate, true
			break
		}
	}
	if !found {
		return sim.Beat{}, fmt.Errorf("%w: %s", ErrUnknownBeat, beatID)
	}
	if r.applied[beatID] {
		return sim.Beat{}, fmt.Errorf("%w: %s", ErrBeatApplied, beatID)
	}
	r.applied[beatID] = true
	payload := map[string]any{
		"beatId":           beat.ID,
		"atSec":            beat.AtSec,
		"feedItems":        len(beat.FeedItems),
		"internalMessages": len(beat.InternalMessages),
		"hasCall":          beat.Call != nil,
	}
	r.appendLocked(sim.EventBeat, fmt.Sprintf("Beat %s triggered at %ds", beat.ID, beat.AtSec), payload)
	return beat, nil
}

// Pending is an evaluate request tied to the state revision it read.
type Pending struct {
	Request  sim.EvaluateRequest
	revision uint64
}

// EvaluateRequest builds the request for action against the current state
// and logs the action.
func (r *Run) EvaluateRequest(action string, context *sim.EvaluateContext) Pending {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(sim.EventAction, "Player action: "+action, map[string]any{"action": action})
	return Pending{
		Request: sim.EvaluateRequest{
			RunID:     r.runID,
			EpisodeID: r.episode.EpisodeID,
			RunState:  r.stateLocked(),
			Action:    action,
			Context:   context,
		},
		revision: r.revision,
	}
}

// RecordEvaluation supersedes the run state with resp.UpdatedState. Only the
// first evaluation recorded against a revision is accepted.
func (r *Run) RecordEvaluation(pending Pending, resp sim.EvaluateResponse) error {
	if err := runstate.CheckConsistent(resp.UpdatedState); err != nil {
		return fmt.Errorf("%w: %w", ErrInconsistent, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if pending.revision != r.revision {
		return fmt.Errorf("%w: issued at revision %d, run is at %d", ErrStaleEvaluation, pending.revision, r.revision)
	}
	r.state = resp.UpdatedState
	r.revision++
	r.appendLocked(sim.EventEvaluation, resp.CoachingNote, map[string]any{
		"scoreDelta": resp.ScoreDelta,
		"readiness":  resp.UpdatedReadiness,
		"mode":       string(resp.Mode),
	})
	return nil
}

// RecordSystem appends a free-form system event.
func (r *Run) RecordSystem(message string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(sim.EventSystem, message, payload)
}

// Log returns a copy of the run log in append order.
func (r *Run) Log() []sim.RunLogEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sim.RunLogEvent, len(r.log))
	copy(out, r.log)
	return out
}

// AfterActionRequest builds the closing report request for the run.
func (r *Run) AfterActionRequest() sim.AfterActionRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	log := make([]sim.RunLogEvent, len(r.log))
	copy(log, r.log)
	return sim.AfterActionRequest{
		RunID:      r.runID,
		RunLog:     log,
		FinalState: r.stateLocked(),
		Org:        r.episode.Org,
	}
}

// appendLocked keeps timestamps non-decreasing even if the clock steps back.
func (r *Run) appendLocked(kind sim.EventType, message string, payload map[string]any) {
	ts := r.now().UTC()
	if n := len(r.log); n > 0 && ts.Before(r.log[n-1].TS) {
		ts = r.log[n-1].TS
	}
	if message == "" {
		message = string(kind)
	}
	r.log = append(r.log, sim.RunLogEvent{TS: ts, Type: kind, Message: message, Payload: payload})
}
