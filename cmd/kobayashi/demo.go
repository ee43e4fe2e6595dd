package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiger/kobayashi/api/sim"
	"github.com/tiger/kobayashi/internal/session"
)

var demoActions = []string{
	"We are aware of today's disruption and are investigating. We will post verified updates every 30 minutes.",
	"Opening a dedicated support hotline for affected passengers with free rebooking and refunds.",
	"Legal and Ops are aligned: we will not speculate on cause until verified. Next update at 3pm today.",
	"Escalating to the CEO and safety team; a customer FAQ goes live within the hour.",
	"We apologize to every passenger affected and will share the review findings once confirmed.",
}

var demoReplies = []string{
	"Our priority right now is passenger care. Our next verified update is within the hour.",
	"Customers should rely on our support line and website for rebooking. We will not speculate on cause.",
	"Our head of communications signs off on every update, and we will share confirmed facts only.",
}

type demoFlags struct {
	role      string
	org       string
	seed      int64
	step      time.Duration
	out       string
	artifacts string
	logPath   string
}

// virtualClock lets a scripted run cover the whole round instantly.
type virtualClock struct {
	now time.Time
}

func (c *virtualClock) Now() time.Time {
	return c.now
}

func newDemoCommand(a *app) *cobra.Command {
	flags := &demoFlags{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Play a scripted run end to end and print its report",
		Long: `Play a scripted run: generate an episode, deliver beats on a virtual
clock, answer the reporter call, score canned actions, then print the
after-action report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, a, flags)
		},
	}
	cmd.Flags().StringVar(&flags.role, "role", "Head of Communications", "player role")
	cmd.Flags().StringVar(&flags.org, "org", "SkyWave Air", "organization name")
	cmd.Flags().Int64Var(&flags.seed, "seed", 7, "episode seed")
	cmd.Flags().DurationVar(&flags.step, "step", 45*time.Second, "virtual time between actions")
	cmd.Flags().StringVar(&flags.out, "out", stdio, "report markdown file (- for stdout)")
	cmd.Flags().StringVar(&flags.artifacts, "artifacts", "", "directory for the four communication drafts")
	cmd.Flags().StringVar(&flags.logPath, "log", "", "run log JSON file")
	return cmd
}

func runDemo(cmd *cobra.Command, a *app, flags *demoFlags) error {
	ctx := cmd.Context()
	progress := cmd.ErrOrStderr()
	svc, err := a.service()
	if err != nil {
		return err
	}

	seed := flags.seed
	generated, err := svc.GenerateEpisode(ctx, sim.GenerateEpisodeRequest{Pack: sim.PackPRMeltdown, Role: flags.role, Org: flags.org, Seed: &seed})
	if err != nil {
		return err
	}
	startedAt, err := time.Parse(time.RFC3339, generated.StartedAt)
	if err != nil {
		return err
	}
	clock := &virtualClock{now: startedAt}
	run, err := session.Start(generated, session.WithClock(clock.Now), session.WithWallClock())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(progress, "run %s: %s (%s)\n", run.ID(), generated.Episode.Title, generated.Mode)

	var recentFeed []sim.FeedItem
	callTaken := false
	for _, action := range demoActions {
		clock.now = clock.now.Add(flags.step)
		if run.Finished() {
			break
		}
		for _, due := range run.DueBeats() {
			beat, err := run.ApplyBeat(due.ID)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(progress, "[%3ds] %s: %d feed, %d internal\n", beat.AtSec, beat.ID, len(beat.FeedItems), len(beat.InternalMessages))
			recentFeed = append(recentFeed, beat.FeedItems...)
			if beat.Call != nil && !callTaken {
				callTaken = true
				if err := takeCall(cmd, a, run, beat, progress); err != nil {
					return err
				}
			}
		}

		scene := &sim.EvaluateContext{RecentFeed: lastFeed(recentFeed, sim.MaxContextItems)}
		pending := run.EvaluateRequest(action, scene)
		evaluated, err := svc.Evaluate(ctx, pending.Request)
		if err != nil {
			return err
		}
		if err := run.RecordEvaluation(pending, evaluated); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(progress, "[%3ds] score %+d readiness %d: %s\n", run.ElapsedSec(), evaluated.ScoreDelta, evaluated.UpdatedReadiness, evaluated.CoachingNote)
	}

	report, err := svc.AfterAction(ctx, run.AfterActionRequest())
	if err != nil {
		return err
	}
	if flags.logPath != "" {
		if err := a.writeJSON(flags.logPath, run.Log()); err != nil {
			return err
		}
	}
	if flags.artifacts != "" {
		if err := writeArtifacts(a, flags.artifacts, report.Artifacts); err != nil {
			return err
		}
	}
	return a.writeOutput(flags.out, []byte(report.AARMarkdown))
}

func takeCall(cmd *cobra.Command, a *app, run *session.Run, beat sim.Beat, progress io.Writer) error {
	svc, err := a.service()
	if err != nil {
		return err
	}
	episode := run.Episode()
	history := []sim.DialogueTurn{{Speaker: sim.SpeakerReporter, Text: beat.Call.Transcript, Tone: sim.ReporterPressing}}
	_, _ = fmt.Fprintf(progress, "  reporter: %s\n", beat.Call.Transcript)

	for _, reply := range demoReplies {
		history = append(history, sim.DialogueTurn{Speaker: sim.SpeakerPlayer, Text: reply})
		_, _ = fmt.Fprintf(progress, "  player:   %s\n", reply)
		resp, err := svc.RespondReporter(cmd.Context(), sim.ReporterRequest{
			RunID:               run.ID(),
			Persona:             beat.Call.Persona,
			UserResponse:        reply,
			ConversationHistory: history,
			ScenarioContext: &sim.ScenarioContext{
				EpisodeID:  episode.EpisodeID,
				LastBeatID: beat.ID,
				Org:        episode.Org,
				Role:       episode.Role,
				Objective:  episode.Objective,
			},
		})
		if err != nil {
			return err
		}
		history = append(history, sim.DialogueTurn{Speaker: sim.SpeakerReporter, Text: resp.ReporterReply, Tone: resp.Tone})
		_, _ = fmt.Fprintf(progress, "  reporter: %s\n", resp.ReporterReply)
		if !resp.ShouldContinue {
			break
		}
	}
	run.RecordSystem("Reporter call ended", map[string]any{
		"beatId":  beat.ID,
		"persona": beat.Call.Persona,
		"turns":   len(history),
	})
	return nil
}

func lastFeed(items []sim.FeedItem, limit int) []sim.FeedItem {
	if len(items) > limit {
		return items[len(items)-limit:]
	}
	return items
}

func writeArtifacts(a *app, dir string, artifacts sim.Artifacts) error {
	files := []struct {
		name string
		body string
	}{
		{"holding_statement.md", artifacts.HoldingStatement},
		{"reporter_email.md", artifacts.ReporterEmail},
		{"support_script.md", artifacts.SupportScript},
		{"internal_memo.md", artifacts.InternalMemo},
	}
	for _, f := range files {
		if err := writeFileAtomic(a.fs, filepath.Join(dir, f.name), []byte(f.body)); err != nil {
			return err
		}
	}
	return nil
}
