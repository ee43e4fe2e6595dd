package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiger/kobayashi/api/sim"
	"github.com/tiger/kobayashi/internal/httpapi"
	"github.com/tiger/kobayashi/internal/schema"
	"github.com/tiger/kobayashi/internal/simulator"
)

const (
	envAddr         = "KOBAYASHI_ADDR"
	shutdownTimeout = 10 * time.Second
)

type ioFlags struct {
	in  string
	out string
}

func (f *ioFlags) register(cmd *cobra.Command, outHelp string) {
	cmd.Flags().StringVar(&f.in, "in", stdio, "request JSON file (- for stdin)")
	cmd.Flags().StringVar(&f.out, "out", stdio, outHelp)
}

// requestCommand reads one request, runs it and writes the JSON response.
func requestCommand[Req, Resp any](a *app, use, short string, def schema.Definition, call func(*simulator.Service) func(context.Context, Req) (Resp, error)) *cobra.Command {
	flags := &ioFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			raw, err := a.readInput(flags.in)
			if err != nil {
				return err
			}
			var req Req
			if err := svc.Validator().Decode(def, raw, &req); err != nil {
				return fmt.Errorf("invalid request: %w", err)
			}
			resp, err := call(svc)(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.writeJSON(flags.out, resp)
		},
	}
	flags.register(cmd, "response JSON file (- for stdout)")
	return cmd
}

func newGenerateCommand(a *app) *cobra.Command {
	var (
		role string
		org  string
		seed int64
	)
	cmd := requestCommand(a, "generate", "Generate an episode and open a run", schema.GenerateRequest,
		func(s *simulator.Service) func(context.Context, sim.GenerateEpisodeRequest) (sim.GenerateEpisodeResponse, error) {
			return s.GenerateEpisode
		})
	cmd.Long = `Generate an episode from a request file, or from --role and --org.

Examples:
  kobayashi generate --role "Head of Communications" --org "SkyWave Air" --seed 7
  kobayashi generate --in request.json --out episode.json`
	cmd.Flags().StringVar(&role, "role", "", "player role (builds the request without --in)")
	cmd.Flags().StringVar(&org, "org", "", "organization name")
	cmd.Flags().Int64Var(&seed, "seed", 0, "episode seed")

	fromFile := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if role == "" && org == "" {
			return fromFile(cmd, args)
		}
		svc, err := a.service()
		if err != nil {
			return err
		}
		req := sim.GenerateEpisodeRequest{Pack: sim.PackPRMeltdown, Role: role, Org: org}
		if cmd.Flags().Changed("seed") {
			req.Seed = &seed
		}
		resp, err := svc.GenerateEpisode(cmd.Context(), req)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		return a.writeJSON(out, resp)
	}
	return cmd
}

func newEvaluateCommand(a *app) *cobra.Command {
	return requestCommand(a, "evaluate", "Score one player action against a run state", schema.EvaluateRequest,
		func(s *simulator.Service) func(context.Context, sim.EvaluateRequest) (sim.EvaluateResponse, error) {
			return s.Evaluate
		})
}

func newReporterCommand(a *app) *cobra.Command {
	return requestCommand(a, "reporter", "Produce the reporter's next line in a press call", schema.ReporterRequest,
		func(s *simulator.Service) func(context.Context, sim.ReporterRequest) (sim.ReporterResponse, error) {
			return s.RespondReporter
		})
}

func newReportCommand(a *app) *cobra.Command {
	return requestCommand(a, "report", "Build the after-action report for a run log", schema.AfterActionRequest,
		func(s *simulator.Service) func(context.Context, sim.AfterActionRequest) (sim.AfterActionResponse, error) {
			return s.AfterAction
		})
}

func newTTSCommand(a *app) *cobra.Command {
	var (
		text    string
		voiceID string
		flags   ioFlags
	)
	cmd := &cobra.Command{
		Use:   "tts",
		Short: "Synthesize reporter speech to an audio file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			req := sim.TTSRequest{Text: text, VoiceID: voiceID}
			if text == "" {
				raw, err := a.readInput(flags.in)
				if err != nil {
					return err
				}
				if err := svc.Validator().Decode(schema.TTSRequest, raw, &req); err != nil {
					return fmt.Errorf("invalid request: %w", err)
				}
			}
			audio, err := svc.Synthesize(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := a.writeOutput(flags.out, audio.Data); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.ErrOrStderr(), "kobayashi: %d bytes %s (%s)\n", len(audio.Data), audio.ContentType, audio.Mode)
			return err
		},
	}
	flags.register(cmd, "audio file (- for stdout)")
	cmd.Flags().StringVar(&text, "text", "", "text to speak (skips --in)")
	cmd.Flags().StringVar(&voiceID, "voice", "", "provider voice id")
	return cmd
}

func newServeCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the simulator over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = strings.TrimSpace(a.getenv(envAddr))
			}
			server := httpapi.NewServer(httpapi.ServerConfig{Addr: addr}, svc, svc.Validator())

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "kobayashi: listening on %s (llm=%s tts=%s)\n", server.Addr(), modeName(svc.Live()), modeName(svc.LiveSpeech()))

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return <-errCh
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $"+envAddr+" or :8080)")
	return cmd
}

func modeName(live bool) sim.Mode {
	if live {
		return sim.ModeLive
	}
	return sim.ModeMock
}
