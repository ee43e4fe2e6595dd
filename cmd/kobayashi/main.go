package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tiger/kobayashi/internal/provider/bootstrap"
	"github.com/tiger/kobayashi/internal/simulator"
	"github.com/tiger/kobayashi/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		fs:     afero.NewOsFs(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		getenv: os.Getenv,
		now:    time.Now,
	}
	if err := run(ctx, os.Args[1:], a); err != nil {
		fmt.Fprintf(os.Stderr, "kobayashi: %v\n", err)
		os.Exit(1)
	}
}

// app carries the process dependencies every command reads through.
type app struct {
	fs     afero.Fs
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	now    func() time.Time

	svc       *simulator.Service
	providers bootstrap.RuntimeProviders
}

func run(ctx context.Context, args []string, a *app) error {
	cleanupTelemetry, err := setupTelemetry(a.getenv, a.stderr)
	if err != nil {
		return err
	}
	defer cleanupTelemetry()

	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	return root.ExecuteContext(ctx)
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "kobayashi",
		Short: "Crisis-communications training simulator",
		Long: `Kobayashi runs timed crisis-communications drills.

Every operation works without provider credentials by answering from the
deterministic engine. Configure KOBAYASHI_LLM_* and KOBAYASHI_TTS_* (or the
vendor variables such as ANTHROPIC_API_KEY) to enable live generation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCommand(a),
		newGenerateCommand(a),
		newEvaluateCommand(a),
		newReporterCommand(a),
		newReportCommand(a),
		newTTSCommand(a),
		newDemoCommand(a),
		newProvidersCommand(a),
	)
	return root
}

func setupTelemetry(getenv func(string) string, stderr io.Writer) (func(), error) {
	previous := telemetry.DefaultEmitter()

	pipeline, err := telemetry.NewPipelineFromEnv(getenv, stderr)
	if err != nil {
		return nil, fmt.Errorf("telemetry setup failed: %w", err)
	}
	if pipeline == nil {
		return func() {
			telemetry.SetDefaultEmitter(previous)
		}, nil
	}

	telemetry.SetDefaultEmitter(pipeline)
	return func() {
		_ = pipeline.Close()
		telemetry.SetDefaultEmitter(previous)
	}, nil
}

// service builds the simulator on first use.
func (a *app) service() (*simulator.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	providers, err := bootstrap.Build(a.getenv, bootstrap.Options{})
	if err != nil {
		return nil, fmt.Errorf("provider bootstrap failed: %w", err)
	}
	cfg, err := simulator.ConfigFromEnv(a.getenv)
	if err != nil {
		return nil, err
	}
	svc, err := simulator.New(cfg, providers, simulator.WithClock(a.now))
	if err != nil {
		return nil, err
	}
	a.svc = svc
	a.providers = providers
	return svc, nil
}

func newProvidersCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the providers configured in the environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.service(); err != nil {
				return err
			}
			summary, err := bootstrap.Summary(a.providers.Catalog)
			if err != nil {
				return fmt.Errorf("provider summary failed: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "kobayashi: %s\n", summary)
			return err
		},
	}
}
