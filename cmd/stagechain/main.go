package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/glimte/stagechain"
	"github.com/glimte/stagechain/config"
	"github.com/glimte/stagechain/inspection"
	"github.com/glimte/stagechain/internal/journal"
	"github.com/glimte/stagechain/internal/telemetry"
	"github.com/glimte/stagechain/metrics"
	"github.com/glimte/stagechain/pipeline"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// errRejected makes `check` exit non-zero without printing usage
var errRejected = errors.New("request rejected")

const (
	demoRequest = "check engine, gear box and car body"
	historySize = 20
)

type app struct {
	configPath string
	verbose    bool
	trace      bool

	cfg       *config.Config
	logger    *slog.Logger
	collector *metrics.Collector
	history   *journal.InMemoryJournal
	tracer    trace.TracerProvider
	shutdown  func(context.Context) error
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "stagechain",
		Short: "Run requests through an ordered stage pipeline",
		Long: `stagechain runs requests through an ordered pipeline of stages, either as a
short-circuit filter chain or as a wrap-around chain that builds a response.`,
		Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.shutdown != nil {
				return a.shutdown(cmd.Context())
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&a.trace, "trace", false, "Export run spans to stderr")

	checkCmd := &cobra.Command{
		Use:   "check <request...>",
		Short: "Run a request through the filter chain",
		Long:  "Run a request through the short-circuit chain. Exits non-zero when a stage rejects it.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := a.newRunner()
			if err != nil {
				return err
			}

			result, err := runner.Check(cmd.Context(), strings.Join(args, " "))
			printResult(cmd.OutOrStdout(), result, err)
			if err != nil {
				return err
			}
			if !result.Accepted {
				return errRejected
			}
			return nil
		},
	}

	runCmd := &cobra.Command{
		Use:   "run <request...>",
		Short: "Run a request through the wrap-around chain",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := a.newRunner()
			if err != nil {
				return err
			}

			result, err := runner.Handle(cmd.Context(), strings.Join(args, " "))
			printResult(cmd.OutOrStdout(), result, err)
			return err
		},
	}

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the car inspection through both strategies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.demo(cmd.Context(), cmd.OutOrStdout())
		},
	}

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "Read requests interactively",
		Long: `Read requests line by line and run each through the wrap-around chain.
Prefix a line with "?" to run it through the filter chain instead.
":metrics" prints collected metrics, ":history" the latest runs and ":quit" exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.repl(cmd.Context(), cmd.OutOrStdout())
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	configShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Render(cmd.OutOrStdout(), a.cfg)
		},
	}

	stagesCmd := &cobra.Command{
		Use:   "stages",
		Short: "List registered stage types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, kind := range stagechain.StageTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), kind)
			}
			return nil
		},
	}

	configCmd.AddCommand(configShowCmd, stagesCmd)
	rootCmd.AddCommand(checkCmd, runCmd, demoCmd, replCmd, configCmd)

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	if a.trace {
		cfg.Tracing.Enabled = true
	}

	a.cfg = cfg
	a.logger = cfg.Logging.NewLogger(cmd.ErrOrStderr())
	a.collector = metrics.NewCollector()
	a.history = journal.NewInMemoryJournal()

	if cfg.Tracing.Enabled {
		tp, shutdown, err := telemetry.NewTracerProvider(cfg.Tracing.ServiceName, cmd.ErrOrStderr(), a.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		a.tracer = tp
		a.shutdown = shutdown
		cfg.Pipeline.Stages = withTracingStage(cfg.Pipeline.Stages)
	}

	return nil
}

// withTracingStage puts a tracing stage first unless one is configured
func withTracingStage(stages []config.StageConfig) []config.StageConfig {
	for _, s := range stages {
		if s.Type == "tracing" {
			return stages
		}
	}
	return append([]config.StageConfig{{Type: "tracing"}}, stages...)
}

func (a *app) options() []stagechain.RunnerOption {
	return []stagechain.RunnerOption{
		stagechain.WithLogger(a.logger),
		stagechain.WithMetrics(a.collector),
		stagechain.WithJournal(a.history),
		stagechain.WithTracerProvider(a.tracer),
	}
}

func (a *app) newRunner() (*stagechain.Runner, error) {
	return stagechain.NewRunnerFromConfig(a.cfg, a.options()...)
}

func (a *app) demo(ctx context.Context, w io.Writer) error {
	logger := a.logger
	if !a.verbose {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	parts := inspection.DefaultParts()
	inspect := stagechain.NewRunner(inspection.NewPipeline("inspection", logger, parts...), a.options()...)

	fmt.Fprintln(w, titleStyle.Render("Filter chain"))
	result, err := inspect.Check(ctx, demoRequest)
	printResult(w, result, err)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, titleStyle.Render("Wrap-around chain"))
	result, err = inspect.Handle(ctx, demoRequest)
	printResult(w, result, err)
	if err != nil {
		return err
	}

	gate := pipeline.New("gate", logger)
	for _, part := range parts {
		gate.Add(inspection.NewRequirement(part))
	}
	fmt.Fprintln(w, titleStyle.Render("Rejection"))
	result, err = stagechain.NewRunner(gate, a.options()...).Check(ctx, "check engine and gear box")
	printResult(w, result, err)
	if err != nil {
		return err
	}

	printSummary(w, a.collector.Summary())
	printHistory(w, a.history.Recent(historySize))
	return nil
}

func (a *app) repl(ctx context.Context, w io.Writer) error {
	runner, err := a.newRunner()
	if err != nil {
		return err
	}

	rl, err := readline.New("> ")
	if err != nil {
		return err
	}
	defer func() {
		_ = rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			break
		}
		line = strings.TrimSpace(line)

		switch {
		case line == "":
			continue
		case line == ":quit":
			return nil
		case line == ":metrics":
			printSummary(w, a.collector.Summary())
		case line == ":history":
			printHistory(w, a.history.Recent(historySize))
		case strings.HasPrefix(line, "?"):
			result, err := runner.Check(ctx, strings.TrimSpace(line[1:]))
			printResult(w, result, err)
		default:
			result, err := runner.Handle(ctx, line)
			printResult(w, result, err)
		}
	}

	return nil
}
