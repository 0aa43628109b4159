// Copyright 2024 Mmate Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stagechain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/glimte/stagechain/config"
	"github.com/glimte/stagechain/internal/journal"
	"github.com/glimte/stagechain/internal/reliability"
	"github.com/glimte/stagechain/pipeline"
)

// Runner provides the main entry point for stagechain. It owns one pipeline
// and performs one run per request, each over a fresh context.
type Runner struct {
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
	retry    reliability.RetryPolicy
	metrics  pipeline.MetricsCollector
	journal  journal.Recorder
	values   map[string]interface{}
}

// Result is the outcome of one logical request
type Result struct {
	RunID     string
	Strategy  pipeline.Strategy
	Accepted  bool
	Rejection *pipeline.Rejection
	Fragments []string
	Response  string
	Attempts  int
	Duration  time.Duration
}

// RunnerOption configures a Runner
type RunnerOption func(*runnerConfig)

type runnerConfig struct {
	logger         *slog.Logger
	retry          reliability.RetryPolicy
	metrics        pipeline.MetricsCollector
	tracerProvider trace.TracerProvider
	journal        journal.Recorder
	values         map[string]interface{}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(c *runnerConfig) {
		c.logger = logger
	}
}

// WithRetryPolicy sets the policy for re-running faulted runs
func WithRetryPolicy(policy reliability.RetryPolicy) RunnerOption {
	return func(c *runnerConfig) {
		c.retry = policy
	}
}

// WithMetrics records run outcomes in collector
func WithMetrics(collector pipeline.MetricsCollector) RunnerOption {
	return func(c *runnerConfig) {
		c.metrics = collector
	}
}

// WithTracerProvider sets the provider used by configured tracing stages
func WithTracerProvider(provider trace.TracerProvider) RunnerOption {
	return func(c *runnerConfig) {
		c.tracerProvider = provider
	}
}

// WithJournal records every finished request in recorder
func WithJournal(recorder journal.Recorder) RunnerOption {
	return func(c *runnerConfig) {
		c.journal = recorder
	}
}

// WithValues seeds every run context with structured request fields
func WithValues(values map[string]interface{}) RunnerOption {
	return func(c *runnerConfig) {
		c.values = values
	}
}

func newRunnerConfig(options []RunnerOption) *runnerConfig {
	cfg := &runnerConfig{}
	for _, opt := range options {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return cfg
}

// NewRunner creates a runner for an assembled pipeline
func NewRunner(p *pipeline.Pipeline, options ...RunnerOption) *Runner {
	cfg := newRunnerConfig(options)
	if cfg.retry == nil {
		cfg.retry = reliability.NoRetry{}
	}

	return &Runner{
		pipeline: p,
		logger:   cfg.logger,
		retry:    cfg.retry,
		metrics:  cfg.metrics,
		journal:  cfg.journal,
		values:   cfg.values,
	}
}

// NewRunnerFromConfig assembles the configured pipeline and wraps it in a runner.
// Options override the configured retry policy.
func NewRunnerFromConfig(cfg *config.Config, options ...RunnerOption) (*Runner, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	rc := newRunnerConfig(options)

	if rc.retry == nil {
		policy, err := RetryPolicyFromConfig(cfg.Retry)
		if err != nil {
			return nil, err
		}
		options = append(options, WithRetryPolicy(policy))
	}

	p, err := BuildPipeline(cfg.Pipeline, Dependencies{
		Logger:         rc.logger,
		Metrics:        rc.metrics,
		TracerProvider: rc.tracerProvider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline %s: %w", cfg.Pipeline.Name, err)
	}

	rc.logger.Debug("pipeline assembled", "pipeline", p.Name(), "stages", p.Stages())

	return NewRunner(p, options...), nil
}

// RetryPolicyFromConfig converts the retry section of a configuration
func RetryPolicyFromConfig(cfg config.RetryConfig) (reliability.RetryPolicy, error) {
	initial, err := cfg.Initial()
	if err != nil {
		return nil, err
	}
	maxInterval, err := cfg.Max()
	if err != nil {
		return nil, err
	}

	switch cfg.Policy {
	case "", "none":
		return reliability.NoRetry{}, nil
	case "fixed":
		return reliability.NewFixedDelay(initial, cfg.MaxRetries), nil
	case "linear":
		return reliability.NewLinearBackoff(initial, cfg.MaxRetries), nil
	case "exponential":
		policy := reliability.NewExponentialBackoff(initial, maxInterval, cfg.Multiplier, cfg.MaxRetries)
		policy.Jitter = cfg.Jitter
		return policy, nil
	default:
		return nil, fmt.Errorf("%w: unknown retry policy %q", config.ErrInvalidConfig, cfg.Policy)
	}
}

// Pipeline returns the runner's pipeline
func (r *Runner) Pipeline() *pipeline.Pipeline {
	return r.pipeline
}

// Check runs the request through the short-circuit chain. A rejection is
// reported through Result.Accepted, not as an error.
func (r *Runner) Check(ctx context.Context, request string) (*Result, error) {
	return r.run(ctx, pipeline.ShortCircuit, request)
}

// Handle runs the request through the wrap-around chain and returns the
// accumulated response.
func (r *Runner) Handle(ctx context.Context, request string) (*Result, error) {
	return r.run(ctx, pipeline.Wrapped, request)
}

// run performs one logical request. On failure the result of the last
// attempt is returned alongside the error, when an attempt was made.
func (r *Runner) run(ctx context.Context, strategy pipeline.Strategy, request string) (*Result, error) {
	start := time.Now()
	name := r.pipeline.Name()

	var (
		rc       *pipeline.Context
		accepted bool
	)

	attempts, err := reliability.Retry(ctx, r.retry, func(attempt int) error {
		rc = pipeline.NewContextWithValues(request, r.values)
		if attempt > 0 {
			r.logger.Warn("retrying run",
				"pipeline", name,
				"runId", rc.ID(),
				"attempt", attempt+1,
			)
		}

		var runErr error
		switch strategy {
		case pipeline.ShortCircuit:
			accepted, runErr = r.pipeline.RunShortCircuit(ctx, rc)
		default:
			runErr = r.pipeline.RunWrapped(ctx, rc)
			accepted = runErr == nil
		}
		return runErr
	})
	duration := time.Since(start)

	if r.metrics != nil {
		r.metrics.IncrementRunCount(name)
		r.metrics.RecordProcessingTime(name, duration)
	}

	if rc == nil {
		return nil, err
	}

	result := &Result{
		RunID:     rc.ID(),
		Strategy:  strategy,
		Accepted:  accepted && err == nil,
		Fragments: rc.Fragments(),
		Response:  rc.Response(),
		Attempts:  attempts,
		Duration:  duration,
	}
	if rejection, ok := rc.Rejection(); ok {
		result.Rejection = rejection
	}

	r.record(ctx, name, request, result, err)

	if err != nil {
		if r.metrics != nil {
			r.metrics.IncrementErrorCount(name, pipeline.ErrorType(err))
		}
		r.logger.Error("run failed",
			"pipeline", name,
			"strategy", strategy.String(),
			"runId", result.RunID,
			"attempts", attempts,
			"error", err,
		)
		return result, err
	}

	if result.Rejection != nil && r.metrics != nil {
		r.metrics.IncrementRejectionCount(name, result.Rejection.Stage)
	}

	r.logger.Info("run completed",
		"pipeline", name,
		"strategy", strategy.String(),
		"runId", result.RunID,
		"accepted", result.Accepted,
		"attempts", attempts,
		"duration", duration,
	)

	return result, nil
}

func (r *Runner) record(ctx context.Context, name, request string, result *Result, err error) {
	if r.journal == nil {
		return
	}

	entry := &journal.Entry{
		RunID:     result.RunID,
		Pipeline:  name,
		Strategy:  result.Strategy.String(),
		Request:   request,
		Outcome:   journal.OutcomeAccepted,
		Fragments: len(result.Fragments),
		Attempts:  result.Attempts,
		Duration:  result.Duration,
	}
	switch {
	case err != nil:
		entry.Outcome = journal.OutcomeFailed
		entry.Error = err.Error()
	case result.Rejection != nil:
		entry.Outcome = journal.OutcomeRejected
		entry.Stage = result.Rejection.Stage
	}

	if jerr := r.journal.Record(ctx, entry); jerr != nil {
		r.logger.Warn("failed to record run", "runId", result.RunID, "error", jerr)
	}
}
