package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Built-in stages

// LoggingStage logs request progress. It supports both strategies.
type LoggingStage struct {
	logger *slog.Logger
}

// NewLoggingStage creates a new logging stage
func NewLoggingStage(logger *slog.Logger) *LoggingStage {
	if logger == nil {
		logger = slog.Default()
	}

	return &LoggingStage{logger: logger}
}

// Filter implements FilterStage
func (s *LoggingStage) Filter(ctx context.Context, rc *Context) (bool, error) {
	s.logger.Info("filtering request",
		"runId", rc.ID(),
		"request", rc.Request(),
	)
	return true, nil
}

// Intercept implements InterceptStage
func (s *LoggingStage) Intercept(ctx context.Context, rc *Context, next Continuation) error {
	start := time.Now()

	s.logger.Info("processing request",
		"runId", rc.ID(),
		"request", rc.Request(),
	)

	err := next()
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("request processing failed",
			"runId", rc.ID(),
			"duration", duration,
			"error", err,
		)
		return err
	}

	s.logger.Info("request processed successfully",
		"runId", rc.ID(),
		"duration", duration,
		"fragments", len(rc.Fragments()),
	)
	return nil
}

// Name implements Stage
func (s *LoggingStage) Name() string {
	return "LoggingStage"
}

// MetricsCollector defines the interface for collecting pipeline metrics
type MetricsCollector interface {
	IncrementRunCount(pipeline string)
	RecordProcessingTime(pipeline string, duration time.Duration)
	IncrementErrorCount(pipeline string, errorType string)
	IncrementRejectionCount(pipeline string, stage string)
}

// Error types reported to a MetricsCollector
const (
	ErrorTypeStageFault        = "stage_fault"
	ErrorTypeProtocolViolation = "protocol_violation"
)

// ErrorType classifies a run error for metrics
func ErrorType(err error) string {
	if IsProtocolViolation(err) {
		return ErrorTypeProtocolViolation
	}
	return ErrorTypeStageFault
}

// MetricsStage records run counts and the duration of the rest of the chain.
// As a filter it only counts the runs that reach it.
type MetricsStage struct {
	collector MetricsCollector
	key       string
}

// NewMetricsStage creates a new metrics stage reporting under key
func NewMetricsStage(collector MetricsCollector, key string) *MetricsStage {
	return &MetricsStage{collector: collector, key: key}
}

// Filter implements FilterStage
func (s *MetricsStage) Filter(ctx context.Context, rc *Context) (bool, error) {
	s.collector.IncrementRunCount(s.key)
	return true, nil
}

// Intercept implements InterceptStage
func (s *MetricsStage) Intercept(ctx context.Context, rc *Context, next Continuation) error {
	start := time.Now()

	s.collector.IncrementRunCount(s.key)

	err := next()
	s.collector.RecordProcessingTime(s.key, time.Since(start))

	if err != nil {
		s.collector.IncrementErrorCount(s.key, ErrorType(err))
	}

	return err
}

// Name implements Stage
func (s *MetricsStage) Name() string {
	return "MetricsStage"
}

const tracerName = "github.com/glimte/stagechain/pipeline"

// TracingStage wraps the remainder of the chain in an OpenTelemetry span.
// As a filter it records a zero-length span marking that the walk reached it.
type TracingStage struct {
	tracer   trace.Tracer
	spanName string
}

// NewTracingStage creates a new tracing stage. A nil provider uses the global one.
func NewTracingStage(provider trace.TracerProvider, spanName string) *TracingStage {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	if spanName == "" {
		spanName = "pipeline.run"
	}

	return &TracingStage{
		tracer:   provider.Tracer(tracerName),
		spanName: spanName,
	}
}

// Filter implements FilterStage
func (s *TracingStage) Filter(ctx context.Context, rc *Context) (bool, error) {
	_, span := s.tracer.Start(ctx, s.spanName,
		trace.WithAttributes(attribute.String("pipeline.run_id", rc.ID())),
	)
	span.End()
	return true, nil
}

// Intercept implements InterceptStage
func (s *TracingStage) Intercept(ctx context.Context, rc *Context, next Continuation) error {
	_, span := s.tracer.Start(ctx, s.spanName,
		trace.WithAttributes(
			attribute.String("pipeline.run_id", rc.ID()),
			attribute.Int("pipeline.request_length", len(rc.Request())),
		),
	)
	defer span.End()

	err := next()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.Int("pipeline.fragments", len(rc.Fragments())))
	return nil
}

// Name implements Stage
func (s *TracingStage) Name() string {
	return "TracingStage"
}
