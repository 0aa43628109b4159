// Package pipeline provides an ordered interceptor pipeline with two execution
// strategies over the same stage list.
//
// Stages declare what they can do by implementing one or both capability
// interfaces:
//   - FilterStage: inspects the request and returns false to halt the walk
//   - InterceptStage: runs "before" logic, calls next, then runs "after" logic
//
// A Pipeline runs its stages either as a short-circuit filter chain
// (RunShortCircuit) or as a wrap-around chain (RunWrapped). In the wrap-around
// form "before" actions execute in registration order and "after" actions in
// reverse order, the same nesting a stack of deferred calls produces.
//
// Built-in stages:
//   - LoggingStage: logs stage progress and run duration (both capabilities)
//   - MetricsStage: records run counts, durations and failures
//   - TracingStage: wraps the remainder of the chain in an OpenTelemetry span
//   - CompositeFilter, OrFilter, MatchFilter, ValueFilter: request filters
//   - ConditionalStage: applies an interceptor only when a filter matches
//
// Example usage:
//
//	p := pipeline.New("inspection", logger).
//		Add(pipeline.NewLoggingStage(logger)).
//		Add(engine).
//		Add(gearbox)
//
//	rc := pipeline.NewContext("check engine and gear box")
//	if err := p.RunWrapped(ctx, rc); err != nil {
//		return err
//	}
//	fmt.Println(rc.Response())
//
// Custom wrap-around stages follow the usual shape:
//
//	func (s *TimingStage) Intercept(ctx context.Context, rc *pipeline.Context, next pipeline.Continuation) error {
//		start := time.Now()
//		if err := next(); err != nil {
//			return err
//		}
//		rc.Append(fmt.Sprintf("took %v", time.Since(start)))
//		return nil
//	}
//
// A continuation may be called at most once. A second call is a programming
// error and fails the run with ErrContinuationReused.
package pipeline
