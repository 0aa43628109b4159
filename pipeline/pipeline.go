package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Strategy identifies how a pipeline walks its stages
type Strategy int

const (
	// ShortCircuit walks stages in order until one returns false
	ShortCircuit Strategy = iota
	// Wrapped hands each stage a continuation to the rest of the chain
	Wrapped
)

// String returns the strategy name
func (s Strategy) String() string {
	switch s {
	case ShortCircuit:
		return "short-circuit"
	case Wrapped:
		return "wrapped"
	default:
		return "unknown"
	}
}

// Pipeline is an ordered list of stages. Registration order is execution
// order. The list is frozen once the first run starts, after which the
// pipeline can be run any number of times, concurrently if needed.
type Pipeline struct {
	name    string
	logger  *slog.Logger
	mu      sync.RWMutex
	stages  []Stage
	started atomic.Bool
}

// New creates a new empty pipeline
func New(name string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		name:   name,
		logger: logger,
		stages: make([]Stage, 0),
	}
}

// Add appends a stage to the pipeline. Adding stages after a run has started
// panics.
func (p *Pipeline) Add(stage Stage) *Pipeline {
	if stage == nil {
		panic("pipeline: nil stage")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.Load() {
		panic("pipeline: Add called after the first run")
	}
	p.stages = append(p.stages, stage)
	return p
}

// Name returns the pipeline name
func (p *Pipeline) Name() string {
	return p.name
}

// Len returns the number of stages
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.stages)
}

// Stages returns the stage names in execution order
func (p *Pipeline) Stages() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Supports reports whether every stage implements the strategy's capability
func (p *Pipeline) Supports(strategy Strategy) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return checkCapabilities(strategy, p.stages) == nil
}

// RunShortCircuit walks the stages in order. It returns false as soon as a
// stage rejects the request, and true when every stage passes. An empty
// pipeline passes.
func (p *Pipeline) RunShortCircuit(ctx context.Context, rc *Context) (bool, error) {
	stages, err := p.begin(ShortCircuit, rc)
	if err != nil {
		return false, err
	}

	for i, stage := range stages {
		filter := stage.(FilterStage)

		rc.clearReason()
		pass, err := filter.Filter(ctx, rc)
		if err != nil {
			return false, p.fault(rc, newStageError(ShortCircuit, i, stage, err))
		}

		if !pass {
			rc.reject(i, stage.Name())
			p.logger.Debug("request rejected",
				"pipeline", p.name,
				"runId", rc.ID(),
				"stage", stage.Name(),
				"index", i,
			)
			return false, nil
		}
	}

	return true, nil
}

// RunWrapped runs the stages as nested wrap-around calls. Before-logic runs
// in registration order and after-logic in reverse order. A stage that does
// not call its continuation truncates the chain.
func (p *Pipeline) RunWrapped(ctx context.Context, rc *Context) error {
	stages, err := p.begin(Wrapped, rc)
	if err != nil {
		return err
	}

	r := &wrappedRun{ctx: ctx, rc: rc, stages: stages}
	err = r.advance()
	if r.fault != nil {
		return p.fault(rc, r.fault)
	}
	return err
}

func (p *Pipeline) begin(strategy Strategy, rc *Context) ([]Stage, error) {
	if rc == nil {
		return nil, ErrNilContext
	}

	p.mu.RLock()
	p.started.Store(true)
	stages := p.stages[:len(p.stages):len(p.stages)]
	p.mu.RUnlock()

	if err := checkCapabilities(strategy, stages); err != nil {
		return nil, err
	}

	if !rc.claim() {
		return nil, ErrContextReused
	}

	return stages, nil
}

func (p *Pipeline) fault(rc *Context, err error) error {
	rc.seal()
	p.logger.Debug("stage failed",
		"pipeline", p.name,
		"runId", rc.ID(),
		"error", err,
	)
	return err
}

func checkCapabilities(strategy Strategy, stages []Stage) error {
	for i, stage := range stages {
		var ok bool
		switch strategy {
		case ShortCircuit:
			_, ok = stage.(FilterStage)
		case Wrapped:
			_, ok = stage.(InterceptStage)
		}
		if !ok {
			return &StageError{Strategy: strategy, Index: i, Stage: stage.Name(), Err: ErrMissingCapability}
		}
	}
	return nil
}

// wrappedRun is the cursor of one wrap-around run. It is never shared
// between runs.
type wrappedRun struct {
	ctx    context.Context
	rc     *Context
	stages []Stage
	cursor int
	fault  error
}

func (r *wrappedRun) advance() error {
	if r.cursor == len(r.stages) {
		return nil
	}

	index := r.cursor
	stage := r.stages[index]
	r.cursor++

	called := false
	next := func() error {
		if called {
			return r.fail(&StageError{Strategy: Wrapped, Index: index, Stage: stage.Name(), Err: ErrContinuationReused})
		}
		called = true
		return r.advance()
	}

	if err := stage.(InterceptStage).Intercept(r.ctx, r.rc, next); err != nil {
		// An error already recorded by a deeper stage of this run keeps its position.
		if r.fault != nil {
			return r.fault
		}
		return r.fail(newStageError(Wrapped, index, stage, err))
	}
	return nil
}

// fail keeps the first failure of the run so that it surfaces even when an
// outer stage discards the error its continuation returned.
func (r *wrappedRun) fail(err error) error {
	if r.fault == nil {
		r.fault = err
		r.rc.seal()
	}
	return r.fault
}

func newStageError(strategy Strategy, index int, stage Stage, err error) error {
	return &StageError{Strategy: strategy, Index: index, Stage: stage.Name(), Err: err}
}
