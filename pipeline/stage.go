package pipeline

import (
	"context"
)

// Stage is a unit of ordered processing. Its identity within a pipeline is its
// position; the name is only used for logging and error reporting.
type Stage interface {
	// Name returns the stage name for logging and debugging
	Name() string
}

// FilterStage is the short-circuit capability of a stage
type FilterStage interface {
	Stage

	// Filter inspects the run context and returns false to halt the chain
	Filter(ctx context.Context, rc *Context) (bool, error)
}

// Continuation runs the remainder of a wrap-around chain
type Continuation func() error

// InterceptStage is the wrap-around capability of a stage
type InterceptStage interface {
	Stage

	// Intercept processes the run context and calls next at most once
	Intercept(ctx context.Context, rc *Context, next Continuation) error
}

// FilterFunc is a function adapter for FilterStage
type FilterFunc struct {
	name string
	fn   func(ctx context.Context, rc *Context) (bool, error)
}

// NewFilterFunc creates a new function-based filter stage
func NewFilterFunc(name string, fn func(ctx context.Context, rc *Context) (bool, error)) *FilterFunc {
	return &FilterFunc{name: name, fn: fn}
}

// Filter implements FilterStage
func (f *FilterFunc) Filter(ctx context.Context, rc *Context) (bool, error) {
	return f.fn(ctx, rc)
}

// Name implements Stage
func (f *FilterFunc) Name() string {
	return f.name
}

// InterceptFunc is a function adapter for InterceptStage
type InterceptFunc struct {
	name string
	fn   func(ctx context.Context, rc *Context, next Continuation) error
}

// NewInterceptFunc creates a new function-based wrap-around stage
func NewInterceptFunc(name string, fn func(ctx context.Context, rc *Context, next Continuation) error) *InterceptFunc {
	return &InterceptFunc{name: name, fn: fn}
}

// Intercept implements InterceptStage
func (i *InterceptFunc) Intercept(ctx context.Context, rc *Context, next Continuation) error {
	return i.fn(ctx, rc, next)
}

// Name implements Stage
func (i *InterceptFunc) Name() string {
	return i.name
}

// Around is a wrap-around stage built from separate before and after steps.
// The after step only runs when the rest of the chain succeeded.
type Around struct {
	name   string
	before func(ctx context.Context, rc *Context) error
	after  func(ctx context.Context, rc *Context) error
}

// NewAround creates a wrap-around stage; either step may be nil
func NewAround(name string, before, after func(ctx context.Context, rc *Context) error) *Around {
	return &Around{name: name, before: before, after: after}
}

// Intercept implements InterceptStage
func (a *Around) Intercept(ctx context.Context, rc *Context, next Continuation) error {
	if a.before != nil {
		if err := a.before(ctx, rc); err != nil {
			return err
		}
	}

	if err := next(); err != nil {
		return err
	}

	if a.after != nil {
		return a.after(ctx, rc)
	}
	return nil
}

// Name implements Stage
func (a *Around) Name() string {
	return a.name
}
