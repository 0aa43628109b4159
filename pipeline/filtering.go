package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
)

// CompositeFilter combines multiple filters with AND logic
type CompositeFilter struct {
	name    string
	filters []FilterStage
}

// NewCompositeFilter creates a new composite filter
func NewCompositeFilter(name string, filters ...FilterStage) *CompositeFilter {
	return &CompositeFilter{name: name, filters: filters}
}

// Filter implements FilterStage - all filters must pass
func (f *CompositeFilter) Filter(ctx context.Context, rc *Context) (bool, error) {
	for _, filter := range f.filters {
		pass, err := filter.Filter(ctx, rc)
		if err != nil {
			return false, err
		}
		if !pass {
			return false, nil
		}
	}
	return true, nil
}

// Name implements Stage
func (f *CompositeFilter) Name() string {
	return f.name
}

// OrFilter combines multiple filters with OR logic
type OrFilter struct {
	name    string
	filters []FilterStage
}

// NewOrFilter creates a new OR filter
func NewOrFilter(name string, filters ...FilterStage) *OrFilter {
	return &OrFilter{name: name, filters: filters}
}

// Filter implements FilterStage - at least one filter must pass
func (f *OrFilter) Filter(ctx context.Context, rc *Context) (bool, error) {
	for _, filter := range f.filters {
		pass, err := filter.Filter(ctx, rc)
		if err != nil {
			return false, err
		}
		if pass {
			return true, nil
		}
	}
	return false, nil
}

// Name implements Stage
func (f *OrFilter) Name() string {
	return f.name
}

// MatchFilter passes requests matching a regular expression
type MatchFilter struct {
	name    string
	pattern *regexp.Regexp
}

// NewMatchFilter compiles pattern into a new match filter
func NewMatchFilter(name, pattern string) (*MatchFilter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid match pattern for %s: %w", name, err)
	}
	return &MatchFilter{name: name, pattern: re}, nil
}

// Filter implements FilterStage
func (f *MatchFilter) Filter(ctx context.Context, rc *Context) (bool, error) {
	if f.pattern.MatchString(rc.Request()) {
		return true, nil
	}
	return rc.Reject(fmt.Sprintf("request does not match %s", f.pattern)), nil
}

// Name implements Stage
func (f *MatchFilter) Name() string {
	return f.name
}

// ValueFilter passes runs whose context holds an expected value
type ValueFilter struct {
	key      string
	expected interface{}
}

// NewValueFilter creates a filter that checks a per-run value
func NewValueFilter(key string, expected interface{}) *ValueFilter {
	return &ValueFilter{key: key, expected: expected}
}

// Filter implements FilterStage
func (f *ValueFilter) Filter(ctx context.Context, rc *Context) (bool, error) {
	value, exists := rc.Get(f.key)
	if !exists || !sameValue(value, f.expected) {
		return rc.Reject(fmt.Sprintf("value %q is not %v", f.key, f.expected)), nil
	}
	return true, nil
}

// Name implements Stage
func (f *ValueFilter) Name() string {
	return fmt.Sprintf("ValueFilter[%s]", f.key)
}

// sameValue compares structurally, falling back to the printed form so that
// a value read from the environment as "3" matches a configured 3.
func sameValue(actual, expected interface{}) bool {
	if reflect.DeepEqual(actual, expected) {
		return true
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

// ConditionalStage runs an interceptor only if a condition passes.
// Otherwise the chain continues as if the interceptor were absent.
type ConditionalStage struct {
	condition   FilterStage
	interceptor InterceptStage
}

// NewConditionalStage creates a new conditional stage
func NewConditionalStage(condition FilterStage, interceptor InterceptStage) *ConditionalStage {
	return &ConditionalStage{
		condition:   condition,
		interceptor: interceptor,
	}
}

// Intercept implements InterceptStage
func (s *ConditionalStage) Intercept(ctx context.Context, rc *Context, next Continuation) error {
	shouldExecute, err := s.condition.Filter(ctx, rc)
	if err != nil {
		return err
	}

	if shouldExecute {
		return s.interceptor.Intercept(ctx, rc, next)
	}

	return next()
}

// Name implements Stage
func (s *ConditionalStage) Name() string {
	return fmt.Sprintf("ConditionalStage[%s]", s.interceptor.Name())
}
