// Package inspection provides the car inspection stages: one stage per part,
// usable as a filter or as a wrap-around stage.
package inspection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glimte/stagechain/pipeline"
)

// ErrMalformedRequest is returned when the request is blank
var ErrMalformedRequest = errors.New("inspection: malformed request")

// Part names a car part and the keyword that requests its inspection
type Part struct {
	Name    string `koanf:"name" yaml:"name"`
	Keyword string `koanf:"keyword" yaml:"keyword"`
}

var (
	Engine  = Part{Name: "Engine", Keyword: "engine"}
	Gearbox = Part{Name: "Gearbox", Keyword: "gear"}
	Carbody = Part{Name: "Carbody", Keyword: "car body"}
)

// DefaultParts returns the parts of a full inspection in order
func DefaultParts() []Part {
	return []Part{Engine, Gearbox, Carbody}
}

// Mentioned reports whether the request asks for this part
func (p Part) Mentioned(request string) bool {
	return strings.Contains(strings.ToLower(request), strings.ToLower(p.Keyword))
}

// Inspector checks one part. As a filter it always passes; as a wrap-around
// stage it appends "<Name> checking" before and "<Name> done" after the rest
// of the chain.
type Inspector struct {
	part   Part
	logger *slog.Logger
}

// NewInspector creates a new inspector for part
func NewInspector(part Part, logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}

	return &Inspector{part: part, logger: logger}
}

// Part returns the inspected part
func (i *Inspector) Part() Part {
	return i.part
}

// Filter implements pipeline.FilterStage
func (i *Inspector) Filter(ctx context.Context, rc *pipeline.Context) (bool, error) {
	if err := validate(rc); err != nil {
		return false, err
	}

	if i.part.Mentioned(rc.Request()) {
		i.logger.Info("part checked", "part", i.part.Name, "runId", rc.ID())
	}
	return true, nil
}

// Intercept implements pipeline.InterceptStage
func (i *Inspector) Intercept(ctx context.Context, rc *pipeline.Context, next pipeline.Continuation) error {
	if err := validate(rc); err != nil {
		return err
	}

	if i.part.Mentioned(rc.Request()) {
		i.logger.Info("checking part", "part", i.part.Name, "runId", rc.ID())
	}
	rc.Append(i.part.Name + " checking")

	if err := next(); err != nil {
		return err
	}

	rc.Append(i.part.Name + " done")
	return nil
}

// Name implements pipeline.Stage
func (i *Inspector) Name() string {
	return i.part.Name
}

// Requirement rejects requests that do not mention its part
type Requirement struct {
	part Part
}

// NewRequirement creates a filter that requires part to be mentioned
func NewRequirement(part Part) *Requirement {
	return &Requirement{part: part}
}

// Filter implements pipeline.FilterStage
func (r *Requirement) Filter(ctx context.Context, rc *pipeline.Context) (bool, error) {
	if err := validate(rc); err != nil {
		return false, err
	}

	if !r.part.Mentioned(rc.Request()) {
		return rc.Reject(fmt.Sprintf("request does not mention %q", r.part.Keyword)), nil
	}
	return true, nil
}

// Name implements pipeline.Stage
func (r *Requirement) Name() string {
	return "Require" + r.part.Name
}

// NewPipeline assembles a pipeline inspecting parts in order
func NewPipeline(name string, logger *slog.Logger, parts ...Part) *pipeline.Pipeline {
	p := pipeline.New(name, logger)
	for _, part := range parts {
		p.Add(NewInspector(part, logger))
	}
	return p
}

func validate(rc *pipeline.Context) error {
	if strings.TrimSpace(rc.Request()) == "" {
		return fmt.Errorf("%w: empty request", ErrMalformedRequest)
	}
	return nil
}
