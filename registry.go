package stagechain

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/glimte/stagechain/config"
	"github.com/glimte/stagechain/inspection"
	"github.com/glimte/stagechain/pipeline"
)

var (
	// ErrUnknownStageType is returned for a stage type with no registered factory
	ErrUnknownStageType = errors.New("stagechain: unknown stage type")

	// ErrInvalidStage is returned when a stage definition lacks a required field
	ErrInvalidStage = errors.New("stagechain: invalid stage definition")
)

// Dependencies are shared collaborators handed to stage factories
type Dependencies struct {
	Logger         *slog.Logger
	Metrics        pipeline.MetricsCollector
	TracerProvider trace.TracerProvider
	PipelineName   string
}

// StageFactory builds a stage from its configuration
type StageFactory func(def config.StageConfig, deps Dependencies) (pipeline.Stage, error)

var (
	registryMu sync.RWMutex
	factories  = map[string]StageFactory{
		"logging": newLoggingStage,
		"metrics": newMetricsStage,
		"tracing": newTracingStage,
		"inspect": newInspectStage,
		"require": newRequireStage,
		"match":   newMatchStage,
		"value":   newValueStage,
	}
)

// RegisterStageType registers factory under kind, replacing any existing one
func RegisterStageType(kind string, factory StageFactory) error {
	if kind == "" {
		return fmt.Errorf("stage type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory for stage type %s cannot be nil", kind)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	factories[kind] = factory
	return nil
}

// StageTypes lists the registered stage types
func StageTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]string, 0, len(factories))
	for kind := range factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// BuildPipeline assembles a pipeline from its configuration, adding stages in
// the configured order.
func BuildPipeline(cfg config.PipelineConfig, deps Dependencies) (*pipeline.Pipeline, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.PipelineName == "" {
		deps.PipelineName = cfg.Name
	}

	p := pipeline.New(cfg.Name, deps.Logger)

	for i, def := range cfg.Stages {
		registryMu.RLock()
		factory, ok := factories[def.Type]
		registryMu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("stage %d: %w: %q", i, ErrUnknownStageType, def.Type)
		}

		stage, err := factory(def, deps)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, def.Type, err)
		}
		p.Add(stage)
	}

	return p, nil
}

func newLoggingStage(def config.StageConfig, deps Dependencies) (pipeline.Stage, error) {
	return pipeline.NewLoggingStage(deps.Logger), nil
}

func newMetricsStage(def config.StageConfig, deps Dependencies) (pipeline.Stage, error) {
	if deps.Metrics == nil {
		return nil, fmt.Errorf("%w: metrics stage needs a collector", ErrInvalidStage)
	}

	// The Runner already reports under the pipeline name.
	key := def.Name
	if key == "" {
		key = deps.PipelineName + "/stages"
	}
	return pipeline.NewMetricsStage(deps.Metrics, key), nil
}

func newTracingStage(def config.StageConfig, deps Dependencies) (pipeline.Stage, error) {
	return pipeline.NewTracingStage(deps.TracerProvider, def.Name), nil
}

func newInspectStage(def config.StageConfig, deps Dependencies) (pipeline.Stage, error) {
	part, err := partFromConfig(def)
	if err != nil {
		return nil, err
	}
	return inspection.NewInspector(part, deps.Logger), nil
}

func newRequireStage(def config.StageConfig, deps Dependencies) (pipeline.Stage, error) {
	part, err := partFromConfig(def)
	if err != nil {
		return nil, err
	}
	return inspection.NewRequirement(part), nil
}

func newMatchStage(def config.StageConfig, deps Dependencies) (pipeline.Stage, error) {
	if def.Pattern == "" {
		return nil, fmt.Errorf("%w: match stage needs a pattern", ErrInvalidStage)
	}

	name := def.Name
	if name == "" {
		name = "MatchFilter"
	}
	return pipeline.NewMatchFilter(name, def.Pattern)
}

func newValueStage(def config.StageConfig, deps Dependencies) (pipeline.Stage, error) {
	if def.Key == "" {
		return nil, fmt.Errorf("%w: value stage needs a key", ErrInvalidStage)
	}
	return pipeline.NewValueFilter(def.Key, def.Value), nil
}

func partFromConfig(def config.StageConfig) (inspection.Part, error) {
	if def.Name == "" {
		return inspection.Part{}, fmt.Errorf("%w: %s stage needs a name", ErrInvalidStage, def.Type)
	}

	part := inspection.Part{Name: def.Name, Keyword: def.Keyword}
	if part.Keyword == "" {
		part.Keyword = def.Name
	}
	return part, nil
}
