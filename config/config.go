// Package config loads runner and pipeline configuration from YAML files and
// STAGECHAIN_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates nested keys: STAGECHAIN_RETRY__MAX_RETRIES=3.
const EnvPrefix = "STAGECHAIN_"

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Logging  LoggingConfig  `koanf:"logging" yaml:"logging"`
	Tracing  TracingConfig  `koanf:"tracing" yaml:"tracing"`
	Retry    RetryConfig    `koanf:"retry" yaml:"retry"`
	Pipeline PipelineConfig `koanf:"pipeline" yaml:"pipeline"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level"`   // debug, info, warn, error
	Format string `koanf:"format" yaml:"format"` // text, json
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled" yaml:"enabled"`
	ServiceName string `koanf:"service_name" yaml:"service_name"`
}

// RetryConfig selects the whole-run retry policy. Durations are strings like "250ms".
type RetryConfig struct {
	Policy          string  `koanf:"policy" yaml:"policy"` // none, fixed, linear, exponential
	MaxRetries      int     `koanf:"max_retries" yaml:"max_retries"`
	InitialInterval string  `koanf:"initial_interval" yaml:"initial_interval"`
	MaxInterval     string  `koanf:"max_interval" yaml:"max_interval"`
	Multiplier      float64 `koanf:"multiplier" yaml:"multiplier"`
	Jitter          bool    `koanf:"jitter" yaml:"jitter"`
}

type PipelineConfig struct {
	Name   string        `koanf:"name" yaml:"name"`
	Stages []StageConfig `koanf:"stages" yaml:"stages"`
}

// StageConfig describes one stage. Which fields apply depends on Type.
type StageConfig struct {
	Type    string      `koanf:"type" yaml:"type"`
	Name    string      `koanf:"name" yaml:"name,omitempty"`
	Keyword string      `koanf:"keyword" yaml:"keyword,omitempty"`
	Pattern string      `koanf:"pattern" yaml:"pattern,omitempty"`
	Key     string      `koanf:"key" yaml:"key,omitempty"`
	Value   interface{} `koanf:"value" yaml:"value,omitempty"`
}

// DefaultStages is the car inspection used when no stages are configured
func DefaultStages() []StageConfig {
	return []StageConfig{
		{Type: "inspect", Name: "Engine", Keyword: "engine"},
		{Type: "inspect", Name: "Gearbox", Keyword: "gear"},
		{Type: "inspect", Name: "Carbody", Keyword: "car body"},
	}
}

// Load reads path (if not empty), applies environment overrides and fills
// defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	setDefault(k, "logging.level", "info")
	setDefault(k, "logging.format", "text")
	setDefault(k, "tracing.service_name", "stagechain")
	setDefault(k, "retry.policy", "none")
	setDefault(k, "retry.initial_interval", "100ms")
	setDefault(k, "retry.max_interval", "2s")
	setDefault(k, "retry.multiplier", 2.0)
	setDefault(k, "pipeline.name", "inspection")

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if len(cfg.Pipeline.Stages) == 0 {
		cfg.Pipeline.Stages = DefaultStages()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used without a file or environment
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Tracing: TracingConfig{ServiceName: "stagechain"},
		Retry: RetryConfig{
			Policy:          "none",
			InitialInterval: "100ms",
			MaxInterval:     "2s",
			Multiplier:      2.0,
		},
		Pipeline: PipelineConfig{Name: "inspection", Stages: DefaultStages()},
	}
}

func setDefault(k *koanf.Koanf, key string, value interface{}) {
	if !k.Exists(key) {
		_ = k.Set(key, value)
	}
}

// Validate checks enumerations and durations
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown logging level %q", ErrInvalidConfig, c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown logging format %q", ErrInvalidConfig, c.Logging.Format)
	}

	switch c.Retry.Policy {
	case "none", "fixed", "linear", "exponential":
	default:
		return fmt.Errorf("%w: unknown retry policy %q", ErrInvalidConfig, c.Retry.Policy)
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: negative max_retries", ErrInvalidConfig)
	}
	if _, err := c.Retry.Initial(); err != nil {
		return err
	}
	if _, err := c.Retry.Max(); err != nil {
		return err
	}

	for i, s := range c.Pipeline.Stages {
		if s.Type == "" {
			return fmt.Errorf("%w: stage %d has no type", ErrInvalidConfig, i)
		}
	}

	return nil
}

// Initial parses InitialInterval
func (r RetryConfig) Initial() (time.Duration, error) {
	return parseDuration("initial_interval", r.InitialInterval)
}

// Max parses MaxInterval
func (r RetryConfig) Max() (time.Duration, error) {
	return parseDuration("max_interval", r.MaxInterval)
}

func parseDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: retry.%s: %v", ErrInvalidConfig, name, err)
	}
	return d, nil
}

// NewLogger builds a slog logger writing to w, stderr when w is nil
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var level slog.Level
	switch l.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Render writes the configuration as YAML
func Render(w io.Writer, cfg *Config) error {
	enc := yamlv3.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	return enc.Close()
}
