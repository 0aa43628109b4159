package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stagechain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults without file", func(t *testing.T) {
		cfg, err := Load("")

		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("reads yaml file", func(t *testing.T) {
		path := writeConfig(t, `
logging:
  level: debug
  format: json
retry:
  policy: fixed
  max_retries: 2
  initial_interval: 10ms
pipeline:
  name: gate
  stages:
    - type: logging
    - type: require
      name: Engine
      keyword: engine
    - type: match
      name: gearbox
      pattern: "gear ?box"
`)

		cfg, err := Load(path)

		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.Equal(t, "fixed", cfg.Retry.Policy)
		assert.Equal(t, 2, cfg.Retry.MaxRetries)
		assert.Equal(t, "gate", cfg.Pipeline.Name)
		require.Len(t, cfg.Pipeline.Stages, 3)
		assert.Equal(t, StageConfig{Type: "require", Name: "Engine", Keyword: "engine"}, cfg.Pipeline.Stages[1])
		assert.Equal(t, "gear ?box", cfg.Pipeline.Stages[2].Pattern)

		initial, err := cfg.Retry.Initial()
		require.NoError(t, err)
		assert.Equal(t, 10*time.Millisecond, initial)
	})

	t.Run("stage values keep their yaml type", func(t *testing.T) {
		path := writeConfig(t, `
pipeline:
  name: gate
  stages:
    - type: value
      key: attempt
      value: 3
    - type: value
      key: tier
      value: gold
`)

		cfg, err := Load(path)

		require.NoError(t, err)
		require.Len(t, cfg.Pipeline.Stages, 2)
		assert.EqualValues(t, 3, cfg.Pipeline.Stages[0].Value)
		assert.Equal(t, "gold", cfg.Pipeline.Stages[1].Value)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, "retry:\n  policy: fixed\n  max_retries: 1\n")
		t.Setenv("STAGECHAIN_RETRY__MAX_RETRIES", "4")
		t.Setenv("STAGECHAIN_LOGGING__LEVEL", "warn")

		cfg, err := Load(path)

		require.NoError(t, err)
		assert.Equal(t, 4, cfg.Retry.MaxRetries)
		assert.Equal(t, "warn", cfg.Logging.Level)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		tests := map[string]string{
			"level":    "logging:\n  level: loud\n",
			"format":   "logging:\n  format: xml\n",
			"policy":   "retry:\n  policy: forever\n",
			"duration": "retry:\n  initial_interval: soon\n",
			"negative": "retry:\n  max_retries: -1\n",
			"stage":    "pipeline:\n  stages:\n    - name: untyped\n",
		}

		for name, content := range tests {
			t.Run(name, func(t *testing.T) {
				_, err := Load(writeConfig(t, content))
				assert.ErrorIs(t, err, ErrInvalidConfig)
			})
		}
	})
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, Render(&buf, Default()))

	out := buf.String()
	assert.Contains(t, out, "policy: none")
	assert.Contains(t, out, "keyword: car body")
	assert.Contains(t, out, "service_name: stagechain")

	path := writeConfig(t, out)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
