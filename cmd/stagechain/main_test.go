package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/stagechain/config"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stagechain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRunCommand(t *testing.T) {
	t.Run("prints fragments in nesting order", func(t *testing.T) {
		out, _, err := execute(t, "run", "check", "engine")

		require.NoError(t, err)
		assert.Contains(t, out, "ACCEPTED")
		assert.Contains(t, out, "  Engine checking\n  Gearbox checking\n  Carbody checking\n  Carbody done\n  Gearbox done\n  Engine done\n")
	})

	t.Run("requires a request", func(t *testing.T) {
		_, _, err := execute(t, "run")
		assert.Error(t, err)
	})

	t.Run("trace exports spans", func(t *testing.T) {
		_, stderr, err := execute(t, "run", "--trace", "engine")

		require.NoError(t, err)
		assert.Contains(t, stderr, `"Name": "pipeline.run"`)
	})
}

func TestCheckCommand(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  name: gate
  stages:
    - type: require
      name: Engine
      keyword: engine
    - type: inspect
      name: Engine
`)

	t.Run("accepted", func(t *testing.T) {
		out, _, err := execute(t, "check", "-c", path, "check the engine")

		require.NoError(t, err)
		assert.Contains(t, out, "ACCEPTED")
	})

	t.Run("rejected exits with error", func(t *testing.T) {
		out, _, err := execute(t, "check", "-c", path, "check the brakes")

		assert.ErrorIs(t, err, errRejected)
		assert.Contains(t, out, "REJECTED by stage 0 (RequireEngine)")
	})

	t.Run("missing config file", func(t *testing.T) {
		_, _, err := execute(t, "check", "-c", filepath.Join(t.TempDir(), "missing.yaml"), "engine")
		assert.Error(t, err)
	})
}

func TestDemoCommand(t *testing.T) {
	out, _, err := execute(t, "demo")

	require.NoError(t, err)
	assert.Contains(t, out, "Filter chain")
	assert.Contains(t, out, "Wrap-around chain")
	assert.Contains(t, out, "Engine done")
	assert.Contains(t, out, "REJECTED by stage 2 (RequireCarbody)")
	assert.Contains(t, out, "Metrics")
	assert.Contains(t, out, "inspection")
}

func TestConfigCommands(t *testing.T) {
	t.Run("show renders effective config", func(t *testing.T) {
		out, _, err := execute(t, "config", "show")

		require.NoError(t, err)
		assert.Contains(t, out, "name: inspection")
		assert.Contains(t, out, "type: inspect")
		assert.Contains(t, out, "policy: none")
	})

	t.Run("stages lists registered types", func(t *testing.T) {
		out, _, err := execute(t, "config", "stages")

		require.NoError(t, err)
		assert.Contains(t, out, "inspect\n")
		assert.Contains(t, out, "require\n")
	})
}

func TestWithTracingStage(t *testing.T) {
	t.Run("prepends tracing stage", func(t *testing.T) {
		stages := withTracingStage(config.DefaultStages())

		require.Len(t, stages, 4)
		assert.Equal(t, "tracing", stages[0].Type)
	})

	t.Run("keeps configured tracing stage", func(t *testing.T) {
		in := []config.StageConfig{{Type: "inspect", Name: "Engine"}, {Type: "tracing"}}

		assert.Equal(t, in, withTracingStage(in))
	})
}
