package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glimte/stagechain/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ pipeline.MetricsCollector = (*Collector)(nil)

func TestCollector(t *testing.T) {
	t.Run("counts runs errors and rejections", func(t *testing.T) {
		c := NewCollector()

		c.IncrementRunCount("inspection")
		c.IncrementRunCount("inspection")
		c.IncrementErrorCount("inspection", pipeline.ErrorTypeStageFault)
		c.IncrementRejectionCount("inspection", "EngineFilter")

		summary := c.Summary()
		assert.Equal(t, int64(2), summary.Runs["inspection"])
		assert.Equal(t, int64(1), summary.Errors["inspection"][pipeline.ErrorTypeStageFault])
		assert.Equal(t, int64(1), summary.Rejections["inspection"]["EngineFilter"])
	})

	t.Run("timing statistics", func(t *testing.T) {
		c := NewCollector()
		for i := 1; i <= 10; i++ {
			c.RecordProcessingTime("inspection", time.Duration(i)*time.Millisecond)
		}

		stats := c.Summary().Timings["inspection"]
		assert.Equal(t, int64(10), stats.Count)
		assert.Equal(t, time.Millisecond, stats.Min)
		assert.Equal(t, 10*time.Millisecond, stats.Max)
		assert.Equal(t, 5500*time.Microsecond, stats.Avg)
		assert.Equal(t, 5*time.Millisecond, stats.P50)
		assert.Equal(t, 9*time.Millisecond, stats.P95)
	})

	t.Run("keeps a bounded sample window", func(t *testing.T) {
		c := NewCollector()
		for i := 0; i < 250; i++ {
			c.RecordProcessingTime("p", time.Millisecond)
		}

		assert.Len(t, c.timings["p"].samples, maxSamples)
		assert.Equal(t, int64(250), c.Summary().Timings["p"].Count)
	})

	t.Run("summary is a copy", func(t *testing.T) {
		c := NewCollector()
		c.IncrementErrorCount("p", "x")

		summary := c.Summary()
		summary.Errors["p"]["x"] = 99

		assert.Equal(t, int64(1), c.Summary().Errors["p"]["x"])
	})

	t.Run("Reset clears everything", func(t *testing.T) {
		c := NewCollector()
		c.IncrementRunCount("p")
		c.RecordProcessingTime("p", time.Millisecond)

		c.Reset()

		summary := c.Summary()
		assert.Empty(t, summary.Runs)
		assert.Empty(t, summary.Timings)
	})

	t.Run("records through a metrics stage", func(t *testing.T) {
		c := NewCollector()
		p := pipeline.New("inspection", nil).
			Add(pipeline.NewMetricsStage(c, "inspection")).
			Add(pipeline.NewInterceptFunc("broken", func(ctx context.Context, rc *pipeline.Context, next pipeline.Continuation) error {
				return errors.New("boom")
			}))

		require.Error(t, p.RunWrapped(context.Background(), pipeline.NewContext("req")))

		summary := c.Summary()
		assert.Equal(t, int64(1), summary.Runs["inspection"])
		assert.Equal(t, int64(1), summary.Errors["inspection"][pipeline.ErrorTypeStageFault])
		assert.Equal(t, int64(1), summary.Timings["inspection"].Count)
	})
}
