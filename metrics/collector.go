// Package metrics provides an in-memory collector for pipeline run metrics.
package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxSamples = 100

// Collector implements pipeline.MetricsCollector in memory
type Collector struct {
	mu sync.RWMutex

	runs       map[string]int64
	errors     map[string]map[string]int64
	rejections map[string]map[string]int64
	timings    map[string]*timeStats
}

type timeStats struct {
	count   int64
	total   time.Duration
	min     time.Duration
	max     time.Duration
	samples []time.Duration
}

// NewCollector creates a new in-memory collector
func NewCollector() *Collector {
	return &Collector{
		runs:       make(map[string]int64),
		errors:     make(map[string]map[string]int64),
		rejections: make(map[string]map[string]int64),
		timings:    make(map[string]*timeStats),
	}
}

// IncrementRunCount implements pipeline.MetricsCollector
func (c *Collector) IncrementRunCount(pipeline string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs[pipeline]++
}

// RecordProcessingTime implements pipeline.MetricsCollector
func (c *Collector) RecordProcessingTime(pipeline string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, exists := c.timings[pipeline]
	if !exists {
		stats = &timeStats{
			min:     duration,
			max:     duration,
			samples: make([]time.Duration, 0, maxSamples),
		}
		c.timings[pipeline] = stats
	}

	stats.count++
	stats.total += duration
	if duration < stats.min {
		stats.min = duration
	}
	if duration > stats.max {
		stats.max = duration
	}

	if len(stats.samples) >= maxSamples {
		stats.samples = stats.samples[1:]
	}
	stats.samples = append(stats.samples, duration)
}

// IncrementErrorCount implements pipeline.MetricsCollector
func (c *Collector) IncrementErrorCount(pipeline string, errorType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	increment(c.errors, pipeline, errorType)
}

// IncrementRejectionCount implements pipeline.MetricsCollector
func (c *Collector) IncrementRejectionCount(pipeline string, stage string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	increment(c.rejections, pipeline, stage)
}

func increment(m map[string]map[string]int64, outer, inner string) {
	if m[outer] == nil {
		m[outer] = make(map[string]int64)
	}
	m[outer][inner]++
}

// Summary returns a snapshot of all collected metrics
func (c *Collector) Summary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	summary := Summary{
		Runs:       make(map[string]int64, len(c.runs)),
		Errors:     copyNested(c.errors),
		Rejections: copyNested(c.rejections),
		Timings:    make(map[string]TimingStats, len(c.timings)),
	}

	for name, count := range c.runs {
		summary.Runs[name] = count
	}

	for name, stats := range c.timings {
		ts := TimingStats{
			Count: stats.count,
			Min:   stats.min,
			Max:   stats.max,
		}
		if stats.count > 0 {
			ts.Avg = stats.total / time.Duration(stats.count)
		}
		if len(stats.samples) > 0 {
			sorted := make([]time.Duration, len(stats.samples))
			copy(sorted, stats.samples)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			ts.P50 = percentile(sorted, 0.50)
			ts.P95 = percentile(sorted, 0.95)
			ts.P99 = percentile(sorted, 0.99)
		}
		summary.Timings[name] = ts
	}

	return summary
}

// Reset clears all collected metrics
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runs = make(map[string]int64)
	c.errors = make(map[string]map[string]int64)
	c.rejections = make(map[string]map[string]int64)
	c.timings = make(map[string]*timeStats)
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	return sorted[int(float64(len(sorted)-1)*p)]
}

func copyNested(m map[string]map[string]int64) map[string]map[string]int64 {
	out := make(map[string]map[string]int64, len(m))
	for outer, inner := range m {
		out[outer] = make(map[string]int64, len(inner))
		for k, v := range inner {
			out[outer][k] = v
		}
	}
	return out
}

// Summary is a point-in-time snapshot of collected metrics
type Summary struct {
	Runs       map[string]int64            `json:"runs" yaml:"runs"`
	Errors     map[string]map[string]int64 `json:"errors" yaml:"errors"`
	Rejections map[string]map[string]int64 `json:"rejections" yaml:"rejections"`
	Timings    map[string]TimingStats      `json:"timings" yaml:"timings"`
}

// TimingStats summarizes run durations for one pipeline
type TimingStats struct {
	Count int64         `json:"count" yaml:"count"`
	Avg   time.Duration `json:"avg" yaml:"avg"`
	Min   time.Duration `json:"min" yaml:"min"`
	Max   time.Duration `json:"max" yaml:"max"`
	P50   time.Duration `json:"p50" yaml:"p50"`
	P95   time.Duration `json:"p95" yaml:"p95"`
	P99   time.Duration `json:"p99" yaml:"p99"`
}
