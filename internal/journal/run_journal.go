// Package journal keeps a bounded in-memory history of pipeline runs.
package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome is how a run ended
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Entry represents a single run in the journal
type Entry struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	RunID     string        `json:"runId"`
	Pipeline  string        `json:"pipeline"`
	Strategy  string        `json:"strategy"`
	Request   string        `json:"request"`
	Outcome   Outcome       `json:"outcome"`
	Stage     string        `json:"stage,omitempty"`
	Fragments int           `json:"fragments"`
	Attempts  int           `json:"attempts"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Recorder accepts run entries
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
}

// Stats summarizes the journal
type Stats struct {
	TotalEntries      int64             `json:"totalEntries"`
	EntriesByOutcome  map[Outcome]int64 `json:"entriesByOutcome"`
	EntriesByPipeline map[string]int64  `json:"entriesByPipeline"`
	AverageDuration   time.Duration     `json:"averageDuration"`
	LastEntry         time.Time         `json:"lastEntry"`
}

// InMemoryJournal keeps the most recent runs, dropping the oldest share of
// entries when full.
type InMemoryJournal struct {
	entries       []*Entry
	byRunID       map[string]*Entry
	byPipeline    map[string][]*Entry
	mu            sync.RWMutex
	maxEntries    int
	rotatePercent float64
}

// Option configures the in-memory journal
type Option func(*InMemoryJournal)

// WithMaxEntries sets the maximum number of entries
func WithMaxEntries(max int) Option {
	return func(j *InMemoryJournal) {
		j.maxEntries = max
	}
}

// WithRotatePercent sets the share of entries to remove when max is reached
func WithRotatePercent(percent float64) Option {
	return func(j *InMemoryJournal) {
		j.rotatePercent = percent
	}
}

// NewInMemoryJournal creates a new in-memory journal
func NewInMemoryJournal(opts ...Option) *InMemoryJournal {
	j := &InMemoryJournal{
		entries:       make([]*Entry, 0),
		byRunID:       make(map[string]*Entry),
		byPipeline:    make(map[string][]*Entry),
		maxEntries:    1000,
		rotatePercent: 0.2,
	}

	for _, opt := range opts {
		opt(j)
	}

	return j
}

// Record implements Recorder
func (j *InMemoryJournal) Record(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.entries) >= j.maxEntries {
		j.rotate()
	}

	j.entries = append(j.entries, entry)
	j.index(entry)

	return nil
}

// Get returns the entry for a run
func (j *InMemoryJournal) Get(runID string) (*Entry, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	entry, exists := j.byRunID[runID]
	if !exists {
		return nil, false
	}
	entryCopy := *entry
	return &entryCopy, true
}

// Recent returns up to limit of the newest entries, oldest first. A limit of
// zero or less returns all entries.
func (j *InMemoryJournal) Recent(limit int) []*Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return copyTail(j.entries, limit)
}

// ByPipeline returns up to limit of the newest entries for a pipeline
func (j *InMemoryJournal) ByPipeline(pipeline string, limit int) []*Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return copyTail(j.byPipeline[pipeline], limit)
}

// Stats returns journal statistics
func (j *InMemoryJournal) Stats() *Stats {
	j.mu.RLock()
	defer j.mu.RUnlock()

	stats := &Stats{
		TotalEntries:      int64(len(j.entries)),
		EntriesByOutcome:  make(map[Outcome]int64),
		EntriesByPipeline: make(map[string]int64),
	}

	var totalDuration time.Duration
	for _, entry := range j.entries {
		stats.EntriesByOutcome[entry.Outcome]++
		stats.EntriesByPipeline[entry.Pipeline]++
		totalDuration += entry.Duration

		if entry.Timestamp.After(stats.LastEntry) {
			stats.LastEntry = entry.Timestamp
		}
	}

	if len(j.entries) > 0 {
		stats.AverageDuration = totalDuration / time.Duration(len(j.entries))
	}

	return stats
}

// Clear removes entries older than the specified duration
func (j *InMemoryJournal) Clear(olderThan time.Duration) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	kept := make([]*Entry, 0, len(j.entries))
	for _, entry := range j.entries {
		if entry.Timestamp.After(cutoff) {
			kept = append(kept, entry)
		}
	}

	removed := len(j.entries) - len(kept)
	j.entries = kept
	j.rebuildIndexes()

	return removed
}

// rotate removes the oldest entries when max is reached
func (j *InMemoryJournal) rotate() {
	removeCount := int(float64(j.maxEntries) * j.rotatePercent)
	if removeCount < 1 {
		removeCount = 1
	}
	if removeCount > len(j.entries) {
		removeCount = len(j.entries)
	}

	j.entries = j.entries[removeCount:]
	j.rebuildIndexes()
}

func (j *InMemoryJournal) rebuildIndexes() {
	j.byRunID = make(map[string]*Entry)
	j.byPipeline = make(map[string][]*Entry)

	for _, entry := range j.entries {
		j.index(entry)
	}
}

func (j *InMemoryJournal) index(entry *Entry) {
	if entry.RunID != "" {
		j.byRunID[entry.RunID] = entry
	}
	if entry.Pipeline != "" {
		j.byPipeline[entry.Pipeline] = append(j.byPipeline[entry.Pipeline], entry)
	}
}

func copyTail(entries []*Entry, limit int) []*Entry {
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	result := make([]*Entry, len(entries))
	for i, entry := range entries {
		entryCopy := *entry
		result[i] = &entryCopy
	}
	return result
}
