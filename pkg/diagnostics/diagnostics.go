// Package diagnostics accumulates audio loading statistics and optionally
// persists individual load events.
package diagnostics

import (
	"sync"
	"time"

	"github.com/teanglann/fuaim/pkg/logging"
)

// LoadingStats is a point-in-time snapshot of loading activity.
// TotalAttempted >= TotalSucceeded + TotalFailed at all times; the three
// converge to equality once in-flight loads settle.
type LoadingStats struct {
	TotalAttempted int64            `json:"totalAttempted"`
	TotalSucceeded int64            `json:"totalSucceeded"`
	TotalFailed    int64            `json:"totalFailed"`
	ErrorStats     map[string]int64 `json:"errorStats"`
}

// Outcome labels a persisted load event.
type Outcome string

const (
	OutcomeAttempt Outcome = "attempt"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// LoadEvent is one recorded loading event, as handed to a Store.
type LoadEvent struct {
	AssetID   string
	Outcome   Outcome
	ErrorKind string // empty unless Outcome is failure
	Elapsed   time.Duration
	At        time.Time
}

// Store persists load events. Implementations must be safe for concurrent
// use. Store failures never propagate to recording callers.
type Store interface {
	RecordEvent(ev LoadEvent) error
	Close() error
}

// Aggregator accumulates loading statistics. Counters only ever increase
// between explicit resets.
type Aggregator struct {
	mu        sync.Mutex
	attempted int64
	succeeded int64
	failed    int64
	byKind    map[string]int64

	store  Store
	logger logging.Logger
}

// NewAggregator creates an aggregator with no backing store.
func NewAggregator(logger logging.Logger) *Aggregator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Aggregator{
		byKind: make(map[string]int64),
		logger: logger.With(logging.String("component", "diagnostics")),
	}
}

// WithStore attaches a persistent event store. Returns the aggregator for
// chaining at construction time.
func (a *Aggregator) WithStore(store Store) *Aggregator {
	a.mu.Lock()
	a.store = store
	a.mu.Unlock()
	return a
}

// RecordAttempt counts one load attempt for the asset.
func (a *Aggregator) RecordAttempt(id string) {
	a.mu.Lock()
	a.attempted++
	a.mu.Unlock()

	a.persist(LoadEvent{AssetID: id, Outcome: OutcomeAttempt, At: time.Now()})
}

// RecordSuccess counts one successful load for the asset.
func (a *Aggregator) RecordSuccess(id string, elapsed time.Duration) {
	a.mu.Lock()
	a.succeeded++
	a.mu.Unlock()

	a.persist(LoadEvent{AssetID: id, Outcome: OutcomeSuccess, Elapsed: elapsed, At: time.Now()})
}

// RecordFailure counts one failed load for the asset under the given
// error kind.
func (a *Aggregator) RecordFailure(id, kind string, elapsed time.Duration) {
	a.mu.Lock()
	a.failed++
	a.byKind[kind]++
	a.mu.Unlock()

	a.persist(LoadEvent{AssetID: id, Outcome: OutcomeFailure, ErrorKind: kind, Elapsed: elapsed, At: time.Now()})
}

// Snapshot returns a copy of the current stats. It has no side effects.
func (a *Aggregator) Snapshot() LoadingStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := LoadingStats{
		TotalAttempted: a.attempted,
		TotalSucceeded: a.succeeded,
		TotalFailed:    a.failed,
		ErrorStats:     make(map[string]int64, len(a.byKind)),
	}
	for kind, n := range a.byKind {
		stats.ErrorStats[kind] = n
	}
	return stats
}

// Reset zeroes all counters. Persisted events are unaffected.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.attempted = 0
	a.succeeded = 0
	a.failed = 0
	a.byKind = make(map[string]int64)
	a.mu.Unlock()
}

func (a *Aggregator) persist(ev LoadEvent) {
	a.mu.Lock()
	store := a.store
	a.mu.Unlock()

	if store == nil {
		return
	}
	if err := store.RecordEvent(ev); err != nil {
		a.logger.Warn("failed to persist load event",
			logging.String("asset_id", ev.AssetID),
			logging.String("outcome", string(ev.Outcome)),
			logging.Err(err),
		)
	}
}
