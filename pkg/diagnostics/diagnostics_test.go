package diagnostics

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teanglann/fuaim/pkg/logging"
)

func TestAggregatorCounts(t *testing.T) {
	agg := NewAggregator(logging.Nop())

	agg.RecordAttempt("dearg")
	agg.RecordAttempt("dearg")
	agg.RecordFailure("dearg", "NETWORK_ERROR", 120*time.Millisecond)
	agg.RecordSuccess("dearg", 80*time.Millisecond)

	stats := agg.Snapshot()
	assert.Equal(t, int64(2), stats.TotalAttempted)
	assert.Equal(t, int64(1), stats.TotalSucceeded)
	assert.Equal(t, int64(1), stats.TotalFailed)
	assert.Equal(t, int64(1), stats.ErrorStats["NETWORK_ERROR"])
}

func TestSnapshotIsACopy(t *testing.T) {
	agg := NewAggregator(logging.Nop())
	agg.RecordFailure("click", "TIMEOUT", 0)

	stats := agg.Snapshot()
	stats.ErrorStats["TIMEOUT"] = 99
	stats.TotalFailed = 99

	again := agg.Snapshot()
	assert.Equal(t, int64(1), again.TotalFailed)
	assert.Equal(t, int64(1), again.ErrorStats["TIMEOUT"])
}

func TestAttemptInvariant(t *testing.T) {
	agg := NewAggregator(logging.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			agg.RecordAttempt("id")
			if n%3 == 0 {
				agg.RecordFailure("id", "UNKNOWN", 0)
			} else {
				agg.RecordSuccess("id", 0)
			}
		}(i)
	}
	wg.Wait()

	stats := agg.Snapshot()
	assert.Equal(t, int64(20), stats.TotalAttempted)
	assert.Equal(t, stats.TotalAttempted, stats.TotalSucceeded+stats.TotalFailed)
}

func TestReset(t *testing.T) {
	agg := NewAggregator(logging.Nop())
	agg.RecordAttempt("a")
	agg.RecordFailure("a", "NOT_FOUND", 0)

	agg.Reset()

	stats := agg.Snapshot()
	assert.Zero(t, stats.TotalAttempted)
	assert.Zero(t, stats.TotalFailed)
	assert.Empty(t, stats.ErrorStats)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	agg := NewAggregator(logging.Nop()).WithStore(store)
	agg.RecordAttempt("dearg")
	agg.RecordAttempt("dearg")
	agg.RecordFailure("dearg", "NETWORK_ERROR", 50*time.Millisecond)
	agg.RecordSuccess("dearg", 10*time.Millisecond)
	agg.RecordAttempt("click")

	attempts, err := store.EventCount("dearg", OutcomeAttempt)
	require.NoError(t, err)
	assert.Equal(t, int64(2), attempts)

	failures, err := store.EventCount("dearg", OutcomeFailure)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failures)

	all, err := store.EventCount("", OutcomeAttempt)
	require.NoError(t, err)
	assert.Equal(t, int64(3), all)
}

func TestSQLiteStorePrune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	old := LoadEvent{AssetID: "a", Outcome: OutcomeAttempt, At: time.Now().Add(-48 * time.Hour)}
	recent := LoadEvent{AssetID: "a", Outcome: OutcomeAttempt, At: time.Now()}
	require.NoError(t, store.RecordEvent(old))
	require.NoError(t, store.RecordEvent(recent))

	removed, err := store.Prune(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	left, err := store.EventCount("a", OutcomeAttempt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), left)
}

func TestSQLiteStoreClosedBehaviour(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close()) // idempotent

	err = store.RecordEvent(LoadEvent{AssetID: "a", Outcome: OutcomeAttempt})
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestOpenSQLiteStoreEmptyPath(t *testing.T) {
	_, err := OpenSQLiteStore("")
	assert.ErrorIs(t, err, ErrInvalidStorePath)
}

func TestStoreFailureDoesNotPropagate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	store.Close()

	agg := NewAggregator(logging.Nop()).WithStore(store)
	agg.RecordAttempt("dearg") // store is closed; must not panic or error

	assert.Equal(t, int64(1), agg.Snapshot().TotalAttempted)
}
