package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSucceedsFirstAttempt(t *testing.T) {
	fetcher := newScriptFetcher()
	fetcher.on("audio/ui/click.wav", stepOK())
	l, diag, _ := newTestLoader(t, fetcher, newFakeDecoder())

	res := l.Load(context.Background(), "click")

	require.True(t, res.OK)
	assert.Equal(t, "audio/ui/click.wav", res.FileUsed)
	assert.Equal(t, "wav", res.Format)
	require.NotNil(t, res.streamer)

	stats := diag.Snapshot()
	assert.Equal(t, int64(1), stats.TotalAttempted)
	assert.Equal(t, int64(1), stats.TotalSucceeded)
	assert.Equal(t, int64(0), stats.TotalFailed)
}

func TestLoadRetriesTransientNetworkErrors(t *testing.T) {
	// Three server errors, then success. The network budget allows three
	// retries, so the fourth attempt lands.
	fetcher := newScriptFetcher()
	fetcher.on("audio/colors/dearg.wav",
		stepStatus(500), stepStatus(500), stepStatus(500), stepOK())
	l, diag, sleeps := newTestLoader(t, fetcher, newFakeDecoder())

	res := l.Load(context.Background(), "dearg")

	require.True(t, res.OK)
	assert.Equal(t, 4, fetcher.count("audio/colors/dearg.wav"))

	stats := diag.Snapshot()
	assert.Equal(t, int64(4), stats.TotalAttempted)
	assert.Equal(t, int64(3), stats.TotalFailed)
	assert.Equal(t, int64(1), stats.TotalSucceeded)
	assert.Equal(t, int64(3), stats.ErrorStats["NETWORK_ERROR"])

	// Backoff doubles and never decreases.
	delays := sleeps.recorded()
	require.Len(t, delays, 3)
	for i := 1; i < len(delays); i++ {
		assert.GreaterOrEqual(t, delays[i], delays[i-1])
	}
	assert.Equal(t, time.Second, delays[0])
}

func TestLoadExhaustsNetworkBudget(t *testing.T) {
	fetcher := newScriptFetcher()
	fetcher.on("audio/colors/dearg.wav", stepStatus(503))
	l, diag, _ := newTestLoader(t, fetcher, newFakeDecoder())

	res := l.Load(context.Background(), "dearg")

	require.False(t, res.OK)
	require.NotNil(t, res.Err)
	assert.Equal(t, KindNetworkError, res.Err.Kind)
	assert.Equal(t, 4, fetcher.count("audio/colors/dearg.wav"))
	assert.Equal(t, int64(4), diag.Snapshot().TotalFailed)
}

func TestLoadRetriesTimeout(t *testing.T) {
	fetcher := newScriptFetcher()
	fetcher.on("audio/colors/gorm.wav", stepErr(context.DeadlineExceeded), stepOK())
	l, diag, sleeps := newTestLoader(t, fetcher, newFakeDecoder())

	res := l.Load(context.Background(), "gorm")

	require.True(t, res.OK)
	assert.Equal(t, int64(1), diag.Snapshot().ErrorStats["TIMEOUT"])

	delays := sleeps.recorded()
	require.Len(t, delays, 1)
	assert.Equal(t, 2*time.Second, delays[0])
}

func TestLoadFallsBackToSecondFormat(t *testing.T) {
	// The decoder rejects wav outright, so the loader switches to the
	// manifest's fallback format instead of retrying the same file.
	fetcher := newScriptFetcher()
	fetcher.on("audio/colors/dearg.wav", stepOK())
	fetcher.on("audio/colors/dearg.mp3", stepOK())
	decoder := newFakeDecoder()
	decoder.failFormat("wav", ErrUnsupportedFormat)
	l, diag, _ := newTestLoader(t, fetcher, decoder)

	res := l.Load(context.Background(), "dearg")

	require.True(t, res.OK)
	assert.Equal(t, "mp3", res.Format)
	assert.Equal(t, "audio/colors/dearg.mp3", res.FileUsed)
	assert.Equal(t, 1, fetcher.count("audio/colors/dearg.wav"))
	assert.Equal(t, int64(1), diag.Snapshot().ErrorStats["FORMAT_UNSUPPORTED"])
}

func TestLoadFallbackGetsFreshRetryBudget(t *testing.T) {
	// Missing primary file, flaky fallback. The fallback path starts a
	// new retry budget rather than inheriting the exhausted one.
	fetcher := newScriptFetcher()
	fetcher.on("audio/colors/dearg.wav", stepStatus(404))
	fetcher.on("audio/colors/dearg.mp3",
		stepStatus(500), stepStatus(500), stepStatus(500), stepOK())
	l, _, _ := newTestLoader(t, fetcher, newFakeDecoder())

	res := l.Load(context.Background(), "dearg")

	require.True(t, res.OK)
	assert.Equal(t, "mp3", res.Format)
	assert.Equal(t, 1, fetcher.count("audio/colors/dearg.wav"))
	assert.Equal(t, 4, fetcher.count("audio/colors/dearg.mp3"))
}

func TestLoadFailsWhenEveryFormatIsUnsupported(t *testing.T) {
	// Both encodings come back 415; the result is a terminal
	// FORMAT_UNSUPPORTED with a displayable message.
	fetcher := newScriptFetcher()
	fetcher.on("audio/colors/dearg.wav", stepStatus(415))
	fetcher.on("audio/colors/dearg.mp3", stepStatus(415))
	l, _, _ := newTestLoader(t, fetcher, newFakeDecoder())

	res := l.Load(context.Background(), "dearg")

	require.False(t, res.OK)
	assert.Equal(t, KindFormatUnsupported, res.Err.Kind)
	assert.Contains(t, res.Err.UserMessage, "audio")
	assert.Equal(t, 1, fetcher.count("audio/colors/dearg.wav"))
}

func TestLoadSingleFormatAssetHasNoFallback(t *testing.T) {
	// click only exists as wav; a 404 exhausts its one retry and fails.
	fetcher := newScriptFetcher()
	fetcher.on("audio/ui/click.wav", stepStatus(404))
	l, _, _ := newTestLoader(t, fetcher, newFakeDecoder())

	res := l.Load(context.Background(), "click")

	require.False(t, res.OK)
	assert.Equal(t, KindNotFound, res.Err.Kind)
}

func TestLoadDecodeErrorIsTerminal(t *testing.T) {
	fetcher := newScriptFetcher()
	fetcher.on("audio/ui/click.wav", stepOK())
	decoder := newFakeDecoder()
	decoder.failFormat("wav", assert.AnError)
	l, _, sleeps := newTestLoader(t, fetcher, decoder)

	res := l.Load(context.Background(), "click")

	require.False(t, res.OK)
	assert.Equal(t, KindDecodeError, res.Err.Kind)
	assert.Equal(t, 1, fetcher.count("audio/ui/click.wav"))
	assert.Empty(t, sleeps.recorded())
}

func TestLoadUnknownAssetFailsWithoutFetching(t *testing.T) {
	fetcher := newScriptFetcher()
	l, diag, _ := newTestLoader(t, fetcher, newFakeDecoder())

	res := l.Load(context.Background(), "no-such-asset")

	require.False(t, res.OK)
	assert.Equal(t, KindNotFound, res.Err.Kind)
	assert.Equal(t, int64(1), diag.Snapshot().TotalFailed)
	assert.Equal(t, 0, fetcher.count("audio/colors/dearg.wav"))
}

func TestLoadPreferredFormat(t *testing.T) {
	fetcher := newScriptFetcher()
	fetcher.on("audio/colors/gorm.mp3", stepOK())
	l, _, _ := newTestLoader(t, fetcher, newFakeDecoder())

	res := l.LoadPreferred(context.Background(), "gorm", "mp3")

	require.True(t, res.OK)
	assert.Equal(t, "mp3", res.Format)
	assert.Equal(t, 0, fetcher.count("audio/colors/gorm.wav"))
}

func TestConcurrentLoadsCoalesce(t *testing.T) {
	fetcher := newBlockingFetcher()
	l, diag, _ := newTestLoader(t, fetcher, newFakeDecoder())

	const callers = 5
	results := make([]LoadResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = l.Load(context.Background(), "click")
		}(i)
	}

	<-fetcher.started
	time.Sleep(50 * time.Millisecond) // let the rest join the flight
	close(fetcher.release)
	wg.Wait()

	for i := range results {
		require.True(t, results[i].OK, "caller %d", i)
	}
	// One shared attempt for all callers.
	assert.Equal(t, int64(1), diag.Snapshot().TotalAttempted)
}

func TestPreferredFormatDoesNotCoalesceWithDefault(t *testing.T) {
	// A load with an explicit format preference is its own flight; it
	// must not be handed the result of an in-flight default-format load.
	fetcher := newBlockingFetcher()
	l, _, _ := newTestLoader(t, fetcher, newFakeDecoder())

	var defaultRes, preferredRes LoadResult
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defaultRes = l.Load(context.Background(), "dearg")
	}()
	<-fetcher.started
	go func() {
		defer wg.Done()
		preferredRes = l.LoadPreferred(context.Background(), "dearg", "mp3")
	}()

	time.Sleep(50 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	require.True(t, defaultRes.OK)
	assert.Equal(t, "wav", defaultRes.Format)
	assert.Equal(t, "audio/colors/dearg.wav", defaultRes.FileUsed)

	require.True(t, preferredRes.OK)
	assert.Equal(t, "mp3", preferredRes.Format)
	assert.Equal(t, "audio/colors/dearg.mp3", preferredRes.FileUsed)
}

func TestRetryUsesFreshBudget(t *testing.T) {
	fetcher := newScriptFetcher()
	fetcher.on("audio/ui/click.wav",
		stepStatus(503), stepStatus(503), stepStatus(503), stepStatus(503),
		stepOK())
	l, _, _ := newTestLoader(t, fetcher, newFakeDecoder())

	first := l.Load(context.Background(), "click")
	require.False(t, first.OK)
	assert.Equal(t, 4, fetcher.count("audio/ui/click.wav"))

	second := l.Retry(context.Background(), "click")
	require.True(t, second.OK)
	assert.Equal(t, 5, fetcher.count("audio/ui/click.wav"))
}
