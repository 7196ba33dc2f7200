package player

import (
	"context"
	"time"

	"github.com/faiface/beep"
	"golang.org/x/sync/singleflight"

	"github.com/teanglann/fuaim/pkg/diagnostics"
	"github.com/teanglann/fuaim/pkg/logging"
	"github.com/teanglann/fuaim/pkg/manifest"
)

// Loader fetches and decodes manifest assets, applying the classifier's
// recovery policy: retry with backoff for transient failures, one
// fallback-format substitution for format failures.
type Loader struct {
	manifest *manifest.Manifest
	fetcher  Fetcher
	decoder  Decoder
	diag     *diagnostics.Aggregator
	logger   logging.Logger
	timeout  time.Duration

	// sleep is injectable so tests do not wait out real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error

	group singleflight.Group
}

// NewLoader wires a loader. diag may be shared with the playback manager.
func NewLoader(m *manifest.Manifest, fetcher Fetcher, decoder Decoder, diag *diagnostics.Aggregator, logger logging.Logger, timeout time.Duration) *Loader {
	if logger == nil {
		logger = logging.Nop()
	}
	if diag == nil {
		diag = diagnostics.NewAggregator(logger)
	}
	if timeout <= 0 {
		timeout = DefaultConfig().LoadTimeout
	}
	return &Loader{
		manifest: m,
		fetcher:  fetcher,
		decoder:  decoder,
		diag:     diag,
		logger:   logger.With(logging.String("component", "loader")),
		timeout:  timeout,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Load resolves, fetches and decodes the asset. Concurrent calls for the
// same id are coalesced onto a single in-flight load; every caller
// observes the shared outcome.
func (l *Loader) Load(ctx context.Context, id string) LoadResult {
	return l.loadPreferred(ctx, id, "")
}

// LoadPreferred is Load with an explicit format preference.
func (l *Loader) LoadPreferred(ctx context.Context, id, format string) LoadResult {
	return l.loadPreferred(ctx, id, format)
}

// Retry re-runs the load for an asset that previously failed, with a
// fresh retry budget.
func (l *Loader) Retry(ctx context.Context, id string) LoadResult {
	l.logger.Info("retrying failed asset", logging.String("asset_id", id))
	return l.loadPreferred(ctx, id, "")
}

func (l *Loader) loadPreferred(ctx context.Context, id, format string) LoadResult {
	// The flight key carries the format preference so an explicit
	// preference never coalesces onto a default-format load.
	key := id
	if format != "" {
		key = id + "#" + format
	}
	v, _, _ := l.group.Do(key, func() (interface{}, error) {
		return l.loadOnce(ctx, id, format), nil
	})
	return v.(LoadResult)
}

func (l *Loader) loadOnce(ctx context.Context, id, preferred string) LoadResult {
	res, err := l.manifest.Resolve(id, preferred)
	if err != nil {
		l.diag.RecordAttempt(id)
		audioErr := Classify(Failure{Op: OpResolve, Path: id, Err: err})
		l.diag.RecordFailure(id, audioErr.Kind.String(), 0)
		l.logger.Warn("asset resolution failed",
			logging.String("asset_id", id),
			logging.String("kind", audioErr.Kind.String()),
			logging.Err(err),
		)
		return LoadResult{AssetID: id, Err: audioErr}
	}

	var (
		lastErr      *AudioError
		fallbackUsed bool
		retriesLeft  = -1 // unset until the first classification
		retriesUsed  int
	)

	for {
		streamer, sampleFormat, audioErr := l.attempt(ctx, id, res)
		if audioErr == nil {
			return LoadResult{
				OK:           true,
				AssetID:      id,
				FileUsed:     res.Path,
				Format:       res.Format,
				streamer:     streamer,
				sampleFormat: sampleFormat,
			}
		}
		lastErr = audioErr

		// Format failures switch to the fallback encoding once; the
		// fallback path gets its own retry budget.
		if audioErr.Recovery.CanFallbackFormat && !fallbackUsed {
			fallbackUsed = true
			if fb, ferr := l.manifest.Resolve(id, l.manifest.FallbackFormat); ferr == nil && fb.Path != res.Path {
				l.logger.Info("switching to fallback format",
					logging.String("asset_id", id),
					logging.String("from", res.Format),
					logging.String("to", fb.Format),
				)
				res = fb
				retriesLeft = -1
				retriesUsed = 0
				continue
			}
		}

		if retriesLeft < 0 {
			retriesLeft = audioErr.Recovery.MaxRetries
		}
		if retriesLeft == 0 {
			l.logger.Warn("asset load failed terminally",
				logging.String("asset_id", id),
				logging.String("kind", audioErr.Kind.String()),
				logging.String("path", res.Path),
			)
			return LoadResult{AssetID: id, FileUsed: res.Path, Format: res.Format, Err: lastErr}
		}
		retriesLeft--

		// Backoff doubles per retry within a budget, so delays are
		// monotonically non-decreasing.
		delay := audioErr.Recovery.RetryDelay << uint(retriesUsed)
		retriesUsed++
		if err := l.sleep(ctx, delay); err != nil {
			return LoadResult{AssetID: id, FileUsed: res.Path, Format: res.Format, Err: lastErr}
		}
	}
}

// attempt performs one fetch+decode pass and records it in diagnostics.
func (l *Loader) attempt(ctx context.Context, id string, res manifest.Resolution) (beep.StreamSeekCloser, beep.Format, *AudioError) {
	l.diag.RecordAttempt(id)
	start := time.Now()

	attemptCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	body, err := l.fetcher.Fetch(attemptCtx, res.Path)
	if err != nil {
		audioErr := Classify(Failure{Op: OpFetch, Path: res.Path, Err: err})
		l.diag.RecordFailure(id, audioErr.Kind.String(), time.Since(start))
		return nil, beep.Format{}, audioErr
	}

	st, f, err := l.decoder.Decode(res.Format, body)
	if err != nil {
		audioErr := Classify(Failure{Op: OpDecode, Path: res.Path, Err: err})
		l.diag.RecordFailure(id, audioErr.Kind.String(), time.Since(start))
		return nil, beep.Format{}, audioErr
	}

	l.diag.RecordSuccess(id, time.Since(start))
	l.logger.Debug("asset loaded",
		logging.String("asset_id", id),
		logging.String("path", res.Path),
		logging.Duration("elapsed", time.Since(start)),
	)
	return st, f, nil
}
