package player

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/stretchr/testify/require"

	"github.com/teanglann/fuaim/pkg/diagnostics"
	"github.com/teanglann/fuaim/pkg/logging"
	"github.com/teanglann/fuaim/pkg/manifest"
)

const testManifest = `{
	"version": "2.1",
	"lastUpdated": "2026-07-01",
	"supportedFormats": ["mp3", "wav", "ogg"],
	"defaultFormat": "wav",
	"fallbackFormat": "mp3",
	"categories": {
		"colors": [
			{"id": "dearg", "files": {"wav": "audio/colors/dearg.wav", "mp3": "audio/colors/dearg.mp3"}, "duration": 1.2},
			{"id": "gorm", "files": {"wav": "audio/colors/gorm.wav", "mp3": "audio/colors/gorm.mp3"}, "duration": 1.1},
			{"id": "buidhe", "files": {"wav": "audio/colors/buidhe.wav", "mp3": "audio/colors/buidhe.mp3"}, "duration": 1.3}
		],
		"ui": [
			{"id": "click", "files": {"wav": "audio/ui/click.wav"}, "duration": 0.3}
		]
	},
	"validation": {"categories": 2, "totalFiles": 4}
}`

func loadTestManifest(t *testing.T) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Load(strings.NewReader(testManifest))
	require.NoError(t, err)
	return m
}

// fakeStreamer is an in-memory beep.StreamSeekCloser of silence.
type fakeStreamer struct {
	mu     sync.Mutex
	length int
	pos    int
	closed bool
	seeks  int
}

func (s *fakeStreamer) Stream(samples [][2]float64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= s.length {
		return 0, false
	}
	n := len(samples)
	if remain := s.length - s.pos; n > remain {
		n = remain
	}
	for i := 0; i < n; i++ {
		samples[i] = [2]float64{}
	}
	s.pos += n
	return n, true
}

func (s *fakeStreamer) Err() error    { return nil }
func (s *fakeStreamer) Len() int      { return s.length }
func (s *fakeStreamer) Position() int { s.mu.Lock(); defer s.mu.Unlock(); return s.pos }

func (s *fakeStreamer) Seek(p int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = p
	s.seeks++
	return nil
}

func (s *fakeStreamer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStreamer) seekCount() int { s.mu.Lock(); defer s.mu.Unlock(); return s.seeks }
func (s *fakeStreamer) isClosed() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.closed }

// fetchStep is one scripted response for a path.
type fetchStep struct {
	err  error
	body string
}

func stepOK() fetchStep           { return fetchStep{body: "audio-bytes"} }
func stepErr(err error) fetchStep { return fetchStep{err: err} }
func stepStatus(s int) fetchStep  { return fetchStep{err: &HTTPError{Status: s, URL: "scripted"}} }

// scriptFetcher replays a fixed sequence of responses per path. Once the
// script runs out the last step repeats. Paths with no script return 404.
type scriptFetcher struct {
	mu    sync.Mutex
	steps map[string][]fetchStep
	calls map[string]int
}

func newScriptFetcher() *scriptFetcher {
	return &scriptFetcher{
		steps: make(map[string][]fetchStep),
		calls: make(map[string]int),
	}
}

func (f *scriptFetcher) on(path string, steps ...fetchStep) {
	f.mu.Lock()
	f.steps[path] = steps
	f.mu.Unlock()
}

func (f *scriptFetcher) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *scriptFetcher) Fetch(_ context.Context, path string) (io.ReadCloser, error) {
	f.mu.Lock()
	n := f.calls[path]
	f.calls[path]++
	steps := f.steps[path]
	f.mu.Unlock()

	if len(steps) == 0 {
		return nil, &HTTPError{Status: 404, URL: path}
	}
	if n >= len(steps) {
		n = len(steps) - 1
	}
	step := steps[n]
	if step.err != nil {
		return nil, step.err
	}
	return io.NopCloser(strings.NewReader(step.body)), nil
}

// blockingFetcher holds every Fetch until release is closed. started is
// signalled once so tests can synchronize with the first call.
type blockingFetcher struct {
	release   chan struct{}
	started   chan struct{}
	startOnce sync.Once
}

func newBlockingFetcher() *blockingFetcher {
	return &blockingFetcher{
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
}

func (f *blockingFetcher) Fetch(ctx context.Context, _ string) (io.ReadCloser, error) {
	f.startOnce.Do(func() { close(f.started) })
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return io.NopCloser(strings.NewReader("audio-bytes")), nil
}

// speakerLikeOutput mimics the real speaker's locking discipline: one
// package-style mutex guards the stream list, Play and Lock retake it,
// and pump streams samples while holding it, so completion callbacks
// fire with the lock held exactly as they do on the audio goroutine.
type speakerLikeOutput struct {
	mu      sync.Mutex
	open    bool
	streams []beep.Streamer
}

func (o *speakerLikeOutput) Open(beep.SampleRate, int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.open = true
	return nil
}

func (o *speakerLikeOutput) Play(s beep.Streamer) {
	o.mu.Lock()
	o.streams = append(o.streams, s)
	o.mu.Unlock()
}

func (o *speakerLikeOutput) Lock()   { o.mu.Lock() }
func (o *speakerLikeOutput) Unlock() { o.mu.Unlock() }

func (o *speakerLikeOutput) Clear() {
	o.mu.Lock()
	o.streams = nil
	o.mu.Unlock()
}

func (o *speakerLikeOutput) Close() error {
	o.mu.Lock()
	o.open = false
	o.streams = nil
	o.mu.Unlock()
	return nil
}

// pump drains every queued stream to completion under the output lock,
// the way the speaker's update loop does.
func (o *speakerLikeOutput) pump() {
	o.mu.Lock()
	defer o.mu.Unlock()
	buf := make([][2]float64, 512)
	for _, s := range o.streams {
		for {
			if _, ok := s.Stream(buf); !ok {
				break
			}
		}
	}
	o.streams = nil
}

// fakeDecoder produces fakeStreamers, failing formats listed in fail.
type fakeDecoder struct {
	mu         sync.Mutex
	fail       map[string]error
	sampleRate beep.SampleRate
	made       []*fakeStreamer
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{fail: make(map[string]error), sampleRate: 44100}
}

func (d *fakeDecoder) failFormat(format string, err error) {
	d.mu.Lock()
	d.fail[format] = err
	d.mu.Unlock()
}

func (d *fakeDecoder) Decode(format string, r io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	_, _ = io.Copy(io.Discard, r)
	_ = r.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[format]; err != nil {
		return nil, beep.Format{}, err
	}
	st := &fakeStreamer{length: 4410}
	d.made = append(d.made, st)
	return st, beep.Format{SampleRate: d.sampleRate, NumChannels: 2, Precision: 2}, nil
}

func (d *fakeDecoder) lastStreamer() *fakeStreamer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.made) == 0 {
		return nil
	}
	return d.made[len(d.made)-1]
}

// sleepRecorder replaces the loader's backoff sleep so tests finish
// instantly while still observing the delays the loader asked for.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return nil
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.delays))
	copy(out, r.delays)
	return out
}

func newTestLoader(t *testing.T, fetcher Fetcher, decoder Decoder) (*Loader, *diagnostics.Aggregator, *sleepRecorder) {
	t.Helper()
	diag := diagnostics.NewAggregator(logging.Nop())
	l := NewLoader(loadTestManifest(t), fetcher, decoder, diag, logging.Nop(), 0)

	rec := &sleepRecorder{}
	l.sleep = rec.sleep
	return l, diag, rec
}
