package player

import (
	"context"
	"io"

	"github.com/faiface/beep"
)

// Fetcher retrieves the raw bytes of an audio resource. Implementations
// return *HTTPError for non-success responses so the classifier can
// inspect the status.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (io.ReadCloser, error)
}

// Decoder turns fetched bytes into a playable stream. Unknown formats
// fail with ErrUnsupportedFormat.
type Decoder interface {
	Decode(format string, r io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)
}

// Output is the platform audio sink. The speaker-backed implementation
// talks to the real device; tests inject a silent one.
type Output interface {
	// Open readies the device at the given sample rate. Calling Open on
	// an already open device is a no-op.
	Open(sampleRate beep.SampleRate, bufferSize int) error
	Play(s beep.Streamer)
	// Lock/Unlock guard mutations of streamers the output is playing.
	Lock()
	Unlock()
	// Clear drops everything currently playing.
	Clear()
	Close() error
}

// Capabilities describes what the detected platform supports.
type Capabilities struct {
	NativePlayback bool
	OutputDevice   bool
	MediaCapture   bool
	// NeedsUnlock is set on platforms that refuse playback until a user
	// gesture explicitly unlocks audio.
	NeedsUnlock bool
}

// CapabilityDetector probes the platform. The rest of the system is
// agnostic to the heuristic; tests inject a fixed value.
type CapabilityDetector interface {
	Detect() Capabilities
}

// StaticCapabilities is a CapabilityDetector returning a fixed value.
type StaticCapabilities Capabilities

func (c StaticCapabilities) Detect() Capabilities { return Capabilities(c) }
