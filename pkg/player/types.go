package player

import (
	"time"

	"github.com/faiface/beep"
)

// PlaybackState is the per-asset playback state machine position.
//
// idle -> loading -> playing <-> paused
// loading -> error, error -> loading (on retry),
// playing/paused -> idle (on stop).
type PlaybackState int

const (
	StateIdle PlaybackState = iota
	StateLoading
	StatePlaying
	StatePaused
	StateError
)

func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StateChange records one transition of an asset's state machine.
type StateChange struct {
	AssetID   string
	From      PlaybackState
	To        PlaybackState
	Reason    string
	Timestamp time.Time
}

// LoadResult is the outcome of loading one asset.
type LoadResult struct {
	OK       bool
	AssetID  string
	FileUsed string
	Format   string
	Err      *AudioError

	streamer     beep.StreamSeekCloser
	sampleFormat beep.Format
}

// PlayOptions adjusts a single play request.
type PlayOptions struct {
	// QueueWhenBusy queues the request when the simultaneous playback
	// limit is reached instead of refusing it.
	QueueWhenBusy bool
	// Format overrides the manifest's default format preference.
	Format string
}
