package player

import (
	"sync"

	"github.com/teanglann/fuaim/pkg/logging"
)

// GateState tracks whether the audio output has been unlocked by a user
// gesture. Platforms without the restriction start unlocked.
type GateState int

const (
	GateLocked GateState = iota
	GateUnlocking
	GateUnlocked
)

func (s GateState) String() string {
	switch s {
	case GateLocked:
		return "locked"
	case GateUnlocking:
		return "unlocking"
	case GateUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// Gate holds the unlock state and queues play intents that arrive while
// the output is still locked. It does not touch the output itself; the
// manager supplies the unlock function.
type Gate struct {
	mu      sync.Mutex
	state   GateState
	caps    Capabilities
	pending []string
	logger  logging.Logger
}

// NewGate probes the platform. When no unlock gesture is required the
// gate starts in the unlocked state and Unlock is a cheap no-op.
func NewGate(detector CapabilityDetector, logger logging.Logger) *Gate {
	if logger == nil {
		logger = logging.Nop()
	}
	caps := Capabilities{NativePlayback: true, OutputDevice: true}
	if detector != nil {
		caps = detector.Detect()
	}
	state := GateUnlocked
	if caps.NeedsUnlock {
		state = GateLocked
	}
	return &Gate{
		state:  state,
		caps:   caps,
		logger: logger.With(logging.String("component", "unlock_gate")),
	}
}

func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) Capabilities() Capabilities {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.caps
}

// Admit reports whether a play request may proceed now. When the gate is
// locked the asset id is queued and Admit returns false; the queued ids
// are released by Unlock.
func (g *Gate) Admit(assetID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == GateUnlocked {
		return true
	}
	for _, id := range g.pending {
		if id == assetID {
			return false
		}
	}
	g.pending = append(g.pending, assetID)
	g.logger.Debug("queued play intent behind locked output",
		logging.String("asset_id", assetID),
		logging.Int("pending", len(g.pending)),
	)
	return false
}

// Unlock runs unlockFn, which must be invoked from a user gesture on
// gated platforms, and on success drains the pending intents in arrival
// order for the caller to start. Calling Unlock on an already unlocked
// gate returns no intents and no error.
func (g *Gate) Unlock(unlockFn func() error) ([]string, error) {
	g.mu.Lock()
	if g.state == GateUnlocked {
		g.mu.Unlock()
		return nil, nil
	}
	if g.state == GateUnlocking {
		g.mu.Unlock()
		return nil, ErrOutputLocked
	}
	g.state = GateUnlocking
	g.mu.Unlock()

	var err error
	if unlockFn != nil {
		err = unlockFn()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.state = GateLocked
		g.logger.Warn("audio unlock failed", logging.Err(err))
		return nil, err
	}
	g.state = GateUnlocked
	drained := g.pending
	g.pending = nil
	g.logger.Info("audio output unlocked", logging.Int("resumed_intents", len(drained)))
	return drained, nil
}
