package player

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/google/uuid"

	"github.com/teanglann/fuaim/pkg/diagnostics"
	"github.com/teanglann/fuaim/pkg/logging"
	"github.com/teanglann/fuaim/pkg/manifest"
)

// transitionHistory bounds the in-memory state change log.
const transitionHistory = 128

// Deps carries the collaborators a Manager needs. Manifest and Fetcher
// are mandatory; the rest default to the production implementations.
type Deps struct {
	Manifest    *manifest.Manifest
	Fetcher     Fetcher
	Decoder     Decoder
	Output      Output
	Detector    CapabilityDetector
	Diagnostics *diagnostics.Aggregator
	Logger      logging.Logger
}

// assetSlot is the per-asset playback state. gen increments whenever the
// asset is stopped or restarted so a load that finishes late can detect
// that its result is stale.
type assetSlot struct {
	id       string
	state    PlaybackState
	gen      uint64
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	lastErr  *AudioError

	// pendingPlay marks a loaded asset waiting for a playback slot.
	pendingPlay bool
	// autoPaused marks assets paused by a visibility change so only
	// those resume when the app becomes visible again.
	autoPaused bool
}

// Manager owns asset playback: loading through the retry pipeline,
// per-asset state machines, the simultaneous playback limit, the mobile
// unlock gate and the master volume chain.
type Manager struct {
	sessionID string
	cfg       *Config
	loader    *Loader
	gate      *Gate
	output    Output
	diag      *diagnostics.Aggregator
	logger    logging.Logger

	mu           sync.Mutex
	assets       map[string]*assetSlot
	playing      int
	masterVolume float64
	muted        bool
	outputOpen   bool
	destroyed    bool
	transitions  []StateChange
}

// NewManager validates dependencies, fills in production defaults for
// the optional ones and builds the load pipeline.
func NewManager(cfg *Config, deps Deps) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Manifest == nil {
		return nil, ErrNoManifest
	}
	if deps.Fetcher == nil {
		return nil, ErrNoFetcher
	}
	if deps.Decoder == nil {
		deps.Decoder = &BeepDecoder{}
	}
	if deps.Output == nil {
		deps.Output = NewSpeakerOutput()
	}
	if deps.Detector == nil {
		deps.Detector = NewEnvironmentDetector()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Diagnostics == nil {
		deps.Diagnostics = diagnostics.NewAggregator(deps.Logger)
	}

	sessionID := uuid.NewString()
	logger := deps.Logger.With(
		logging.String("component", "playback_manager"),
		logging.String("session_id", sessionID),
	)

	m := &Manager{
		sessionID:    sessionID,
		cfg:          cfg,
		loader:       NewLoader(deps.Manifest, deps.Fetcher, deps.Decoder, deps.Diagnostics, deps.Logger, cfg.LoadTimeout),
		gate:         NewGate(deps.Detector, deps.Logger),
		output:       deps.Output,
		diag:         deps.Diagnostics,
		logger:       logger,
		assets:       make(map[string]*assetSlot),
		masterVolume: cfg.MasterVolume,
	}

	logger.Info("playback manager ready",
		logging.Int("max_concurrent", cfg.MaxConcurrent),
		logging.Bool("needs_unlock", m.gate.Capabilities().NeedsUnlock),
	)
	return m, nil
}

// SessionID identifies this manager instance in logs and diagnostics.
func (m *Manager) SessionID() string { return m.sessionID }

// Capabilities reports what the detected platform supports.
func (m *Manager) Capabilities() Capabilities { return m.gate.Capabilities() }

// GateState reports the unlock gate position.
func (m *Manager) GateState() GateState { return m.gate.State() }

// Play loads the asset if necessary and starts playback. Playing an
// already playing asset restarts it from the beginning; playing a paused
// asset resumes it. When the simultaneous playback limit is reached the
// request is refused quietly and the asset stays idle.
func (m *Manager) Play(ctx context.Context, assetID string) error {
	return m.PlayWithOptions(ctx, assetID, PlayOptions{})
}

// PlayWithOptions is Play with per-request overrides.
func (m *Manager) PlayWithOptions(ctx context.Context, assetID string, opts PlayOptions) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return ErrManagerDestroyed
	}
	m.mu.Unlock()

	if !m.gate.Admit(assetID) {
		// Intent is queued behind the locked output; Unlock replays it.
		return nil
	}

	m.mu.Lock()
	slot := m.slot(assetID)

	switch slot.state {
	case StatePlaying:
		s := slot.streamer
		m.mu.Unlock()
		m.output.Lock()
		err := s.Seek(0)
		m.output.Unlock()
		if err != nil {
			m.logger.Warn("restart seek failed", logging.String("asset_id", assetID), logging.Err(err))
		}
		return nil
	case StatePaused:
		m.resumeLocked(slot)
		m.mu.Unlock()
		return nil
	case StateLoading:
		m.mu.Unlock()
		return nil
	}

	gen := slot.gen
	m.transition(slot, StateLoading, "play requested")

	if slot.streamer == nil {
		m.mu.Unlock()

		result := m.loader.LoadPreferred(ctx, assetID, opts.Format)

		m.mu.Lock()
		if m.destroyed {
			if result.OK {
				_ = result.streamer.Close()
			}
			m.mu.Unlock()
			return ErrManagerDestroyed
		}
		if slot.gen != gen {
			// Stopped while loading; discard the late result.
			if result.OK {
				_ = result.streamer.Close()
			}
			m.mu.Unlock()
			return nil
		}
		if !result.OK {
			slot.lastErr = result.Err
			m.transition(slot, StateError, result.Err.Kind.String())
			m.mu.Unlock()
			return result.Err
		}
		slot.streamer = result.streamer
		slot.format = result.sampleFormat
		slot.lastErr = nil
	}
	defer m.mu.Unlock()

	if m.playing >= m.cfg.MaxConcurrent {
		if opts.QueueWhenBusy {
			slot.pendingPlay = true
			m.logger.Debug("playback slot busy, queueing",
				logging.String("asset_id", assetID),
				logging.Int("playing", m.playing),
			)
			return nil
		}
		_ = slot.streamer.Close()
		slot.streamer = nil
		m.transition(slot, StateIdle, "refused: playback limit reached")
		return nil
	}

	return m.startLocked(slot)
}

// Load fetches and decodes an asset ahead of playback. The decoded
// stream is cached on the asset and picked up by the next Play, which
// then skips the network entirely. Loading an asset that is already
// loaded, playing or paused succeeds immediately.
func (m *Manager) Load(ctx context.Context, assetID string) (LoadResult, error) {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return LoadResult{}, ErrManagerDestroyed
	}
	slot := m.slot(assetID)
	if slot.streamer != nil || slot.state == StatePlaying || slot.state == StatePaused {
		m.mu.Unlock()
		return LoadResult{OK: true, AssetID: assetID}, nil
	}
	gen := slot.gen
	owned := slot.state == StateIdle || slot.state == StateError
	if owned {
		m.transition(slot, StateLoading, "preload requested")
	}
	m.mu.Unlock()

	result := m.loader.Load(ctx, assetID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !owned {
		// A concurrent Play owns this load; report its outcome only.
		result.streamer = nil
		return result, nil
	}
	if m.destroyed {
		if result.OK {
			_ = result.streamer.Close()
		}
		return LoadResult{}, ErrManagerDestroyed
	}
	if slot.gen != gen {
		if result.OK {
			_ = result.streamer.Close()
		}
		result.streamer = nil
		return result, nil
	}
	if !result.OK {
		slot.lastErr = result.Err
		m.transition(slot, StateError, result.Err.Kind.String())
		return result, nil
	}
	slot.streamer = result.streamer
	slot.format = result.sampleFormat
	slot.lastErr = nil
	if slot.state == StateLoading && !slot.pendingPlay {
		m.transition(slot, StateIdle, "preloaded")
	}
	return result, nil
}

// Retry re-attempts an asset that is in the error state with a fresh
// retry budget.
func (m *Manager) Retry(ctx context.Context, assetID string) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return ErrManagerDestroyed
	}
	slot := m.slot(assetID)
	if slot.state != StateError {
		m.mu.Unlock()
		return m.Play(ctx, assetID)
	}
	gen := slot.gen
	m.transition(slot, StateLoading, "retry requested")
	m.mu.Unlock()

	result := m.loader.Retry(ctx, assetID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed || slot.gen != gen {
		if result.OK {
			_ = result.streamer.Close()
		}
		return nil
	}
	if !result.OK {
		slot.lastErr = result.Err
		m.transition(slot, StateError, result.Err.Kind.String())
		return result.Err
	}
	slot.streamer = result.streamer
	slot.format = result.sampleFormat
	slot.lastErr = nil
	if m.playing >= m.cfg.MaxConcurrent {
		_ = slot.streamer.Close()
		slot.streamer = nil
		m.transition(slot, StateIdle, "refused: playback limit reached")
		return nil
	}
	return m.startLocked(slot)
}

// startLocked moves a loaded slot into the playing state. Caller holds mu.
func (m *Manager) startLocked(slot *assetSlot) error {
	if err := m.openOutputLocked(); err != nil {
		slot.lastErr = Classify(Failure{Op: OpDecode, Path: slot.id, Err: err})
		m.transition(slot, StateError, "output open failed")
		return slot.lastErr
	}

	var src beep.Streamer = slot.streamer
	target := beep.SampleRate(m.cfg.SampleRate)
	if slot.format.SampleRate != target {
		src = beep.Resample(m.cfg.ResampleQuality, slot.format.SampleRate, target, slot.streamer)
	}

	slot.ctrl = &beep.Ctrl{Streamer: src}
	slot.volume = &effects.Volume{
		Streamer: slot.ctrl,
		Base:     2,
		Volume:   volumeGain(m.masterVolume),
		Silent:   m.muted || m.masterVolume == 0,
	}

	// The callback fires on the audio goroutine with the speaker lock
	// held; taking m.mu or calling back into the output there deadlocks,
	// so completion handling is shunted onto its own goroutine.
	id, gen := slot.id, slot.gen
	done := beep.Callback(func() { go m.onFinished(id, gen) })

	slot.pendingPlay = false
	m.playing++
	m.transition(slot, StatePlaying, "playback started")

	m.output.Play(beep.Seq(slot.volume, done))
	return nil
}

// Pause suspends a playing asset, freeing its playback slot. Pausing an
// asset that is not playing is a no-op.
func (m *Manager) Pause(assetID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.assets[assetID]
	if !ok || slot.state != StatePlaying {
		return
	}
	m.pauseLocked(slot, "paused")
	m.drainPendingLocked()
}

func (m *Manager) pauseLocked(slot *assetSlot, reason string) {
	m.output.Lock()
	slot.ctrl.Paused = true
	m.output.Unlock()
	m.playing--
	m.transition(slot, StatePaused, reason)
}

// Resume continues a paused asset if a playback slot is free.
func (m *Manager) Resume(assetID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.assets[assetID]
	if !ok || slot.state != StatePaused {
		return
	}
	m.resumeLocked(slot)
}

func (m *Manager) resumeLocked(slot *assetSlot) {
	if m.playing >= m.cfg.MaxConcurrent {
		return
	}
	m.output.Lock()
	slot.ctrl.Paused = false
	m.output.Unlock()
	slot.autoPaused = false
	m.playing++
	m.transition(slot, StatePlaying, "resumed")
}

// Stop halts the asset and returns it to idle. Stopping an asset that is
// already idle, still loading or errored is safe; a load in flight is
// invalidated and its result discarded.
func (m *Manager) Stop(assetID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.assets[assetID]
	if !ok {
		return
	}
	m.stopLocked(slot, "stopped")
}

func (m *Manager) stopLocked(slot *assetSlot, reason string) {
	slot.gen++
	slot.pendingPlay = false
	slot.autoPaused = false

	switch slot.state {
	case StatePlaying:
		m.playing--
		fallthrough
	case StatePaused:
		m.output.Lock()
		slot.ctrl.Streamer = nil
		m.output.Unlock()
		_ = slot.streamer.Close()
		slot.streamer = nil
		slot.ctrl = nil
		slot.volume = nil
		m.transition(slot, StateIdle, reason)
		m.drainPendingLocked()
	case StateLoading, StateError:
		if slot.streamer != nil {
			_ = slot.streamer.Close()
			slot.streamer = nil
		}
		m.transition(slot, StateIdle, reason)
	}
}

// StopAll stops every asset.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, slot := range m.assets {
		m.stopLocked(slot, "stop all")
	}
}

// onFinished runs from the output's callback when a stream completes.
func (m *Manager) onFinished(assetID string, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.assets[assetID]
	if !ok || slot.gen != gen || slot.state != StatePlaying {
		return
	}
	slot.gen++
	_ = slot.streamer.Close()
	slot.streamer = nil
	slot.ctrl = nil
	slot.volume = nil
	m.playing--
	m.transition(slot, StateIdle, "playback finished")
	m.drainPendingLocked()
}

// drainPendingLocked starts queued loaded assets while slots are free.
func (m *Manager) drainPendingLocked() {
	if m.destroyed {
		return
	}
	for _, slot := range m.assets {
		if m.playing >= m.cfg.MaxConcurrent {
			return
		}
		if slot.pendingPlay && slot.streamer != nil {
			if err := m.startLocked(slot); err != nil {
				m.logger.Warn("queued playback failed",
					logging.String("asset_id", slot.id),
					logging.Err(err),
				)
			}
		}
	}
}

// SetMasterVolume sets the global volume, clamped to [0, 1], and applies
// it to every active stream.
func (m *Manager) SetMasterVolume(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.masterVolume = math.Min(1, math.Max(0, v))
	m.applyVolumeLocked()
}

// MasterVolume returns the current global volume.
func (m *Manager) MasterVolume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.masterVolume
}

// Mute silences all playback without touching the stored volume.
func (m *Manager) Mute() { m.setMuted(true) }

// Unmute restores playback at the stored volume.
func (m *Manager) Unmute() { m.setMuted(false) }

// IsMuted reports whether output is muted.
func (m *Manager) IsMuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *Manager) setMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
	m.applyVolumeLocked()
}

func (m *Manager) applyVolumeLocked() {
	silent := m.muted || m.masterVolume == 0
	gain := volumeGain(m.masterVolume)
	m.output.Lock()
	for _, slot := range m.assets {
		if slot.volume != nil {
			slot.volume.Volume = gain
			slot.volume.Silent = silent
		}
	}
	m.output.Unlock()
}

// volumeGain maps a linear [0, 1] volume to the exponential gain the
// volume effect expects. Zero is handled by the Silent flag.
func volumeGain(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Log2(v)
}

// State returns the asset's current playback state. Unknown assets are
// idle.
func (m *Manager) State(assetID string) PlaybackState {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.assets[assetID]
	if !ok {
		return StateIdle
	}
	return slot.state
}

// LastError returns the classified error from the asset's most recent
// failed load, or nil.
func (m *Manager) LastError(assetID string) *AudioError {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.assets[assetID]
	if !ok {
		return nil
	}
	return slot.lastErr
}

// PlayingCount reports how many assets currently hold playback slots.
func (m *Manager) PlayingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// Stats returns a snapshot of the loading diagnostics.
func (m *Manager) Stats() diagnostics.LoadingStats {
	return m.diag.Snapshot()
}

// Transitions returns the recent state change history, oldest first.
func (m *Manager) Transitions() []StateChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StateChange, len(m.transitions))
	copy(out, m.transitions)
	return out
}

// Unlock opens the audio output in response to a user gesture and starts
// any play intents that queued while the gate was locked.
func (m *Manager) Unlock(ctx context.Context) error {
	queued, err := m.gate.Unlock(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.openOutputLocked()
	})
	if err != nil {
		return err
	}
	for _, id := range queued {
		if err := m.Play(ctx, id); err != nil {
			m.logger.Warn("queued intent failed after unlock",
				logging.String("asset_id", id),
				logging.Err(err),
			)
		}
	}
	return nil
}

// OnVisibilityChange pauses all playing assets when the app is hidden
// and resumes exactly those on return.
func (m *Manager) OnVisibilityChange(hidden bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}
	if hidden {
		for _, slot := range m.assets {
			if slot.state == StatePlaying {
				m.pauseLocked(slot, "app hidden")
				slot.autoPaused = true
			}
		}
		return
	}
	for _, slot := range m.assets {
		if slot.state == StatePaused && slot.autoPaused {
			m.resumeLocked(slot)
		}
	}
}

// OnOrientationChange is a hook for platform rotation events. Playback
// carries on; the event is recorded for diagnostics.
func (m *Manager) OnOrientationChange() {
	m.logger.Debug("orientation changed")
}

// OnLowMemory releases decoded streams held by idle and errored assets.
func (m *Manager) OnLowMemory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	released := 0
	for _, slot := range m.assets {
		if (slot.state == StateIdle || slot.state == StateError) && slot.streamer != nil {
			_ = slot.streamer.Close()
			slot.streamer = nil
			slot.pendingPlay = false
			released++
		}
	}
	if released > 0 {
		m.logger.Info("released cached streams under memory pressure",
			logging.Int("released", released),
		)
	}
}

// Destroy stops everything and closes the output. Destroy is idempotent;
// all operations after it fail with ErrManagerDestroyed.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}
	m.destroyed = true
	for _, slot := range m.assets {
		m.stopLocked(slot, "manager destroyed")
	}
	m.output.Clear()
	if m.outputOpen {
		if err := m.output.Close(); err != nil {
			m.logger.Warn("output close failed", logging.Err(err))
		}
		m.outputOpen = false
	}
	m.logger.Info("playback manager destroyed")
}

// slot returns the tracked state for an asset, creating it idle. Caller
// holds mu.
func (m *Manager) slot(assetID string) *assetSlot {
	slot, ok := m.assets[assetID]
	if !ok {
		slot = &assetSlot{id: assetID, state: StateIdle}
		m.assets[assetID] = slot
	}
	return slot
}

// openOutputLocked lazily opens the audio device. Caller holds mu.
func (m *Manager) openOutputLocked() error {
	if m.outputOpen {
		return nil
	}
	sr := beep.SampleRate(m.cfg.SampleRate)
	if err := m.output.Open(sr, sr.N(m.cfg.SpeakerBuffer)); err != nil {
		return err
	}
	m.outputOpen = true
	return nil
}

// transition moves a slot to a new state and records it. Caller holds mu.
func (m *Manager) transition(slot *assetSlot, to PlaybackState, reason string) {
	from := slot.state
	slot.state = to
	m.transitions = append(m.transitions, StateChange{
		AssetID:   slot.id,
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	if len(m.transitions) > transitionHistory {
		m.transitions = m.transitions[len(m.transitions)-transitionHistory:]
	}
	m.logger.Debug("state transition",
		logging.String("asset_id", slot.id),
		logging.String("from", from.String()),
		logging.String("to", to.String()),
		logging.String("reason", reason),
	)
}
