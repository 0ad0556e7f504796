// Package session holds the transient recording and playback state machines.
// Sessions are created and resolved by the library orchestrator; they never
// touch the note collection themselves.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"memovox/internal/audio"
)

// ErrInvalidState means the requested transition is not allowed from the
// session's current state.
var ErrInvalidState = errors.New("invalid session state")

// RecordingState is the lifecycle position of one capture attempt.
type RecordingState int

const (
	RecIdle RecordingState = iota
	RecRequestingPermission
	RecCapturing
	RecPaused
	RecFinalizing
	RecSaved
	RecDiscarded
	RecFailed
)

func (s RecordingState) String() string {
	switch s {
	case RecIdle:
		return "idle"
	case RecRequestingPermission:
		return "requesting-permission"
	case RecCapturing:
		return "capturing"
	case RecPaused:
		return "paused"
	case RecFinalizing:
		return "finalizing"
	case RecSaved:
		return "saved"
	case RecDiscarded:
		return "discarded"
	case RecFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the session has resolved. Terminal states are
// final; a new recording needs a fresh session.
func (s RecordingState) Terminal() bool {
	return s == RecSaved || s == RecDiscarded || s == RecFailed
}

// FailureReason explains a RecFailed resolution.
type FailureReason int

const (
	FailureNone FailureReason = iota
	FailurePermissionDenied
	FailureDevice
)

// RecordingConfig wires a Recording to its collaborators.
type RecordingConfig struct {
	Device     audio.Device
	CeilingSec int
	Log        *zap.Logger

	// TickInterval is how often the elapsed counter advances. Defaults to
	// one second; tests shorten it.
	TickInterval time.Duration

	// OnTick is called with the elapsed seconds after each counter advance.
	OnTick func(elapsedSec int)

	// OnCeiling is called once when elapsed reaches the ceiling. The
	// callback must resolve the session via Stop, exactly as a user stop.
	OnCeiling func()
}

// Recording drives one capture from start to a saved note, a discard, or a
// failure. The elapsed counter runs on an internal ticker and freezes while
// paused; reaching the ceiling triggers a policy stop, not an error.
type Recording struct {
	device audio.Device
	log    *zap.Logger

	mu           sync.Mutex
	state        RecordingState
	reason       FailureReason
	handle       audio.CaptureHandle
	elapsed      int
	ceiling      int
	ceilingFired bool
	tickInterval time.Duration
	stopTick     chan struct{}
	onTick       func(int)
	onCeiling    func()
}

// NewRecording creates an idle recording session.
func NewRecording(cfg RecordingConfig) *Recording {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Recording{
		device:       cfg.Device,
		log:          log,
		state:        RecIdle,
		ceiling:      cfg.CeilingSec,
		tickInterval: interval,
		onTick:       cfg.OnTick,
		onCeiling:    cfg.OnCeiling,
	}
}

// State returns the current lifecycle state.
func (r *Recording) State() RecordingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Reason returns why the session failed, if it did.
func (r *Recording) Reason() FailureReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

// Elapsed returns the counted capture seconds so far.
func (r *Recording) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Start requests capture permission and begins capturing. Permission denial
// resolves the session as failed without ever allocating a capture handle.
func (r *Recording) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != RecIdle {
		r.mu.Unlock()
		return ErrInvalidState
	}
	r.state = RecRequestingPermission
	r.mu.Unlock()

	if !r.device.RequestCapturePermission(ctx) {
		r.mu.Lock()
		r.state = RecFailed
		r.reason = FailurePermissionDenied
		r.mu.Unlock()
		r.log.Warn("recording failed: permission denied")
		return audio.ErrPermissionDenied
	}

	handle, err := r.device.BeginCapture(ctx)
	if err != nil {
		r.mu.Lock()
		r.state = RecFailed
		r.reason = FailureDevice
		r.mu.Unlock()
		r.log.Warn("recording failed: begin capture", zap.Error(err))
		return err
	}

	r.mu.Lock()
	r.handle = handle
	r.state = RecCapturing
	r.stopTick = make(chan struct{})
	go r.runTicker(r.stopTick)
	r.mu.Unlock()

	r.log.Info("recording started", zap.Int("ceilingSec", r.ceiling))
	return nil
}

func (r *Recording) runTicker(stop chan struct{}) {
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

// tick advances the elapsed counter while capturing. The counter freezes in
// RecPaused. Reaching the ceiling fires OnCeiling exactly once.
func (r *Recording) tick() {
	r.mu.Lock()
	if r.state != RecCapturing {
		r.mu.Unlock()
		return
	}
	// The counter caps at the ceiling so a tick racing the auto-stop can
	// never push the final duration past it.
	if r.ceiling > 0 && r.elapsed >= r.ceiling {
		r.mu.Unlock()
		return
	}
	r.elapsed++
	elapsed := r.elapsed
	onTick := r.onTick
	fireCeiling := r.ceiling > 0 && elapsed >= r.ceiling && !r.ceilingFired
	if fireCeiling {
		r.ceilingFired = true
	}
	onCeiling := r.onCeiling
	r.mu.Unlock()

	if onTick != nil {
		onTick(elapsed)
	}
	if fireCeiling && onCeiling != nil {
		r.log.Info("recording ceiling reached", zap.Int("elapsedSec", elapsed))
		go onCeiling()
	}
}

// Pause suspends the capture stream and freezes the elapsed counter. A
// no-op when already paused. The state only moves to RecPaused once the
// device has stopped taking samples, so nothing is recorded that the user
// believes is paused.
func (r *Recording) Pause(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case RecPaused:
		r.mu.Unlock()
		return nil
	case RecCapturing:
	default:
		r.mu.Unlock()
		return ErrInvalidState
	}
	handle := r.handle
	r.mu.Unlock()

	if err := r.device.PauseCapture(ctx, handle); err != nil {
		r.log.Warn("pause capture", zap.Error(err))
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RecCapturing {
		r.state = RecPaused
	}
	return nil
}

// Resume restarts the capture stream and the elapsed counter. A no-op when
// already capturing.
func (r *Recording) Resume(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case RecCapturing:
		r.mu.Unlock()
		return nil
	case RecPaused:
	default:
		r.mu.Unlock()
		return ErrInvalidState
	}
	handle := r.handle
	r.mu.Unlock()

	if err := r.device.ResumeCapture(ctx, handle); err != nil {
		r.log.Warn("resume capture", zap.Error(err))
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RecPaused {
		r.state = RecCapturing
	}
	return nil
}

// Stop finalizes the capture. On success it returns the media reference and
// the final duration in seconds and resolves to RecSaved; a device failure
// resolves to RecFailed and the in-progress capture is lost.
func (r *Recording) Stop(ctx context.Context) (audio.MediaRef, int, error) {
	r.mu.Lock()
	if r.state != RecCapturing && r.state != RecPaused {
		r.mu.Unlock()
		return "", 0, ErrInvalidState
	}
	r.state = RecFinalizing
	r.stopTicker()
	handle := r.handle
	elapsed := r.elapsed
	r.mu.Unlock()

	ref, err := r.device.EndCapture(ctx, handle)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.state = RecFailed
		r.reason = FailureDevice
		r.log.Warn("recording failed: finalize", zap.Error(err))
		return "", 0, err
	}

	r.state = RecSaved
	r.log.Info("recording saved", zap.String("ref", string(ref)), zap.Int("durationSec", elapsed))
	return ref, elapsed, nil
}

// Discard cancels the capture before finalize. The capture handle is
// released and no note is created.
func (r *Recording) Discard() error {
	r.mu.Lock()
	if r.state != RecCapturing && r.state != RecPaused {
		r.mu.Unlock()
		return ErrInvalidState
	}
	r.state = RecDiscarded
	r.stopTicker()
	handle := r.handle
	r.mu.Unlock()

	if err := r.device.AbortCapture(handle); err != nil {
		r.log.Warn("abort capture", zap.Error(err))
	}
	r.log.Info("recording discarded")
	return nil
}

// stopTicker is called with r.mu held.
func (r *Recording) stopTicker() {
	if r.stopTick != nil {
		close(r.stopTick)
		r.stopTick = nil
	}
}
