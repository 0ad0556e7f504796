package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"memovox/internal/audio"
)

// ErrNotLoaded means a transport operation arrived before media was loaded.
var ErrNotLoaded = errors.New("no media loaded")

// Snapshot is the observable playback state at one instant.
type Snapshot struct {
	NoteID     string
	PositionMS int64
	DurationMS int64
	Playing    bool
	Rate       float64
	Volume     float64
	Finished   bool
}

// Playback drives one note's audio from load through transport control to
// close. Natural completion rewinds to 0 and pauses but keeps the media
// loaded, so replay is a single Play without reload latency. Close is the
// only way device resources are released.
type Playback struct {
	device audio.Device
	log    *zap.Logger

	mu       sync.Mutex
	noteID   string
	handle   audio.PlaybackHandle
	unsub    func()
	loaded   bool
	playing  bool
	position int64
	duration int64
	rate     float64
	volume   float64

	// onStatus receives a snapshot after every accepted status update.
	onStatus func(Snapshot)
}

// NewPlayback creates an unloaded playback session. onStatus may be nil.
func NewPlayback(device audio.Device, log *zap.Logger, onStatus func(Snapshot)) *Playback {
	if log == nil {
		log = zap.NewNop()
	}
	return &Playback{
		device:   device,
		log:      log,
		rate:     1.0,
		volume:   1.0,
		onStatus: onStatus,
	}
}

// NoteID returns the note this session targets, or "" before Load.
func (p *Playback) NoteID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.noteID
}

// Snapshot returns the current observable state.
func (p *Playback) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// snapshotLocked is called with p.mu held.
func (p *Playback) snapshotLocked() Snapshot {
	return Snapshot{
		NoteID:     p.noteID,
		PositionMS: p.position,
		DurationMS: p.duration,
		Playing:    p.playing,
		Rate:       p.rate,
		Volume:     p.volume,
	}
}

// Load opens the note's media and subscribes for status updates. The session
// starts paused at position 0 with rate 1.0.
func (p *Playback) Load(ctx context.Context, noteID string, ref audio.MediaRef) error {
	p.mu.Lock()
	if p.loaded {
		p.mu.Unlock()
		return ErrInvalidState
	}
	p.mu.Unlock()

	handle, err := p.device.LoadMedia(ctx, ref)
	if err != nil {
		return err
	}

	// The callback captures this handle's identity; updates from a handle
	// that has since been unloaded are discarded, never applied to a newer
	// session's state.
	unsub, err := p.device.SubscribeStatus(handle, func(st audio.Status) {
		p.applyStatus(handle.ID, st)
	})
	if err != nil {
		p.device.Unload(handle)
		return err
	}

	p.mu.Lock()
	p.noteID = noteID
	p.handle = handle
	p.unsub = unsub
	p.loaded = true
	p.playing = false
	p.position = 0
	p.duration = handle.DurationMS
	p.rate = 1.0
	p.mu.Unlock()

	p.log.Info("playback loaded", zap.String("noteId", noteID),
		zap.Int64("durationMs", handle.DurationMS))
	return nil
}

// applyStatus folds a device status update into the session. Updates are
// accepted only while the originating handle is still current.
func (p *Playback) applyStatus(handleID string, st audio.Status) {
	p.mu.Lock()
	if !p.loaded || p.handle.ID != handleID {
		p.mu.Unlock()
		return
	}

	var snap Snapshot
	if st.Finished {
		p.position = 0
		p.playing = false
		snap = p.snapshotLocked()
		snap.Finished = true
	} else {
		p.position = st.PositionMS
		p.playing = st.Playing
		if st.DurationMS > 0 {
			p.duration = st.DurationMS
		}
		snap = p.snapshotLocked()
	}
	onStatus := p.onStatus
	p.mu.Unlock()

	if onStatus != nil {
		onStatus(snap)
	}
}

// Play starts or resumes playback. A no-op while already playing.
func (p *Playback) Play(ctx context.Context) error {
	p.mu.Lock()
	if !p.loaded {
		p.mu.Unlock()
		return ErrNotLoaded
	}
	if p.playing {
		p.mu.Unlock()
		return nil
	}
	handle := p.handle
	p.mu.Unlock()

	if err := p.device.Play(ctx, handle); err != nil {
		return err
	}

	p.mu.Lock()
	p.playing = true
	p.mu.Unlock()
	return nil
}

// Pause halts playback. A no-op while already paused.
func (p *Playback) Pause(ctx context.Context) error {
	p.mu.Lock()
	if !p.loaded {
		p.mu.Unlock()
		return ErrNotLoaded
	}
	if !p.playing {
		p.mu.Unlock()
		return nil
	}
	handle := p.handle
	p.mu.Unlock()

	if err := p.device.Pause(ctx, handle); err != nil {
		return err
	}

	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
	return nil
}

// Seek moves the cursor, clamping the target to [0, duration].
func (p *Playback) Seek(ctx context.Context, positionMS int64) error {
	p.mu.Lock()
	if !p.loaded {
		p.mu.Unlock()
		return ErrNotLoaded
	}
	if positionMS < 0 {
		positionMS = 0
	}
	if positionMS > p.duration {
		positionMS = p.duration
	}
	handle := p.handle
	p.mu.Unlock()

	if err := p.device.Seek(ctx, handle, positionMS); err != nil {
		return err
	}

	p.mu.Lock()
	p.position = positionMS
	p.mu.Unlock()
	return nil
}

// SetRate changes playback speed, clamped to [0.5, 2.0]. The rate sticks for
// the rest of the session across seeks and resumes.
func (p *Playback) SetRate(ctx context.Context, rate float64) error {
	p.mu.Lock()
	if !p.loaded {
		p.mu.Unlock()
		return ErrNotLoaded
	}
	if rate < 0.5 {
		rate = 0.5
	}
	if rate > 2.0 {
		rate = 2.0
	}
	handle := p.handle
	p.mu.Unlock()

	if err := p.device.SetRate(ctx, handle, rate); err != nil {
		return err
	}

	p.mu.Lock()
	p.rate = rate
	p.mu.Unlock()
	return nil
}

// SetVolume changes output gain, clamped to [0.0, 1.0].
func (p *Playback) SetVolume(ctx context.Context, volume float64) error {
	p.mu.Lock()
	if !p.loaded {
		p.mu.Unlock()
		return ErrNotLoaded
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	handle := p.handle
	p.mu.Unlock()

	if err := p.device.SetVolume(ctx, handle, volume); err != nil {
		return err
	}

	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
	return nil
}

// Close unsubscribes and unloads the device handle. Idempotent.
func (p *Playback) Close() error {
	p.mu.Lock()
	if !p.loaded {
		p.mu.Unlock()
		return nil
	}
	p.loaded = false
	p.playing = false
	handle := p.handle
	unsub := p.unsub
	p.unsub = nil
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if err := p.device.Unload(handle); err != nil {
		p.log.Warn("unload playback", zap.Error(err))
		return err
	}
	p.log.Info("playback closed", zap.String("noteId", p.noteID))
	return nil
}
