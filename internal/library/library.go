// Package library orchestrates the note collection and the audio sessions.
// It owns the single source of truth for notes, enforces that at most one
// session is active at a time, and pushes state changes to the UI over an
// event channel.
package library

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"memovox/internal/audio"
	"memovox/internal/note"
	"memovox/internal/session"
	"memovox/internal/store"
)

var (
	// ErrSessionConflict is returned when an operation would start a
	// second concurrent session.
	ErrSessionConflict = errors.New("another session is active")

	// ErrValidation is returned for rejected input, such as an empty
	// note title.
	ErrValidation = errors.New("invalid input")

	// ErrNoteNotFound is returned when the referenced note does not
	// exist in the collection.
	ErrNoteNotFound = errors.New("note not found")

	// ErrNoSession is returned by session operations when no matching
	// session is active.
	ErrNoSession = errors.New("no active session")
)

const (
	defaultCeilingSec  = 600
	defaultCallTimeout = 5 * time.Second
	eventBuffer        = 64
)

// Config assembles a Library.
type Config struct {
	Store  store.Store
	Device audio.Device
	Log    *zap.Logger

	// CeilingSec caps recording length in seconds. Zero means the
	// default of ten minutes.
	CeilingSec int

	// DefaultVolume is applied when a note is loaded for playback.
	// Zero means full volume.
	DefaultVolume float64

	// CallTimeout bounds every device call. A device that hangs past it
	// surfaces as a DeviceError instead of freezing the caller.
	CallTimeout time.Duration

	// TickInterval overrides the recording timer interval in tests.
	TickInterval time.Duration

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Library is the single entry point for every user-facing operation.
// All methods are safe for concurrent use; operations are serialized.
type Library struct {
	mu     sync.Mutex
	store  store.Store
	device audio.Device
	log    *zap.Logger

	notes note.Collection
	rec   *session.Recording
	pb    *session.Playback

	events chan Event

	ceiling      int
	volume       float64
	timeout      time.Duration
	tickInterval time.Duration
	clock        func() time.Time
}

// New loads the persisted collection and returns a ready Library.
func New(cfg Config) (*Library, error) {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.CeilingSec <= 0 {
		cfg.CeilingSec = defaultCeilingSec
	}
	if cfg.DefaultVolume <= 0 || cfg.DefaultVolume > 1 {
		cfg.DefaultVolume = 1.0
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	notes, err := cfg.Store.Read()
	if err != nil {
		return nil, err
	}

	l := &Library{
		store: cfg.Store,
		// The watchdog turns a hung device call into a DeviceError once
		// CallTimeout expires, so l.mu is never held indefinitely.
		device:       audio.NewWatchdog(cfg.Device),
		log:          cfg.Log,
		notes:        notes,
		events:       make(chan Event, eventBuffer),
		ceiling:      cfg.CeilingSec,
		volume:       cfg.DefaultVolume,
		timeout:      cfg.CallTimeout,
		tickInterval: cfg.TickInterval,
		clock:        cfg.Clock,
	}
	l.log.Info("library ready", zap.Int("notes", len(notes)))
	return l, nil
}

// Events is the stream of library state changes. Events are dropped,
// not blocked on, when the receiver falls behind.
func (l *Library) Events() <-chan Event {
	return l.events
}

func (l *Library) emit(e Event) {
	select {
	case l.events <- e:
	default:
		l.log.Warn("event dropped", zap.Int("kind", int(e.Kind)))
	}
}

func (l *Library) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), l.timeout)
}

// recActive reports whether a recording session holds the device.
// Callers hold l.mu.
func (l *Library) recActive() bool {
	return l.rec != nil && !l.rec.State().Terminal()
}

// StartRecording begins a new capture. It fails with ErrSessionConflict
// while another recording or a playback session is active, and with
// audio.ErrPermissionDenied when microphone access is refused.
func (l *Library) StartRecording() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.recActive() || l.pb != nil {
		return ErrSessionConflict
	}

	rec := session.NewRecording(session.RecordingConfig{
		Device:       l.device,
		CeilingSec:   l.ceiling,
		Log:          l.log,
		TickInterval: l.tickInterval,
		OnTick: func(elapsed int) {
			l.emit(Event{Kind: EventRecordingElapsed, ElapsedSec: elapsed})
		},
		OnCeiling: func() {
			l.ceilingStop()
		},
	})

	ctx, cancel := l.callCtx()
	defer cancel()
	if err := rec.Start(ctx); err != nil {
		return err
	}
	l.rec = rec
	return nil
}

// ceilingStop finalizes the capture when it reaches the ceiling. The
// resulting note's duration equals the ceiling exactly.
func (l *Library) ceilingStop() {
	if _, err := l.StopRecording(); err != nil {
		l.log.Warn("ceiling stop", zap.Error(err))
	}
}

// PauseRecording suspends the capture stream and its timer.
func (l *Library) PauseRecording() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.recActive() {
		return ErrNoSession
	}
	ctx, cancel := l.callCtx()
	defer cancel()
	return l.rec.Pause(ctx)
}

// ResumeRecording continues a paused capture.
func (l *Library) ResumeRecording() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.recActive() {
		return ErrNoSession
	}
	ctx, cancel := l.callCtx()
	defer cancel()
	return l.rec.Resume(ctx)
}

// StopRecording finalizes the capture into a new note, prepends it to
// the collection and persists. The note is kept in memory even when the
// store write fails; the failure surfaces as an EventWarning.
func (l *Library) StopRecording() (note.VoiceNote, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.recActive() {
		return note.VoiceNote{}, ErrNoSession
	}

	ctx, cancel := l.callCtx()
	defer cancel()
	ref, elapsed, err := l.rec.Stop(ctx)
	if err != nil {
		if errors.Is(err, session.ErrInvalidState) {
			return note.VoiceNote{}, err
		}
		l.rec = nil
		return note.VoiceNote{}, err
	}
	l.rec = nil

	n := note.New(string(ref), elapsed, l.clock())
	l.notes = l.notes.Prepend(n)
	l.persistLocked("save note")

	l.emit(Event{Kind: EventRecordingDone, Note: n})
	l.emit(Event{Kind: EventNotesChanged})
	return n, nil
}

// DiscardRecording abandons the capture without creating a note.
func (l *Library) DiscardRecording() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.recActive() {
		return ErrNoSession
	}
	err := l.rec.Discard()
	l.rec = nil
	return err
}

// RecordingElapsed returns the current capture length in seconds, or
// false when no recording is active.
func (l *Library) RecordingElapsed() (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.recActive() {
		return 0, false
	}
	return l.rec.Elapsed(), true
}

// RecordingState returns the active recording's state, or false when no
// recording is active.
func (l *Library) RecordingState() (session.RecordingState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rec == nil {
		return session.RecIdle, false
	}
	return l.rec.State(), true
}

// ListNotes returns the notes matching query, newest first. An empty
// query returns the whole collection. Matching is a case-insensitive
// substring test against the title.
func (l *Library) ListNotes(query string) note.Collection {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.notes.Filter(query)
}

// RenameNote sets a note's title. An empty or blank title is rejected
// with ErrValidation and the stored title is untouched.
func (l *Library) RenameNote(id, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrValidation
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.notes.IndexOf(id)
	if i < 0 {
		return ErrNoteNotFound
	}
	l.notes[i].Text = text
	l.persistLocked("rename note")
	l.emit(Event{Kind: EventNotesChanged})
	return nil
}

// DeleteNote removes a note from the collection and deletes its media
// file. A playback session targeting the note is closed first. A media
// file that cannot be deleted is logged and otherwise ignored; the note
// itself is always removed.
func (l *Library) DeleteNote(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.notes.IndexOf(id)
	if i < 0 {
		return ErrNoteNotFound
	}
	uri := l.notes[i].URI

	if l.pb != nil && l.pb.NoteID() == id {
		l.closePlaybackLocked()
	}

	l.notes = l.notes.Remove(id)
	if err := l.device.RemoveMedia(audio.MediaRef(uri)); err != nil {
		l.log.Warn("remove media", zap.String("uri", uri), zap.Error(err))
	}
	l.persistLocked("delete note")
	l.emit(Event{Kind: EventNotesChanged})
	return nil
}

// persistLocked writes the collection through the store. On failure the
// in-memory collection stays authoritative and a warning event carries
// the error. Callers hold l.mu.
func (l *Library) persistLocked(op string) {
	if err := l.store.Write(l.notes); err != nil {
		l.log.Error("persist failed", zap.String("op", op), zap.Error(err))
		l.emit(Event{Kind: EventWarning, Message: op, Err: err})
	}
}

// LoadForPlayback opens a note's media for playback, replacing any
// playback session already open for another note. It fails with
// ErrSessionConflict while a recording is active and with
// audio.ErrMediaNotFound when the media file is gone.
func (l *Library) LoadForPlayback(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.recActive() {
		return ErrSessionConflict
	}
	i := l.notes.IndexOf(id)
	if i < 0 {
		return ErrNoteNotFound
	}
	if l.pb != nil {
		l.closePlaybackLocked()
	}

	pb := session.NewPlayback(l.device, l.log, func(s session.Snapshot) {
		l.emit(Event{Kind: EventPlaybackProgress, Playback: s})
	})

	ctx, cancel := l.callCtx()
	defer cancel()
	if err := pb.Load(ctx, id, audio.MediaRef(l.notes[i].URI)); err != nil {
		return err
	}
	if err := pb.SetVolume(ctx, l.volume); err != nil {
		l.log.Warn("set default volume", zap.Error(err))
	}
	l.pb = pb
	return nil
}

// playback returns the open playback session.
func (l *Library) playback() (*session.Playback, error) {
	if l.pb == nil {
		return nil, ErrNoSession
	}
	return l.pb, nil
}

// Play starts or resumes the loaded note.
func (l *Library) Play() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	pb, err := l.playback()
	if err != nil {
		return err
	}
	ctx, cancel := l.callCtx()
	defer cancel()
	return pb.Play(ctx)
}

// PausePlayback pauses the loaded note, holding its position.
func (l *Library) PausePlayback() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	pb, err := l.playback()
	if err != nil {
		return err
	}
	ctx, cancel := l.callCtx()
	defer cancel()
	return pb.Pause(ctx)
}

// Seek moves the playback position; the target is clamped to the
// note's duration.
func (l *Library) Seek(positionMS int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	pb, err := l.playback()
	if err != nil {
		return err
	}
	ctx, cancel := l.callCtx()
	defer cancel()
	return pb.Seek(ctx, positionMS)
}

// SetRate changes the playback speed, clamped to [0.5, 2.0].
func (l *Library) SetRate(rate float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	pb, err := l.playback()
	if err != nil {
		return err
	}
	ctx, cancel := l.callCtx()
	defer cancel()
	return pb.SetRate(ctx, rate)
}

// SetVolume changes the playback volume, clamped to [0, 1].
func (l *Library) SetVolume(volume float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	pb, err := l.playback()
	if err != nil {
		return err
	}
	ctx, cancel := l.callCtx()
	defer cancel()
	return pb.SetVolume(ctx, volume)
}

// PlaybackSnapshot returns the open playback session's state, or false
// when none is open.
func (l *Library) PlaybackSnapshot() (session.Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pb == nil {
		return session.Snapshot{}, false
	}
	return l.pb.Snapshot(), true
}

// ClosePlayback unloads the current note. A no-op when nothing is
// loaded.
func (l *Library) ClosePlayback() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pb == nil {
		return nil
	}
	l.closePlaybackLocked()
	return nil
}

// closePlaybackLocked tears down the playback session. Callers hold
// l.mu.
func (l *Library) closePlaybackLocked() {
	if err := l.pb.Close(); err != nil {
		l.log.Warn("close playback", zap.Error(err))
	}
	l.pb = nil
}

// Close discards any capture in progress and unloads playback. The
// store and device are owned by the caller and left open.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recActive() {
		if err := l.rec.Discard(); err != nil {
			l.log.Warn("discard on close", zap.Error(err))
		}
		l.rec = nil
	}
	if l.pb != nil {
		l.closePlaybackLocked()
	}
	return nil
}
