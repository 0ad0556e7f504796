// Package audiotest provides a scripted in-memory Device for tests.
package audiotest

import (
	"context"
	"fmt"
	"sync"

	"memovox/internal/audio"
)

// FakeDevice implements audio.Device without touching real hardware. Tests
// script failures through the *Err fields and drive status callbacks with
// EmitStatus and Finish.
type FakeDevice struct {
	mu sync.Mutex

	// Scripted behavior.
	PermissionGranted bool
	BeginCaptureErr   error
	PauseCaptureErr   error
	EndCaptureErr     error
	LoadErr           error
	PlayErr           error
	PauseErr          error
	SeekErr           error
	RemoveErr         error
	LoadDurationMS    int64

	// Observed calls.
	LoadCount   int
	UnloadCount int
	LastSeekMS  int64
	LastRate    float64
	LastVolume  float64
	Removed     []audio.MediaRef

	capture       *audio.CaptureHandle
	capturePaused bool
	capFrames     int
	loaded        *audio.PlaybackHandle
	statusFn      audio.StatusFunc
	playing       bool
	nextRef       int
}

var _ audio.Device = (*FakeDevice)(nil)

// NewFakeDevice returns a fake with permission granted and 10s media.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{
		PermissionGranted: true,
		LoadDurationMS:    10000,
	}
}

func (d *FakeDevice) RequestCapturePermission(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.PermissionGranted
}

func (d *FakeDevice) BeginCapture(ctx context.Context) (audio.CaptureHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.BeginCaptureErr != nil {
		return audio.CaptureHandle{}, d.BeginCaptureErr
	}
	if d.capture != nil || d.loaded != nil {
		return audio.CaptureHandle{}, audio.ErrDeviceBusy
	}
	d.nextRef++
	h := audio.CaptureHandle{ID: fmt.Sprintf("cap-%d", d.nextRef)}
	d.capture = &h
	d.capturePaused = false
	d.capFrames = 0
	return h, nil
}

func (d *FakeDevice) PauseCapture(ctx context.Context, h audio.CaptureHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PauseCaptureErr != nil {
		return d.PauseCaptureErr
	}
	if d.capture == nil || d.capture.ID != h.ID {
		return audio.ErrInvalidHandle
	}
	d.capturePaused = true
	return nil
}

func (d *FakeDevice) ResumeCapture(ctx context.Context, h audio.CaptureHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capture == nil || d.capture.ID != h.ID {
		return audio.ErrInvalidHandle
	}
	d.capturePaused = false
	return nil
}

func (d *FakeDevice) EndCapture(ctx context.Context, h audio.CaptureHandle) (audio.MediaRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capture == nil || d.capture.ID != h.ID {
		return "", audio.ErrInvalidHandle
	}
	d.capture = nil
	if d.EndCaptureErr != nil {
		return "", d.EndCaptureErr
	}
	return audio.MediaRef(fmt.Sprintf("/media/%s.wav", h.ID)), nil
}

func (d *FakeDevice) AbortCapture(h audio.CaptureHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capture != nil && d.capture.ID == h.ID {
		d.capture = nil
	}
	return nil
}

// Capturing reports whether a capture stream is currently open.
func (d *FakeDevice) Capturing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capture != nil
}

// CapturePaused reports whether the open capture is paused.
func (d *FakeDevice) CapturePaused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capturePaused
}

// FeedFrames simulates n input frames arriving from the hardware. Frames
// are recorded only while a capture is open and not paused.
func (d *FakeDevice) FeedFrames(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capture == nil || d.capturePaused {
		return
	}
	d.capFrames += n
}

// CapturedFrames returns how many fed frames reached the capture.
func (d *FakeDevice) CapturedFrames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capFrames
}

func (d *FakeDevice) LoadMedia(ctx context.Context, ref audio.MediaRef) (audio.PlaybackHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.LoadErr != nil {
		return audio.PlaybackHandle{}, d.LoadErr
	}
	if d.capture != nil || d.loaded != nil {
		return audio.PlaybackHandle{}, audio.ErrDeviceBusy
	}
	d.nextRef++
	d.LoadCount++
	h := audio.PlaybackHandle{ID: fmt.Sprintf("play-%d", d.nextRef), DurationMS: d.LoadDurationMS}
	d.loaded = &h
	d.playing = false
	return h, nil
}

func (d *FakeDevice) checkLoaded(h audio.PlaybackHandle) error {
	if d.loaded == nil || d.loaded.ID != h.ID {
		return audio.ErrInvalidHandle
	}
	return nil
}

func (d *FakeDevice) Play(ctx context.Context, h audio.PlaybackHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PlayErr != nil {
		return d.PlayErr
	}
	if err := d.checkLoaded(h); err != nil {
		return err
	}
	d.playing = true
	return nil
}

func (d *FakeDevice) Pause(ctx context.Context, h audio.PlaybackHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PauseErr != nil {
		return d.PauseErr
	}
	if err := d.checkLoaded(h); err != nil {
		return err
	}
	d.playing = false
	return nil
}

func (d *FakeDevice) Seek(ctx context.Context, h audio.PlaybackHandle, positionMS int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SeekErr != nil {
		return d.SeekErr
	}
	if err := d.checkLoaded(h); err != nil {
		return err
	}
	d.LastSeekMS = positionMS
	return nil
}

func (d *FakeDevice) SetRate(ctx context.Context, h audio.PlaybackHandle, rate float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLoaded(h); err != nil {
		return err
	}
	d.LastRate = rate
	return nil
}

func (d *FakeDevice) SetVolume(ctx context.Context, h audio.PlaybackHandle, volume float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLoaded(h); err != nil {
		return err
	}
	d.LastVolume = volume
	return nil
}

func (d *FakeDevice) SubscribeStatus(h audio.PlaybackHandle, fn audio.StatusFunc) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLoaded(h); err != nil {
		return nil, err
	}
	d.statusFn = fn
	id := h.ID
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.loaded != nil && d.loaded.ID == id {
			d.statusFn = nil
		}
	}, nil
}

func (d *FakeDevice) Unload(h audio.PlaybackHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded == nil || d.loaded.ID != h.ID {
		return nil
	}
	d.loaded = nil
	d.statusFn = nil
	d.playing = false
	d.UnloadCount++
	return nil
}

func (d *FakeDevice) RemoveMedia(ref audio.MediaRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Removed = append(d.Removed, ref)
	return d.RemoveErr
}

func (d *FakeDevice) Close() error { return nil }

// Loaded reports whether a playback handle is currently open.
func (d *FakeDevice) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded != nil
}

// Playing reports the fake transport state.
func (d *FakeDevice) Playing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

// EmitStatus delivers a status update to the current subscriber, if any.
func (d *FakeDevice) EmitStatus(st audio.Status) {
	d.mu.Lock()
	fn := d.statusFn
	d.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// Finish simulates natural end of media: the fake pauses, rewinds, and
// delivers a Finished status.
func (d *FakeDevice) Finish() {
	d.mu.Lock()
	d.playing = false
	dur := d.LoadDurationMS
	fn := d.statusFn
	d.mu.Unlock()
	if fn != nil {
		fn(audio.Status{PositionMS: dur, DurationMS: dur, Finished: true})
	}
}
