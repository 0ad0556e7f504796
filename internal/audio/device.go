// Package audio wraps platform audio capture and playback behind a device
// contract the session layer can drive without knowing the backend.
package audio

import (
	"context"
	"errors"
	"fmt"
)

// Typed device failures surfaced to the orchestrator.
var (
	// ErrPermissionDenied means microphone access was refused. Permission
	// checks fail closed: a check error reports "not granted".
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrMediaNotFound means a media reference no longer resolves to a
	// readable resource.
	ErrMediaNotFound = errors.New("media not found")

	// ErrDeviceBusy means another capture or playback already holds the
	// device.
	ErrDeviceBusy = errors.New("audio device busy")

	// ErrInvalidHandle means the handle does not refer to the active
	// capture or playback stream.
	ErrInvalidHandle = errors.New("invalid audio handle")
)

// DeviceError wraps a platform audio failure with the operation that caused it.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// MediaRef is an opaque reference to a captured media resource. It stays
// valid until removed.
type MediaRef string

// CaptureHandle identifies one in-progress capture stream.
type CaptureHandle struct {
	ID string
}

// PlaybackHandle identifies one loaded media resource. DurationMS is known
// as soon as the media is loaded.
type PlaybackHandle struct {
	ID         string
	DurationMS int64
}

// Status is one playback progress report. Finished marks natural end of
// media; after it the engine has stopped and rewound to position 0, so a
// plain Play resumes from the start without reloading.
type Status struct {
	PositionMS int64
	DurationMS int64
	Playing    bool
	Finished   bool
}

// StatusFunc receives playback status updates. Delivery is best-effort at a
// bounded interval and stops after Finished or unsubscribe.
type StatusFunc func(Status)

// Device is the platform audio capability consumed by the session layer.
// At most one capture or playback stream is active at a time.
type Device interface {
	// RequestCapturePermission reports whether microphone capture is
	// allowed. It never returns an error for "denied"; it fails closed.
	RequestCapturePermission(ctx context.Context) bool

	// BeginCapture allocates a new capture stream and starts recording.
	BeginCapture(ctx context.Context) (CaptureHandle, error)

	// PauseCapture suspends sample intake on an in-progress capture. No
	// audio reaches the media while paused. A no-op when already paused.
	PauseCapture(ctx context.Context, h CaptureHandle) error

	// ResumeCapture restarts sample intake after PauseCapture. A no-op
	// when the capture is running.
	ResumeCapture(ctx context.Context, h CaptureHandle) error

	// EndCapture finalizes the capture and flushes it to durable media.
	// On failure the in-progress media is lost but the device is released.
	EndCapture(ctx context.Context, h CaptureHandle) (MediaRef, error)

	// AbortCapture discards an in-progress capture and removes any
	// partially written media.
	AbortCapture(h CaptureHandle) error

	// LoadMedia opens a previously captured media reference for playback.
	LoadMedia(ctx context.Context, ref MediaRef) (PlaybackHandle, error)

	// Transport controls. Each is idempotent when the action is already a
	// no-op in the current state.
	Play(ctx context.Context, h PlaybackHandle) error
	Pause(ctx context.Context, h PlaybackHandle) error
	Seek(ctx context.Context, h PlaybackHandle, positionMS int64) error
	SetRate(ctx context.Context, h PlaybackHandle, rate float64) error
	SetVolume(ctx context.Context, h PlaybackHandle, volume float64) error

	// SubscribeStatus registers a callback for position updates on h. The
	// returned cancel func unsubscribes; late callbacks from a handle that
	// has been unloaded or superseded are never delivered.
	SubscribeStatus(h PlaybackHandle, fn StatusFunc) (cancel func(), err error)

	// Unload releases the playback stream. Safe to call more than once.
	Unload(h PlaybackHandle) error

	// RemoveMedia deletes the media resource behind ref.
	RemoveMedia(ref MediaRef) error

	// Close tears down the device.
	Close() error
}
