package audio

import "context"

// watchdog wraps a Device so every context-bound call honors its deadline.
// The wrapped call runs in its own goroutine; when the context expires first
// the caller gets a DeviceError wrapping ctx.Err() and the abandoned call's
// result is cleaned up when it eventually lands. Backends that already honor
// their context pass through unchanged.
type watchdog struct {
	dev Device
}

// NewWatchdog returns dev guarded against hung calls.
func NewWatchdog(dev Device) Device {
	return &watchdog{dev: dev}
}

func (w *watchdog) guard(ctx context.Context, op string, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &DeviceError{Op: op, Err: ctx.Err()}
	}
}

func (w *watchdog) RequestCapturePermission(ctx context.Context) bool {
	done := make(chan bool, 1)
	go func() { done <- w.dev.RequestCapturePermission(ctx) }()
	select {
	case granted := <-done:
		return granted
	case <-ctx.Done():
		// Permission checks fail closed.
		return false
	}
}

func (w *watchdog) BeginCapture(ctx context.Context) (CaptureHandle, error) {
	type result struct {
		h   CaptureHandle
		err error
	}
	done := make(chan result, 1)
	go func() {
		h, err := w.dev.BeginCapture(ctx)
		done <- result{h, err}
	}()
	select {
	case r := <-done:
		return r.h, r.err
	case <-ctx.Done():
		// A capture that lands after the timeout would hold the device
		// with no owner; release it.
		go func() {
			if r := <-done; r.err == nil {
				w.dev.AbortCapture(r.h)
			}
		}()
		return CaptureHandle{}, &DeviceError{Op: "begin capture", Err: ctx.Err()}
	}
}

func (w *watchdog) PauseCapture(ctx context.Context, h CaptureHandle) error {
	return w.guard(ctx, "pause capture", func() error { return w.dev.PauseCapture(ctx, h) })
}

func (w *watchdog) ResumeCapture(ctx context.Context, h CaptureHandle) error {
	return w.guard(ctx, "resume capture", func() error { return w.dev.ResumeCapture(ctx, h) })
}

func (w *watchdog) EndCapture(ctx context.Context, h CaptureHandle) (MediaRef, error) {
	type result struct {
		ref MediaRef
		err error
	}
	done := make(chan result, 1)
	go func() {
		ref, err := w.dev.EndCapture(ctx, h)
		done <- result{ref, err}
	}()
	select {
	case r := <-done:
		return r.ref, r.err
	case <-ctx.Done():
		return "", &DeviceError{Op: "end capture", Err: ctx.Err()}
	}
}

func (w *watchdog) LoadMedia(ctx context.Context, ref MediaRef) (PlaybackHandle, error) {
	type result struct {
		h   PlaybackHandle
		err error
	}
	done := make(chan result, 1)
	go func() {
		h, err := w.dev.LoadMedia(ctx, ref)
		done <- result{h, err}
	}()
	select {
	case r := <-done:
		return r.h, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				w.dev.Unload(r.h)
			}
		}()
		return PlaybackHandle{}, &DeviceError{Op: "load media", Err: ctx.Err()}
	}
}

func (w *watchdog) Play(ctx context.Context, h PlaybackHandle) error {
	return w.guard(ctx, "play", func() error { return w.dev.Play(ctx, h) })
}

func (w *watchdog) Pause(ctx context.Context, h PlaybackHandle) error {
	return w.guard(ctx, "pause", func() error { return w.dev.Pause(ctx, h) })
}

func (w *watchdog) Seek(ctx context.Context, h PlaybackHandle, positionMS int64) error {
	return w.guard(ctx, "seek", func() error { return w.dev.Seek(ctx, h, positionMS) })
}

func (w *watchdog) SetRate(ctx context.Context, h PlaybackHandle, rate float64) error {
	return w.guard(ctx, "set rate", func() error { return w.dev.SetRate(ctx, h, rate) })
}

func (w *watchdog) SetVolume(ctx context.Context, h PlaybackHandle, volume float64) error {
	return w.guard(ctx, "set volume", func() error { return w.dev.SetVolume(ctx, h, volume) })
}

func (w *watchdog) AbortCapture(h CaptureHandle) error { return w.dev.AbortCapture(h) }

func (w *watchdog) SubscribeStatus(h PlaybackHandle, fn StatusFunc) (func(), error) {
	return w.dev.SubscribeStatus(h, fn)
}

func (w *watchdog) Unload(h PlaybackHandle) error { return w.dev.Unload(h) }

func (w *watchdog) RemoveMedia(ref MediaRef) error { return w.dev.RemoveMedia(ref) }

func (w *watchdog) Close() error { return w.dev.Close() }
