package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"memovox/internal/audio"
	"memovox/internal/audio/audiotest"
)

func TestRecordingStartCapturing(t *testing.T) {
	dev := audiotest.NewFakeDevice()
	r := NewRecording(RecordingConfig{Device: dev, CeilingSec: 600})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := r.State(); got != RecCapturing {
		t.Errorf("state = %v, want capturing", got)
	}
	if !dev.Capturing() {
		t.Error("device should be capturing")
	}
}

func TestRecordingPermissionDenied(t *testing.T) {
	dev := audiotest.NewFakeDevice()
	dev.PermissionGranted = false
	r := NewRecording(RecordingConfig{Device: dev, CeilingSec: 600})

	err := r.Start(context.Background())
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("Start err = %v, want ErrPermissionDenied", err)
	}
	if got := r.State(); got != RecFailed {
		t.Errorf("state = %v, want failed", got)
	}
	if got := r.Reason(); got != FailurePermissionDenied {
		t.Errorf("reason = %v, want permission denied", got)
	}
	if dev.Capturing() {
		t.Error("no capture handle should be allocated on denial")
	}
}

func TestRecordingBeginCaptureFails(t *testing.T) {
	dev := audiotest.NewFakeDevice()
	dev.BeginCaptureErr = &audio.DeviceError{Op: "open capture", Err: errors.New("hardware unavailable")}
	r := NewRecording(RecordingConfig{Device: dev, CeilingSec: 600})

	if err := r.Start(context.Background()); err == nil {
		t.Fatal("Start should fail")
	}
	if got := r.State(); got != RecFailed {
		t.Errorf("state = %v, want failed", got)
	}
	if got := r.Reason(); got != FailureDevice {
		t.Errorf("reason = %v, want device", got)
	}
}

func TestRecordingStopSaves(t *testing.T) {
	dev := audiotest.NewFakeDevice()
	r := NewRecording(RecordingConfig{Device: dev, CeilingSec: 600})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.tick()
	r.tick()
	r.tick()

	ref, dur, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if ref == "" {
		t.Error("expected a media reference")
	}
	if dur != 3 {
		t.Errorf("duration = %d, want 3", dur)
	}
	if got := r.State(); got != RecSaved {
		t.Errorf("state = %v, want saved", got)
	}
}

func TestRecordingStopDeviceFailure(t *testing.T) {
	dev := audiotest.NewFakeDevice()
	dev.EndCaptureErr = &audio.DeviceError{Op: "finalize", Err: errors.New("flush failed")}
	r := NewRecording(RecordingConfig{Device: dev, CeilingSec: 600})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, _, err := r.Stop(context.Background()); err == nil {
		t.Fatal("Stop should fail")
	}
	if got := r.State(); got != RecFailed {
		t.Errorf("state = %v, want failed", got)
	}
	if got := r.Reason(); got != FailureDevice {
		t.Errorf("reason = %v, want device", got)
	}
}

func TestRecordingPauseFreezesCounter(t *testing.T) {
	dev := audiotest.NewFakeDevice()
	r := NewRecording(RecordingConfig{Device: dev, CeilingSec: 600})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.tick()
	r.tick()

	if err := r.Pause(context.Background()); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	r.tick()
	r.tick()
	if got := r.Elapsed(); got != 2 {
		t.Errorf("elapsed while paused = %d, want 2", got)
	}

	if err := r.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	r.tick()
	if got := r.Elapsed(); got != 3 {
		t.Errorf("elapsed after resume = %d, want 3", got)
	}
}

func TestRecordingPauseIdempotent(t *testing.T) {
	dev := audiotest.NewFakeDevice()
	r := NewRecording(RecordingConfig{Device: dev, CeilingSec: 600})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Pause(context.Background()); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := r.Pause(context.Background()); err != nil {
		t.Errorf("second Pause: %v", err)
	}
	if err := r.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := r.Resume(context.Background()); err != nil {
		t.Errorf("second Resume: %v", err)
	}
}

func TestRecordingPauseStopsCaptureIntake(t *testing.T) {
	dev := audiotest.NewFakeDevice()
	r := NewRecording(RecordingConfig{Device: dev, CeilingSec: 600})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	dev.FeedFrames(5)
	if got := dev.CapturedFrames(); got != 5 {
		t.Fatalf("frames while capturing = %d, want 5", got)
	}

	if err := r.Pause(context.Background()); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !dev.CapturePaused() {
		t.Error("device capture should be paused")
	}
	dev.FeedFrames(7)
	if got := dev.CapturedFrames(); got != 5 {
		t.Errorf("frames accrued while paused: got %d, want 5", got)
	}

	if err := r.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if dev.CapturePaused() {
		t.Error("device capture should be running again")
	}
	dev.FeedFrames(2)
	if got := dev.CapturedFrames(); got != 7 {
		t.Errorf("frames after resume = %d, want 7", got)
	}
}

func TestRecordingPauseDeviceFailureKeepsCapturing(t *testing.T) {
	dev := audiotest.NewFakeDevice()
	dev.PauseCaptureErr = &audio.DeviceError{Op: "pause capture", Err: errors.New("stream stuck")}
	r := NewRecording(RecordingConfig{Device: dev, CeilingSec: 600})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Pause(context.Background()); err == nil {
		t.Fatal("Pause should surface the device failure")
	}
	if got := r.State(); got != RecCapturing {
		t.Errorf("state after failed pause = %v, want capturing", got)
	}
}

func TestRecordingCeilingAutoStop(t *testing.T) {
	dev := audiotest.NewFakeDevice()

	var mu sync.Mutex
	var r *Recording
	done := make(chan struct{})

	r = NewRecording(RecordingConfig{
		Device:     dev,
		CeilingSec: 3,
		OnCeiling: func() {
			mu.Lock()
			defer mu.Unlock()
			if _, dur, err := r.Stop(context.Background()); err != nil {
				t.Errorf("auto Stop: %v", err)
			} else if dur != 3 {
				t.Errorf("auto-stop duration = %d, want 3", dur)
			}
			close(done)
		},
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.tick()
	r.tick()
	r.tick()
	// Extra ticks past the ceiling must not inflate the counter or re-fire.
	r.tick()
	r.tick()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ceiling stop did not fire")
	}

	mu.Lock()
	defer mu.Unlock()
	if got := r.State(); got != RecSaved {
		t.Errorf("state = %v, want saved", got)
	}
}

func TestRecordingDiscard(t *testing.T) {
	dev := audiotest.NewFakeDevice()
	r := NewRecording(RecordingConfig{Device: dev, CeilingSec: 600})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if got := r.State(); got != RecDiscarded {
		t.Errorf("state = %v, want discarded", got)
	}
	if dev.Capturing() {
		t.Error("capture handle should be released")
	}
}

func TestRecordingTerminalIsFinal(t *testing.T) {
	dev := audiotest.NewFakeDevice()
	r := NewRecording(RecordingConfig{Device: dev, CeilingSec: 600})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, _, err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if err := r.Start(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Start after save = %v, want ErrInvalidState", err)
	}
	if err := r.Pause(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Pause after save = %v, want ErrInvalidState", err)
	}
	if _, _, err := r.Stop(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Stop after save = %v, want ErrInvalidState", err)
	}
	if err := r.Discard(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Discard after save = %v, want ErrInvalidState", err)
	}
}

func TestRecordingTickerAdvances(t *testing.T) {
	dev := audiotest.NewFakeDevice()

	ticks := make(chan int, 16)
	r := NewRecording(RecordingConfig{
		Device:       dev,
		CeilingSec:   600,
		TickInterval: 5 * time.Millisecond,
		OnTick:       func(sec int) { ticks <- sec },
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Discard()

	select {
	case sec := <-ticks:
		if sec != 1 {
			t.Errorf("first tick = %d, want 1", sec)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ticker never fired")
	}
}
