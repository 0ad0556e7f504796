package audio_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"memovox/internal/audio"
	"memovox/internal/audio/audiotest"
)

// hungDevice blocks inside BeginCapture and Play until release is closed,
// ignoring its context the way a wedged backend would.
type hungDevice struct {
	*audiotest.FakeDevice
	release chan struct{}
}

func newHungDevice() *hungDevice {
	return &hungDevice{
		FakeDevice: audiotest.NewFakeDevice(),
		release:    make(chan struct{}),
	}
}

func (d *hungDevice) BeginCapture(ctx context.Context) (audio.CaptureHandle, error) {
	<-d.release
	return d.FakeDevice.BeginCapture(ctx)
}

func (d *hungDevice) Play(ctx context.Context, h audio.PlaybackHandle) error {
	<-d.release
	return d.FakeDevice.Play(ctx, h)
}

func TestWatchdogTimesOutHungCall(t *testing.T) {
	inner := newHungDevice()
	dev := audio.NewWatchdog(inner)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := dev.BeginCapture(ctx)
	if err == nil {
		t.Fatal("BeginCapture should fail once the deadline passes")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("BeginCapture blocked %v past a 30ms deadline", elapsed)
	}

	var devErr *audio.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("err = %T, want *DeviceError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestWatchdogReleasesLateCapture(t *testing.T) {
	inner := newHungDevice()
	dev := audio.NewWatchdog(inner)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := dev.BeginCapture(ctx); err == nil {
		t.Fatal("BeginCapture should time out")
	}

	// The backend eventually completes the abandoned call; the watchdog
	// must not leave that ownerless capture holding the device.
	close(inner.release)
	deadline := time.Now().Add(2 * time.Second)
	for inner.Capturing() {
		if time.Now().After(deadline) {
			t.Fatal("late capture was never released")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWatchdogTimesOutTransportCall(t *testing.T) {
	inner := newHungDevice()
	dev := audio.NewWatchdog(inner)

	h, err := dev.LoadMedia(context.Background(), "memo.wav")
	if err != nil {
		t.Fatalf("LoadMedia: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := dev.Play(ctx, h); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Play err = %v, want deadline exceeded", err)
	}
}

func TestWatchdogPassesThroughResults(t *testing.T) {
	inner := audiotest.NewFakeDevice()
	dev := audio.NewWatchdog(inner)

	h, err := dev.BeginCapture(context.Background())
	if err != nil {
		t.Fatalf("BeginCapture: %v", err)
	}
	if err := dev.PauseCapture(context.Background(), h); err != nil {
		t.Fatalf("PauseCapture: %v", err)
	}
	if !inner.CapturePaused() {
		t.Error("pause should reach the backend")
	}
	if err := dev.ResumeCapture(context.Background(), h); err != nil {
		t.Fatalf("ResumeCapture: %v", err)
	}
	if _, err := dev.EndCapture(context.Background(), h); err != nil {
		t.Fatalf("EndCapture: %v", err)
	}

	inner.BeginCaptureErr = audio.ErrDeviceBusy
	if _, err := dev.BeginCapture(context.Background()); !errors.Is(err, audio.ErrDeviceBusy) {
		t.Errorf("BeginCapture err = %v, want ErrDeviceBusy", err)
	}
}
