package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"
)

const (
	framesPerBuffer = 1024
	statusInterval  = 150 * time.Millisecond
)

// PortAudio is the real Device implementation over the PortAudio bindings.
// It owns the native audio handles; callers hold only CaptureHandle and
// PlaybackHandle values whose IDs are checked on every call, so a stale
// handle can never reach a stream it no longer owns.
type PortAudio struct {
	mu       sync.Mutex
	log      *zap.Logger
	mediaDir string
	format   Format
	capture  *captureStream
	playback *playbackStream
	closed   bool
}

// NewPortAudio initializes PortAudio and prepares the media directory.
func NewPortAudio(mediaDir string, format Format, log *zap.Logger) (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &DeviceError{Op: "initialize", Err: err}
	}
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		portaudio.Terminate()
		return nil, &DeviceError{Op: "media dir", Err: err}
	}
	return &PortAudio{log: log, mediaDir: mediaDir, format: format}, nil
}

// RequestCapturePermission reports whether an input device is available.
// Any enumeration error counts as "not granted".
func (d *PortAudio) RequestCapturePermission(ctx context.Context) bool {
	dev, err := portaudio.DefaultInputDevice()
	if err != nil || dev == nil {
		d.log.Warn("no input device available", zap.Error(err))
		return false
	}
	return dev.MaxInputChannels > 0
}

// captureStream is one in-progress recording. The inner mutex serializes the
// PortAudio callback against finalize.
type captureStream struct {
	id        string
	stream    *portaudio.Stream
	mu        sync.Mutex
	file      *os.File
	path      string
	dataBytes int64
	paused    bool
}

func (c *captureStream) process(in []int16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return
	}
	if err := binary.Write(c.file, binary.LittleEndian, in); err == nil {
		c.dataBytes += int64(len(in) * 2)
	}
}

// BeginCapture opens the input stream and starts writing a WAV file.
func (d *PortAudio) BeginCapture(ctx context.Context) (CaptureHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.capture != nil || d.playback != nil {
		return CaptureHandle{}, ErrDeviceBusy
	}

	inDev, err := portaudio.DefaultInputDevice()
	if err != nil || inDev == nil {
		return CaptureHandle{}, &DeviceError{Op: "input device", Err: err}
	}

	name := fmt.Sprintf("memo_%s.wav", time.Now().Format("2006-01-02_15-04-05"))
	path := filepath.Join(d.mediaDir, name)
	file, err := os.Create(path)
	if err != nil {
		return CaptureHandle{}, &DeviceError{Op: "create media", Err: err}
	}
	if err := writeWAVHeader(file, d.format, 0); err != nil {
		file.Close()
		os.Remove(path)
		return CaptureHandle{}, &DeviceError{Op: "write header", Err: err}
	}

	cs := &captureStream{id: uuid.NewString(), file: file, path: path}

	params := portaudio.HighLatencyParameters(inDev, nil)
	params.SampleRate = float64(d.format.SampleRate)
	params.Input.Channels = min(d.format.Channels, inDev.MaxInputChannels)
	params.FramesPerBuffer = framesPerBuffer

	stream, err := portaudio.OpenStream(params, cs.process)
	if err != nil {
		file.Close()
		os.Remove(path)
		return CaptureHandle{}, &DeviceError{Op: "open capture", Err: err}
	}
	cs.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		file.Close()
		os.Remove(path)
		return CaptureHandle{}, &DeviceError{Op: "start capture", Err: err}
	}

	d.capture = cs
	d.log.Info("capture started", zap.String("path", path))
	return CaptureHandle{ID: cs.id}, nil
}

// PauseCapture stops the input stream so no samples reach the WAV while
// paused.
func (d *PortAudio) PauseCapture(ctx context.Context, h CaptureHandle) error {
	cs, err := d.captureFor(h)
	if err != nil {
		return err
	}

	cs.mu.Lock()
	if cs.paused {
		cs.mu.Unlock()
		return nil
	}
	cs.paused = true
	cs.mu.Unlock()

	if err := cs.stream.Stop(); err != nil {
		return &DeviceError{Op: "pause capture", Err: err}
	}
	return nil
}

// ResumeCapture restarts the input stream after PauseCapture.
func (d *PortAudio) ResumeCapture(ctx context.Context, h CaptureHandle) error {
	cs, err := d.captureFor(h)
	if err != nil {
		return err
	}

	cs.mu.Lock()
	if !cs.paused {
		cs.mu.Unlock()
		return nil
	}
	cs.paused = false
	cs.mu.Unlock()

	if err := cs.stream.Start(); err != nil {
		return &DeviceError{Op: "resume capture", Err: err}
	}
	return nil
}

func (d *PortAudio) captureFor(h CaptureHandle) (*captureStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capture == nil || d.capture.id != h.ID {
		return nil, ErrInvalidHandle
	}
	return d.capture, nil
}

// EndCapture stops the stream and finalizes the WAV file. On failure the
// in-progress media is lost; the device is always released.
func (d *PortAudio) EndCapture(ctx context.Context, h CaptureHandle) (MediaRef, error) {
	d.mu.Lock()
	cs := d.capture
	if cs == nil || cs.id != h.ID {
		d.mu.Unlock()
		return "", ErrInvalidHandle
	}
	d.capture = nil
	d.mu.Unlock()

	cs.mu.Lock()
	paused := cs.paused
	cs.mu.Unlock()

	if !paused {
		if err := cs.stream.Stop(); err != nil {
			d.log.Warn("stop capture stream", zap.Error(err))
		}
	}
	if err := cs.stream.Close(); err != nil {
		d.log.Warn("close capture stream", zap.Error(err))
	}

	cs.mu.Lock()
	file := cs.file
	cs.file = nil
	dataBytes := cs.dataBytes
	cs.mu.Unlock()

	if err := finalizeWAV(file, dataBytes); err != nil {
		file.Close()
		os.Remove(cs.path)
		return "", &DeviceError{Op: "finalize", Err: err}
	}
	if err := file.Close(); err != nil {
		os.Remove(cs.path)
		return "", &DeviceError{Op: "flush", Err: err}
	}

	d.log.Info("capture finalized", zap.String("path", cs.path), zap.Int64("bytes", dataBytes))
	return MediaRef(cs.path), nil
}

// AbortCapture discards an in-progress recording and its partial file.
func (d *PortAudio) AbortCapture(h CaptureHandle) error {
	d.mu.Lock()
	cs := d.capture
	if cs == nil || cs.id != h.ID {
		d.mu.Unlock()
		return nil
	}
	d.capture = nil
	d.mu.Unlock()

	cs.mu.Lock()
	paused := cs.paused
	cs.mu.Unlock()

	if !paused {
		cs.stream.Stop()
	}
	cs.stream.Close()

	cs.mu.Lock()
	if cs.file != nil {
		cs.file.Close()
		cs.file = nil
	}
	cs.mu.Unlock()

	os.Remove(cs.path)
	d.log.Info("capture discarded", zap.String("path", cs.path))
	return nil
}

// playbackStream is one loaded media resource plus its transport state.
// cursor is a fractional frame index; advancing it by rate per output frame
// gives variable-speed playback with linear interpolation.
type playbackStream struct {
	id     string
	stream *portaudio.Stream
	format Format

	mu         sync.Mutex
	samples    []int16
	cursor     float64
	rate       float64
	volume     float64
	playing    bool
	reachedEnd bool
	sub        StatusFunc
	subCancel  chan struct{}
}

func (p *playbackStream) totalFrames() int {
	if p.format.Channels == 0 {
		return 0
	}
	return len(p.samples) / p.format.Channels
}

func (p *playbackStream) positionMS() int64 {
	if p.format.SampleRate == 0 {
		return 0
	}
	return int64(p.cursor) * 1000 / int64(p.format.SampleRate)
}

func (p *playbackStream) process(out []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := p.format.Channels
	total := p.totalFrames()

	for i := 0; i+ch <= len(out); i += ch {
		f0 := int(p.cursor)
		if !p.playing || f0 >= total {
			for c := 0; c < ch; c++ {
				out[i+c] = 0
			}
			if p.playing && f0 >= total {
				p.reachedEnd = true
			}
			continue
		}

		frac := p.cursor - float64(f0)
		f1 := f0 + 1
		if f1 >= total {
			f1 = f0
		}
		for c := 0; c < ch; c++ {
			s := (1-frac)*float64(p.samples[f0*ch+c]) + frac*float64(p.samples[f1*ch+c])
			s *= p.volume
			if s > 32767 {
				s = 32767
			} else if s < -32768 {
				s = -32768
			}
			out[i+c] = int16(s)
		}
		p.cursor += p.rate
	}
}

// LoadMedia decodes the referenced WAV file and opens an output stream,
// paused at position 0.
func (d *PortAudio) LoadMedia(ctx context.Context, ref MediaRef) (PlaybackHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.capture != nil || d.playback != nil {
		return PlaybackHandle{}, ErrDeviceBusy
	}

	samples, format, err := decodeWAV(string(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return PlaybackHandle{}, ErrMediaNotFound
		}
		return PlaybackHandle{}, &DeviceError{Op: "decode", Err: err}
	}

	outDev, err := portaudio.DefaultOutputDevice()
	if err != nil || outDev == nil {
		return PlaybackHandle{}, &DeviceError{Op: "output device", Err: err}
	}

	ps := &playbackStream{
		id:      uuid.NewString(),
		format:  format,
		samples: samples,
		rate:    1.0,
		volume:  1.0,
	}

	params := portaudio.HighLatencyParameters(nil, outDev)
	params.SampleRate = float64(format.SampleRate)
	params.Output.Channels = format.Channels
	params.FramesPerBuffer = framesPerBuffer

	stream, err := portaudio.OpenStream(params, ps.process)
	if err != nil {
		return PlaybackHandle{}, &DeviceError{Op: "open playback", Err: err}
	}
	ps.stream = stream

	d.playback = ps
	d.log.Info("media loaded", zap.String("ref", string(ref)),
		zap.Int64("durationMs", format.DurationMS(len(samples))))
	return PlaybackHandle{ID: ps.id, DurationMS: format.DurationMS(len(samples))}, nil
}

func (d *PortAudio) playbackFor(h PlaybackHandle) (*playbackStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playback == nil || d.playback.id != h.ID {
		return nil, ErrInvalidHandle
	}
	return d.playback, nil
}

// Play starts (or resumes) playback. A no-op if already playing.
func (d *PortAudio) Play(ctx context.Context, h PlaybackHandle) error {
	ps, err := d.playbackFor(h)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	if ps.playing {
		ps.mu.Unlock()
		return nil
	}
	ps.playing = true
	ps.reachedEnd = false
	ps.mu.Unlock()

	if err := ps.stream.Start(); err != nil {
		ps.mu.Lock()
		ps.playing = false
		ps.mu.Unlock()
		return &DeviceError{Op: "play", Err: err}
	}
	return nil
}

// Pause stops output. A no-op if already paused.
func (d *PortAudio) Pause(ctx context.Context, h PlaybackHandle) error {
	ps, err := d.playbackFor(h)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	if !ps.playing {
		ps.mu.Unlock()
		return nil
	}
	ps.playing = false
	ps.mu.Unlock()

	if err := ps.stream.Stop(); err != nil {
		return &DeviceError{Op: "pause", Err: err}
	}
	return nil
}

// Seek moves the playback cursor. Position is clamped to the media bounds.
func (d *PortAudio) Seek(ctx context.Context, h PlaybackHandle, positionMS int64) error {
	ps, err := d.playbackFor(h)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	frame := float64(positionMS) * float64(ps.format.SampleRate) / 1000
	if frame < 0 {
		frame = 0
	}
	if end := float64(ps.totalFrames()); frame > end {
		frame = end
	}
	ps.cursor = frame
	return nil
}

// SetRate changes playback speed. Values are clamped to [0.5, 2.0].
func (d *PortAudio) SetRate(ctx context.Context, h PlaybackHandle, rate float64) error {
	ps, err := d.playbackFor(h)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.rate = clampFloat(rate, 0.5, 2.0)
	return nil
}

// SetVolume changes output gain. Values are clamped to [0.0, 1.0].
func (d *PortAudio) SetVolume(ctx context.Context, h PlaybackHandle, volume float64) error {
	ps, err := d.playbackFor(h)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.volume = clampFloat(volume, 0, 1)
	return nil
}

// SubscribeStatus starts delivering position updates for h at a bounded
// interval until cancelled or the media finishes.
func (d *PortAudio) SubscribeStatus(h PlaybackHandle, fn StatusFunc) (func(), error) {
	ps, err := d.playbackFor(h)
	if err != nil {
		return nil, err
	}

	ps.mu.Lock()
	if ps.subCancel != nil {
		close(ps.subCancel)
	}
	cancel := make(chan struct{})
	ps.sub = fn
	ps.subCancel = cancel
	ps.mu.Unlock()

	go d.pollPlayback(ps, h.DurationMS, cancel)

	return func() {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		if ps.subCancel == cancel {
			close(ps.subCancel)
			ps.subCancel = nil
			ps.sub = nil
		}
	}, nil
}

// pollPlayback emits status ticks while playing and a single Finished update
// when the cursor runs off the end. After Finished the engine is stopped and
// rewound so a later Play starts from 0 without reloading.
func (d *PortAudio) pollPlayback(ps *playbackStream, durationMS int64, cancel chan struct{}) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-ticker.C:
		}

		ps.mu.Lock()
		fn := ps.sub
		if fn == nil {
			ps.mu.Unlock()
			return
		}

		if ps.reachedEnd {
			ps.reachedEnd = false
			ps.playing = false
			ps.cursor = 0
			stream := ps.stream
			ps.mu.Unlock()

			// Stopping from the callback goroutine would deadlock the
			// stream, so the poll loop does it.
			if err := stream.Stop(); err != nil {
				d.log.Warn("stop finished stream", zap.Error(err))
			}
			fn(Status{PositionMS: durationMS, DurationMS: durationMS, Finished: true})
			continue
		}

		if !ps.playing {
			ps.mu.Unlock()
			continue
		}
		st := Status{
			PositionMS: ps.positionMS(),
			DurationMS: durationMS,
			Playing:    true,
		}
		ps.mu.Unlock()
		fn(st)
	}
}

// Unload releases the playback stream. Idempotent.
func (d *PortAudio) Unload(h PlaybackHandle) error {
	d.mu.Lock()
	ps := d.playback
	if ps == nil || ps.id != h.ID {
		d.mu.Unlock()
		return nil
	}
	d.playback = nil
	d.mu.Unlock()

	ps.mu.Lock()
	if ps.subCancel != nil {
		close(ps.subCancel)
		ps.subCancel = nil
		ps.sub = nil
	}
	wasPlaying := ps.playing
	ps.playing = false
	ps.mu.Unlock()

	if wasPlaying {
		ps.stream.Stop()
	}
	if err := ps.stream.Close(); err != nil {
		return &DeviceError{Op: "unload", Err: err}
	}
	return nil
}

// RemoveMedia deletes the media file. A file that is already gone is not an
// error.
func (d *PortAudio) RemoveMedia(ref MediaRef) error {
	if err := os.Remove(string(ref)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &DeviceError{Op: "remove media", Err: err}
	}
	return nil
}

// Close tears down any active streams and PortAudio itself.
func (d *PortAudio) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	cs := d.capture
	ps := d.playback
	d.capture = nil
	d.playback = nil
	d.mu.Unlock()

	if cs != nil {
		cs.stream.Stop()
		cs.stream.Close()
		cs.mu.Lock()
		if cs.file != nil {
			cs.file.Close()
			cs.file = nil
		}
		cs.mu.Unlock()
		os.Remove(cs.path)
	}
	if ps != nil {
		ps.mu.Lock()
		if ps.subCancel != nil {
			close(ps.subCancel)
			ps.subCancel = nil
		}
		ps.mu.Unlock()
		ps.stream.Stop()
		ps.stream.Close()
	}

	if err := portaudio.Terminate(); err != nil {
		return &DeviceError{Op: "terminate", Err: err}
	}
	return nil
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
