package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// wavHeaderSize is the fixed PCM header this package writes and expects.
const wavHeaderSize = 44

// Format describes the PCM layout of a WAV file.
type Format struct {
	SampleRate int
	Channels   int
}

// DurationMS returns the play time of sampleCount interleaved samples.
func (f Format) DurationMS(sampleCount int) int64 {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := sampleCount / f.Channels
	return int64(frames) * 1000 / int64(f.SampleRate)
}

// writeWAVHeader writes a 16-bit PCM header. dataSize may be zero during
// recording; finalizeWAV backfills it once the stream is closed.
func writeWAVHeader(w io.Writer, f Format, dataSize int64) error {
	const bitsPerSample = 16
	header := make([]byte, wavHeaderSize)

	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(f.SampleRate*f.Channels*bitsPerSample/8))
	binary.LittleEndian.PutUint16(header[32:34], uint16(f.Channels*bitsPerSample/8))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))

	_, err := w.Write(header)
	return err
}

// finalizeWAV backfills the RIFF and data chunk sizes after recording.
func finalizeWAV(f *os.File, dataSize int64) error {
	var buf [4]byte

	binary.LittleEndian.PutUint32(buf[:], uint32(36+dataSize))
	if _, err := f.WriteAt(buf[:], 4); err != nil {
		return fmt.Errorf("backfill riff size: %w", err)
	}

	binary.LittleEndian.PutUint32(buf[:], uint32(dataSize))
	if _, err := f.WriteAt(buf[:], 40); err != nil {
		return fmt.Errorf("backfill data size: %w", err)
	}
	return nil
}

// decodeWAV reads a 16-bit PCM WAV file into interleaved samples.
func decodeWAV(path string) ([]int16, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Format{}, err
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, Format{}, fmt.Errorf("read header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("not a WAV file")
	}

	format := Format{
		Channels:   int(binary.LittleEndian.Uint16(header[22:24])),
		SampleRate: int(binary.LittleEndian.Uint32(header[24:28])),
	}
	if bits := binary.LittleEndian.Uint16(header[34:36]); bits != 16 {
		return nil, Format{}, fmt.Errorf("unsupported bit depth %d", bits)
	}

	dataSize := int64(binary.LittleEndian.Uint32(header[40:44]))
	data := make([]byte, dataSize)
	n, err := io.ReadFull(f, data)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, Format{}, fmt.Errorf("read samples: %w", err)
	}
	data = data[:n-n%2]

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}
	return samples, format, nil
}
