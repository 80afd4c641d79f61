// Package audio provides the AudioSource abstraction: lazy, finite-or-unbounded
// producers of mono float32 PCM chunks, plus the WAV helpers shared by file
// decoding and the HTTP-backed recognition engines.
package audio

import (
	"context"
	"errors"
)

var (
	// ErrDeviceUnavailable is returned by MicrophoneSource.Open when no
	// capture device could be opened.
	ErrDeviceUnavailable = errors.New("audio: capture device unavailable")

	// ErrDeviceDisconnected wraps an error that MicrophoneSource.Next
	// receives on the source's error channel. No capture callback sends on
	// that channel, so a device that drops mid-stream is not detected and
	// Next keeps waiting until ctx is done.
	ErrDeviceDisconnected = errors.New("audio: capture device disconnected")

	// ErrUnsupportedFormat is returned when a file's container/codec can't
	// be decoded.
	ErrUnsupportedFormat = errors.New("audio: unsupported file format")
)

// Chunk is a slice of mono float32 samples in [-1, 1] at SampleRate Hz.
// Chunk boundaries carry no semantic meaning; consumers treat the sequence
// of chunks from a Source as one continuous stream.
type Chunk struct {
	Samples    []float32
	SampleRate int
}

// Source produces a sequence of audio Chunks. Next blocks until a chunk is
// available, the source is exhausted (io.EOF), or ctx is done. Close
// releases the underlying device or file handle and is always safe to call,
// including after an error from Next. Close is idempotent.
type Source interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (Chunk, error)
	SampleRate() int
	IsActive() bool
	Close() error
}

// Device describes one enumerated capture device.
type Device struct {
	Index      int
	Name       string
	Channels   int
	SampleRate int
	IsDefault  bool
}
