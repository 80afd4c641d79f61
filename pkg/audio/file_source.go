package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

// Decoder decodes an arbitrary media file to mono float32 PCM at the
// requested sample rate. FilePipeline implements this for non-WAV
// containers via the external media tool; FileSource falls back to it when
// the input isn't a WAV file.
type Decoder interface {
	DecodeFile(ctx context.Context, path string, sampleRate int) ([]float32, error)
}

// FileSourceConfig configures a FileSource.
type FileSourceConfig struct {
	Path       string
	SampleRate int // target rate, default 16000
	ChunkMs    int // default 100
	Realtime   bool
	Decoder    Decoder // used for non-WAV containers; nil means WAV-only
}

// FileSource is an AudioSource backed by a decoded file. It reads the whole
// file into memory on Open (files in this toolkit's use case are
// utterance/episode length, not unbounded) and then serves it out as fixed
// chunks, optionally real-time paced.
type FileSource struct {
	cfg FileSourceConfig

	mu       sync.Mutex
	samples  []float32
	rate     int
	pos      int
	active   bool
	lastSend time.Time
}

// NewFileSource constructs a FileSource. Decoding happens in Open, not here,
// matching the AudioSource contract that the OS/file handle is acquired on
// Open and released on Close.
func NewFileSource(cfg FileSourceConfig) *FileSource {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.ChunkMs == 0 {
		cfg.ChunkMs = 100
	}
	return &FileSource{cfg: cfg}
}

func (f *FileSource) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ext := strings.ToLower(filepath.Ext(f.cfg.Path))
	var samples []float32
	var err error

	if ext == ".wav" {
		samples, err = decodeWav(f.cfg.Path, f.cfg.SampleRate)
	} else if f.cfg.Decoder != nil {
		samples, err = f.cfg.Decoder.DecodeFile(ctx, f.cfg.Path, f.cfg.SampleRate)
	} else {
		return fmt.Errorf("%w: %s (no decoder configured for non-wav input)", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	f.samples = samples
	f.rate = f.cfg.SampleRate
	f.pos = 0
	f.active = true
	return nil
}

func decodeWav(path string, targetRate int) ([]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file")
	}

	srcRate := int(dec.SampleRate)
	channels := int(dec.NumChans)

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}

	floats := make([]float32, len(buf.Data))
	maxVal := float32(int(1) << (uint(buf.SourceBitDepth) - 1))
	if buf.SourceBitDepth == 0 {
		maxVal = 32768
	}
	for i, v := range buf.Data {
		floats[i] = float32(v) / maxVal
	}

	mono := MixToMono(floats, channels)
	if srcRate != targetRate {
		mono = Resample(mono, srcRate, targetRate)
	}
	return mono, nil
}

func (f *FileSource) Next(ctx context.Context) (Chunk, error) {
	f.mu.Lock()
	if !f.active {
		f.mu.Unlock()
		return Chunk{}, fmt.Errorf("audio: source not open")
	}
	if f.pos >= len(f.samples) {
		f.mu.Unlock()
		return Chunk{}, io.EOF
	}

	chunkLen := (f.rate*f.cfg.ChunkMs + 500) / 1000
	end := f.pos + chunkLen
	if end > len(f.samples) {
		end = len(f.samples)
	}
	out := make([]float32, end-f.pos)
	copy(out, f.samples[f.pos:end])
	f.pos = end
	realtime := f.cfg.Realtime
	last := f.lastSend
	f.lastSend = time.Now()
	f.mu.Unlock()

	if realtime && !last.IsZero() {
		wait := time.Duration(f.cfg.ChunkMs)*time.Millisecond - time.Since(last)
		if wait > 0 {
			select {
			case <-ctx.Done():
				return Chunk{}, ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return Chunk{Samples: out, SampleRate: f.rate}, nil
}

func (f *FileSource) SampleRate() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

func (f *FileSource) IsActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active && f.pos < len(f.samples)
}

func (f *FileSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
	f.samples = nil
	return nil
}
