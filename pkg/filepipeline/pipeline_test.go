package filepipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lokutor-ai/transcribe-core/pkg/engine"
	"github.com/lokutor-ai/transcribe-core/pkg/subtitle"
	"github.com/lokutor-ai/transcribe-core/pkg/vad"
)

type fakeBackend struct {
	probs      []float64
	idx        int
	sampleRate int
	frameSamps int
}

func (b *fakeBackend) RequiredSampleRate() int { return b.sampleRate }
func (b *fakeBackend) FrameSamples() int       { return b.frameSamps }
func (b *fakeBackend) Reset()                  { b.idx = 0 }
func (b *fakeBackend) Predict(frame []float32) (float64, error) {
	if b.idx >= len(b.probs) {
		return 0, nil
	}
	p := b.probs[b.idx]
	b.idx++
	return p, nil
}

// fakeEngine fails every call once calls reaches failAfter; a zero value
// (the default) never fails.
type fakeEngine struct {
	calls     int
	failAfter int
}

func (e *fakeEngine) LoadModel(ctx context.Context, onProgress engine.ProgressCallback) error {
	return nil
}
func (e *fakeEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int, lang string) (string, float64, error) {
	e.calls++
	if e.failAfter > 0 && e.calls >= e.failAfter {
		return "", 0, errors.New("recognition failed")
	}
	return "segment text", 0.9, nil
}
func (e *fakeEngine) RequiredSampleRate() int      { return 16000 }
func (e *fakeEngine) SupportedLanguages() []string { return []string{"en"} }
func (e *fakeEngine) Cleanup() error               { return nil }
func (e *fakeEngine) Name() string                 { return "fake" }

func writeTestWav(t *testing.T, path string, numFrames int) {
	t.Helper()
	// A minimal 16-bit mono 16kHz WAV: header + numFrames*160 silent samples.
	const sampleRate = 16000
	data := make([]byte, numFrames*160*2)
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	writeUint32(&buf, uint32(36+len(data)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	writeUint32(&buf, 16)
	writeUint16(&buf, 1)
	writeUint16(&buf, 1)
	writeUint32(&buf, sampleRate)
	writeUint32(&buf, sampleRate*2)
	writeUint16(&buf, 2)
	writeUint16(&buf, 16)
	buf.WriteString("data")
	writeUint32(&buf, uint32(len(data)))
	buf.Write(data)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing test wav: %v", err)
	}
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 24))
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
}

func TestProcessFileWavNoSegmentsWhenSilent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "silence.wav")
	writeTestWav(t, path, 10)

	backend := &fakeBackend{probs: make([]float64, 20), sampleRate: 16000, frameSamps: 160}
	cfg, err := vad.NewConfig(vad.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eng := &fakeEngine{}
	pipeline := New(eng, nil, "en")

	result, err := pipeline.ProcessFile(context.Background(), path, "", cfg, backend, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Segments) != 0 {
		t.Errorf("expected no segments for silent audio, got %d", len(result.Segments))
	}
	if eng.calls != 0 {
		t.Errorf("expected no engine calls for silent audio, got %d", eng.calls)
	}
	if result.SegmentCount != 0 {
		t.Errorf("expected SegmentCount 0, got %d", result.SegmentCount)
	}
}

func TestProcessFileCancelStopsEarly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audio.wav")
	writeTestWav(t, path, 50)

	backend := &fakeBackend{probs: make([]float64, 100), sampleRate: 16000, frameSamps: 160}
	cfg, _ := vad.NewConfig(vad.Config{})
	eng := &fakeEngine{}
	pipeline := New(eng, nil, "en")
	pipeline.Cancel()

	result, err := pipeline.ProcessFile(context.Background(), path, "", cfg, backend, nil, nil)
	if err != ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if !result.Cancelled {
		t.Errorf("expected result.Cancelled true")
	}
}

func TestProcessFileEmitsSubtitleSegments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "speech.wav")
	writeTestWav(t, path, 8)

	backend := &fakeBackend{
		probs:      []float64{0.1, 0.1, 0.9, 0.9, 0.9, 0.1, 0.1, 0.1},
		sampleRate: 16000,
		frameSamps: 160,
	}
	cfg, err := vad.NewConfig(vad.Config{
		Threshold:            0.5,
		NegThreshold:         0.3,
		MinSpeechMs:          20,
		MinSilenceMs:         20,
		SpeechPadMs:          10,
		InterimMinDurationMs: 1000000,
		InterimIntervalMs:    1000000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eng := &fakeEngine{}
	pipeline := New(eng, nil, "en")

	outPath := filepath.Join(dir, "speech.srt")
	result, err := pipeline.ProcessFile(context.Background(), path, outPath, cfg, backend, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(result.Segments))
	}
	if result.Segments[0].Text != "segment text" {
		t.Errorf("unexpected segment text: %q", result.Segments[0].Text)
	}
	if result.SegmentCount != 1 {
		t.Errorf("expected SegmentCount 1, got %d", result.SegmentCount)
	}
	if result.OutputPath != outPath {
		t.Errorf("expected OutputPath %q, got %q", outPath, result.OutputPath)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Errorf("expected srt file to be written: %v", err)
	}

	var b bytes.Buffer
	if err := subtitle.WriteSRT(&b, result.Segments); err != nil {
		t.Errorf("expected valid SRT output, got error: %v", err)
	}
}

func TestTranscribeSegmentFailureIsNonFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "speech.wav")
	writeTestWav(t, path, 8)

	backend := &fakeBackend{
		probs:      []float64{0.1, 0.1, 0.9, 0.9, 0.9, 0.1, 0.1, 0.1},
		sampleRate: 16000,
		frameSamps: 160,
	}
	cfg, err := vad.NewConfig(vad.Config{
		Threshold:            0.5,
		NegThreshold:         0.3,
		MinSpeechMs:          20,
		MinSilenceMs:         20,
		SpeechPadMs:          10,
		InterimMinDurationMs: 1000000,
		InterimIntervalMs:    1000000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eng := &fakeEngine{failAfter: 1}
	pipeline := New(eng, nil, "en")

	var gotErr error
	var gotIndex int
	result, err := pipeline.ProcessFile(context.Background(), path, "", cfg, backend, nil, func(err error, index int) {
		gotErr = err
		gotIndex = index
	})
	if err != nil {
		t.Fatalf("expected the file to still succeed, got error: %v", err)
	}
	if gotErr == nil {
		t.Fatal("expected onError to be invoked")
	}
	if gotIndex != 1 {
		t.Errorf("expected failing segment index 1, got %d", gotIndex)
	}
	if len(result.Segments) != 1 {
		t.Fatalf("expected 1 segment despite recognition failure, got %d", len(result.Segments))
	}
	if result.Segments[0].Text != "" {
		t.Errorf("expected empty text for failed segment, got %q", result.Segments[0].Text)
	}
}

func TestProcessFilesContinuesPastOneFailure(t *testing.T) {
	dir := t.TempDir()
	goodPath := filepath.Join(dir, "good.wav")
	badPath := filepath.Join(dir, "missing.wav")
	writeTestWav(t, goodPath, 10)

	cfg, _ := vad.NewConfig(vad.Config{})
	eng := &fakeEngine{}
	pipeline := New(eng, nil, "en")

	results := map[string]error{}
	pipeline.ProcessFiles(context.Background(), []string{badPath, goodPath}, nil, cfg,
		&fakeBackend{probs: make([]float64, 20), sampleRate: 16000, frameSamps: 160},
		nil, nil, func(path string, result FileResult, err error) {
			results[path] = err
		})

	if results[badPath] == nil {
		t.Error("expected an error for the missing file")
	}
	if err, ok := results[goodPath]; !ok || err != nil {
		t.Errorf("expected the good file to still be processed, got %v", err)
	}
}
