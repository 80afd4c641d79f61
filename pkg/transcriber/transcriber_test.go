package transcriber

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lokutor-ai/transcribe-core/pkg/engine"
	"github.com/lokutor-ai/transcribe-core/pkg/vad"
)

// scriptedBackend replays a fixed probability sequence, one value per
// Predict call, mirroring the test double used in pkg/vad's own tests.
type scriptedBackend struct {
	probs       []float64
	idx         int
	sampleRate  int
	frameSamps  int
}

func (b *scriptedBackend) RequiredSampleRate() int { return b.sampleRate }
func (b *scriptedBackend) FrameSamples() int       { return b.frameSamps }
func (b *scriptedBackend) Reset()                  { b.idx = 0 }
func (b *scriptedBackend) Predict(frame []float32) (float64, error) {
	if b.idx >= len(b.probs) {
		return 0, nil
	}
	p := b.probs[b.idx]
	b.idx++
	return p, nil
}

// fakeEngine always returns a fixed transcription, ignoring its input.
type fakeEngine struct {
	sampleRate int
	text       string
}

func (e *fakeEngine) LoadModel(ctx context.Context, onProgress engine.ProgressCallback) error {
	return nil
}
func (e *fakeEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int, lang string) (string, float64, error) {
	return e.text, 0.95, nil
}
func (e *fakeEngine) RequiredSampleRate() int    { return e.sampleRate }
func (e *fakeEngine) SupportedLanguages() []string { return []string{"en"} }
func (e *fakeEngine) Cleanup() error             { return nil }
func (e *fakeEngine) Name() string               { return "fake" }

// fakeTranslator always appends a marker to prove it ran.
type fakeTranslator struct{}

func (fakeTranslator) Translate(ctx context.Context, text, src, dst string) (string, error) {
	return text + " [" + dst + "]", nil
}
func (fakeTranslator) Supports(src, dst string) bool { return src != dst }

func newTestStateMachine(probs []float64) (*vad.StateMachine, vad.Config) {
	backend := &scriptedBackend{probs: probs, sampleRate: 16000, frameSamps: 160}
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
		panic(err)
	}
	return vad.NewStateMachine(backend, cfg), cfg
}

func feedFrames(t *testing.T, tr *StreamTranscriber, numFrames int) {
	t.Helper()
	samples := make([]float32, numFrames*160)
	if err := tr.FeedAudio(samples, 16000); err != nil {
		t.Fatalf("FeedAudio failed: %v", err)
	}
}

func TestFeedAudioEmitsFinalResult(t *testing.T) {
	sm, _ := newTestStateMachine([]float64{0.1, 0.1, 0.9, 0.9, 0.9, 0.1, 0.1, 0.1})
	eng := &fakeEngine{sampleRate: 16000, text: "hello world"}
	tr := New(Config{SourceID: "mic-1", SourceLanguage: "en"}, eng, sm, nil)
	defer tr.Close()

	feedFrames(t, tr, 8)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := tr.GetResult(ctx)
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if result.Text != "hello world" {
		t.Errorf("expected text %q, got %q", "hello world", result.Text)
	}
	if !result.IsFinal {
		t.Errorf("expected IsFinal true")
	}
	if result.SourceID != "mic-1" {
		t.Errorf("expected source id mic-1, got %q", result.SourceID)
	}
}

func TestFinalizeFlushesInProgressUtterance(t *testing.T) {
	sm, _ := newTestStateMachine([]float64{0.1, 0.1, 0.9, 0.9, 0.9})
	eng := &fakeEngine{sampleRate: 16000, text: "in progress"}
	tr := New(Config{SourceID: "mic-1", SourceLanguage: "en"}, eng, sm, nil)
	defer tr.Close()

	feedFrames(t, tr, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := tr.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if result == nil {
		t.Fatalf("expected a flushed result, got nil")
	}
	if result.Text != "in progress" {
		t.Errorf("expected text %q, got %q", "in progress", result.Text)
	}
}

func TestFinalizeNoopWhenNothingPending(t *testing.T) {
	sm, _ := newTestStateMachine([]float64{0.1, 0.1, 0.1})
	eng := &fakeEngine{sampleRate: 16000, text: "unused"}
	tr := New(Config{SourceID: "mic-1"}, eng, sm, nil)
	defer tr.Close()

	feedFrames(t, tr, 3)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := tr.Finalize(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result when nothing was pending, got %+v", result)
	}
}

func TestResetClearsStateMachine(t *testing.T) {
	sm, _ := newTestStateMachine([]float64{0.1, 0.1, 0.9, 0.9})
	eng := &fakeEngine{sampleRate: 16000, text: "unused"}
	tr := New(Config{SourceID: "mic-1"}, eng, sm, nil)
	defer tr.Close()

	feedFrames(t, tr, 4)
	if sm.State() != vad.Speech {
		t.Fatalf("expected Speech state before reset, got %s", sm.State())
	}

	tr.Reset()
	if sm.State() != vad.Silence {
		t.Errorf("expected Silence state after reset, got %s", sm.State())
	}
}

func TestTranslationAppliesWhenConfigured(t *testing.T) {
	sm, _ := newTestStateMachine([]float64{0.1, 0.1, 0.9, 0.9, 0.9, 0.1, 0.1, 0.1})
	eng := &fakeEngine{sampleRate: 16000, text: "hola"}
	tr := New(Config{SourceID: "mic-1", SourceLanguage: "es", TargetLanguage: "en"}, eng, sm, fakeTranslator{})
	defer tr.Close()

	feedFrames(t, tr, 8)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := tr.GetResult(ctx)
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if result.TranslatedText != "hola [en]" {
		t.Errorf("expected translated text %q, got %q", "hola [en]", result.TranslatedText)
	}
	if result.TargetLanguage != "en" {
		t.Errorf("expected target language en, got %q", result.TargetLanguage)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	sm, _ := newTestStateMachine([]float64{0.1})
	eng := &fakeEngine{sampleRate: 16000, text: "unused"}
	tr := New(Config{SourceID: "mic-1"}, eng, sm, nil)

	if err := tr.Close(); err != nil {
		t.Fatalf("unexpected error on first close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
}

func TestFeedAudioAfterCloseReturnsErrClosed(t *testing.T) {
	sm, _ := newTestStateMachine([]float64{0.1})
	eng := &fakeEngine{sampleRate: 16000, text: "unused"}
	tr := New(Config{SourceID: "mic-1"}, eng, sm, nil)
	tr.Close()

	err := tr.FeedAudio(make([]float32, 160), 16000)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
