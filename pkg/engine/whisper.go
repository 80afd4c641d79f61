package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/lokutor-ai/transcribe-core/pkg/audio"
)

func init() {
	Register("whisper", ModelInfo{
		ID:                 "whisper",
		Family:             "whisper",
		SupportedLanguages: whisperLanguages,
		RequiredSampleRate: 16000,
	}, func(params map[string]string) (Engine, error) {
		return NewWhisperEngine(WhisperConfig{
			ModelDir:   params["model_dir"],
			Language:   params["language"],
			NumThreads: 2,
		}), nil
	})
}

// whisperLanguages is the language list SupportedLanguages reports: 12
// ISO-639-1 codes. Other languages the Whisper model can recognize are not
// listed.
var whisperLanguages = []string{"en", "es", "fr", "de", "it", "pt", "ja", "zh", "ko", "ru", "ar", "hi"}

// WhisperConfig configures a Whisper-family offline recognizer.
type WhisperConfig struct {
	ModelDir   string
	Language   string // empty = auto-detect
	Task       string // "transcribe" or "translate", default "transcribe"
	NumThreads int
}

// WhisperEngine is the multilingual Whisper-family ASR engine, grounded on
// sherpa-onnx's OfflineRecognizer with an OfflineWhisperModelConfig.
type WhisperEngine struct {
	cfg WhisperConfig

	mu         sync.Mutex
	recognizer *sherpa.OfflineRecognizer
}

// NewWhisperEngine constructs an unloaded Whisper engine; call LoadModel
// before Transcribe.
func NewWhisperEngine(cfg WhisperConfig) *WhisperEngine {
	if cfg.Task == "" {
		cfg.Task = "transcribe"
	}
	if cfg.NumThreads == 0 {
		cfg.NumThreads = 2
	}
	return &WhisperEngine{cfg: cfg}
}

func (w *WhisperEngine) LoadModel(ctx context.Context, onProgress ProgressCallback) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.recognizer != nil {
		return nil
	}
	if onProgress != nil {
		onProgress(0, "locating model files")
	}

	encoderPath := findModelFile(w.cfg.ModelDir, []string{
		"encoder.int8.onnx", "encoder.onnx",
		"large-v3-encoder.int8.onnx", "large-v3-encoder.onnx",
		"turbo-encoder.int8.onnx", "turbo-encoder.onnx",
	})
	decoderPath := findModelFile(w.cfg.ModelDir, []string{
		"decoder.int8.onnx", "decoder.onnx",
		"large-v3-decoder.int8.onnx", "large-v3-decoder.onnx",
		"turbo-decoder.int8.onnx", "turbo-decoder.onnx",
	})
	tokensPath := findModelFile(w.cfg.ModelDir, []string{"tokens.txt", "large-v3-tokens.txt"})

	if encoderPath == "" || decoderPath == "" || tokensPath == "" {
		return fmt.Errorf("%w: whisper model files not found in %s", ErrModelLoadFailed, w.cfg.ModelDir)
	}

	if onProgress != nil {
		onProgress(40, "initializing recognizer")
	}

	sherpaConfig := sherpa.OfflineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{SampleRate: 16000, FeatureDim: 80},
		ModelConfig: sherpa.OfflineModelConfig{
			Whisper: sherpa.OfflineWhisperModelConfig{
				Encoder:  encoderPath,
				Decoder:  decoderPath,
				Language: w.cfg.Language,
				Task:     w.cfg.Task,
			},
			Tokens:     tokensPath,
			NumThreads: w.cfg.NumThreads,
			Debug:      0,
		},
	}

	recognizer := sherpa.NewOfflineRecognizer(&sherpaConfig)
	if recognizer == nil {
		return fmt.Errorf("%w: failed to construct whisper recognizer", ErrModelLoadFailed)
	}
	w.recognizer = recognizer

	if onProgress != nil {
		onProgress(100, "ready")
	}
	return nil
}

func (w *WhisperEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int, lang string) (string, float64, error) {
	if tooShort(samples, sampleRate) {
		return "", 1.0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.recognizer == nil {
		return "", 0, fmt.Errorf("%w: model not loaded", ErrModelLoadFailed)
	}

	if sampleRate != w.RequiredSampleRate() {
		samples = audio.Resample(samples, sampleRate, w.RequiredSampleRate())
		sampleRate = w.RequiredSampleRate()
	}

	stream := sherpa.NewOfflineStream(w.recognizer)
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(sampleRate, samples)
	w.recognizer.Decode(stream)

	result := stream.GetResult()
	if result == nil {
		return "", 1.0, nil
	}
	return strings.TrimSpace(result.Text), 1.0, nil
}

func (w *WhisperEngine) RequiredSampleRate() int { return 16000 }

func (w *WhisperEngine) SupportedLanguages() []string { return whisperLanguages }

func (w *WhisperEngine) Cleanup() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(w.recognizer)
		w.recognizer = nil
	}
	return nil
}

func (w *WhisperEngine) Name() string { return "whisper" }

// findModelFile searches dir for the first candidate filename that exists,
// preferring earlier (typically int8-quantized) entries.
func findModelFile(dir string, candidates []string) string {
	for _, c := range candidates {
		path := filepath.Join(dir, c)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
