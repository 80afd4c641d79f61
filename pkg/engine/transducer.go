package engine

import (
	"context"
	"fmt"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/lokutor-ai/transcribe-core/pkg/audio"
)

func init() {
	Register("transducer", ModelInfo{
		ID:                 "transducer",
		Family:             "transducer",
		SupportedLanguages: []string{"en"},
		RequiredSampleRate: 16000,
	}, func(params map[string]string) (Engine, error) {
		return NewTransducerEngine(TransducerConfig{
			ModelDir:   params["model_dir"],
			Language:   params["language"],
			NumThreads: 2,
		}), nil
	})
}

// TransducerConfig configures a zipformer transducer engine.
type TransducerConfig struct {
	ModelDir   string
	Language   string
	NumThreads int
}

// TransducerEngine wraps sherpa-onnx's OnlineRecognizer (zipformer
// transducer). It is streaming-friendly by design, but Transcribe exposes
// it synchronously: one online stream is fed the whole buffer and decoded
// to completion, matching the uniform Engine contract every backend shares.
type TransducerEngine struct {
	cfg TransducerConfig

	mu         sync.Mutex
	recognizer *sherpa.OnlineRecognizer
	languages  []string
}

func NewTransducerEngine(cfg TransducerConfig) *TransducerEngine {
	if cfg.NumThreads == 0 {
		cfg.NumThreads = 2
	}
	langs := []string{"en"}
	if cfg.Language != "" {
		langs = []string{NormalizeLanguage(cfg.Language)}
	}
	return &TransducerEngine{cfg: cfg, languages: langs}
}

func (t *TransducerEngine) LoadModel(ctx context.Context, onProgress ProgressCallback) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.recognizer != nil {
		return nil
	}
	if onProgress != nil {
		onProgress(0, "locating model files")
	}

	encoderPath := findModelFile(t.cfg.ModelDir, []string{"encoder-epoch-99-avg-1.int8.onnx", "encoder.int8.onnx", "encoder.onnx"})
	decoderPath := findModelFile(t.cfg.ModelDir, []string{"decoder-epoch-99-avg-1.onnx", "decoder.onnx"})
	joinerPath := findModelFile(t.cfg.ModelDir, []string{"joiner-epoch-99-avg-1.int8.onnx", "joiner.int8.onnx", "joiner.onnx"})
	tokensPath := findModelFile(t.cfg.ModelDir, []string{"tokens.txt"})

	if encoderPath == "" || decoderPath == "" || joinerPath == "" || tokensPath == "" {
		return fmt.Errorf("%w: transducer model files not found in %s", ErrModelLoadFailed, t.cfg.ModelDir)
	}

	if onProgress != nil {
		onProgress(40, "initializing recognizer")
	}

	cfg := sherpa.OnlineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{SampleRate: 16000, FeatureDim: 80},
		ModelConfig: sherpa.OnlineModelConfig{
			Transducer: sherpa.OnlineTransducerModelConfig{
				Encoder: encoderPath,
				Decoder: decoderPath,
				Joiner:  joinerPath,
			},
			Tokens:     tokensPath,
			NumThreads: t.cfg.NumThreads,
			Debug:      0,
		},
		DecodingMethod: "greedy_search",
	}

	recognizer := sherpa.NewOnlineRecognizer(&cfg)
	if recognizer == nil {
		return fmt.Errorf("%w: failed to construct transducer recognizer", ErrModelLoadFailed)
	}
	t.recognizer = recognizer

	if onProgress != nil {
		onProgress(100, "ready")
	}
	return nil
}

func (t *TransducerEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int, lang string) (string, float64, error) {
	if tooShort(samples, sampleRate) {
		return "", 1.0, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.recognizer == nil {
		return "", 0, fmt.Errorf("%w: model not loaded", ErrModelLoadFailed)
	}

	if sampleRate != t.RequiredSampleRate() {
		samples = audio.Resample(samples, sampleRate, t.RequiredSampleRate())
		sampleRate = t.RequiredSampleRate()
	}

	stream := sherpa.NewOnlineStream(t.recognizer)
	defer sherpa.DeleteOnlineStream(stream)

	stream.AcceptWaveform(sampleRate, samples)
	stream.InputFinished()
	for t.recognizer.IsReady(stream) {
		t.recognizer.Decode(stream)
	}

	result := t.recognizer.GetResult(stream)
	if result == nil {
		return "", 1.0, nil
	}
	return result.Text, 1.0, nil
}

func (t *TransducerEngine) RequiredSampleRate() int { return 16000 }

func (t *TransducerEngine) SupportedLanguages() []string { return t.languages }

func (t *TransducerEngine) Cleanup() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.recognizer != nil {
		sherpa.DeleteOnlineRecognizer(t.recognizer)
		t.recognizer = nil
	}
	return nil
}

func (t *TransducerEngine) Name() string { return "transducer" }
