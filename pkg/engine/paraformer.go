package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/lokutor-ai/transcribe-core/pkg/audio"
)

func init() {
	Register("paraformer", ModelInfo{
		ID:                 "paraformer",
		Family:             "attention-encoder-decoder",
		SupportedLanguages: []string{"zh", "en", "yue", "ja", "ko"},
		RequiredSampleRate: 16000,
	}, func(params map[string]string) (Engine, error) {
		return NewParaformerEngine(ParaformerConfig{ModelDir: params["model_dir"], NumThreads: 2}), nil
	})
}

// ParaformerConfig configures an attention-encoder-decoder recognizer.
type ParaformerConfig struct {
	ModelDir   string
	NumThreads int
}

// ParaformerEngine is an attention-encoder-decoder family recognizer
// (Paraformer), built on the same sherpa.OfflineRecognizer infrastructure
// as WhisperEngine but with an OfflineParaformerModelConfig, reflecting
// that family's narrower (4-8 language) multilingual support.
type ParaformerEngine struct {
	cfg ParaformerConfig

	mu         sync.Mutex
	recognizer *sherpa.OfflineRecognizer
}

func NewParaformerEngine(cfg ParaformerConfig) *ParaformerEngine {
	if cfg.NumThreads == 0 {
		cfg.NumThreads = 2
	}
	return &ParaformerEngine{cfg: cfg}
}

func (p *ParaformerEngine) LoadModel(ctx context.Context, onProgress ProgressCallback) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.recognizer != nil {
		return nil
	}

	modelPath := findModelFile(p.cfg.ModelDir, []string{"model.int8.onnx", "model.onnx"})
	tokensPath := findModelFile(p.cfg.ModelDir, []string{"tokens.txt"})
	if modelPath == "" || tokensPath == "" {
		return fmt.Errorf("%w: paraformer model files not found in %s", ErrModelLoadFailed, p.cfg.ModelDir)
	}

	if onProgress != nil {
		onProgress(40, "initializing recognizer")
	}

	sherpaConfig := sherpa.OfflineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{SampleRate: 16000, FeatureDim: 80},
		ModelConfig: sherpa.OfflineModelConfig{
			Paraformer: sherpa.OfflineParaformerModelConfig{Model: modelPath},
			Tokens:     tokensPath,
			NumThreads: p.cfg.NumThreads,
			Debug:      0,
		},
	}

	recognizer := sherpa.NewOfflineRecognizer(&sherpaConfig)
	if recognizer == nil {
		return fmt.Errorf("%w: failed to construct paraformer recognizer", ErrModelLoadFailed)
	}
	p.recognizer = recognizer

	if onProgress != nil {
		onProgress(100, "ready")
	}
	return nil
}

func (p *ParaformerEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int, lang string) (string, float64, error) {
	if tooShort(samples, sampleRate) {
		return "", 1.0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.recognizer == nil {
		return "", 0, fmt.Errorf("%w: model not loaded", ErrModelLoadFailed)
	}

	if sampleRate != p.RequiredSampleRate() {
		samples = audio.Resample(samples, sampleRate, p.RequiredSampleRate())
		sampleRate = p.RequiredSampleRate()
	}

	stream := sherpa.NewOfflineStream(p.recognizer)
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(sampleRate, samples)
	p.recognizer.Decode(stream)

	result := stream.GetResult()
	if result == nil {
		return "", 1.0, nil
	}
	return strings.TrimSpace(result.Text), 1.0, nil
}

func (p *ParaformerEngine) RequiredSampleRate() int { return 16000 }

func (p *ParaformerEngine) SupportedLanguages() []string {
	return []string{"zh", "en", "yue", "ja", "ko"}
}

func (p *ParaformerEngine) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(p.recognizer)
		p.recognizer = nil
	}
	return nil
}

func (p *ParaformerEngine) Name() string { return "paraformer" }
