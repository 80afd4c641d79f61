// Package engine provides the ASR engine abstraction: a uniform contract
// over heterogeneous recognition backends (Whisper-family, transducer,
// attention-encoder-decoder, hosted instruction-tuned models), a factory
// keyed by engine ID, and BCP-47-ish language code normalization.
package engine

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrModelLoadFailed is returned by LoadModel on any initialization
	// failure.
	ErrModelLoadFailed = errors.New("engine: model load failed")

	// ErrUnknownEngine is returned by the factory for an unregistered
	// engine ID.
	ErrUnknownEngine = errors.New("engine: unknown engine id")

	// ErrUnsupportedLanguage is returned when a caller requests a
	// language the engine does not support.
	ErrUnsupportedLanguage = errors.New("engine: unsupported language")
)

// minAudioSeconds is the floor below which Transcribe short-circuits to an
// empty, fully-confident result rather than invoking the backend — most
// recognizers produce noise or panic on sub-frame input.
const minAudioSeconds = 0.1

// ProgressCallback reports model load progress.
type ProgressCallback func(percent int, message string)

// Engine is the contract every ASR backend implements.
type Engine interface {
	// LoadModel initializes the backend. Idempotent; safe to call more
	// than once.
	LoadModel(ctx context.Context, onProgress ProgressCallback) error

	// Transcribe recognizes a mono float32 buffer at sampleRate Hz,
	// resampling internally if sampleRate differs from
	// RequiredSampleRate. Audio shorter than the backend's minimum
	// duration returns ("", 1.0) without invoking the model.
	Transcribe(ctx context.Context, samples []float32, sampleRate int, lang string) (text string, confidence float64, err error)

	RequiredSampleRate() int
	SupportedLanguages() []string

	// Cleanup releases any accelerator memory. Idempotent.
	Cleanup() error

	Name() string
}

// ModelInfo describes a registered engine's static characteristics, used
// by engine enumeration / diagnostic listings.
type ModelInfo struct {
	ID                 string
	Family             string // "whisper", "transducer", "attention-encoder-decoder", "instruction-tuned"
	SupportedLanguages []string
	RequiredSampleRate int
}

// NormalizeLanguage lowercases a BCP-47-ish tag and strips any region
// suffix (zh-CN -> zh, pt-BR -> pt). Unknown or already-bare three-letter
// codes pass through unchanged.
func NormalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		return lang[:i]
	}
	return lang
}

// tooShort reports whether samples is below the minimum duration a backend
// should be asked to transcribe.
func tooShort(samples []float32, sampleRate int) bool {
	if sampleRate <= 0 {
		return true
	}
	return float64(len(samples))/float64(sampleRate) < minAudioSeconds
}
