// Package vad implements voice activity detection: the Backend abstraction
// over frame-level speech classifiers, and the StateMachine that turns a
// continuous audio stream into finalized and interim speech segments.
package vad

import "errors"

var (
	// ErrConfigInvalid is returned by NewConfig when thresholds or
	// durations are out of range.
	ErrConfigInvalid = errors.New("vad: invalid configuration")

	// ErrUnsupportedLanguage is returned by PresetForLanguage when no VAD
	// preset exists for the requested language.
	ErrUnsupportedLanguage = errors.New("vad: unsupported language preset")
)

// State is a node in the VAD hysteresis state machine.
type State int

const (
	Silence State = iota
	PotentialSpeech
	Speech
	PotentialSilence
)

func (s State) String() string {
	switch s {
	case Silence:
		return "silence"
	case PotentialSpeech:
		return "potential_speech"
	case Speech:
		return "speech"
	case PotentialSilence:
		return "potential_silence"
	default:
		return "unknown"
	}
}

// Config is the immutable tuning surface for a StateMachine. Use NewConfig
// to apply defaults and validate.
type Config struct {
	Threshold    float64 // enter-speech probability threshold
	NegThreshold float64 // exit-speech probability threshold (hysteresis)

	MinSpeechMs  int
	MinSilenceMs int
	SpeechPadMs  int
	MaxSpeechMs  int // 0 = unlimited

	InterimMinDurationMs int
	InterimIntervalMs    int
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:            0.5,
		NegThreshold:         0.35,
		MinSpeechMs:          250,
		MinSilenceMs:         100,
		SpeechPadMs:          100,
		MaxSpeechMs:          0,
		InterimMinDurationMs: 2000,
		InterimIntervalMs:    1000,
	}
}

// NewConfig applies defaults for zero fields and validates the result.
func NewConfig(c Config) (Config, error) {
	d := DefaultConfig()
	if c.Threshold == 0 {
		c.Threshold = d.Threshold
	}
	if c.NegThreshold == 0 {
		c.NegThreshold = c.Threshold - 0.15
		if c.NegThreshold < 0.01 {
			c.NegThreshold = 0.01
		}
	}
	if c.MinSpeechMs == 0 {
		c.MinSpeechMs = d.MinSpeechMs
	}
	if c.MinSilenceMs == 0 {
		c.MinSilenceMs = d.MinSilenceMs
	}
	if c.SpeechPadMs == 0 {
		c.SpeechPadMs = d.SpeechPadMs
	}
	if c.InterimMinDurationMs == 0 {
		c.InterimMinDurationMs = d.InterimMinDurationMs
	}
	if c.InterimIntervalMs == 0 {
		c.InterimIntervalMs = d.InterimIntervalMs
	}

	if c.Threshold <= 0 || c.Threshold > 1 {
		return Config{}, ErrConfigInvalid
	}
	if c.NegThreshold <= 0 || c.NegThreshold > c.Threshold {
		return Config{}, ErrConfigInvalid
	}
	if c.MinSpeechMs < 0 || c.MinSilenceMs < 0 || c.SpeechPadMs < 0 || c.MaxSpeechMs < 0 {
		return Config{}, ErrConfigInvalid
	}
	return c, nil
}

// Segment is a span of accumulated speech audio emitted by the state
// machine, either a final (completed) utterance or an interim (in-progress)
// preview.
type Segment struct {
	Audio     []float32
	StartTime float64 // seconds since stream start
	EndTime   float64
	IsFinal   bool
}

// Backend classifies fixed-size audio frames as speech or silence.
// Implementations may be stateful (e.g. a recurrent neural VAD) across
// calls; Reset clears that state.
type Backend interface {
	RequiredSampleRate() int
	FrameSamples() int
	Predict(frame []float32) (probability float64, err error)
	Reset()
}

// PresetForLanguage returns a backend-agnostic Config tuned for a given
// language tag, when this toolkit ships a benchmarked preset for it.
// Callers without a language-specific preset should fall back to
// DefaultConfig with a neural backend.
func PresetForLanguage(lang string) (Config, error) {
	presets := map[string]Config{
		"en": DefaultConfig(),
		"es": {Threshold: 0.5, NegThreshold: 0.35, MinSpeechMs: 200, MinSilenceMs: 120, SpeechPadMs: 100, InterimMinDurationMs: 2000, InterimIntervalMs: 1000},
		"zh": {Threshold: 0.55, NegThreshold: 0.4, MinSpeechMs: 150, MinSilenceMs: 150, SpeechPadMs: 80, InterimMinDurationMs: 1500, InterimIntervalMs: 800},
	}
	c, ok := presets[lang]
	if !ok {
		return Config{}, ErrUnsupportedLanguage
	}
	return NewConfig(c)
}
