package vad

import (
	"fmt"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// NeuralBackend wraps a Silero VAD ONNX model via sherpa-onnx-go. Unlike
// EnergyBackend, the underlying detector already applies its own
// speech/silence confirmation (MinSpeechDuration/MinSilenceDuration), so
// Predict reports a derived probability: 1.0 once the detector has
// confirmed and buffered a speech window for the accepted frame, 0.0
// otherwise. The outer StateMachine's hysteresis still applies on top of
// this, giving consistent segment/padding/interim behavior across backends.
type NeuralBackend struct {
	sampleRate   int
	frameSamples int
	vad          *sherpa.VoiceActivityDetector
}

// NeuralBackendConfig configures model path and sensitivity for the
// underlying Silero model.
type NeuralBackendConfig struct {
	ModelPath          string
	SampleRate         int // default 16000
	Threshold          float32
	MinSilenceDuration float32
	MinSpeechDuration  float32
	NumThreads         int
}

// NewNeuralBackend constructs the ONNX-backed VAD backend.
func NewNeuralBackend(cfg NeuralBackendConfig) (*NeuralBackend, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.5
	}
	if cfg.NumThreads == 0 {
		cfg.NumThreads = 1
	}

	modelConfig := sherpa.VadModelConfig{
		SileroVad: sherpa.SileroVadModelConfig{
			Model:              cfg.ModelPath,
			Threshold:          cfg.Threshold,
			MinSilenceDuration: cfg.MinSilenceDuration,
			MinSpeechDuration:  cfg.MinSpeechDuration,
			WindowSize:         512,
		},
		SampleRate: cfg.SampleRate,
		NumThreads: cfg.NumThreads,
		Debug:      0,
	}

	v := sherpa.NewVoiceActivityDetector(&modelConfig, 30)
	if v == nil {
		return nil, fmt.Errorf("vad: failed to create silero voice activity detector")
	}

	return &NeuralBackend{
		sampleRate:   cfg.SampleRate,
		frameSamples: 512,
		vad:          v,
	}, nil
}

func (n *NeuralBackend) RequiredSampleRate() int { return n.sampleRate }
func (n *NeuralBackend) FrameSamples() int       { return n.frameSamples }

func (n *NeuralBackend) Predict(frame []float32) (float64, error) {
	n.vad.AcceptWaveform(frame)
	for !n.vad.IsEmpty() {
		// drain buffered segments so internal state doesn't grow unbounded;
		// the outer StateMachine owns segment assembly, not this buffer.
		n.vad.Pop()
		return 1.0, nil
	}
	return 0.0, nil
}

func (n *NeuralBackend) Reset() {
	n.vad.Reset()
}

// Close releases the underlying ONNX detector. Safe to call once.
func (n *NeuralBackend) Close() {
	if n.vad != nil {
		sherpa.DeleteVoiceActivityDetector(n.vad)
		n.vad = nil
	}
}
