package vad

import "math"

// EnergyBackend is a dependency-free RMS-energy voice-tone classifier. It is
// the lightweight default when no ONNX runtime is available, adapted from
// this toolkit's original RMS-based detector to return a continuous
// probability (and an aggressiveness knob) instead of a single confirmed
// bool, so it composes with the hysteresis state machine the same way the
// neural backend does.
type EnergyBackend struct {
	sampleRate   int
	frameSamples int

	// aggressiveness scales the energy-to-probability mapping the way a
	// classic frame classifier's mode 0-3 does: higher modes require more
	// energy to report high probability, trading recall for precision in
	// noisy input.
	aggressiveness int
}

// NewEnergyBackend constructs a voice-tone classifier backend. frameMs is
// typically 10, 20 or 30. aggressiveness is clamped to [0,3].
func NewEnergyBackend(sampleRate, frameMs, aggressiveness int) *EnergyBackend {
	if aggressiveness < 0 {
		aggressiveness = 0
	}
	if aggressiveness > 3 {
		aggressiveness = 3
	}
	return &EnergyBackend{
		sampleRate:     sampleRate,
		frameSamples:   sampleRate * frameMs / 1000,
		aggressiveness: aggressiveness,
	}
}

func (e *EnergyBackend) RequiredSampleRate() int { return e.sampleRate }
func (e *EnergyBackend) FrameSamples() int       { return e.frameSamples }

func (e *EnergyBackend) Predict(frame []float32) (float64, error) {
	rms := rmsEnergy(frame)

	// Reference energy level above which a frame is unambiguously speech;
	// scaled up for higher aggressiveness so noisy frames need more energy
	// to register as speech.
	ceiling := 0.05 + float64(e.aggressiveness)*0.03
	p := rms / ceiling
	if p > 1 {
		p = 1
	}
	return p, nil
}

func (e *EnergyBackend) Reset() {}

func rmsEnergy(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(frame)))
}
