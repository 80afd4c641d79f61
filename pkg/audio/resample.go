package audio

// Resample converts samples from inRate to outRate using linear
// interpolation. It is not a high-quality resampler, but it is deterministic
// and dependency-free, matching this toolkit's preference for small inline
// numeric helpers over a DSP library for anything that isn't the core
// recognition path.
func Resample(samples []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(samples) == 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	ratio := float64(outRate) / float64(inRate)
	outLen := int(float64(len(samples)) * ratio)
	if outLen <= 0 {
		return nil
	}

	out := make([]float32, outLen)
	step := float64(inRate) / float64(outRate)
	for i := range out {
		srcPos := float64(i) * step
		idx := int(srcPos)
		frac := srcPos - float64(idx)

		if idx+1 < len(samples) {
			out[i] = samples[idx]*float32(1-frac) + samples[idx+1]*float32(frac)
		} else {
			out[i] = samples[len(samples)-1]
		}
	}
	return out
}

// MixToMono averages interleaved multi-channel samples down to one channel.
func MixToMono(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(interleaved))
		copy(out, interleaved)
		return out
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// FloatToPCM16 converts float32 samples in [-1,1] to little-endian 16-bit
// PCM bytes, the wire format the HTTP-backed engines and NewWavBuffer expect.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// PCM16ToFloat converts little-endian 16-bit PCM bytes to float32 samples
// in [-1,1].
func PCM16ToFloat(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(v) / 32768.0
	}
	return out
}
