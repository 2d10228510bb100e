// Package audio implements capture and playback (C1) over the cross-platform
// miniaudio bindings, exposing the block-granular PCM callback contract the
// satellite state machine drives.
package audio

// linearResampler performs simple linear-interpolation resampling. This is
// lightweight and sufficient for voice audio; audiophile quality is not a
// goal here. Continuity is preserved across calls via lastSample.
type linearResampler struct {
	ratio      float64 // toRate / fromRate
	lastSample float32
}

func newLinearResampler(fromRate, toRate int) *linearResampler {
	return &linearResampler{ratio: float64(toRate) / float64(fromRate)}
}

func (r *linearResampler) resample(input []float32) []float32 {
	if r.ratio == 1.0 || len(input) == 0 {
		return input
	}

	outputLen := int(float64(len(input)) * r.ratio)
	output := make([]float32, outputLen)

	for i := 0; i < outputLen; i++ {
		srcPos := float64(i) / r.ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		sample1 := r.lastSample
		if srcIdx < len(input) {
			sample1 = input[srcIdx]
		}
		sample2 := sample1
		if srcIdx+1 < len(input) {
			sample2 = input[srcIdx+1]
		} else if srcIdx < len(input) {
			sample2 = input[len(input)-1]
		}
		output[i] = sample1 + (sample2-sample1)*frac
	}

	r.lastSample = input[len(input)-1]
	return output
}

// int16ToFloat32 converts signed 16-bit PCM to float32 in [-1, 1].
func int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// float32ToInt16 converts float32 samples in [-1, 1] to signed 16-bit PCM,
// clamping out-of-range values instead of wrapping.
func float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int16(s * 32767)
	}
	return out
}
