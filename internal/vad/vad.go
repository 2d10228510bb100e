// Package vad implements the voice-activity gate (C3): a cheap boolean
// speech/silence classifier that guards whether a captured chunk reaches
// the wake-word pipeline at all.
package vad

// Gate decides whether a chunk of audio contains speech.
type Gate interface {
	// SpeechPresent reports whether chunk (normalized float32 samples in
	// [-1, 1]) contains speech.
	SpeechPresent(chunk []float32) bool
}

// EnergyGate is the stateless RMS-threshold implementation.
type EnergyGate struct {
	Threshold float32
}

// DefaultThreshold is the RMS threshold used when a gate is constructed
// without an explicit override.
const DefaultThreshold float32 = 0.01

// NewEnergyGate returns an EnergyGate using threshold as its RMS cutoff.
func NewEnergyGate(threshold float32) *EnergyGate {
	return &EnergyGate{Threshold: threshold}
}

// SpeechPresent reports whether the RMS of chunk exceeds the threshold.
func (g *EnergyGate) SpeechPresent(chunk []float32) bool {
	if len(chunk) == 0 {
		return false
	}
	var sumSquares float64
	for _, s := range chunk {
		sumSquares += float64(s) * float64(s)
	}
	rms := sumSquares / float64(len(chunk))
	return rms > float64(g.Threshold)*float64(g.Threshold)
}

// FrameSize is the fixed analysis frame used by FrameGate, 320 samples
// (20ms) at 16kHz.
const FrameSize = 320

// FrameGate consumes arbitrarily sized chunks, internally re-framing them
// into fixed FrameSize windows with tail carry-over across calls, and
// reports speech if any complete frame in the chunk is speech.
type FrameGate struct {
	threshold float32
	tail      []float32 // carried-over samples shorter than FrameSize
}

// NewFrameGate returns a FrameGate using threshold as its per-frame RMS
// cutoff.
func NewFrameGate(threshold float32) *FrameGate {
	return &FrameGate{threshold: threshold}
}

// SpeechPresent reframes chunk (prefixed by any carried tail) into
// FrameSize windows and returns true if any complete frame is speech.
// Incomplete trailing samples are carried over to the next call.
func (g *FrameGate) SpeechPresent(chunk []float32) bool {
	samples := append(g.tail, chunk...)

	speech := false
	i := 0
	for ; i+FrameSize <= len(samples); i += FrameSize {
		frame := samples[i : i+FrameSize]
		var sumSquares float64
		for _, s := range frame {
			sumSquares += float64(s) * float64(s)
		}
		rms := sumSquares / float64(FrameSize)
		if rms > float64(g.threshold)*float64(g.threshold) {
			speech = true
		}
	}

	remainder := samples[i:]
	g.tail = append(g.tail[:0], remainder...)
	return speech
}
