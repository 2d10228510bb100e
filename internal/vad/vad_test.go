package vad

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func silence(n int) []float32 { return make([]float32, n) }

func loud(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = 0.5
		} else {
			out[i] = -0.5
		}
	}
	return out
}

func TestEnergyGate(t *testing.T) {
	g := NewEnergyGate(DefaultThreshold)
	require.False(t, g.SpeechPresent(silence(1280)))
	require.True(t, g.SpeechPresent(loud(1280)))
}

func TestEnergyGateEmptyChunk(t *testing.T) {
	g := NewEnergyGate(DefaultThreshold)
	require.False(t, g.SpeechPresent(nil))
}

func TestFrameGateCarriesOverTail(t *testing.T) {
	g := NewFrameGate(DefaultThreshold)

	// First call: 500 samples (one full frame + 180-sample tail), all silent.
	require.False(t, g.SpeechPresent(silence(500)))
	require.Len(t, g.tail, 180)

	// Second call: 140 more samples completes the carried frame to 320;
	// make the completed frame loud so it is observed on this call.
	require.True(t, g.SpeechPresent(loud(140)))
}

func TestFrameGateAnyFrameTriggers(t *testing.T) {
	g := NewFrameGate(DefaultThreshold)
	chunk := append(silence(320), loud(320)...)
	require.True(t, g.SpeechPresent(chunk))
}

func TestFrameGateTailNeverReachesFrameSize(t *testing.T) {
	g := NewFrameGate(DefaultThreshold)
	g.SpeechPresent(silence(100))
	require.Less(t, len(g.tail), FrameSize)
}
