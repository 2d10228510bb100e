//go:build !onnx

package model

import "fmt"

// stubSessions produces deterministic, cheaply-computed outputs of the
// right shape so the rest of the pipeline (ring bookkeeping, state
// machine, protocol) can be exercised without a real ONNX Runtime build.
type stubSessions struct{}

func newSessions(classifierData []byte) (Sessions, error) {
	_ = classifierData
	return &stubSessions{}, nil
}

// RunMel returns one frame of constant mel energies per 160 input
// samples (roughly matching a real mel hop), never fewer than one frame.
func (s *stubSessions) RunMel(samples []float32) ([]MelFrame, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("model: mel input is empty")
	}
	t := len(samples) / 160
	if t == 0 {
		t = 1
	}
	frames := make([]MelFrame, t)
	for i := range frames {
		frame := make(MelFrame, melBins)
		for j := range frame {
			frame[j] = 2.0 // affine midpoint: 0/10 + 2
		}
		frames[i] = frame
	}
	return frames, nil
}

func (s *stubSessions) RunEmbedding(window []MelFrame) ([]float32, error) {
	if len(window) != embeddingWindow {
		return nil, fmt.Errorf("model: embedding window must be %d frames, got %d", embeddingWindow, len(window))
	}
	vec := make([]float32, embeddingSize)
	for i := range vec {
		vec[i] = 0.1
	}
	return vec, nil
}

func (s *stubSessions) RunClassifier(embeddings [][]float32) (float32, error) {
	if len(embeddings) != classifierWindow {
		return 0, fmt.Errorf("model: classifier window must be %d embeddings, got %d", classifierWindow, len(embeddings))
	}
	return 0, nil
}

func (s *stubSessions) Close() error { return nil }

const (
	melBins         = 32
	embeddingWindow = 76
	embeddingSize   = 96
	classifierWindow = 16
)
