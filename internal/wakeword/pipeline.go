// Package wakeword implements the streaming wake-word pipeline (C4): a
// three-stage neural classifier (mel spectrogram, embedding, classifier)
// driven one captured hop at a time via Offer.
package wakeword

import (
	"fmt"
	"math/rand"

	"github.com/nabuvoice/wake-satellite/internal/ring"
	"github.com/nabuvoice/wake-satellite/internal/wakeword/model"
)

const (
	hopSamples       = 1280
	tailSamples      = 480
	coldStartSamples = 400
	rawRingCapacity  = 160000
	melRingCapacity  = 970
	melWindow        = 76
	melStride        = 8
	featureRingCapacity = 120
	featureWindow    = 16
)

// sentinelMelFrame is the bootstrap value MelFrameRing holds before any
// real mel frame has been computed, per the data model.
func sentinelMelFrame() model.MelFrame {
	f := make(model.MelFrame, 32)
	for i := range f {
		f[i] = 1.0
	}
	return f
}

// Pipeline is the streaming wake-word detector. One Pipeline is owned by
// the satellite's supervisor for its lifetime; dropping it releases the
// underlying model sessions synchronously.
type Pipeline struct {
	sessions model.Sessions

	rawRing     *ring.Buffer[float32]
	melRing     *ring.Buffer[model.MelFrame]
	featureRing *ring.Buffer[[]float32]

	remainder []int16
	lastScore *float32
}

// New constructs a Pipeline from a loaded Sessions triple and immediately
// primes it with synthetic noise so the first Offer call never returns
// nil (§4.4.5 / testable property: |FeatureRing| >= featureWindow after
// construction).
func New(sessions model.Sessions) (*Pipeline, error) {
	p := &Pipeline{
		sessions:    sessions,
		rawRing:     ring.New[float32](rawRingCapacity),
		melRing:     ring.NewPrimed(melRingCapacity, melWindow, sentinelMelFrame()),
		featureRing: ring.New[[]float32](featureRingCapacity),
	}
	if err := p.prime(); err != nil {
		return nil, fmt.Errorf("wakeword: priming: %w", err)
	}
	return p, nil
}

// prime runs 4 seconds of synthetic uniform noise through Stage A and
// Stage B to seed FeatureRing with a realistic prefix before any real
// audio arrives.
func (p *Pipeline) prime() error {
	const primingSeconds = 4
	const primingSamples = primingSeconds * 16000

	noise := make([]int16, primingSamples)
	for i := range noise {
		noise[i] = int16(rand.Intn(2001) - 1000) // uniform in (-1000, 1000)
	}

	for offset := 0; offset+hopSamples <= len(noise); offset += hopSamples {
		hop := noise[offset : offset+hopSamples]
		if err := p.processHop(hop, 1); err != nil {
			return err
		}
	}
	return nil
}

// processHop pushes samples (a whole multiple of hopSamples, numHops of
// them) into RawSampleRing, runs Stage A once, and runs Stage B once per
// hop, appending the results to MelFrameRing and FeatureRing.
func (p *Pipeline) processHop(samples []int16, numHops int) error {
	for _, s := range samples {
		p.rawRing.PushBack(float32(s) / 32768.0)
	}

	if p.rawRing.Len() < coldStartSamples {
		return nil
	}

	melInput := p.rawRing.SnapshotTail(len(samples) + tailSamples)
	frames, err := p.sessions.RunMel(melInput)
	if err != nil {
		return fmt.Errorf("stage A: %w", err)
	}
	p.melRing.PushBackAll(frames)

	for i := numHops - 1; i >= 0; i-- {
		window := p.melWindowEndingBefore(i)
		if window == nil {
			continue
		}
		embedding, err := p.sessions.RunEmbedding(window)
		if err != nil {
			return fmt.Errorf("stage B: %w", err)
		}
		p.featureRing.PushBack(embedding)
	}
	return nil
}

// melWindowEndingBefore returns the 76-frame window of MelFrameRing whose
// last frame is i*melStride frames before the current tail, or nil if not
// enough history has accumulated yet.
func (p *Pipeline) melWindowEndingBefore(i int) []model.MelFrame {
	total := melWindow + melStride*i
	tail := p.melRing.SnapshotTail(total)
	if len(tail) < total {
		return nil
	}
	return tail[:melWindow]
}

// Offer is the pipeline's single entry point, invoked at most once per
// captured hop. It returns a detection score in [0, 1], or nil when
// insufficient data has accumulated to run the classifier.
func (p *Pipeline) Offer(chunk []int16) (*float32, error) {
	if len(chunk) == 0 {
		return p.lastScore, nil
	}

	samples := append(append([]int16(nil), p.remainder...), chunk...)
	accumulated := len(samples)

	var toPush []int16
	var numHops int
	if accumulated >= hopSamples {
		r := accumulated % hopSamples
		toPush = samples[:accumulated-r]
		p.remainder = append([]int16(nil), samples[accumulated-r:]...)
		numHops = len(toPush) / hopSamples
	} else {
		toPush = samples
		p.remainder = nil
		numHops = 0
	}

	if err := p.processHop(toPush, numHops); err != nil {
		return nil, err
	}

	if p.rawRing.Len() < coldStartSamples {
		return nil, nil
	}
	if p.featureRing.Len() < featureWindow {
		return nil, nil
	}

	embeddings := p.featureRing.SnapshotTail(featureWindow)
	score, err := p.sessions.RunClassifier(embeddings)
	if err != nil {
		return nil, fmt.Errorf("stage C: %w", err)
	}
	p.lastScore = &score
	return &score, nil
}

// Close releases the underlying model sessions.
func (p *Pipeline) Close() error {
	return p.sessions.Close()
}
