package wakeword

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nabuvoice/wake-satellite/internal/wakeword/model"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	sessions, err := model.Load(model.DefaultReference())
	require.NoError(t, err)
	p, err := New(sessions)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestNewPrimesFeatureRing(t *testing.T) {
	p := newTestPipeline(t)
	require.GreaterOrEqual(t, p.featureRing.Len(), featureWindow)
}

func TestFirstOfferNeverReturnsNil(t *testing.T) {
	p := newTestPipeline(t)
	chunk := make([]int16, hopSamples)
	score, err := p.Offer(chunk)
	require.NoError(t, err)
	require.NotNil(t, score)
}

func TestOfferEmptyChunkReturnsPreviousScoreWithoutMutation(t *testing.T) {
	p := newTestPipeline(t)
	chunk := make([]int16, hopSamples)
	first, err := p.Offer(chunk)
	require.NoError(t, err)

	rawLen := p.rawRing.Len()
	melLen := p.melRing.Len()
	featLen := p.featureRing.Len()

	second, err := p.Offer(nil)
	require.NoError(t, err)
	require.Equal(t, *first, *second)
	require.Equal(t, rawLen, p.rawRing.Len())
	require.Equal(t, melLen, p.melRing.Len())
	require.Equal(t, featLen, p.featureRing.Len())
}

func TestRingsNeverExceedCapacity(t *testing.T) {
	p := newTestPipeline(t)
	chunk := make([]int16, hopSamples)
	for i := 0; i < 200; i++ {
		_, err := p.Offer(chunk)
		require.NoError(t, err)
		require.LessOrEqual(t, p.rawRing.Len(), rawRingCapacity)
		require.LessOrEqual(t, p.melRing.Len(), melRingCapacity)
		require.LessOrEqual(t, p.featureRing.Len(), featureRingCapacity)
	}
}

func TestSubHopChunkIsPushedImmediatelyWithNoRemainder(t *testing.T) {
	p := newTestPipeline(t)
	rawLenBefore := p.rawRing.Len()

	_, err := p.Offer(make([]int16, hopSamples/2))
	require.NoError(t, err)

	require.Empty(t, p.remainder)
	require.Equal(t, rawLenBefore+hopSamples/2, p.rawRing.Len())
}

func TestOverHopChunkLeavesExactRemainder(t *testing.T) {
	p := newTestPipeline(t)
	_, err := p.Offer(make([]int16, hopSamples+100))
	require.NoError(t, err)
	require.Len(t, p.remainder, 100)
}
