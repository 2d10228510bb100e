package supervisor

import (
	"sync"

	"github.com/nabuvoice/wake-satellite/internal/audio"
	"github.com/nabuvoice/wake-satellite/internal/ring"
)

// debugRingSeconds is the duration of captured audio the debug recorder
// retains, per the debug-record-start/debug-play lifecycle contract.
const debugRingSeconds = 30

// DebugRecorder snapshots captured audio into an in-memory ring when
// active, for the debug-record-start/debug-play UI commands. It is
// inert (offer is a no-op) until start is called.
type DebugRecorder struct {
	mu      sync.Mutex
	active  bool
	samples *ring.Buffer[int16]
}

func newDebugRecorder() *DebugRecorder {
	return &DebugRecorder{samples: ring.New[int16](debugRingSeconds * audio.SampleRate)}
}

func (d *DebugRecorder) start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = true
}

func (d *DebugRecorder) offer(chunk []int16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return
	}
	d.samples.PushBackAll(chunk)
}

// snapshot returns the ring's full contents in recorded order.
func (d *DebugRecorder) snapshot() []int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.samples.SnapshotTail(d.samples.Len())
}
