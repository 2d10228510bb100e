// Package ring provides a bounded FIFO used for the raw-sample, mel-frame,
// and feature rings the wake-word pipeline keeps between calls to Offer.
package ring

// Buffer is a bounded, drop-oldest FIFO backed by a circular array, giving
// O(1) amortized PushBack and O(n) SnapshotTail.
// It is not safe for concurrent use; every Buffer in this system is owned
// by a single goroutine, so no locking is required.
type Buffer[T any] struct {
	data  []T
	cap   int
	head  int // index of the oldest element
	count int // number of valid elements
}

// New creates an empty Buffer with the given capacity.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Buffer[T]{data: make([]T, capacity), cap: capacity}
}

// NewPrimed creates a Buffer pre-filled with n copies of seed, up to its
// capacity. Used to seed MelFrameRing with priming sentinels.
func NewPrimed[T any](capacity, n int, seed T) *Buffer[T] {
	b := New[T](capacity)
	for i := 0; i < n && i < capacity; i++ {
		b.PushBack(seed)
	}
	return b
}

// Len returns the number of elements currently held.
func (b *Buffer[T]) Len() int { return b.count }

// Cap returns the buffer's capacity.
func (b *Buffer[T]) Cap() int { return b.cap }

// PushBack appends x, evicting the oldest element first if full.
func (b *Buffer[T]) PushBack(x T) {
	writeAt := (b.head + b.count) % b.cap
	if b.count == b.cap {
		// Full: the write slot already holds the oldest element, so
		// overwriting it and advancing head evicts that element.
		b.data[writeAt] = x
		b.head = (b.head + 1) % b.cap
		return
	}
	b.data[writeAt] = x
	b.count++
}

// PushBackAll appends each element of xs in order.
func (b *Buffer[T]) PushBackAll(xs []T) {
	for _, x := range xs {
		b.PushBack(x)
	}
}

// TrimTo drops the oldest elements until at most n remain. A no-op if the
// buffer already holds n or fewer elements.
func (b *Buffer[T]) TrimTo(n int) {
	if n < 0 {
		n = 0
	}
	if b.count <= n {
		return
	}
	drop := b.count - n
	b.head = (b.head + drop) % b.cap
	b.count = n
}

// SnapshotTail returns a contiguous copy of the last n elements, or all
// elements if fewer than n are held.
func (b *Buffer[T]) SnapshotTail(n int) []T {
	if n <= 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}
	out := make([]T, n)
	start := (b.head + b.count - n) % b.cap
	for i := 0; i < n; i++ {
		out[i] = b.data[(start+i)%b.cap]
	}
	return out
}

// Slice returns a contiguous copy of every element currently held, oldest
// first. Equivalent to SnapshotTail(Len()).
func (b *Buffer[T]) Slice() []T {
	return b.SnapshotTail(b.count)
}

// Reset empties the buffer without changing its capacity.
func (b *Buffer[T]) Reset() {
	b.head = 0
	b.count = 0
}
