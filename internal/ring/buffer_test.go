package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPushBackEvictsOldest(t *testing.T) {
	b := New[int](3)
	b.PushBackAll([]int{1, 2, 3, 4, 5})
	require.Equal(t, 3, b.Len())
	require.Equal(t, []int{3, 4, 5}, b.Slice())
}

func TestTrimTo(t *testing.T) {
	b := New[int](10)
	b.PushBackAll([]int{1, 2, 3, 4, 5})
	b.TrimTo(2)
	require.Equal(t, []int{4, 5}, b.Slice())

	// TrimTo above current length is a no-op.
	b.TrimTo(100)
	require.Equal(t, []int{4, 5}, b.Slice())
}

func TestSnapshotTailShorterThanBuffer(t *testing.T) {
	b := New[int](10)
	b.PushBackAll([]int{1, 2, 3})
	require.Equal(t, []int{1, 2, 3}, b.SnapshotTail(100))
	require.Equal(t, []int{2, 3}, b.SnapshotTail(2))
	require.Nil(t, b.SnapshotTail(0))
}

func TestNewPrimed(t *testing.T) {
	b := NewPrimed(970, 76, float32(1.0))
	require.Equal(t, 76, b.Len())
	for _, v := range b.Slice() {
		require.Equal(t, float32(1.0), v)
	}
}

// TestPushBackNeverExceedsCapacity is a property check: for any sequence of
// pushes against any capacity, Len never exceeds Cap and the tail always
// matches the true suffix of the logical (unbounded) sequence.
func TestPushBackNeverExceedsCapacity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 32).Draw(rt, "capacity")
		pushes := rapid.SliceOfN(rapid.IntRange(0, 1000), 0, 200).Draw(rt, "pushes")

		b := New[int](capacity)
		var logical []int
		for _, v := range pushes {
			b.PushBack(v)
			logical = append(logical, v)
			if len(logical) > capacity {
				logical = logical[len(logical)-capacity:]
			}
			require.LessOrEqual(rt, b.Len(), capacity)
			require.Equal(rt, logical, b.Slice())
		}
	})
}
