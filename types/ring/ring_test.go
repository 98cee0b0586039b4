package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingSizeValidation(t *testing.T) {
	require.Panics(t, func() { New[int](0) })
	require.Panics(t, func() { New[int](1) })
	require.Panics(t, func() { New[int](100) })
	require.NotPanics(t, func() { New[int](2) })
	require.NotPanics(t, func() { New[int](1024) })
}

func TestRingPushPop(t *testing.T) {
	r := New[int](8)
	require.True(t, r.Empty())
	require.Equal(t, 7, r.Cap())

	for i := 0; i < 7; i++ {
		require.True(t, r.Push(i))
	}
	require.True(t, r.Full())
	require.False(t, r.Push(99), "ring at capacity rejects the next push")

	// A single pop frees exactly one slot.
	v, ok := r.Pop()
	require.True(t, ok)
	require.Equal(t, 0, v)
	require.True(t, r.Push(99))
	require.False(t, r.Push(100))

	expected := []int{1, 2, 3, 4, 5, 6, 99}
	for _, want := range expected {
		v, ok := r.Pop()
		require.True(t, ok)
		require.Equal(t, want, v)
	}
	_, ok = r.Pop()
	require.False(t, ok)
	require.True(t, r.Empty())
}

func TestRingBatch(t *testing.T) {
	r := New[int](8)
	src := []int{1, 2, 3, 4, 5, 6, 7, 8, 9}
	require.Equal(t, 7, r.PushBatch(src), "batch push succeeds partially when full")
	require.Equal(t, 7, r.Len())

	dst := make([]int, 4)
	require.Equal(t, 4, r.PopBatch(dst))
	require.Equal(t, []int{1, 2, 3, 4}, dst)

	dst = make([]int, 8)
	require.Equal(t, 3, r.PopBatch(dst), "batch pop drains what is buffered")
	require.Equal(t, []int{5, 6, 7}, dst[:3])
	require.True(t, r.Empty())
}

func TestRingWrapAround(t *testing.T) {
	r := New[int](4)
	for round := 0; round < 100; round++ {
		require.True(t, r.Push(round))
		v, ok := r.Pop()
		require.True(t, ok)
		require.Equal(t, round, v)
	}
	require.True(t, r.Empty())
}

// One producer pushes a million integers, one consumer pops them all:
// every value arrives exactly once, in order, and the ring drains empty.
func TestRingSPSCOrder(t *testing.T) {
	const total = 1_000_000
	r := New[int](65536)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for expect := 0; expect < total; {
			v, ok := r.Pop()
			if !ok {
				continue
			}
			if v != expect {
				t.Errorf("popped %d, expected %d", v, expect)
				return
			}
			expect++
		}
	}()

	for i := 0; i < total; i++ {
		r.PushSpin(i)
	}
	<-done

	require.True(t, r.Empty())
}

func BenchmarkRingPushPop(b *testing.B) {
	r := New[uint64](65536)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		r.Push(uint64(i))
		r.Pop()
	}
}
