package mpsc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingSizeValidation(t *testing.T) {
	require.Panics(t, func() { New[int](0) })
	require.Panics(t, func() { New[int](3) })
	require.NotPanics(t, func() { New[int](16) })
}

func TestRingSingleProducer(t *testing.T) {
	r := New[int](8)
	for i := 0; i < 8; i++ {
		require.True(t, r.Push(i))
	}
	require.False(t, r.Push(8), "full ring rejects the push")

	for i := 0; i < 8; i++ {
		v, ok := r.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := r.Pop()
	require.False(t, ok)

	// Slots are reclaimed after a pop.
	require.True(t, r.Push(100))
	v, ok := r.Pop()
	require.True(t, ok)
	require.Equal(t, 100, v)
}

// Every successfully pushed value is observed exactly once, and values from
// a single producer keep their relative order.
func TestRingManyProducersExactlyOnce(t *testing.T) {
	const (
		producers  = 4
		perWorker  = 50_000
		totalCount = producers * perWorker
	)
	r := New[uint64](4096)

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(id uint64) {
			defer wg.Done()
			for i := uint64(0); i < perWorker; i++ {
				v := id<<32 | i
				for !r.Push(v) {
				}
			}
		}(uint64(p))
	}

	seen := make(map[uint64]bool, totalCount)
	lastPerProducer := make([]int64, producers)
	for i := range lastPerProducer {
		lastPerProducer[i] = -1
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := 0; n < totalCount; n++ {
			v := r.PopSpin()
			if seen[v] {
				t.Errorf("value %x observed twice", v)
				return
			}
			seen[v] = true
			producer := v >> 32
			index := int64(v & 0xffffffff)
			if index <= lastPerProducer[producer] {
				t.Errorf("producer %d out of order: %d after %d", producer, index, lastPerProducer[producer])
				return
			}
			lastPerProducer[producer] = index
		}
	}()

	wg.Wait()
	<-done

	require.Len(t, seen, totalCount)
	require.True(t, r.Empty())
}

func TestRingLen(t *testing.T) {
	r := New[int](8)
	require.Equal(t, 0, r.Len())
	r.Push(1)
	r.Push(2)
	require.Equal(t, 2, r.Len())
	r.Pop()
	require.Equal(t, 1, r.Len())
	require.Equal(t, 8, r.Cap())
}
