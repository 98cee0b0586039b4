package mpsc

import (
	"runtime"
	"sync/atomic"
)

// Ring is a bounded queue for any number of producer goroutines and exactly
// one consumer goroutine. Every slot carries a sequence stamp: a producer
// claims a slot by advancing the tail with a compare-exchange, writes the
// payload, then publishes the slot's next sequence; the consumer waits for
// the publication stamp before moving the value out. Producers never lose
// updates under arbitrary interleaving, and the consumer observes values in
// slot-claim order. Full and empty are ordinary outcomes, not errors.
type Ring[T any] struct {
	_    [64]byte
	tail atomic.Uint64 // shared by producers
	_    [56]byte
	head atomic.Uint64 // consumer only
	_    [56]byte

	mask uint64
	buf  []slot[T]
}

type slot[T any] struct {
	seq atomic.Uint64
	val T
}

// New allocates a ring with the given power-of-two size.
// It panics otherwise so the index masking stays valid.
func New[T any](size int) *Ring[T] {
	if size <= 1 || size&(size-1) != 0 {
		panic("mpsc: size must be >1 and a power of two")
	}
	r := &Ring[T]{
		mask: uint64(size - 1),
		buf:  make([]slot[T], size),
	}
	for i := range r.buf {
		r.buf[i].seq.Store(uint64(i))
	}
	return r
}

// Push enqueues v, returning false if the ring is full.
// Safe to call from any number of goroutines concurrently.
func (r *Ring[T]) Push(v T) bool {
	for {
		tail := r.tail.Load()
		s := &r.buf[tail&r.mask]
		seq := s.seq.Load()
		switch {
		case seq == tail:
			if r.tail.CompareAndSwap(tail, tail+1) {
				s.val = v
				s.seq.Store(tail + 1)
				return true
			}
		case seq < tail:
			return false // consumer has not reclaimed the slot yet
		default:
			// Another producer claimed this slot; reload the tail.
			runtime.Gosched()
		}
	}
}

// Pop dequeues the oldest published value, returning false if none is ready.
// Must be called from a single consumer goroutine.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	head := r.head.Load()
	s := &r.buf[head&r.mask]
	if s.seq.Load() != head+1 {
		return zero, false
	}
	v := s.val
	s.val = zero
	s.seq.Store(head + uint64(len(r.buf)))
	r.head.Store(head + 1)
	return v, true
}

// PopSpin busy-waits until a value is available, yielding between attempts.
func (r *Ring[T]) PopSpin() T {
	for {
		if v, ok := r.Pop(); ok {
			return v
		}
		runtime.Gosched()
	}
}

// Len returns the number of claimed slots not yet consumed.
func (r *Ring[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns the slot count of the ring.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Empty reports whether no value is waiting.
func (r *Ring[T]) Empty() bool {
	return r.Len() == 0
}
