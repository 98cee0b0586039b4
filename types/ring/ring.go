package ring

import (
	"runtime"
	"sync/atomic"
)

// Ring is a bounded circular buffer dedicated to exactly one producer
// goroutine and exactly one consumer goroutine. Push and Pop are lock-free,
// never allocate, and the consumer observes values in push order.
// Capacity is a power of two; one slot is kept open, so N-1 values fit.
// Head and tail live on separate cache lines to avoid false sharing.
type Ring[T any] struct {
	_    [64]byte
	head atomic.Uint64 // next slot the consumer reads, advanced by consumer only
	_    [56]byte
	tail atomic.Uint64 // next slot the producer writes, advanced by producer only
	_    [56]byte

	mask uint64
	buf  []T
}

// New allocates a ring with the given power-of-two size.
// It panics otherwise so the index masking stays valid.
func New[T any](size int) *Ring[T] {
	if size <= 1 || size&(size-1) != 0 {
		panic("ring: size must be >1 and a power of two")
	}
	return &Ring[T]{
		mask: uint64(size - 1),
		buf:  make([]T, size),
	}
}

// Push enqueues v, returning false if the ring is full.
func (r *Ring[T]) Push(v T) bool {
	tail := r.tail.Load()
	next := (tail + 1) & r.mask
	if next == r.head.Load() {
		return false
	}
	r.buf[tail] = v
	r.tail.Store(next)
	return true
}

// Pop dequeues the oldest value, returning false if the ring is empty.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	head := r.head.Load()
	if head == r.tail.Load() {
		return zero, false
	}
	v := r.buf[head]
	r.buf[head] = zero
	r.head.Store((head + 1) & r.mask)
	return v, true
}

// PushBatch enqueues values from src in order and returns the count actually
// enqueued, which is less than len(src) when the ring fills up.
func (r *Ring[T]) PushBatch(src []T) int {
	tail := r.tail.Load()
	head := r.head.Load()
	free := (head - tail - 1) & r.mask
	n := uint64(len(src))
	if n > free {
		n = free
	}
	for i := uint64(0); i < n; i++ {
		r.buf[(tail+i)&r.mask] = src[i]
	}
	r.tail.Store((tail + n) & r.mask)
	return int(n)
}

// PopBatch dequeues up to len(dst) values in order and returns the count
// actually dequeued.
func (r *Ring[T]) PopBatch(dst []T) int {
	var zero T
	head := r.head.Load()
	tail := r.tail.Load()
	used := (tail - head) & r.mask
	n := uint64(len(dst))
	if n > used {
		n = used
	}
	for i := uint64(0); i < n; i++ {
		idx := (head + i) & r.mask
		dst[i] = r.buf[idx]
		r.buf[idx] = zero
	}
	r.head.Store((head + n) & r.mask)
	return int(n)
}

// PushSpin busy-waits until v fits, yielding the processor between attempts.
func (r *Ring[T]) PushSpin(v T) {
	for !r.Push(v) {
		runtime.Gosched()
	}
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

// Len returns the number of values currently buffered.
func (r *Ring[T]) Len() int {
	return int((r.tail.Load() - r.head.Load()) & r.mask)
}

// Cap returns the number of usable slots (size minus one).
func (r *Ring[T]) Cap() int {
	return int(r.mask)
}

// Empty reports whether the ring holds no values.
func (r *Ring[T]) Empty() bool {
	return r.head.Load() == r.tail.Load()
}

// Full reports whether the next Push would fail.
func (r *Ring[T]) Full() bool {
	return (r.tail.Load()+1)&r.mask == r.head.Load()
}
