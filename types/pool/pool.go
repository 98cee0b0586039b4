package pool

import (
	"sync/atomic"
	"unsafe"
)

// Pool is a fixed-capacity allocator of blocks of type T backed by a single
// contiguous slab. Free blocks are kept in a lock-free LIFO free list threaded
// through a parallel index array, so Get and Put are O(1) and allocation-free.
// Pointer identity of every block is stable for the lifetime of the pool.
// NOTE: Get is wait-free on the fast path and lock-free under contention.
type Pool[T any] struct {
	blocks []T
	next   []int32

	// Free list head: upper 32 bits are an ABA version tag,
	// lower 32 bits are the head block index plus one (zero means empty).
	head atomic.Uint64

	allocated  atomic.Int64
	expansions atomic.Uint64

	blockSize uintptr
	base      uintptr
}

// New creates a Pool holding exactly count blocks of type T.
// It panics if count is not positive.
func New[T any](count int) *Pool[T] {
	if count <= 0 {
		panic("pool: count must be positive")
	}
	p := &Pool[T]{
		blocks: make([]T, count),
		next:   make([]int32, count),
	}
	for i := 0; i < count-1; i++ {
		p.next[i] = int32(i + 1)
	}
	p.next[count-1] = -1
	p.head.Store(packHead(0, 0))
	p.blockSize = unsafe.Sizeof(p.blocks[0])
	p.base = uintptr(unsafe.Pointer(&p.blocks[0]))
	return p
}

func packHead(version uint32, index int32) uint64 {
	return uint64(version)<<32 | uint64(uint32(index+1))
}

func headIndex(head uint64) int32 {
	return int32(uint32(head)) - 1
}

func headVersion(head uint64) uint32 {
	return uint32(head >> 32)
}

// Get removes a block from the free list and returns it.
// It returns nil when the pool is exhausted. The block content is undefined.
func (p *Pool[T]) Get() *T {
	idx := p.GetIndex()
	if idx < 0 {
		return nil
	}
	return &p.blocks[idx]
}

// GetIndex is Get returning the slab index of the block, or -1 on exhaustion.
func (p *Pool[T]) GetIndex() int32 {
	for {
		head := p.head.Load()
		idx := headIndex(head)
		if idx < 0 {
			return -1
		}
		next := atomic.LoadInt32(&p.next[idx])
		if p.head.CompareAndSwap(head, packHead(headVersion(head)+1, next)) {
			p.allocated.Add(1)
			return idx
		}
	}
}

// Put returns a block previously obtained from Get to the free list.
// Passing a pointer the pool does not own panics; double free is undefined.
func (p *Pool[T]) Put(block *T) {
	idx := p.IndexOf(block)
	if idx < 0 {
		panic("pool: foreign pointer")
	}
	p.PutIndex(idx)
}

// PutIndex is Put addressed by slab index.
func (p *Pool[T]) PutIndex(idx int32) {
	for {
		head := p.head.Load()
		atomic.StoreInt32(&p.next[idx], headIndex(head))
		if p.head.CompareAndSwap(head, packHead(headVersion(head)+1, idx)) {
			p.allocated.Add(-1)
			return
		}
	}
}

// GetBatch fills out with freshly allocated blocks and returns the count
// actually allocated, which is less than len(out) on exhaustion.
func (p *Pool[T]) GetBatch(out []*T) int {
	for i := range out {
		block := p.Get()
		if block == nil {
			return i
		}
		out[i] = block
	}
	return len(out)
}

// PutBatch releases all given blocks and returns the count released.
func (p *Pool[T]) PutBatch(blocks []*T) int {
	for _, block := range blocks {
		p.Put(block)
	}
	return len(blocks)
}

// At returns the block stored at the given slab index.
func (p *Pool[T]) At(idx int32) *T {
	return &p.blocks[idx]
}

// IndexOf returns the slab index of the given block or -1 if the pool
// does not own it.
func (p *Pool[T]) IndexOf(block *T) int32 {
	offset := uintptr(unsafe.Pointer(block)) - p.base
	if offset%p.blockSize != 0 {
		return -1
	}
	idx := offset / p.blockSize
	if idx >= uintptr(len(p.blocks)) {
		return -1
	}
	return int32(idx)
}

// Owns reports whether the given pointer addresses a block inside the pool slab.
func (p *Pool[T]) Owns(block *T) bool {
	return p.IndexOf(block) >= 0
}

// Allocated returns the number of blocks currently handed out.
func (p *Pool[T]) Allocated() int {
	return int(p.allocated.Load())
}

// Available returns the number of blocks remaining in the free list.
func (p *Pool[T]) Available() int {
	return len(p.blocks) - p.Allocated()
}

// Capacity returns the fixed block count of the pool.
func (p *Pool[T]) Capacity() int {
	return len(p.blocks)
}

// Utilization returns allocated/capacity in the range [0, 1].
func (p *Pool[T]) Utilization() float64 {
	return float64(p.Allocated()) / float64(len(p.blocks))
}

// Expansions returns how many times the pool has grown. The slab is fixed,
// so the counter stays at zero unless Expand ever succeeds.
func (p *Pool[T]) Expansions() uint64 {
	return p.expansions.Load()
}

// Expand grows the pool by delta blocks. Growing would invalidate the stable
// slab addresses handed out earlier, so it is unsupported and returns false
// without side effect.
func (p *Pool[T]) Expand(delta int) bool {
	_ = delta
	return false
}

// Reset rebuilds the free list with every block free again.
// Unsafe: the caller guarantees no live pointers into the pool remain.
func (p *Pool[T]) Reset() {
	for i := 0; i < len(p.next)-1; i++ {
		p.next[i] = int32(i + 1)
	}
	p.next[len(p.next)-1] = -1
	p.head.Store(packHead(headVersion(p.head.Load())+1, 0))
	p.allocated.Store(0)
}
