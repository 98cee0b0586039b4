//go:build linux || darwin

package pool

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// LockMemory pins the pool slab into RAM so page faults never hit the hot
// path. Failure (insufficient RLIMIT_MEMLOCK, unsupported platform) is
// reported but not fatal; the pool keeps working on pageable memory.
func (p *Pool[T]) LockMemory() error {
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(&p.blocks[0])), uintptr(len(p.blocks))*p.blockSize)
	return unix.Mlock(bytes)
}
