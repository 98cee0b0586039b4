//go:build !linux && !darwin

package pool

// LockMemory is unsupported on this platform; the pool works on pageable memory.
func (p *Pool[T]) LockMemory() error {
	return nil
}
