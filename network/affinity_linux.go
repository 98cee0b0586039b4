//go:build linux

package network

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// PinThread locks the calling goroutine to its OS thread and binds that
// thread to the given CPU. Negative cpu values leave the thread unpinned.
// The goroutine stays locked for its lifetime; callers are expected to be
// long-running pipeline threads.
func PinThread(cpu int) error {
	if cpu < 0 {
		return nil
	}
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
