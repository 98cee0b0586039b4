//go:build !linux

package network

import "runtime"

// PinThread locks the calling goroutine to its OS thread. CPU binding is a
// Linux facility; other platforms get the OS-thread lock only.
func PinThread(cpu int) error {
	if cpu < 0 {
		return nil
	}
	runtime.LockOSThread()
	return nil
}
