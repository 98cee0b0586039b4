//go:build !linux

package network

import "syscall"

// tuneSocket is a no-op outside Linux; the portable SetReadBuffer call in the
// receiver already covers buffer sizing.
func tuneSocket(rc syscall.RawConn, cfg *Config) error {
	_, _ = rc, cfg
	return nil
}

// kernelTimestamp is unavailable outside Linux.
func kernelTimestamp(oob []byte) uint64 {
	_ = oob
	return 0
}
