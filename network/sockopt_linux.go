//go:build linux

package network

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// tuneSocket applies the latency-oriented socket options. Receive buffer
// sizing is mandatory; busy polling, scheduling priority and kernel
// timestamping need elevated privileges on most boxes and are best effort.
func tuneSocket(rc syscall.RawConn, cfg *Config) error {
	var bufErr error
	err := rc.Control(func(fd uintptr) {
		s := int(fd)
		if cfg.RecvBufferBytes > 0 {
			// SO_RCVBUFFORCE ignores rmem_max but needs CAP_NET_ADMIN.
			if unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_RCVBUFFORCE, cfg.RecvBufferBytes) != nil {
				bufErr = unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.RecvBufferBytes)
			}
		}
		if cfg.BusyPollMicros > 0 {
			_ = unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_BUSY_POLL, cfg.BusyPollMicros)
		}
		if cfg.SocketPriority > 0 {
			_ = unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_PRIORITY, cfg.SocketPriority)
		}
		_ = unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_TIMESTAMPNS, 1)
	})
	if err != nil {
		return err
	}
	return bufErr
}

// kernelTimestamp extracts the SO_TIMESTAMPNS receive time from the socket
// control messages, returning zero when absent.
func kernelTimestamp(oob []byte) uint64 {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return 0
	}
	for i := range msgs {
		m := &msgs[i]
		if m.Header.Level != unix.SOL_SOCKET || m.Header.Type != unix.SCM_TIMESTAMPNS {
			continue
		}
		if len(m.Data) < int(unsafe.Sizeof(unix.Timespec{})) {
			continue
		}
		ts := (*unix.Timespec)(unsafe.Pointer(&m.Data[0]))
		return uint64(ts.Sec)*1e9 + uint64(ts.Nsec)
	}
	return 0
}
