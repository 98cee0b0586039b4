package network

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		err  error
	}{
		{"defaults", DefaultConfig("239.0.0.1", 26400), nil},
		{"unicast only", Config{Port: 26400}, nil},
		{"port too large", Config{Port: 70000}, ErrInvalidPort},
		{"negative port", Config{Port: -1}, ErrInvalidPort},
		{"garbage group", Config{Group: "not-an-ip", Port: 26400}, ErrInvalidGroup},
		{"unicast address as group", Config{Group: "10.0.0.1", Port: 26400}, ErrInvalidGroup},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.err == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.err)
			}
		})
	}
}

func newLoopbackReceiver(t *testing.T) *Receiver {
	t.Helper()
	cfg := DefaultConfig("", 0)
	cfg.RingSize = 1024
	cfg.PoolSize = 1024
	cfg.Recovery.Enabled = false
	r, err := NewReceiver(cfg)
	require.NoError(t, err)
	require.NoError(t, r.Start())
	t.Cleanup(r.Stop)
	return r
}

func sendTo(t *testing.T, port int, payload []byte) {
	t.Helper()
	conn, err := net.Dial("udp4", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(payload)
	require.NoError(t, err)
}

// pollOne spins on the ring until a packet arrives or the deadline passes.
func pollOne(t *testing.T, r *Receiver) *Packet {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pkt, ok := r.Poll(); ok {
			return pkt
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no packet captured before deadline")
	return nil
}

func TestReceiverCapture(t *testing.T) {
	r := newLoopbackReceiver(t)
	require.True(t, r.IsRunning())
	require.True(t, r.Healthy())

	before := NowNanos()
	for i := 0; i < 5; i++ {
		sendTo(t, r.LocalPort(), []byte(fmt.Sprintf("datagram-%d", i)))
	}

	for i := 0; i < 5; i++ {
		pkt := pollOne(t, r)
		require.Equal(t, fmt.Sprintf("datagram-%d", i), string(pkt.Payload()))
		require.Equal(t, uint64(i+1), pkt.Sequence, "sequence numbers capture order")
		require.GreaterOrEqual(t, pkt.CaptureNanos, before)
		r.Release(pkt)
	}

	stats := r.Stats()
	require.Equal(t, uint64(5), stats.PacketsReceived)
	require.Equal(t, uint64(0), stats.PacketsDropped)
	require.NotZero(t, stats.BytesReceived)
}

func TestReceiverDoubleStart(t *testing.T) {
	r := newLoopbackReceiver(t)
	require.ErrorIs(t, r.Start(), ErrReceiverRunning)
}

func TestReceiverStopIsIdempotent(t *testing.T) {
	cfg := DefaultConfig("", 0)
	r, err := NewReceiver(cfg)
	require.NoError(t, err)
	require.NoError(t, r.Start())
	r.Stop()
	r.Stop()
	require.False(t, r.IsRunning())
}

func TestMultiReceiverFanIn(t *testing.T) {
	cfgA := DefaultConfig("", 0)
	cfgB := DefaultConfig("", 0)
	m, err := NewMultiReceiver([]Config{cfgA, cfgB})
	require.NoError(t, err)
	require.NoError(t, m.Start())
	defer m.Stop()

	ports := m.LocalPorts()
	require.Len(t, ports, 2)
	sendTo(t, ports[0], []byte("side-a"))
	sendTo(t, ports[1], []byte("side-b"))

	got := map[string]bool{}
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 2 && time.Now().Before(deadline) {
		pkt, ok := m.Poll()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		got[string(pkt.Payload())] = true
		m.Release(pkt)
	}
	require.True(t, got["side-a"])
	require.True(t, got["side-b"])
	require.Equal(t, uint64(2), m.Stats().PacketsReceived)
}

func TestMultiReceiverNeedsGroups(t *testing.T) {
	_, err := NewMultiReceiver(nil)
	require.ErrorIs(t, err, ErrNoGroups)
}
