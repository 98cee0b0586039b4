package network

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/cryptonstudio/crypton-feed-engine/types/mpsc"
	"github.com/cryptonstudio/crypton-feed-engine/types/pool"
)

// ErrNoGroups is returned when a MultiReceiver is built without sockets.
var ErrNoGroups = errors.New("no capture groups configured")

// MultiReceiver captures from several multicast groups at once, e.g. the
// A/B arbitrated sides of a venue feed or multiple instrument channels. Each
// group gets its own socket and capture thread; all threads publish into one
// multi-producer ring, so the decode side still polls a single queue.
type MultiReceiver struct {
	cfgs []Config
	log  *zap.Logger

	ring *mpsc.Ring[*Packet]
	pool *pool.Pool[Packet]

	conns    []*net.UDPConn
	sequence atomic.Uint64
	running  atomic.Bool
	wg       sync.WaitGroup

	packetsReceived atomic.Uint64
	bytesReceived   atomic.Uint64
	packetsDropped  atomic.Uint64
	receiveErrors   atomic.Uint64
}

// NewMultiReceiver validates each group config. Ring and pool sizing is taken
// from the first config; the per-group recovery settings are not used, a
// failed socket read is counted and retried on the same socket.
func NewMultiReceiver(cfgs []Config) (*MultiReceiver, error) {
	if len(cfgs) == 0 {
		return nil, ErrNoGroups
	}
	for i := range cfgs {
		if err := cfgs[i].Validate(); err != nil {
			return nil, fmt.Errorf("group %d: %w", i, err)
		}
		cfgs[i].normalize()
	}
	return &MultiReceiver{
		cfgs: cfgs,
		log:  cfgs[0].Logger,
		ring: mpsc.New[*Packet](cfgs[0].RingSize),
		pool: pool.New[Packet](cfgs[0].PoolSize),
	}, nil
}

// Start opens every socket and launches one capture thread per group.
// Any socket failing to open aborts the start and closes the rest.
func (m *MultiReceiver) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrReceiverRunning
	}
	m.conns = m.conns[:0]
	for i := range m.cfgs {
		conn, err := openGroupSocket(&m.cfgs[i])
		if err != nil {
			for _, c := range m.conns {
				_ = c.Close()
			}
			m.running.Store(false)
			return fmt.Errorf("group %d: %w", i, err)
		}
		m.conns = append(m.conns, conn)
	}
	for i, conn := range m.conns {
		m.wg.Add(1)
		go m.captureLoop(conn, m.cfgs[i].CPU)
	}
	return nil
}

// Stop closes all sockets and joins the capture threads.
func (m *MultiReceiver) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	for _, conn := range m.conns {
		_ = conn.Close()
	}
	m.wg.Wait()
}

// Poll returns the next captured packet from any group.
// Single consumer only.
func (m *MultiReceiver) Poll() (*Packet, bool) {
	return m.ring.Pop()
}

// Release returns a polled packet to the shared pool.
func (m *MultiReceiver) Release(p *Packet) {
	m.pool.Put(p)
}

// Stats returns a point-in-time copy of the aggregate counters.
func (m *MultiReceiver) Stats() Stats {
	return Stats{
		PacketsReceived: m.packetsReceived.Load(),
		BytesReceived:   m.bytesReceived.Load(),
		PacketsDropped:  m.packetsDropped.Load(),
		ReceiveErrors:   m.receiveErrors.Load(),
	}
}

// LocalPorts returns the bound port of every open socket, in config order.
func (m *MultiReceiver) LocalPorts() []int {
	ports := make([]int, len(m.conns))
	for i, conn := range m.conns {
		ports[i] = conn.LocalAddr().(*net.UDPAddr).Port
	}
	return ports
}

func openGroupSocket(cfg *Config) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: cfg.Port})
	if err != nil {
		return nil, err
	}
	_ = conn.SetReadBuffer(cfg.RecvBufferBytes)
	if rc, err := conn.SyscallConn(); err == nil {
		_ = tuneSocket(rc, cfg)
	}
	if cfg.Group != "" {
		var iface *net.Interface
		if cfg.Interface != "" {
			if iface, err = net.InterfaceByName(cfg.Interface); err != nil {
				_ = conn.Close()
				return nil, err
			}
		}
		pc := ipv4.NewPacketConn(conn)
		if err := pc.JoinGroup(iface, &net.UDPAddr{IP: net.ParseIP(cfg.Group)}); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (m *MultiReceiver) captureLoop(conn *net.UDPConn, cpu int) {
	defer m.wg.Done()
	if err := PinThread(cpu); err != nil {
		m.log.Warn("capture thread affinity failed", zap.Int("cpu", cpu), zap.Error(err))
	}

	oob := make([]byte, 128)
	var overflow Packet

	for m.running.Load() {
		pkt := m.pool.Get()
		fromPool := pkt != nil
		if !fromPool {
			pkt = &overflow
		}

		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, oobn, _, _, err := conn.ReadMsgUDP(pkt.Data[:], oob)
		if err != nil {
			if fromPool {
				m.pool.Put(pkt)
			}
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			if !m.running.Load() {
				return
			}
			m.receiveErrors.Add(1)
			continue
		}
		if n == 0 {
			if fromPool {
				m.pool.Put(pkt)
			}
			continue
		}

		m.packetsReceived.Add(1)
		m.bytesReceived.Add(uint64(n))
		if !fromPool {
			m.packetsDropped.Add(1)
			continue
		}

		pkt.CaptureNanos = NowNanos()
		pkt.KernelNanos = kernelTimestamp(oob[:oobn])
		pkt.Length = uint32(n)
		pkt.Sequence = m.sequence.Add(1)

		if !m.ring.Push(pkt) {
			m.packetsDropped.Add(1)
			m.pool.Put(pkt)
		}
	}
}
