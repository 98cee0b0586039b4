package network

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
	"gopkg.in/typ.v4"

	"github.com/cryptonstudio/crypton-feed-engine/types/pool"
	"github.com/cryptonstudio/crypton-feed-engine/types/ring"
)

var (
	// ErrReceiverRunning is returned when Start is called twice.
	ErrReceiverRunning = errors.New("receiver is running")

	// ErrInvalidGroup is returned for an unparsable multicast group address.
	ErrInvalidGroup = errors.New("invalid multicast group")

	// ErrInvalidPort is returned for an out-of-range UDP port.
	ErrInvalidPort = errors.New("invalid port")

	// ErrRecoveryFailed is returned when the socket cannot be reopened after
	// exhausting all recovery attempts.
	ErrRecoveryFailed = errors.New("socket recovery failed")
)

const (
	defaultRecvBufferBytes = 8 << 20
	defaultRingSize        = 1 << 16
	defaultPoolSize        = 1 << 16
	defaultMaxErrors       = 100

	// readDeadline bounds each blocking receive so the loop notices shutdown.
	readDeadline = time.Millisecond
)

// RecoveryConfig controls automatic socket reopening after persistent
// receive failures. Delays follow exponential backoff from BaseDelay capped
// at MaxDelay, with 25% jitter to avoid synchronized retries across feeds.
type RecoveryConfig struct {
	Enabled     bool
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// Config describes one UDP capture socket.
type Config struct {
	// Group is the multicast group to join; empty listens for unicast only.
	Group string
	// Port is the UDP port to bind. Zero lets the OS pick (tests).
	Port int
	// Interface names the NIC for the multicast join; empty uses the default.
	Interface string

	RecvBufferBytes int
	BusyPollMicros  int
	SocketPriority  int

	// RingSize and PoolSize are rounded up to powers of two.
	RingSize int
	PoolSize int

	// CPU pins the capture thread; negative leaves it floating.
	CPU int

	// MaxConsecutiveErrors marks the receiver unhealthy and, with recovery
	// enabled, triggers a socket reopen.
	MaxConsecutiveErrors int

	Recovery RecoveryConfig

	Logger *zap.Logger
}

// DefaultConfig returns a config with production defaults for the given
// group and port.
func DefaultConfig(group string, port int) Config {
	return Config{
		Group:                group,
		Port:                 port,
		RecvBufferBytes:      defaultRecvBufferBytes,
		RingSize:             defaultRingSize,
		PoolSize:             defaultPoolSize,
		CPU:                  -1,
		MaxConsecutiveErrors: defaultMaxErrors,
		Recovery: RecoveryConfig{
			Enabled:     true,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			MaxAttempts: 10,
		},
	}
}

// Validate checks addressing; sizing fields fall back to defaults instead of
// failing.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if c.Group != "" {
		ip := net.ParseIP(c.Group)
		if ip == nil || !ip.IsMulticast() {
			return fmt.Errorf("%w: %q", ErrInvalidGroup, c.Group)
		}
	}
	return nil
}

func (c *Config) normalize() {
	if c.RecvBufferBytes <= 0 {
		c.RecvBufferBytes = defaultRecvBufferBytes
	}
	if c.RingSize <= 0 {
		c.RingSize = defaultRingSize
	}
	if c.PoolSize <= 0 {
		c.PoolSize = defaultPoolSize
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = defaultMaxErrors
	}
	if c.Recovery.BaseDelay <= 0 {
		c.Recovery.BaseDelay = 100 * time.Millisecond
	}
	if c.Recovery.MaxDelay < c.Recovery.BaseDelay {
		c.Recovery.MaxDelay = c.Recovery.BaseDelay
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	c.RingSize = ceilPowerOfTwo(c.RingSize)
	c.PoolSize = ceilPowerOfTwo(c.PoolSize)
}

func ceilPowerOfTwo(n int) int {
	p := 2
	for p < n {
		p <<= 1
	}
	return p
}

// Stats is a point-in-time copy of the receiver counters.
type Stats struct {
	PacketsReceived   uint64
	BytesReceived     uint64
	PacketsDropped    uint64
	ReceiveErrors     uint64
	Recoveries        uint64
	ConsecutiveErrors uint64
}

////////////////////////////////////////////////////////////////

// Receiver captures UDP datagrams on a dedicated thread. Each datagram lands
// in a pool-allocated Packet, gets stamped with capture time and sequence,
// and is handed to the consumer through an SPSC ring. When the ring or the
// pool is exhausted the datagram is dropped and counted; capture never blocks
// on a slow consumer.
type Receiver struct {
	cfg Config
	log *zap.Logger

	conn atomic.Pointer[net.UDPConn]
	ring *ring.Ring[*Packet]
	pool *pool.Pool[Packet]

	sequence atomic.Uint64
	running  atomic.Bool
	stop     chan struct{}
	wg       sync.WaitGroup

	packetsReceived   atomic.Uint64
	bytesReceived     atomic.Uint64
	packetsDropped    atomic.Uint64
	receiveErrors     atomic.Uint64
	recoveries        atomic.Uint64
	consecutiveErrors atomic.Uint64
}

// NewReceiver validates the config and allocates the packet pool and ring.
// No socket is opened until Start.
func NewReceiver(cfg Config) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.normalize()
	return &Receiver{
		cfg:  cfg,
		log:  cfg.Logger,
		ring: ring.New[*Packet](cfg.RingSize),
		pool: pool.New[Packet](cfg.PoolSize),
	}, nil
}

// Start opens the socket and launches the capture thread.
func (r *Receiver) Start() error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrReceiverRunning
	}
	conn, err := r.openSocket()
	if err != nil {
		r.running.Store(false)
		return err
	}
	r.conn.Store(conn)
	r.stop = make(chan struct{})
	r.wg.Add(1)
	go r.captureLoop()
	r.log.Info("capture started",
		zap.String("group", r.cfg.Group),
		zap.Int("port", r.LocalPort()),
		zap.String("interface", r.cfg.Interface))
	return nil
}

// Stop closes the socket to unblock the capture thread and joins it.
// Packets already buffered in the ring remain available to Poll.
func (r *Receiver) Stop() {
	if !r.running.CompareAndSwap(true, false) {
		return
	}
	close(r.stop)
	if conn := r.conn.Load(); conn != nil {
		_ = conn.Close()
	}
	r.wg.Wait()
	r.log.Info("capture stopped")
}

// Poll returns the next captured packet, or false when none is buffered.
// Single consumer only. The packet must be handed back through Release.
func (r *Receiver) Poll() (*Packet, bool) {
	return r.ring.Pop()
}

// Release returns a polled packet to the capture pool.
func (r *Receiver) Release(p *Packet) {
	r.pool.Put(p)
}

// IsRunning reports whether the capture thread is live.
func (r *Receiver) IsRunning() bool {
	return r.running.Load()
}

// Healthy reports whether capture is live and not stuck in an error streak.
func (r *Receiver) Healthy() bool {
	return r.running.Load() &&
		r.consecutiveErrors.Load() < uint64(r.cfg.MaxConsecutiveErrors)
}

// LocalPort returns the bound UDP port, useful when the config asked for an
// OS-assigned one.
func (r *Receiver) LocalPort() int {
	conn := r.conn.Load()
	if conn == nil {
		return 0
	}
	return conn.LocalAddr().(*net.UDPAddr).Port
}

// Stats returns a point-in-time copy of the counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		PacketsReceived:   r.packetsReceived.Load(),
		BytesReceived:     r.bytesReceived.Load(),
		PacketsDropped:    r.packetsDropped.Load(),
		ReceiveErrors:     r.receiveErrors.Load(),
		Recoveries:        r.recoveries.Load(),
		ConsecutiveErrors: r.consecutiveErrors.Load(),
	}
}

////////////////////////////////////////////////////////////////

func (r *Receiver) openSocket() (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: r.cfg.Port})
	if err != nil {
		return nil, err
	}
	if err := conn.SetReadBuffer(r.cfg.RecvBufferBytes); err != nil {
		r.log.Warn("receive buffer sizing failed", zap.Error(err))
	}
	if rc, err := conn.SyscallConn(); err == nil {
		if err := tuneSocket(rc, &r.cfg); err != nil {
			r.log.Warn("socket tuning failed", zap.Error(err))
		}
	}

	if r.cfg.Group != "" {
		var iface *net.Interface
		if r.cfg.Interface != "" {
			iface, err = net.InterfaceByName(r.cfg.Interface)
			if err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("interface %q: %w", r.cfg.Interface, err)
			}
		}
		pc := ipv4.NewPacketConn(conn)
		group := &net.UDPAddr{IP: net.ParseIP(r.cfg.Group)}
		if err := pc.JoinGroup(iface, group); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("join %s: %w", r.cfg.Group, err)
		}
	}
	return conn, nil
}

func (r *Receiver) captureLoop() {
	defer r.wg.Done()
	if err := PinThread(r.cfg.CPU); err != nil {
		r.log.Warn("capture thread affinity failed", zap.Int("cpu", r.cfg.CPU), zap.Error(err))
	}

	oob := make([]byte, 128)
	var overflow Packet // reused when the pool is empty, so the socket keeps draining

	for r.running.Load() {
		pkt := r.pool.Get()
		fromPool := pkt != nil
		if !fromPool {
			pkt = &overflow
		}

		conn := r.conn.Load()
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, oobn, _, _, err := conn.ReadMsgUDP(pkt.Data[:], oob)
		if err != nil {
			if fromPool {
				r.pool.Put(pkt)
			}
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			if !r.running.Load() {
				return
			}
			r.receiveErrors.Add(1)
			if r.consecutiveErrors.Add(1) >= uint64(r.cfg.MaxConsecutiveErrors) {
				if !r.recover() {
					return
				}
			}
			continue
		}
		r.consecutiveErrors.Store(0)
		if n == 0 {
			if fromPool {
				r.pool.Put(pkt)
			}
			continue
		}

		r.packetsReceived.Add(1)
		r.bytesReceived.Add(uint64(n))
		if !fromPool {
			r.packetsDropped.Add(1)
			continue
		}

		pkt.CaptureNanos = NowNanos()
		pkt.KernelNanos = kernelTimestamp(oob[:oobn])
		pkt.Length = uint32(n)
		pkt.Sequence = r.sequence.Add(1)

		if !r.ring.Push(pkt) {
			r.packetsDropped.Add(1)
			r.pool.Put(pkt)
		}
	}
}

// recover reopens the capture socket with capped exponential backoff.
// Returns false when recovery is disabled or all attempts fail; the capture
// loop then exits and Healthy goes false.
func (r *Receiver) recover() bool {
	if !r.cfg.Recovery.Enabled {
		r.log.Error("receive errors exceeded threshold, recovery disabled")
		r.running.Store(false)
		return false
	}
	if conn := r.conn.Load(); conn != nil {
		_ = conn.Close()
	}

	for attempt := 0; attempt < r.cfg.Recovery.MaxAttempts; attempt++ {
		delay := typ.Clamp(r.cfg.Recovery.BaseDelay<<attempt,
			r.cfg.Recovery.BaseDelay, r.cfg.Recovery.MaxDelay)
		// 25% jitter keeps parallel feeds from retrying in lockstep.
		delay += time.Duration(rand.Int63n(int64(delay)/2+1)) - delay/4

		select {
		case <-r.stop:
			return false
		case <-time.After(delay):
		}

		conn, err := r.openSocket()
		if err != nil {
			r.log.Warn("socket reopen failed",
				zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		r.conn.Store(conn)
		r.recoveries.Add(1)
		r.consecutiveErrors.Store(0)
		r.log.Info("socket recovered", zap.Int("attempt", attempt+1))
		return true
	}

	r.log.Error("socket recovery failed", zap.Error(ErrRecoveryFailed),
		zap.Int("attempts", r.cfg.Recovery.MaxAttempts))
	r.running.Store(false)
	return false
}
