package feed

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cryptonstudio/crypton-feed-engine/network"
)

// ThreadingConfig pins the pipeline threads to CPUs. Negative values leave a
// thread floating. Pinning failure is logged and ignored.
type ThreadingConfig struct {
	CaptureCPU  int
	DecodeCPU   int
	DispatchCPU int

	// LockMemory mlocks the order arena so page faults never hit the
	// decode path. Needs CAP_IPC_LOCK; failure degrades to best effort.
	LockMemory bool
}

// PoolsConfig sizes the fixed buffers. Ring sizes are rounded up to powers
// of two.
type PoolsConfig struct {
	OrderPoolSize      int
	PacketRingSize     int
	PacketPoolSize     int
	SubscriberRingSize int
}

// BookConfig controls per-instrument book maintenance.
type BookConfig struct {
	MaxSymbols     int
	MaxPriceLevels int

	// CreateOnDemand builds a book the first time an unknown instrument is
	// decoded; otherwise records for unknown instruments skip book
	// processing and are only dispatched.
	CreateOnDemand bool

	// EnableProcessing applies records to books at all. Disabling turns the
	// engine into a pure normalize-and-dispatch pipeline.
	EnableProcessing bool
}

// DecoderConfig selects and tunes the protocol decoder.
type DecoderConfig struct {
	Protocol               string
	ValidateChecksums      bool
	EnableSequenceChecking bool
}

// Config is the complete engine configuration.
type Config struct {
	Network   network.Config
	Threading ThreadingConfig
	Pools     PoolsConfig
	Book      BookConfig
	Decoder   DecoderConfig

	// StatsInterval drives the optional statistics callback; zero disables
	// the statistics thread.
	StatsInterval time.Duration

	Logger *zap.Logger
}

// DefaultConfig returns a runnable configuration for one multicast feed.
func DefaultConfig(group string, port int) Config {
	return Config{
		Network: network.DefaultConfig(group, port),
		Threading: ThreadingConfig{
			CaptureCPU:  -1,
			DecodeCPU:   -1,
			DispatchCPU: -1,
		},
		Pools: PoolsConfig{
			OrderPoolSize:      1 << 20,
			PacketRingSize:     1 << 16,
			PacketPoolSize:     1 << 16,
			SubscriberRingSize: DefaultSubscriberRingSize,
		},
		Book: BookConfig{
			MaxSymbols:       8192,
			MaxPriceLevels:   DefaultMaxPriceLevels,
			CreateOnDemand:   true,
			EnableProcessing: true,
		},
		Decoder: DecoderConfig{
			Protocol: "ITCH-5.0",
		},
		StatsInterval: time.Second,
	}
}

// Validate checks the configuration before Initialize. Sizing fields fall
// back to defaults; contradictions fail.
func (c *Config) Validate() error {
	if err := c.Network.Validate(); err != nil {
		return fmt.Errorf("%w: network: %v", ErrInvalidConfig, err)
	}
	if c.Decoder.Protocol == "" {
		return fmt.Errorf("%w: decoder protocol is empty", ErrInvalidConfig)
	}
	if c.Book.EnableProcessing && c.Book.MaxSymbols <= 0 {
		return fmt.Errorf("%w: max symbols must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) normalize() {
	if c.Pools.OrderPoolSize <= 0 {
		c.Pools.OrderPoolSize = 1 << 20
	}
	if c.Pools.SubscriberRingSize <= 0 {
		c.Pools.SubscriberRingSize = DefaultSubscriberRingSize
	}
	if c.Pools.PacketRingSize > 0 {
		c.Network.RingSize = c.Pools.PacketRingSize
	}
	if c.Pools.PacketPoolSize > 0 {
		c.Network.PoolSize = c.Pools.PacketPoolSize
	}
	if c.Book.MaxPriceLevels <= 0 {
		c.Book.MaxPriceLevels = DefaultMaxPriceLevels
	}
	if c.Book.MaxSymbols <= 0 {
		c.Book.MaxSymbols = 8192
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	c.Network.CPU = c.Threading.CaptureCPU
	c.Network.Logger = c.Logger
}
