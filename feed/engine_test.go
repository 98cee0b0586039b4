package feed_test

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cryptonstudio/crypton-feed-engine/feed"
	_ "github.com/cryptonstudio/crypton-feed-engine/providers/nasdaq/itch"
)

// wire assembles ITCH packets for the loopback tests.
type wire struct {
	buf []byte
}

func (w *wire) frame(body []byte) *wire {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(body)+2))
	w.buf = append(w.buf, body...)
	return w
}

func itchPrefix(locate, track uint16, ts uint64, typ byte) []byte {
	p := binary.BigEndian.AppendUint16(nil, locate)
	p = binary.BigEndian.AppendUint16(p, track)
	p = binary.BigEndian.AppendUint64(p, ts)
	return append(p, typ)
}

func itchAdd(locate, track uint16, ts, ref uint64, side byte, shares uint32, stock string, price uint32) []byte {
	b := itchPrefix(locate, track, ts, 'A')
	b = binary.BigEndian.AppendUint64(b, ref)
	b = append(b, side)
	b = binary.BigEndian.AppendUint32(b, shares)
	var sym [8]byte
	copy(sym[:], stock)
	for i := len(stock); i < 8; i++ {
		sym[i] = ' '
	}
	b = append(b, sym[:]...)
	return binary.BigEndian.AppendUint32(b, price)
}

func itchExecute(locate, track uint16, ts, ref uint64, shares uint32, match uint64) []byte {
	b := itchPrefix(locate, track, ts, 'E')
	b = binary.BigEndian.AppendUint64(b, ref)
	b = binary.BigEndian.AppendUint32(b, shares)
	return binary.BigEndian.AppendUint64(b, match)
}

func itchDelete(locate, track uint16, ts, ref uint64) []byte {
	b := itchPrefix(locate, track, ts, 'D')
	return binary.BigEndian.AppendUint64(b, ref)
}

type sink struct {
	mu       sync.Mutex
	received []feed.NormalizedMessage
}

func (s *sink) Initialize() error { return nil }
func (s *sink) Shutdown()         {}
func (s *sink) Name() string      { return "sink" }

func (s *sink) OnMessage(msg feed.NormalizedMessage) bool {
	s.mu.Lock()
	s.received = append(s.received, msg)
	s.mu.Unlock()
	return true
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func newLoopbackEngine(t *testing.T) (*feed.Engine, *sink) {
	t.Helper()
	cfg := feed.DefaultConfig("", 0)
	cfg.StatsInterval = 0
	cfg.Pools.OrderPoolSize = 1 << 12
	cfg.Network.Recovery.Enabled = false

	e := feed.NewEngine(cfg)
	require.NoError(t, e.Initialize())
	s := &sink{}
	require.NoError(t, e.AddSubscriber(s))
	require.NoError(t, e.Start())
	t.Cleanup(e.Stop)
	return e, s
}

func sendPacket(t *testing.T, port int, payload []byte) {
	t.Helper()
	conn, err := net.Dial("udp4", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(payload)
	require.NoError(t, err)
}

// One packet carrying add, execute and delete flows through capture, decode,
// book application and dispatch; the book ends empty and every stage's
// counters agree.
func TestEngineEndToEnd(t *testing.T) {
	e, s := newLoopbackEngine(t)
	require.True(t, e.IsHealthy())

	var w wire
	w.frame(itchAdd(1, 100, 12345678900000, 987654321, 'B', 100, "AAPL", 1500000)).
		frame(itchExecute(1, 101, 12345678900100, 987654321, 50, 999)).
		frame(itchDelete(1, 102, 12345678900200, 987654321))
	sendPacket(t, e.LocalPort(), w.buf)

	require.Eventually(t, func() bool { return s.count() == 3 }, 5*time.Second, time.Millisecond)

	require.Equal(t, feed.KindOrderAdd, s.received[0].Kind)
	require.Equal(t, feed.KindOrderExecute, s.received[1].Kind)
	require.Equal(t, feed.KindOrderDelete, s.received[2].Kind)
	require.Equal(t, feed.Price(1500000)*feed.PriceScaleMultiplier, s.received[0].Price)

	book := e.Book(1)
	require.NotNil(t, book, "book created on demand")
	require.Nil(t, book.BestBid())
	require.Nil(t, book.BestAsk())
	require.Equal(t, 0, book.Orders())
	require.NoError(t, book.Validate())

	stats := e.Statistics()
	require.Equal(t, uint64(1), stats.Capture.PacketsReceived)
	require.Equal(t, uint64(3), stats.Parser.FramesParsed)
	require.Equal(t, uint64(3), stats.MessagesProcessed)
	require.Equal(t, uint64(3), stats.BookUpdates)
	require.Equal(t, uint64(0), stats.BookErrors)
	require.Equal(t, uint64(3), stats.Dispatch.Delivered)
	require.Equal(t, 0, stats.OrdersAllocated)
	require.NotZero(t, stats.EndToEnd.Count)
}

func TestEngineBuildsDepthAcrossPackets(t *testing.T) {
	e, s := newLoopbackEngine(t)

	adds := [][]byte{
		itchAdd(5, 1, 1000, 1, 'B', 100, "MSFT", 10000),
		itchAdd(5, 2, 2000, 2, 'B', 200, "MSFT", 10200),
		itchAdd(5, 3, 3000, 3, 'B', 150, "MSFT", 10100),
		itchAdd(5, 4, 4000, 4, 'S', 100, "MSFT", 10400),
		itchAdd(5, 5, 5000, 5, 'S', 200, "MSFT", 10300),
		itchAdd(5, 6, 6000, 6, 'S', 150, "MSFT", 10350),
	}
	for _, body := range adds {
		var w wire
		sendPacket(t, e.LocalPort(), w.frame(body).buf)
	}
	require.Eventually(t, func() bool { return s.count() == len(adds) }, 5*time.Second, time.Millisecond)

	book := e.Book(5)
	require.NotNil(t, book)
	require.NoError(t, book.Validate())

	scale := feed.Price(feed.PriceScaleMultiplier)
	require.Equal(t, 10200*scale, book.BidLevel(0).Price())
	require.Equal(t, 10100*scale, book.BidLevel(1).Price())
	require.Equal(t, 10000*scale, book.BidLevel(2).Price())
	require.Equal(t, 10300*scale, book.AskLevel(0).Price())
	require.Equal(t, 10350*scale, book.AskLevel(1).Price())
	require.Equal(t, 10400*scale, book.AskLevel(2).Price())
	require.Equal(t, (10200+10300)/2*scale, book.MidPrice())
	require.Equal(t, 100*scale, book.Spread())
}

func TestEngineLifecycleGuards(t *testing.T) {
	cfg := feed.DefaultConfig("", 0)
	cfg.StatsInterval = 0
	e := feed.NewEngine(cfg)

	require.ErrorIs(t, e.Start(), feed.ErrEngineNotInitialized)
	require.ErrorIs(t, e.AddSymbol(1), feed.ErrEngineNotInitialized)

	require.NoError(t, e.Initialize())
	require.NoError(t, e.AddSymbol(1))
	require.ErrorIs(t, e.AddSymbol(1), feed.ErrBookDuplicate)
	require.ErrorIs(t, e.RemoveSymbol(99), feed.ErrBookNotFound)

	require.NoError(t, e.Start())
	require.ErrorIs(t, e.Start(), feed.ErrEngineRunning)
	require.ErrorIs(t, e.AddSymbol(2), feed.ErrEngineRunning)

	e.Stop()
	e.Stop() // idempotent
	require.False(t, e.IsHealthy(), "stopped engine is not healthy")
	require.NoError(t, e.RemoveSymbol(1))
}

func TestEngineRejectsUnknownProtocol(t *testing.T) {
	cfg := feed.DefaultConfig("", 0)
	cfg.Decoder.Protocol = "FIX-4.2"
	e := feed.NewEngine(cfg)
	require.ErrorIs(t, e.Initialize(), feed.ErrUnknownProtocol)
}

func TestEngineRejectsBadNetworkConfig(t *testing.T) {
	cfg := feed.DefaultConfig("not-an-ip", 26400)
	e := feed.NewEngine(cfg)
	require.ErrorIs(t, e.Initialize(), feed.ErrInvalidConfig)
}

func TestEngineErrorCallbackRateLimit(t *testing.T) {
	cfg := feed.DefaultConfig("", 0)
	cfg.StatsInterval = 0
	cfg.Network.Recovery.Enabled = false

	e := feed.NewEngine(cfg)
	var mu sync.Mutex
	var reported []error
	e.SetErrorCallback(func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	})
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Start())
	defer e.Stop()

	// A burst of deletes for an unknown order raises the same error many
	// times; the callback fires once.
	var w wire
	for i := uint16(0); i < 50; i++ {
		w.frame(itchDelete(1, i, uint64(i)*100, 424242))
	}
	sendPacket(t, e.LocalPort(), w.buf)

	require.Eventually(t, func() bool {
		return e.Statistics().BookErrors == 50
	}, 5*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	require.ErrorIs(t, reported[0], feed.ErrOrderNotFound)
}
