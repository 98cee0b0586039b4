package feed

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/hashmap"
	"go.uber.org/zap"

	"github.com/cryptonstudio/crypton-feed-engine/hw"
	"github.com/cryptonstudio/crypton-feed-engine/network"
	"github.com/cryptonstudio/crypton-feed-engine/types/pool"
)

// errorCallbackInterval rate-limits the user error callback per distinct
// error text.
const errorCallbackInterval = time.Second

// decodeBatch is the record buffer handed to the parser per packet.
const decodeBatch = 512

// Engine wires the whole pipeline together: UDP capture, protocol decode,
// per-instrument books and subscriber dispatch, each stage on its own thread
// joined by lock-free rings.
//
//	capture -> [packet ring] -> decode -> [subscriber rings] -> dispatch
//
// The decode thread is the sole mutator of order books and the order arena,
// so the book path runs without locks. Lifecycle: NewEngine, optional
// AddSymbol/AddSubscriber, Initialize, Start, Stop.
type Engine struct {
	cfg Config
	log *zap.Logger

	receiver   *network.Receiver
	parser     Parser
	dispatcher *Dispatcher
	arena      *pool.Pool[Order]
	adapter    hw.Adapter

	booksMu sync.RWMutex
	books   *hashmap.Map[InstrumentID, *OrderBook]

	mu          sync.Mutex
	initialized atomic.Bool
	running     atomic.Bool
	decoderOK   atomic.Bool

	stop chan struct{}
	wg   sync.WaitGroup

	messagesProcessed atomic.Uint64
	bookUpdates       atomic.Uint64
	bookErrors        atomic.Uint64
	hwErrors          atomic.Uint64

	processing *LatencyStats
	endToEnd   *LatencyStats

	errCallback   func(error)
	statsCallback func(Statistics)
	errMu         sync.Mutex
	errLast       map[string]uint64
}

// NewEngine creates an engine in the stopped, uninitialized state.
func NewEngine(cfg Config) *Engine {
	cfg.normalize()
	return &Engine{
		cfg:        cfg,
		log:        cfg.Logger,
		books:      hashmap.New[InstrumentID, *OrderBook](cfg.Book.MaxSymbols),
		processing: NewLatencyStats(),
		endToEnd:   NewLatencyStats(),
		errLast:    map[string]uint64{},
	}
}

// SetErrorCallback installs a callback invoked for hot-path errors, at most
// once per distinct error per second. The callback runs on pipeline threads
// and must be fast; panics are caught and counted. Only allowed while
// stopped.
func (e *Engine) SetErrorCallback(cb func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errCallback = cb
}

// SetStatsCallback installs a callback driven every Config.StatsInterval by
// the statistics thread. Only allowed while stopped.
func (e *Engine) SetStatsCallback(cb func(Statistics)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statsCallback = cb
}

// SetAdapter attaches a hardware offload adapter. Records applied to books
// are mirrored to the adapter while it reports healthy. Only allowed while
// stopped.
func (e *Engine) SetAdapter(a hw.Adapter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adapter = a
}

// AddSubscriber registers a dispatch subscriber. Initialize must have been
// called; adding while running is rejected by the dispatcher.
func (e *Engine) AddSubscriber(sub Subscriber) error {
	if !e.initialized.Load() {
		return ErrEngineNotInitialized
	}
	return e.dispatcher.AddSubscriber(sub)
}

// Initialize validates the configuration and builds the pipeline components.
// No threads start and no sockets open yet.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running.Load() {
		return ErrEngineRunning
	}
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	parser, err := NewParser(e.cfg.Decoder.Protocol, ParserConfig{
		ValidateChecksums:      e.cfg.Decoder.ValidateChecksums,
		EnableSequenceChecking: e.cfg.Decoder.EnableSequenceChecking,
		MaxSymbols:             e.cfg.Book.MaxSymbols,
	})
	if err != nil {
		return err
	}
	receiver, err := network.NewReceiver(e.cfg.Network)
	if err != nil {
		return err
	}

	e.parser = parser
	e.receiver = receiver
	e.dispatcher = NewDispatcher(e.cfg.Pools.SubscriberRingSize, e.cfg.Threading.DispatchCPU, e.log)
	e.arena = pool.New[Order](e.cfg.Pools.OrderPoolSize)
	if e.cfg.Threading.LockMemory {
		if err := e.arena.LockMemory(); err != nil {
			e.log.Warn("order arena mlock failed", zap.Error(err))
		}
	}

	e.decoderOK.Store(true)
	e.initialized.Store(true)
	e.log.Info("engine initialized",
		zap.String("protocol", parser.Name()),
		zap.Int("order pool", e.arena.Capacity()),
		zap.Int("max symbols", e.cfg.Book.MaxSymbols))
	return nil
}

// Start opens the socket and launches the capture, dispatch and decode
// threads, in that order. A failed stage unwinds the stages already started
// and leaves the engine stopped.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized.Load() {
		return ErrEngineNotInitialized
	}
	if e.running.Load() {
		return ErrEngineRunning
	}

	if err := e.receiver.Start(); err != nil {
		return err
	}
	if err := e.dispatcher.Start(); err != nil {
		e.receiver.Stop()
		return err
	}

	e.stop = make(chan struct{})
	e.running.Store(true)
	e.wg.Add(1)
	go e.decodeLoop()

	if e.cfg.StatsInterval > 0 && e.statsCallback != nil {
		e.wg.Add(1)
		go e.statsLoop()
	}
	e.log.Info("engine started")
	return nil
}

// Stop tears the pipeline down in reverse start order: decode first, then
// dispatch, then capture. Safe to call multiple times and safe to call on a
// never-started engine.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running.Load() {
		return
	}
	e.running.Store(false)
	close(e.stop)
	e.wg.Wait()
	e.dispatcher.Stop()
	e.receiver.Stop()
	e.log.Info("engine stopped")
}

// AddSymbol creates an empty book for the instrument. Only allowed while
// stopped; books for instruments first seen on the wire are created by the
// decode thread when Book.CreateOnDemand is set.
func (e *Engine) AddSymbol(id InstrumentID) error {
	if !e.initialized.Load() {
		return ErrEngineNotInitialized
	}
	if e.running.Load() {
		return ErrEngineRunning
	}
	e.booksMu.Lock()
	defer e.booksMu.Unlock()
	if _, ok := e.books.Get(id); ok {
		return ErrBookDuplicate
	}
	if e.books.Len() >= e.cfg.Book.MaxSymbols {
		return ErrSymbolLimit
	}
	e.books.Set(id, NewOrderBook(id, e.arena, e.cfg.Book.MaxPriceLevels))
	return nil
}

// RemoveSymbol clears the instrument's book and forgets it. Only allowed
// while stopped.
func (e *Engine) RemoveSymbol(id InstrumentID) error {
	if e.running.Load() {
		return ErrEngineRunning
	}
	e.booksMu.Lock()
	defer e.booksMu.Unlock()
	book, ok := e.books.Get(id)
	if !ok {
		return ErrBookNotFound
	}
	book.Clear()
	e.books.Delete(id)
	return nil
}

// Book returns the live book for an instrument, or nil. The book is mutated
// by the decode thread; treat reads while running as advisory.
func (e *Engine) Book(id InstrumentID) *OrderBook {
	e.booksMu.RLock()
	defer e.booksMu.RUnlock()
	book, _ := e.books.Get(id)
	return book
}

// LocalPort returns the UDP port the capture socket is bound to, which is
// only interesting when the configuration asked for an OS-assigned port.
func (e *Engine) LocalPort() int {
	if e.receiver == nil {
		return 0
	}
	return e.receiver.LocalPort()
}

// IsHealthy reports the single health boolean: capture live, decoder not in
// an error state, order arena below saturation, no receive-error streak.
func (e *Engine) IsHealthy() bool {
	return e.running.Load() &&
		e.receiver.Healthy() &&
		e.decoderOK.Load() &&
		e.arena.Utilization() < 1.0
}

// Statistics aggregates counters across all pipeline stages. Fields are read
// independently and may be mutually inconsistent by a few messages.
func (e *Engine) Statistics() Statistics {
	stats := Statistics{
		MessagesProcessed: e.messagesProcessed.Load(),
		BookUpdates:       e.bookUpdates.Load(),
		BookErrors:        e.bookErrors.Load(),
		Processing:        e.processing.Snapshot(),
		EndToEnd:          e.endToEnd.Snapshot(),
		Healthy:           e.IsHealthy(),
	}
	if e.initialized.Load() {
		rs := e.receiver.Stats()
		stats.Capture = CaptureStats{
			PacketsReceived: rs.PacketsReceived,
			BytesReceived:   rs.BytesReceived,
			PacketsDropped:  rs.PacketsDropped,
			ReceiveErrors:   rs.ReceiveErrors,
			Recoveries:      rs.Recoveries,
		}
		stats.Parser = e.parser.Stats()
		stats.Dispatch = e.dispatcher.Stats()
		stats.OrdersAllocated = e.arena.Allocated()
		stats.OrdersCapacity = e.arena.Capacity()
	}
	e.booksMu.RLock()
	stats.Books = e.books.Len()
	e.booksMu.RUnlock()
	return stats
}

////////////////////////////////////////////////////////////////
// Pipeline threads
////////////////////////////////////////////////////////////////

func (e *Engine) decodeLoop() {
	defer e.wg.Done()
	if err := network.PinThread(e.cfg.Threading.DecodeCPU); err != nil {
		e.log.Warn("decode thread affinity failed",
			zap.Int("cpu", e.cfg.Threading.DecodeCPU), zap.Error(err))
	}

	buf := make([]NormalizedMessage, decodeBatch)
	for {
		select {
		case <-e.stop:
			return
		default:
		}
		pkt, ok := e.receiver.Poll()
		if !ok {
			runtime.Gosched()
			continue
		}
		e.processPacket(pkt, buf)
		e.receiver.Release(pkt)
	}
}

func (e *Engine) processPacket(pkt *network.Packet, buf []NormalizedMessage) {
	start := NowNanos()
	n := e.parser.Parse(pkt.Payload(), pkt.CaptureNanos, pkt.Sequence, buf)
	for i := 0; i < n; i++ {
		rec := &buf[i]
		if e.cfg.Book.EnableProcessing {
			e.applyRecord(rec)
		}
		e.dispatcher.Dispatch(*rec)
	}
	if n > 0 {
		e.messagesProcessed.Add(uint64(n))
		end := NowNanos()
		e.processing.Record(end - start)
		if end > pkt.CaptureNanos {
			e.endToEnd.Record(end - pkt.CaptureNanos)
		}
	}
}

// applyRecord routes one record into its instrument's book. Decode thread
// only. Failures are counted and rate-limit-reported, never fatal.
func (e *Engine) applyRecord(rec *NormalizedMessage) {
	book := e.bookFor(rec.Instrument)
	if book == nil {
		return
	}

	var err error
	switch rec.Kind {
	case KindOrderAdd:
		err = book.AddOrder(rec.OrderID, rec.Price, rec.Quantity, rec.Side, rec.ExchangeTimestamp)
	case KindOrderExecute:
		_, err = book.ExecuteOrder(rec.OrderID, rec.Quantity)
	case KindOrderModify:
		if rec.MatchNumber != 0 && rec.Price != 0 {
			// Protocol replace: original reference rides in MatchNumber.
			err = book.ReplaceOrder(rec.MatchNumber, rec.OrderID, rec.Price, rec.Quantity, rec.ExchangeTimestamp)
		} else {
			err = book.ReduceOrder(rec.OrderID, rec.Quantity)
		}
	case KindOrderDelete:
		err = book.CancelOrder(rec.OrderID)
	case KindTrade:
		book.RecordTrade(rec.Price)
	default:
		return
	}

	if err != nil {
		e.bookErrors.Add(1)
		e.reportError(err)
		return
	}
	e.bookUpdates.Add(1)
	e.mirrorToAdapter(rec)
}

// bookFor resolves the record's book, creating one on demand when the policy
// allows it.
func (e *Engine) bookFor(id InstrumentID) *OrderBook {
	e.booksMu.RLock()
	book, ok := e.books.Get(id)
	e.booksMu.RUnlock()
	if ok {
		return book
	}
	if !e.cfg.Book.CreateOnDemand {
		return nil
	}
	e.booksMu.Lock()
	defer e.booksMu.Unlock()
	if book, ok = e.books.Get(id); ok {
		return book
	}
	if e.books.Len() >= e.cfg.Book.MaxSymbols {
		e.reportError(ErrSymbolLimit)
		return nil
	}
	book = NewOrderBook(id, e.arena, e.cfg.Book.MaxPriceLevels)
	e.books.Set(id, book)
	return book
}

func (e *Engine) mirrorToAdapter(rec *NormalizedMessage) {
	if e.adapter == nil || !e.adapter.Healthy() {
		return
	}
	msg := hw.Message{
		SequenceNumber: rec.Sequence,
		HWTimestamp:    rec.LocalTimestamp,
		Command:        hw.CommandOrderUpdate,
		Kind:           uint8(rec.Kind),
		InstrumentID:   rec.Instrument,
		OrderID:        rec.OrderID,
		Price:          rec.Price,
		Quantity:       rec.Quantity,
	}
	if err := e.adapter.Send(&msg); err != nil {
		e.hwErrors.Add(1)
	}
}

func (e *Engine) statsLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.statsCallback(e.Statistics())
		}
	}
}

// reportError forwards an error to the user callback, at most once per
// distinct error text per errorCallbackInterval. Callback panics are caught.
func (e *Engine) reportError(err error) {
	if e.errCallback == nil {
		return
	}
	now := NowNanos()
	key := err.Error()

	e.errMu.Lock()
	last, seen := e.errLast[key]
	if seen && now-last < uint64(errorCallbackInterval) {
		e.errMu.Unlock()
		return
	}
	e.errLast[key] = now
	e.errMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("error callback panicked", zap.Any("panic", r))
		}
	}()
	e.errCallback(err)
}
