package feed

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cryptonstudio/crypton-feed-engine/network"
	"github.com/cryptonstudio/crypton-feed-engine/types/ring"
)

//go:generate mockgen -source=dispatcher.go -destination=mocks/dispatcher.go -package=mocks

// Subscriber consumes normalized messages from the dispatcher. OnMessage runs
// on the dispatch thread and must not block; returning false asks the
// dispatcher to detach the subscriber at the next safe point.
type Subscriber interface {
	// Initialize is called once before the first message.
	Initialize() error
	// OnMessage handles one message; false requests detachment.
	OnMessage(msg NormalizedMessage) bool
	// Shutdown is called once after the last message.
	Shutdown()
	// Name identifies the subscriber in logs and statistics.
	Name() string
}

// DefaultSubscriberRingSize is the per-subscriber buffer when the config
// leaves it zero.
const DefaultSubscriberRingSize = 8192

// dispatchBatch bounds how many messages one subscriber may drain before the
// dispatch loop moves on, so a busy ring cannot starve its neighbours.
const dispatchBatch = 256

type subscriberSlot struct {
	sub     Subscriber
	ring    *ring.Ring[NormalizedMessage]
	dropped atomic.Uint64
	failed  atomic.Uint64
	// detached slots stay in place until Stop; they no longer receive
	// or deliver messages.
	detached atomic.Bool
}

// Dispatcher fans normalized messages out to subscribers. Every subscriber
// owns a private SPSC ring filled by the decode thread and drained by the
// dispatch thread; a slow subscriber overflows only its own ring, counted per
// subscriber, and never stalls the feed or its peers.
type Dispatcher struct {
	mu      sync.Mutex
	slots   []*subscriberSlot
	running atomic.Bool

	ringSize int
	cpu      int
	log      *zap.Logger

	dispatched atomic.Uint64
	delivered  atomic.Uint64

	wg   sync.WaitGroup
	stop chan struct{}
}

// NewDispatcher creates a stopped dispatcher. ringSize is rounded to the next
// power of two; cpu pins the dispatch thread when non-negative.
func NewDispatcher(ringSize, cpu int, log *zap.Logger) *Dispatcher {
	if ringSize <= 0 {
		ringSize = DefaultSubscriberRingSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		ringSize: nextPowerOfTwo(ringSize),
		cpu:      cpu,
		log:      log,
	}
}

func nextPowerOfTwo(n int) int {
	p := 2
	for p < n {
		p <<= 1
	}
	return p
}

// AddSubscriber registers a subscriber with the default ring size.
// Only allowed while stopped.
func (d *Dispatcher) AddSubscriber(sub Subscriber) error {
	return d.AddSubscriberSized(sub, d.ringSize)
}

// AddSubscriberSized registers a subscriber with its own ring size, letting
// latency-tolerant consumers buffer more than tight ones. Only allowed while
// stopped.
func (d *Dispatcher) AddSubscriberSized(sub Subscriber, ringSize int) error {
	if d.running.Load() {
		return ErrDispatcherRunning
	}
	if ringSize <= 0 {
		ringSize = d.ringSize
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots = append(d.slots, &subscriberSlot{
		sub:  sub,
		ring: ring.New[NormalizedMessage](nextPowerOfTwo(ringSize)),
	})
	return nil
}

// Start initializes every subscriber and launches the dispatch thread.
// A failing Initialize aborts the start and shuts down the already
// initialized subscribers in reverse order.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return ErrDispatcherRunning
	}

	for i, slot := range d.slots {
		if err := slot.sub.Initialize(); err != nil {
			for j := i - 1; j >= 0; j-- {
				d.slots[j].sub.Shutdown()
			}
			return fmt.Errorf("%w: %s: %v", ErrSubscriberInit, slot.sub.Name(), err)
		}
	}

	d.stop = make(chan struct{})
	d.running.Store(true)
	d.wg.Add(1)
	go d.dispatchLoop()
	return nil
}

// Stop drains nothing further, joins the dispatch thread and shuts down all
// subscribers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	d.running.Store(false)
	close(d.stop)
	d.wg.Wait()

	for _, slot := range d.slots {
		slot.sub.Shutdown()
	}
}

// Dispatch offers one message to every attached subscriber. Called from the
// decode thread only. A full subscriber ring drops the message for that
// subscriber alone.
func (d *Dispatcher) Dispatch(msg NormalizedMessage) {
	d.dispatched.Add(1)
	for _, slot := range d.slots {
		if slot.detached.Load() {
			continue
		}
		if !slot.ring.Push(msg) {
			slot.dropped.Add(1)
		}
	}
}

func (d *Dispatcher) dispatchLoop() {
	defer d.wg.Done()
	if err := network.PinThread(d.cpu); err != nil {
		d.log.Warn("dispatch thread affinity failed", zap.Int("cpu", d.cpu), zap.Error(err))
	}

	for {
		idle := true
		for _, slot := range d.slots {
			if slot.detached.Load() {
				continue
			}
			for n := 0; n < dispatchBatch; n++ {
				msg, ok := slot.ring.Pop()
				if !ok {
					break
				}
				idle = false
				d.deliver(slot, msg)
				if slot.detached.Load() {
					break
				}
			}
		}
		if idle {
			select {
			case <-d.stop:
				d.drainRemaining()
				return
			default:
				runtime.Gosched()
			}
		}
	}
}

// drainRemaining delivers what is still buffered at shutdown so subscribers
// observe every message dispatched before Stop.
func (d *Dispatcher) drainRemaining() {
	for _, slot := range d.slots {
		if slot.detached.Load() {
			continue
		}
		for {
			msg, ok := slot.ring.Pop()
			if !ok {
				break
			}
			d.deliver(slot, msg)
			if slot.detached.Load() {
				break
			}
		}
	}
}

// deliver invokes the subscriber callback, absorbing panics so one broken
// subscriber cannot take the dispatch thread down.
func (d *Dispatcher) deliver(slot *subscriberSlot, msg NormalizedMessage) {
	defer func() {
		if r := recover(); r != nil {
			slot.failed.Add(1)
			d.log.Error("subscriber callback panicked",
				zap.String("subscriber", slot.sub.Name()),
				zap.Any("panic", r))
		}
	}()
	if !slot.sub.OnMessage(msg) {
		slot.detached.Store(true)
		d.log.Info("subscriber detached", zap.String("subscriber", slot.sub.Name()))
		return
	}
	d.delivered.Add(1)
}

// Stats returns a point-in-time copy of the dispatcher counters.
func (d *Dispatcher) Stats() DispatchStats {
	stats := DispatchStats{
		Dispatched: d.dispatched.Load(),
		Delivered:  d.delivered.Load(),
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, slot := range d.slots {
		stats.Dropped += slot.dropped.Load()
		stats.CallbackErrors += slot.failed.Load()
		if !slot.detached.Load() {
			stats.Subscribers++
		}
	}
	return stats
}

// SubscriberDrops returns the drop counter of the named subscriber.
func (d *Dispatcher) SubscriberDrops(name string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, slot := range d.slots {
		if slot.sub.Name() == name {
			return slot.dropped.Load()
		}
	}
	return 0
}
