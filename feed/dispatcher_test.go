package feed

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSubscriber struct {
	name string

	mu       sync.Mutex
	received []NormalizedMessage

	initialized atomic.Int32
	shutdowns   atomic.Int32

	initErr   error
	detachAt  int64 // return false on the n-th message, 0 = never
	panicOnce atomic.Bool
}

func (s *recordingSubscriber) Initialize() error {
	s.initialized.Add(1)
	return s.initErr
}

func (s *recordingSubscriber) OnMessage(msg NormalizedMessage) bool {
	if s.panicOnce.CompareAndSwap(true, false) {
		panic("subscriber exploded")
	}
	s.mu.Lock()
	s.received = append(s.received, msg)
	n := int64(len(s.received))
	s.mu.Unlock()
	return s.detachAt == 0 || n < s.detachAt
}

func (s *recordingSubscriber) Shutdown() { s.shutdowns.Add(1) }
func (s *recordingSubscriber) Name() string {
	return s.name
}

func (s *recordingSubscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, time.Millisecond)
}

func TestDispatcherDeliveryOrder(t *testing.T) {
	sub := &recordingSubscriber{name: "s1"}
	d := NewDispatcher(1024, -1, nil)
	require.NoError(t, d.AddSubscriber(sub))
	require.NoError(t, d.Start())

	const total = 500
	for i := uint64(0); i < total; i++ {
		d.Dispatch(NormalizedMessage{Sequence: i})
	}
	waitFor(t, func() bool { return sub.count() == total })
	d.Stop()

	for i, msg := range sub.received {
		require.Equal(t, uint64(i), msg.Sequence)
	}
	require.Equal(t, int32(1), sub.initialized.Load())
	require.Equal(t, int32(1), sub.shutdowns.Load())

	stats := d.Stats()
	require.Equal(t, uint64(total), stats.Dispatched)
	require.Equal(t, uint64(total), stats.Delivered)
	require.Equal(t, uint64(0), stats.Dropped)
}

// A stalled subscriber overflows only its own ring: the fast subscriber sees
// every record in order, the stalled one drops everything past its capacity,
// and dispatch never blocks.
func TestDispatcherBackPressureIsolation(t *testing.T) {
	const total = 10_000
	const slowRing = 1024 // usable capacity 1023

	fast := &recordingSubscriber{name: "fast"}
	slow := &recordingSubscriber{name: "slow"}

	d := NewDispatcher(16384, -1, nil)
	require.NoError(t, d.AddSubscriberSized(fast, 16384))
	require.NoError(t, d.AddSubscriberSized(slow, slowRing))

	// Produce with the dispatch thread stalled, as a wedged consumer would.
	for i := uint64(0); i < total; i++ {
		d.Dispatch(NormalizedMessage{Sequence: i})
	}
	require.Equal(t, uint64(total-(slowRing-1)), d.SubscriberDrops("slow"))
	require.Equal(t, uint64(0), d.SubscriberDrops("fast"))

	require.NoError(t, d.Start())
	waitFor(t, func() bool { return fast.count() == total })
	d.Stop()

	for i, msg := range fast.received {
		require.Equal(t, uint64(i), msg.Sequence)
	}
	require.Equal(t, slowRing-1, slow.count(), "stalled ring drains only its buffered prefix")

	stats := d.Stats()
	require.Equal(t, uint64(total), stats.Dispatched)
	require.Equal(t, uint64(total-(slowRing-1)), stats.Dropped)
}

func TestDispatcherDetachOnFalse(t *testing.T) {
	quitter := &recordingSubscriber{name: "quitter", detachAt: 3}
	stayer := &recordingSubscriber{name: "stayer"}

	d := NewDispatcher(1024, -1, nil)
	require.NoError(t, d.AddSubscriber(quitter))
	require.NoError(t, d.AddSubscriber(stayer))
	require.NoError(t, d.Start())

	for i := uint64(0); i < 100; i++ {
		d.Dispatch(NormalizedMessage{Sequence: i})
		time.Sleep(100 * time.Microsecond)
	}
	waitFor(t, func() bool { return stayer.count() == 100 })
	d.Stop()

	require.Equal(t, 3, quitter.count(), "no deliveries after returning false")
	require.Equal(t, 1, d.Stats().Subscribers)
}

func TestDispatcherSubscriberPanic(t *testing.T) {
	flaky := &recordingSubscriber{name: "flaky"}
	flaky.panicOnce.Store(true)

	d := NewDispatcher(1024, -1, nil)
	require.NoError(t, d.AddSubscriber(flaky))
	require.NoError(t, d.Start())

	d.Dispatch(NormalizedMessage{Sequence: 1})
	d.Dispatch(NormalizedMessage{Sequence: 2})
	waitFor(t, func() bool { return flaky.count() == 1 })
	d.Stop()

	stats := d.Stats()
	require.Equal(t, uint64(1), stats.CallbackErrors)
	require.Equal(t, uint64(1), stats.Delivered)
}

func TestDispatcherInitFailureUnwinds(t *testing.T) {
	ok := &recordingSubscriber{name: "ok"}
	bad := &recordingSubscriber{name: "bad", initErr: errors.New("no backend")}

	d := NewDispatcher(1024, -1, nil)
	require.NoError(t, d.AddSubscriber(ok))
	require.NoError(t, d.AddSubscriber(bad))

	err := d.Start()
	require.ErrorIs(t, err, ErrSubscriberInit)
	require.Equal(t, int32(1), ok.shutdowns.Load(), "already initialized subscribers are shut down")

	require.NoError(t, d.AddSubscriber(&recordingSubscriber{name: "late"}), "dispatcher stays stopped after a failed start")
}

func TestDispatcherAddWhileRunning(t *testing.T) {
	d := NewDispatcher(1024, -1, nil)
	require.NoError(t, d.AddSubscriber(&recordingSubscriber{name: "s"}))
	require.NoError(t, d.Start())
	defer d.Stop()

	require.ErrorIs(t, d.AddSubscriber(&recordingSubscriber{name: "late"}), ErrDispatcherRunning)
}
