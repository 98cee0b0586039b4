package feed

import (
	"math"
	"sync/atomic"
)

// latencyBucketBounds are the inclusive upper bounds, in nanoseconds, of the
// latency histogram. The last bucket is unbounded.
var latencyBucketBounds = [...]uint64{
	100, 250, 500, 1_000, 2_500, 5_000, 10_000,
	25_000, 50_000, 100_000, 1_000_000, math.MaxUint64,
}

// LatencyBuckets is the number of histogram buckets in a LatencySnapshot.
const LatencyBuckets = len(latencyBucketBounds)

// LatencyStats accumulates nanosecond latency samples. Record is safe for
// concurrent use and never allocates; it is cheap enough to call on the hot
// decode path for every message.
type LatencyStats struct {
	count   atomic.Uint64
	total   atomic.Uint64
	min     atomic.Uint64
	max     atomic.Uint64
	buckets [LatencyBuckets]atomic.Uint64
}

// NewLatencyStats returns stats with the running minimum primed.
func NewLatencyStats() *LatencyStats {
	s := &LatencyStats{}
	s.min.Store(math.MaxUint64)
	return s
}

// Record folds one latency sample into the accumulator.
func (s *LatencyStats) Record(nanos uint64) {
	s.count.Add(1)
	s.total.Add(nanos)
	for {
		cur := s.min.Load()
		if nanos >= cur || s.min.CompareAndSwap(cur, nanos) {
			break
		}
	}
	for {
		cur := s.max.Load()
		if nanos <= cur || s.max.CompareAndSwap(cur, nanos) {
			break
		}
	}
	for i, bound := range latencyBucketBounds {
		if nanos <= bound {
			s.buckets[i].Add(1)
			break
		}
	}
}

// Reset clears all accumulated samples.
func (s *LatencyStats) Reset() {
	s.count.Store(0)
	s.total.Store(0)
	s.min.Store(math.MaxUint64)
	s.max.Store(0)
	for i := range s.buckets {
		s.buckets[i].Store(0)
	}
}

// LatencySnapshot is a point-in-time copy of a LatencyStats.
type LatencySnapshot struct {
	Count   uint64
	Min     uint64
	Max     uint64
	Mean    uint64
	Buckets [LatencyBuckets]uint64
}

// BucketBound returns the inclusive upper bound of histogram bucket i
// in nanoseconds.
func BucketBound(i int) uint64 {
	return latencyBucketBounds[i]
}

// Snapshot copies the accumulated values. Min reads as zero until the first
// sample arrives.
func (s *LatencyStats) Snapshot() LatencySnapshot {
	snap := LatencySnapshot{
		Count: s.count.Load(),
		Min:   s.min.Load(),
		Max:   s.max.Load(),
	}
	if snap.Count == 0 {
		snap.Min = 0
	} else {
		snap.Mean = s.total.Load() / snap.Count
	}
	for i := range s.buckets {
		snap.Buckets[i] = s.buckets[i].Load()
	}
	return snap
}

////////////////////////////////////////////////////////////////

// ParserStats is a point-in-time copy of a protocol decoder's counters.
type ParserStats struct {
	MessagesParsed    uint64
	FramesParsed      uint64
	ParseErrors       uint64
	UnknownMessages   uint64
	SequenceGaps      uint64
	SymbolsDiscovered uint64
}

// DispatchStats is a point-in-time copy of the dispatcher's counters.
type DispatchStats struct {
	Dispatched     uint64
	Delivered      uint64
	Dropped        uint64
	CallbackErrors uint64
	Subscribers    int
}

// CaptureStats is a point-in-time copy of a packet receiver's counters.
type CaptureStats struct {
	PacketsReceived uint64
	BytesReceived   uint64
	PacketsDropped  uint64
	ReceiveErrors   uint64
	Recoveries      uint64
}

// Statistics aggregates the engine's counters across all pipeline stages.
type Statistics struct {
	Capture  CaptureStats
	Parser   ParserStats
	Dispatch DispatchStats

	MessagesProcessed uint64
	BookUpdates       uint64
	BookErrors        uint64
	Books             int

	OrdersAllocated int
	OrdersCapacity  int

	// Processing measures parse plus book application per message.
	Processing LatencySnapshot
	// EndToEnd measures packet capture to dispatch per message.
	EndToEnd LatencySnapshot

	Healthy bool
}
