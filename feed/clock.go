package feed

import "github.com/cryptonstudio/crypton-feed-engine/network"

// NowNanos returns the current time in nanoseconds since the Unix epoch on
// the same monotonic clock that stamps captured packets, so end-to-end
// latency deltas are always non-negative.
func NowNanos() uint64 {
	return network.NowNanos()
}
