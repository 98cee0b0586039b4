package network

import "time"

// The anchor pins a wall-clock origin once at startup; NowNanos then advances
// on the runtime's monotonic clock only, so latency deltas never go backwards
// across NTP slews.
var (
	clockAnchor      = time.Now()
	clockAnchorNanos = uint64(clockAnchor.UnixNano())
)

// NowNanos returns the current time in nanoseconds since the Unix epoch,
// sampled from the monotonic clock.
func NowNanos() uint64 {
	return clockAnchorNanos + uint64(time.Since(clockAnchor))
}
