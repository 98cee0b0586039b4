package feed

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLatencyStats(t *testing.T) {
	s := NewLatencyStats()
	require.Equal(t, LatencySnapshot{}, s.Snapshot())

	for _, sample := range []uint64{100, 300, 50, 1_000_000, 50_000} {
		s.Record(sample)
	}
	snap := s.Snapshot()
	require.Equal(t, uint64(5), snap.Count)
	require.Equal(t, uint64(50), snap.Min)
	require.Equal(t, uint64(1_000_000), snap.Max)
	require.Equal(t, uint64((100+300+50+1_000_000+50_000)/5), snap.Mean)

	total := uint64(0)
	for _, n := range snap.Buckets {
		total += n
	}
	require.Equal(t, snap.Count, total, "every sample lands in exactly one bucket")

	s.Reset()
	require.Equal(t, LatencySnapshot{}, s.Snapshot())
}

func TestLatencyStatsConcurrent(t *testing.T) {
	s := NewLatencyStats()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(base uint64) {
			defer wg.Done()
			for i := uint64(1); i <= 10_000; i++ {
				s.Record(base + i)
			}
		}(uint64(w) * 100)
	}
	wg.Wait()

	snap := s.Snapshot()
	require.Equal(t, uint64(40_000), snap.Count)
	require.Equal(t, uint64(1), snap.Min)
	require.Equal(t, uint64(300+10_000), snap.Max)
}

func TestParserRegistry(t *testing.T) {
	_, err := NewParser("no-such-protocol", ParserConfig{})
	require.ErrorIs(t, err, ErrUnknownProtocol)

	require.Panics(t, func() { RegisterParser("dup-proto", nil) })

	RegisterParser("test-proto", func(ParserConfig) Parser { return nil })
	defer func() {
		parsersMu.Lock()
		delete(parsers, "test-proto")
		parsersMu.Unlock()
	}()
	require.Contains(t, Protocols(), "test-proto")
	require.Panics(t, func() {
		RegisterParser("test-proto", func(ParserConfig) Parser { return nil })
	})
}
