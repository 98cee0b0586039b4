package feed

import (
	"fmt"
	"sort"
	"sync"
)

// ParserConfig carries the decoder knobs shared by all protocols.
type ParserConfig struct {
	// ValidateChecksums enables protocol-level checksum verification where
	// the protocol defines one.
	ValidateChecksums bool

	// EnableSequenceChecking tracks per-instrument tracking numbers and
	// counts gaps. Gaps are never fatal.
	EnableSequenceChecking bool

	// MaxSymbols caps the decoder's symbol table.
	MaxSymbols int
}

// Parser turns captured packet payloads into normalized messages. A parser
// instance is owned by exactly one decode thread and keeps its own symbol
// and sequence state.
type Parser interface {
	// Parse decodes the payload into out and returns the number of records
	// written, at most len(out). captureNanos and sequence are stamped into
	// every record. Malformed frames are counted, never returned as errors.
	Parse(payload []byte, captureNanos, sequence uint64, out []NormalizedMessage) int

	// Name returns the protocol name the parser was registered under.
	Name() string

	// Stats returns a point-in-time copy of the decode counters.
	Stats() ParserStats

	// Reset clears symbol and sequence state, keeping counters.
	Reset()
}

var (
	parsersMu sync.RWMutex
	parsers   = map[string]func(ParserConfig) Parser{}
)

// RegisterParser makes a decoder constructor available under a protocol name
// such as "ITCH-5.0". It is intended to be called from package init functions
// and panics on a duplicate name.
func RegisterParser(name string, factory func(ParserConfig) Parser) {
	parsersMu.Lock()
	defer parsersMu.Unlock()
	if factory == nil {
		panic("feed: RegisterParser factory is nil")
	}
	if _, dup := parsers[name]; dup {
		panic("feed: RegisterParser called twice for " + name)
	}
	parsers[name] = factory
}

// NewParser constructs the decoder registered under name.
func NewParser(name string, cfg ParserConfig) (Parser, error) {
	parsersMu.RLock()
	factory, ok := parsers[name]
	parsersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, name)
	}
	return factory(cfg), nil
}

// Protocols returns the registered protocol names, sorted.
func Protocols() []string {
	parsersMu.RLock()
	defer parsersMu.RUnlock()
	names := make([]string, 0, len(parsers))
	for name := range parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
