package itch

import (
	"sync/atomic"

	"github.com/tidwall/hashmap"

	"github.com/cryptonstudio/crypton-feed-engine/feed"
)

// Protocol is the registry name of this decoder.
const Protocol = "ITCH-5.0"

func init() {
	feed.RegisterParser(Protocol, func(cfg feed.ParserConfig) feed.Parser {
		return NewDecoder(cfg)
	})
}

// prefixSize is the common body prefix: stock locate, tracking number,
// timestamp and message type.
const prefixSize = 13

const defaultMaxSymbols = 8192

// Decoder turns ITCH 5.0 packet payloads into normalized messages.
//
// A payload is a back-to-back sequence of frames, each led by a 2-byte
// big-endian length that counts itself. Malformed frames are counted and
// skipped, never fatal. Wire prices arrive at the 10^-4 scale and are
// converted to the internal 10^-8 scale.
//
// Normalization notes: system events carry their event code in the record's
// Quantity field; replaces carry the original order reference in MatchNumber
// next to the new reference in OrderID.
//
// The decoder owns the locate->instrument symbol table and the optional
// per-locate tracking-number state; it must be used from one thread.
type Decoder struct {
	cfg feed.ParserConfig

	symbols  *hashmap.Map[uint16, feed.InstrumentID]
	names    *hashmap.Map[feed.InstrumentID, string]
	tracking *hashmap.Map[uint16, uint16]

	framesParsed      atomic.Uint64
	messagesParsed    atomic.Uint64
	parseErrors       atomic.Uint64
	unknownMessages   atomic.Uint64
	sequenceGaps      atomic.Uint64
	symbolsDiscovered atomic.Uint64
}

// NewDecoder creates a decoder with an empty symbol table.
func NewDecoder(cfg feed.ParserConfig) *Decoder {
	if cfg.MaxSymbols <= 0 {
		cfg.MaxSymbols = defaultMaxSymbols
	}
	return &Decoder{
		cfg:      cfg,
		symbols:  hashmap.New[uint16, feed.InstrumentID](cfg.MaxSymbols),
		names:    hashmap.New[feed.InstrumentID, string](cfg.MaxSymbols),
		tracking: hashmap.New[uint16, uint16](cfg.MaxSymbols),
	}
}

// Name returns the protocol name.
func (d *Decoder) Name() string {
	return Protocol
}

// Parse decodes one packet payload into out. It returns the number of records
// written and stops early when out is full; remaining frames stay undecoded.
func (d *Decoder) Parse(payload []byte, captureNanos, sequence uint64, out []feed.NormalizedMessage) int {
	n := 0
	for offset := 0; offset < len(payload); {
		if n == len(out) {
			return n
		}
		remaining := len(payload) - offset
		if remaining < 3 {
			// A dangling byte or two after complete frames is a torn frame.
			if offset > 0 {
				d.parseErrors.Add(1)
			}
			return n
		}
		length := int(readUint16Value(payload[offset:]))
		if length < 3 || length > remaining {
			d.parseErrors.Add(1)
			return n
		}
		body := payload[offset+2 : offset+length]
		offset += length
		d.framesParsed.Add(1)

		if len(body) < prefixSize {
			d.parseErrors.Add(1)
			continue
		}
		if d.cfg.EnableSequenceChecking {
			d.checkSequence(body)
		}

		rec := feed.NormalizedMessage{
			LocalTimestamp: captureNanos,
			Sequence:       sequence,
		}
		if !d.decodeBody(body, &rec) {
			continue
		}
		out[n] = rec
		n++
		d.messagesParsed.Add(1)
	}
	return n
}

// decodeBody fills rec from one frame body, returning false when the frame
// produced no record (unsupported type or validation failure).
func (d *Decoder) decodeBody(body []byte, rec *feed.NormalizedMessage) bool {
	switch body[prefixSize-1] {
	case 'S':
		msg, err := unmarshalSystemEventMessage(body)
		if err != nil {
			d.parseErrors.Add(1)
			return false
		}
		rec.Kind = feed.KindSystemEvent
		rec.Instrument = d.intern(msg.StockLocate, "")
		rec.Quantity = uint64(msg.EventCode)
		rec.ExchangeTimestamp = msg.Timestamp

	case 'R':
		msg, err := unmarshalStockDirectoryMessage(body)
		if err != nil {
			d.parseErrors.Add(1)
			return false
		}
		rec.Kind = feed.KindSystemEvent
		rec.Instrument = d.intern(msg.StockLocate, trimStock(msg.Stock))
		rec.ExchangeTimestamp = msg.Timestamp

	case 'A':
		msg, err := unmarshalAddOrderMessage(body)
		if err != nil {
			d.parseErrors.Add(1)
			return false
		}
		side, ok := toSide(msg.BuySell)
		if !ok {
			d.parseErrors.Add(1)
			return false
		}
		rec.Kind = feed.KindOrderAdd
		rec.Side = side
		rec.Instrument = d.intern(msg.StockLocate, trimStock(msg.Stock))
		rec.OrderID = msg.OrderReference
		rec.Price = toPrice(msg.Price)
		rec.Quantity = uint64(msg.Shares)
		rec.ExchangeTimestamp = msg.Timestamp

	case 'F':
		msg, err := unmarshalAddOrderMPIDMessage(body)
		if err != nil {
			d.parseErrors.Add(1)
			return false
		}
		side, ok := toSide(msg.BuySell)
		if !ok {
			d.parseErrors.Add(1)
			return false
		}
		rec.Kind = feed.KindOrderAdd
		rec.Side = side
		rec.Instrument = d.intern(msg.StockLocate, trimStock(msg.Stock))
		rec.OrderID = msg.OrderReference
		rec.Price = toPrice(msg.Price)
		rec.Quantity = uint64(msg.Shares)
		rec.ExchangeTimestamp = msg.Timestamp

	case 'E':
		msg, err := unmarshalOrderExecutedMessage(body)
		if err != nil {
			d.parseErrors.Add(1)
			return false
		}
		rec.Kind = feed.KindOrderExecute
		rec.Instrument = d.intern(msg.StockLocate, "")
		rec.OrderID = msg.OrderReference
		rec.Quantity = uint64(msg.ExecutedShares)
		rec.MatchNumber = msg.MatchNumber
		rec.ExchangeTimestamp = msg.Timestamp

	case 'C':
		msg, err := unmarshalOrderExecutedWithPriceMessage(body)
		if err != nil {
			d.parseErrors.Add(1)
			return false
		}
		rec.Kind = feed.KindOrderExecute
		rec.Instrument = d.intern(msg.StockLocate, "")
		rec.OrderID = msg.OrderReference
		rec.Price = toPrice(msg.ExecutionPrice)
		rec.Quantity = uint64(msg.ExecutedShares)
		rec.MatchNumber = msg.MatchNumber
		rec.ExchangeTimestamp = msg.Timestamp

	case 'X':
		msg, err := unmarshalOrderCancelMessage(body)
		if err != nil {
			d.parseErrors.Add(1)
			return false
		}
		rec.Kind = feed.KindOrderModify
		rec.Instrument = d.intern(msg.StockLocate, "")
		rec.OrderID = msg.OrderReference
		rec.Quantity = uint64(msg.CanceledShares)
		rec.ExchangeTimestamp = msg.Timestamp

	case 'D':
		msg, err := unmarshalOrderDeleteMessage(body)
		if err != nil {
			d.parseErrors.Add(1)
			return false
		}
		rec.Kind = feed.KindOrderDelete
		rec.Instrument = d.intern(msg.StockLocate, "")
		rec.OrderID = msg.OrderReference
		rec.ExchangeTimestamp = msg.Timestamp

	case 'U':
		msg, err := unmarshalOrderReplaceMessage(body)
		if err != nil {
			d.parseErrors.Add(1)
			return false
		}
		rec.Kind = feed.KindOrderModify
		rec.Instrument = d.intern(msg.StockLocate, "")
		rec.OrderID = msg.NewOrderReference
		rec.MatchNumber = msg.OriginalReference
		rec.Price = toPrice(msg.Price)
		rec.Quantity = uint64(msg.Shares)
		rec.ExchangeTimestamp = msg.Timestamp

	case 'P':
		msg, err := unmarshalTradeMessage(body)
		if err != nil {
			d.parseErrors.Add(1)
			return false
		}
		side, ok := toSide(msg.BuySell)
		if !ok {
			d.parseErrors.Add(1)
			return false
		}
		rec.Kind = feed.KindTrade
		rec.Side = side
		rec.Instrument = d.intern(msg.StockLocate, trimStock(msg.Stock))
		rec.OrderID = msg.OrderReference
		rec.Price = toPrice(msg.Price)
		rec.Quantity = uint64(msg.Shares)
		rec.MatchNumber = msg.MatchNumber
		rec.ExchangeTimestamp = msg.Timestamp

	default:
		// Declared length already advanced the frame; no record, no error.
		d.unknownMessages.Add(1)
		return false
	}
	return true
}

// intern maps a stock locate to an instrument id, assigning the locate value
// itself when first seen. A non-empty symbol updates the name table.
func (d *Decoder) intern(locate uint16, symbol string) feed.InstrumentID {
	id, ok := d.symbols.Get(locate)
	if !ok {
		id = feed.InstrumentID(locate)
		d.symbols.Set(locate, id)
		d.symbolsDiscovered.Add(1)
	}
	if symbol != "" {
		if cur, _ := d.names.Get(id); cur != symbol {
			d.names.Set(id, symbol)
		}
	}
	return id
}

// checkSequence tracks per-locate tracking numbers and counts gaps.
func (d *Decoder) checkSequence(body []byte) {
	locate := readUint16Value(body)
	track := readUint16Value(body[2:])
	if last, ok := d.tracking.Get(locate); ok && track != last+1 {
		d.sequenceGaps.Add(1)
	}
	d.tracking.Set(locate, track)
}

// Symbol returns the directory name recorded for an instrument, if any.
func (d *Decoder) Symbol(id feed.InstrumentID) (string, bool) {
	return d.names.Get(id)
}

// Stats returns a point-in-time copy of the decode counters.
func (d *Decoder) Stats() feed.ParserStats {
	return feed.ParserStats{
		MessagesParsed:    d.messagesParsed.Load(),
		FramesParsed:      d.framesParsed.Load(),
		ParseErrors:       d.parseErrors.Load(),
		UnknownMessages:   d.unknownMessages.Load(),
		SequenceGaps:      d.sequenceGaps.Load(),
		SymbolsDiscovered: d.symbolsDiscovered.Load(),
	}
}

// Reset clears the symbol and sequence state, keeping the counters.
func (d *Decoder) Reset() {
	d.symbols = hashmap.New[uint16, feed.InstrumentID](d.cfg.MaxSymbols)
	d.names = hashmap.New[feed.InstrumentID, string](d.cfg.MaxSymbols)
	d.tracking = hashmap.New[uint16, uint16](d.cfg.MaxSymbols)
}

func toSide(b byte) (feed.Side, bool) {
	switch b {
	case 'B':
		return feed.SideBuy, true
	case 'S':
		return feed.SideSell, true
	default:
		return feed.SideInvalid, false
	}
}

func toPrice(wire uint32) feed.Price {
	return feed.Price(wire) * feed.PriceScaleMultiplier
}

func readUint16Value(data []byte) uint16 {
	v, _ := readUint16(data)
	return v
}
