package feed

// Price is a signed fixed-point price scaled by PriceScale.
type Price = int64

// Quantity is a number of shares or contracts.
type Quantity = uint64

// OrderID identifies a resting order within a session.
type OrderID = uint64

// InstrumentID identifies a tradable instrument. Protocol decoders intern
// venue-specific identifiers (e.g. ITCH stock locate) into this space.
type InstrumentID = uint32

const (
	// PriceScale is the internal fixed-point price scale (10^-8).
	PriceScale = 100_000_000

	// ProtocolPriceScale is the wire-side fixed-point scale used by ITCH (10^-4).
	ProtocolPriceScale = 10_000

	// PriceScaleMultiplier converts a wire price to the internal scale.
	PriceScaleMultiplier = PriceScale / ProtocolPriceScale

	// InvalidOrderID is the reserved zero order id.
	InvalidOrderID OrderID = 0

	// SpreadUnavailable is returned by spread queries when either side is empty.
	SpreadUnavailable Price = -1
)

// Side is an enumeration of possible trading sides (buy/sell).
// SideInvalid appears only transiently in decode failures.
type Side uint8

const (
	SideInvalid Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "invalid"
	}
}

// Valid returns true for the two tradable sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

////////////////////////////////////////////////////////////////

// Kind is an enumeration of canonical message kinds emitted by decoders.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindTrade
	KindQuote
	KindOrderAdd
	KindOrderModify
	KindOrderDelete
	KindOrderExecute
	KindImbalance
	KindSystemEvent
)

func (k Kind) String() string {
	switch k {
	case KindTrade:
		return "trade"
	case KindQuote:
		return "quote"
	case KindOrderAdd:
		return "order-add"
	case KindOrderModify:
		return "order-modify"
	case KindOrderDelete:
		return "order-delete"
	case KindOrderExecute:
		return "order-execute"
	case KindImbalance:
		return "imbalance"
	case KindSystemEvent:
		return "system-event"
	default:
		return "unknown"
	}
}

////////////////////////////////////////////////////////////////

// NormalizedMessage is the canonical record produced by protocol decoders.
// It is a 64-byte value type copied across ring boundaries; it carries no
// pointers so subscribers may retain copies freely.
type NormalizedMessage struct {
	Kind       Kind
	Side       Side
	_          [2]byte
	Instrument InstrumentID

	OrderID  OrderID
	Price    Price // internal scale (10^-8)
	Quantity Quantity

	// MatchNumber is the execution match number for executes and trades.
	// For order replaces it carries the original order reference instead,
	// so the book can move the order to its new id in one step.
	MatchNumber uint64

	// ExchangeTimestamp is the venue timestamp in nanoseconds since midnight.
	ExchangeTimestamp uint64

	// LocalTimestamp is the capture timestamp of the carrying packet.
	LocalTimestamp uint64

	// Sequence is the capture sequence of the carrying packet.
	Sequence uint64
}
