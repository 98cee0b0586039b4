package feed

// noIndex marks an unused arena link.
const noIndex int32 = -1

// Order is a resting limit order. Orders live in a fixed arena shared across
// all books of an engine; the prev/next fields chain orders of one price level
// in arrival order using arena indices instead of pointers, which keeps an
// order at 48 bytes and the chains free of GC pressure.
type Order struct {
	id        OrderID
	price     Price
	quantity  Quantity
	timestamp uint64

	side Side
	_    [3]byte

	prev int32
	next int32
}

// ID returns the order identifier.
func (o *Order) ID() OrderID {
	return o.id
}

// Price returns the limit price at the internal scale.
func (o *Order) Price() Price {
	return o.price
}

// Quantity returns the remaining open quantity.
func (o *Order) Quantity() Quantity {
	return o.quantity
}

// Side returns the trading side of the order.
func (o *Order) Side() Side {
	return o.side
}

// Timestamp returns the venue timestamp attached at insertion.
func (o *Order) Timestamp() uint64 {
	return o.timestamp
}
