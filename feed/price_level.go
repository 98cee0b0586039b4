package feed

import "lukechampine.com/uint128"

// PriceLevel aggregates all resting orders at one price. Levels are stored
// by value inside the book's dense per-side arrays; head and tail index the
// FIFO order chain inside the shared order arena.
type PriceLevel struct {
	price         Price
	totalQuantity Quantity
	orderCount    uint32
	_             [4]byte
	head          int32
	tail          int32
}

// Price returns the level price at the internal scale.
func (l *PriceLevel) Price() Price {
	return l.price
}

// TotalQuantity returns the summed open quantity of all orders at the level.
func (l *PriceLevel) TotalQuantity() Quantity {
	return l.totalQuantity
}

// OrderCount returns the number of orders resting at the level.
func (l *PriceLevel) OrderCount() uint32 {
	return l.orderCount
}

// Notional returns price*quantity as a 128-bit value; the product of a
// 10^-8-scaled price and a share count overflows 64 bits for liquid names.
func (l *PriceLevel) Notional() uint128.Uint128 {
	return uint128.From64(uint64(l.price)).Mul64(l.totalQuantity)
}
