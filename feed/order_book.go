package feed

import (
	"fmt"
	"sort"

	"github.com/tidwall/hashmap"
	"lukechampine.com/uint128"

	"github.com/cryptonstudio/crypton-feed-engine/types/pool"
)

// DefaultMaxPriceLevels bounds the number of distinct prices per book side.
const DefaultMaxPriceLevels = 1000

// OrderBook maintains both sides of one instrument. Levels are held in dense
// sorted arrays (bids descending, asks ascending) so the top of book is always
// element zero and a level walk is a linear scan over contiguous memory;
// inserting or removing a level shifts the tail of the array. Orders live in
// an arena shared across books and are chained per level in arrival order.
//
// The book is written from a single decode thread; concurrent writers are
// not supported.
type OrderBook struct {
	instrument InstrumentID
	arena      *pool.Pool[Order]
	maxLevels  int

	bids []PriceLevel // sorted by price descending
	asks []PriceLevel // sorted by price ascending

	// price -> dense-array index, maintained alongside the arrays.
	bidIndex *hashmap.Map[Price, int]
	askIndex *hashmap.Map[Price, int]

	// order id -> arena index.
	orders *hashmap.Map[OrderID, int32]

	lastTradePrice Price
	updates        uint64
}

// NewOrderBook creates an empty book for the given instrument backed by the
// shared order arena. maxLevels bounds each side; non-positive values fall
// back to DefaultMaxPriceLevels.
func NewOrderBook(instrument InstrumentID, arena *pool.Pool[Order], maxLevels int) *OrderBook {
	if maxLevels <= 0 {
		maxLevels = DefaultMaxPriceLevels
	}
	return &OrderBook{
		instrument: instrument,
		arena:      arena,
		maxLevels:  maxLevels,
		bids:       make([]PriceLevel, 0, maxLevels),
		asks:       make([]PriceLevel, 0, maxLevels),
		bidIndex:   hashmap.New[Price, int](maxLevels),
		askIndex:   hashmap.New[Price, int](maxLevels),
		orders:     hashmap.New[OrderID, int32](1024),
	}
}

// Instrument returns the instrument this book tracks.
func (ob *OrderBook) Instrument() InstrumentID {
	return ob.instrument
}

////////////////////////////////////////////////////////////////
// Mutations
////////////////////////////////////////////////////////////////

// AddOrder inserts a new resting order. The price level is created on first
// use; orders at one price keep arrival order.
func (ob *OrderBook) AddOrder(id OrderID, price Price, quantity Quantity, side Side, timestamp uint64) error {
	switch {
	case id == InvalidOrderID:
		return ErrInvalidOrderID
	case price <= 0:
		return ErrInvalidOrderPrice
	case quantity == 0:
		return ErrInvalidOrderQuantity
	case !side.Valid():
		return ErrInvalidOrderSide
	}
	if _, ok := ob.orders.Get(id); ok {
		return ErrOrderDuplicate
	}

	level, err := ob.obtainLevel(side, price)
	if err != nil {
		return err
	}

	idx := ob.arena.GetIndex()
	if idx < 0 {
		// Roll back a level created just for this order.
		if level.orderCount == 0 {
			ob.dropLevel(side, price)
		}
		return ErrOrderPoolExhausted
	}
	order := ob.arena.At(idx)
	*order = Order{
		id:        id,
		price:     price,
		quantity:  quantity,
		timestamp: timestamp,
		side:      side,
		prev:      noIndex,
		next:      noIndex,
	}

	ob.chainAppend(level, idx, order)
	ob.orders.Set(id, idx)
	ob.updates++
	return nil
}

// ModifyOrder sets the open quantity of a resting order to newQuantity and
// refreshes its timestamp. Zero quantity is defined as a cancel. Price changes
// arrive as protocol replaces and go through ReplaceOrder instead.
func (ob *OrderBook) ModifyOrder(id OrderID, newQuantity Quantity, timestamp uint64) error {
	if id == InvalidOrderID {
		return ErrInvalidOrderID
	}
	if newQuantity == 0 {
		return ob.CancelOrder(id)
	}
	idx, ok := ob.orders.Get(id)
	if !ok {
		return ErrOrderNotFound
	}
	order := ob.arena.At(idx)
	level := ob.levelAt(order.side, order.price)
	level.totalQuantity = level.totalQuantity - order.quantity + newQuantity
	order.quantity = newQuantity
	order.timestamp = timestamp
	ob.updates++
	return nil
}

// ReduceOrder decreases the open quantity of a resting order by delta shares.
// The order is removed once its quantity reaches zero; reductions larger than
// the open quantity clamp to a full cancel.
func (ob *OrderBook) ReduceOrder(id OrderID, delta Quantity) error {
	if id == InvalidOrderID {
		return ErrInvalidOrderID
	}
	idx, ok := ob.orders.Get(id)
	if !ok {
		return ErrOrderNotFound
	}
	order := ob.arena.At(idx)
	level := ob.levelAt(order.side, order.price)

	if delta >= order.quantity {
		delta = order.quantity
	}
	order.quantity -= delta
	level.totalQuantity -= delta
	if order.quantity == 0 {
		ob.unlinkOrder(level, idx, order)
	}
	ob.updates++
	return nil
}

// ExecuteOrder consumes up to quantity shares of a resting order against a
// trade and returns the quantity actually executed.
func (ob *OrderBook) ExecuteOrder(id OrderID, quantity Quantity) (Quantity, error) {
	if id == InvalidOrderID {
		return 0, ErrInvalidOrderID
	}
	idx, ok := ob.orders.Get(id)
	if !ok {
		return 0, ErrOrderNotFound
	}
	order := ob.arena.At(idx)
	if quantity > order.quantity {
		quantity = order.quantity
	}
	ob.lastTradePrice = order.price

	level := ob.levelAt(order.side, order.price)
	order.quantity -= quantity
	level.totalQuantity -= quantity
	if order.quantity == 0 {
		ob.unlinkOrder(level, idx, order)
	}
	ob.updates++
	return quantity, nil
}

// CancelOrder removes a resting order entirely.
func (ob *OrderBook) CancelOrder(id OrderID) error {
	if id == InvalidOrderID {
		return ErrInvalidOrderID
	}
	idx, ok := ob.orders.Get(id)
	if !ok {
		return ErrOrderNotFound
	}
	order := ob.arena.At(idx)
	level := ob.levelAt(order.side, order.price)
	level.totalQuantity -= order.quantity
	ob.unlinkOrder(level, idx, order)
	ob.updates++
	return nil
}

// ReplaceOrder atomically cancels oldID and inserts newID at the given price
// and quantity on the same side, as produced by an ITCH replace.
func (ob *OrderBook) ReplaceOrder(oldID, newID OrderID, price Price, quantity Quantity, timestamp uint64) error {
	idx, ok := ob.orders.Get(oldID)
	if !ok {
		return ErrOrderNotFound
	}
	side := ob.arena.At(idx).side
	if err := ob.CancelOrder(oldID); err != nil {
		return err
	}
	return ob.AddOrder(newID, price, quantity, side, timestamp)
}

// RecordTrade notes an off-book trade price (ITCH 'P').
func (ob *OrderBook) RecordTrade(price Price) {
	ob.lastTradePrice = price
	ob.updates++
}

// Clear releases every resting order back to the arena and empties both sides.
func (ob *OrderBook) Clear() {
	keys := ob.orders.Keys()
	for _, id := range keys {
		if idx, ok := ob.orders.Get(id); ok {
			ob.arena.PutIndex(idx)
		}
	}
	ob.bids = ob.bids[:0]
	ob.asks = ob.asks[:0]
	ob.bidIndex = hashmap.New[Price, int](ob.maxLevels)
	ob.askIndex = hashmap.New[Price, int](ob.maxLevels)
	ob.orders = hashmap.New[OrderID, int32](1024)
}

////////////////////////////////////////////////////////////////
// Queries
////////////////////////////////////////////////////////////////

// BestBid returns the highest bid level or nil when the side is empty.
// The pointer stays valid only until the next mutation.
func (ob *OrderBook) BestBid() *PriceLevel {
	if len(ob.bids) == 0 {
		return nil
	}
	return &ob.bids[0]
}

// BestAsk returns the lowest ask level or nil when the side is empty.
func (ob *OrderBook) BestAsk() *PriceLevel {
	if len(ob.asks) == 0 {
		return nil
	}
	return &ob.asks[0]
}

// BidLevel returns the i-th best bid level or nil when i is out of range.
func (ob *OrderBook) BidLevel(i int) *PriceLevel {
	if i < 0 || i >= len(ob.bids) {
		return nil
	}
	return &ob.bids[i]
}

// AskLevel returns the i-th best ask level or nil when i is out of range.
func (ob *OrderBook) AskLevel(i int) *PriceLevel {
	if i < 0 || i >= len(ob.asks) {
		return nil
	}
	return &ob.asks[i]
}

// BidDepth returns the number of populated bid levels.
func (ob *OrderBook) BidDepth() int {
	return len(ob.bids)
}

// AskDepth returns the number of populated ask levels.
func (ob *OrderBook) AskDepth() int {
	return len(ob.asks)
}

// Order returns the resting order with the given id, or nil.
func (ob *OrderBook) Order(id OrderID) *Order {
	idx, ok := ob.orders.Get(id)
	if !ok {
		return nil
	}
	return ob.arena.At(idx)
}

// Orders returns the total number of resting orders across both sides.
func (ob *OrderBook) Orders() int {
	return ob.orders.Len()
}

// Spread returns the ask-bid distance, or SpreadUnavailable when either side
// is empty.
func (ob *OrderBook) Spread() Price {
	if len(ob.bids) == 0 || len(ob.asks) == 0 {
		return SpreadUnavailable
	}
	return ob.asks[0].price - ob.bids[0].price
}

// MidPrice returns the arithmetic mid of the top of book, or zero when either
// side is empty.
func (ob *OrderBook) MidPrice() Price {
	if len(ob.bids) == 0 || len(ob.asks) == 0 {
		return 0
	}
	return (ob.bids[0].price + ob.asks[0].price) / 2
}

// MicroPrice returns the size-weighted mid (bid*askQty + ask*bidQty over the
// summed top-of-book quantity), or zero when either side is empty. The
// intermediate products need 128 bits at the internal price scale.
func (ob *OrderBook) MicroPrice() Price {
	if len(ob.bids) == 0 || len(ob.asks) == 0 {
		return 0
	}
	bid, ask := &ob.bids[0], &ob.asks[0]
	total := bid.totalQuantity + ask.totalQuantity
	if total == 0 {
		return 0
	}
	sum := uint128.From64(uint64(bid.price)).Mul64(ask.totalQuantity).
		Add(uint128.From64(uint64(ask.price)).Mul64(bid.totalQuantity))
	return Price(sum.Div64(total).Lo)
}

// LastTradePrice returns the most recent execution price seen by the book.
func (ob *OrderBook) LastTradePrice() Price {
	return ob.lastTradePrice
}

// Updates returns the count of successful mutations applied to the book.
func (ob *OrderBook) Updates() uint64 {
	return ob.updates
}

////////////////////////////////////////////////////////////////
// Level maintenance
////////////////////////////////////////////////////////////////

func (ob *OrderBook) sideOf(side Side) (*[]PriceLevel, *hashmap.Map[Price, int]) {
	if side == SideBuy {
		return &ob.bids, ob.bidIndex
	}
	return &ob.asks, ob.askIndex
}

func (ob *OrderBook) levelAt(side Side, price Price) *PriceLevel {
	levels, index := ob.sideOf(side)
	i, _ := index.Get(price)
	return &(*levels)[i]
}

// obtainLevel returns the level for the given price, inserting a new one at
// its sorted position when absent.
func (ob *OrderBook) obtainLevel(side Side, price Price) (*PriceLevel, error) {
	levels, index := ob.sideOf(side)
	if i, ok := index.Get(price); ok {
		return &(*levels)[i], nil
	}
	if len(*levels) >= ob.maxLevels {
		return nil, ErrPriceLevelFull
	}

	var at int
	if side == SideBuy {
		at = sort.Search(len(*levels), func(i int) bool { return (*levels)[i].price < price })
	} else {
		at = sort.Search(len(*levels), func(i int) bool { return (*levels)[i].price > price })
	}

	*levels = append(*levels, PriceLevel{})
	copy((*levels)[at+1:], (*levels)[at:])
	(*levels)[at] = PriceLevel{price: price, head: noIndex, tail: noIndex}
	for i := at; i < len(*levels); i++ {
		index.Set((*levels)[i].price, i)
	}
	return &(*levels)[at], nil
}

// dropLevel removes the (empty) level at the given price and reindexes the
// shifted tail of the side array.
func (ob *OrderBook) dropLevel(side Side, price Price) {
	levels, index := ob.sideOf(side)
	at, ok := index.Get(price)
	if !ok {
		return
	}
	copy((*levels)[at:], (*levels)[at+1:])
	*levels = (*levels)[:len(*levels)-1]
	index.Delete(price)
	for i := at; i < len(*levels); i++ {
		index.Set((*levels)[i].price, i)
	}
}

func (ob *OrderBook) chainAppend(level *PriceLevel, idx int32, order *Order) {
	if level.tail == noIndex {
		level.head, level.tail = idx, idx
	} else {
		ob.arena.At(level.tail).next = idx
		order.prev = level.tail
		level.tail = idx
	}
	level.orderCount++
	level.totalQuantity += order.quantity
}

// unlinkOrder detaches the order from its level chain, releases the arena
// block and drops the level when it becomes empty. The caller has already
// adjusted level.totalQuantity.
func (ob *OrderBook) unlinkOrder(level *PriceLevel, idx int32, order *Order) {
	if order.prev != noIndex {
		ob.arena.At(order.prev).next = order.next
	} else {
		level.head = order.next
	}
	if order.next != noIndex {
		ob.arena.At(order.next).prev = order.prev
	} else {
		level.tail = order.prev
	}
	level.orderCount--

	side, price := order.side, order.price
	ob.orders.Delete(order.id)
	ob.arena.PutIndex(idx)
	if level.orderCount == 0 {
		ob.dropLevel(side, price)
	}
}

////////////////////////////////////////////////////////////////
// Consistency checking
////////////////////////////////////////////////////////////////

// Validate walks the whole book and checks its internal invariants: strict
// price ordering per side, level aggregates matching their order chains, and
// index maps consistent with the dense arrays. Intended for tests and
// debug-mode sweeps, not the hot path.
func (ob *OrderBook) Validate() error {
	chained := 0
	for s, levels := range [][]PriceLevel{ob.bids, ob.asks} {
		descending := s == 0
		_, index := ob.sideOf(SideBuy)
		if !descending {
			_, index = ob.sideOf(SideSell)
		}
		if index.Len() != len(levels) {
			return fmt.Errorf("book %d: side index holds %d prices for %d levels", ob.instrument, index.Len(), len(levels))
		}
		for i := range levels {
			level := &levels[i]
			if i > 0 {
				prev := levels[i-1].price
				if descending && level.price >= prev {
					return fmt.Errorf("book %d: bid prices not strictly descending at level %d", ob.instrument, i)
				}
				if !descending && level.price <= prev {
					return fmt.Errorf("book %d: ask prices not strictly ascending at level %d", ob.instrument, i)
				}
			}
			if mapped, ok := index.Get(level.price); !ok || mapped != i {
				return fmt.Errorf("book %d: side index out of sync at price %d", ob.instrument, level.price)
			}
			if level.orderCount == 0 {
				return fmt.Errorf("book %d: empty level survived at price %d", ob.instrument, level.price)
			}

			count, quantity := uint32(0), Quantity(0)
			prev := noIndex
			for idx := level.head; idx != noIndex; idx = ob.arena.At(idx).next {
				order := ob.arena.At(idx)
				if order.price != level.price {
					return fmt.Errorf("book %d: order %d chained at wrong price", ob.instrument, order.id)
				}
				if order.prev != prev {
					return fmt.Errorf("book %d: broken back link at order %d", ob.instrument, order.id)
				}
				if mapped, ok := ob.orders.Get(order.id); !ok || mapped != idx {
					return fmt.Errorf("book %d: order %d missing from id index", ob.instrument, order.id)
				}
				count++
				quantity += order.quantity
				prev = idx
			}
			if prev != level.tail {
				return fmt.Errorf("book %d: level tail out of sync at price %d", ob.instrument, level.price)
			}
			if count != level.orderCount || quantity != level.totalQuantity {
				return fmt.Errorf("book %d: level aggregates out of sync at price %d", ob.instrument, level.price)
			}
			chained += int(count)
		}
	}
	if chained != ob.orders.Len() {
		return fmt.Errorf("book %d: %d chained orders vs %d indexed", ob.instrument, chained, ob.orders.Len())
	}
	return nil
}
