package feed

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cryptonstudio/crypton-feed-engine/types/pool"
)

func newTestBook(t *testing.T) *OrderBook {
	t.Helper()
	return NewOrderBook(1, pool.New[Order](4096), DefaultMaxPriceLevels)
}

const px = Price(PriceScale) // $1.00 at the internal scale

func TestOrderBookAddValidation(t *testing.T) {
	ob := newTestBook(t)

	require.ErrorIs(t, ob.AddOrder(0, 100*px, 10, SideBuy, 1), ErrInvalidOrderID)
	require.ErrorIs(t, ob.AddOrder(1, 0, 10, SideBuy, 1), ErrInvalidOrderPrice)
	require.ErrorIs(t, ob.AddOrder(1, 100*px, 0, SideBuy, 1), ErrInvalidOrderQuantity)
	require.ErrorIs(t, ob.AddOrder(1, 100*px, 10, SideInvalid, 1), ErrInvalidOrderSide)

	require.NoError(t, ob.AddOrder(1, 100*px, 10, SideBuy, 1))
	require.ErrorIs(t, ob.AddOrder(1, 101*px, 5, SideSell, 2), ErrOrderDuplicate)
	require.NoError(t, ob.Validate())
}

// Orders placed across both sides land on strictly sorted levels with the
// best price at index zero, and same-price orders aggregate in FIFO order.
func TestOrderBookLadder(t *testing.T) {
	ob := newTestBook(t)

	require.NoError(t, ob.AddOrder(1, 100*px, 10, SideBuy, 1))
	require.NoError(t, ob.AddOrder(2, 102*px, 20, SideBuy, 2))
	require.NoError(t, ob.AddOrder(3, 101*px, 30, SideBuy, 3))
	require.NoError(t, ob.AddOrder(4, 102*px, 5, SideBuy, 4))

	require.NoError(t, ob.AddOrder(5, 103*px, 7, SideSell, 5))
	require.NoError(t, ob.AddOrder(6, 105*px, 9, SideSell, 6))
	require.NoError(t, ob.AddOrder(7, 104*px, 11, SideSell, 7))

	require.Equal(t, 3, ob.BidDepth())
	require.Equal(t, 3, ob.AskDepth())

	best := ob.BestBid()
	require.Equal(t, 102*px, best.Price())
	require.Equal(t, Quantity(25), best.TotalQuantity())
	require.Equal(t, uint32(2), best.OrderCount())
	require.Equal(t, 101*px, ob.BidLevel(1).Price())
	require.Equal(t, 100*px, ob.BidLevel(2).Price())

	require.Equal(t, 103*px, ob.BestAsk().Price())
	require.Equal(t, 104*px, ob.AskLevel(1).Price())
	require.Equal(t, 105*px, ob.AskLevel(2).Price())

	require.Equal(t, 1*px, ob.Spread())
	require.Equal(t, (102*px+103*px)/2, ob.MidPrice())
	require.NoError(t, ob.Validate())
}

// Adding orders and then cancelling them in arbitrary order leaves the book
// exactly as empty as it started, with every arena block returned.
func TestOrderBookAddCancelRoundTrip(t *testing.T) {
	arena := pool.New[Order](4096)
	ob := NewOrderBook(1, arena, DefaultMaxPriceLevels)
	free := arena.Available()

	ids := []OrderID{1, 2, 3, 4, 5, 6}
	prices := []Price{100 * px, 101 * px, 100 * px, 99 * px, 102 * px, 101 * px}
	sides := []Side{SideBuy, SideBuy, SideBuy, SideBuy, SideSell, SideSell}
	for i, id := range ids {
		require.NoError(t, ob.AddOrder(id, prices[i], 10, sides[i], uint64(i)))
	}
	require.NoError(t, ob.Validate())

	for _, id := range []OrderID{3, 6, 1, 5, 2, 4} {
		require.NoError(t, ob.CancelOrder(id))
		require.NoError(t, ob.Validate())
	}

	require.Equal(t, 0, ob.BidDepth())
	require.Equal(t, 0, ob.AskDepth())
	require.Equal(t, 0, ob.Orders())
	require.Equal(t, SpreadUnavailable, ob.Spread())
	require.Equal(t, free, arena.Available(), "every order block goes back to the arena")
}

func TestOrderBookReduceAndExecute(t *testing.T) {
	ob := newTestBook(t)
	require.NoError(t, ob.AddOrder(1, 100*px, 100, SideBuy, 1))
	require.NoError(t, ob.AddOrder(2, 100*px, 50, SideBuy, 2))

	// Partial reduce keeps the order resting.
	require.NoError(t, ob.ReduceOrder(1, 40))
	require.Equal(t, Quantity(60), ob.Order(1).Quantity())
	require.Equal(t, Quantity(110), ob.BestBid().TotalQuantity())

	// Reduce beyond the open quantity clamps to a cancel.
	require.NoError(t, ob.ReduceOrder(1, 1000))
	require.Nil(t, ob.Order(1))
	require.Equal(t, uint32(1), ob.BestBid().OrderCount())

	executed, err := ob.ExecuteOrder(2, 20)
	require.NoError(t, err)
	require.Equal(t, Quantity(20), executed)
	require.Equal(t, 100*px, ob.LastTradePrice())

	executed, err = ob.ExecuteOrder(2, 999)
	require.NoError(t, err)
	require.Equal(t, Quantity(30), executed, "execution clamps to open quantity")
	require.Equal(t, 0, ob.BidDepth(), "empty level is dropped")

	require.ErrorIs(t, ob.ReduceOrder(99, 1), ErrOrderNotFound)
	_, err = ob.ExecuteOrder(99, 1)
	require.ErrorIs(t, err, ErrOrderNotFound)
	require.NoError(t, ob.Validate())
}

func TestOrderBookModify(t *testing.T) {
	ob := newTestBook(t)
	require.NoError(t, ob.AddOrder(1, 100*px, 100, SideBuy, 10))

	require.NoError(t, ob.ModifyOrder(1, 70, 20))
	require.Equal(t, Quantity(70), ob.Order(1).Quantity())
	require.Equal(t, Quantity(70), ob.BestBid().TotalQuantity())

	// Growing the quantity is allowed through modify as well.
	require.NoError(t, ob.ModifyOrder(1, 90, 30))
	require.Equal(t, Quantity(90), ob.BestBid().TotalQuantity())

	// Same-quantity modify only refreshes the timestamp.
	require.NoError(t, ob.ModifyOrder(1, 90, 40))
	require.Equal(t, Quantity(90), ob.Order(1).Quantity())
	require.Equal(t, uint64(40), ob.Order(1).Timestamp())

	// Zero quantity is a cancel.
	require.NoError(t, ob.ModifyOrder(1, 0, 50))
	require.Nil(t, ob.Order(1))
	require.Equal(t, 0, ob.BidDepth())
	require.NoError(t, ob.Validate())
}

func TestOrderBookReplace(t *testing.T) {
	ob := newTestBook(t)
	require.NoError(t, ob.AddOrder(1, 100*px, 10, SideBuy, 1))
	require.NoError(t, ob.ReplaceOrder(1, 2, 101*px, 15, 2))

	require.Nil(t, ob.Order(1))
	order := ob.Order(2)
	require.NotNil(t, order)
	require.Equal(t, 101*px, order.Price())
	require.Equal(t, Quantity(15), order.Quantity())
	require.Equal(t, SideBuy, order.Side(), "replace keeps the original side")

	require.ErrorIs(t, ob.ReplaceOrder(99, 100, px, 1, 3), ErrOrderNotFound)
	require.NoError(t, ob.Validate())
}

func TestOrderBookFIFOWithinLevel(t *testing.T) {
	ob := newTestBook(t)
	require.NoError(t, ob.AddOrder(1, 100*px, 10, SideSell, 1))
	require.NoError(t, ob.AddOrder(2, 100*px, 20, SideSell, 2))
	require.NoError(t, ob.AddOrder(3, 100*px, 30, SideSell, 3))

	// Cancelling the middle order keeps 1 before 3.
	require.NoError(t, ob.CancelOrder(2))
	level := ob.BestAsk()
	require.Equal(t, uint32(2), level.OrderCount())
	require.Equal(t, Quantity(40), level.TotalQuantity())
	require.NoError(t, ob.Validate())

	// Head cancel promotes the next arrival.
	require.NoError(t, ob.CancelOrder(1))
	require.Equal(t, uint32(1), ob.BestAsk().OrderCount())
	require.NoError(t, ob.Validate())
}

func TestOrderBookLevelCapacity(t *testing.T) {
	ob := NewOrderBook(1, pool.New[Order](64), 4)
	for i := 0; i < 4; i++ {
		require.NoError(t, ob.AddOrder(OrderID(i+1), Price(i+1)*px, 1, SideBuy, 1))
	}
	err := ob.AddOrder(100, 50*px, 1, SideBuy, 1)
	require.ErrorIs(t, err, ErrPriceLevelFull)

	// Joining an existing level is still allowed at capacity.
	require.NoError(t, ob.AddOrder(101, 2*px, 1, SideBuy, 1))
	require.NoError(t, ob.Validate())
}

func TestOrderBookPoolExhaustion(t *testing.T) {
	arena := pool.New[Order](2)
	ob := NewOrderBook(1, arena, DefaultMaxPriceLevels)
	require.NoError(t, ob.AddOrder(1, 100*px, 1, SideBuy, 1))
	require.NoError(t, ob.AddOrder(2, 101*px, 1, SideBuy, 1))

	require.ErrorIs(t, ob.AddOrder(3, 102*px, 1, SideBuy, 1), ErrOrderPoolExhausted)
	require.Equal(t, 2, ob.BidDepth(), "failed add leaves no empty level behind")
	require.NoError(t, ob.Validate())

	// Freeing capacity makes the add succeed.
	require.NoError(t, ob.CancelOrder(1))
	require.NoError(t, ob.AddOrder(3, 102*px, 1, SideBuy, 1))
	require.NoError(t, ob.Validate())
}

func TestOrderBookMicroPrice(t *testing.T) {
	ob := newTestBook(t)
	require.Equal(t, Price(0), ob.MicroPrice())

	require.NoError(t, ob.AddOrder(1, 100*px, 30, SideBuy, 1))
	require.NoError(t, ob.AddOrder(2, 102*px, 10, SideSell, 2))

	// (100*10 + 102*30) / 40 = 101.5
	want := (100*px*10 + 102*px*30) / 40
	require.Equal(t, want, ob.MicroPrice())
}

func TestOrderBookClear(t *testing.T) {
	arena := pool.New[Order](128)
	ob := NewOrderBook(1, arena, DefaultMaxPriceLevels)
	free := arena.Available()
	for i := 1; i <= 20; i++ {
		side := SideBuy
		if i%2 == 0 {
			side = SideSell
		}
		require.NoError(t, ob.AddOrder(OrderID(i), Price(100+i)*px, 5, side, uint64(i)))
	}

	ob.Clear()
	require.Equal(t, 0, ob.Orders())
	require.Equal(t, 0, ob.BidDepth())
	require.Equal(t, 0, ob.AskDepth())
	require.Equal(t, free, arena.Available())
	require.NoError(t, ob.Validate())
}
