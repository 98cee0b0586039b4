package feed

import "errors"

var (
	// ErrInvalidOrderID is returned for order operations with a zero id.
	ErrInvalidOrderID = errors.New("order id is invalid")

	// ErrInvalidOrderPrice is returned when a new order carries a zero price.
	ErrInvalidOrderPrice = errors.New("order price is invalid")

	// ErrInvalidOrderQuantity is returned when a new order carries a zero quantity.
	ErrInvalidOrderQuantity = errors.New("order quantity is invalid")

	// ErrInvalidOrderSide is returned when an order side is neither buy nor sell.
	ErrInvalidOrderSide = errors.New("order side is invalid")

	// ErrOrderDuplicate is returned when an order id is already resting in the book.
	ErrOrderDuplicate = errors.New("order with same id already exists")

	// ErrOrderNotFound is returned when the referenced order is not in the book.
	ErrOrderNotFound = errors.New("order not found")

	// ErrPriceLevelFull is returned when a side already holds its maximum
	// number of distinct price levels.
	ErrPriceLevelFull = errors.New("side price levels exhausted")

	// ErrOrderPoolExhausted is returned when the shared order arena has no
	// free blocks left.
	ErrOrderPoolExhausted = errors.New("order pool exhausted")

	// ErrBookDuplicate is returned when a symbol is added twice.
	ErrBookDuplicate = errors.New("order book with same instrument already exists")

	// ErrBookNotFound is returned when no book exists for an instrument.
	ErrBookNotFound = errors.New("order book not found")

	// ErrEngineRunning is returned for operations that require a stopped engine.
	ErrEngineRunning = errors.New("engine is running")

	// ErrEngineNotInitialized is returned when Start is called before Initialize.
	ErrEngineNotInitialized = errors.New("engine is not initialized")

	// ErrUnknownProtocol is returned when no parser is registered under a name.
	ErrUnknownProtocol = errors.New("unknown feed protocol")

	// ErrDispatcherRunning is returned when subscribers are changed mid-flight.
	ErrDispatcherRunning = errors.New("dispatcher is running")

	// ErrSubscriberInit is returned when a subscriber fails to initialize.
	ErrSubscriberInit = errors.New("subscriber initialization failed")

	// ErrInvalidConfig is returned when a configuration cannot be used.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrSymbolLimit is returned when adding a symbol past Book.MaxSymbols.
	ErrSymbolLimit = errors.New("symbol limit reached")
)
