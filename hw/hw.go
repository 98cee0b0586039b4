// Package hw defines the interface to an optional hardware offload path
// (FPGA or NIC-resident book logic). The engine treats the adapter as a
// best-effort collaborator: when none is configured, or the configured one
// reports unhealthy, everything proceeds in software.
package hw

import "errors"

// ErrUnavailable is returned by the fallback adapter for every operation.
var ErrUnavailable = errors.New("hardware offload unavailable")

// Command selects the operation a Message carries.
type Command uint8

const (
	CommandNone Command = iota
	CommandOrderUpdate
	CommandQuoteRequest
	CommandQuoteResponse
	CommandHeartbeat
)

// MessageSize is the fixed wire size of a Message.
const MessageSize = 64

// Message is the fixed 64-byte record exchanged with the offload device.
// The payload interpretation depends on Command.
type Message struct {
	SequenceNumber uint64
	HWTimestamp    uint64
	Command        Command
	Kind           uint8
	ErrorCode      uint16
	InstrumentID   uint32

	// Payload layout for order updates: order id, price, quantity.
	OrderID  uint64
	Price    int64
	Quantity uint64

	_ [16]byte
}

// Quote is the best bid/ask pair returned by a quote lookup.
type Quote struct {
	InstrumentID uint32
	BidPrice     int64
	BidQuantity  uint64
	AskPrice     int64
	AskQuantity  uint64
}

// Adapter is the device-facing surface. Implementations wrap a vendor SDK or
// a shared-memory queue; all methods are non-blocking and return an error
// instead of stalling the pipeline.
type Adapter interface {
	Send(msg *Message) error
	Receive(msg *Message) error
	BestQuote(instrument uint32, out *Quote) error
	SendBatch(msgs []Message) (int, error)
	ReceiveBatch(msgs []Message) (int, error)
	Healthy() bool
}

// Fallback is the software-only adapter used when no device is present.
// Every operation fails fast with ErrUnavailable and Healthy reports false,
// which keeps callers on the software path.
type Fallback struct{}

func (Fallback) Send(*Message) error                 { return ErrUnavailable }
func (Fallback) Receive(*Message) error              { return ErrUnavailable }
func (Fallback) BestQuote(uint32, *Quote) error      { return ErrUnavailable }
func (Fallback) SendBatch([]Message) (int, error)    { return 0, ErrUnavailable }
func (Fallback) ReceiveBatch([]Message) (int, error) { return 0, ErrUnavailable }
func (Fallback) Healthy() bool                       { return false }
