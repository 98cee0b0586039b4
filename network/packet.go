package network

// MaxPayload is the largest UDP payload a feed packet can carry. Market-data
// feeds stay under the ethernet MTU; anything longer is truncated by the
// receive call and flagged as an error by the decoder's framing checks.
const MaxPayload = 1536

// Packet is one captured UDP datagram. Packets are pool-allocated, handed
// from the capture thread to the decode thread by pointer, and returned to
// the pool after decoding; the payload is never copied in between.
type Packet struct {
	// CaptureNanos is the receive timestamp taken in user space right after
	// the socket read returns.
	CaptureNanos uint64

	// KernelNanos is the kernel receive timestamp when the socket provides
	// one, else zero.
	KernelNanos uint64

	// Sequence numbers packets in capture order, starting at one.
	Sequence uint64

	Length uint32
	_      uint32

	Data [MaxPayload]byte
}

// Payload returns the captured bytes.
func (p *Packet) Payload() []byte {
	return p.Data[:p.Length]
}
