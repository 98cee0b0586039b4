package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"time"
)

// itchgen generates a synthetic ITCH 5.0 stream and sends it over UDP.
// It keeps a set of live orders per symbol so executes, cancels, deletes
// and replaces always reference real order ids.

var stocks = []string{"AAPL", "MSFT", "NVDA", "AMZN", "GOOG", "META", "TSLA", "AVGO"}

const (
	basePrice   = 1_500_000 // 150.0000 in 1e-4 units
	priceJitter = 10_000
)

type liveOrder struct {
	ref    uint64
	side   byte
	shares uint32
	price  uint32
}

type generator struct {
	rng      *rand.Rand
	nextRef  uint64
	match    uint64
	track    []uint16
	orders   [][]liveOrder
	midnight time.Time
}

func newGenerator(seed int64) *generator {
	now := time.Now()
	return &generator{
		rng:      rand.New(rand.NewSource(seed)),
		nextRef:  1,
		track:    make([]uint16, len(stocks)),
		orders:   make([][]liveOrder, len(stocks)),
		midnight: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
	}
}

func (g *generator) prefix(locate int, typ byte) []byte {
	g.track[locate]++
	b := binary.BigEndian.AppendUint16(nil, uint16(locate))
	b = binary.BigEndian.AppendUint16(b, g.track[locate])
	b = binary.BigEndian.AppendUint64(b, uint64(time.Since(g.midnight).Nanoseconds()))
	return append(b, typ)
}

func (g *generator) systemEvent(code byte) []byte {
	return append(g.prefix(0, 'S'), code)
}

func (g *generator) directory(locate int) []byte {
	b := g.prefix(locate, 'R')
	var sym [8]byte
	copy(sym[:], stocks[locate])
	for i := len(stocks[locate]); i < 8; i++ {
		sym[i] = ' '
	}
	b = append(b, sym[:]...)
	b = append(b, 'Q', 'N')                   // market category, financial status
	b = binary.BigEndian.AppendUint32(b, 100) // round lot size
	b = append(b, 'N', 'C', 'Z', ' ', 'P', 'N', 'N', '1', 'N')
	b = binary.BigEndian.AppendUint32(b, 0) // etp leverage factor
	return append(b, 'N')                   // inverse indicator
}

func (g *generator) add(locate int) []byte {
	side := byte('B')
	if g.rng.Intn(2) == 1 {
		side = 'S'
	}
	offset := uint32(g.rng.Intn(priceJitter))
	price := uint32(basePrice) - offset
	if side == 'S' {
		price = uint32(basePrice) + offset
	}
	o := liveOrder{
		ref:    g.nextRef,
		side:   side,
		shares: uint32(1+g.rng.Intn(10)) * 100,
		price:  price,
	}
	g.nextRef++
	g.orders[locate] = append(g.orders[locate], o)

	b := g.prefix(locate, 'A')
	b = binary.BigEndian.AppendUint64(b, o.ref)
	b = append(b, o.side)
	b = binary.BigEndian.AppendUint32(b, o.shares)
	var sym [8]byte
	copy(sym[:], stocks[locate])
	for i := len(stocks[locate]); i < 8; i++ {
		sym[i] = ' '
	}
	b = append(b, sym[:]...)
	return binary.BigEndian.AppendUint32(b, o.price)
}

func (g *generator) execute(locate, idx int) []byte {
	o := &g.orders[locate][idx]
	shares := o.shares
	if shares > 100 {
		shares = 100
	}
	o.shares -= shares
	g.match++

	b := g.prefix(locate, 'E')
	b = binary.BigEndian.AppendUint64(b, o.ref)
	b = binary.BigEndian.AppendUint32(b, shares)
	b = binary.BigEndian.AppendUint64(b, g.match)
	if o.shares == 0 {
		g.drop(locate, idx)
	}
	return b
}

func (g *generator) cancel(locate, idx int) []byte {
	o := &g.orders[locate][idx]
	shares := o.shares / 2
	if shares == 0 {
		shares = o.shares
	}
	o.shares -= shares

	b := g.prefix(locate, 'X')
	b = binary.BigEndian.AppendUint64(b, o.ref)
	b = binary.BigEndian.AppendUint32(b, shares)
	if o.shares == 0 {
		g.drop(locate, idx)
	}
	return b
}

func (g *generator) delete(locate, idx int) []byte {
	ref := g.orders[locate][idx].ref
	g.drop(locate, idx)
	b := g.prefix(locate, 'D')
	return binary.BigEndian.AppendUint64(b, ref)
}

func (g *generator) replace(locate, idx int) []byte {
	o := &g.orders[locate][idx]
	oldRef := o.ref
	o.ref = g.nextRef
	g.nextRef++
	o.price += uint32(g.rng.Intn(200)) - 100

	b := g.prefix(locate, 'U')
	b = binary.BigEndian.AppendUint64(b, oldRef)
	b = binary.BigEndian.AppendUint64(b, o.ref)
	b = binary.BigEndian.AppendUint32(b, o.shares)
	return binary.BigEndian.AppendUint32(b, o.price)
}

func (g *generator) trade(locate int) []byte {
	g.match++
	b := g.prefix(locate, 'P')
	b = binary.BigEndian.AppendUint64(b, 0) // non-displayable reference
	b = append(b, 'B')
	b = binary.BigEndian.AppendUint32(b, 100)
	var sym [8]byte
	copy(sym[:], stocks[locate])
	for i := len(stocks[locate]); i < 8; i++ {
		sym[i] = ' '
	}
	b = append(b, sym[:]...)
	b = binary.BigEndian.AppendUint32(b, basePrice)
	return binary.BigEndian.AppendUint64(b, g.match)
}

func (g *generator) drop(locate, idx int) {
	live := g.orders[locate]
	live[idx] = live[len(live)-1]
	g.orders[locate] = live[:len(live)-1]
}

// next produces one message body, biased towards adds so books stay deep.
func (g *generator) next() []byte {
	locate := g.rng.Intn(len(stocks))
	live := g.orders[locate]
	if len(live) == 0 {
		return g.add(locate)
	}
	idx := g.rng.Intn(len(live))
	switch g.rng.Intn(10) {
	case 0, 1, 2, 3:
		return g.add(locate)
	case 4, 5:
		return g.execute(locate, idx)
	case 6:
		return g.cancel(locate, idx)
	case 7:
		return g.delete(locate, idx)
	case 8:
		return g.replace(locate, idx)
	default:
		return g.trade(locate)
	}
}

func frame(packet, body []byte) []byte {
	packet = binary.BigEndian.AppendUint16(packet, uint16(len(body)+2))
	return append(packet, body...)
}

func main() {
	var (
		addr    = flag.String("addr", "127.0.0.1:26400", "destination UDP address")
		rate    = flag.Int("rate", 10_000, "packets per second")
		count   = flag.Int("count", 0, "packets to send (0 runs forever)")
		perPack = flag.Int("messages", 8, "messages per packet")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	)
	flag.Parse()

	conn, err := net.Dial("udp4", *addr)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	g := newGenerator(*seed)

	// Announce start of messages and the instrument directory up front.
	dir := frame(nil, g.systemEvent('S'))
	for locate := range stocks {
		dir = frame(dir, g.directory(locate))
	}
	if _, err := conn.Write(dir); err != nil {
		log.Fatal(err)
	}

	interval := time.Second / time.Duration(*rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	sent := 0
	for range ticker.C {
		var packet []byte
		for i := 0; i < *perPack; i++ {
			packet = frame(packet, g.next())
		}
		if _, err := conn.Write(packet); err != nil {
			log.Fatal(err)
		}
		sent++
		if sent%100_000 == 0 {
			elapsed := time.Since(start)
			fmt.Printf("sent %d packets (%d msg) in %s, %.0f pkt/s\n",
				sent, sent**perPack, elapsed.Round(time.Millisecond),
				float64(sent)/elapsed.Seconds())
		}
		if *count > 0 && sent >= *count {
			break
		}
	}
	fmt.Printf("done: %d packets, %d messages\n", sent, sent**perPack)
}
