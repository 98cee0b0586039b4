package feed

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exposes engine statistics as Prometheus metrics. It is a
// pull-style collector: Collect snapshots the engine counters, so scraping
// never touches the hot path.
type MetricsCollector struct {
	engine *Engine

	packetsReceived *prometheus.Desc
	packetsDropped  *prometheus.Desc
	bytesReceived   *prometheus.Desc
	receiveErrors   *prometheus.Desc
	recoveries      *prometheus.Desc

	messagesParsed *prometheus.Desc
	parseErrors    *prometheus.Desc
	sequenceGaps   *prometheus.Desc
	symbols        *prometheus.Desc

	messagesProcessed *prometheus.Desc
	bookUpdates       *prometheus.Desc
	bookErrors        *prometheus.Desc
	books             *prometheus.Desc
	ordersAllocated   *prometheus.Desc

	dispatched  *prometheus.Desc
	delivered   *prometheus.Desc
	dropped     *prometheus.Desc
	subscribers *prometheus.Desc

	processingLatency *prometheus.Desc
	endToEndLatency   *prometheus.Desc

	healthy *prometheus.Desc
}

// NewMetricsCollector builds a collector for the given engine. Register it
// with a prometheus.Registerer to expose the metrics.
func NewMetricsCollector(e *Engine) *MetricsCollector {
	ns := "feed"
	return &MetricsCollector{
		engine: e,

		packetsReceived: prometheus.NewDesc(ns+"_capture_packets_received_total", "Datagrams captured.", nil, nil),
		packetsDropped:  prometheus.NewDesc(ns+"_capture_packets_dropped_total", "Datagrams dropped on full ring or exhausted pool.", nil, nil),
		bytesReceived:   prometheus.NewDesc(ns+"_capture_bytes_received_total", "Payload bytes captured.", nil, nil),
		receiveErrors:   prometheus.NewDesc(ns+"_capture_errors_total", "Socket receive errors.", nil, nil),
		recoveries:      prometheus.NewDesc(ns+"_capture_recoveries_total", "Successful socket recoveries.", nil, nil),

		messagesParsed: prometheus.NewDesc(ns+"_decoder_messages_total", "Normalized messages decoded.", nil, nil),
		parseErrors:    prometheus.NewDesc(ns+"_decoder_parse_errors_total", "Malformed frames.", nil, nil),
		sequenceGaps:   prometheus.NewDesc(ns+"_decoder_sequence_gaps_total", "Tracking number gaps.", nil, nil),
		symbols:        prometheus.NewDesc(ns+"_decoder_symbols", "Distinct instruments seen.", nil, nil),

		messagesProcessed: prometheus.NewDesc(ns+"_engine_messages_total", "Messages through the decode thread.", nil, nil),
		bookUpdates:       prometheus.NewDesc(ns+"_book_updates_total", "Successful book mutations.", nil, nil),
		bookErrors:        prometheus.NewDesc(ns+"_book_errors_total", "Rejected book mutations.", nil, nil),
		books:             prometheus.NewDesc(ns+"_books", "Live order books.", nil, nil),
		ordersAllocated:   prometheus.NewDesc(ns+"_orders_allocated", "Orders resting across all books.", nil, nil),

		dispatched:  prometheus.NewDesc(ns+"_dispatch_messages_total", "Messages offered to subscribers.", nil, nil),
		delivered:   prometheus.NewDesc(ns+"_dispatch_delivered_total", "Messages delivered to subscriber callbacks.", nil, nil),
		dropped:     prometheus.NewDesc(ns+"_dispatch_dropped_total", "Messages dropped on full subscriber rings.", nil, nil),
		subscribers: prometheus.NewDesc(ns+"_dispatch_subscribers", "Attached subscribers.", nil, nil),

		processingLatency: prometheus.NewDesc(ns+"_processing_latency_nanoseconds", "Per-packet decode and book latency.", nil, nil),
		endToEndLatency:   prometheus.NewDesc(ns+"_end_to_end_latency_nanoseconds", "Capture to dispatch latency.", nil, nil),

		healthy: prometheus.NewDesc(ns+"_healthy", "Engine health boolean.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.packetsReceived
	ch <- c.packetsDropped
	ch <- c.bytesReceived
	ch <- c.receiveErrors
	ch <- c.recoveries
	ch <- c.messagesParsed
	ch <- c.parseErrors
	ch <- c.sequenceGaps
	ch <- c.symbols
	ch <- c.messagesProcessed
	ch <- c.bookUpdates
	ch <- c.bookErrors
	ch <- c.books
	ch <- c.ordersAllocated
	ch <- c.dispatched
	ch <- c.delivered
	ch <- c.dropped
	ch <- c.subscribers
	ch <- c.processingLatency
	ch <- c.endToEndLatency
	ch <- c.healthy
}

// Collect implements prometheus.Collector.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.engine.Statistics()

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(c.packetsReceived, s.Capture.PacketsReceived)
	counter(c.packetsDropped, s.Capture.PacketsDropped)
	counter(c.bytesReceived, s.Capture.BytesReceived)
	counter(c.receiveErrors, s.Capture.ReceiveErrors)
	counter(c.recoveries, s.Capture.Recoveries)

	counter(c.messagesParsed, s.Parser.MessagesParsed)
	counter(c.parseErrors, s.Parser.ParseErrors)
	counter(c.sequenceGaps, s.Parser.SequenceGaps)
	gauge(c.symbols, float64(s.Parser.SymbolsDiscovered))

	counter(c.messagesProcessed, s.MessagesProcessed)
	counter(c.bookUpdates, s.BookUpdates)
	counter(c.bookErrors, s.BookErrors)
	gauge(c.books, float64(s.Books))
	gauge(c.ordersAllocated, float64(s.OrdersAllocated))

	counter(c.dispatched, s.Dispatch.Dispatched)
	counter(c.delivered, s.Dispatch.Delivered)
	counter(c.dropped, s.Dispatch.Dropped)
	gauge(c.subscribers, float64(s.Dispatch.Subscribers))

	ch <- latencyHistogram(c.processingLatency, s.Processing)
	ch <- latencyHistogram(c.endToEndLatency, s.EndToEnd)

	health := 0.0
	if s.Healthy {
		health = 1.0
	}
	gauge(c.healthy, health)
}

// latencyHistogram converts a LatencySnapshot into a constant Prometheus
// histogram with cumulative bucket counts.
func latencyHistogram(desc *prometheus.Desc, snap LatencySnapshot) prometheus.Metric {
	buckets := make(map[float64]uint64, LatencyBuckets-1)
	cumulative := uint64(0)
	for i := 0; i < LatencyBuckets; i++ {
		cumulative += snap.Buckets[i]
		bound := BucketBound(i)
		if bound == math.MaxUint64 {
			continue // the +Inf bucket is implied by the total count
		}
		buckets[float64(bound)] = cumulative
	}
	return prometheus.MustNewConstHistogram(desc, snap.Count, float64(snap.Mean*snap.Count), buckets)
}
