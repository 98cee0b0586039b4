package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cryptonstudio/crypton-feed-engine/feed"
	_ "github.com/cryptonstudio/crypton-feed-engine/providers/nasdaq/itch"
)

func main() {
	var (
		group       = flag.String("group", "239.192.1.2", "multicast group to join (empty for unicast)")
		port        = flag.Int("port", 26400, "UDP port")
		iface       = flag.String("iface", "", "network interface for the multicast join")
		protocol    = flag.String("protocol", "ITCH-5.0", "feed protocol")
		symbols     = flag.String("symbols", "", "comma-separated instrument ids to log (empty logs all)")
		captureCPU  = flag.Int("cpu-capture", -1, "CPU for the capture thread")
		decodeCPU   = flag.Int("cpu-decode", -1, "CPU for the decode thread")
		dispatchCPU = flag.Int("cpu-dispatch", -1, "CPU for the dispatch thread")
		lockMemory  = flag.Bool("lock-memory", false, "mlock the order arena")
		metricsAddr = flag.String("metrics-addr", "", "expose Prometheus metrics on this address (empty disables)")
		statsEvery  = flag.Duration("stats-interval", 5*time.Second, "statistics log interval")
	)
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	filter, err := parseSymbols(*symbols)
	if err != nil {
		log.Error("invalid -symbols", zap.Error(err))
		os.Exit(1)
	}

	cfg := feed.DefaultConfig(*group, *port)
	cfg.Network.Interface = *iface
	cfg.Decoder.Protocol = *protocol
	cfg.Threading.CaptureCPU = *captureCPU
	cfg.Threading.DecodeCPU = *decodeCPU
	cfg.Threading.DispatchCPU = *dispatchCPU
	cfg.Threading.LockMemory = *lockMemory
	cfg.StatsInterval = *statsEvery
	cfg.Logger = log

	engine := feed.NewEngine(cfg)
	engine.SetErrorCallback(func(err error) {
		log.Warn("feed error", zap.Error(err))
	})
	engine.SetStatsCallback(func(s feed.Statistics) {
		log.Info("statistics",
			zap.Uint64("packets", s.Capture.PacketsReceived),
			zap.Uint64("dropped", s.Capture.PacketsDropped),
			zap.Uint64("messages", s.MessagesProcessed),
			zap.Uint64("book updates", s.BookUpdates),
			zap.Uint64("parse errors", s.Parser.ParseErrors),
			zap.Int("books", s.Books),
			zap.Uint64("e2e p-max ns", s.EndToEnd.Max),
			zap.Bool("healthy", s.Healthy))
	})

	if err := engine.Initialize(); err != nil {
		log.Error("initialize failed", zap.Error(err))
		os.Exit(1)
	}
	if err := engine.AddSubscriber(&quoteLogger{log: log, engine: engine, filter: filter}); err != nil {
		log.Error("subscriber registration failed", zap.Error(err))
		os.Exit(1)
	}

	if *metricsAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(feed.NewMetricsCollector(engine))
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	if err := engine.Start(); err != nil {
		log.Error("start failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("feed engine running",
		zap.String("group", *group),
		zap.Int("port", *port),
		zap.String("protocol", *protocol))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	engine.Stop()
	log.Info("shutdown complete")
}

func parseSymbols(list string) (map[feed.InstrumentID]bool, error) {
	if list == "" {
		return nil, nil
	}
	filter := map[feed.InstrumentID]bool{}
	for _, part := range strings.Split(list, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, err
		}
		filter[feed.InstrumentID(id)] = true
	}
	return filter, nil
}

////////////////////////////////////////////////////////////////

// quoteLogger logs top-of-book changes for the filtered instruments.
type quoteLogger struct {
	log    *zap.Logger
	engine *feed.Engine
	filter map[feed.InstrumentID]bool

	lastBid feed.Price
	lastAsk feed.Price
}

func (q *quoteLogger) Initialize() error { return nil }
func (q *quoteLogger) Shutdown()         {}
func (q *quoteLogger) Name() string      { return "quote-logger" }

func (q *quoteLogger) OnMessage(msg feed.NormalizedMessage) bool {
	if q.filter != nil && !q.filter[msg.Instrument] {
		return true
	}
	book := q.engine.Book(msg.Instrument)
	if book == nil {
		return true
	}
	var bid, ask feed.Price
	if l := book.BestBid(); l != nil {
		bid = l.Price()
	}
	if l := book.BestAsk(); l != nil {
		ask = l.Price()
	}
	if bid == q.lastBid && ask == q.lastAsk {
		return true
	}
	q.lastBid, q.lastAsk = bid, ask
	q.log.Info("top of book",
		zap.Uint32("instrument", msg.Instrument),
		zap.Float64("bid", float64(bid)/feed.PriceScale),
		zap.Float64("ask", float64(ask)/feed.PriceScale))
	return true
}
