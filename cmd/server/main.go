package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fenrir/internal/engine"
	"fenrir/internal/feed"
	"fenrir/internal/marketdata"
)

func main() {
	configPath := flag.String("feed-config", "", "path to a feed config YAML file (optional)")
	symbolsFlag := flag.String("symbols", "BTCUSDT,ETHUSDT", "comma-separated symbols to run matching engines for")
	logLevel := flag.String("log-level", "info", "zerolog level: debug, info, warn, error")
	flag.Parse()

	setupLogging(*logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	symbols := splitSymbols(*symbolsFlag)
	books := make(map[string]*engine.SharedOrderBook, len(symbols))
	for _, sym := range symbols {
		books[sym] = engine.NewSharedOrderBook(sym)
	}
	store := marketdata.NewStore(symbols)

	log.Info().Strs("symbols", symbols).Msg("starting exchange")

	go reportBookStats(ctx, books)

	var feeds []*feed.ExchangeFeed
	if *configPath != "" {
		cfg, err := feed.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load feed config")
		}
		if err := cfg.Validate(); err != nil {
			log.Fatal().Err(err).Msg("invalid feed config")
		}
		f := feed.NewExchangeFeed(cfg, store)
		f.Start(ctx)
		feeds = append(feeds, f)
	} else {
		log.Warn().Msg("no feed config provided, running with the matching engine only")
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, f := range feeds {
		if err := f.Stop(); err != nil && shutdownCtx.Err() == nil {
			log.Warn().Err(err).Msg("feed shutdown error")
		}
	}
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		l = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(l)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

// reportBookStats periodically logs best bid/ask and resting order
// count for every book, as a stand-in for a metrics exporter.
func reportBookStats(ctx context.Context, books map[string]*engine.SharedOrderBook) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for sym, b := range books {
				bid, bidOk := b.BestBid()
				ask, askOk := b.BestAsk()
				event := log.Debug().Str("symbol", sym).Int("active_orders", b.ActiveOrderCount())
				if bidOk {
					event = event.Float64("best_bid", bid)
				}
				if askOk {
					event = event.Float64("best_ask", ask)
				}
				event.Msg("book snapshot")
			}
		}
	}
}

func splitSymbols(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
