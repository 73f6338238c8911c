package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/marketdata"
)

// ExchangeFeed maintains two independent combined-stream WebSocket
// connections to an exchange — one for ticker updates, one for depth
// updates — and mirrors them into a marketdata.Store. Each stream
// reconnects with its own exponential backoff; a disconnect on one
// never affects the other, per spec's two-subscriber design.
type ExchangeFeed struct {
	cfg   Config
	store *marketdata.Store
	t     tomb.Tomb
}

// NewExchangeFeed creates a feed that writes into store. store must
// already be configured with cfg.Symbols.
func NewExchangeFeed(cfg Config, store *marketdata.Store) *ExchangeFeed {
	return &ExchangeFeed{cfg: cfg, store: store}
}

// Start launches the ticker and depth subscriber loops, each under its
// own goroutine tracked by the feed's tomb. Stop (or cancelling ctx)
// shuts both down; Stop also blocks until they have exited.
func (f *ExchangeFeed) Start(ctx context.Context) {
	f.t.Go(func() error {
		return f.subscriberLoop(ctx, "ticker", f.tickerURL(), f.handleTickerMessage)
	})
	f.t.Go(func() error {
		return f.subscriberLoop(ctx, "depth", f.depthURL(), f.handleDepthMessage)
	})
}

// Stop requests both subscriber loops to shut down and waits for them to exit.
func (f *ExchangeFeed) Stop() error {
	f.t.Kill(nil)
	return f.t.Wait()
}

// subscriberLoop owns one WebSocket connection's full lifecycle —
// Disconnected, Connecting (dial), Connected (read loop) — and
// reconnects with its own exponential backoff on failure. It only
// returns when ctx is cancelled or the feed is stopped, so a failure
// here never kills the sibling subscriber loop sharing this tomb.
func (f *ExchangeFeed) subscriberLoop(ctx context.Context, name, streamURL string, handle func([]byte)) error {
	backoff := f.cfg.ReconnectDelay()

	for {
		err := f.connectAndRead(ctx, streamURL, handle)
		select {
		case <-f.t.Dying():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		log.Warn().
			Err(err).
			Str("subscriber", name).
			Dur("backoff", backoff).
			Str("url", streamURL).
			Msg("market data subscriber disconnected, reconnecting")

		select {
		case <-f.t.Dying():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if max := f.cfg.MaxReconnectDelay(); backoff > max {
			backoff = max
		}
	}
}

func (f *ExchangeFeed) connectAndRead(ctx context.Context, streamURL string, handle func([]byte)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	log.Info().Str("url", streamURL).Msg("market data subscriber connected")

	idleTimeout := f.cfg.IdleTimeout()
	for {
		select {
		case <-f.t.Dying():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		handle(msg)
	}
}

// tickerURL builds the combined-stream subscription URL for every
// configured symbol's ticker stream.
func (f *ExchangeFeed) tickerURL() string {
	streams := make([]string, 0, len(f.cfg.Symbols))
	for _, sym := range f.cfg.Symbols {
		streams = append(streams, strings.ToLower(sym)+"@ticker")
	}
	return f.buildURL(streams)
}

// depthURL builds the combined-stream subscription URL for every
// configured symbol's partial-depth stream, at the configured depth
// and the fastest supported update interval.
func (f *ExchangeFeed) depthURL() string {
	streams := make([]string, 0, len(f.cfg.Symbols))
	for _, sym := range f.cfg.Symbols {
		streams = append(streams, fmt.Sprintf("%s@depth%d@100ms", strings.ToLower(sym), f.cfg.DepthLevels))
	}
	return f.buildURL(streams)
}

func (f *ExchangeFeed) buildURL(streams []string) string {
	return f.cfg.StreamURL + "?streams=" + strings.Join(streams, "/")
}

func (f *ExchangeFeed) handleTickerMessage(raw []byte) {
	var envelope combinedEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		log.Debug().Err(err).Msg("ignoring non-envelope ticker message")
		return
	}
	if !isTickerStream(envelope.Stream) {
		log.Warn().Str("stream", envelope.Stream).Msg("unexpected stream on ticker subscriber")
		return
	}

	ticker, err := parseTicker(envelope.Data)
	if err != nil {
		log.Error().Err(err).Str("stream", envelope.Stream).Msg("failed to parse ticker")
		return
	}

	symbol := ticker.Symbol
	if symbol == "" {
		symbol = streamSymbol(envelope.Stream)
	}
	f.store.UpdateTicker(symbol, parseFloat(ticker.LastPrice), parseFloat(ticker.BestBid), parseFloat(ticker.BestAsk), time.Now())
}

func (f *ExchangeFeed) handleDepthMessage(raw []byte) {
	var envelope combinedEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		log.Debug().Err(err).Msg("ignoring non-envelope depth message")
		return
	}
	if !isDepthStream(envelope.Stream) {
		log.Warn().Str("stream", envelope.Stream).Msg("unexpected stream on depth subscriber")
		return
	}

	depth, err := parseDepth(envelope.Data)
	if err != nil {
		log.Error().Err(err).Str("stream", envelope.Stream).Msg("failed to parse depth")
		return
	}

	symbol := streamSymbol(envelope.Stream)
	f.store.UpdateDepth(symbol, toLevels(depth.Bids), toLevels(depth.Asks), time.Now())
}
