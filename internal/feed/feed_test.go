package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/marketdata"
)

func TestStreamSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", streamSymbol("btcusdt@ticker"))
	assert.Equal(t, "ETHUSDT", streamSymbol("ethusdt@depth10"))
}

func TestIsTickerAndDepthStream(t *testing.T) {
	assert.True(t, isTickerStream("btcusdt@ticker"))
	assert.True(t, isTickerStream("btcusdt@miniTicker"))
	assert.False(t, isTickerStream("btcusdt@depth10"))

	assert.True(t, isDepthStream("btcusdt@depth20"))
	assert.False(t, isDepthStream("btcusdt@ticker"))
}

func TestParseTicker(t *testing.T) {
	raw := json.RawMessage(`{"s":"BTCUSDT","c":"50000.00","b":"49990.50","a":"50010.25"}`)
	msg, err := parseTicker(raw)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", msg.Symbol)
	assert.Equal(t, 50000.0, parseFloat(msg.LastPrice))
	assert.Equal(t, 49990.5, parseFloat(msg.BestBid))
	assert.Equal(t, 50010.25, parseFloat(msg.BestAsk))
}

func TestParseDepth(t *testing.T) {
	raw := json.RawMessage(`{"bids":[["100.0","1.5"],["99.5","2.0"]],"asks":[["100.5","0.5"]]}`)
	msg, err := parseDepth(raw)
	require.NoError(t, err)
	require.Len(t, msg.Bids, 2)
	require.Len(t, msg.Asks, 1)

	levels := toLevels(msg.Bids)
	assert.Equal(t, []marketdata.Level{{Price: 100.0, Quantity: 1.5}, {Price: 99.5, Quantity: 2.0}}, levels)
}

func TestExchangeFeed_TickerAndDepthURLsAreIndependent(t *testing.T) {
	cfg := Config{
		StreamURL:   "wss://stream.binance.com:9443/stream",
		Symbols:     []string{"BTCUSDT", "ETHUSDT"},
		DepthLevels: 20,
	}
	f := NewExchangeFeed(cfg, marketdata.NewStore(cfg.Symbols))

	tickerURL := f.tickerURL()
	assert.Contains(t, tickerURL, "btcusdt@ticker")
	assert.Contains(t, tickerURL, "ethusdt@ticker")
	assert.NotContains(t, tickerURL, "@depth")

	depthURL := f.depthURL()
	assert.Contains(t, depthURL, "btcusdt@depth20@100ms")
	assert.Contains(t, depthURL, "ethusdt@depth20@100ms")
	assert.NotContains(t, depthURL, "@ticker")
}

// Scenario S6: a ticker update arrives on the ticker subscriber's own
// stream and lands in the market data store, with spread derived from
// best bid/ask.
func TestScenario_S6_TickerUpdateReachesStore(t *testing.T) {
	store := marketdata.NewStore([]string{"BTCUSDT"})
	f := NewExchangeFeed(Config{Symbols: []string{"BTCUSDT"}}, store)

	envelope := []byte(`{"stream":"btcusdt@ticker","data":{"s":"BTCUSDT","c":"67234.56","b":"67234.00","a":"67235.00"}}`)
	f.handleTickerMessage(envelope)

	snap, ok := store.Lookup("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 67234.56, snap.LastPrice)
	assert.Equal(t, 67234.00, snap.BestBid)
	assert.Equal(t, 67235.00, snap.BestAsk)
	assert.InDelta(t, 1.00, snap.Spread, 1e-9)
}

func TestHandleDepthMessage(t *testing.T) {
	store := marketdata.NewStore([]string{"BTCUSDT"})
	f := NewExchangeFeed(Config{Symbols: []string{"BTCUSDT"}}, store)

	envelope := []byte(`{"stream":"btcusdt@depth10","data":{"bids":[["100","1"]],"asks":[["101","2"]]}}`)
	f.handleDepthMessage(envelope)

	snap, ok := store.Lookup("BTCUSDT")
	require.True(t, ok)
	require.Len(t, snap.Bids, 1)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, 100.0, snap.Bids[0].Price)
	assert.Equal(t, 101.0, snap.Asks[0].Price)
}

func TestHandleTickerMessage_IgnoresMalformedEnvelope(t *testing.T) {
	store := marketdata.NewStore([]string{"BTCUSDT"})
	f := NewExchangeFeed(Config{Symbols: []string{"BTCUSDT"}}, store)

	assert.NotPanics(t, func() {
		f.handleTickerMessage([]byte(`not json`))
	})
	snap, ok := store.Lookup("BTCUSDT")
	require.True(t, ok)
	assert.True(t, snap.UpdatedAt.IsZero(), "a malformed message must not update the store")
}

func TestHandleTickerMessage_WarnsOnWrongStreamType(t *testing.T) {
	store := marketdata.NewStore([]string{"BTCUSDT"})
	f := NewExchangeFeed(Config{Symbols: []string{"BTCUSDT"}}, store)

	envelope := []byte(`{"stream":"btcusdt@depth10","data":{"bids":[],"asks":[]}}`)
	f.handleTickerMessage(envelope)

	snap, ok := store.Lookup("BTCUSDT")
	require.True(t, ok)
	assert.True(t, snap.UpdatedAt.IsZero(), "a depth payload delivered to the ticker handler must not update the store")
}

func TestHandleDepthMessage_WarnsOnWrongStreamType(t *testing.T) {
	store := marketdata.NewStore([]string{"BTCUSDT"})
	f := NewExchangeFeed(Config{Symbols: []string{"BTCUSDT"}}, store)

	envelope := []byte(`{"stream":"btcusdt@ticker","data":{"s":"BTCUSDT","c":"1","b":"1","a":"1"}}`)
	f.handleDepthMessage(envelope)

	snap, _ := store.Lookup("BTCUSDT")
	assert.Nil(t, snap.Bids, "a ticker payload delivered to the depth handler must not update the store")
}

// TestExchangeFeed_TickerSubscriberReconnectsAfterServerDrop exercises
// the ticker subscriber's own dial/read/reconnect loop in isolation,
// against a fake server that accepts one connection, drops it, then
// accepts a second and sends a ticker message.
func TestExchangeFeed_TickerSubscriberReconnectsAfterServerDrop(t *testing.T) {
	var upgrader websocket.Upgrader
	var attempts int32
	done := make(chan struct{}, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		n := atomic.AddInt32(&attempts, 1)

		if n == 1 {
			conn.Close()
			return
		}

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@ticker","data":{"s":"BTCUSDT","c":"1","b":"1","a":"1"}}`))
		select {
		case done <- struct{}{}:
		default:
		}
		time.Sleep(50 * time.Millisecond)
		conn.Close()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	store := marketdata.NewStore([]string{"BTCUSDT"})
	cfg := Config{
		StreamURL:             wsURL,
		Symbols:               []string{"BTCUSDT"},
		DepthLevels:           10,
		ReconnectDelaySeconds: 1,
		MaxReconnectDelaySec:  1,
		IdleTimeoutSeconds:    5,
	}
	f := NewExchangeFeed(cfg, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.t.Go(func() error {
		return f.subscriberLoop(ctx, "ticker", wsURL, f.handleTickerMessage)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ticker subscriber never reconnected and received the ticker")
	}

	cancel()
	_ = f.Stop()

	snap, ok := store.Lookup("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 1.0, snap.LastPrice)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(2))
}
