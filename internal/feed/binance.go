package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"fenrir/internal/marketdata"
)

// combinedEnvelope wraps every message on a Binance-style combined
// stream: {"stream":"<name>","data":{...}}.
type combinedEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// tickerMessage is the 24hr mini-ticker payload carried by a "@ticker"
// or "@miniTicker" stream.
type tickerMessage struct {
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
	BestBid   string `json:"b"`
	BestAsk   string `json:"a"`
}

// depthMessage is the partial book depth payload carried by a
// "@depth<N>" stream: bids/asks are each [price, quantity] string pairs.
type depthMessage struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

// streamSymbol extracts the upper-cased symbol a stream name refers to,
// e.g. "btcusdt@ticker" -> "BTCUSDT".
func streamSymbol(stream string) string {
	name, _, _ := strings.Cut(stream, "@")
	return strings.ToUpper(name)
}

// isTickerStream reports whether stream carries tickerMessage payloads.
func isTickerStream(stream string) bool {
	return strings.Contains(stream, "@ticker") || strings.Contains(stream, "@miniTicker")
}

// isDepthStream reports whether stream carries depthMessage payloads.
func isDepthStream(stream string) bool {
	return strings.Contains(stream, "@depth")
}

func parseTicker(raw json.RawMessage) (tickerMessage, error) {
	var msg tickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return tickerMessage{}, fmt.Errorf("unmarshal ticker: %w", err)
	}
	return msg, nil
}

func parseDepth(raw json.RawMessage) (depthMessage, error) {
	var msg depthMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return depthMessage{}, fmt.Errorf("unmarshal depth: %w", err)
	}
	return msg, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func toLevels(pairs [][2]string) []marketdata.Level {
	levels := make([]marketdata.Level, 0, len(pairs))
	for _, p := range pairs {
		levels = append(levels, marketdata.Level{Price: parseFloat(p[0]), Quantity: parseFloat(p[1])})
	}
	return levels
}
