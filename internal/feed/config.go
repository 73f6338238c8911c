// Package feed ingests market data from an external exchange over a
// WebSocket feed and writes it into a marketdata.Store.
package feed

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// validDepthLevels are the partial-depth stream sizes a Binance-compatible
// combined stream supports.
var validDepthLevels = map[int]bool{5: true, 10: true, 20: true}

// Config controls one exchange feed: which symbols to subscribe to and
// how aggressively to reconnect on failure. Field names mirror the
// option names of a Binance-compatible combined stream.
type Config struct {
	StreamURL             string   `mapstructure:"stream_url"`
	Symbols               []string `mapstructure:"symbols"`
	DepthLevels           int      `mapstructure:"depth_levels"`
	ReconnectDelaySeconds int      `mapstructure:"reconnect_delay_seconds"`
	MaxReconnectDelaySec  int      `mapstructure:"max_reconnect_delay_seconds"`
	IdleTimeoutSeconds    int      `mapstructure:"idle_timeout_seconds"`
}

// DefaultConfig returns sane defaults for a Binance-compatible combined
// stream, overridable via Load.
func DefaultConfig() Config {
	return Config{
		StreamURL:             "wss://stream.binance.com:9443/stream",
		DepthLevels:           10,
		ReconnectDelaySeconds: 5,
		MaxReconnectDelaySec:  30,
		IdleTimeoutSeconds:    90,
	}
}

// Load reads feed configuration from a YAML file, merged over DefaultConfig.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read feed config: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal feed config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the config names at least one symbol, a depth
// enum the upstream stream actually supports, and sane reconnect/idle
// windows.
func (c Config) Validate() error {
	if c.StreamURL == "" {
		return fmt.Errorf("stream_url is required")
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if !validDepthLevels[c.DepthLevels] {
		return fmt.Errorf("depth_levels must be one of 5, 10, 20 (got %d)", c.DepthLevels)
	}
	if c.ReconnectDelaySeconds < 1 || c.MaxReconnectDelaySec < 1 {
		return fmt.Errorf("reconnect_delay_seconds and max_reconnect_delay_seconds must be >= 1")
	}
	if c.IdleTimeoutSeconds < 1 {
		return fmt.Errorf("idle_timeout_seconds must be >= 1")
	}
	return nil
}

// ReconnectDelay is the initial backoff delay between reconnect attempts.
func (c Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySeconds) * time.Second
}

// MaxReconnectDelay caps the exponential backoff between reconnect attempts.
func (c Config) MaxReconnectDelay() time.Duration {
	return time.Duration(c.MaxReconnectDelaySec) * time.Second
}

// IdleTimeout is the read deadline after which a silent connection is
// treated as dead and reconnected.
func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}
