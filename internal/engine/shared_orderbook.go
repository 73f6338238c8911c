package engine

import (
	"sync"

	"github.com/rs/zerolog/log"

	"fenrir/internal/common"
)

// SharedOrderBook is a mutex-guarded facade over OrderBook, suitable for
// concurrent callers. The lock is held only for the duration of one
// operation — matching is write-heavy, so a plain mutex is used rather
// than a reader-writer lock.
type SharedOrderBook struct {
	mu   sync.Mutex
	book *OrderBook
}

// NewSharedOrderBook creates a concurrency-safe book for symbol.
func NewSharedOrderBook(symbol string) *SharedOrderBook {
	return &SharedOrderBook{book: NewOrderBook(symbol)}
}

// Submit places an order. Concurrent submits are serialized by this
// lock, and that serialization order is the matching order — this is
// what establishes price-time priority under concurrency.
func (s *SharedOrderBook) Submit(order common.Order) (common.Order, []common.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, trades, err := s.book.Submit(order)
	if err != nil {
		log.Debug().
			Err(err).
			Str("symbol", s.book.Symbol).
			Msg("order rejected")
	}
	return updated, trades, err
}

// Cancel removes an order. Returns false for an already-filled,
// already-cancelled, or unknown order id — this is not an error.
func (s *SharedOrderBook) Cancel(orderID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Cancel(orderID)
}

func (s *SharedOrderBook) BestBid() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.BestBid()
}

func (s *SharedOrderBook) BestAsk() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.BestAsk()
}

func (s *SharedOrderBook) Spread() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Spread()
}

func (s *SharedOrderBook) MidPrice() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.MidPrice()
}

func (s *SharedOrderBook) GetDepth(k int) (bids, asks []DepthLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.GetDepth(k)
}

func (s *SharedOrderBook) ActiveOrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.ActiveOrderCount()
}

// Symbol returns the symbol this book trades.
func (s *SharedOrderBook) Symbol() string {
	return s.book.Symbol
}
