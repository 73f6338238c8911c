package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/common"
)

func TestSharedOrderBook_ConcurrentSubmitsAreSerialized(t *testing.T) {
	s := NewSharedOrderBook("BTCUSDT")

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _, err := s.Submit(limitOrder(common.Sell, 100, 1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, n, s.ActiveOrderCount())

	// every resting order must have been assigned a distinct id despite
	// the concurrent submission: the mutex fully serializes Submit.
	bids, asks := s.GetDepth(1)
	assert.Empty(t, bids)
	require.Len(t, asks, 1)
	assert.Equal(t, float64(n), asks[0].Quantity)
}

func TestSharedOrderBook_SerializationPreservesArrivalMatching(t *testing.T) {
	s := NewSharedOrderBook("BTCUSDT")

	var restingIDs []uint64
	var mu sync.Mutex
	var wg sync.WaitGroup
	const n = 50
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			updated, _, err := s.Submit(limitOrder(common.Sell, 100, 1))
			require.NoError(t, err)
			mu.Lock()
			restingIDs = append(restingIDs, updated.ID)
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, restingIDs, n)

	_, trades, err := s.Submit(limitOrder(common.Buy, 100, float64(n)))
	require.NoError(t, err)
	require.Len(t, trades, n)

	seen := make(map[uint64]bool, n)
	for i, tr := range trades {
		assert.False(t, seen[tr.MakerOrderID], "each maker order fills exactly once")
		seen[tr.MakerOrderID] = true
		if i > 0 {
			// ids are assigned inside the lock, so id order is arrival order
			assert.Less(t, trades[i-1].MakerOrderID, tr.MakerOrderID, "makers fill in arrival order")
		}
	}
	assert.Len(t, seen, n)
}

func TestSharedOrderBook_Symbol(t *testing.T) {
	s := NewSharedOrderBook("ETHUSDT")
	assert.Equal(t, "ETHUSDT", s.Symbol())
}

func TestSharedOrderBook_BestBidAskSpreadMidPrice(t *testing.T) {
	s := NewSharedOrderBook("BTCUSDT")
	_, _, err := s.Submit(limitOrder(common.Buy, 99, 1))
	require.NoError(t, err)
	_, _, err = s.Submit(limitOrder(common.Sell, 101, 1))
	require.NoError(t, err)

	bid, ok := s.BestBid()
	require.True(t, ok)
	assert.Equal(t, 99.0, bid)

	ask, ok := s.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 101.0, ask)

	spread, ok := s.Spread()
	require.True(t, ok)
	assert.Equal(t, 2.0, spread)

	mid, ok := s.MidPrice()
	require.True(t, ok)
	assert.Equal(t, 100.0, mid)
}

func TestSharedOrderBook_Cancel(t *testing.T) {
	s := NewSharedOrderBook("BTCUSDT")
	order, _, err := s.Submit(limitOrder(common.Buy, 99, 1))
	require.NoError(t, err)

	assert.True(t, s.Cancel(order.ID))
	assert.False(t, s.Cancel(order.ID))
}
