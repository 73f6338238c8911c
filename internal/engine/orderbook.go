// Package engine implements the per-symbol limit order book and its
// price-time priority matching algorithm.
package engine

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/btree"

	"fenrir/internal/book"
	"fenrir/internal/common"
)

// PriceLevels is a side of the book: price levels kept sorted by the
// comparator NewOrderBook builds for that side (descending for bids,
// ascending for asks).
type PriceLevels = btree.BTreeG[*book.PriceLevel]

// DepthLevel is one (price, total quantity) pair returned by GetDepth.
type DepthLevel struct {
	Price    float64
	Quantity float64
}

type orderLocation struct {
	side  common.Side
	price float64
}

// OrderBook is the matching engine for a single symbol. It is not safe
// for concurrent use on its own — see SharedOrderBook.
type OrderBook struct {
	Symbol string

	Bids *PriceLevels // sorted with the best bid (highest price) first
	Asks *PriceLevels // sorted with the best ask (lowest price) first

	ordersIndex map[uint64]orderLocation

	nextOrderID  uint64
	nextTradeSeq uint64

	bidQuantity float64 // aggregate resting quantity on the bid side
	askQuantity float64 // aggregate resting quantity on the ask side
}

// NewOrderBook creates an empty order book for symbol.
func NewOrderBook(symbol string) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *book.PriceLevel) bool {
		return a.Price > b.Price // highest price sorts first
	})
	asks := btree.NewBTreeG(func(a, b *book.PriceLevel) bool {
		return a.Price < b.Price // lowest price sorts first
	})
	return &OrderBook{
		Symbol:      symbol,
		Bids:        bids,
		Asks:        asks,
		ordersIndex: make(map[uint64]orderLocation),
	}
}

// Submit places a new order. It may immediately match (fully or
// partially) against the opposite side; any Limit residual rests on the
// book, any Market residual is discarded. Returns the updated order
// (final status and remaining quantity) and the ordered trades produced.
func (b *OrderBook) Submit(incoming common.Order) (common.Order, []common.Trade, error) {
	if err := b.validate(incoming); err != nil {
		return common.Order{}, nil, err
	}

	if incoming.ID == 0 {
		b.nextOrderID++
		incoming.ID = b.nextOrderID
	} else if _, exists := b.ordersIndex[incoming.ID]; exists {
		return common.Order{}, nil, common.ErrDuplicateOrderID
	}

	incoming.Symbol = b.Symbol
	incoming.RemainingQuantity = incoming.Quantity
	incoming.Status = common.Pending
	if incoming.Timestamp.IsZero() {
		incoming.Timestamp = time.Now()
	}

	trades := b.match(&incoming)

	switch incoming.Type {
	case common.MarketOrder:
		if incoming.RemainingQuantity > 0 {
			incoming.Status = common.Cancelled
		}
	default: // LimitOrder
		if incoming.RemainingQuantity > 0 {
			b.restLimit(&incoming)
			if len(trades) > 0 {
				incoming.Status = common.PartiallyFilled
			}
		}
	}

	return incoming, trades, nil
}

func (b *OrderBook) validate(order common.Order) error {
	if order.Symbol != "" && order.Symbol != b.Symbol {
		return common.ErrUnknownSymbol
	}
	if order.Quantity <= 0 || math.IsNaN(order.Quantity) || math.IsInf(order.Quantity, 0) {
		return common.ErrInvalidOrder
	}
	if order.Type == common.LimitOrder {
		if order.Price <= 0 || math.IsNaN(order.Price) || math.IsInf(order.Price, 0) {
			return common.ErrInvalidOrder
		}
	}
	return nil
}

// match sweeps incoming against the opposite side while prices cross,
// consuming resting orders strictly in arrival order within each level.
func (b *OrderBook) match(incoming *common.Order) []common.Trade {
	var trades []common.Trade

	opposite := b.Asks
	if incoming.Side == common.Sell {
		opposite = b.Bids
	}

	for incoming.RemainingQuantity > 0 {
		level, ok := opposite.MinMut()
		if !ok {
			break
		}

		if incoming.Type == common.LimitOrder && !crossable(incoming.Side, incoming.Price, level.Price) {
			break
		}

		resting := level.Head()
		if resting == nil {
			opposite.Delete(level)
			continue
		}

		fill := math.Min(incoming.RemainingQuantity, resting.RemainingQuantity)

		b.nextTradeSeq++
		trades = append(trades, common.Trade{
			ID:           uuid.New().String(),
			Symbol:       b.Symbol,
			Price:        level.Price,
			Quantity:     fill,
			MakerOrderID: resting.ID,
			TakerOrderID: incoming.ID,
			Timestamp:    time.Now(),
		})

		restingID := resting.ID
		restingFullyFilled := fill == resting.RemainingQuantity

		_ = level.ConsumeHead(fill) // pre-bounded by fill computation above
		incoming.RemainingQuantity -= fill
		if incoming.RemainingQuantity == 0 {
			incoming.Status = common.Filled
		} else {
			incoming.Status = common.PartiallyFilled
		}

		if incoming.Side == common.Buy {
			b.askQuantity -= fill
		} else {
			b.bidQuantity -= fill
		}

		if restingFullyFilled {
			delete(b.ordersIndex, restingID)
		}
		if level.IsEmpty() {
			opposite.Delete(level)
		}
	}

	return trades
}

// crossable reports whether an opposite-side level at price P may match
// an incoming Limit order with limit price L on side S.
func crossable(side common.Side, limitPrice, levelPrice float64) bool {
	if side == common.Buy {
		return levelPrice <= limitPrice
	}
	return levelPrice >= limitPrice
}

// restLimit rests the residual of a Limit order at the tail of its price level.
func (b *OrderBook) restLimit(order *common.Order) {
	levels := b.Bids
	if order.Side == common.Sell {
		levels = b.Asks
	}

	level, ok := levels.GetMut(&book.PriceLevel{Price: order.Price})
	if !ok {
		level = book.NewPriceLevel(order.Price)
		levels.Set(level)
	}
	_ = level.PushBack(order)

	b.ordersIndex[order.ID] = orderLocation{side: order.Side, price: order.Price}
	if order.Side == common.Buy {
		b.bidQuantity += order.RemainingQuantity
	} else {
		b.askQuantity += order.RemainingQuantity
	}
}

// Cancel removes orderID from the book. Returns true iff it was present.
func (b *OrderBook) Cancel(orderID uint64) bool {
	loc, ok := b.ordersIndex[orderID]
	if !ok {
		return false
	}

	levels := b.Bids
	if loc.side == common.Sell {
		levels = b.Asks
	}

	level, ok := levels.GetMut(&book.PriceLevel{Price: loc.price})
	if !ok {
		return false
	}

	qty, removed := level.Remove(orderID)
	if !removed {
		return false
	}

	delete(b.ordersIndex, orderID)
	if level.IsEmpty() {
		levels.Delete(level)
	}

	if loc.side == common.Buy {
		b.bidQuantity -= qty
	} else {
		b.askQuantity -= qty
	}
	return true
}

// BestBid returns the highest resting bid price, if any.
func (b *OrderBook) BestBid() (float64, bool) {
	level, ok := b.Bids.Min()
	if !ok {
		return 0, false
	}
	return level.Price, true
}

// BestAsk returns the lowest resting ask price, if any.
func (b *OrderBook) BestAsk() (float64, bool) {
	level, ok := b.Asks.Min()
	if !ok {
		return 0, false
	}
	return level.Price, true
}

// Spread returns BestAsk - BestBid, if both sides are non-empty.
func (b *OrderBook) Spread() (float64, bool) {
	bid, bidOk := b.BestBid()
	ask, askOk := b.BestAsk()
	if !bidOk || !askOk {
		return 0, false
	}
	return ask - bid, true
}

// MidPrice returns (BestAsk + BestBid) / 2, if both sides are non-empty.
func (b *OrderBook) MidPrice() (float64, bool) {
	bid, bidOk := b.BestBid()
	ask, askOk := b.BestAsk()
	if !bidOk || !askOk {
		return 0, false
	}
	return (ask + bid) / 2, true
}

// GetDepth returns up to k levels from the best boundary of each side:
// bids descending, asks ascending.
func (b *OrderBook) GetDepth(k int) (bids, asks []DepthLevel) {
	return depthOf(b.Bids, k), depthOf(b.Asks, k)
}

func depthOf(levels *PriceLevels, k int) []DepthLevel {
	if k <= 0 {
		return nil
	}
	out := make([]DepthLevel, 0, k)
	levels.Scan(func(level *book.PriceLevel) bool {
		out = append(out, DepthLevel{Price: level.Price, Quantity: level.TotalQuantity})
		return len(out) < k
	})
	return out
}

// ActiveOrderCount returns the number of orders currently resting on the book.
func (b *OrderBook) ActiveOrderCount() int {
	return len(b.ordersIndex)
}

// BidLiquidity and AskLiquidity expose the aggregate resting quantity on
// each side without walking every price level. Maintained incrementally
// alongside matching and resting, not recomputed on read.
func (b *OrderBook) BidLiquidity() float64 { return b.bidQuantity }
func (b *OrderBook) AskLiquidity() float64 { return b.askQuantity }
