// Package book implements PriceLevel, the FIFO queue of resting orders
// at a single price used by both sides of an OrderBook.
package book

import (
	"errors"

	"fenrir/internal/common"
)

var (
	ErrEmptyHead      = errors.New("price level has no head order")
	ErrOverConsume    = errors.New("consume quantity exceeds head remaining quantity")
	ErrNonPositiveQty = errors.New("quantity must be positive")
)

// PriceLevel holds every resting order at one price, in strict FIFO
// arrival order (index 0 is the head, the next order to match).
type PriceLevel struct {
	Price         float64
	Orders        []*common.Order
	TotalQuantity float64
}

// NewPriceLevel creates an empty level at the given price.
func NewPriceLevel(price float64) *PriceLevel {
	return &PriceLevel{Price: price}
}

// PushBack appends order to the tail of the queue. Pre: order.Price ==
// level.Price and order.RemainingQuantity > 0.
func (l *PriceLevel) PushBack(order *common.Order) error {
	if order.RemainingQuantity <= 0 {
		return ErrNonPositiveQty
	}
	l.Orders = append(l.Orders, order)
	l.TotalQuantity += order.RemainingQuantity
	return nil
}

// Head returns the order at the front of the queue, or nil if empty.
func (l *PriceLevel) Head() *common.Order {
	if len(l.Orders) == 0 {
		return nil
	}
	return l.Orders[0]
}

// ConsumeHead decrements the head order's RemainingQuantity by qty,
// popping it off the queue if it reaches zero. Pre: 0 < qty <=
// head.RemainingQuantity.
func (l *PriceLevel) ConsumeHead(qty float64) error {
	head := l.Head()
	if head == nil {
		return ErrEmptyHead
	}
	if qty <= 0 || qty > head.RemainingQuantity {
		return ErrOverConsume
	}

	head.RemainingQuantity -= qty
	l.TotalQuantity -= qty
	if head.RemainingQuantity == 0 {
		head.Status = common.Filled
		l.Orders = l.Orders[1:]
	} else {
		head.Status = common.PartiallyFilled
	}
	return nil
}

// Remove scans the queue (bounded by the number of orders resting at
// this price) for orderID and removes it, returning the quantity it was
// still resting with. Returns false if not present.
func (l *PriceLevel) Remove(orderID uint64) (float64, bool) {
	for i, o := range l.Orders {
		if o.ID == orderID {
			qty := o.RemainingQuantity
			l.TotalQuantity -= qty
			l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
			return qty, true
		}
	}
	return 0, false
}

// IsEmpty reports whether the queue holds no resting orders.
func (l *PriceLevel) IsEmpty() bool {
	return len(l.Orders) == 0
}
