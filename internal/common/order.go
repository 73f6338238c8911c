package common

import (
	"fmt"
	"time"
)

// Order is an immutable descriptor of an order intent, except for
// RemainingQuantity and Status which the matching engine updates in
// place as fills occur.
type Order struct {
	ID                uint64      // caller-supplied, or engine-assigned (monotonically increasing) when zero
	ClientOrderID     string      // caller-facing correlation id (uuid), optional
	Symbol            string      // trading pair, e.g. "BTCUSDT"
	Side              Side        //
	Type              OrderType   //
	Price             float64     // required for Limit; ignored for Market
	Quantity          float64     // total size requested
	RemainingQuantity float64     // decreases monotonically, <= Quantity
	Status            OrderStatus //
	Timestamp         time.Time   // arrival time, used only as a tiebreaker check
}

func (o Order) String() string {
	return fmt.Sprintf(
		"Order{id=%d client=%q symbol=%s side=%s type=%d price=%.8f qty=%.8f remaining=%.8f status=%s}",
		o.ID, o.ClientOrderID, o.Symbol, o.Side, o.Type, o.Price, o.Quantity, o.RemainingQuantity, o.Status,
	)
}

// IsResting reports whether the order is still eligible to sit on the book.
func (o Order) IsResting() bool {
	return o.Status == Pending || o.Status == PartiallyFilled
}
