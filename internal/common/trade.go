package common

import (
	"fmt"
	"time"
)

// Trade is an immutable record of one execution between a resting maker
// order and the incoming taker order that crossed it.
type Trade struct {
	ID           string // uuid
	Symbol       string
	Price        float64 // the maker's resting price
	Quantity     float64 // fill size
	MakerOrderID uint64
	TakerOrderID uint64
	Timestamp    time.Time
}

func (t Trade) String() string {
	return fmt.Sprintf(
		"Trade{id=%s symbol=%s price=%.8f qty=%.8f maker=%d taker=%d}",
		t.ID, t.Symbol, t.Price, t.Quantity, t.MakerOrderID, t.TakerOrderID,
	)
}
