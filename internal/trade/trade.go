package trade

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrInvalidTrade = errors.New("invalid trade")

// Side is the taker side of an executed trade
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Trade is a single executed transaction for a Pair. Trades are passed by value
// and never modified once created.
type Trade struct {
	Pair     Pair
	Price    float64
	Quantity float64

	// exchange metadata, informative only
	ID       uint64
	Sequence uint64
	Side     Side
	Time     time.Time
}

// New creates a new Trade, price and quantity must be finite and positive
func New(pair Pair, price float64, quantity float64) (Trade, error) {
	if !isPositive(price) {
		return Trade{}, fmt.Errorf("price %v: %w", price, ErrInvalidTrade)
	}
	if !isPositive(quantity) {
		return Trade{}, fmt.Errorf("quantity %v: %w", quantity, ErrInvalidTrade)
	}

	return Trade{
		Pair:     pair,
		Price:    price,
		Quantity: quantity,
	}, nil
}

// Notional returns price * quantity
func (t Trade) Notional() float64 {
	return t.Price * t.Quantity
}

func isPositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
