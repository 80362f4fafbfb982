package vwap

import (
	"vwap-service/internal/trade"
)

const (
	defaultMaxDataPoints = 200
)

// Window holds the most recent trades of a pair and computes their VWAP.
// It is not safe for concurrent use, a Window belongs to a single Aggregator.
type Window struct {
	maxPts int
	trades []trade.Trade
}

// NewWindow creates a new Window keeping at most maxPts trades
func NewWindow(maxPts int) *Window {
	if maxPts < 1 {
		maxPts = defaultMaxDataPoints
	}

	return &Window{
		maxPts: maxPts,
		trades: make([]trade.Trade, 0, maxPts),
	}
}

// Push appends t to the window. When the window is full the oldest trade
// falls off.
func (w *Window) Push(t trade.Trade) {
	if len(w.trades) == w.maxPts {
		// shift in place so the backing array never grows past maxPts
		copy(w.trades, w.trades[1:])
		w.trades = w.trades[:len(w.trades)-1]
	}

	w.trades = append(w.trades, t)
}

// Len returns the number of trades currently held
func (w *Window) Len() int {
	return len(w.trades)
}

// Cap returns the maximum number of trades held
func (w *Window) Cap() int {
	return w.maxPts
}

// Trades returns a copy of the window, oldest first
func (w *Window) Trades() []trade.Trade {
	out := make([]trade.Trade, len(w.trades))
	copy(out, w.trades)
	return out
}

// VWAP computes sum(price*quantity) / sum(quantity) over the whole window.
// ok is false when the window is empty or its total quantity is 0.
func (w *Window) VWAP() (value float64, ok bool) {
	var sumPQ, sumQ float64
	for _, t := range w.trades {
		sumPQ += t.Notional()
		sumQ += t.Quantity
	}

	if sumQ == 0 {
		return 0, false
	}

	return sumPQ / sumQ, true
}
