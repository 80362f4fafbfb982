package vwap

import (
	"time"

	"go.uber.org/zap"

	"vwap-service/internal/metrics"
	"vwap-service/internal/trade"
)

const (
	defaultIdleInterval = time.Second
)

// Result is the VWAP of a pair computed over the last Trades trades
type Result struct {
	Pair   trade.Pair
	Value  float64
	Trades int
}

// Aggregator maintains the VWAP of the trades of a single pair
type Aggregator struct {
	window  *Window
	idle    time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewAggregator creates a new Aggregator
// Available options are WithLogger, WithWindowSize, WithIdleInterval and WithMetrics
func NewAggregator(opts ...Option) *Aggregator {
	options := options{
		logger:       zap.NewNop(),
		windowSize:   defaultMaxDataPoints,
		idleInterval: defaultIdleInterval,
	}

	for _, o := range opts {
		o.apply(&options)
	}

	return &Aggregator{
		window:  NewWindow(options.windowSize),
		idle:    options.idleInterval,
		logger:  options.logger,
		metrics: options.metrics,
	}
}

// Run pushes every trade received from in to the window and sends the
// updated VWAP to out. Sending blocks when out is full. Run returns once in
// is closed and drained; out is left open for its owner to close.
func (a *Aggregator) Run(in <-chan trade.Trade, out chan<- Result) {
	idle := time.NewTimer(a.idle)
	defer idle.Stop()

	for {
		select {
		case t, ok := <-in:
			if !ok {
				a.logger.Info("trade stream closed", zap.Int("trades", a.window.Len()))
				return
			}

			if res, ok := a.push(t); ok {
				out <- res
			}

		case <-idle.C:
			a.logger.Debug("no trades received", zap.Duration("idle", a.idle))
		}

		resetTimer(idle, a.idle)
	}
}

func (a *Aggregator) push(t trade.Trade) (Result, bool) {
	a.window.Push(t)

	value, ok := a.window.VWAP()
	if !ok {
		a.logger.Warn("skipping vwap of a window without volume", zap.Stringer("pair", t.Pair))
		return Result{}, false
	}

	n := a.window.Len()
	a.metrics.VWAP(t.Pair.String(), value, n)

	return Result{Pair: t.Pair, Value: value, Trades: n}, true
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
