package pipeline

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	streamer "vwap-service/internal/crypto-streamer"
	"vwap-service/internal/trade"
	"vwap-service/internal/vwap"
)

const (
	_defaultResultBuffer = 100
)

// Pipeline computes the VWAP of one trading pair. It owns the trades feed of
// its provider, an aggregator and the results channel.
type Pipeline struct {
	ID   uuid.UUID
	Pair trade.Pair

	results chan vwap.Result
	done    chan struct{}
}

// New subscribes to the trades of pair and starts aggregating them. An error
// is returned when the provider cannot subscribe; nothing is left running in
// that case. Cancelling ctx stops the feed, which in turn drains and stops the
// aggregator.
func New(ctx context.Context, pair trade.Pair, provider streamer.Provider, opts ...Option) (*Pipeline, error) {
	options := options{
		logger:       zap.NewNop(),
		resultBuffer: _defaultResultBuffer,
	}

	for _, o := range opts {
		o.apply(&options)
	}

	p := &Pipeline{
		ID:      uuid.New(),
		Pair:    pair,
		results: make(chan vwap.Result, options.resultBuffer),
		done:    make(chan struct{}),
	}
	logger := options.logger.With(zap.Stringer("pair", pair), zap.Stringer("pipeline", p.ID))

	trades, err := provider.Subscribe(ctx, pair)
	if err != nil {
		return nil, err
	}

	aggregator := vwap.NewAggregator(append(options.aggregatorOpts, vwap.WithLogger(logger))...)

	go func() {
		defer close(p.done)
		defer close(p.results)

		logger.Info("pipeline started")
		aggregator.Run(trades, p.results)
		logger.Info("pipeline stopped")
	}()

	return p, nil
}

// Results returns the computed VWAPs in order. The channel is closed once the
// trades feed has ended and every trade has been aggregated.
func (p *Pipeline) Results() <-chan vwap.Result {
	return p.results
}

// Done is closed when the pipeline has stopped
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}
