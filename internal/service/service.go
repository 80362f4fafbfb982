package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vwap-service/internal/metrics"
	"vwap-service/internal/pipeline"
	"vwap-service/internal/trade"
	"vwap-service/internal/vwap"
)

const (
	_defaultMaxPts = 200
)

// Service is a calculation engine service used to compute VWAP's for given trading-pairs,
// and output them to a target output. provider is a crypto exchange that implements the Provider interface.
// Every trading pair runs in its own pipeline.
// Available options are WithLogger(logger), WithOutput(output = stdout), WithMaxDataPts(max = 200), WithMetrics(m)
type Service struct {
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	pairs      []trade.Pair
	logger     *zap.Logger
	provider   Provider
	maxDataPts int
	metrics    *metrics.Metrics
	output     io.Writer
	running    atomic.Bool
}

// NewService creates a new calculation engine service
func NewService(ctx context.Context, provider Provider, opts ...Option) *Service {
	options := options{
		logger:     zap.NewNop(),
		maxDataPts: _defaultMaxPts,
		output:     os.Stdout,
	}

	for _, o := range opts {
		o.apply(&options)
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Service{
		provider:   provider,
		ctx:        ctx,
		cancel:     cancel,
		logger:     options.logger,
		maxDataPts: options.maxDataPts,
		metrics:    options.metrics,
		output:     options.output,
	}
}

// AddTradingPairs registers the trading pairs the service computes VWAP's
// for. Trading pairs must be added before the Run method is executed.
func (s *Service) AddTradingPairs(tradingPairs ...trade.Pair) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tp := range tradingPairs {
		if !containsPair(s.pairs, tp) {
			s.pairs = append(s.pairs, tp)
		}
	}
}

// Run starts a pipeline per trading pair and writes their VWAP's to the
// output. A pair whose pipeline cannot start is logged and skipped. Run
// returns once every pipeline has stopped, with the errors of the pairs that
// could not start.
func (s *Service) Run() error {
	if !s.running.CAS(false, true) {
		return errors.New("service is already running")
	}
	defer s.running.Store(false)

	s.mu.Lock()
	pairs := make([]trade.Pair, len(s.pairs))
	copy(pairs, s.pairs)
	s.mu.Unlock()

	// we must have trading pairs to run
	if len(pairs) == 0 {
		return errors.New("no trading pairs were provided")
	}

	var (
		startMu  sync.Mutex
		startErr error
		started  []*pipeline.Pipeline
	)

	// every pair is attempted, Wait reports whether any of them failed
	var g errgroup.Group
	for _, tp := range pairs {
		tp := tp
		g.Go(func() error {
			p, err := pipeline.New(s.ctx, tp, s.provider,
				pipeline.WithLogger(s.logger),
				pipeline.WithWindowSize(s.maxDataPts),
				pipeline.WithMetrics(s.metrics),
			)

			startMu.Lock()
			defer startMu.Unlock()

			if err != nil {
				err = fmt.Errorf("start %s: %w", tp, err)
				s.logger.Error("could not start trading pair", zap.Stringer("pair", tp), zap.Error(err))
				startErr = multierr.Append(startErr, err)
				return err
			}
			started = append(started, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil && len(started) == 0 {
		return fmt.Errorf("no trading pair could be started: %w", startErr)
	}

	var writers sync.WaitGroup
	for _, p := range started {
		writers.Add(1)
		go func(p *pipeline.Pipeline) {
			defer writers.Done()
			s.write(p)
		}(p)
	}
	writers.Wait()

	return startErr
}

// Stop stops the execution of the service
func (s *Service) Stop() {
	s.cancel()
}

func (s *Service) write(p *pipeline.Pipeline) {
	for res := range p.Results() {
		s.mu.Lock()
		_, err := io.WriteString(s.output, format(res)+"\n")
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("failed to write VWAP to output target", zap.Stringer("pair", res.Pair), zap.Error(err))
		}
	}
}

func format(res vwap.Result) string {
	return res.Pair.String() + ": " + strconv.FormatFloat(res.Value, 'f', 6, 64)
}

func containsPair(pairs []trade.Pair, pair trade.Pair) bool {
	for _, p := range pairs {
		if p == pair {
			return true
		}
	}
	return false
}
