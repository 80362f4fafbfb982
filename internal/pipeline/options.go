package pipeline

import (
	"time"

	"go.uber.org/zap"

	"vwap-service/internal/metrics"
	"vwap-service/internal/vwap"
)

type options struct {
	logger         *zap.Logger
	resultBuffer   int
	aggregatorOpts []vwap.Option
}

type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(opts *options) {
	f(opts)
}

func WithLogger(log *zap.Logger) Option {
	if log == nil {
		log = zap.NewNop()
	}
	return optionFunc(func(opts *options) {
		opts.logger = log
	})
}

// WithResultBuffer sets the capacity of the results channel
func WithResultBuffer(size int) Option {
	if size < 1 {
		size = _defaultResultBuffer
	}
	return optionFunc(func(opts *options) {
		opts.resultBuffer = size
	})
}

func WithWindowSize(size int) Option {
	return optionFunc(func(opts *options) {
		opts.aggregatorOpts = append(opts.aggregatorOpts, vwap.WithWindowSize(size))
	})
}

func WithIdleInterval(interval time.Duration) Option {
	return optionFunc(func(opts *options) {
		opts.aggregatorOpts = append(opts.aggregatorOpts, vwap.WithIdleInterval(interval))
	})
}

func WithMetrics(m *metrics.Metrics) Option {
	return optionFunc(func(opts *options) {
		opts.aggregatorOpts = append(opts.aggregatorOpts, vwap.WithMetrics(m))
	})
}
