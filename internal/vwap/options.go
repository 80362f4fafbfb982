package vwap

import (
	"time"

	"go.uber.org/zap"

	"vwap-service/internal/metrics"
)

type options struct {
	logger       *zap.Logger
	windowSize   int
	idleInterval time.Duration
	metrics      *metrics.Metrics
}

type Option interface {
	apply(*options)
}

type loggerOption struct {
	Log *zap.Logger
}

func (l loggerOption) apply(opts *options) {
	opts.logger = l.Log
}

func WithLogger(log *zap.Logger) Option {
	if log == nil {
		log = zap.NewNop()
	}
	return loggerOption{Log: log}
}

type windowSizeOption struct {
	Size int
}

func (w windowSizeOption) apply(opts *options) {
	opts.windowSize = w.Size
}

// WithWindowSize sets how many trades the VWAP is computed over
func WithWindowSize(size int) Option {
	if size < 1 {
		size = defaultMaxDataPoints
	}
	return windowSizeOption{Size: size}
}

type idleIntervalOption struct {
	Interval time.Duration
}

func (i idleIntervalOption) apply(opts *options) {
	opts.idleInterval = i.Interval
}

func WithIdleInterval(interval time.Duration) Option {
	if interval <= 0 {
		interval = defaultIdleInterval
	}
	return idleIntervalOption{Interval: interval}
}

type metricsOption struct {
	Metrics *metrics.Metrics
}

func (m metricsOption) apply(opts *options) {
	opts.metrics = m.Metrics
}

func WithMetrics(m *metrics.Metrics) Option {
	return metricsOption{Metrics: m}
}
