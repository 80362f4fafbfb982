package coinbase

import (
	"time"

	"go.uber.org/zap"

	"vwap-service/internal/metrics"
)

const (
	_defaultSubscribeTimeout = 10 * time.Second
	_defaultBufferSize       = 32
)

type options struct {
	logger           *zap.Logger
	wsUrl            string
	subscribeTimeout time.Duration
	bufferSize       int
	metrics          *metrics.Metrics
}

func defaultOptions() options {
	return options{
		logger:           zap.NewNop(),
		wsUrl:            wsUrl,
		subscribeTimeout: _defaultSubscribeTimeout,
		bufferSize:       _defaultBufferSize,
	}
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

type wsUrlOption struct {
	Url string
}

func (u wsUrlOption) apply(opts *options) {
	opts.wsUrl = u.Url
}

func WithWSUrl(url string) Option {
	return wsUrlOption{Url: url}
}

type subscribeTimeoutOption struct {
	Timeout time.Duration
}

func (s subscribeTimeoutOption) apply(opts *options) {
	opts.subscribeTimeout = s.Timeout
}

// WithSubscribeTimeout bounds the wait for the subscription acknowledgement
func WithSubscribeTimeout(timeout time.Duration) Option {
	if timeout <= 0 {
		timeout = _defaultSubscribeTimeout
	}
	return subscribeTimeoutOption{Timeout: timeout}
}

type bufferSizeOption struct {
	Size int
}

func (b bufferSizeOption) apply(opts *options) {
	opts.bufferSize = b.Size
}

// WithBufferSize sets the capacity of the trades channel returned by Subscribe
func WithBufferSize(size int) Option {
	if size < 1 {
		size = _defaultBufferSize
	}
	return bufferSizeOption{Size: size}
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
