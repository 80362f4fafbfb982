package coinbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	streamer "vwap-service/internal/crypto-streamer"
	"vwap-service/internal/metrics"
	"vwap-service/internal/trade"
)

const (
	wsUrl = "wss://ws-feed.exchange.coinbase.com"
)

const (
	ChannelMatches = "matches"

	Subscribe   = "subscribe"
	Unsubscribe = "unsubscribe"

	TypeMatch         = "match"
	TypeError         = "error"
	TypeSubscriptions = "subscriptions"

	// TypeLastMatch is sent right after subscribing with the most recent trade
	// of the product, it is shaped like a match
	TypeLastMatch = "last_match"
)

const (
	// the server is rate limited to 100 requests / second per IP address
	reqLimitsPerSec = 100
)

// Coinbase creates trade feeds from the Coinbase exchange websocket API.
// Each call to Subscribe opens its own connection.
type Coinbase struct {
	opts []Option

	logger           *zap.Logger
	metrics          *metrics.Metrics
	subscribeTimeout time.Duration
	bufferSize       int
}

var _ streamer.Provider = (*Coinbase)(nil)

// New creates a new Coinbase trade provider
// Available options are WithLogger, WithWSUrl, WithSubscribeTimeout, WithBufferSize and WithMetrics
func New(opts ...Option) *Coinbase {
	options := defaultOptions()
	for _, o := range opts {
		o.apply(&options)
	}

	return &Coinbase{
		opts:             opts,
		logger:           options.logger,
		metrics:          options.metrics,
		subscribeTimeout: options.subscribeTimeout,
		bufferSize:       options.bufferSize,
	}
}

// Subscribe connects to the exchange and subscribes to the matches of pair.
// It returns once the subscription is acknowledged; trades are then sent on
// the returned channel until ctx is cancelled or the connection drops.
func (c *Coinbase) Subscribe(ctx context.Context, pair trade.Pair) (<-chan trade.Trade, error) {
	client, err := NewClient(ctx, c.opts...)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w: %v", pair, streamer.ErrConnection, err)
	}

	w := newWatcher(client, pair, c.logger)
	go w.watch(ctx)

	if err := c.handshake(client, pair); err != nil {
		w.stop()
		closeClient(client, c.logger)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("subscribe %s: %w", pair, ctxErr)
		}
		return nil, fmt.Errorf("subscribe %s: %w", pair, err)
	}
	w.subscribed.Store(true)

	trades := make(chan trade.Trade, c.bufferSize)
	f := &feed{
		client:  client,
		watcher: w,
		pair:    pair,
		trades:  trades,
		logger:  c.logger.With(zap.Stringer("pair", pair)),
		metrics: c.metrics,
	}
	go f.run(ctx)

	return trades, nil
}

// handshake sends the subscribe request and waits for its acknowledgement.
// Frames received before the acknowledgement are discarded.
func (c *Coinbase) handshake(client *WSClient, pair trade.Pair) error {
	if err := client.Subscribe(ChannelMatches, pair.String()); err != nil {
		return fmt.Errorf("%w: %v", streamer.ErrConnection, err)
	}

	if err := client.SetReadDeadline(time.Now().Add(c.subscribeTimeout)); err != nil {
		return fmt.Errorf("%w: set read deadline: %v", streamer.ErrConnection, err)
	}

	for {
		frame, err := client.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				return fmt.Errorf("no acknowledgement after %s: %w", c.subscribeTimeout, streamer.ErrSubscriptionTimeout)
			}
			return fmt.Errorf("%w: %v", streamer.ErrConnection, err)
		}

		env := envelope{}
		if err := json.Unmarshal(frame, &env); err != nil {
			return fmt.Errorf("%w: %v", streamer.ErrSubscriptionMalformed, &streamer.DecodeError{Frame: frame, Err: err})
		}

		switch env.Type {
		case TypeSubscriptions:
			// the ack is the type alone, channels are only logged
			msg := struct {
				Channels Channels `json:"channels"`
			}{}
			if err := json.Unmarshal(frame, &msg); err != nil {
				c.logger.Debug("could not decode subscribed channels", zap.Error(err))
			}
			c.logger.Info("subscription updated", zap.Stringer("channels", msg.Channels))
			if err := client.SetReadDeadline(time.Time{}); err != nil {
				return fmt.Errorf("%w: clear read deadline: %v", streamer.ErrConnection, err)
			}
			return nil
		case TypeError:
			return fmt.Errorf("%w: rejected by server: %s", streamer.ErrSubscriptionMalformed, serverError(frame))
		default:
			c.logger.Debug("discarding frame while waiting for subscription", zap.String("type", env.Type))
		}
	}
}

// watcher closes the connection once ctx is done. When the subscription went
// through, the server is told to unsubscribe first.
type watcher struct {
	client     *WSClient
	pair       trade.Pair
	logger     *zap.Logger
	subscribed atomic.Bool
	done       chan struct{}
	once       sync.Once
}

func newWatcher(client *WSClient, pair trade.Pair, logger *zap.Logger) *watcher {
	return &watcher{
		client: client,
		pair:   pair,
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (w *watcher) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		// handshake writes are over once subscribed is set, so this is the
		// only writer left
		if w.subscribed.Load() {
			if err := w.client.Unsubscribe(ChannelMatches, w.pair.String()); err != nil {
				w.logger.Debug("could not unsubscribe", zap.Error(err))
			}
		}
		closeClient(w.client, w.logger)
	case <-w.done:
	}
}

func (w *watcher) stop() {
	w.once.Do(func() { close(w.done) })
}

// feed reads the frames of a subscribed connection and forwards the trades
type feed struct {
	client  *WSClient
	watcher *watcher
	pair    trade.Pair
	trades  chan<- trade.Trade
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func (f *feed) run(ctx context.Context) {
	defer close(f.trades)
	defer closeClient(f.client, f.logger)
	defer f.watcher.stop()

	productID := f.pair.String()
	nReads, since := 0, time.Now()

	for {
		frame, err := f.client.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				f.logger.Info("trade feed stopped")
			} else {
				f.logger.Error("failed to read message from server", zap.Error(err))
			}
			return
		}

		if now := time.Now(); now.Sub(since) >= time.Second {
			if nReads >= reqLimitsPerSec {
				f.logger.Warn("coinbase rate limit reached", zap.Int("reads", nReads), zap.Duration("period", now.Sub(since)))
			}
			nReads, since = 0, now
		}
		nReads++

		t, outcome, err := parseMatch(frame, f.pair)
		f.metrics.Frame(productID, outcome)

		switch outcome {
		case metrics.OutcomeMalformed:
			f.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		case metrics.OutcomeIgnored, metrics.OutcomeFiltered:
			if err != nil {
				f.logger.Warn("ignoring frame", zap.Error(err))
			}
			continue
		}

		// blocks when the consumer lags behind, which in turn stops reading
		// from the connection
		select {
		case f.trades <- t:
		case <-ctx.Done():
			return
		}
	}
}

// parseMatch decodes a frame into a trade of pair. The outcome tells whether
// the trade should be forwarded. Only malformed frames return a DecodeError.
func parseMatch(frame []byte, pair trade.Pair) (trade.Trade, string, error) {
	env := envelope{}
	if err := json.Unmarshal(frame, &env); err != nil {
		return trade.Trade{}, metrics.OutcomeMalformed, &streamer.DecodeError{Frame: frame, Err: err}
	}

	switch env.Type {
	case TypeMatch, TypeLastMatch:
	case TypeError:
		return trade.Trade{}, metrics.OutcomeIgnored, fmt.Errorf("server error: %s", serverError(frame))
	default:
		return trade.Trade{}, metrics.OutcomeIgnored, nil
	}

	msg := Message{}
	if err := json.Unmarshal(frame, &msg); err != nil {
		return trade.Trade{}, metrics.OutcomeMalformed, &streamer.DecodeError{Frame: frame, Err: err}
	}

	if msg.ProductID != pair.String() {
		return trade.Trade{}, metrics.OutcomeIgnored, nil
	}

	price, err := decimal.NewFromString(msg.Price)
	if err != nil {
		return trade.Trade{}, metrics.OutcomeMalformed, &streamer.DecodeError{Frame: frame, Err: fmt.Errorf("parse price '%s': %w", msg.Price, err)}
	}

	size, err := decimal.NewFromString(msg.Size)
	if err != nil {
		return trade.Trade{}, metrics.OutcomeMalformed, &streamer.DecodeError{Frame: frame, Err: fmt.Errorf("parse size '%s': %w", msg.Size, err)}
	}

	if !price.IsPositive() || !size.IsPositive() {
		return trade.Trade{}, metrics.OutcomeFiltered, nil
	}

	t, err := trade.New(pair, price.InexactFloat64(), size.InexactFloat64())
	if err != nil {
		return trade.Trade{}, metrics.OutcomeFiltered, err
	}

	t.ID = msg.TradeID
	t.Sequence = msg.Sequence
	switch side := trade.Side(msg.Side); side {
	case trade.Buy, trade.Sell:
		t.Side = side
	}
	if ts, err := time.Parse(time.RFC3339Nano, msg.Time); err == nil {
		t.Time = ts
	}

	return t, metrics.OutcomeForwarded, nil
}

// serverError describes an error frame, falling back to the raw frame when
// it does not have the documented shape
func serverError(frame []byte) string {
	msg := struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
	}{}
	if err := json.Unmarshal(frame, &msg); err != nil {
		return string(frame)
	}
	if msg.Reason == "" {
		return msg.Message
	}
	return msg.Message + ": " + msg.Reason
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func closeClient(client *WSClient, logger *zap.Logger) {
	if err := client.Close(); err != nil {
		logger.Debug("could not close websocket connection", zap.Error(err))
	}
}
