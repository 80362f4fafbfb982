package coinbase

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	streamer "vwap-service/internal/crypto-streamer"
	"vwap-service/internal/metrics"
	"vwap-service/internal/trade"
)

const (
	ackFrame       = `{"type":"subscriptions","channels":[{"name":"matches","product_ids":["BTC-USD"]}]}`
	heartbeatFrame = `{"type":"heartbeat","sequence":90,"product_id":"BTC-USD"}`
)

var btcUSD = trade.NewPair(trade.BTC, trade.USD)

func matchFrame(price, size string) string {
	return `{"type":"match","trade_id":10,"maker_order_id":"ac928c66","taker_order_id":"132fb6ae","side":"sell",` +
		`"size":"` + size + `","price":"` + price + `","product_id":"BTC-USD","sequence":50,"time":"2014-11-07T08:19:27.028459Z"}`
}

// exchange scripts a fake exchange: it reads the subscribe request, then
// writes frames and either hangs up or records the requests that follow until
// the client leaves
type exchange struct {
	frames   []string
	hangUp   bool
	requests chan Request
}

func (e *exchange) handler(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		u := websocket.Upgrader{}
		c, err := u.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		req := Request{}
		if err := c.ReadJSON(&req); err != nil {
			return
		}
		e.record(req)

		for _, f := range e.frames {
			if err := c.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}

		if e.hangUp {
			return
		}

		for {
			req := Request{}
			if err := c.ReadJSON(&req); err != nil {
				return
			}
			e.record(req)
		}
	}
}

func (e *exchange) record(req Request) {
	if e.requests == nil {
		return
	}
	select {
	case e.requests <- req:
	default:
	}
}

func receive(t *testing.T, trades <-chan trade.Trade) trade.Trade {
	t.Helper()
	select {
	case tr, ok := <-trades:
		require.True(t, ok, "trades channel closed unexpectedly")
		return tr
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for trade")
	}
	return trade.Trade{}
}

func assertClosed(t *testing.T, trades <-chan trade.Trade) {
	t.Helper()
	select {
	case tr, ok := <-trades:
		assert.False(t, ok, "expected closed channel, got %v", tr)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the trades channel to close")
	}
}

func TestCoinbase_Subscribe_sends_canonical_request(t *testing.T) {
	ex := &exchange{frames: []string{ackFrame}, requests: make(chan Request, 1)}
	server, wsUrl := wsTestServer(t, ex.handler(t))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := New(WithWSUrl(wsUrl)).Subscribe(ctx, btcUSD)
	require.NoError(t, err)

	assert.Equal(t, Request{
		Type:       "subscribe",
		ProductIDs: []string{"BTC-USD"},
		Channels:   []string{"matches"},
	}, <-ex.requests)
}

func TestCoinbase_Subscribe_handshake_errors(t *testing.T) {
	tests := map[string]struct {
		frames  []string
		hangUp  bool
		wantErr error
	}{
		"it should time out without an acknowledgement": {
			frames:  []string{heartbeatFrame},
			wantErr: streamer.ErrSubscriptionTimeout,
		},
		"it should fail when the server rejects the subscription": {
			frames:  []string{`{"type":"error","message":"Failed to subscribe","reason":"BTC-USD is delisted"}`},
			wantErr: streamer.ErrSubscriptionMalformed,
		},
		"it should fail on an undecodable reply": {
			frames:  []string{`{"type":`},
			wantErr: streamer.ErrSubscriptionMalformed,
		},
		"it should fail when the server hangs up": {
			hangUp:  true,
			wantErr: streamer.ErrConnection,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ex := &exchange{frames: tt.frames, hangUp: tt.hangUp}
			server, wsUrl := wsTestServer(t, ex.handler(t))
			defer server.Close()

			trades, err := New(WithWSUrl(wsUrl), WithSubscribeTimeout(100*time.Millisecond)).
				Subscribe(context.Background(), btcUSD)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, trades)
		})
	}
}

func TestCoinbase_Subscribe_discards_frames_before_acknowledgement(t *testing.T) {
	ex := &exchange{
		frames: []string{
			`{"type":"status","sequence":"abc","products":[{"id":"BTC-USD"}]}`,
			heartbeatFrame,
			ackFrame,
			matchFrame("10", "1"),
		},
	}
	server, wsUrl := wsTestServer(t, ex.handler(t))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trades, err := New(WithWSUrl(wsUrl), WithSubscribeTimeout(time.Second)).Subscribe(ctx, btcUSD)
	require.NoError(t, err)

	assert.Equal(t, 10., receive(t, trades).Price)
}

func TestCoinbase_Subscribe_should_stop_waiting_for_acknowledgement_when_cancelled(t *testing.T) {
	ex := &exchange{}
	server, wsUrl := wsTestServer(t, ex.handler(t))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	trades, err := New(WithWSUrl(wsUrl), WithSubscribeTimeout(2*time.Second)).Subscribe(ctx, btcUSD)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, streamer.ErrSubscriptionTimeout)
	assert.Nil(t, trades)
	assert.True(t, time.Since(start) < time.Second, "subscribe should return on cancellation, not on the acknowledgement timeout")
}

func TestCoinbase_Subscribe_should_fail_when_unreachable(t *testing.T) {
	server, wsUrl := wsTestServer(t, echo(t))
	server.Close()

	_, err := New(WithWSUrl(wsUrl)).Subscribe(context.Background(), btcUSD)
	assert.ErrorIs(t, err, streamer.ErrConnection)
	assert.Contains(t, err.Error(), "subscribe BTC-USD")
}

func TestCoinbase_Subscribe_forwards_trades(t *testing.T) {
	observedZapCore, observedLogs := observer.New(zap.InfoLevel)

	ex := &exchange{
		frames: []string{
			heartbeatFrame,
			ackFrame,
			matchFrame("10", "1"),
			`{"type":"match","price":`,
			heartbeatFrame,
			matchFrame("0", "1"),
			matchFrame("20", "0"),
			matchFrame("abc", "1"),
			`{"type":"match","product_id":"ETH-USD","price":"5","size":"1"}`,
			`{"type":"error","message":"slow down"}`,
			matchFrame("20", "1"),
			`{"type":"last_match","product_id":"BTC-USD","price":"30.5","size":"0.5"}`,
		},
	}
	server, wsUrl := wsTestServer(t, ex.handler(t))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(nil)
	trades, err := New(WithWSUrl(wsUrl), WithLogger(zap.New(observedZapCore)), WithMetrics(m)).Subscribe(ctx, btcUSD)
	require.NoError(t, err)

	first := receive(t, trades)
	assert.Equal(t, btcUSD, first.Pair)
	assert.Equal(t, 10., first.Price)
	assert.Equal(t, 1., first.Quantity)
	assert.Equal(t, uint64(10), first.ID)
	assert.Equal(t, uint64(50), first.Sequence)
	assert.Equal(t, trade.Sell, first.Side)
	assert.True(t, time.Date(2014, 11, 7, 8, 19, 27, 28459000, time.UTC).Equal(first.Time))

	second := receive(t, trades)
	assert.Equal(t, 20., second.Price)

	third := receive(t, trades)
	assert.Equal(t, 30.5, third.Price)
	assert.Equal(t, 0.5, third.Quantity)

	assert.Eventually(t, func() bool {
		return observedLogs.FilterMessage("dropping malformed frame").Len() == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, observedLogs.FilterMessage("subscription updated").Len())
	assert.Equal(t, 1, observedLogs.FilterMessage("ignoring frame").Len())

	assert.Equal(t, 2., testutil.ToFloat64(m.Frames.WithLabelValues("BTC-USD", metrics.OutcomeMalformed)))
	assert.Equal(t, 2., testutil.ToFloat64(m.Frames.WithLabelValues("BTC-USD", metrics.OutcomeFiltered)))
	assert.Equal(t, 3., testutil.ToFloat64(m.Frames.WithLabelValues("BTC-USD", metrics.OutcomeIgnored)))
}

func TestCoinbase_Subscribe_closes_trades_when_server_hangs_up(t *testing.T) {
	ex := &exchange{frames: []string{ackFrame, matchFrame("10", "1")}, hangUp: true}
	server, wsUrl := wsTestServer(t, ex.handler(t))
	defer server.Close()

	trades, err := New(WithWSUrl(wsUrl)).Subscribe(context.Background(), btcUSD)
	require.NoError(t, err)

	assert.Equal(t, 10., receive(t, trades).Price)
	assertClosed(t, trades)
}

func TestCoinbase_Subscribe_closes_trades_when_cancelled(t *testing.T) {
	ex := &exchange{frames: []string{ackFrame}}
	server, wsUrl := wsTestServer(t, ex.handler(t))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	trades, err := New(WithWSUrl(wsUrl)).Subscribe(ctx, btcUSD)
	require.NoError(t, err)

	cancel()
	assertClosed(t, trades)
}

func TestCoinbase_Subscribe_unsubscribes_when_cancelled(t *testing.T) {
	ex := &exchange{frames: []string{ackFrame}, requests: make(chan Request, 2)}
	server, wsUrl := wsTestServer(t, ex.handler(t))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	trades, err := New(WithWSUrl(wsUrl)).Subscribe(ctx, btcUSD)
	require.NoError(t, err)
	assert.Equal(t, Subscribe, (<-ex.requests).Type)

	cancel()

	select {
	case req := <-ex.requests:
		assert.Equal(t, Request{
			Type:       "unsubscribe",
			ProductIDs: []string{"BTC-USD"},
			Channels:   []string{"matches"},
		}, req)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the unsubscribe request")
	}
	assertClosed(t, trades)
}

func TestCoinbase_Subscribe_applies_backpressure(t *testing.T) {
	frames := []string{ackFrame}
	prices := []string{"1", "2", "3", "4", "5", "6"}
	for _, p := range prices {
		frames = append(frames, matchFrame(p, "1"))
	}

	ex := &exchange{frames: frames}
	server, wsUrl := wsTestServer(t, ex.handler(t))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trades, err := New(WithWSUrl(wsUrl), WithBufferSize(1)).Subscribe(ctx, btcUSD)
	require.NoError(t, err)

	// the connector fills the buffer then waits for the consumer
	assert.Eventually(t, func() bool { return len(trades) == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, len(trades))

	for i := range prices {
		assert.Equal(t, float64(i+1), receive(t, trades).Price, "trades should keep their order")
	}
}

func TestParseMatch(t *testing.T) {
	tests := map[string]struct {
		frame       string
		wantOutcome string
		wantDecode  bool
		wantPrice   float64
		wantID      uint64
		wantSide    trade.Side
	}{
		"it should parse a match": {
			frame:       matchFrame("101.25", "0.5"),
			wantOutcome: metrics.OutcomeForwarded,
			wantPrice:   101.25,
			wantID:      10,
			wantSide:    trade.Sell,
		},
		"it should parse trade ids beyond the int64 range": {
			frame:       `{"type":"match","trade_id":18446744073709551615,"product_id":"BTC-USD","price":"1","size":"1","side":"buy"}`,
			wantOutcome: metrics.OutcomeForwarded,
			wantPrice:   1,
			wantID:      18446744073709551615,
			wantSide:    trade.Buy,
		},
		"it should leave an unknown side empty": {
			frame:       `{"type":"match","trade_id":3,"product_id":"BTC-USD","price":"2","size":"1","side":"sideways"}`,
			wantOutcome: metrics.OutcomeForwarded,
			wantPrice:   2,
			wantID:      3,
		},
		"it should ignore other message types whatever their fields": {
			frame:       `{"type":"status","sequence":"abc","products":[{"id":"BTC-USD"}]}`,
			wantOutcome: metrics.OutcomeIgnored,
		},
		"it should drop a match whose fields do not decode": {
			frame:       `{"type":"match","trade_id":"ten","product_id":"BTC-USD","price":"1","size":"1"}`,
			wantOutcome: metrics.OutcomeMalformed,
			wantDecode:  true,
		},
		"it should drop a frame that is not json": {
			frame:       `not json`,
			wantOutcome: metrics.OutcomeMalformed,
			wantDecode:  true,
		},
		"it should drop an unparsable size": {
			frame:       matchFrame("1", "1,5"),
			wantOutcome: metrics.OutcomeMalformed,
			wantDecode:  true,
		},
		"it should ignore other message types": {
			frame:       heartbeatFrame,
			wantOutcome: metrics.OutcomeIgnored,
		},
		"it should ignore other products": {
			frame:       `{"type":"match","product_id":"ETH-USD","price":"1","size":"1"}`,
			wantOutcome: metrics.OutcomeIgnored,
		},
		"it should filter a zero price": {
			frame:       matchFrame("0.000", "1"),
			wantOutcome: metrics.OutcomeFiltered,
		},
		"it should filter a zero size": {
			frame:       matchFrame("1", "0"),
			wantOutcome: metrics.OutcomeFiltered,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, outcome, err := parseMatch([]byte(tt.frame), btcUSD)
			assert.Equal(t, tt.wantOutcome, outcome)

			var decodeErr *streamer.DecodeError
			assert.Equal(t, tt.wantDecode, errors.As(err, &decodeErr))

			if tt.wantOutcome == metrics.OutcomeForwarded {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantPrice, got.Price)
				assert.Equal(t, tt.wantID, got.ID)
				assert.Equal(t, tt.wantSide, got.Side)
			}
		})
	}
}
