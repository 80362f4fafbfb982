package coinbase

import (
	"context"
	"fmt"
	"strings"
	"time"

	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message represents the message object sent by the websocket server
// The message Type dictates what properties are set. See API documentation
// for more information https://docs.cloud.coinbase.com/exchange/docs/websocket-overview
type Message struct {
	Type         string   `json:"type"`
	Message      string   `json:"message,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	TradeID      uint64   `json:"trade_id,omitempty"`
	MakerOrderID string   `json:"maker_order_id,omitempty"`
	TakerOrderID string   `json:"taker_order_id,omitempty"`
	Sequence     uint64   `json:"sequence,omitempty"`
	ProductID    string   `json:"product_id,omitempty"`
	Size         string   `json:"size,omitempty"`
	Price        string   `json:"price,omitempty"`
	Side         string   `json:"side,omitempty"`
	Time         string   `json:"time,omitempty"`
	Channels     Channels `json:"channels,omitempty"`
}

// envelope is decoded first to route a frame by its type before the rest of
// its fields are looked at
type envelope struct {
	Type string `json:"type"`
}

// Request is the subscribe / unsubscribe message sent to the websocket server
type Request struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

// Channel represents a single element in the channels property of a
// subscriptions Message
type Channel struct {
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids,omitempty"`
}

// NewChannel creates a new channel
func NewChannel(name string, productIDS ...string) Channel {
	return Channel{
		Name:       name,
		ProductIDs: productIDS,
	}
}

// Channels represents the list of channels in a Message
type Channels []Channel

func (ch Channels) String() string {
	out := ""

	for i, channel := range ch {
		if i > 0 {
			out += " / "
		}
		out += channel.Name + "[" + strings.Join(channel.ProductIDs, ",") + "]"
	}

	return out
}

// WSClient is the websocket client holding a single connection to the server
type WSClient struct {
	conn   *ws.Conn
	url    string
	logger *zap.Logger
}

// NewClient creates a new websocket client with an established connection
// to the websocket server
func NewClient(ctx context.Context, opts ...Option) (*WSClient, error) {
	options := defaultOptions()
	for _, o := range opts {
		o.apply(&options)
	}

	client := &WSClient{
		url:    options.wsUrl,
		logger: options.logger,
	}

	if err := client.dial(ctx); err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return client, nil
}

// Subscribe subscribes to the channel for the provided product ids
func (w *WSClient) Subscribe(channel string, productIDs ...string) error {
	if err := w.conn.WriteJSON(newRequest(Subscribe, channel, productIDs)); err != nil {
		return fmt.Errorf("subscribe to %s%v: %w", channel, productIDs, err)
	}

	return nil
}

// Unsubscribe unsubscribes from the channel for the provided product ids
func (w *WSClient) Unsubscribe(channel string, productIDs ...string) error {
	if err := w.conn.WriteJSON(newRequest(Unsubscribe, channel, productIDs)); err != nil {
		return fmt.Errorf("unsubscribe from %s%v: %w", channel, productIDs, err)
	}

	return nil
}

// ReadMessage blocks until the next frame is received
func (w *WSClient) ReadMessage() ([]byte, error) {
	_, frame, err := w.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	return frame, nil
}

// SetReadDeadline bounds the next reads, a zero t removes the deadline
func (w *WSClient) SetReadDeadline(t time.Time) error {
	return w.conn.SetReadDeadline(t)
}

// Close closes the connection to the server
func (w *WSClient) Close() error {
	if err := w.conn.Close(); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}

// dial establishes the connection to the websocket server
func (w *WSClient) dial(ctx context.Context) error {
	var err error

	w.conn, _, err = ws.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial ws server %s: %w", w.url, err)
	}

	w.logger.Debug("connected to ws server", zap.String("url", w.url))
	return nil
}

func newRequest(typ string, channel string, productIDs []string) Request {
	return Request{
		Type:       typ,
		ProductIDs: productIDs,
		Channels:   []string{channel},
	}
}
