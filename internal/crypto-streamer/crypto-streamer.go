package crypto_streamer

import (
	"context"
	"errors"
	"fmt"

	"vwap-service/internal/trade"
)

var (
	// ErrConnection is returned when the exchange cannot be reached or the
	// connection fails during the subscription handshake
	ErrConnection = errors.New("connection error")

	// ErrSubscriptionTimeout is returned when the exchange does not acknowledge
	// a subscription in time
	ErrSubscriptionTimeout = errors.New("subscription timeout")

	// ErrSubscriptionMalformed is returned when the handshake reply cannot be
	// decoded or the exchange rejects the subscription
	ErrSubscriptionMalformed = errors.New("subscription malformed")
)

// Provider creates a stream of trades for a trading pair. Each exchange
// implements it. The returned channel is closed once the underlying connection
// ends, either because ctx was cancelled or the exchange hung up.
type Provider interface {
	Subscribe(ctx context.Context, pair trade.Pair) (<-chan trade.Trade, error)
}

// DecodeError reports a single frame that could not be decoded. The frame is
// dropped and the stream carries on.
type DecodeError struct {
	Frame []byte
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame %q: %v", e.Frame, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc func(ctx context.Context, pair trade.Pair) (<-chan trade.Trade, error)

func (f ProviderFunc) Subscribe(ctx context.Context, pair trade.Pair) (<-chan trade.Trade, error) {
	return f(ctx, pair)
}
