package trade

import (
	"errors"
	"fmt"
	"strings"
)

const pairSeparator = "-"

var ErrInvalidPair = errors.New("invalid trading pair")

// Pair is a market identified by its base and quote currencies
type Pair struct {
	Base  Currency
	Quote Currency
}

// NewPair creates a new trading pair
func NewPair(base, quote Currency) Pair {
	return Pair{Base: base, Quote: quote}
}

// String returns the canonical "BASE-QUOTE" form. It is used verbatim as the
// exchange product id.
func (p Pair) String() string {
	return p.Base.String() + pairSeparator + p.Quote.String()
}

// ParsePair parses a trading pair from its canonical form, e.g. "BTC-USD"
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(strings.TrimSpace(s), pairSeparator)
	if len(parts) != 2 {
		return Pair{}, fmt.Errorf("parse pair '%s': %w", s, ErrInvalidPair)
	}

	base, err := ParseCurrency(parts[0])
	if err != nil {
		return Pair{}, fmt.Errorf("parse pair '%s': %w", s, err)
	}

	quote, err := ParseCurrency(parts[1])
	if err != nil {
		return Pair{}, fmt.Errorf("parse pair '%s': %w", s, err)
	}

	if base == quote {
		return Pair{}, fmt.Errorf("parse pair '%s': base equals quote: %w", s, ErrInvalidPair)
	}

	return NewPair(base, quote), nil
}

// ParsePairs parses every given trading pair, skipping empty entries
func ParsePairs(ss ...string) ([]Pair, error) {
	pairs := make([]Pair, 0, len(ss))
	for _, s := range ss {
		if strings.TrimSpace(s) == "" {
			continue
		}

		p, err := ParsePair(s)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}
