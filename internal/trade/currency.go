package trade

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownCurrency = errors.New("unknown currency")

// Currency is a currency symbol as listed by the exchange
type Currency string

const (
	USD  Currency = "USD"
	USDT Currency = "USDT"
	USDC Currency = "USDC"
	EUR  Currency = "EUR"
	GBP  Currency = "GBP"
	BTC  Currency = "BTC"
	ETH  Currency = "ETH"
	LTC  Currency = "LTC"
	SOL  Currency = "SOL"
)

// currencies holds every supported Currency, new ones must be added here
// before they can be parsed
var currencies = map[string]Currency{
	"USD":  USD,
	"USDT": USDT,
	"USDC": USDC,
	"EUR":  EUR,
	"GBP":  GBP,
	"BTC":  BTC,
	"ETH":  ETH,
	"LTC":  LTC,
	"SOL":  SOL,
}

// ParseCurrency returns the Currency matching the given symbol, case is ignored
func ParseCurrency(symbol string) (Currency, error) {
	c, ok := currencies[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return "", fmt.Errorf("parse currency '%s': %w", symbol, ErrUnknownCurrency)
	}
	return c, nil
}

func (c Currency) String() string {
	return string(c)
}
