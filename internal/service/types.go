package service

import (
	streamer "vwap-service/internal/crypto-streamer"
	"vwap-service/internal/crypto-streamer/coinbase"
	"vwap-service/internal/trade"
)

type Provider = streamer.Provider

var _ Provider = (*coinbase.Coinbase)(nil)

type Servicer interface {
	Run() error
	AddTradingPairs(pairs ...trade.Pair)
	Stop()
}

var _ Servicer = (*Service)(nil)
