package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"vwap-service/internal/trade"
)

type ProviderMock struct {
	mock.Mock
}

func (p *ProviderMock) Subscribe(ctx context.Context, pair trade.Pair) (<-chan trade.Trade, error) {
	ret := p.Called(ctx, pair)

	var r0 <-chan trade.Trade
	if rf, ok := ret.Get(0).(chan trade.Trade); ok {
		r0 = rf
	}

	var r1 error
	if rf, ok := ret.Get(1).(error); ok {
		r1 = rf
	}

	return r0, r1
}
