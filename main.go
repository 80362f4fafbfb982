package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"vwap-service/internal/config"
	"vwap-service/internal/crypto-streamer/coinbase"
	"vwap-service/internal/metrics"
	"vwap-service/internal/service"
	"vwap-service/internal/trade"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	logger := initLogger(cfg.Dev)
	defer logger.Sync()

	pairs, err := trade.ParsePairs(cfg.TradingPairs...)
	if err != nil {
		logger.Fatal("invalid trading pairs", zap.Error(err))
	}

	// create new file
	output, err := os.OpenFile(cfg.OutputPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		logger.Fatal("could not open output", zap.String("path", cfg.OutputPath), zap.Error(err))
	}
	defer output.Close()

	m := initMetrics(cfg.MetricsAddr, logger)

	// prepare new exchange provider
	provider := coinbase.New(
		coinbase.WithLogger(logger),
		coinbase.WithWSUrl(cfg.WSUrl),
		coinbase.WithSubscribeTimeout(cfg.SubscribeTimeout),
		coinbase.WithMetrics(m),
	)

	// prepare engine
	engine := service.NewService(ctx, provider,
		service.WithLogger(logger),
		service.WithOutput(output),
		service.WithMaxDataPts(cfg.WindowSize),
		service.WithMetrics(m),
	)
	engine.AddTradingPairs(pairs...)

	// run engine
	done := make(chan error, 1)
	go func() {
		done <- engine.Run()
	}()

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-termChan:
		logger.Info("shutting down")
		engine.Stop()
		err = <-done
	case err = <-done:
	}

	if err != nil {
		logger.Error("service stopped with errors", zap.Error(err))
	}
}

func initLogger(isDev bool) *zap.Logger {
	var err error
	var logger *zap.Logger

	if isDev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}

	if err != nil {
		panic(err)
	}

	return logger
}

// initMetrics serves the prometheus metrics on addr, metrics are not
// collected when addr is empty
func initMetrics(addr string, logger *zap.Logger) *metrics.Metrics {
	if addr == "" {
		return nil
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	return m
}
