package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	_envAppEnv           = "ENV"
	_envConfigFile       = "CONFIG_FILE"
	_envOutputPath       = "OUTPUT_PATH"
	_envTradingPairs     = "TRADING_PAIRS"
	_envWSUrl            = "WS_URL"
	_envWindowSize       = "WINDOW_SIZE"
	_envSubscribeTimeout = "SUBSCRIBE_TIMEOUT"
	_envMetricsAddr      = "METRICS_ADDR"

	_appEnvDevelopment = "dev"
	_defaultOutput     = "/tmp/vwaps.txt"
	_defaultWSUrl      = "wss://ws-feed.exchange.coinbase.com"
)

// Config holds the settings of the service. Every key can be set from the
// environment, or from the file named by CONFIG_FILE.
type Config struct {
	Dev              bool
	OutputPath       string
	TradingPairs     []string
	WSUrl            string
	WindowSize       int
	SubscribeTimeout time.Duration
	MetricsAddr      string
}

// Load reads the configuration, environment variables take precedence over
// the config file
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault(_envAppEnv, _appEnvDevelopment)
	v.SetDefault(_envOutputPath, _defaultOutput)
	v.SetDefault(_envTradingPairs, "BTC-USD,ETH-USD,ETH-BTC")
	v.SetDefault(_envWSUrl, _defaultWSUrl)
	v.SetDefault(_envWindowSize, 200)
	v.SetDefault(_envSubscribeTimeout, 10*time.Second)
	v.SetDefault(_envMetricsAddr, "")

	if file := v.GetString(_envConfigFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	config := Config{
		Dev:              v.GetString(_envAppEnv) == _appEnvDevelopment,
		OutputPath:       v.GetString(_envOutputPath),
		TradingPairs:     splitList(v.GetString(_envTradingPairs)),
		WSUrl:            v.GetString(_envWSUrl),
		WindowSize:       v.GetInt(_envWindowSize),
		SubscribeTimeout: v.GetDuration(_envSubscribeTimeout),
		MetricsAddr:      v.GetString(_envMetricsAddr),
	}

	if config.WindowSize < 1 {
		return Config{}, fmt.Errorf("%s must be positive, got %d", _envWindowSize, config.WindowSize)
	}
	if len(config.TradingPairs) == 0 {
		return Config{}, fmt.Errorf("%s is empty", _envTradingPairs)
	}

	return config, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
