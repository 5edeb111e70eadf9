package configloader

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds server-specific configurations.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// PriceFeedConfig holds reference price feed API specific configurations.
type PriceFeedConfig struct {
	BaseURL                  string `yaml:"baseURL"`
	RequestTimeoutMillis     int64  `yaml:"requestTimeoutMillis"`
	MaxTokensPerBatchRequest int    `yaml:"maxTokensPerBatchRequest"`
	RefreshIntervalMinutes   int    `yaml:"refreshIntervalMinutes"`
	Enabled                  bool   `yaml:"enabled"`
}

// ThresholdsConfig holds the risk-classification and validation thresholds.
// All utilization values are percentages.
type ThresholdsConfig struct {
	ModerateRiskAbove      float64 `yaml:"moderateRiskAbove"`
	HighRiskAbove          float64 `yaml:"highRiskAbove"`
	BorrowUtilizationGuard float64 `yaml:"borrowUtilizationGuard"`
	ReconcileToleranceUSD  float64 `yaml:"reconcileToleranceUSD"`
}

// PollingConfig holds the refresh cadence for snapshots and market liquidity.
type PollingConfig struct {
	SnapshotIntervalSeconds  int `yaml:"snapshotIntervalSeconds"`
	LiquidityIntervalSeconds int `yaml:"liquidityIntervalSeconds"`
	LiquidityCacheTTLSeconds int `yaml:"liquidityCacheTTLSeconds"`
	PriceCacheTTLSeconds     int `yaml:"priceCacheTTLSeconds"`
	// MaxRefreshPerSecond caps how fast refresh triggers may reach the RPC
	// layer, across interval ticks and explicit refresh requests.
	MaxRefreshPerSecond float64 `yaml:"maxRefreshPerSecond"`
}

// PerformanceConfig holds performance-related configurations.
type PerformanceConfig struct {
	MaxConcurrentRoutines int `yaml:"max_concurrent_routines"`
	RPCCallTimeoutSeconds int `yaml:"rpc_call_timeout_seconds"`
}

// ChainNodeConfig holds per-chain overrides merged over the predefined chain
// definitions.
type ChainNodeConfig struct {
	Identifier         string `yaml:"identifier"`
	RPCURL             string `yaml:"rpcURL"`
	ComptrollerAddress string `yaml:"comptrollerAddress"`
	OracleAddress      string `yaml:"oracleAddress"`
	LiveOracle         *bool  `yaml:"liveOracle,omitempty"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server        ServerConfig      `yaml:"server"`
	Logging       LoggingConfig     `yaml:"logging"`
	PriceFeed     PriceFeedConfig   `yaml:"priceFeed"`
	Thresholds    ThresholdsConfig  `yaml:"thresholds"`
	Polling       PollingConfig     `yaml:"polling"`
	Performance   PerformanceConfig `yaml:"performance"`
	Chains        []ChainNodeConfig `yaml:"chains"`
	MarketDataDir string            `yaml:"marketDataDir"`
	WatchlistPath string            `yaml:"watchlistPath"`
}

// Load reads the YAML configuration file from the given path and unmarshals
// it, applying defaults for anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data from %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if cfg.Thresholds.ModerateRiskAbove >= cfg.Thresholds.HighRiskAbove {
		return nil, fmt.Errorf("thresholds: moderateRiskAbove (%.1f) must be below highRiskAbove (%.1f)",
			cfg.Thresholds.ModerateRiskAbove, cfg.Thresholds.HighRiskAbove)
	}
	if cfg.Thresholds.BorrowUtilizationGuard > cfg.Thresholds.HighRiskAbove {
		return nil, fmt.Errorf("thresholds: borrowUtilizationGuard (%.1f) must not exceed highRiskAbove (%.1f)",
			cfg.Thresholds.BorrowUtilizationGuard, cfg.Thresholds.HighRiskAbove)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Performance.MaxConcurrentRoutines <= 0 {
		cfg.Performance.MaxConcurrentRoutines = 10
	}
	if cfg.Performance.RPCCallTimeoutSeconds <= 0 {
		cfg.Performance.RPCCallTimeoutSeconds = 10
	}

	if cfg.PriceFeed.BaseURL == "" {
		cfg.PriceFeed.BaseURL = "https://api.dexscreener.com"
	}
	if cfg.PriceFeed.RequestTimeoutMillis == 0 {
		cfg.PriceFeed.RequestTimeoutMillis = 10000
	}
	if cfg.PriceFeed.MaxTokensPerBatchRequest == 0 {
		cfg.PriceFeed.MaxTokensPerBatchRequest = 30
	}
	if cfg.PriceFeed.RefreshIntervalMinutes == 0 {
		cfg.PriceFeed.RefreshIntervalMinutes = 60
	}

	if cfg.Thresholds.ModerateRiskAbove == 0 {
		cfg.Thresholds.ModerateRiskAbove = 75
	}
	if cfg.Thresholds.HighRiskAbove == 0 {
		cfg.Thresholds.HighRiskAbove = 90
	}
	if cfg.Thresholds.BorrowUtilizationGuard == 0 {
		cfg.Thresholds.BorrowUtilizationGuard = 85
	}
	if cfg.Thresholds.ReconcileToleranceUSD == 0 {
		cfg.Thresholds.ReconcileToleranceUSD = 0.01
	}

	if cfg.Polling.SnapshotIntervalSeconds <= 0 {
		cfg.Polling.SnapshotIntervalSeconds = 30
	}
	if cfg.Polling.LiquidityIntervalSeconds <= 0 {
		cfg.Polling.LiquidityIntervalSeconds = 15
	}
	if cfg.Polling.LiquidityCacheTTLSeconds <= 0 {
		cfg.Polling.LiquidityCacheTTLSeconds = 15
	}
	if cfg.Polling.PriceCacheTTLSeconds <= 0 {
		cfg.Polling.PriceCacheTTLSeconds = 30
	}
	if cfg.Polling.MaxRefreshPerSecond <= 0 {
		cfg.Polling.MaxRefreshPerSecond = 2
	}

	if cfg.MarketDataDir == "" {
		cfg.MarketDataDir = "data/markets"
	}
	if cfg.WatchlistPath == "" {
		cfg.WatchlistPath = "data/watchlist.txt"
	}
}
