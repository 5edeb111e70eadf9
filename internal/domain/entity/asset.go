package entity

import "strconv"

// AssetDescriptor holds the static configuration for one lending market asset.
// Descriptors are loaded once at startup from per-chain JSON files and never
// mutated at runtime.
type AssetDescriptor struct {
	ChainID              uint64  `json:"chainId" yaml:"chainId"`
	Symbol               string  `json:"symbol" yaml:"symbol"`
	PTokenAddress        string  `json:"pTokenAddress" yaml:"pTokenAddress"`
	UnderlyingAddress    string  `json:"underlyingAddress" yaml:"underlyingAddress"`
	Decimals             uint8   `json:"decimals" yaml:"decimals"`
	CollateralFactor     float64 `json:"collateralFactor" yaml:"collateralFactor"`
	LiquidationThreshold float64 `json:"liquidationThreshold" yaml:"liquidationThreshold"`
	LiquidationPenalty   float64 `json:"liquidationPenalty" yaml:"liquidationPenalty"`
	StaticPriceUSD       float64 `json:"staticPriceUsd" yaml:"staticPriceUsd"`
	HasMarket            bool    `json:"hasMarket" yaml:"hasMarket"`
}

// Key identifies an asset within a chain. Descriptors are keyed by
// (chainID, symbol) across the engine.
func (a AssetDescriptor) Key() string {
	return assetKey(a.ChainID, a.Symbol)
}

func assetKey(chainID uint64, symbol string) string {
	return symbol + "@" + strconv.FormatUint(chainID, 10)
}

// AssetKey builds the registry lookup key for a (chainID, symbol) pair.
func AssetKey(chainID uint64, symbol string) string {
	return assetKey(chainID, symbol)
}
