package entity

// ChainDefinition holds the configuration for one supported blockchain network.
// This structure is defined at the domain level to be used across application
// and infrastructure layers.
type ChainDefinition struct {
	ChainID            uint64   `json:"chainId" yaml:"chainId"`
	Name               string   `json:"name" yaml:"name"`
	Identifier         string   `json:"identifier" yaml:"identifier"` // unique short name, e.g. "ethereum"
	PrimaryRPCURL      string   `json:"primaryRpcUrl" yaml:"primaryRpcUrl"`
	FallbackRPCURLs    []string `json:"fallbackRpcUrls" yaml:"fallbackRpcUrls"`
	ComptrollerAddress string   `json:"comptrollerAddress" yaml:"comptrollerAddress"`
	OracleAddress      string   `json:"oracleAddress" yaml:"oracleAddress"`
	BlockExplorerURL   string   `json:"blockExplorerUrl,omitempty" yaml:"blockExplorerUrl,omitempty"`
	// LiveOracle marks whether getUnderlyingPrice may be called on this
	// chain. Everywhere else the price resolver uses fallback prices only.
	LiveOracle bool `json:"liveOracle" yaml:"liveOracle"`
	// PriceFeedChainID is the identifier used by the external reference
	// price feed (empty when the feed does not cover this chain).
	PriceFeedChainID string `json:"priceFeedChainId,omitempty" yaml:"priceFeedChainId,omitempty"`
}
