package entity

import "math/big"

// SuppliedPosition is the deposit side of one (user, asset) pair: the raw
// pToken share balance converted to underlying units via the stored exchange
// rate. A position with Err set carries neutral-zero amounts and must be
// treated as unknown, not as a verified zero.
type SuppliedPosition struct {
	AssetSymbol      string   `json:"assetSymbol"`
	RawShareBalance  *big.Int `json:"-"`
	ExchangeRate     *big.Int `json:"-"`
	UnderlyingAmount *big.Int `json:"-"`
	Formatted        string   `json:"formatted"`
	Err              error    `json:"-"`
}

// BorrowedPosition is the debt side of one (user, asset) pair. Debt is
// tracked in underlying units directly, no share-token indirection.
type BorrowedPosition struct {
	AssetSymbol string   `json:"assetSymbol"`
	RawDebt     *big.Int `json:"-"`
	Formatted   string   `json:"formatted"`
	Err         error    `json:"-"`
}

// PriceSource records where a resolved price came from.
type PriceSource int

const (
	// PriceSourceNone means no price could be resolved; the quote is zero.
	PriceSourceNone PriceSource = iota
	// PriceSourceOracle is a live on-chain oracle read.
	PriceSourceOracle
	// PriceSourceFallback is the configured (or feed-refreshed) static price.
	PriceSourceFallback
)

func (s PriceSource) String() string {
	switch s {
	case PriceSourceOracle:
		return "oracle"
	case PriceSourceFallback:
		return "fallback"
	default:
		return "none"
	}
}

// PriceQuote is a resolved USD unit price for one asset. Degraded is set when
// the quote did not come from the live oracle even though one was expected,
// or when no price was available at all.
type PriceQuote struct {
	AssetSymbol string      `json:"assetSymbol"`
	PriceUSD    float64     `json:"priceUsd"`
	Source      PriceSource `json:"-"`
	Degraded    bool        `json:"degraded,omitempty"`
}

// CollateralAsset is one entry of a snapshot's collateral breakdown.
type CollateralAsset struct {
	AssetSymbol       string  `json:"assetSymbol"`
	Formatted         string  `json:"formattedAmount"`
	PriceUSD          float64 `json:"priceUsd"`
	SuppliedValueUSD  float64 `json:"suppliedValueUsd"`
	CollateralFactor  float64 `json:"collateralFactor"`
	BorrowingPowerUSD float64 `json:"borrowingPowerUsd"`
	PriceDegraded     bool    `json:"priceDegraded,omitempty"`
}

// BorrowedAsset is one entry of a snapshot's debt breakdown.
type BorrowedAsset struct {
	AssetSymbol      string  `json:"assetSymbol"`
	Formatted        string  `json:"formattedAmount"`
	PriceUSD         float64 `json:"priceUsd"`
	BorrowedValueUSD float64 `json:"borrowedValueUsd"`
	PriceDegraded    bool    `json:"priceDegraded,omitempty"`
}
