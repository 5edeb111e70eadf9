package entity

import "math/big"

// MarketLiquidity is the uncommitted cash available to borrow from one
// market's pool, refreshed independently of any user state.
type MarketLiquidity struct {
	AssetSymbol   string   `json:"assetSymbol"`
	ChainID       uint64   `json:"chainId"`
	RawCash       *big.Int `json:"-"`
	AvailableCash float64  `json:"availableCash"` // underlying units
	Formatted     string   `json:"formatted"`
}

// AccountLiquidity is the protocol's authoritative computation of an
// account's spare capacity (or shortfall), as returned by the comptroller's
// getAccountLiquidity call. LiquidityUSD and ShortfallUSD are 1e18-scaled
// USD mantissas; at most one of the two is nonzero.
type AccountLiquidity struct {
	ErrorCode    uint64
	LiquidityUSD *big.Int
	ShortfallUSD *big.Int
}

// OK reports whether the comptroller call itself succeeded.
func (a AccountLiquidity) OK() bool {
	return a.ErrorCode == 0
}
