package entity

// RiskTier is the discrete liquidation-risk classification derived from
// collateral utilization. Ordering is RiskSafe < RiskModerate < RiskHigh.
type RiskTier int

const (
	RiskSafe RiskTier = iota
	RiskModerate
	RiskHigh
)

func (r RiskTier) String() string {
	switch r {
	case RiskModerate:
		return "moderate"
	case RiskHigh:
		return "high"
	default:
		return "safe"
	}
}

// MarshalJSON renders the tier as its string name.
func (r RiskTier) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// RiskForUtilization classifies a utilization percentage against the tier
// thresholds. Thresholds are exclusive lower bounds on the next tier: a
// utilization exactly equal to moderateAbove is still safe.
func RiskForUtilization(utilization, moderateAbove, highAbove float64) RiskTier {
	switch {
	case utilization > highAbove:
		return RiskHigh
	case utilization > moderateAbove:
		return RiskModerate
	default:
		return RiskSafe
	}
}

// BorrowingPowerSnapshot is the aggregate result for one account on one
// chain. It is a pure function of its inputs and carries no identity; a new
// snapshot replaces the previous one on every refresh cycle.
type BorrowingPowerSnapshot struct {
	Connection ConnectionContext `json:"connection"`

	TotalSuppliedUSD           float64  `json:"totalSuppliedUsd"`
	TotalBorrowedUSD           float64  `json:"totalBorrowedUsd"`
	TotalBorrowingPowerUSD     float64  `json:"totalBorrowingPowerUsd"`
	AvailableBorrowingPowerUSD float64  `json:"availableBorrowingPowerUsd"`
	CollateralUtilization      float64  `json:"collateralUtilization"`
	LiquidationRisk            RiskTier `json:"liquidationRisk"`

	CollateralAssets []CollateralAsset `json:"collateralAssets"`
	BorrowedAssets   []BorrowedAsset   `json:"borrowedAssets"`

	// DataComplete is false when any constituent read failed and its asset
	// was excluded from the totals. Callers must not treat an incomplete
	// snapshot's totals as exhaustive.
	DataComplete bool `json:"dataComplete"`
	// Degraded is set when any price came from a fallback source or when
	// the per-asset breakdown had to be abandoned entirely.
	Degraded bool `json:"degraded"`
	// Reconciled is set when the authoritative on-chain liquidity figure
	// replaced the locally computed available borrowing power.
	Reconciled bool `json:"reconciled"`
}
