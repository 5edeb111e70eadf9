package utils

import (
	"fmt"
	"math/big"
	"strings"
)

// mantissaScale is the fixed-point scale used by pToken exchange rates and
// oracle prices (1e18).
var mantissaScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// SharesToUnderlying converts a pToken share balance to underlying units:
// shares * exchangeRate / 1e18. Returns zero for nil inputs.
func SharesToUnderlying(shares, exchangeRate *big.Int) *big.Int {
	if shares == nil || exchangeRate == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(shares, exchangeRate)
	return out.Quo(out, mantissaScale)
}

// ToFloat converts a base-unit amount to a float value in human units using
// the asset's decimals. Precision loss is acceptable here: the result feeds
// USD valuation and display, never on-chain amounts.
func ToFloat(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	amountFloat := new(big.Float).SetInt(amount)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value, _ := new(big.Float).Quo(amountFloat, divisor).Float64()
	return value
}

// ValueUSD computes amount * priceUSD in human units, scaling the base-unit
// amount by the asset's decimals.
func ValueUSD(amount *big.Int, decimals uint8, priceUSD float64) (float64, error) {
	if amount == nil {
		return 0, fmt.Errorf("nil amount")
	}
	if priceUSD < 0 {
		return 0, fmt.Errorf("negative price %f", priceUSD)
	}
	return ToFloat(amount, decimals) * priceUSD, nil
}

// MantissaToUSD converts a 1e18-scaled USD mantissa (the comptroller's
// liquidity/shortfall figures) to a float USD value.
func MantissaToUSD(mantissa *big.Int) float64 {
	return ToFloat(mantissa, 18)
}

// FormatUnderlying renders a base-unit amount as a human-readable string
// using the asset's decimals, with at most 4 decimal places. An exact zero
// renders as "0.00"; any nonzero amount that would round down to zero
// renders as "< 0.01" so a small balance is never displayed as zero.
func FormatUnderlying(amount *big.Int, decimals uint8) string {
	if amount == nil || amount.Sign() == 0 {
		return "0.00"
	}

	value := ToFloat(amount, decimals)
	if value > 0 && value < 0.01 {
		return "< 0.01"
	}

	formatted := new(big.Float).SetInt(amount)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	formatted.Quo(formatted, divisor)

	s := formatted.Text('f', 4)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	// Keep at least two decimal places for amounts that trimmed to an integer.
	if !strings.Contains(s, ".") {
		s += ".00"
	}
	return s
}
