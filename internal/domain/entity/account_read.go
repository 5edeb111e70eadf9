package entity

import "math/big"

// ZeroAddress is the Ethereum zero address.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// AccountReadKind identifies one read within a batched account-state request.
type AccountReadKind int

const (
	// ShareBalanceRead requests balanceOf(user) on the pToken.
	ShareBalanceRead AccountReadKind = iota
	// ExchangeRateRead requests exchangeRateStored() on the pToken.
	ExchangeRateRead
	// BorrowBalanceRead requests borrowBalanceStored(user) on the pToken.
	BorrowBalanceRead
)

func (k AccountReadKind) String() string {
	switch k {
	case ShareBalanceRead:
		return "shareBalance"
	case ExchangeRateRead:
		return "exchangeRate"
	case BorrowBalanceRead:
		return "borrowBalance"
	default:
		return "unknown"
	}
}

// AccountReadItem is a single sub-request of a batched account-state read.
type AccountReadItem struct {
	ID             string
	Kind           AccountReadKind
	AccountAddress string
	PTokenAddress  string
	AssetSymbol    string
}

// AccountReadResult is the outcome of one sub-request. A result carries
// either a value or an error, never both; an errored result must be folded
// into the model as unknown rather than as zero.
type AccountReadResult struct {
	RequestID      string
	Kind           AccountReadKind
	AccountAddress string
	PTokenAddress  string
	AssetSymbol    string
	Value          *big.Int
	Error          error
}

// AccountState is the full batched read for one (account, chain): the three
// per-asset reads for every registered market plus the comptroller's
// account-liquidity triple, all issued in a single JSON-RPC batch so the
// authoritative figure is at least as fresh as the per-asset reads it is
// reconciled against.
type AccountState struct {
	Results   []AccountReadResult
	Liquidity AccountLiquidity
	// LiquidityErr is set when the comptroller call itself failed (as
	// opposed to returning a nonzero protocol error code).
	LiquidityErr error
}
