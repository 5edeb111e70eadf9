package port

import (
	"context"

	"borrow_engine/internal/domain/entity"
)

// PriceResolver produces a USD unit price for an asset, preferring a live
// oracle read and falling back to the configured static price. It never
// returns an error: absence of a price resolves to a zero, degraded quote.
type PriceResolver interface {
	ResolvePrice(ctx context.Context, chain entity.ChainDefinition, asset entity.AssetDescriptor) entity.PriceQuote
}

// PositionReader resolves the supplied and borrowed side of one (user, asset)
// pair from already-fetched account state. Errored upstream reads degrade to
// neutral-zero positions with the Err field set.
type PositionReader interface {
	SuppliedPosition(state entity.AccountState, asset entity.AssetDescriptor) entity.SuppliedPosition
	BorrowedPosition(state entity.AccountState, asset entity.AssetDescriptor) entity.BorrowedPosition
}

// BorrowingPowerService computes aggregate borrowing-power snapshots.
type BorrowingPowerService interface {
	// ComputeSnapshot builds a fresh snapshot for the given connection. Read
	// failures are absorbed into the returned ReadError slice; the returned
	// error is reserved for total failures where not even a degraded
	// snapshot could be derived.
	ComputeSnapshot(ctx context.Context, conn entity.ConnectionContext) (entity.BorrowingPowerSnapshot, []entity.ReadError, error)
}

// LiquidityService serves per-market cash figures, refreshed on an interval
// independent of user state.
type LiquidityService interface {
	MarketLiquidity(ctx context.Context, chainID uint64, assetSymbol string) (entity.MarketLiquidity, error)
	RefreshChain(ctx context.Context, chainID uint64) error
}

// BorrowValidator gates proposed borrows before submission. Validation is
// advisory pre-flight; the on-chain contract remains the final authority.
type BorrowValidator interface {
	// ValidateBorrow returns nil when the proposed borrow of amount (in
	// human underlying units) is admissible, or a typed apperrors.Error
	// naming the rejection reason.
	ValidateBorrow(ctx context.Context, conn entity.ConnectionContext, assetSymbol string, amount float64) error

	// MaxBorrowable returns the largest admissible borrow amount in human
	// underlying units, bounded by both account capacity and market cash.
	MaxBorrowable(ctx context.Context, conn entity.ConnectionContext, assetSymbol string) (float64, error)
}
