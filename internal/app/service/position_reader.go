package service

import (
	"fmt"
	"math/big"

	"borrow_engine/internal/app/port"
	"borrow_engine/internal/domain/entity"
	"borrow_engine/internal/pkg/utils"
)

// positionReaderImpl derives per-asset positions from a batched account
// state. It holds no connections of its own; all on-chain data arrives
// through entity.AccountState.
type positionReaderImpl struct {
	logger port.Logger
}

// NewPositionReader creates a new position reader service.
func NewPositionReader(logger port.Logger) port.PositionReader {
	return &positionReaderImpl{logger: logger}
}

// SuppliedPosition converts an asset's raw share balance to underlying units
// via the stored exchange rate. If either of the two constituent reads
// failed, the position is returned with neutral-zero amounts and Err set so
// the aggregation layer can exclude it instead of treating it as a zero.
func (r *positionReaderImpl) SuppliedPosition(state entity.AccountState, asset entity.AssetDescriptor) entity.SuppliedPosition {
	pos := entity.SuppliedPosition{
		AssetSymbol:      asset.Symbol,
		RawShareBalance:  new(big.Int),
		ExchangeRate:     new(big.Int),
		UnderlyingAmount: new(big.Int),
		Formatted:        "0.00",
	}

	shares, sharesErr := findResult(state, asset.Symbol, entity.ShareBalanceRead)
	rate, rateErr := findResult(state, asset.Symbol, entity.ExchangeRateRead)
	if sharesErr != nil {
		pos.Err = sharesErr
		return pos
	}
	if rateErr != nil {
		pos.Err = rateErr
		return pos
	}

	pos.RawShareBalance = shares
	pos.ExchangeRate = rate
	pos.UnderlyingAmount = utils.SharesToUnderlying(shares, rate)
	pos.Formatted = utils.FormatUnderlying(pos.UnderlyingAmount, asset.Decimals)
	return pos
}

// BorrowedPosition extracts an asset's outstanding debt. Debt is already in
// underlying units, so no exchange-rate conversion applies.
func (r *positionReaderImpl) BorrowedPosition(state entity.AccountState, asset entity.AssetDescriptor) entity.BorrowedPosition {
	pos := entity.BorrowedPosition{
		AssetSymbol: asset.Symbol,
		RawDebt:     new(big.Int),
		Formatted:   "0.00",
	}

	debt, err := findResult(state, asset.Symbol, entity.BorrowBalanceRead)
	if err != nil {
		pos.Err = err
		return pos
	}

	pos.RawDebt = debt
	pos.Formatted = utils.FormatUnderlying(debt, asset.Decimals)
	return pos
}

// findResult locates the read result for one (asset, kind) pair. A missing
// result is reported as an error: an absent read must never be folded into
// the model as a zero balance.
func findResult(state entity.AccountState, assetSymbol string, kind entity.AccountReadKind) (*big.Int, error) {
	for i := range state.Results {
		res := &state.Results[i]
		if res.AssetSymbol != assetSymbol || res.Kind != kind {
			continue
		}
		if res.Error != nil {
			return nil, res.Error
		}
		if res.Value == nil {
			return nil, fmt.Errorf("read %s for %s returned no value", res.RequestID, assetSymbol)
		}
		return res.Value, nil
	}
	return nil, fmt.Errorf("no %v read result for asset %s", kind, assetSymbol)
}
