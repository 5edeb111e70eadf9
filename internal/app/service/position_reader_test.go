package service

import (
	"errors"
	"math/big"
	"testing"

	"borrow_engine/internal/domain/entity"
)

func wethAsset() entity.AssetDescriptor {
	return entity.AssetDescriptor{
		ChainID:          1,
		Symbol:           "WETH",
		PTokenAddress:    "0xPWETH00000000000000000000000000000000001",
		Decimals:         18,
		CollateralFactor: 0.8,
		HasMarket:        true,
	}
}

func TestSuppliedPositionConvertsShares(t *testing.T) {
	reader := NewPositionReader(nopLogger{})
	asset := wethAsset()

	// 2e18 shares at a 1.05 exchange rate -> 2.1e18 underlying.
	shares := new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18))
	rate := new(big.Int).Mul(big.NewInt(105), big.NewInt(1e16))
	state := entity.AccountState{Results: []entity.AccountReadResult{
		readResult("WETH", entity.ShareBalanceRead, shares),
		readResult("WETH", entity.ExchangeRateRead, rate),
	}}

	pos := reader.SuppliedPosition(state, asset)
	if pos.Err != nil {
		t.Fatalf("unexpected error: %v", pos.Err)
	}
	want := new(big.Int).Mul(big.NewInt(21), big.NewInt(1e17))
	if pos.UnderlyingAmount.Cmp(want) != 0 {
		t.Fatalf("expected %s underlying, got %s", want, pos.UnderlyingAmount)
	}
	if pos.Formatted != "2.1" {
		t.Fatalf("unexpected formatted amount: %q", pos.Formatted)
	}
}

func TestSuppliedPositionErroredReadIsNotZero(t *testing.T) {
	reader := NewPositionReader(nopLogger{})
	asset := wethAsset()

	state := entity.AccountState{Results: []entity.AccountReadResult{
		failedResult("WETH", entity.ShareBalanceRead, errors.New("execution reverted")),
		readResult("WETH", entity.ExchangeRateRead, big.NewInt(1e18)),
	}}

	pos := reader.SuppliedPosition(state, asset)
	if pos.Err == nil {
		t.Fatal("expected error to be carried on the position")
	}
	if pos.UnderlyingAmount.Sign() != 0 || pos.Formatted != "0.00" {
		t.Fatalf("errored position must carry neutral-zero amounts, got %s / %q", pos.UnderlyingAmount, pos.Formatted)
	}
}

func TestSuppliedPositionMissingReadIsAnError(t *testing.T) {
	reader := NewPositionReader(nopLogger{})
	asset := wethAsset()

	// Exchange rate read absent entirely.
	state := entity.AccountState{Results: []entity.AccountReadResult{
		readResult("WETH", entity.ShareBalanceRead, big.NewInt(100)),
	}}

	pos := reader.SuppliedPosition(state, asset)
	if pos.Err == nil {
		t.Fatal("a missing read must surface as an error, not a zero balance")
	}
}

func TestBorrowedPosition(t *testing.T) {
	reader := NewPositionReader(nopLogger{})
	asset := wethAsset()

	debt := new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18))
	state := entity.AccountState{Results: []entity.AccountReadResult{
		readResult("WETH", entity.BorrowBalanceRead, debt),
	}}

	pos := reader.BorrowedPosition(state, asset)
	if pos.Err != nil {
		t.Fatalf("unexpected error: %v", pos.Err)
	}
	if pos.RawDebt.Cmp(debt) != 0 {
		t.Fatalf("expected raw debt %s, got %s", debt, pos.RawDebt)
	}
	if pos.Formatted != "3.00" {
		t.Fatalf("unexpected formatted debt: %q", pos.Formatted)
	}
}

func TestBorrowedPositionErroredRead(t *testing.T) {
	reader := NewPositionReader(nopLogger{})
	asset := wethAsset()

	state := entity.AccountState{Results: []entity.AccountReadResult{
		failedResult("WETH", entity.BorrowBalanceRead, errors.New("timeout")),
	}}

	pos := reader.BorrowedPosition(state, asset)
	if pos.Err == nil {
		t.Fatal("expected error to be carried on the position")
	}
	if pos.RawDebt.Sign() != 0 {
		t.Fatalf("errored debt must be neutral zero, got %s", pos.RawDebt)
	}
}
