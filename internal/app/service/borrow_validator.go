package service

import (
	"context"
	"math"

	"borrow_engine/internal/app/port"
	"borrow_engine/internal/apperrors"
	"borrow_engine/internal/domain/entity"
	"borrow_engine/internal/infrastructure/configloader"
	"borrow_engine/internal/pkg/metrics"
)

// borrowValidatorImpl gates proposed borrows against a fresh snapshot. The
// checks are advisory pre-flight only: market state can move between
// validation and submission, so the on-chain contract remains the final
// authority.
type borrowValidatorImpl struct {
	powerService     port.BorrowingPowerService
	liquidityService port.LiquidityService
	priceResolver    port.PriceResolver
	registry         port.RegistryProvider
	chainProvider    port.ChainDefinitionProvider
	logger           port.Logger
	cfg              *configloader.Config
}

// NewBorrowValidator creates a new borrow validator.
func NewBorrowValidator(
	powerService port.BorrowingPowerService,
	liquidityService port.LiquidityService,
	priceResolver port.PriceResolver,
	registry port.RegistryProvider,
	chainProvider port.ChainDefinitionProvider,
	logger port.Logger,
	cfg *configloader.Config,
) port.BorrowValidator {
	return &borrowValidatorImpl{
		powerService:     powerService,
		liquidityService: liquidityService,
		priceResolver:    priceResolver,
		registry:         registry,
		chainProvider:    chainProvider,
		logger:           logger,
		cfg:              cfg,
	}
}

// ValidateBorrow implements port.BorrowValidator. Checks run in a fixed
// order: account capacity, then market liquidity, then the post-trade
// utilization guard. The first failed check decides the returned code.
func (v *borrowValidatorImpl) ValidateBorrow(ctx context.Context, conn entity.ConnectionContext, assetSymbol string, amount float64) error {
	err := v.validate(ctx, conn, assetSymbol, amount)

	outcome := "accepted"
	if err != nil {
		outcome = "internal"
		if appErr, ok := apperrors.As(err); ok {
			outcome = appErr.Code.Reason()
		}
	}
	metrics.BorrowValidationTotal.WithLabelValues(outcome).Inc()
	return err
}

func (v *borrowValidatorImpl) validate(ctx context.Context, conn entity.ConnectionContext, assetSymbol string, amount float64) error {
	if amount <= 0 {
		return apperrors.Newf(apperrors.CodeUsage, "borrow amount must be positive, got %g", amount)
	}

	asset, chain, err := v.lookupMarket(conn.ChainID, assetSymbol)
	if err != nil {
		return err
	}

	snapshot, _, err := v.powerService.ComputeSnapshot(ctx, conn)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to compute borrowing power", err)
	}

	quote := v.priceResolver.ResolvePrice(ctx, chain, asset)
	if quote.PriceUSD <= 0 {
		return apperrors.Newf(apperrors.CodeInternal, "no price available for %s, refusing to validate", assetSymbol)
	}
	borrowValueUSD := amount * quote.PriceUSD

	if borrowValueUSD > snapshot.AvailableBorrowingPowerUSD {
		return apperrors.Newf(apperrors.CodeInsufficientCapacity,
			"borrow of %.2f USD exceeds available borrowing power of %.2f USD; add collateral or borrow less",
			borrowValueUSD, snapshot.AvailableBorrowingPowerUSD)
	}

	liquidity, err := v.liquidityService.MarketLiquidity(ctx, conn.ChainID, assetSymbol)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to read market liquidity", err)
	}
	if amount > liquidity.AvailableCash {
		return apperrors.Newf(apperrors.CodeInsufficientLiquidity,
			"market holds %s %s, cannot cover a borrow of %g", liquidity.Formatted, assetSymbol, amount)
	}

	if snapshot.TotalBorrowingPowerUSD > 0 {
		projected := (snapshot.TotalBorrowedUSD + borrowValueUSD) / snapshot.TotalBorrowingPowerUSD * 100
		if projected > v.cfg.Thresholds.BorrowUtilizationGuard {
			return apperrors.Newf(apperrors.CodeUtilizationGuard,
				"borrow would raise collateral utilization to %.1f%%, above the %.1f%% guard",
				projected, v.cfg.Thresholds.BorrowUtilizationGuard)
		}
	}

	return nil
}

// MaxBorrowable implements port.BorrowValidator: the smaller of what the
// account's spare capacity affords at the current price and what the market
// actually holds.
func (v *borrowValidatorImpl) MaxBorrowable(ctx context.Context, conn entity.ConnectionContext, assetSymbol string) (float64, error) {
	asset, chain, err := v.lookupMarket(conn.ChainID, assetSymbol)
	if err != nil {
		return 0, err
	}

	snapshot, _, err := v.powerService.ComputeSnapshot(ctx, conn)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInternal, "failed to compute borrowing power", err)
	}

	quote := v.priceResolver.ResolvePrice(ctx, chain, asset)
	if quote.PriceUSD <= 0 {
		return 0, apperrors.Newf(apperrors.CodeInternal, "no price available for %s", assetSymbol)
	}

	liquidity, err := v.liquidityService.MarketLiquidity(ctx, conn.ChainID, assetSymbol)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInternal, "failed to read market liquidity", err)
	}

	byCapacity := snapshot.AvailableBorrowingPowerUSD / quote.PriceUSD
	return math.Min(byCapacity, liquidity.AvailableCash), nil
}

func (v *borrowValidatorImpl) lookupMarket(chainID uint64, assetSymbol string) (entity.AssetDescriptor, entity.ChainDefinition, error) {
	chain, ok := v.chainProvider.GetChainDefinitionByID(chainID)
	if !ok {
		return entity.AssetDescriptor{}, entity.ChainDefinition{}, apperrors.Newf(apperrors.CodeUsage, "chain %d is not active", chainID)
	}
	asset, ok := v.registry.AssetBySymbol(chainID, assetSymbol)
	if !ok {
		return entity.AssetDescriptor{}, entity.ChainDefinition{}, apperrors.Newf(apperrors.CodeUnknownAsset, "asset %s is not registered on chain %d", assetSymbol, chainID)
	}
	if !asset.HasMarket || asset.PTokenAddress == "" {
		return entity.AssetDescriptor{}, entity.ChainDefinition{}, apperrors.Newf(apperrors.CodeNoMarket, "asset %s has no market on chain %d", assetSymbol, chainID)
	}
	return asset, chain, nil
}
