package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"borrow_engine/internal/app/port"
	"borrow_engine/internal/domain/entity"
	"borrow_engine/internal/infrastructure/configloader"
	"borrow_engine/internal/pkg/metrics"
	"borrow_engine/internal/pkg/utils"
)

// borrowingPowerServiceImpl aggregates per-asset positions and prices into a
// single borrowing-power snapshot per (account, chain). Read failures are
// absorbed: a failed asset is excluded from the totals and flagged, and only
// when not even a degraded snapshot can be derived does ComputeSnapshot
// return an error.
type borrowingPowerServiceImpl struct {
	registry       port.RegistryProvider
	chainProvider  port.ChainDefinitionProvider
	readerProvider port.MarketReaderProvider
	priceResolver  port.PriceResolver
	positionReader port.PositionReader
	logger         port.Logger
	cfg            *configloader.Config
}

// NewBorrowingPowerService creates a new borrowing power aggregation service.
func NewBorrowingPowerService(
	registry port.RegistryProvider,
	chainProvider port.ChainDefinitionProvider,
	readerProvider port.MarketReaderProvider,
	priceResolver port.PriceResolver,
	positionReader port.PositionReader,
	logger port.Logger,
	cfg *configloader.Config,
) port.BorrowingPowerService {
	return &borrowingPowerServiceImpl{
		registry:       registry,
		chainProvider:  chainProvider,
		readerProvider: readerProvider,
		priceResolver:  priceResolver,
		positionReader: positionReader,
		logger:         logger,
		cfg:            cfg,
	}
}

// assetValuation is one asset's resolved positions and price, produced by
// the fan-out phase and folded into the totals sequentially.
type assetValuation struct {
	asset    entity.AssetDescriptor
	supplied entity.SuppliedPosition
	borrowed entity.BorrowedPosition
	quote    entity.PriceQuote
}

// ComputeSnapshot implements port.BorrowingPowerService.
func (s *borrowingPowerServiceImpl) ComputeSnapshot(ctx context.Context, conn entity.ConnectionContext) (entity.BorrowingPowerSnapshot, []entity.ReadError, error) {
	chain, ok := s.chainProvider.GetChainDefinitionByID(conn.ChainID)
	if !ok {
		return entity.BorrowingPowerSnapshot{}, nil, fmt.Errorf("chain %d is not active", conn.ChainID)
	}

	reader, err := s.readerProvider.GetReader(chain)
	if err != nil {
		return entity.BorrowingPowerSnapshot{}, nil, fmt.Errorf("failed to get market reader for %s: %w", chain.Name, err)
	}

	assets := activeMarkets(s.registry.AssetsForChain(conn.ChainID))
	if len(assets) == 0 {
		return entity.BorrowingPowerSnapshot{}, nil, fmt.Errorf("no registered markets for chain %s", chain.Name)
	}

	state, err := reader.GetAccountState(ctx, conn.Address, assets)
	if err != nil {
		// The whole batch failed. Fall back to the comptroller's aggregate
		// figure alone so the caller still gets minimal totals.
		s.logger.Error("Batched account read failed, attempting degraded snapshot",
			"account", conn.Address, "chain", chain.Name, "error", err)
		return s.degradedSnapshot(ctx, reader, chain, conn, err)
	}

	valuations := s.valueAssets(ctx, chain, state, assets)

	snapshot := entity.BorrowingPowerSnapshot{
		Connection:       conn,
		LiquidationRisk:  entity.RiskSafe,
		CollateralAssets: make([]entity.CollateralAsset, 0, len(assets)),
		BorrowedAssets:   make([]entity.BorrowedAsset, 0, len(assets)),
		DataComplete:     true,
	}
	var readErrors []entity.ReadError

	for _, v := range valuations {
		if v.supplied.Err != nil || v.borrowed.Err != nil {
			// Exclude-and-flag: an errored read must never enter the totals
			// as a zero, so the asset is dropped and the snapshot marked
			// incomplete.
			snapshot.DataComplete = false
			readErrors = append(readErrors, readErrorFor(conn, v))
			continue
		}

		priceDegraded := v.quote.Degraded
		if priceDegraded {
			snapshot.Degraded = true
		}

		if v.supplied.UnderlyingAmount.Sign() > 0 {
			suppliedUSD := utils.ToFloat(v.supplied.UnderlyingAmount, v.asset.Decimals) * v.quote.PriceUSD
			power := suppliedUSD * v.asset.CollateralFactor
			snapshot.TotalSuppliedUSD += suppliedUSD
			snapshot.TotalBorrowingPowerUSD += power
			snapshot.CollateralAssets = append(snapshot.CollateralAssets, entity.CollateralAsset{
				AssetSymbol:       v.asset.Symbol,
				Formatted:         v.supplied.Formatted,
				PriceUSD:          v.quote.PriceUSD,
				SuppliedValueUSD:  suppliedUSD,
				CollateralFactor:  v.asset.CollateralFactor,
				BorrowingPowerUSD: power,
				PriceDegraded:     priceDegraded,
			})
		}

		if v.borrowed.RawDebt.Sign() > 0 {
			borrowedUSD := utils.ToFloat(v.borrowed.RawDebt, v.asset.Decimals) * v.quote.PriceUSD
			snapshot.TotalBorrowedUSD += borrowedUSD
			snapshot.BorrowedAssets = append(snapshot.BorrowedAssets, entity.BorrowedAsset{
				AssetSymbol:      v.asset.Symbol,
				Formatted:        v.borrowed.Formatted,
				PriceUSD:         v.quote.PriceUSD,
				BorrowedValueUSD: borrowedUSD,
				PriceDegraded:    priceDegraded,
			})
		}
	}

	snapshot.AvailableBorrowingPowerUSD = math.Max(0, snapshot.TotalBorrowingPowerUSD-snapshot.TotalBorrowedUSD)
	if snapshot.TotalBorrowingPowerUSD > 0 {
		snapshot.CollateralUtilization = snapshot.TotalBorrowedUSD / snapshot.TotalBorrowingPowerUSD * 100
	}
	snapshot.LiquidationRisk = entity.RiskForUtilization(
		snapshot.CollateralUtilization,
		s.cfg.Thresholds.ModerateRiskAbove,
		s.cfg.Thresholds.HighRiskAbove,
	)

	s.reconcile(&snapshot, state, chain)

	metrics.SnapshotRefreshTotal.WithLabelValues(chain.Identifier).Inc()
	if snapshot.Degraded || !snapshot.DataComplete {
		metrics.DegradedSnapshotTotal.WithLabelValues(chain.Identifier).Inc()
	}
	return snapshot, readErrors, nil
}

// valueAssets resolves positions and prices for every asset. Position
// extraction is pure, but price resolution may hit the oracle, so the quotes
// are fanned out under the configured concurrency limit.
func (s *borrowingPowerServiceImpl) valueAssets(ctx context.Context, chain entity.ChainDefinition, state entity.AccountState, assets []entity.AssetDescriptor) []assetValuation {
	valuations := make([]assetValuation, len(assets))

	concurrencyLimit := 5
	if s.cfg != nil && s.cfg.Performance.MaxConcurrentRoutines > 0 {
		concurrencyLimit = s.cfg.Performance.MaxConcurrentRoutines
	}
	sem := make(chan struct{}, concurrencyLimit)
	var wg sync.WaitGroup

	for i, asset := range assets {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, asset entity.AssetDescriptor) {
			defer wg.Done()
			defer func() { <-sem }()

			valuations[i] = assetValuation{
				asset:    asset,
				supplied: s.positionReader.SuppliedPosition(state, asset),
				borrowed: s.positionReader.BorrowedPosition(state, asset),
				quote:    s.priceResolver.ResolvePrice(ctx, chain, asset),
			}
		}(i, asset)
	}
	wg.Wait()

	return valuations
}

// reconcile compares the locally computed available borrowing power against
// the comptroller's figure fetched in the same batch. On divergence beyond
// the tolerance the on-chain figure wins: the protocol's own computation is
// authoritative over a client-side reconstruction of it.
func (s *borrowingPowerServiceImpl) reconcile(snapshot *entity.BorrowingPowerSnapshot, state entity.AccountState, chain entity.ChainDefinition) {
	if state.LiquidityErr != nil {
		s.logger.Warn("Account liquidity read failed, skipping reconciliation",
			"account", snapshot.Connection.Address, "chain", chain.Name, "error", state.LiquidityErr)
		snapshot.Degraded = true
		return
	}
	if !state.Liquidity.OK() {
		s.logger.Warn("Comptroller returned error code, skipping reconciliation",
			"account", snapshot.Connection.Address, "chain", chain.Name, "errorCode", state.Liquidity.ErrorCode)
		snapshot.Degraded = true
		return
	}

	onchain := utils.MantissaToUSD(state.Liquidity.LiquidityUSD)
	if shortfall := utils.MantissaToUSD(state.Liquidity.ShortfallUSD); shortfall > 0 {
		// An account in shortfall has zero spare capacity regardless of
		// what the local sums came to.
		onchain = 0
		snapshot.LiquidationRisk = entity.RiskHigh
	}

	diff := math.Abs(onchain - snapshot.AvailableBorrowingPowerUSD)
	if diff <= s.cfg.Thresholds.ReconcileToleranceUSD {
		return
	}

	s.logger.Warn("Reconciliation mismatch, preferring on-chain figure",
		"account", snapshot.Connection.Address,
		"chain", chain.Name,
		"localUsd", snapshot.AvailableBorrowingPowerUSD,
		"onchainUsd", onchain,
		"diffUsd", diff)
	snapshot.AvailableBorrowingPowerUSD = onchain
	snapshot.Reconciled = true
	metrics.ReconciliationMismatchTotal.WithLabelValues(chain.Identifier).Inc()
}

// degradedSnapshot builds minimal totals from the comptroller triple alone
// when the per-asset batch could not be read at all.
func (s *borrowingPowerServiceImpl) degradedSnapshot(ctx context.Context, reader port.MarketReader, chain entity.ChainDefinition, conn entity.ConnectionContext, cause error) (entity.BorrowingPowerSnapshot, []entity.ReadError, error) {
	liquidity, err := reader.GetAccountLiquidity(ctx, chain.ComptrollerAddress, conn.Address)
	if err != nil {
		return entity.BorrowingPowerSnapshot{}, nil, fmt.Errorf("account state batch failed (%v) and liquidity fallback failed: %w", cause, err)
	}
	if !liquidity.OK() {
		return entity.BorrowingPowerSnapshot{}, nil, fmt.Errorf("account state batch failed (%v) and comptroller returned error code %d", cause, liquidity.ErrorCode)
	}

	liquidityUSD := utils.MantissaToUSD(liquidity.LiquidityUSD)
	shortfallUSD := utils.MantissaToUSD(liquidity.ShortfallUSD)

	snapshot := entity.BorrowingPowerSnapshot{
		Connection: conn,
		// The triple does not separate supplied value from borrowing power,
		// so the minimal snapshot reports capacity figures only.
		TotalBorrowedUSD:           shortfallUSD,
		TotalBorrowingPowerUSD:     liquidityUSD + shortfallUSD,
		AvailableBorrowingPowerUSD: liquidityUSD,
		CollateralAssets:           []entity.CollateralAsset{},
		BorrowedAssets:             []entity.BorrowedAsset{},
		DataComplete:               false,
		Degraded:                   true,
	}
	if shortfallUSD > 0 {
		snapshot.LiquidationRisk = entity.RiskHigh
	}

	readErrors := []entity.ReadError{{
		AccountAddress: conn.Address,
		ChainID:        strconv.FormatUint(conn.ChainID, 10),
		Message:        fmt.Sprintf("batched account read failed: %v", cause),
	}}

	metrics.SnapshotRefreshTotal.WithLabelValues(chain.Identifier).Inc()
	metrics.DegradedSnapshotTotal.WithLabelValues(chain.Identifier).Inc()
	return snapshot, readErrors, nil
}

// activeMarkets filters the registry down to assets with a live market,
// keeping a deterministic symbol order for stable snapshots.
func activeMarkets(assets []entity.AssetDescriptor) []entity.AssetDescriptor {
	out := make([]entity.AssetDescriptor, 0, len(assets))
	for _, asset := range assets {
		if asset.HasMarket && asset.PTokenAddress != "" {
			out = append(out, asset)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func readErrorFor(conn entity.ConnectionContext, v assetValuation) entity.ReadError {
	msg := "position read failed"
	if v.supplied.Err != nil {
		msg = v.supplied.Err.Error()
	} else if v.borrowed.Err != nil {
		msg = v.borrowed.Err.Error()
	}
	return entity.ReadError{
		AccountAddress: conn.Address,
		ChainID:        strconv.FormatUint(conn.ChainID, 10),
		AssetSymbol:    v.asset.Symbol,
		PTokenAddress:  v.asset.PTokenAddress,
		Message:        msg,
	}
}
