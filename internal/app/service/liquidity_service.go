package service

import (
	"context"
	"fmt"
	"time"

	"borrow_engine/internal/app/port"
	"borrow_engine/internal/domain/entity"
	"borrow_engine/internal/infrastructure/configloader"
	"borrow_engine/internal/pkg/utils"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

// liquidityServiceImpl serves per-market cash figures. Cash is account
// independent, so figures are cached with a short TTL and refreshed for a
// whole chain at once on the liquidity interval.
type liquidityServiceImpl struct {
	registry       port.RegistryProvider
	chainProvider  port.ChainDefinitionProvider
	readerProvider port.MarketReaderProvider
	logger         port.Logger
	cfg            *configloader.Config
	cache          *gocache.Cache
}

// NewLiquidityService creates a new market liquidity service.
func NewLiquidityService(
	registry port.RegistryProvider,
	chainProvider port.ChainDefinitionProvider,
	readerProvider port.MarketReaderProvider,
	logger port.Logger,
	cfg *configloader.Config,
) port.LiquidityService {
	ttl := time.Duration(cfg.Polling.LiquidityCacheTTLSeconds) * time.Second
	return &liquidityServiceImpl{
		registry:       registry,
		chainProvider:  chainProvider,
		readerProvider: readerProvider,
		logger:         logger,
		cfg:            cfg,
		cache:          gocache.New(ttl, 2*ttl),
	}
}

// MarketLiquidity implements port.LiquidityService. Cache misses fetch the
// single market's cash directly rather than refreshing the whole chain.
func (s *liquidityServiceImpl) MarketLiquidity(ctx context.Context, chainID uint64, assetSymbol string) (entity.MarketLiquidity, error) {
	key := entity.AssetKey(chainID, assetSymbol)
	if cached, found := s.cache.Get(key); found {
		if liq, ok := cached.(entity.MarketLiquidity); ok {
			return liq, nil
		}
	}

	asset, ok := s.registry.AssetBySymbol(chainID, assetSymbol)
	if !ok {
		return entity.MarketLiquidity{}, fmt.Errorf("asset %s is not registered on chain %d", assetSymbol, chainID)
	}
	if !asset.HasMarket || asset.PTokenAddress == "" {
		return entity.MarketLiquidity{}, fmt.Errorf("asset %s has no market on chain %d", assetSymbol, chainID)
	}

	chain, ok := s.chainProvider.GetChainDefinitionByID(chainID)
	if !ok {
		return entity.MarketLiquidity{}, fmt.Errorf("chain %d is not active", chainID)
	}
	reader, err := s.readerProvider.GetReader(chain)
	if err != nil {
		return entity.MarketLiquidity{}, fmt.Errorf("failed to get market reader for %s: %w", chain.Name, err)
	}

	liq, err := s.fetchMarket(ctx, reader, asset)
	if err != nil {
		return entity.MarketLiquidity{}, err
	}
	s.cache.Set(key, liq, gocache.DefaultExpiration)
	return liq, nil
}

// RefreshChain implements port.LiquidityService, fetching cash for every
// market on the chain concurrently and repopulating the cache. The first
// failed market aborts the refresh; stale cache entries then expire on TTL.
func (s *liquidityServiceImpl) RefreshChain(ctx context.Context, chainID uint64) error {
	chain, ok := s.chainProvider.GetChainDefinitionByID(chainID)
	if !ok {
		return fmt.Errorf("chain %d is not active", chainID)
	}
	reader, err := s.readerProvider.GetReader(chain)
	if err != nil {
		return fmt.Errorf("failed to get market reader for %s: %w", chain.Name, err)
	}

	assets := activeMarkets(s.registry.AssetsForChain(chainID))

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.Performance.MaxConcurrentRoutines > 0 {
		g.SetLimit(s.cfg.Performance.MaxConcurrentRoutines)
	}

	for _, asset := range assets {
		asset := asset
		g.Go(func() error {
			liq, err := s.fetchMarket(gctx, reader, asset)
			if err != nil {
				return fmt.Errorf("refresh %s: %w", asset.Symbol, err)
			}
			s.cache.Set(asset.Key(), liq, gocache.DefaultExpiration)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Warn("Chain liquidity refresh incomplete", "chain", chain.Name, "error", err)
		return err
	}
	s.logger.Debug("Chain liquidity refreshed", "chain", chain.Name, "markets", len(assets))
	return nil
}

func (s *liquidityServiceImpl) fetchMarket(ctx context.Context, reader port.MarketReader, asset entity.AssetDescriptor) (entity.MarketLiquidity, error) {
	cash, err := reader.GetCash(ctx, asset.PTokenAddress)
	if err != nil {
		return entity.MarketLiquidity{}, fmt.Errorf("getCash for %s failed: %w", asset.Symbol, err)
	}
	return entity.MarketLiquidity{
		AssetSymbol:   asset.Symbol,
		ChainID:       asset.ChainID,
		RawCash:       cash,
		AvailableCash: utils.ToFloat(cash, asset.Decimals),
		Formatted:     utils.FormatUnderlying(cash, asset.Decimals),
	}, nil
}
