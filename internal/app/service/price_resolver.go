package service

import (
	"context"
	"sync"
	"time"

	"borrow_engine/internal/app/port"
	"borrow_engine/internal/domain/entity"
	"borrow_engine/internal/pkg/metrics"
	"borrow_engine/internal/pkg/utils"

	gocache "github.com/patrickmn/go-cache"
)

// priceResolverImpl resolves USD unit prices with a two-step chain: the live
// on-chain oracle where the chain supports one, then the fallback price
// table. The fallback table is seeded from the registry's static prices and
// may be refreshed from the external reference feed at runtime.
type priceResolverImpl struct {
	readerProvider port.MarketReaderProvider
	logger         port.Logger

	cache       *gocache.Cache
	degradedTTL time.Duration

	mu             sync.RWMutex
	fallbackPrices map[string]float64
}

// NewPriceResolver creates a new price resolver. Oracle reads are cached for
// cacheTTL so one refresh cycle does not hit the oracle once per asset per
// consumer. Fallback-sourced quotes get a quarter of that TTL, so a transient
// oracle failure does not pin the degraded price for the full window.
func NewPriceResolver(readerProvider port.MarketReaderProvider, logger port.Logger, cacheTTL time.Duration) *priceResolverImpl {
	return &priceResolverImpl{
		readerProvider: readerProvider,
		logger:         logger,
		cache:          gocache.New(cacheTTL, 2*cacheTTL),
		degradedTTL:    cacheTTL / 4,
		fallbackPrices: make(map[string]float64),
	}
}

// ResolvePrice resolves the USD unit price for one asset. It never returns
// an error: when no source yields a usable price the quote comes back zero
// and degraded, and valuation layers above decide how to surface that.
func (r *priceResolverImpl) ResolvePrice(ctx context.Context, chain entity.ChainDefinition, asset entity.AssetDescriptor) entity.PriceQuote {
	cacheKey := asset.Key()
	if cached, found := r.cache.Get(cacheKey); found {
		if quote, ok := cached.(entity.PriceQuote); ok {
			return quote
		}
	}

	quote := r.resolveUncached(ctx, chain, asset)
	if quote.PriceUSD > 0 {
		if quote.Source == entity.PriceSourceOracle {
			r.cache.Set(cacheKey, quote, gocache.DefaultExpiration)
		} else {
			r.cache.Set(cacheKey, quote, r.degradedTTL)
		}
	}
	return quote
}

func (r *priceResolverImpl) resolveUncached(ctx context.Context, chain entity.ChainDefinition, asset entity.AssetDescriptor) entity.PriceQuote {
	quote := entity.PriceQuote{AssetSymbol: asset.Symbol, Source: entity.PriceSourceNone, Degraded: true}

	if chain.LiveOracle && chain.OracleAddress != "" && asset.HasMarket {
		price, err := r.readOracle(ctx, chain, asset)
		if err == nil && price > 0 {
			quote.PriceUSD = price
			quote.Source = entity.PriceSourceOracle
			quote.Degraded = false
			return quote
		}
		if err != nil {
			r.logger.Warn("Oracle price read failed, falling back",
				"chain", chain.Name, "asset", asset.Symbol, "error", err)
		} else {
			r.logger.Warn("Oracle returned zero price, falling back",
				"chain", chain.Name, "asset", asset.Symbol)
		}
		metrics.OracleFallbackTotal.WithLabelValues(chain.Identifier).Inc()
	}

	if price, ok := r.lookupFallback(asset.Key()); ok && price > 0 {
		quote.PriceUSD = price
		quote.Source = entity.PriceSourceFallback
		return quote
	}
	if asset.StaticPriceUSD > 0 {
		quote.PriceUSD = asset.StaticPriceUSD
		quote.Source = entity.PriceSourceFallback
		return quote
	}

	r.logger.Warn("No price available for asset", "chain", chain.Name, "asset", asset.Symbol)
	return quote
}

func (r *priceResolverImpl) readOracle(ctx context.Context, chain entity.ChainDefinition, asset entity.AssetDescriptor) (float64, error) {
	reader, err := r.readerProvider.GetReader(chain)
	if err != nil {
		return 0, err
	}
	mantissa, err := reader.GetUnderlyingPrice(ctx, chain.OracleAddress, asset.PTokenAddress)
	if err != nil {
		return 0, err
	}
	return utils.MantissaToUSD(mantissa), nil
}

// SetFallbackPrice stores a feed-refreshed fallback price for one asset.
// Non-positive prices are ignored so a broken feed entry never shadows the
// registry's static price.
func (r *priceResolverImpl) SetFallbackPrice(chainID uint64, assetSymbol string, priceUSD float64) {
	if priceUSD <= 0 {
		return
	}
	r.mu.Lock()
	r.fallbackPrices[entity.AssetKey(chainID, assetSymbol)] = priceUSD
	r.mu.Unlock()
}

func (r *priceResolverImpl) lookupFallback(key string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	price, ok := r.fallbackPrices[key]
	return price, ok
}
