package service

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"borrow_engine/internal/app/port"
	"borrow_engine/internal/client"
	"borrow_engine/internal/domain/entity"
	feedtypes "borrow_engine/internal/entity"
	"borrow_engine/internal/infrastructure/configloader"
	"borrow_engine/internal/pkg/utils"
)

// FallbackPriceStore receives feed-refreshed fallback prices. Satisfied by
// the price resolver.
type FallbackPriceStore interface {
	SetFallbackPrice(chainID uint64, assetSymbol string, priceUSD float64)
}

// FallbackPriceService keeps the resolver's fallback price table fresh
// from the external reference price feed. It batches registry assets by
// underlying address per chain and fans the batches out under a concurrency
// limit. A failed batch only leaves stale fallback prices behind; the static
// registry prices remain as the final floor.
type FallbackPriceService struct {
	registry      port.RegistryProvider
	chainProvider port.ChainDefinitionProvider
	feedClient    client.PriceFeedClient
	store         FallbackPriceStore
	logger        port.Logger
	cfg           *configloader.Config
}

// NewFallbackPriceService creates a new fallback price refresh service.
func NewFallbackPriceService(
	registry port.RegistryProvider,
	chainProvider port.ChainDefinitionProvider,
	feedClient client.PriceFeedClient,
	store FallbackPriceStore,
	logger port.Logger,
	cfg *configloader.Config,
) *FallbackPriceService {
	return &FallbackPriceService{
		registry:      registry,
		chainProvider: chainProvider,
		feedClient:    feedClient,
		store:         store,
		logger:        logger,
		cfg:           cfg,
	}
}

// RefreshAll refreshes fallback prices for every active chain that has a
// feed mapping. Per-batch failures are logged and skipped; the method only
// fails when the context is cancelled.
func (s *FallbackPriceService) RefreshAll(ctx context.Context) error {
	chains := s.chainProvider.GetAllChainDefinitions()
	if len(chains) == 0 {
		s.logger.Warn("No active chains, skipping fallback price refresh")
		return nil
	}

	concurrencyLimit := 5
	if s.cfg != nil && s.cfg.Performance.MaxConcurrentRoutines > 0 {
		concurrencyLimit = s.cfg.Performance.MaxConcurrentRoutines
	}
	sem := make(chan struct{}, concurrencyLimit)
	var wg sync.WaitGroup

	var refreshed int64
	var mu sync.Mutex

	for _, chain := range chains {
		if chain.PriceFeedChainID == "" {
			s.logger.Debug("Chain has no price feed mapping, skipping", "chain", chain.Name)
			continue
		}

		assets := s.registry.AssetsForChain(chain.ChainID)
		byAddress := make(map[string]entity.AssetDescriptor, len(assets))
		addresses := make([]string, 0, len(assets))
		for _, asset := range assets {
			if asset.UnderlyingAddress == "" || asset.UnderlyingAddress == entity.ZeroAddress {
				continue
			}
			byAddress[strings.ToLower(asset.UnderlyingAddress)] = asset
			addresses = append(addresses, asset.UnderlyingAddress)
		}
		if len(addresses) == 0 {
			continue
		}

		for _, batch := range utils.BatchStrings(addresses, s.cfg.PriceFeed.MaxTokensPerBatchRequest) {
			if ctx.Err() != nil {
				wg.Wait()
				return ctx.Err()
			}

			wg.Add(1)
			sem <- struct{}{}
			go func(chain entity.ChainDefinition, batch []string) {
				defer wg.Done()
				defer func() { <-sem }()

				pairs, err := s.feedClient.GetTokenPairsByAddresses(ctx, chain.PriceFeedChainID, batch)
				if err != nil {
					s.logger.Warn("Price feed batch failed",
						"chain", chain.Name, "batchSize", len(batch), "error", err)
					return
				}

				count := s.applyPairs(chain, byAddress, pairs)
				mu.Lock()
				refreshed += int64(count)
				mu.Unlock()
			}(chain, batch)
		}
	}

	wg.Wait()
	s.logger.Info("Fallback price refresh finished", "refreshedPrices", refreshed)
	return ctx.Err()
}

// applyPairs matches feed pairs back to registry assets by underlying
// address and pushes usable prices into the store. When several pairs quote
// the same asset the most liquid one wins.
func (s *FallbackPriceService) applyPairs(chain entity.ChainDefinition, byAddress map[string]entity.AssetDescriptor, pairs []feedtypes.PairData) int {
	type candidate struct {
		price     float64
		liquidity float64
	}
	best := make(map[string]candidate)

	for _, pair := range pairs {
		asset, ok := byAddress[strings.ToLower(pair.BaseToken.Address)]
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(pair.PriceUsd, 64)
		if err != nil || price <= 0 {
			continue
		}
		var liquidity float64
		if pair.Liquidity != nil {
			liquidity = pair.Liquidity.Usd
		}
		if prev, seen := best[asset.Symbol]; !seen || liquidity > prev.liquidity {
			best[asset.Symbol] = candidate{price: price, liquidity: liquidity}
		}
	}

	for symbol, c := range best {
		s.store.SetFallbackPrice(chain.ChainID, symbol, c.price)
		s.logger.Debug("Fallback price refreshed",
			"chain", chain.Name, "asset", symbol, "price", c.price)
	}
	return len(best)
}
