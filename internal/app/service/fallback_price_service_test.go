package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"borrow_engine/internal/domain/entity"
	feedtypes "borrow_engine/internal/entity"
)

type fakeFeedClient struct {
	pairs []feedtypes.PairData
	err   error
}

func (f *fakeFeedClient) GetTokenPairsByAddresses(ctx context.Context, feedChainID string, tokenAddresses []string) ([]feedtypes.PairData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pairs, nil
}

type recordingStore struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (r *recordingStore) SetFallbackPrice(chainID uint64, assetSymbol string, priceUSD float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prices == nil {
		r.prices = make(map[string]float64)
	}
	r.prices[entity.AssetKey(chainID, assetSymbol)] = priceUSD
}

func (r *recordingStore) get(chainID uint64, symbol string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	price, ok := r.prices[entity.AssetKey(chainID, symbol)]
	return price, ok
}

func feedChain() entity.ChainDefinition {
	chain := testChain()
	chain.PriceFeedChainID = "ethereum"
	return chain
}

func feedAssets() []entity.AssetDescriptor {
	assets := testAssets()
	assets[0].UnderlyingAddress = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	assets[1].UnderlyingAddress = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	return assets
}

func newFallbackService(feed *fakeFeedClient, store *recordingStore) *FallbackPriceService {
	cfg := testConfig()
	cfg.PriceFeed.MaxTokensPerBatchRequest = 30
	return NewFallbackPriceService(
		&fakeRegistry{assets: feedAssets()},
		&fakeChainProvider{chains: []entity.ChainDefinition{feedChain()}},
		feed,
		store,
		nopLogger{},
		cfg,
	)
}

func TestRefreshAllStoresFeedPrices(t *testing.T) {
	feed := &fakeFeedClient{pairs: []feedtypes.PairData{
		{
			BaseToken: feedtypes.FeedToken{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Symbol: "WETH"},
			PriceUsd:  "2512.44",
			Liquidity: &feedtypes.FeedLiquidity{Usd: 1_000_000},
		},
		{
			BaseToken: feedtypes.FeedToken{Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC"},
			PriceUsd:  "0.9998",
			Liquidity: &feedtypes.FeedLiquidity{Usd: 5_000_000},
		},
	}}
	store := &recordingStore{}

	if err := newFallbackService(feed, store).RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}

	if price, ok := store.get(1, "WETH"); !ok || price != 2512.44 {
		t.Fatalf("WETH fallback price not stored, got %f (%v)", price, ok)
	}
	if price, ok := store.get(1, "USDC"); !ok || price != 0.9998 {
		t.Fatalf("USDC fallback price not stored, got %f (%v)", price, ok)
	}
}

func TestRefreshAllPrefersMostLiquidPair(t *testing.T) {
	feed := &fakeFeedClient{pairs: []feedtypes.PairData{
		{
			BaseToken: feedtypes.FeedToken{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"},
			PriceUsd:  "2400",
			Liquidity: &feedtypes.FeedLiquidity{Usd: 10_000},
		},
		{
			BaseToken: feedtypes.FeedToken{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"},
			PriceUsd:  "2510",
			Liquidity: &feedtypes.FeedLiquidity{Usd: 2_000_000},
		},
	}}
	store := &recordingStore{}

	if err := newFallbackService(feed, store).RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}
	if price, _ := store.get(1, "WETH"); price != 2510 {
		t.Fatalf("expected the deeper pair's price 2510, got %f", price)
	}
}

func TestRefreshAllSkipsUnparseablePrices(t *testing.T) {
	feed := &fakeFeedClient{pairs: []feedtypes.PairData{
		{
			BaseToken: feedtypes.FeedToken{Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"},
			PriceUsd:  "not-a-number",
		},
	}}
	store := &recordingStore{}

	if err := newFallbackService(feed, store).RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}
	if _, ok := store.get(1, "WETH"); ok {
		t.Fatal("unparseable price must not be stored")
	}
}

func TestRefreshAllAbsorbsFeedFailures(t *testing.T) {
	feed := &fakeFeedClient{err: errors.New("feed down")}
	store := &recordingStore{}

	if err := newFallbackService(feed, store).RefreshAll(context.Background()); err != nil {
		t.Fatalf("a failed batch must not fail the refresh, got %v", err)
	}
	if len(store.prices) != 0 {
		t.Fatalf("no prices must be stored on feed failure, got %v", store.prices)
	}
}
