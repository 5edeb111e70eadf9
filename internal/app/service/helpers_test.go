package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"borrow_engine/internal/app/port"
	"borrow_engine/internal/domain/entity"
	"borrow_engine/internal/infrastructure/configloader"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}

func testConfig() *configloader.Config {
	return &configloader.Config{
		Thresholds: configloader.ThresholdsConfig{
			ModerateRiskAbove:      75,
			HighRiskAbove:          90,
			BorrowUtilizationGuard: 85,
			ReconcileToleranceUSD:  0.01,
		},
		Polling: configloader.PollingConfig{
			SnapshotIntervalSeconds:  60,
			LiquidityIntervalSeconds: 60,
			LiquidityCacheTTLSeconds: 60,
			PriceCacheTTLSeconds:     60,
			MaxRefreshPerSecond:      100,
		},
		Performance: configloader.PerformanceConfig{
			MaxConcurrentRoutines: 4,
			RPCCallTimeoutSeconds: 5,
		},
	}
}

func testChain() entity.ChainDefinition {
	return entity.ChainDefinition{
		ChainID:            1,
		Name:               "Ethereum",
		Identifier:         "ethereum",
		ComptrollerAddress: "0xC0mp000000000000000000000000000000000001",
		OracleAddress:      "0x0rac1e0000000000000000000000000000000001",
		LiveOracle:         true,
	}
}

func mantissaUSD(v float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(v), big.NewFloat(1e18))
	out, _ := f.Int(nil)
	return out
}

type fakeRegistry struct {
	assets []entity.AssetDescriptor
}

func (f *fakeRegistry) AssetsForChain(chainID uint64) []entity.AssetDescriptor {
	var out []entity.AssetDescriptor
	for _, a := range f.assets {
		if a.ChainID == chainID {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeRegistry) AssetBySymbol(chainID uint64, symbol string) (entity.AssetDescriptor, bool) {
	for _, a := range f.assets {
		if a.ChainID == chainID && a.Symbol == symbol {
			return a, true
		}
	}
	return entity.AssetDescriptor{}, false
}

type fakeChainProvider struct {
	chains []entity.ChainDefinition
}

func (f *fakeChainProvider) GetAllChainDefinitions() []entity.ChainDefinition {
	return f.chains
}

func (f *fakeChainProvider) GetChainDefinitionByID(chainID uint64) (entity.ChainDefinition, bool) {
	for _, c := range f.chains {
		if c.ChainID == chainID {
			return c, true
		}
	}
	return entity.ChainDefinition{}, false
}

type fakeMarketReader struct {
	mu sync.Mutex

	state    entity.AccountState
	stateErr error

	cash    map[string]*big.Int
	cashErr error

	oraclePrices map[string]*big.Int
	oracleErr    error
	oracleCalls  int

	liquidity    entity.AccountLiquidity
	liquidityErr error

	def entity.ChainDefinition
}

func (f *fakeMarketReader) GetAccountState(ctx context.Context, account string, assets []entity.AssetDescriptor) (entity.AccountState, error) {
	if f.stateErr != nil {
		return entity.AccountState{}, f.stateErr
	}
	return f.state, nil
}

func (f *fakeMarketReader) GetCash(ctx context.Context, pTokenAddress string) (*big.Int, error) {
	if f.cashErr != nil {
		return nil, f.cashErr
	}
	cash, ok := f.cash[pTokenAddress]
	if !ok {
		return nil, fmt.Errorf("no cash configured for %s", pTokenAddress)
	}
	return cash, nil
}

func (f *fakeMarketReader) GetUnderlyingPrice(ctx context.Context, oracleAddress, pTokenAddress string) (*big.Int, error) {
	f.mu.Lock()
	f.oracleCalls++
	f.mu.Unlock()
	if f.oracleErr != nil {
		return nil, f.oracleErr
	}
	price, ok := f.oraclePrices[pTokenAddress]
	if !ok {
		return nil, fmt.Errorf("no oracle price configured for %s", pTokenAddress)
	}
	return price, nil
}

func (f *fakeMarketReader) GetAccountLiquidity(ctx context.Context, comptrollerAddress, account string) (entity.AccountLiquidity, error) {
	if f.liquidityErr != nil {
		return entity.AccountLiquidity{}, f.liquidityErr
	}
	return f.liquidity, nil
}

func (f *fakeMarketReader) Definition() entity.ChainDefinition { return f.def }

func (f *fakeMarketReader) OracleCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.oracleCalls
}

type fakeReaderProvider struct {
	reader *fakeMarketReader
	err    error
}

func (f *fakeReaderProvider) GetReader(chain entity.ChainDefinition) (port.MarketReader, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.reader, nil
}

type fakePriceResolver struct {
	quotes map[string]entity.PriceQuote
}

func (f *fakePriceResolver) ResolvePrice(ctx context.Context, chain entity.ChainDefinition, asset entity.AssetDescriptor) entity.PriceQuote {
	if quote, ok := f.quotes[asset.Symbol]; ok {
		return quote
	}
	return entity.PriceQuote{AssetSymbol: asset.Symbol, Source: entity.PriceSourceNone, Degraded: true}
}

type fakePowerService struct {
	mu       sync.Mutex
	snapshot entity.BorrowingPowerSnapshot
	readErrs []entity.ReadError
	err      error
	calls    int
}

func (f *fakePowerService) ComputeSnapshot(ctx context.Context, conn entity.ConnectionContext) (entity.BorrowingPowerSnapshot, []entity.ReadError, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return entity.BorrowingPowerSnapshot{}, nil, f.err
	}
	snapshot := f.snapshot
	snapshot.Connection = conn
	return snapshot, f.readErrs, nil
}

func (f *fakePowerService) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeLiquidityService struct {
	liquidity entity.MarketLiquidity
	err       error
}

func (f *fakeLiquidityService) MarketLiquidity(ctx context.Context, chainID uint64, assetSymbol string) (entity.MarketLiquidity, error) {
	if f.err != nil {
		return entity.MarketLiquidity{}, f.err
	}
	return f.liquidity, nil
}

func (f *fakeLiquidityService) RefreshChain(ctx context.Context, chainID uint64) error {
	return f.err
}

// readResult builds one successful batched read result.
func readResult(symbol string, kind entity.AccountReadKind, value *big.Int) entity.AccountReadResult {
	return entity.AccountReadResult{
		RequestID:   fmt.Sprintf("%s-%v", symbol, kind),
		Kind:        kind,
		AssetSymbol: symbol,
		Value:       value,
	}
}

// failedResult builds one errored batched read result.
func failedResult(symbol string, kind entity.AccountReadKind, err error) entity.AccountReadResult {
	return entity.AccountReadResult{
		RequestID:   fmt.Sprintf("%s-%v", symbol, kind),
		Kind:        kind,
		AssetSymbol: symbol,
		Error:       err,
	}
}
