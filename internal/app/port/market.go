package port

import (
	"context"
	"math/big"

	"borrow_engine/internal/domain/entity"
)

// MarketReader defines the read-only on-chain accessors the engine consumes.
// Implementations are specific to chain families (EVM for now). All reads
// are side-effect-free and safe to issue concurrently.
type MarketReader interface {
	// GetAccountState issues the batched per-asset reads (share balance,
	// exchange rate, borrow balance) for every given asset plus the
	// comptroller account-liquidity call, all in one JSON-RPC batch.
	GetAccountState(ctx context.Context, account string, assets []entity.AssetDescriptor) (entity.AccountState, error)

	// GetCash fetches the market's uncommitted liquidity for one pToken.
	GetCash(ctx context.Context, pTokenAddress string) (*big.Int, error)

	// GetUnderlyingPrice fetches the oracle's 1e18-scaled USD price for the
	// asset behind the given pToken.
	GetUnderlyingPrice(ctx context.Context, oracleAddress, pTokenAddress string) (*big.Int, error)

	// GetAccountLiquidity fetches the comptroller's authoritative
	// (errorCode, liquidityUSD, shortfallUSD) triple for an account.
	GetAccountLiquidity(ctx context.Context, comptrollerAddress, account string) (entity.AccountLiquidity, error)

	// Definition returns the chain definition this reader is bound to.
	Definition() entity.ChainDefinition
}

// MarketReaderProvider hands out a MarketReader per chain, reusing
// established connections.
type MarketReaderProvider interface {
	GetReader(chain entity.ChainDefinition) (MarketReader, error)
}

// ChainDefinitionProvider provides the supported chain definitions.
type ChainDefinitionProvider interface {
	GetAllChainDefinitions() []entity.ChainDefinition
	GetChainDefinitionByID(chainID uint64) (entity.ChainDefinition, bool)
}
