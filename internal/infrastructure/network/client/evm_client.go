package client

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"borrow_engine/internal/app/port"
	"borrow_engine/internal/domain/entity"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// EVMMarketReader implements the port.MarketReader interface for
// Compound-style pToken markets on EVM-compatible chains.
type EVMMarketReader struct {
	ethClient      *ethclient.Client
	chainDef       entity.ChainDefinition
	rpcCallTimeout time.Duration
}

// Minimal ABIs for the pToken market, the price oracle and the comptroller.
const pTokenABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"exchangeRateStored","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"borrowBalanceStored","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"getCash","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const oracleABI = `[
	{"constant":true,"inputs":[{"name":"pToken","type":"address"}],"name":"getUnderlyingPrice","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const comptrollerABI = `[
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"getAccountLiquidity","outputs":[{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var (
	parsedABIsOnce    sync.Once
	parsedPTokenABI   abi.ABI
	parsedOracleABI   abi.ABI
	parsedComptroller abi.ABI
)

func initParsedABIs() {
	parsedABIsOnce.Do(func() {
		var err error
		parsedPTokenABI, err = abi.JSON(strings.NewReader(pTokenABI))
		if err != nil {
			panic(fmt.Sprintf("failed to parse pToken ABI: %v", err))
		}
		parsedOracleABI, err = abi.JSON(strings.NewReader(oracleABI))
		if err != nil {
			panic(fmt.Sprintf("failed to parse oracle ABI: %v", err))
		}
		parsedComptroller, err = abi.JSON(strings.NewReader(comptrollerABI))
		if err != nil {
			panic(fmt.Sprintf("failed to parse comptroller ABI: %v", err))
		}
	})
}

// NewEVMMarketReader creates a new market reader for the given chain
// definition, trying the primary RPC URL first and each fallback in order.
func NewEVMMarketReader(chainDef entity.ChainDefinition, connectionTimeout, rpcCallTimeout time.Duration) (port.MarketReader, error) {
	initParsedABIs()
	rpcURLs := append([]string{chainDef.PrimaryRPCURL}, chainDef.FallbackRPCURLs...)
	var lastErr error

	for _, rpcURL := range rpcURLs {
		ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
		ethCl, err := ethclient.DialContext(ctx, rpcURL)
		cancel()

		if err == nil {
			return &EVMMarketReader{ethClient: ethCl, chainDef: chainDef, rpcCallTimeout: rpcCallTimeout}, nil
		}
		lastErr = fmt.Errorf("failed to connect to RPC %s: %w", rpcURL, err)
	}

	return nil, fmt.Errorf("all RPC connection attempts failed for chain %s: %w", chainDef.Name, lastErr)
}

func packCall(parsed abi.ABI, method string, args ...interface{}) (hexutil.Bytes, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}
	return data, nil
}

func unpackUint(parsed abi.ABI, method string, raw hexutil.Bytes) (*big.Int, error) {
	if len(raw) == 0 {
		// An empty return usually means no contract at the address.
		return nil, fmt.Errorf("%s returned no data", method)
	}
	unpacked, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w. Raw: %s", method, err, hexutil.Encode(raw))
	}
	if len(unpacked) == 0 {
		return nil, fmt.Errorf("%s unpack returned no values", method)
	}
	value, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to assert %s result to *big.Int. Got: %T", method, unpacked[0])
	}
	return value, nil
}

// GetAccountState fetches the three per-asset reads for every given asset
// plus the comptroller's account-liquidity triple, all in one JSON-RPC batch.
// Issuing everything in a single batch keeps the authoritative liquidity
// figure at least as fresh as the per-asset reads reconciled against it.
func (c *EVMMarketReader) GetAccountState(ctx context.Context, account string, assets []entity.AssetDescriptor) (entity.AccountState, error) {
	state := entity.AccountState{}
	accountAddr := common.HexToAddress(account)

	var items []entity.AccountReadItem
	for _, asset := range assets {
		base := fmt.Sprintf("%s-%s-%s", account, strconv.FormatUint(c.chainDef.ChainID, 10), asset.Symbol)
		items = append(items,
			entity.AccountReadItem{ID: base + "-shares", Kind: entity.ShareBalanceRead, AccountAddress: account, PTokenAddress: asset.PTokenAddress, AssetSymbol: asset.Symbol},
			entity.AccountReadItem{ID: base + "-rate", Kind: entity.ExchangeRateRead, AccountAddress: account, PTokenAddress: asset.PTokenAddress, AssetSymbol: asset.Symbol},
			entity.AccountReadItem{ID: base + "-debt", Kind: entity.BorrowBalanceRead, AccountAddress: account, PTokenAddress: asset.PTokenAddress, AssetSymbol: asset.Symbol},
		)
	}

	batchElems := make([]rpc.BatchElem, 0, len(items)+1)
	results := make([]entity.AccountReadResult, len(items))

	for i, item := range items {
		results[i] = entity.AccountReadResult{
			RequestID:      item.ID,
			Kind:           item.Kind,
			AccountAddress: item.AccountAddress,
			PTokenAddress:  item.PTokenAddress,
			AssetSymbol:    item.AssetSymbol,
		}

		var callData hexutil.Bytes
		var err error
		switch item.Kind {
		case entity.ShareBalanceRead:
			callData, err = packCall(parsedPTokenABI, "balanceOf", accountAddr)
		case entity.ExchangeRateRead:
			callData, err = packCall(parsedPTokenABI, "exchangeRateStored")
		case entity.BorrowBalanceRead:
			callData, err = packCall(parsedPTokenABI, "borrowBalanceStored", accountAddr)
		}
		if err != nil {
			results[i].Error = err
			continue
		}

		callArgs := map[string]interface{}{
			"to":   common.HexToAddress(item.PTokenAddress),
			"data": callData,
		}
		batchElems = append(batchElems, rpc.BatchElem{
			Method: "eth_call",
			Args:   []interface{}{callArgs, "latest"},
			Result: new(hexutil.Bytes),
		})
	}

	liquidityIdx := -1
	if c.chainDef.ComptrollerAddress != "" {
		callData, err := packCall(parsedComptroller, "getAccountLiquidity", accountAddr)
		if err != nil {
			state.LiquidityErr = err
		} else {
			callArgs := map[string]interface{}{
				"to":   common.HexToAddress(c.chainDef.ComptrollerAddress),
				"data": callData,
			}
			liquidityIdx = len(batchElems)
			batchElems = append(batchElems, rpc.BatchElem{
				Method: "eth_call",
				Args:   []interface{}{callArgs, "latest"},
				Result: new(hexutil.Bytes),
			})
		}
	} else {
		state.LiquidityErr = fmt.Errorf("no comptroller address configured for chain %s", c.chainDef.Name)
	}

	if len(batchElems) == 0 {
		state.Results = results
		return state, nil
	}

	rpcCallCtx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()

	rawRPCClient := c.ethClient.Client()
	if err := rawRPCClient.BatchCallContext(rpcCallCtx, batchElems); err != nil {
		return state, fmt.Errorf("RPC batch call failed: %w", err)
	}

	// Walk the batch results back onto the read results. Items whose call
	// data failed to pack never made it into the batch.
	elemIdx := 0
	for i := range results {
		if results[i].Error != nil {
			continue
		}
		elem := batchElems[elemIdx]
		elemIdx++

		if elem.Error != nil {
			results[i].Error = fmt.Errorf("failed to fetch %s read for %s (account %s): %w",
				readKindName(results[i].Kind), results[i].AssetSymbol, account, elem.Error)
			continue
		}

		raw, ok := elem.Result.(*hexutil.Bytes)
		if !ok || raw == nil {
			results[i].Error = fmt.Errorf("failed to decode %s read for %s: unexpected result type",
				readKindName(results[i].Kind), results[i].AssetSymbol)
			continue
		}

		value, err := unpackUint(parsedPTokenABI, pTokenMethodFor(results[i].Kind), *raw)
		if err != nil {
			results[i].Error = err
			continue
		}
		results[i].Value = value
	}
	state.Results = results

	if liquidityIdx >= 0 {
		state.Liquidity, state.LiquidityErr = decodeAccountLiquidity(batchElems[liquidityIdx])
	}

	return state, nil
}

func decodeAccountLiquidity(elem rpc.BatchElem) (entity.AccountLiquidity, error) {
	if elem.Error != nil {
		return entity.AccountLiquidity{}, fmt.Errorf("getAccountLiquidity call failed: %w", elem.Error)
	}
	raw, ok := elem.Result.(*hexutil.Bytes)
	if !ok || raw == nil || len(*raw) == 0 {
		return entity.AccountLiquidity{}, fmt.Errorf("getAccountLiquidity returned no data")
	}

	unpacked, err := parsedComptroller.Unpack("getAccountLiquidity", *raw)
	if err != nil {
		return entity.AccountLiquidity{}, fmt.Errorf("failed to unpack getAccountLiquidity result: %w", err)
	}
	if len(unpacked) != 3 {
		return entity.AccountLiquidity{}, fmt.Errorf("getAccountLiquidity unpack returned %d values, want 3", len(unpacked))
	}

	errCode, ok1 := unpacked[0].(*big.Int)
	liquidity, ok2 := unpacked[1].(*big.Int)
	shortfall, ok3 := unpacked[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return entity.AccountLiquidity{}, fmt.Errorf("getAccountLiquidity returned unexpected value types")
	}

	return entity.AccountLiquidity{
		ErrorCode:    errCode.Uint64(),
		LiquidityUSD: liquidity,
		ShortfallUSD: shortfall,
	}, nil
}

func pTokenMethodFor(kind entity.AccountReadKind) string {
	switch kind {
	case entity.ExchangeRateRead:
		return "exchangeRateStored"
	case entity.BorrowBalanceRead:
		return "borrowBalanceStored"
	default:
		return "balanceOf"
	}
}

func readKindName(kind entity.AccountReadKind) string {
	switch kind {
	case entity.ExchangeRateRead:
		return "exchange rate"
	case entity.BorrowBalanceRead:
		return "borrow balance"
	default:
		return "share balance"
	}
}

// GetCash fetches the market's uncommitted liquidity for one pToken.
func (c *EVMMarketReader) GetCash(ctx context.Context, pTokenAddress string) (*big.Int, error) {
	callData, err := packCall(parsedPTokenABI, "getCash")
	if err != nil {
		return nil, err
	}
	raw, err := c.ethCall(ctx, pTokenAddress, callData)
	if err != nil {
		return nil, err
	}
	return unpackUint(parsedPTokenABI, "getCash", raw)
}

// GetUnderlyingPrice fetches the oracle's 1e18-scaled USD price for the
// asset behind the given pToken.
func (c *EVMMarketReader) GetUnderlyingPrice(ctx context.Context, oracleAddress, pTokenAddress string) (*big.Int, error) {
	callData, err := packCall(parsedOracleABI, "getUnderlyingPrice", common.HexToAddress(pTokenAddress))
	if err != nil {
		return nil, err
	}
	raw, err := c.ethCall(ctx, oracleAddress, callData)
	if err != nil {
		return nil, err
	}
	return unpackUint(parsedOracleABI, "getUnderlyingPrice", raw)
}

// GetAccountLiquidity fetches the comptroller's authoritative capacity
// triple for an account outside of a batched account-state read.
func (c *EVMMarketReader) GetAccountLiquidity(ctx context.Context, comptrollerAddress, account string) (entity.AccountLiquidity, error) {
	callData, err := packCall(parsedComptroller, "getAccountLiquidity", common.HexToAddress(account))
	if err != nil {
		return entity.AccountLiquidity{}, err
	}
	raw, err := c.ethCall(ctx, comptrollerAddress, callData)
	if err != nil {
		return entity.AccountLiquidity{}, fmt.Errorf("getAccountLiquidity call failed: %w", err)
	}

	return decodeAccountLiquidity(rpc.BatchElem{Result: &raw})
}

func (c *EVMMarketReader) ethCall(ctx context.Context, contractAddress string, callData hexutil.Bytes) (hexutil.Bytes, error) {
	rpcCallCtx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()

	var raw hexutil.Bytes
	callArgs := map[string]interface{}{
		"to":   common.HexToAddress(contractAddress),
		"data": callData,
	}
	if err := c.ethClient.Client().CallContext(rpcCallCtx, &raw, "eth_call", callArgs, "latest"); err != nil {
		return nil, fmt.Errorf("eth_call to %s failed: %w", contractAddress, err)
	}
	return raw, nil
}

// Definition returns the chain definition for this reader.
func (c *EVMMarketReader) Definition() entity.ChainDefinition {
	return c.chainDef
}
