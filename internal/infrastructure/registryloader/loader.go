package registryloader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"borrow_engine/internal/app/port"
	"borrow_engine/internal/domain/entity"
)

// MarketFileLoader implements port.RegistryProvider by loading asset
// descriptors from per-chain JSON files. Each file is named after the chain
// identifier (e.g. "ethereum.json") and holds an array of descriptors.
// Files are read once and cached; the registry is immutable at runtime.
type MarketFileLoader struct {
	marketDirPath string
	logger        port.Logger

	mu      sync.RWMutex
	byChain map[uint64][]entity.AssetDescriptor
	byKey   map[string]entity.AssetDescriptor
	loaded  bool
}

// NewMarketFileLoader creates a MarketFileLoader rooted at marketDirPath.
func NewMarketFileLoader(marketDirPath string, logger port.Logger) *MarketFileLoader {
	return &MarketFileLoader{
		marketDirPath: marketDirPath,
		logger:        logger,
		byChain:       make(map[uint64][]entity.AssetDescriptor),
		byKey:         make(map[string]entity.AssetDescriptor),
	}
}

// Load scans the market directory, reads JSON files for the given chains,
// parses them into asset descriptors, and validates chain IDs. Descriptors
// whose chainId does not match the file's chain are skipped with a warning.
func (l *MarketFileLoader) Load(chains []entity.ChainDefinition) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := os.ReadDir(l.marketDirPath)
	if err != nil {
		return fmt.Errorf("failed to read market directory %s: %w", l.marketDirPath, err)
	}

	chainsByIdentifier := make(map[string]entity.ChainDefinition)
	for _, chain := range chains {
		chainsByIdentifier[chain.Identifier] = chain
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(strings.ToLower(file.Name()), ".json") {
			continue
		}

		identifier := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		chain, active := chainsByIdentifier[identifier]
		if !active {
			l.logger.Info("Market file found for a non-active chain, skipping.",
				"file", file.Name(), "chain_identifier", identifier)
			continue
		}

		filePath := filepath.Join(l.marketDirPath, file.Name())
		data, err := os.ReadFile(filePath)
		if err != nil {
			l.logger.Warn("Failed to read market file, skipping file.", "path", filePath, "error", err)
			continue
		}

		var assetsInFile []entity.AssetDescriptor
		if err := json.Unmarshal(data, &assetsInFile); err != nil {
			l.logger.Warn("Failed to unmarshal assets from file, skipping file.", "path", filePath, "error", err)
			continue
		}

		valid := make([]entity.AssetDescriptor, 0, len(assetsInFile))
		for _, asset := range assetsInFile {
			if asset.ChainID != chain.ChainID {
				l.logger.Warn("Asset has mismatched ChainID in file, skipping asset.",
					"file", filePath, "symbol", asset.Symbol,
					"asset_chain_id", asset.ChainID, "expected_chain_id", chain.ChainID)
				continue
			}
			if asset.Symbol == "" || asset.Decimals == 0 {
				l.logger.Warn("Asset is missing symbol or decimals, skipping asset.",
					"file", filePath, "symbol", asset.Symbol)
				continue
			}
			if asset.CollateralFactor < 0 || asset.CollateralFactor > 1 {
				l.logger.Warn("Asset has collateral factor outside [0,1], skipping asset.",
					"file", filePath, "symbol", asset.Symbol, "collateral_factor", asset.CollateralFactor)
				continue
			}
			valid = append(valid, asset)
		}

		if len(valid) > 0 {
			l.byChain[chain.ChainID] = append(l.byChain[chain.ChainID], valid...)
			for _, asset := range valid {
				l.byKey[asset.Key()] = asset
			}
			l.logger.Info("Loaded and validated market descriptors for chain from file",
				"chain_identifier", chain.Identifier, "file", file.Name(), "count", len(valid))
		}
	}

	l.loaded = true
	if len(l.byKey) == 0 {
		l.logger.Warn("No market descriptors were loaded for any active chain.",
			"market_directory", l.marketDirPath)
	}
	return nil
}

// AssetsForChain returns every registered asset descriptor for a chain.
func (l *MarketFileLoader) AssetsForChain(chainID uint64) []entity.AssetDescriptor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	assets := l.byChain[chainID]
	out := make([]entity.AssetDescriptor, len(assets))
	copy(out, assets)
	return out
}

// AssetBySymbol looks an asset up by (chainID, symbol).
func (l *MarketFileLoader) AssetBySymbol(chainID uint64, symbol string) (entity.AssetDescriptor, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	asset, ok := l.byKey[entity.AssetKey(chainID, symbol)]
	return asset, ok
}
