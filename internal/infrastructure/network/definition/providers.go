package definition

import (
	"fmt"
	"os"
	"strings"

	"borrow_engine/internal/app/port"
	"borrow_engine/internal/domain/entity"
	"borrow_engine/internal/infrastructure/configloader"
)

// ChainDefinitionProvider provides chain definitions. A chain is active when
// a market descriptor file exists for its identifier; YAML config entries
// override the predefined RPC and contract addresses.
type ChainDefinitionProvider struct {
	logger          port.Logger
	allChainDefs    map[string]entity.ChainDefinition
	activeChainDefs []entity.ChainDefinition
}

// Predefined chain definitions. Comptroller and oracle addresses default to
// empty and are expected from config overrides for any chain actually used.
var ( //nolint:gochecknoglobals // Global for definitions
	Ethereum = entity.ChainDefinition{
		ChainID:          1,
		Name:             "Ethereum Mainnet",
		Identifier:       "ethereum",
		PrimaryRPCURL:    "https://ethereum-rpc.publicnode.com",
		FallbackRPCURLs:  []string{"https://rpc.ankr.com/eth", "https://ethereum.publicnode.com"},
		BlockExplorerURL: "https://etherscan.io",
		LiveOracle:       true,
		PriceFeedChainID: "ethereum",
	}
	Arbitrum = entity.ChainDefinition{
		ChainID:          42161,
		Name:             "Arbitrum One",
		Identifier:       "arbitrum",
		PrimaryRPCURL:    "https://arb1.arbitrum.io/rpc",
		FallbackRPCURLs:  []string{"https://arbitrum.publicnode.com", "https://rpc.ankr.com/arbitrum"},
		BlockExplorerURL: "https://arbiscan.io",
		PriceFeedChainID: "arbitrum",
	}
	Base = entity.ChainDefinition{
		ChainID:          8453,
		Name:             "Base",
		Identifier:       "base",
		PrimaryRPCURL:    "https://mainnet.base.org",
		FallbackRPCURLs:  []string{"https://base.publicnode.com", "https://1rpc.io/base"},
		BlockExplorerURL: "https://basescan.org",
		PriceFeedChainID: "base",
	}
	Optimism = entity.ChainDefinition{
		ChainID:          10,
		Name:             "OP Mainnet",
		Identifier:       "optimism",
		PrimaryRPCURL:    "https://mainnet.optimism.io",
		FallbackRPCURLs:  []string{"https://optimism.publicnode.com", "https://rpc.ankr.com/optimism"},
		BlockExplorerURL: "https://optimistic.etherscan.io",
		PriceFeedChainID: "optimism",
	}
	Sepolia = entity.ChainDefinition{
		ChainID:          11155111,
		Name:             "Sepolia Testnet",
		Identifier:       "sepolia",
		PrimaryRPCURL:    "https://ethereum-sepolia-rpc.publicnode.com",
		FallbackRPCURLs:  []string{"https://rpc.sepolia.org"},
		BlockExplorerURL: "https://sepolia.etherscan.io",
	}
)

// allKnownDefinitions is a helper to quickly access all predefined definitions.
var allKnownDefinitions = map[string]entity.ChainDefinition{
	Ethereum.Identifier: Ethereum,
	Arbitrum.Identifier: Arbitrum,
	Base.Identifier:     Base,
	Optimism.Identifier: Optimism,
	Sepolia.Identifier:  Sepolia,
}

// NewChainDefinitionProvider creates a ChainDefinitionProvider. Chains become
// active when a market descriptor file is present for them in marketDataDir;
// overrides from cfg.Chains are applied to the predefined definitions first.
func NewChainDefinitionProvider(log port.Logger, cfg *configloader.Config) *ChainDefinitionProvider {
	p := &ChainDefinitionProvider{
		logger:          log,
		allChainDefs:    make(map[string]entity.ChainDefinition, len(allKnownDefinitions)),
		activeChainDefs: make([]entity.ChainDefinition, 0),
	}

	for identifier, def := range allKnownDefinitions {
		p.allChainDefs[identifier] = def
	}

	for _, override := range cfg.Chains {
		def, ok := p.allChainDefs[override.Identifier]
		if !ok {
			p.logger.Warn("Chain override for unknown identifier, skipping.", "identifier", override.Identifier)
			continue
		}
		if override.RPCURL != "" {
			def.FallbackRPCURLs = append([]string{def.PrimaryRPCURL}, def.FallbackRPCURLs...)
			def.PrimaryRPCURL = override.RPCURL
		}
		if override.ComptrollerAddress != "" {
			def.ComptrollerAddress = override.ComptrollerAddress
		}
		if override.OracleAddress != "" {
			def.OracleAddress = override.OracleAddress
		}
		if override.LiveOracle != nil {
			def.LiveOracle = *override.LiveOracle
		}
		p.allChainDefs[override.Identifier] = def
	}

	files, err := os.ReadDir(cfg.MarketDataDir)
	if err != nil {
		p.logger.Error(fmt.Sprintf("Failed to read market data directory: %s", cfg.MarketDataDir), "error", err)
		return p
	}

	activeIdentifiers := make(map[string]struct{})
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(strings.ToLower(file.Name()), ".json") {
			continue
		}

		identifier := strings.TrimSuffix(strings.ToLower(file.Name()), ".json")
		if _, alreadyActive := activeIdentifiers[identifier]; alreadyActive {
			p.logger.Warn(fmt.Sprintf("Duplicate market file or identifier detected: %s. Skipping.", identifier))
			continue
		}

		def, ok := p.allChainDefs[identifier]
		if !ok {
			p.logger.Warn(fmt.Sprintf("Market file found for chain '%s' but no corresponding chain definition exists. Skipping.", identifier))
			continue
		}
		if def.ComptrollerAddress == "" {
			p.logger.Warn(fmt.Sprintf("Chain '%s' has a market file but no comptroller address configured. Skipping.", identifier))
			continue
		}

		p.activeChainDefs = append(p.activeChainDefs, def)
		activeIdentifiers[identifier] = struct{}{}
		p.logger.Debug(fmt.Sprintf("Chain '%s' activated due to presence of market file '%s'.", def.Name, file.Name()))
	}

	if len(p.activeChainDefs) == 0 {
		p.logger.Warn("No market files found or no matching chain definitions. No chains will be active.",
			"directory", cfg.MarketDataDir)
	} else {
		p.logger.Info(fmt.Sprintf("ChainDefinitionProvider initialized. Active chains: %d (determined by market files)", len(p.activeChainDefs)))
	}

	return p
}

// GetAllChainDefinitions returns the list of active chain definitions.
func (p *ChainDefinitionProvider) GetAllChainDefinitions() []entity.ChainDefinition {
	if p == nil {
		return []entity.ChainDefinition{}
	}
	defsCopy := make([]entity.ChainDefinition, len(p.activeChainDefs))
	copy(defsCopy, p.activeChainDefs)
	return defsCopy
}

// GetChainDefinitionByID returns a specific chain definition by its chain ID
// if it is active.
func (p *ChainDefinitionProvider) GetChainDefinitionByID(chainID uint64) (entity.ChainDefinition, bool) {
	if p == nil {
		return entity.ChainDefinition{}, false
	}
	for _, def := range p.activeChainDefs {
		if def.ChainID == chainID {
			return def, true
		}
	}
	return entity.ChainDefinition{}, false
}
