package client

import (
	"fmt"
	"sync"
	"time"

	"borrow_engine/internal/app/port"
	"borrow_engine/internal/domain/entity"
	"borrow_engine/internal/infrastructure/configloader"
)

const defaultProviderConnectionTimeout = 10 * time.Second

// evmMarketReaderProvider implements the port.MarketReaderProvider interface.
type evmMarketReaderProvider struct {
	readers           map[uint64]port.MarketReader
	logger            port.Logger
	connectionTimeout time.Duration
	rpcCallTimeout    time.Duration
	mu                sync.Mutex
}

// NewEVMMarketReaderProvider creates a new EVM market reader provider.
func NewEVMMarketReaderProvider(cfg *configloader.Config, logger port.Logger) port.MarketReaderProvider {
	return &evmMarketReaderProvider{
		readers:           make(map[uint64]port.MarketReader),
		logger:            logger,
		connectionTimeout: defaultProviderConnectionTimeout,
		rpcCallTimeout:    time.Duration(cfg.Performance.RPCCallTimeoutSeconds) * time.Second,
	}
}

// GetReader retrieves a market reader for the given chain definition,
// caching readers to avoid reconnecting repeatedly.
func (p *evmMarketReaderProvider) GetReader(chainDef entity.ChainDefinition) (port.MarketReader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if reader, exists := p.readers[chainDef.ChainID]; exists {
		return reader, nil
	}

	p.logger.Info("Creating new EVM market reader", "chain", chainDef.Name, "rpc_primary", chainDef.PrimaryRPCURL)
	newReader, err := NewEVMMarketReader(chainDef, p.connectionTimeout, p.rpcCallTimeout)
	if err != nil {
		p.logger.Error("Failed to create EVM market reader", "chain", chainDef.Name, "error", err)
		return nil, fmt.Errorf("failed to create EVM market reader for %s: %w", chainDef.Name, err)
	}

	p.readers[chainDef.ChainID] = newReader
	p.logger.Info("Successfully created and cached new EVM market reader", "chain", chainDef.Name)
	return newReader, nil
}
