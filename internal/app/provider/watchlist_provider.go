package provider

import (
	"borrow_engine/internal/app/port"
	"borrow_engine/internal/domain/entity"
	"borrow_engine/internal/infrastructure/watchloader"
)

type watchlistProviderImpl struct {
	loader port.WatchlistProvider
	logger port.Logger
}

// NewWatchlistProvider creates a new WatchlistProvider backed by the
// watchlist file loader.
func NewWatchlistProvider(filePath string, logger port.Logger) port.WatchlistProvider {
	return &watchlistProviderImpl{
		loader: watchloader.NewWatchlistFileLoader(filePath, logger.Info),
		logger: logger,
	}
}

// GetWatchedConnections loads the startup watchlist.
func (p *watchlistProviderImpl) GetWatchedConnections() ([]entity.ConnectionContext, error) {
	p.logger.Debug("Loading watchlist")
	connections, err := p.loader.GetWatchedConnections()
	if err != nil {
		p.logger.Error("Failed to load watchlist", "error", err)
		return nil, err
	}
	return connections, nil
}
