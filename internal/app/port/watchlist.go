package port

import "borrow_engine/internal/domain/entity"

// WatchlistProvider supplies the connections the poller keeps warm at
// startup, before any client registers interest over the API.
type WatchlistProvider interface {
	GetWatchedConnections() ([]entity.ConnectionContext, error)
}
