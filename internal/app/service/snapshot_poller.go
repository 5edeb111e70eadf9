package service

import (
	"context"
	"sync"
	"time"

	"borrow_engine/internal/app/port"
	"borrow_engine/internal/domain/entity"
	"borrow_engine/internal/infrastructure/configloader"

	"golang.org/x/time/rate"
)

// SnapshotPoller keeps borrowing-power snapshots fresh for a set of watched
// connections. Every watched connection gets its own refresh loop; switching
// the watch to a new (account, chain) cancels the old loop and bumps a
// generation counter so a slow in-flight refresh from the previous identity
// can never overwrite newer data.
type SnapshotPoller struct {
	service port.BorrowingPowerService
	logger  port.Logger
	baseCtx context.Context

	interval time.Duration
	limiter  *rate.Limiter

	mu      sync.RWMutex
	entries map[string]*pollEntry
	stopped bool
}

type pollEntry struct {
	conn       entity.ConnectionContext
	cancel     context.CancelFunc
	generation uint64

	hasSnapshot bool
	snapshot    entity.BorrowingPowerSnapshot
	readErrors  []entity.ReadError
	updatedAt   time.Time
}

// PolledSnapshot is the poller's cached view of one connection.
type PolledSnapshot struct {
	Snapshot   entity.BorrowingPowerSnapshot `json:"snapshot"`
	ReadErrors []entity.ReadError            `json:"readErrors,omitempty"`
	UpdatedAt  time.Time                     `json:"updatedAt"`
}

// NewSnapshotPoller creates a new poller. Refresh loops run under baseCtx:
// cancelling it stops every loop. The limiter caps refresh rate across all
// watched connections, covering both interval ticks and explicit refresh
// requests.
func NewSnapshotPoller(baseCtx context.Context, service port.BorrowingPowerService, logger port.Logger, cfg *configloader.Config) *SnapshotPoller {
	burst := 1
	if cfg.Polling.MaxRefreshPerSecond > 1 {
		burst = int(cfg.Polling.MaxRefreshPerSecond)
	}
	return &SnapshotPoller{
		service:  service,
		logger:   logger,
		baseCtx:  baseCtx,
		interval: time.Duration(cfg.Polling.SnapshotIntervalSeconds) * time.Second,
		limiter:  rate.NewLimiter(rate.Limit(cfg.Polling.MaxRefreshPerSecond), burst),
		entries:  make(map[string]*pollEntry),
	}
}

// Watch starts (or restarts) the refresh loop for a connection. Watching a
// key that is already watched cancels the previous loop first, so only one
// loop per connection identity ever runs.
func (p *SnapshotPoller) Watch(conn entity.ConnectionContext) {
	key := conn.Key()

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	prev, exists := p.entries[key]
	var generation uint64
	if exists {
		prev.cancel()
		generation = prev.generation + 1
	}
	loopCtx, cancel := context.WithCancel(p.baseCtx)
	entry := &pollEntry{conn: conn, cancel: cancel, generation: generation}
	if exists {
		// Keep the stale snapshot visible until the first fresh one lands.
		entry.hasSnapshot = prev.hasSnapshot
		entry.snapshot = prev.snapshot
		entry.readErrors = prev.readErrors
		entry.updatedAt = prev.updatedAt
	}
	p.entries[key] = entry
	p.mu.Unlock()

	p.logger.Info("Watching connection", "connection", key, "generation", generation)
	go p.loop(loopCtx, key, generation)
}

// Unwatch stops the refresh loop for a connection and drops its cached
// snapshot.
func (p *SnapshotPoller) Unwatch(conn entity.ConnectionContext) {
	key := conn.Key()

	p.mu.Lock()
	entry, ok := p.entries[key]
	if ok {
		entry.cancel()
		delete(p.entries, key)
	}
	p.mu.Unlock()

	if ok {
		p.logger.Info("Stopped watching connection", "connection", key)
	}
}

// Refresh performs one immediate refresh for a connection, still subject to
// the rate limiter. The connection does not need to be watched: unwatched
// refreshes compute and return without touching the cache.
func (p *SnapshotPoller) Refresh(ctx context.Context, conn entity.ConnectionContext) (PolledSnapshot, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return PolledSnapshot{}, err
	}

	key := conn.Key()
	p.mu.RLock()
	var generation uint64
	entry, watched := p.entries[key]
	if watched {
		generation = entry.generation
	}
	p.mu.RUnlock()

	snapshot, readErrors, err := p.service.ComputeSnapshot(ctx, conn)
	if err != nil {
		return PolledSnapshot{}, err
	}

	now := time.Now()
	if watched {
		p.store(key, generation, snapshot, readErrors, now)
	}
	return PolledSnapshot{Snapshot: snapshot, ReadErrors: readErrors, UpdatedAt: now}, nil
}

// Latest returns the cached snapshot for a watched connection.
func (p *SnapshotPoller) Latest(conn entity.ConnectionContext) (PolledSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.entries[conn.Key()]
	if !ok || !entry.hasSnapshot {
		return PolledSnapshot{}, false
	}
	return PolledSnapshot{
		Snapshot:   entry.snapshot,
		ReadErrors: entry.readErrors,
		UpdatedAt:  entry.updatedAt,
	}, true
}

// Watched returns the connections currently being polled.
func (p *SnapshotPoller) Watched() []entity.ConnectionContext {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]entity.ConnectionContext, 0, len(p.entries))
	for _, entry := range p.entries {
		out = append(out, entry.conn)
	}
	return out
}

// Stop cancels every refresh loop. The poller accepts no new watches after.
func (p *SnapshotPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped = true
	for key, entry := range p.entries {
		entry.cancel()
		delete(p.entries, key)
	}
}

func (p *SnapshotPoller) loop(ctx context.Context, key string, generation uint64) {
	// First refresh immediately, then on the interval.
	p.refreshOnce(ctx, key, generation)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refreshOnce(ctx, key, generation)
		}
	}
}

func (p *SnapshotPoller) refreshOnce(ctx context.Context, key string, generation uint64) {
	if err := p.limiter.Wait(ctx); err != nil {
		return
	}

	p.mu.RLock()
	entry, ok := p.entries[key]
	if !ok || entry.generation != generation {
		p.mu.RUnlock()
		return
	}
	conn := entry.conn
	p.mu.RUnlock()

	snapshot, readErrors, err := p.service.ComputeSnapshot(ctx, conn)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("Snapshot refresh failed", "connection", key, "error", err)
		}
		return
	}
	p.store(key, generation, snapshot, readErrors, time.Now())
}

// store applies a refresh result under last-write-wins: a result computed
// for a superseded generation is discarded.
func (p *SnapshotPoller) store(key string, generation uint64, snapshot entity.BorrowingPowerSnapshot, readErrors []entity.ReadError, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[key]
	if !ok || entry.generation != generation {
		return
	}
	entry.hasSnapshot = true
	entry.snapshot = snapshot
	entry.readErrors = readErrors
	entry.updatedAt = at
}
