package cache

import (
	"sync"
	"time"

	"dkp-ledger/internal/domain"

	"github.com/rs/zerolog"
)

// Clock is injectable so TTL expiry is deterministically testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func NewSystemClock() Clock { return systemClock{} }

// SnapshotCache holds the latest leaderboard derivation under a TTL.
// Writers always replace the snapshot whole; a recompute racing a
// background load simply means the last Set wins, never a partial
// state.
type SnapshotCache struct {
	mu     sync.RWMutex
	snap   *domain.Snapshot
	ttl    time.Duration
	clock  Clock
	logger zerolog.Logger
}

func NewSnapshotCache(ttl time.Duration, clock Clock, logger zerolog.Logger) *SnapshotCache {
	return &SnapshotCache{ttl: ttl, clock: clock, logger: logger}
}

// Get returns the snapshot only while it is fresh.
func (c *SnapshotCache) Get() (*domain.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return nil, false
	}
	if c.clock.Now().Sub(c.snap.FetchedAt) >= c.ttl {
		return nil, false
	}
	return c.snap, true
}

// Last returns the most recent snapshot regardless of freshness. An
// expired snapshot is still the base for incremental catch-up and the
// last-good fallback while a failed refresh surfaces its error.
func (c *SnapshotCache) Last() *domain.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *SnapshotCache) Set(snap *domain.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	c.logger.Debug().
		Time("fetched_at", snap.FetchedAt).
		Int("characters", len(snap.Characters)).
		Int("accounts", len(snap.Accounts)).
		Int64("max_loot_id", snap.MaxLootID).
		Msg("snapshot cached")
}

// Invalidate drops the snapshot entirely; the next read recomputes
// from scratch rather than catching up incrementally.
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = nil
	c.logger.Debug().Msg("snapshot invalidated")
}
