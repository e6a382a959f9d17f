package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/rmedina/go-requisition-backend/internal/domain"
)

// View is one record decorated with the derived display values: the
// live-or-frozen elapsed minutes and its traffic-light bucket.
type View struct {
	domain.Requisition
	ElapsedMinutes int    `json:"elapsed_minutes"`
	Bucket         Bucket `json:"bucket"`
}

// Snapshot is a fully computed read of the ledger, shared by concurrent
// readers until it expires.
type Snapshot struct {
	Records      []View                `json:"records"`
	StatusCounts map[domain.Status]int `json:"status_counts"`
	Skipped      int                   `json:"skipped,omitempty"`
	GeneratedAt  time.Time             `json:"generated_at"`
}

// Cache holds the most recent snapshot for up to its TTL, so concurrent
// readers do not each trigger a full ledger reload. Expiry is checked
// lazily on access; there is no background refresh. Reads served from the
// cache may lag another process's commit by up to the TTL, which is the
// documented bounded-staleness trade-off.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	snap      *Snapshot
	fetchedAt time.Time
}

// NewCache returns a cache with the given time-to-live. A zero or negative
// TTL disables caching: every Get rebuilds.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, now: time.Now}
}

// Get returns the cached snapshot, rebuilding it via build when none
// exists, the TTL has elapsed, or force is set. Concurrent callers
// serialize on the rebuild so the backing store sees one reload, not N.
func (c *Cache) Get(ctx context.Context, force bool, build func(context.Context) (*Snapshot, error)) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.snap != nil && c.ttl > 0 && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.snap, nil
	}

	snap, err := build(ctx)
	if err != nil {
		return nil, err
	}
	c.snap = snap
	c.fetchedAt = c.now()
	return snap, nil
}

// Invalidate drops the cached snapshot. A writer must call this after its
// own commit so its next read is never stale.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
}
