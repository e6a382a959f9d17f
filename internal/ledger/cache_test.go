package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCacheServesWithinTTL(t *testing.T) {
	c := NewCache(30 * time.Second)
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	builds := 0
	build := func(context.Context) (*Snapshot, error) {
		builds++
		return &Snapshot{GeneratedAt: base}, nil
	}

	for i := 0; i < 3; i++ {
		if _, err := c.Get(context.Background(), false, build); err != nil {
			t.Fatal(err)
		}
	}
	if builds != 1 {
		t.Fatalf("builds = %d, want 1", builds)
	}

	// TTL elapsed: next read rebuilds.
	c.now = func() time.Time { return base.Add(31 * time.Second) }
	if _, err := c.Get(context.Background(), false, build); err != nil {
		t.Fatal(err)
	}
	if builds != 2 {
		t.Fatalf("builds = %d after expiry, want 2", builds)
	}
}

func TestCacheForceAndInvalidate(t *testing.T) {
	c := NewCache(time.Hour)
	builds := 0
	build := func(context.Context) (*Snapshot, error) {
		builds++
		return &Snapshot{}, nil
	}

	c.Get(context.Background(), false, build)
	c.Get(context.Background(), true, build)
	if builds != 2 {
		t.Fatalf("builds = %d after force, want 2", builds)
	}

	c.Invalidate()
	c.Get(context.Background(), false, build)
	if builds != 3 {
		t.Fatalf("builds = %d after invalidate, want 3", builds)
	}
}

func TestCacheZeroTTLDisables(t *testing.T) {
	c := NewCache(0)
	builds := 0
	build := func(context.Context) (*Snapshot, error) {
		builds++
		return &Snapshot{}, nil
	}
	c.Get(context.Background(), false, build)
	c.Get(context.Background(), false, build)
	if builds != 2 {
		t.Fatalf("builds = %d, want 2", builds)
	}
}

func TestCacheBuildErrorNotCached(t *testing.T) {
	c := NewCache(time.Hour)
	boom := errors.New("load failed")
	if _, err := c.Get(context.Background(), false, func(context.Context) (*Snapshot, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	// The failure must not poison the cache.
	snap, err := c.Get(context.Background(), false, func(context.Context) (*Snapshot, error) {
		return &Snapshot{}, nil
	})
	if err != nil || snap == nil {
		t.Fatalf("recovery Get = %v, %v", snap, err)
	}
}
