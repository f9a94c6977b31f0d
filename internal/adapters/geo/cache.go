package geo

import (
	"context"
	"sync"
	"time"

	"github.com/okian/aqicast/pkg/logger"
	"github.com/okian/aqicast/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a resolved location is reused.
const DefaultTTL = 10 * time.Minute

const flightKey = "location"

// Fetcher resolves a fresh location.
type Fetcher interface {
	Fetch(ctx context.Context) (Location, error)
}

// Cache memoizes the last successful lookup for a TTL. Failures are never
// cached, so the next call retries upstream. The lock is never held while
// fetching; concurrent misses share one upstream call.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	log     logger.Logger
	flight  singleflight.Group

	mu        sync.Mutex
	loc       Location
	fetchedAt time.Time
	valid     bool
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets the cache lifetime.
func WithTTL(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l logger.Logger) CacheOption {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

// NewCache wraps f.
func NewCache(f Fetcher, opts ...CacheOption) *Cache {
	c := &Cache{
		fetcher: f,
		ttl:     DefaultTTL,
		now:     time.Now,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Locate returns the cached location while fresh, otherwise fetches a new
// one. Concurrent callers on an expired entry share a single fetch.
func (c *Cache) Locate(ctx context.Context) (Location, error) {
	c.mu.Lock()
	if c.valid && c.now().Sub(c.fetchedAt) < c.ttl {
		loc := c.loc
		c.mu.Unlock()
		metrics.RecordLocationLookup("hit")
		return loc, nil
	}
	c.mu.Unlock()

	return c.fetch(ctx)
}

// Refresh fetches unconditionally. On failure the previous entry is kept.
func (c *Cache) Refresh(ctx context.Context) (Location, error) {
	return c.fetch(ctx)
}

// fetch joins the in-flight upstream call or starts one. A caller whose
// context ends stops waiting; the shared call still completes and stores
// its result.
func (c *Cache) fetch(ctx context.Context) (Location, error) {
	ch := c.flight.DoChan(flightKey, func() (any, error) {
		return c.fetchAndStore(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return Location{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Location{}, res.Err
		}
		return res.Val.(Location), nil
	}
}

func (c *Cache) fetchAndStore(ctx context.Context) (Location, error) {
	loc, err := c.fetcher.Fetch(ctx)
	if err != nil {
		metrics.RecordLocationLookup("error")
		c.log.Warn(ctx, "location lookup failed", logger.Error(err))
		return Location{}, err
	}
	metrics.RecordLocationLookup("miss")

	c.mu.Lock()
	c.loc = loc
	c.fetchedAt = c.now()
	c.valid = true
	c.mu.Unlock()
	return loc, nil
}

// Invalidate drops the cached entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

// Cached returns the stored entry and whether it is still fresh.
func (c *Cache) Cached() (Location, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid {
		return Location{}, time.Time{}, false
	}
	return c.loc, c.fetchedAt, c.now().Sub(c.fetchedAt) < c.ttl
}
