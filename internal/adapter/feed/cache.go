package feed

import (
	"context"
	"fmt"

	"github.com/couchcryptid/lake-forcing-etl/internal/domain"
	"github.com/couchcryptid/lake-forcing-etl/internal/observability"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedFetcher wraps a Fetcher with an in-memory LRU cache so the boundary and
// profile pipelines of one run share responses. Cached slices are shared and
// must be treated as read-only.
type CachedFetcher struct {
	inner   Fetcher
	cache   *lru.Cache[string, []domain.RawSample]
	metrics *observability.Metrics
}

// NewCachedFetcher creates a cache decorator around a fetcher holding at most
// maxEntries responses.
func NewCachedFetcher(inner Fetcher, maxEntries int, metrics *observability.Metrics) (*CachedFetcher, error) {
	cache, err := lru.New[string, []domain.RawSample](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("feed cache: %w", err)
	}
	return &CachedFetcher{
		inner:   inner,
		cache:   cache,
		metrics: metrics,
	}, nil
}

func (c *CachedFetcher) Fetch(ctx context.Context, q Query) ([]domain.RawSample, error) {
	key := q.key()
	if samples, ok := c.cache.Get(key); ok {
		c.metrics.FeedCache.WithLabelValues(q.Endpoint.Name, "hit").Inc()
		return samples, nil
	}
	c.metrics.FeedCache.WithLabelValues(q.Endpoint.Name, "miss").Inc()

	samples, err := c.inner.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, samples)
	return samples, nil
}

// Len reports how many responses are cached.
func (c *CachedFetcher) Len() int {
	return c.cache.Len()
}

// Purge drops every cached response.
func (c *CachedFetcher) Purge() {
	c.cache.Purge()
}
