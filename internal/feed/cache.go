package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/quantbt/internal/core"
	"go.uber.org/zap"
)

// Cached wraps a Provider with an in-memory TTL cache so repeated runs and
// parameter sweeps over the same symbols do not hammer the upstream source.
type Cached struct {
	inner  Provider
	ttl    time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	series  core.PriceSeries
	fetched time.Time
}

// NewCached wraps inner with a TTL cache. A non-positive ttl disables expiry;
// entries then live for the process lifetime.
func NewCached(inner Provider, ttl time.Duration, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{
		inner:   inner,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cached) Name() string {
	return c.inner.Name()
}

// FetchHistory returns the cached series when fresh, otherwise delegates to
// the wrapped provider. Upstream failures are never cached.
func (c *Cached) FetchHistory(ctx context.Context, symbol string, start, end time.Time) (core.PriceSeries, error) {
	key := cacheKey(symbol, start, end)

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()

	if ok && (c.ttl <= 0 || time.Since(entry.fetched) < c.ttl) {
		c.logger.Debug("feed cache hit", zap.String("symbol", symbol))
		return cloneSeries(entry.series), nil
	}

	series, err := c.inner.FetchHistory(ctx, symbol, start, end)
	if err != nil {
		return core.PriceSeries{}, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{series: cloneSeries(series), fetched: time.Now()}
	c.mu.Unlock()

	return series, nil
}

// Invalidate drops all cached entries.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// cloneSeries copies the bar slice so cached data cannot be mutated by
// callers that share it.
func cloneSeries(s core.PriceSeries) core.PriceSeries {
	bars := make([]core.Bar, len(s.Bars))
	copy(bars, s.Bars)
	return core.PriceSeries{Symbol: s.Symbol, Bars: bars}
}

func cacheKey(symbol string, start, end time.Time) string {
	return fmt.Sprintf("%s|%d|%d", symbol, start.Unix(), end.Unix())
}
