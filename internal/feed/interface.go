// Package feed loads the historical price data a backtest consumes, either
// from a remote market-data provider or from local CSV files.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/newthinker/quantbt/internal/core"
)

// Provider fetches daily bars for one symbol over a date range. The returned
// series is not guaranteed to be clean; callers validate before simulating.
type Provider interface {
	Name() string
	FetchHistory(ctx context.Context, symbol string, start, end time.Time) (core.PriceSeries, error)
}

// Registry manages named providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// FetchAll loads one series per symbol from the same provider, failing fast
// on the first error.
func FetchAll(ctx context.Context, p Provider, symbols []string, start, end time.Time) ([]core.PriceSeries, error) {
	series := make([]core.PriceSeries, 0, len(symbols))
	for _, symbol := range symbols {
		s, err := p.FetchHistory(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		series = append(series, s)
	}
	return series, nil
}
