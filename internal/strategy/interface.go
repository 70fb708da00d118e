package strategy

import (
	"time"

	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/portfolio"
)

// Config holds strategy configuration
type Config struct {
	Params map[string]any
}

// Context provides data to strategies for one simulation step. History holds,
// per symbol, every bar up to and including the current timestamp; a strategy
// can never observe later bars.
type Context struct {
	Symbols  []string
	History  map[string][]core.Bar
	Holdings portfolio.Holdings
	Now      time.Time
}

// Bars returns the history for one symbol.
func (c Context) Bars(symbol string) []core.Bar {
	return c.History[symbol]
}

// Held reports whether a position in symbol is currently open.
func (c Context) Held(symbol string) bool {
	pos, ok := c.Holdings.Positions[symbol]
	return ok && pos.Quantity > 0
}

// Strategy defines the interface for trading strategies. Implementations are
// stateless across calls: rolling statistics are recomputed from the supplied
// history each step, which makes runs reproducible by construction.
type Strategy interface {
	Name() string
	Description() string
	Init(cfg Config) error
	GenerateSignals(ctx Context) ([]core.Signal, error)
}
