package factory

import (
	"fmt"

	"github.com/newthinker/quantbt/internal/strategy"
	"github.com/newthinker/quantbt/internal/strategy/buyhold"
	"github.com/newthinker/quantbt/internal/strategy/dca"
	"github.com/newthinker/quantbt/internal/strategy/mabreakout"
	"github.com/newthinker/quantbt/internal/strategy/macd"
	"github.com/newthinker/quantbt/internal/strategy/macross"
	"github.com/newthinker/quantbt/internal/strategy/meanrev"
	"github.com/newthinker/quantbt/internal/strategy/rsi"
)

// New creates a strategy by name and applies params. Defaults match the
// conventional parameterizations; params override them.
func New(name string, params map[string]any) (strategy.Strategy, error) {
	var s strategy.Strategy
	switch name {
	case "buy_hold":
		s = buyhold.New()
	case "ma_crossover":
		s = macross.New(20, 60)
	case "ma_breakout":
		s = mabreakout.New(20, 0.0)
	case "rsi":
		s = rsi.New()
	case "macd":
		s = macd.New()
	case "dca":
		s = dca.New(dca.FrequencyMonthly, 10000)
	case "mean_reversion":
		s = meanrev.New()
	default:
		return nil, fmt.Errorf("unknown strategy: %s", name)
	}

	if err := s.Init(strategy.Config{Params: params}); err != nil {
		return nil, fmt.Errorf("initializing %s: %w", name, err)
	}
	return s, nil
}

// Available lists every strategy name the factory can build.
func Available() []string {
	return []string{
		"buy_hold", "ma_crossover", "ma_breakout", "rsi",
		"macd", "dca", "mean_reversion",
	}
}
