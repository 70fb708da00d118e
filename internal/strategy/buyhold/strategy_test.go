package buyhold_test

import (
	"testing"
	"time"

	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/portfolio"
	"github.com/newthinker/quantbt/internal/strategy"
	"github.com/newthinker/quantbt/internal/strategy/buyhold"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barAt(symbol string, day int) core.Bar {
	return core.Bar{
		Symbol: symbol,
		Time:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day),
		Open:   100, High: 100, Low: 100, Close: 100,
		Volume: 1000,
	}
}

func TestGenerateSignals_BuysOnFirstBarOnly(t *testing.T) {
	s := buyhold.New()
	require.NoError(t, s.Init(strategy.Config{}))

	first := strategy.Context{
		Symbols: []string{"AAPL", "MSFT"},
		History: map[string][]core.Bar{
			"AAPL": {barAt("AAPL", 0)},
			"MSFT": {barAt("MSFT", 0)},
		},
		Now: barAt("AAPL", 0).Time,
	}
	signals, err := s.GenerateSignals(first)
	require.NoError(t, err)
	require.Len(t, signals, 2)
	for _, sig := range signals {
		assert.Equal(t, core.ActionBuy, sig.Action)
	}

	second := strategy.Context{
		Symbols: []string{"AAPL"},
		History: map[string][]core.Bar{
			"AAPL": {barAt("AAPL", 0), barAt("AAPL", 1)},
		},
		Now: barAt("AAPL", 1).Time,
	}
	signals, err = s.GenerateSignals(second)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestGenerateSignals_SkipsHeldSymbol(t *testing.T) {
	s := buyhold.New()
	require.NoError(t, s.Init(strategy.Config{}))

	ctx := strategy.Context{
		Symbols: []string{"AAPL"},
		History: map[string][]core.Bar{"AAPL": {barAt("AAPL", 0)}},
		Holdings: portfolio.Holdings{
			Positions: map[string]core.Position{
				"AAPL": {Symbol: "AAPL", Quantity: 10},
			},
		},
		Now: barAt("AAPL", 0).Time,
	}
	signals, err := s.GenerateSignals(ctx)
	require.NoError(t, err)
	assert.Empty(t, signals)
}
