package dca_test

import (
	"errors"
	"testing"
	"time"

	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/strategy"
	"github.com/newthinker/quantbt/internal/strategy/dca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ctxFromDates(symbol string, dates ...time.Time) strategy.Context {
	bars := make([]core.Bar, len(dates))
	for i, d := range dates {
		bars[i] = core.Bar{
			Symbol: symbol,
			Time:   d,
			Open:   100, High: 100, Low: 100, Close: 100,
			Volume: 1000,
		}
	}
	return strategy.Context{
		Symbols: []string{symbol},
		History: map[string][]core.Bar{symbol: bars},
		Now:     dates[len(dates)-1],
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newDCA(t *testing.T, frequency string, amount float64) *dca.DCA {
	t.Helper()
	s := dca.New(frequency, amount)
	require.NoError(t, s.Init(strategy.Config{}))
	return s
}

func TestGenerateSignals_DailyBuysEveryBar(t *testing.T) {
	s := newDCA(t, dca.FrequencyDaily, 500)

	for _, ctx := range []strategy.Context{
		ctxFromDates("SPY", date(2024, 1, 2)),
		ctxFromDates("SPY", date(2024, 1, 2), date(2024, 1, 3)),
	} {
		signals, err := s.GenerateSignals(ctx)
		require.NoError(t, err)
		require.Len(t, signals, 1)
		assert.Equal(t, core.ActionBuy, signals[0].Action)
		assert.Equal(t, 500.0, signals[0].Amount)
	}
}

func TestGenerateSignals_MonthlyFirstTradingDay(t *testing.T) {
	s := newDCA(t, dca.FrequencyMonthly, 1000)

	// First trading day of February triggers a buy.
	signals, err := s.GenerateSignals(ctxFromDates("SPY",
		date(2024, 1, 30), date(2024, 1, 31), date(2024, 2, 1)))
	require.NoError(t, err)
	assert.Len(t, signals, 1)

	// Second trading day of February does not.
	signals, err = s.GenerateSignals(ctxFromDates("SPY",
		date(2024, 1, 30), date(2024, 1, 31), date(2024, 2, 1), date(2024, 2, 2)))
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestGenerateSignals_MonthlySeriesStartCounts(t *testing.T) {
	s := newDCA(t, dca.FrequencyMonthly, 1000)

	// The first bar of the series is the first observed trading day of
	// its month.
	signals, err := s.GenerateSignals(ctxFromDates("SPY", date(2024, 1, 30)))
	require.NoError(t, err)
	assert.Len(t, signals, 1)
}

func TestGenerateSignals_WeeklyTriggersAcrossISOWeeks(t *testing.T) {
	s := newDCA(t, dca.FrequencyWeekly, 250)

	// Friday Jan 5 and Monday Jan 8 2024 fall in different ISO weeks.
	signals, err := s.GenerateSignals(ctxFromDates("SPY",
		date(2024, 1, 5), date(2024, 1, 8)))
	require.NoError(t, err)
	assert.Len(t, signals, 1)

	// Same week, second trading day: quiet.
	signals, err = s.GenerateSignals(ctxFromDates("SPY",
		date(2024, 1, 8), date(2024, 1, 9)))
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestInit_Validation(t *testing.T) {
	for _, params := range []map[string]any{
		{"frequency": "fortnightly"},
		{"trading_day": 0},
		{"amount": -1.0},
	} {
		s := dca.New(dca.FrequencyMonthly, 10000)
		err := s.Init(strategy.Config{Params: params})
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrConfigInvalid))
	}
}
