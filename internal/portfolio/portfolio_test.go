package portfolio_test

import (
	"errors"
	"testing"
	"time"

	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/portfolio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func TestNew_RejectsNonPositiveCapital(t *testing.T) {
	for _, capital := range []float64{0, -100} {
		_, err := portfolio.New(capital)
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrConfigInvalid))
	}
}

func TestApplyBuy_AverageCost(t *testing.T) {
	p, err := portfolio.New(100000)
	require.NoError(t, err)

	_, err = p.ApplyBuy(t0, "AAPL", 100, 100, 0)
	require.NoError(t, err)
	_, err = p.ApplyBuy(t0.AddDate(0, 0, 1), "AAPL", 100, 120, 0)
	require.NoError(t, err)

	pos, ok := p.Position("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 200, pos.Quantity, 1e-9)
	assert.InDelta(t, 110, pos.AvgCost, 1e-9, "weighted average of 100 and 120")
	assert.InDelta(t, 100000-100*100-100*120, p.Cash(), 1e-9)
}

func TestApplyBuy_Overdraw(t *testing.T) {
	p, err := portfolio.New(1000)
	require.NoError(t, err)

	_, err = p.ApplyBuy(t0, "AAPL", 100, 100, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidOrder))
	assert.Equal(t, 1000.0, p.Cash(), "failed buy must not touch cash")
	assert.Empty(t, p.Trades())
}

func TestApplyBuy_CommissionDeducted(t *testing.T) {
	p, err := portfolio.New(10000)
	require.NoError(t, err)

	_, err = p.ApplyBuy(t0, "SPY", 10, 100, 5)
	require.NoError(t, err)

	assert.InDelta(t, 10000-1000-5, p.Cash(), 1e-9)
	assert.InDelta(t, 5, p.TotalCommissions(), 1e-9)
}

func TestApplySell_RealizedPL(t *testing.T) {
	p, err := portfolio.New(100000)
	require.NoError(t, err)

	_, err = p.ApplyBuy(t0, "AAPL", 100, 100, 0)
	require.NoError(t, err)
	_, err = p.ApplySell(t0.AddDate(0, 0, 5), "AAPL", 100, 110, 2)
	require.NoError(t, err)

	assert.InDelta(t, 100*10-2, p.RealizedPL(), 1e-9)
	assert.InDelta(t, 100000+100*10-2, p.Cash(), 1e-9)

	_, open := p.Position("AAPL")
	assert.False(t, open, "fully sold position should be removed")
}

func TestApplySell_PartialKeepsCostBasis(t *testing.T) {
	p, err := portfolio.New(100000)
	require.NoError(t, err)

	_, err = p.ApplyBuy(t0, "AAPL", 100, 100, 0)
	require.NoError(t, err)
	_, err = p.ApplySell(t0.AddDate(0, 0, 1), "AAPL", 40, 105, 0)
	require.NoError(t, err)

	pos, ok := p.Position("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 60, pos.Quantity, 1e-9)
	assert.InDelta(t, 100, pos.AvgCost, 1e-9, "partial sell must not move avg cost")
}

func TestApplySell_ExceedsHolding(t *testing.T) {
	p, err := portfolio.New(100000)
	require.NoError(t, err)

	_, err = p.ApplyBuy(t0, "AAPL", 10, 100, 0)
	require.NoError(t, err)
	_, err = p.ApplySell(t0, "AAPL", 20, 100, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidOrder))

	_, err = p.ApplySell(t0, "MSFT", 1, 100, 0)
	require.Error(t, err, "selling with no position must fail")
}

func TestMarkToMarket_Invariant(t *testing.T) {
	p, err := portfolio.New(50000)
	require.NoError(t, err)

	_, err = p.ApplyBuy(t0, "AAPL", 100, 100, 10)
	require.NoError(t, err)
	_, err = p.ApplyBuy(t0, "MSFT", 50, 200, 10)
	require.NoError(t, err)

	prices := map[string]float64{"AAPL": 110, "MSFT": 190}
	total := p.MarkToMarket(prices)

	want := p.Cash() + 100*110 + 50*190
	assert.InDelta(t, want, total, 1e-9, "cash + sum(qty*price) must equal total value")
}

func TestCashNeverNegative(t *testing.T) {
	p, err := portfolio.New(1000)
	require.NoError(t, err)

	// Spend exactly everything
	_, err = p.ApplyBuy(t0, "AAPL", 10, 100, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.Cash(), 0.0)
}

func TestCommissionSanityBound(t *testing.T) {
	p, err := portfolio.New(100000)
	require.NoError(t, err)

	_, err = p.ApplyBuy(t0, "AAPL", 100, 100, 10)
	require.NoError(t, err)
	_, err = p.ApplySell(t0, "AAPL", 100, 105, 10.5)
	require.NoError(t, err)

	assert.LessOrEqual(t, p.TotalCommissions(), p.GrossTraded(),
		"total commissions cannot exceed cumulative gross traded value")
}

func TestHoldings_IsSnapshot(t *testing.T) {
	p, err := portfolio.New(10000)
	require.NoError(t, err)

	_, err = p.ApplyBuy(t0, "AAPL", 10, 100, 0)
	require.NoError(t, err)

	h := p.Holdings()
	h.Positions["AAPL"] = core.Position{Symbol: "AAPL", Quantity: 9999}
	h.Cash = -1

	pos, _ := p.Position("AAPL")
	assert.InDelta(t, 10, pos.Quantity, 1e-9, "mutating the snapshot must not affect the portfolio")
	assert.InDelta(t, 9000, p.Cash(), 1e-9)
}

func TestTrades_AppendOnlyOrdering(t *testing.T) {
	p, err := portfolio.New(100000)
	require.NoError(t, err)

	_, err = p.ApplyBuy(t0, "AAPL", 10, 100, 0)
	require.NoError(t, err)
	_, err = p.ApplyBuy(t0.AddDate(0, 0, 1), "MSFT", 5, 200, 0)
	require.NoError(t, err)
	_, err = p.ApplySell(t0.AddDate(0, 0, 2), "AAPL", 10, 105, 0)
	require.NoError(t, err)

	trades := p.Trades()
	require.Len(t, trades, 3)
	for i := 1; i < len(trades); i++ {
		assert.False(t, trades[i].Time.Before(trades[i-1].Time), "trade log must be time ordered")
	}
	assert.Equal(t, core.SideSell, trades[2].Side)
}
