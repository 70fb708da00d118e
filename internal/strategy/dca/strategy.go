// Package dca implements dollar-cost averaging: invest a fixed cash amount
// on a fixed schedule regardless of price. The schedule is expressed in
// trading days, so the Nth trading day of each month (or week) triggers a
// buy even when calendar days are missing from the series.
package dca

import (
	"fmt"

	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/strategy"
)

const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

type DCA struct {
	frequency  string
	tradingDay int // 1-based index of the trading day within the period
	amount     float64
}

// New creates a new DCA strategy investing amount per period.
func New(frequency string, amount float64) *DCA {
	return &DCA{frequency: frequency, tradingDay: 1, amount: amount}
}

func (d *DCA) Name() string {
	return "dca"
}

func (d *DCA) Description() string {
	return fmt.Sprintf("Dollar-cost averaging %.2f %s", d.amount, d.frequency)
}

func (d *DCA) Init(cfg strategy.Config) error {
	d.frequency = strategy.StringParam(cfg.Params, "frequency", d.frequency)
	d.tradingDay = strategy.IntParam(cfg.Params, "trading_day", d.tradingDay)
	d.amount = strategy.FloatParam(cfg.Params, "amount", d.amount)

	switch d.frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown DCA frequency %q", d.frequency))
	}
	if d.tradingDay < 1 || d.amount <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("need trading_day >= 1 and positive amount, got %d/%.2f", d.tradingDay, d.amount))
	}
	return nil
}

func (d *DCA) GenerateSignals(ctx strategy.Context) ([]core.Signal, error) {
	var signals []core.Signal
	for _, symbol := range ctx.Symbols {
		bars := ctx.Bars(symbol)
		if len(bars) == 0 || !d.isScheduled(bars) {
			continue
		}
		signals = append(signals, core.Signal{
			Symbol: symbol,
			Action: core.ActionBuy,
			Amount: d.amount,
			Reason: fmt.Sprintf("scheduled %s contribution", d.frequency),
			Time:   ctx.Now,
		})
	}
	return signals, nil
}

// isScheduled reports whether the newest bar is the configured trading day
// of its period.
func (d *DCA) isScheduled(bars []core.Bar) bool {
	if d.frequency == FrequencyDaily {
		return true
	}

	last := bars[len(bars)-1].Time
	count := 0
	for i := len(bars) - 1; i >= 0; i-- {
		t := bars[i].Time
		switch d.frequency {
		case FrequencyMonthly:
			if t.Year() != last.Year() || t.Month() != last.Month() {
				return count == d.tradingDay
			}
		case FrequencyWeekly:
			y1, w1 := t.ISOWeek()
			y2, w2 := last.ISOWeek()
			if y1 != y2 || w1 != w2 {
				return count == d.tradingDay
			}
		}
		count++
	}
	return count == d.tradingDay
}
