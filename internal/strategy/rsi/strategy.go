// Package rsi implements an RSI threshold strategy: buy when the index
// crosses into oversold territory, sell when it crosses into overbought.
package rsi

import (
	"fmt"

	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/indicator"
	"github.com/newthinker/quantbt/internal/strategy"
)

type RSI struct {
	period     int
	oversold   float64
	overbought float64
}

// New creates a new RSI strategy with the standard 14/30/70 defaults.
func New() *RSI {
	return &RSI{period: 14, oversold: 30, overbought: 70}
}

func (r *RSI) Name() string {
	return "rsi"
}

func (r *RSI) Description() string {
	return fmt.Sprintf("RSI(%d) thresholds %v/%v", r.period, r.oversold, r.overbought)
}

func (r *RSI) Init(cfg strategy.Config) error {
	r.period = strategy.IntParam(cfg.Params, "rsi_period", r.period)
	r.oversold = strategy.FloatParam(cfg.Params, "oversold", r.oversold)
	r.overbought = strategy.FloatParam(cfg.Params, "overbought", r.overbought)
	if r.period <= 1 || r.oversold >= r.overbought {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("invalid RSI params: period=%d oversold=%.1f overbought=%.1f", r.period, r.oversold, r.overbought))
	}
	return nil
}

func (r *RSI) GenerateSignals(ctx strategy.Context) ([]core.Signal, error) {
	var signals []core.Signal

	for _, symbol := range ctx.Symbols {
		bars := ctx.Bars(symbol)
		if len(bars) < r.period+2 {
			continue
		}

		prices := make([]float64, len(bars))
		for i, bar := range bars {
			prices[i] = bar.Close
		}

		values := indicator.RSI(prices, r.period)
		if len(values) < 2 {
			continue
		}
		curr := values[len(values)-1]
		prev := values[len(values)-2]

		// Edge-triggered: act on crossing a threshold, not while parked
		// beyond it
		if prev >= r.oversold && curr < r.oversold {
			signals = append(signals, core.Signal{
				Symbol: symbol,
				Action: core.ActionBuy,
				Reason: fmt.Sprintf("RSI %.1f crossed below %.1f", curr, r.oversold),
				Time:   ctx.Now,
			})
		}
		if prev <= r.overbought && curr > r.overbought {
			signals = append(signals, core.Signal{
				Symbol: symbol,
				Action: core.ActionSell,
				Reason: fmt.Sprintf("RSI %.1f crossed above %.1f", curr, r.overbought),
				Time:   ctx.Now,
			})
		}
	}

	return signals, nil
}
