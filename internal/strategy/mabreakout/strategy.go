// Package mabreakout signals when price breaks out of a band around a single
// moving average: buy above MA*(1+threshold), sell below MA*(1-threshold).
package mabreakout

import (
	"fmt"

	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/indicator"
	"github.com/newthinker/quantbt/internal/strategy"
)

type Breakout struct {
	period    int
	threshold float64
}

// New creates a new MA breakout strategy
func New(period int, threshold float64) *Breakout {
	return &Breakout{period: period, threshold: threshold}
}

func (b *Breakout) Name() string {
	return "ma_breakout"
}

func (b *Breakout) Description() string {
	return fmt.Sprintf("MA Breakout (MA%d, band %.1f%%)", b.period, b.threshold*100)
}

func (b *Breakout) Init(cfg strategy.Config) error {
	b.period = strategy.IntParam(cfg.Params, "ma_period", b.period)
	b.threshold = strategy.FloatParam(cfg.Params, "threshold", b.threshold)
	if b.period <= 0 || b.threshold < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("need positive period and non-negative threshold, got %d/%.4f", b.period, b.threshold))
	}
	return nil
}

func (b *Breakout) GenerateSignals(ctx strategy.Context) ([]core.Signal, error) {
	var signals []core.Signal

	for _, symbol := range ctx.Symbols {
		bars := ctx.Bars(symbol)
		if len(bars) < b.period {
			continue
		}

		prices := make([]float64, len(bars))
		for i, bar := range bars {
			prices[i] = bar.Close
		}

		ma := indicator.SMA(prices, b.period)
		curr := ma[len(ma)-1]
		price := prices[len(prices)-1]

		switch {
		case price > curr*(1+b.threshold) && !ctx.Held(symbol):
			signals = append(signals, core.Signal{
				Symbol: symbol,
				Action: core.ActionBuy,
				Reason: fmt.Sprintf("price %.2f above MA%d band %.2f", price, b.period, curr*(1+b.threshold)),
				Time:   ctx.Now,
			})
		case price < curr*(1-b.threshold) && ctx.Held(symbol):
			signals = append(signals, core.Signal{
				Symbol: symbol,
				Action: core.ActionSell,
				Reason: fmt.Sprintf("price %.2f below MA%d band %.2f", price, b.period, curr*(1-b.threshold)),
				Time:   ctx.Now,
			})
		}
	}

	return signals, nil
}
