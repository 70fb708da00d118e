// Package macross implements a moving average crossover strategy: buy on the
// golden cross (fast SMA crossing above slow), sell on the death cross.
package macross

import (
	"fmt"

	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/indicator"
	"github.com/newthinker/quantbt/internal/strategy"
)

type MACross struct {
	fastPeriod int
	slowPeriod int
}

// New creates a new MA crossover strategy
func New(fastPeriod, slowPeriod int) *MACross {
	return &MACross{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
	}
}

func (m *MACross) Name() string {
	return "ma_crossover"
}

func (m *MACross) Description() string {
	return fmt.Sprintf("MA Crossover (%d/%d)", m.fastPeriod, m.slowPeriod)
}

func (m *MACross) Init(cfg strategy.Config) error {
	m.fastPeriod = strategy.IntParam(cfg.Params, "fast_period", m.fastPeriod)
	m.slowPeriod = strategy.IntParam(cfg.Params, "slow_period", m.slowPeriod)
	if m.fastPeriod <= 0 || m.slowPeriod <= m.fastPeriod {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("need 0 < fast period < slow period, got %d/%d", m.fastPeriod, m.slowPeriod))
	}
	return nil
}

func (m *MACross) GenerateSignals(ctx strategy.Context) ([]core.Signal, error) {
	var signals []core.Signal

	for _, symbol := range ctx.Symbols {
		bars := ctx.Bars(symbol)
		if len(bars) < m.slowPeriod+1 {
			continue // Not enough data
		}

		prices := make([]float64, len(bars))
		for i, bar := range bars {
			prices[i] = bar.Close
		}

		fastMA := indicator.SMA(prices, m.fastPeriod)
		slowMA := indicator.SMA(prices, m.slowPeriod)
		if len(fastMA) < 2 || len(slowMA) < 2 {
			continue
		}

		currFast := fastMA[len(fastMA)-1]
		prevFast := fastMA[len(fastMA)-2]
		currSlow := slowMA[len(slowMA)-1]
		prevSlow := slowMA[len(slowMA)-2]

		// Golden cross: fast crosses above slow
		if prevFast <= prevSlow && currFast > currSlow {
			signals = append(signals, core.Signal{
				Symbol:   symbol,
				Action:   core.ActionBuy,
				Strength: divergence(currFast, currSlow),
				Reason:   fmt.Sprintf("golden cross: MA%d (%.2f) above MA%d (%.2f)", m.fastPeriod, currFast, m.slowPeriod, currSlow),
				Time:     ctx.Now,
			})
		}

		// Death cross: fast crosses below slow
		if prevFast >= prevSlow && currFast < currSlow {
			signals = append(signals, core.Signal{
				Symbol:   symbol,
				Action:   core.ActionSell,
				Strength: divergence(currFast, currSlow),
				Reason:   fmt.Sprintf("death cross: MA%d (%.2f) below MA%d (%.2f)", m.fastPeriod, currFast, m.slowPeriod, currSlow),
				Time:     ctx.Now,
			})
		}
	}

	return signals, nil
}

// divergence scales the gap between the averages into (0,1].
func divergence(fast, slow float64) float64 {
	diff := (fast - slow) / slow
	if diff < 0 {
		diff = -diff
	}
	if s := diff * 10; s < 1 {
		return s
	}
	return 1
}
