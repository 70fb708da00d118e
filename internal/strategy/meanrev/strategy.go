// Package meanrev implements a mean-reversion strategy: enter when price
// deviates from its rolling mean beyond a z-score threshold, exit once it
// reverts.
package meanrev

import (
	"fmt"

	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/indicator"
	"github.com/newthinker/quantbt/internal/strategy"
)

type MeanReversion struct {
	lookback       int
	entryThreshold float64 // Standard deviations below the mean to enter
	exitThreshold  float64 // Standard deviations at which the move has reverted
}

// New creates a new mean-reversion strategy.
func New() *MeanReversion {
	return &MeanReversion{lookback: 20, entryThreshold: 2.0, exitThreshold: 0.5}
}

func (m *MeanReversion) Name() string {
	return "mean_reversion"
}

func (m *MeanReversion) Description() string {
	return fmt.Sprintf("Mean reversion (lookback %d, entry %.1fσ, exit %.1fσ)", m.lookback, m.entryThreshold, m.exitThreshold)
}

func (m *MeanReversion) Init(cfg strategy.Config) error {
	m.lookback = strategy.IntParam(cfg.Params, "lookback_period", m.lookback)
	m.entryThreshold = strategy.FloatParam(cfg.Params, "entry_threshold", m.entryThreshold)
	m.exitThreshold = strategy.FloatParam(cfg.Params, "exit_threshold", m.exitThreshold)
	if m.lookback < 2 || m.entryThreshold <= m.exitThreshold || m.exitThreshold < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("invalid mean-reversion params: lookback=%d entry=%.2f exit=%.2f", m.lookback, m.entryThreshold, m.exitThreshold))
	}
	return nil
}

func (m *MeanReversion) GenerateSignals(ctx strategy.Context) ([]core.Signal, error) {
	var signals []core.Signal

	for _, symbol := range ctx.Symbols {
		bars := ctx.Bars(symbol)
		if len(bars) < m.lookback {
			continue
		}

		prices := make([]float64, len(bars))
		for i, bar := range bars {
			prices[i] = bar.Close
		}

		ma := indicator.SMA(prices, m.lookback)
		std := indicator.RollingStd(prices, m.lookback)
		if len(ma) == 0 || len(std) == 0 || std[len(std)-1] == 0 {
			continue
		}

		price := prices[len(prices)-1]
		z := (price - ma[len(ma)-1]) / std[len(std)-1]

		switch {
		case z < -m.entryThreshold && !ctx.Held(symbol):
			signals = append(signals, core.Signal{
				Symbol:   symbol,
				Action:   core.ActionBuy,
				Strength: -z / m.entryThreshold,
				Reason:   fmt.Sprintf("z-score %.2f below entry threshold", z),
				Time:     ctx.Now,
			})
		case z > -m.exitThreshold && ctx.Held(symbol):
			signals = append(signals, core.Signal{
				Symbol: symbol,
				Action: core.ActionSell,
				Reason: fmt.Sprintf("z-score %.2f reverted to mean", z),
				Time:   ctx.Now,
			})
		}
	}

	return signals, nil
}
