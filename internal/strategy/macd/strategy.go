// Package macd implements a MACD signal-line crossover strategy.
package macd

import (
	"fmt"

	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/indicator"
	"github.com/newthinker/quantbt/internal/strategy"
)

type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// New creates a new MACD strategy with the conventional 12/26/9 defaults.
func New() *MACD {
	return &MACD{fastPeriod: 12, slowPeriod: 26, signalPeriod: 9}
}

func (m *MACD) Name() string {
	return "macd"
}

func (m *MACD) Description() string {
	return fmt.Sprintf("MACD (%d/%d/%d)", m.fastPeriod, m.slowPeriod, m.signalPeriod)
}

func (m *MACD) Init(cfg strategy.Config) error {
	m.fastPeriod = strategy.IntParam(cfg.Params, "fast_period", m.fastPeriod)
	m.slowPeriod = strategy.IntParam(cfg.Params, "slow_period", m.slowPeriod)
	m.signalPeriod = strategy.IntParam(cfg.Params, "signal_period", m.signalPeriod)
	if m.fastPeriod <= 0 || m.slowPeriod <= m.fastPeriod || m.signalPeriod <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("invalid MACD params: %d/%d/%d", m.fastPeriod, m.slowPeriod, m.signalPeriod))
	}
	return nil
}

func (m *MACD) GenerateSignals(ctx strategy.Context) ([]core.Signal, error) {
	var signals []core.Signal

	for _, symbol := range ctx.Symbols {
		bars := ctx.Bars(symbol)
		prices := make([]float64, len(bars))
		for i, bar := range bars {
			prices[i] = bar.Close
		}

		macdLine, signalLine := indicator.MACD(prices, m.fastPeriod, m.slowPeriod, m.signalPeriod)
		if len(macdLine) < 2 {
			continue
		}

		curr := macdLine[len(macdLine)-1] - signalLine[len(signalLine)-1]
		prev := macdLine[len(macdLine)-2] - signalLine[len(signalLine)-2]

		if prev <= 0 && curr > 0 {
			signals = append(signals, core.Signal{
				Symbol: symbol,
				Action: core.ActionBuy,
				Reason: "MACD crossed above signal line",
				Time:   ctx.Now,
			})
		}
		if prev >= 0 && curr < 0 {
			signals = append(signals, core.Signal{
				Symbol: symbol,
				Action: core.ActionSell,
				Reason: "MACD crossed below signal line",
				Time:   ctx.Now,
			})
		}
	}

	return signals, nil
}
