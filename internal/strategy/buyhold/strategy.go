// Package buyhold implements the simplest baseline: buy every instrument at
// its first bar and never trade again.
package buyhold

import (
	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/strategy"
)

type BuyAndHold struct{}

// New creates a new Buy-and-Hold strategy
func New() *BuyAndHold {
	return &BuyAndHold{}
}

func (b *BuyAndHold) Name() string {
	return "buy_hold"
}

func (b *BuyAndHold) Description() string {
	return "Buy at the first bar and hold to the end"
}

func (b *BuyAndHold) Init(cfg strategy.Config) error {
	return nil
}

func (b *BuyAndHold) GenerateSignals(ctx strategy.Context) ([]core.Signal, error) {
	var signals []core.Signal
	for _, symbol := range ctx.Symbols {
		if len(ctx.Bars(symbol)) != 1 || ctx.Held(symbol) {
			continue
		}
		signals = append(signals, core.Signal{
			Symbol: symbol,
			Action: core.ActionBuy,
			Reason: "initial entry",
			Time:   ctx.Now,
		})
	}
	return signals, nil
}
