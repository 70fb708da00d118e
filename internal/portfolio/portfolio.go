// Package portfolio holds the simulated cash and position state for a
// backtest run. It is the single source of truth during the simulation loop:
// only the engine mutates it, strategies see it through the read-only
// Holdings view.
package portfolio

import (
	"fmt"
	"math"
	"time"

	"github.com/newthinker/quantbt/internal/core"
)

// qtyEpsilon is the quantity below which a position is considered closed.
const qtyEpsilon = 1e-9

// Portfolio tracks cash, open positions and the append-only trade log.
// It is not safe for concurrent use; the simulation loop is single-threaded.
type Portfolio struct {
	cash        float64
	positions   map[string]*core.Position
	trades      []core.Trade
	realizedPL  float64
	grossTraded float64
	commissions float64
}

// New creates a portfolio with the given starting cash.
func New(initialCapital float64) (*Portfolio, error) {
	if initialCapital <= 0 {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial capital must be positive, got %f", initialCapital))
	}
	return &Portfolio{
		cash:      initialCapital,
		positions: make(map[string]*core.Position),
	}, nil
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() float64 {
	return p.cash
}

// ApplyBuy executes a buy fill: cash is reduced by quantity*price+commission
// and the position's weighted average cost is updated. The order must be
// affordable; the engine clips quantities before calling.
func (p *Portfolio) ApplyBuy(at time.Time, symbol string, quantity, price, commission float64) (core.Trade, error) {
	if err := checkFill(symbol, quantity, price, commission); err != nil {
		return core.Trade{}, err
	}

	cost := quantity*price + commission
	if cost > p.cash+qtyEpsilon {
		return core.Trade{}, core.WrapError(core.ErrInvalidOrder,
			fmt.Errorf("buy %s would overdraw cash: cost %.4f > cash %.4f", symbol, cost, p.cash))
	}

	pos, exists := p.positions[symbol]
	if !exists {
		pos = &core.Position{Symbol: symbol}
		p.positions[symbol] = pos
	}

	// Weighted average cost over the combined quantity
	totalCost := pos.Quantity*pos.AvgCost + quantity*price
	pos.Quantity += quantity
	pos.AvgCost = totalCost / pos.Quantity

	p.cash -= cost
	if p.cash < 0 {
		p.cash = 0 // Absorb float residue, never negative
	}

	return p.record(at, symbol, core.SideBuy, quantity, price, commission), nil
}

// ApplySell executes a sell fill against an existing position. Selling more
// than is held is an invariant violation, not a clip: the engine bounds sell
// quantities by the open position.
func (p *Portfolio) ApplySell(at time.Time, symbol string, quantity, price, commission float64) (core.Trade, error) {
	if err := checkFill(symbol, quantity, price, commission); err != nil {
		return core.Trade{}, err
	}

	pos, exists := p.positions[symbol]
	if !exists || pos.Quantity+qtyEpsilon < quantity {
		held := 0.0
		if exists {
			held = pos.Quantity
		}
		return core.Trade{}, core.WrapError(core.ErrInvalidOrder,
			fmt.Errorf("sell %s quantity %.4f exceeds held %.4f", symbol, quantity, held))
	}

	p.realizedPL += (price-pos.AvgCost)*quantity - commission
	p.cash += quantity*price - commission
	pos.Quantity -= quantity

	if pos.Quantity <= qtyEpsilon {
		delete(p.positions, symbol)
	}

	return p.record(at, symbol, core.SideSell, quantity, price, commission), nil
}

func checkFill(symbol string, quantity, price, commission float64) error {
	if symbol == "" || quantity <= 0 || price <= 0 || commission < 0 ||
		math.IsNaN(quantity) || math.IsNaN(price) || math.IsNaN(commission) {
		return core.WrapError(core.ErrInvalidOrder,
			fmt.Errorf("invalid fill for %q: qty=%f price=%f commission=%f", symbol, quantity, price, commission))
	}
	return nil
}

func (p *Portfolio) record(at time.Time, symbol string, side core.Side, quantity, price, commission float64) core.Trade {
	trade := core.Trade{
		Time:       at,
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Commission: commission,
	}
	p.trades = append(p.trades, trade)
	p.grossTraded += quantity * price
	p.commissions += commission
	return trade
}

// MarkToMarket returns total portfolio value (cash plus each position at its
// mark price). Symbols missing from prices are marked at zero; the engine
// always supplies a last known price for every open position.
func (p *Portfolio) MarkToMarket(prices map[string]float64) float64 {
	total := p.cash
	for symbol, pos := range p.positions {
		total += pos.MarketValue(prices[symbol])
	}
	return total
}

// Position returns a copy of the position for symbol, if open.
func (p *Portfolio) Position(symbol string) (core.Position, bool) {
	pos, ok := p.positions[symbol]
	if !ok {
		return core.Position{Symbol: symbol}, false
	}
	return *pos, true
}

// Trades returns the trade log in execution order. The returned slice must
// not be mutated by callers.
func (p *Portfolio) Trades() []core.Trade {
	return p.trades
}

// RealizedPL returns cumulative realized profit and loss net of sell
// commissions.
func (p *Portfolio) RealizedPL() float64 {
	return p.realizedPL
}

// TotalCommissions returns the sum of all commissions paid.
func (p *Portfolio) TotalCommissions() float64 {
	return p.commissions
}

// GrossTraded returns cumulative gross traded value across all fills.
func (p *Portfolio) GrossTraded() float64 {
	return p.grossTraded
}

// Holdings is a read-only snapshot handed to strategies. Mutating it has no
// effect on the portfolio.
type Holdings struct {
	Cash      float64
	Positions map[string]core.Position
}

// Holdings returns a point-in-time snapshot of cash and open positions.
func (p *Portfolio) Holdings() Holdings {
	positions := make(map[string]core.Position, len(p.positions))
	for symbol, pos := range p.positions {
		positions[symbol] = *pos
	}
	return Holdings{Cash: p.cash, Positions: positions}
}
