package core

import (
	"fmt"
	"math"
	"time"
)

// validPrice rejects NaN, infinities and non-positive values.
func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0
}

// AssetType represents the type of financial asset
type AssetType string

const (
	AssetStock AssetType = "stock"
	AssetETF   AssetType = "etf"
	AssetIndex AssetType = "index"
)

// Bar represents one OHLCV record for one instrument at one timestamp
type Bar struct {
	Symbol string
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// PriceSeries is the ordered bar history for one instrument.
// Bars are immutable once ingested and sorted ascending by time.
type PriceSeries struct {
	Symbol string
	Bars   []Bar
}

// Validate checks the series for data-integrity problems: empty history,
// out-of-order timestamps, or non-positive prices/volume. Any violation is
// fatal to a backtest since it corrupts downstream equity accounting.
func (s PriceSeries) Validate() error {
	if s.Symbol == "" {
		return WrapError(ErrConfigInvalid, fmt.Errorf("price series has empty symbol"))
	}
	if len(s.Bars) == 0 {
		return WrapError(ErrNoData, fmt.Errorf("empty price series for %s", s.Symbol))
	}
	for i, b := range s.Bars {
		if !validPrice(b.Open) || !validPrice(b.High) || !validPrice(b.Low) || !validPrice(b.Close) {
			return WrapError(ErrDataIntegrity,
				fmt.Errorf("non-positive price for %s at %s", s.Symbol, b.Time.Format("2006-01-02")))
		}
		if b.Volume <= 0 {
			return WrapError(ErrDataIntegrity,
				fmt.Errorf("non-positive volume for %s at %s", s.Symbol, b.Time.Format("2006-01-02")))
		}
		if i > 0 && !b.Time.After(s.Bars[i-1].Time) {
			return WrapError(ErrDataIntegrity,
				fmt.Errorf("timestamps not strictly increasing for %s at %s", s.Symbol, b.Time.Format("2006-01-02")))
		}
	}
	return nil
}

// Start returns the timestamp of the first bar.
func (s PriceSeries) Start() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[0].Time
}

// End returns the timestamp of the last bar.
func (s PriceSeries) End() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Time
}

// Closes extracts the closing prices.
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// Action represents a trading signal action
type Action string

const (
	ActionBuy          Action = "buy"
	ActionSell         Action = "sell"
	ActionHold         Action = "hold"
	ActionTargetWeight Action = "target_weight"
)

// Signal represents a trading signal from a strategy. Signals are produced
// fresh each simulation step and never persisted.
type Signal struct {
	Symbol   string
	Action   Action
	Weight   float64 // Desired fraction of total value, for ActionTargetWeight
	Amount   float64 // Fixed cash amount to invest, 0 means size by policy
	Strength float64
	Reason   string
	Strategy string
	Time     time.Time
}

// Side represents the direction of an executed trade
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is one executed fill, immutable once recorded. The trade log is
// append-only; its ordering equals simulation time order.
type Trade struct {
	Time       time.Time
	Symbol     string
	Side       Side
	Quantity   float64
	Price      float64
	Commission float64
}

// Gross returns the traded value before commission.
func (t Trade) Gross() float64 {
	return t.Quantity * t.Price
}

// Position is a long-only holding with its weighted average cost basis
type Position struct {
	Symbol   string
	Quantity float64
	AvgCost  float64
}

// MarketValue returns the position value at the given price.
func (p Position) MarketValue(price float64) float64 {
	return p.Quantity * price
}
