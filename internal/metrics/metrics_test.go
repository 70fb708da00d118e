package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("expected non-nil registry")
	}
}

func gatherValue(t *testing.T, reg *Registry, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := true
			for _, label := range m.GetLabel() {
				if want, ok := labels[label.GetName()]; ok && want != label.GetValue() {
					match = false
				}
			}
			if !match {
				continue
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue(), true
			}
			if m.GetGauge() != nil {
				return m.GetGauge().GetValue(), true
			}
			return 0, true
		}
	}
	return 0, false
}

func TestRegistry_RecordBacktest(t *testing.T) {
	reg := NewRegistry()

	reg.RecordBacktest("buy_hold", "success", 0.8, 12)
	reg.RecordBacktest("buy_hold", "success", 1.2, 3)
	reg.RecordBacktest("ma_crossover", "error", 0.1, 0)

	v, ok := gatherValue(t, reg, "quantbt_backtests_total",
		map[string]string{"strategy": "buy_hold", "status": "success"})
	if !ok || v != 2 {
		t.Errorf("backtests_total{buy_hold,success} = %v, %v; want 2", v, ok)
	}

	v, ok = gatherValue(t, reg, "quantbt_trades_simulated_total",
		map[string]string{"strategy": "buy_hold"})
	if !ok || v != 15 {
		t.Errorf("trades_simulated_total{buy_hold} = %v, %v; want 15", v, ok)
	}

	// A zero-trade run must not create a counter series
	if _, ok := gatherValue(t, reg, "quantbt_trades_simulated_total",
		map[string]string{"strategy": "ma_crossover"}); ok {
		t.Error("zero-trade run created a trades series")
	}
}

func TestRegistry_RecordSweepCombo(t *testing.T) {
	reg := NewRegistry()

	reg.RecordSweepCombo("ma_crossover", "evaluated")
	reg.RecordSweepCombo("ma_crossover", "evaluated")
	reg.RecordSweepCombo("ma_crossover", "failed")

	v, ok := gatherValue(t, reg, "quantbt_sweep_combinations_total",
		map[string]string{"strategy": "ma_crossover", "status": "evaluated"})
	if !ok || v != 2 {
		t.Errorf("sweep_combinations_total{evaluated} = %v, %v; want 2", v, ok)
	}
}

func TestRegistry_RecordFeedFetch(t *testing.T) {
	reg := NewRegistry()

	reg.RecordFeedFetch("yahoo", "success")
	reg.RecordFeedFetch("yahoo", "error")

	v, ok := gatherValue(t, reg, "quantbt_feed_fetches_total",
		map[string]string{"provider": "yahoo", "status": "error"})
	if !ok || v != 1 {
		t.Errorf("feed_fetches_total{yahoo,error} = %v, %v; want 1", v, ok)
	}
}

func TestRegistry_RecordRequest_StatusCodes(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			reg := NewRegistry()
			reg.RecordRequest("GET", "/test", tt.status, 0.01)

			_, ok := gatherValue(t, reg, "http_requests_total",
				map[string]string{"status": tt.expected})
			if !ok {
				t.Errorf("expected status label %s for status code %d", tt.expected, tt.status)
			}
		})
	}
}

func TestRegistry_InFlight(t *testing.T) {
	reg := NewRegistry()

	reg.InFlightInc()
	reg.InFlightInc()
	reg.InFlightDec()

	v, ok := gatherValue(t, reg, "http_requests_in_flight", nil)
	if !ok || v != 1 {
		t.Errorf("in-flight gauge = %v, %v; want 1", v, ok)
	}
}

func TestRegistry_JobsActive(t *testing.T) {
	reg := NewRegistry()
	reg.SetJobsActive("backtest", 3)
	reg.SetJobsActive("backtest", 1)

	v, ok := gatherValue(t, reg, "quantbt_jobs_active", map[string]string{"type": "backtest"})
	if !ok || v != 1 {
		t.Errorf("jobs_active{backtest} = %v, %v; want 1", v, ok)
	}
}

// Ensure the registry implements prometheus.Gatherer interface
func TestRegistry_ImplementsGatherer(t *testing.T) {
	reg := NewRegistry()
	var _ prometheus.Gatherer = reg
}
