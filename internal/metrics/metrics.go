package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Business metrics
	backtestsTotal   *prometheus.CounterVec
	backtestDuration *prometheus.HistogramVec
	tradesSimulated  *prometheus.CounterVec
	sweepCombos      *prometheus.CounterVec
	feedFetches      *prometheus.CounterVec
	jobsActive       *prometheus.GaugeVec
	runsArchived     prometheus.Counter
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Business metrics
	r.backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantbt_backtests_total",
			Help: "Total number of backtests",
		},
		[]string{"strategy", "status"},
	)
	r.backtestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quantbt_backtest_duration_seconds",
			Help:    "Backtest duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"strategy"},
	)
	r.tradesSimulated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantbt_trades_simulated_total",
			Help: "Total number of trades executed in simulations",
		},
		[]string{"strategy"},
	)
	r.sweepCombos = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantbt_sweep_combinations_total",
			Help: "Parameter combinations evaluated by optimization sweeps",
		},
		[]string{"strategy", "status"},
	)
	r.feedFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantbt_feed_fetches_total",
			Help: "Price history fetches by provider and outcome",
		},
		[]string{"provider", "status"},
	)
	r.jobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quantbt_jobs_active",
			Help: "Number of active jobs",
		},
		[]string{"type"},
	)
	r.runsArchived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quantbt_runs_archived_total",
			Help: "Backtest results written to the archive",
		},
	)

	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.tradesSimulated)
	reg.MustRegister(r.sweepCombos)
	reg.MustRegister(r.feedFetches)
	reg.MustRegister(r.jobsActive)
	reg.MustRegister(r.runsArchived)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordBacktest records a completed or failed backtest run.
func (r *Registry) RecordBacktest(strategy, status string, duration float64, trades int) {
	r.backtestsTotal.WithLabelValues(strategy, status).Inc()
	r.backtestDuration.WithLabelValues(strategy).Observe(duration)
	if trades > 0 {
		r.tradesSimulated.WithLabelValues(strategy).Add(float64(trades))
	}
}

// RecordSweepCombo records one evaluated parameter combination.
func (r *Registry) RecordSweepCombo(strategy, status string) {
	r.sweepCombos.WithLabelValues(strategy, status).Inc()
}

// RecordFeedFetch records a price history fetch.
func (r *Registry) RecordFeedFetch(provider, status string) {
	r.feedFetches.WithLabelValues(provider, status).Inc()
}

// SetJobsActive sets the number of active jobs of a type.
func (r *Registry) SetJobsActive(jobType string, count int) {
	r.jobsActive.WithLabelValues(jobType).Set(float64(count))
}

// RecordRunArchived records a result written to the archive.
func (r *Registry) RecordRunArchived() {
	r.runsArchived.Inc()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
