// Package metrics exposes Prometheus collectors for admission decisions,
// cache effectiveness and governance denials.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors for the governance core
type Metrics struct {
	admitDecisions *prometheus.CounterVec
	settlements    prometheus.Counter

	quotaDenials  *prometheus.CounterVec
	rateDenials   prometheus.Counter
	budgetDenials prometheus.Counter
	budgetUsage   *prometheus.GaugeVec
	alertsRaised  *prometheus.CounterVec

	cacheRequests *prometheus.CounterVec

	admitDuration prometheus.Histogram
}

// New creates the metric collectors on the given registerer. Passing nil
// registers on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		admitDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aigw_admission_decisions_total",
				Help: "Total admission decisions by outcome",
			},
			[]string{"result"},
		),

		settlements: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aigw_settlements_total",
				Help: "Total settled requests",
			},
		),

		quotaDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aigw_quota_denials_total",
				Help: "Total quota denials by quota type",
			},
			[]string{"quota_type"},
		),

		rateDenials: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aigw_rate_limit_denials_total",
				Help: "Total sliding-window rate limit denials",
			},
		),

		budgetDenials: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aigw_budget_denials_total",
				Help: "Total budget denials",
			},
		),

		budgetUsage: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aigw_budget_usage_percent",
				Help: "Last observed budget usage as a percentage of the monthly limit",
			},
			[]string{"organization"},
		),

		alertsRaised: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aigw_budget_alerts_total",
				Help: "Total budget alerts raised by kind",
			},
			[]string{"kind"},
		),

		cacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aigw_cache_requests_total",
				Help: "Cache lookups by tier and outcome",
			},
			[]string{"tier", "result"},
		),

		admitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aigw_admission_duration_seconds",
				Help:    "Duration of admission checks in seconds",
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
		),
	}
}

// RecordDecision records one admission decision. reason is empty for
// allowed decisions.
func (m *Metrics) RecordDecision(allowed bool, reason string) {
	result := "allowed"
	if !allowed {
		result = reason
	}
	m.admitDecisions.WithLabelValues(result).Inc()
}

// RecordSettlement records one settled request
func (m *Metrics) RecordSettlement() {
	m.settlements.Inc()
}

// RecordQuotaDenial records a quota denial for one quota type
func (m *Metrics) RecordQuotaDenial(quotaType string) {
	m.quotaDenials.WithLabelValues(quotaType).Inc()
}

// RecordRateDenial records a sliding-window denial
func (m *Metrics) RecordRateDenial() {
	m.rateDenials.Inc()
}

// RecordBudgetDenial records a budget denial
func (m *Metrics) RecordBudgetDenial() {
	m.budgetDenials.Inc()
}

// UpdateBudgetUsage publishes the latest budget usage percentage
func (m *Metrics) UpdateBudgetUsage(organizationID string, percent float64) {
	m.budgetUsage.WithLabelValues(organizationID).Set(percent)
}

// RecordAlert records a raised budget alert
func (m *Metrics) RecordAlert(kind string) {
	m.alertsRaised.WithLabelValues(kind).Inc()
}

// RecordCacheLookup records one cache lookup against a tier
func (m *Metrics) RecordCacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(tier, result).Inc()
}

// ObserveAdmitDuration records how long an admission check took, in seconds
func (m *Metrics) ObserveAdmitDuration(seconds float64) {
	m.admitDuration.Observe(seconds)
}
