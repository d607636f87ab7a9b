// Package metrics holds the Prometheus collectors of the ledger.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gastos"

// Result labels.
const (
	ResultCreated = "created"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
	ResultOK      = "ok"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	expensesCreated      *prometheus.CounterVec
	insufficientFunds    prometheus.Counter
	applierItems         *prometheus.CounterVec
	eventsPublished      *prometheus.CounterVec
	fundDrift            *prometheus.GaugeVec
	fundBalance          *prometheus.GaugeVec
	debtViewCacheLookups *prometheus.CounterVec
	rateLimited          prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		expensesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expenses_created_total",
			Help:      "Expenses created, by attribution (fund or personal).",
		}, []string{"attribution"}),
		insufficientFunds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insufficient_funds_warnings_total",
			Help:      "Fund-backed expenses that took a fund balance below zero.",
		}),
		applierItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "applier_items_total",
			Help:      "Recurring expenses and savings goals processed by the monthly applier.",
		}, []string{"kind", "result"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Ledger events handed to the broker, by type and result.",
		}, []string{"type", "result"}),
		fundDrift: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fund_drift_cents",
			Help:      "Stored fund balance minus the balance derived from the ledger.",
		}, []string{"fund_kind"}),
		fundBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fund_balance_cents",
			Help:      "Stored fund balance at the last audit.",
		}, []string{"fund_kind"}),
		debtViewCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debt_view_cache_lookups_total",
			Help:      "Debt view cache lookups, by hit or miss.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Write requests rejected by the per-client rate limiter.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.expensesCreated,
		m.insufficientFunds,
		m.applierItems,
		m.eventsPublished,
		m.fundDrift,
		m.fundBalance,
		m.debtViewCacheLookups,
		m.rateLimited,
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ExpenseCreated(attribution string) {
	if m == nil {
		return
	}
	m.expensesCreated.WithLabelValues(attribution).Inc()
}

func (m *Metrics) InsufficientFunds() {
	if m == nil {
		return
	}
	m.insufficientFunds.Inc()
}

// ApplierItem counts one recurring expense or savings goal outcome.
func (m *Metrics) ApplierItem(kind, result string) {
	if m == nil {
		return
	}
	m.applierItems.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) EventPublished(eventType, result string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType, result).Inc()
}

// FundAudited records the outcome of a drift audit for one fund.
func (m *Metrics) FundAudited(fundKind string, balanceCents, driftCents int64) {
	if m == nil {
		return
	}
	m.fundBalance.WithLabelValues(fundKind).Set(float64(balanceCents))
	m.fundDrift.WithLabelValues(fundKind).Set(float64(driftCents))
}

func (m *Metrics) DebtViewCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.debtViewCacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
