// Package metrics exposes Prometheus counters for refresh passes, ledger
// lookups, bill notifications and payments. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "triviapay"

// Refresh pass outcomes
const (
	OutcomeApplied = "applied"
	OutcomeStale   = "stale"
	OutcomeSkipped = "skipped"
)

// Metrics holds every collector of the organizer
type Metrics struct {
	registry *prometheus.Registry

	RefreshPasses         *prometheus.CounterVec
	RefreshDuration       prometheus.Histogram
	LookupFailures        *prometheus.CounterVec
	NotificationsSurfaced prometheus.Counter
	NotificationsSent     *prometheus.CounterVec
	PaymentsSubmitted     *prometheus.CounterVec
	HTTPRequests          *prometheus.CounterVec
}

// New creates the collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RefreshPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_passes_total",
			Help:      "Reconciliation passes by outcome.",
		}, []string{"outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		LookupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_failures_total",
			Help:      "Failed reconciliation lookups by source.",
		}, []string{"source"}),
		NotificationsSurfaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_surfaced_total",
			Help:      "Inbound bill requests added to the notification list.",
		}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_transactions_total",
			Help:      "Outbound bill notification transactions by result.",
		}, []string{"result"}),
		PaymentsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payments and deposits submitted by kind and result.",
		}, []string{"kind", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status class.",
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RefreshPasses,
		m.RefreshDuration,
		m.LookupFailures,
		m.NotificationsSurfaced,
		m.NotificationsSent,
		m.PaymentsSubmitted,
		m.HTTPRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRefresh records one reconciliation pass
func (m *Metrics) ObserveRefresh(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RefreshPasses.WithLabelValues(outcome).Inc()
	m.RefreshDuration.Observe(d.Seconds())
}

// LookupFailed records a failed reconciliation lookup
func (m *Metrics) LookupFailed(source string) {
	if m == nil {
		return
	}
	m.LookupFailures.WithLabelValues(source).Inc()
}

// NotificationsFound records surfaced inbound notifications
func (m *Metrics) NotificationsFound(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.NotificationsSurfaced.Add(float64(n))
}

// NotificationSent records the result of one outbound notification transaction
func (m *Metrics) NotificationSent(ok bool) {
	if m == nil {
		return
	}
	m.NotificationsSent.WithLabelValues(result(ok)).Inc()
}

// PaymentSubmitted records a payment or deposit
func (m *Metrics) PaymentSubmitted(kind string, ok bool) {
	if m == nil {
		return
	}
	m.PaymentsSubmitted.WithLabelValues(kind, result(ok)).Inc()
}

// ObserveHTTP records one API request
func (m *Metrics) ObserveHTTP(method, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, statusClass(status)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
