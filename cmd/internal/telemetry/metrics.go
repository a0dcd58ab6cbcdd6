// Package telemetry holds the Prometheus collectors of the sync layer.
//
// Collectors are registered on an explicit registry so tests and multiple
// App instances never collide on the default one. A nil *Metrics is valid
// and records nothing.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "arcsync"

// Metrics groups every collector recorded by the layer.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	RetriesTotal       prometheus.Counter
	RefreshTotal       *prometheus.CounterVec
	LogoutTotal        *prometheus.CounterVec
	RateLimitLimit     prometheus.Gauge
	RateLimitRemaining prometheus.Gauge
	RateLimitReset     prometheus.Gauge
	CacheFetchTotal    *prometheus.CounterVec
	CacheFallbackTotal prometheus.Counter
	MutationTotal      *prometheus.CounterVec
	RealtimeEvents     *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "API requests issued through the gateway by method and HTTP status (0 = transport failure).",
		}, []string{"method", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Gateway round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RetriesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_retries_total",
			Help:      "Requests re-issued after a credential refresh.",
		}),
		RefreshTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Credential refresh network calls by result.",
		}, []string{"result"}),
		LogoutTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logout_total",
			Help:      "Logouts by reason.",
		}, []string{"reason"}),
		RateLimitLimit: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ratelimit_limit",
			Help:      "Last server-reported request quota.",
		}),
		RateLimitRemaining: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ratelimit_remaining",
			Help:      "Last server-reported remaining requests.",
		}),
		RateLimitReset: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ratelimit_reset_timestamp_seconds",
			Help:      "Unix time at which the server quota resets.",
		}),
		CacheFetchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_fetch_total",
			Help:      "Query cache page fetches by page kind and result.",
		}, []string{"page", "result"}),
		CacheFallbackTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_fallback_total",
			Help:      "First-page fetches answered from a stored snapshot.",
		}),
		MutationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutation_total",
			Help:      "Mutations by name and outcome (committed, rolled_back).",
		}, []string{"mutation", "outcome"}),
		RealtimeEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Realtime events received by type.",
		}, []string{"type"}),
	}
}

// ObserveRequest records one gateway round trip.
func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// IncRetry records a post-refresh retry.
func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncRefresh records a refresh call outcome ("ok", "failed").
func (m *Metrics) IncRefresh(result string) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(result).Inc()
}

// IncLogout records a logout.
func (m *Metrics) IncLogout(reason string) {
	if m == nil {
		return
	}
	m.LogoutTotal.WithLabelValues(reason).Inc()
}

// SetRateLimit publishes the latest advisory quota.
func (m *Metrics) SetRateLimit(limit, remaining int, reset time.Time) {
	if m == nil {
		return
	}
	m.RateLimitLimit.Set(float64(limit))
	m.RateLimitRemaining.Set(float64(remaining))
	if !reset.IsZero() {
		m.RateLimitReset.Set(float64(reset.Unix()))
	}
}

// IncCacheFetch records a page fetch; page is "first" or "next".
func (m *Metrics) IncCacheFetch(page, result string) {
	if m == nil {
		return
	}
	m.CacheFetchTotal.WithLabelValues(page, result).Inc()
}

// IncCacheFallback records a snapshot answer.
func (m *Metrics) IncCacheFallback() {
	if m == nil {
		return
	}
	m.CacheFallbackTotal.Inc()
}

// IncMutation records a mutation outcome.
func (m *Metrics) IncMutation(name, outcome string) {
	if m == nil {
		return
	}
	m.MutationTotal.WithLabelValues(name, outcome).Inc()
}

// IncRealtimeEvent records a received realtime envelope.
func (m *Metrics) IncRealtimeEvent(typ string) {
	if m == nil {
		return
	}
	m.RealtimeEvents.WithLabelValues(typ).Inc()
}
