package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	NotFoundSignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_notfound_signals_total",
			Help: "Not-found signals seen by the broken link pipeline, by outcome (count)",
		},
		[]string{"outcome"},
	)

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_events_total",
			Help: "Error events handed to the notifier, by kind and delivery status (count)",
		},
		[]string{"kind", "status"},
	)

	SitemapChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_sitemap_checks_total",
			Help: "Sitemap health checks, by result status (count)",
		},
		[]string{"status"},
	)

	SitemapCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sitewatch_sitemap_check_duration_ms",
			Help:    "Duration of the sitemap fetch in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
	)

	RateLimitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_ratelimit_decisions_total",
			Help: "Rate limit decisions, by event kind and decision (count)",
		},
		[]string{"kind", "decision"},
	)

	RateLimitActiveKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitewatch_ratelimit_active_keys",
			Help: "Approximate number of active suppression keys (count)",
		},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"component", "strategy"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)
)

var registerOnce sync.Once

// Register adds all collectors to the default registry. Safe to call twice.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			NotFoundSignalsTotal,
			EventsTotal,
			SitemapChecksTotal,
			SitemapCheckDuration,
			RateLimitDecisionsTotal,
			RateLimitActiveKeys,
			FallbackUsageTotal,
			CircuitBreakerState,
			CircuitBreakerRequests,
			CircuitBreakerFailures,
		)
	})
}

func IncNotFoundSignal(outcome string) {
	NotFoundSignalsTotal.WithLabelValues(outcome).Inc()
}

func IncEvent(kind, status string) {
	EventsTotal.WithLabelValues(kind, status).Inc()
}

func IncSitemapCheck(status string) {
	SitemapChecksTotal.WithLabelValues(status).Inc()
}

func ObserveSitemapCheckDuration(duration time.Duration) {
	SitemapCheckDuration.Observe(float64(duration.Milliseconds()))
}

func SetRateLimitActiveKeys(size int) {
	RateLimitActiveKeys.Set(float64(size))
}
