package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type kickstarterMetrics struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	events        *prometheus.CounterVec
	confirmations *prometheus.CounterVec
}

var (
	registryOnce sync.Once
	registry     *kickstarterMetrics
)

// Kickstarter returns the lazily registered collectors of the service.
func Kickstarter() *kickstarterMetrics {
	registryOnce.Do(func() {
		registry = &kickstarterMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kickstarter",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route, method and status.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "kickstarter",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution of HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kickstarter",
				Subsystem: "engine",
				Name:      "events_total",
				Help:      "Committed engine events by type.",
			}, []string{"type"}),
			confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kickstarter",
				Subsystem: "worker",
				Name:      "confirmation_polls_total",
				Help:      "Rollup confirmation polls by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			registry.requests,
			registry.latency,
			registry.events,
			registry.confirmations,
		)
	})
	return registry
}

// ObserveRequest records one handled HTTP request
func (m *kickstarterMetrics) ObserveRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

func (m *kickstarterMetrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

// ObserveConfirmation counts a poll outcome: confirmed, pending or failed.
func (m *kickstarterMetrics) ObserveConfirmation(outcome string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(outcome).Inc()
}
