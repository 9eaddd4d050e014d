// Package metrics provides Prometheus metrics for the attendance engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom histogram buckets for latency metrics.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithRegistry sets the registry metrics are registered on and served from.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// Manager owns every engine metric. A nil *Manager is valid and records nothing.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	comparisons      *prometheus.CounterVec
	recognizerTime   *prometheus.HistogramVec
	identifications  *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	duplicates       *prometheus.CounterVec
	logWriteFailures prometheus.Counter
	gatewayFailures  *prometheus.CounterVec
	rateLimited      prometheus.Counter
}

// NewManager creates a manager on a fresh custom registry unless one is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "attendance",
		histogramBuckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.comparisons = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "comparisons_total",
		Help:      "Recognizer tier invocations by method and availability",
	}, []string{"method", "available"})

	m.recognizerTime = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "recognizer_duration_seconds",
		Help:      "Time spent in one recognizer tier",
		Buckets:   m.histogramBuckets,
	}, []string{"method"})

	m.identifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "identifications_total",
		Help:      "Identification requests by outcome",
	}, []string{"outcome"})

	m.transitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "transitions_total",
		Help:      "Attendance state transitions by action",
	}, []string{"action"})

	m.duplicates = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "duplicates_total",
		Help:      "Rejected duplicate attendance events by reason",
	}, []string{"reason"})

	m.logWriteFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "recognition_log_failures_total",
		Help:      "Recognition log rows that could not be written",
	})

	m.gatewayFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "gateway_failures_total",
		Help:      "Failed fingerprint gateway requests by endpoint",
	}, []string{"endpoint"})

	m.rateLimited = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter",
	})
}

// ObserveComparison records one recognizer tier invocation.
func (m *Manager) ObserveComparison(method string, available bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.comparisons.WithLabelValues(method, strconv.FormatBool(available)).Inc()
	m.recognizerTime.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveIdentification records the outcome of one identification request.
func (m *Manager) ObserveIdentification(outcome string) {
	if m == nil {
		return
	}
	m.identifications.WithLabelValues(outcome).Inc()
}

// ObserveTransition records a written check-in or check-out.
func (m *Manager) ObserveTransition(action string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action).Inc()
}

// ObserveDuplicate records a rejected duplicate event.
func (m *Manager) ObserveDuplicate(reason string) {
	if m == nil {
		return
	}
	m.duplicates.WithLabelValues(reason).Inc()
}

// ObserveLogFailure records a swallowed recognition log write failure.
func (m *Manager) ObserveLogFailure() {
	if m == nil {
		return
	}
	m.logWriteFailures.Inc()
}

// ObserveGatewayFailure records a failed gateway request.
func (m *Manager) ObserveGatewayFailure(endpoint string) {
	if m == nil {
		return
	}
	m.gatewayFailures.WithLabelValues(endpoint).Inc()
}

// ObserveRateLimited records a request rejected by the rate limiter.
func (m *Manager) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// Registry returns the registry backing the manager.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the manager's registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
