// Package metrics holds the Prometheus collectors for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ltirelay"

// Grading request results.
const (
	GradeEmpty     = "empty"
	GradeScored    = "scored"
	GradeNoScore   = "no_score"
	GradeEvalError = "evaluator_error"
)

// Metrics owns its registry so tests can build as many instances as they
// like without colliding on the default one.
type Metrics struct {
	Registry *prometheus.Registry

	Launches        *prometheus.CounterVec
	OutcomeRelays   *prometheus.CounterVec
	GradingRequests *prometheus.CounterVec
	SessionsSwept   prometheus.Counter
	OutcomeDuration prometheus.Histogram
}

// New registers every collector on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Launches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_total",
			Help:      "LTI launches received, by resulting mode.",
		}, []string{"mode"}),
		OutcomeRelays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcome_relays_total",
			Help:      "Outcome relay attempts, by terminal state.",
		}, []string{"state"}),
		GradingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grading_requests_total",
			Help:      "Grading requests, by result.",
		}, []string{"result"}),
		SessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Expired sessions removed by garbage collection.",
		}),
		OutcomeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outcome_delivery_seconds",
			Help:      "Time spent delivering outcome requests to the LMS.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Launches,
		m.OutcomeRelays,
		m.GradingRequests,
		m.SessionsSwept,
		m.OutcomeDuration,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// The helpers below accept a nil receiver so services can run without
// metrics in tests and in CGI mode.

func (m *Metrics) Launch(mode string) {
	if m == nil {
		return
	}
	m.Launches.WithLabelValues(mode).Inc()
}

func (m *Metrics) Relay(state string) {
	if m == nil {
		return
	}
	m.OutcomeRelays.WithLabelValues(state).Inc()
}

func (m *Metrics) Grading(result string) {
	if m == nil {
		return
	}
	m.GradingRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsSwept.Add(float64(n))
}

func (m *Metrics) ObserveDelivery(seconds float64) {
	if m == nil {
		return
	}
	m.OutcomeDuration.Observe(seconds)
}
