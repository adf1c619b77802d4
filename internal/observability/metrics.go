package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xkilldash9x/codedoc/api/schemas"
)

const metricsNamespace = "codedoc"

// Metrics holds the Prometheus collectors for the repair pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	SessionsStarted   prometheus.Counter
	SessionsFinished  *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	Attempts          *prometheus.CounterVec
	Findings          *prometheus.CounterVec
	InferenceDuration prometheus.Histogram
	OracleDuration    *prometheus.HistogramVec
}

// NewMetrics registers the pipeline collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_started_total",
			Help:      "Total number of repair sessions started.",
		}),
		SessionsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_finished_total",
			Help:      "Total number of repair sessions finished, by result status.",
		}, []string{"status"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_sessions",
			Help:      "Number of repair sessions currently running.",
		}),
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "attempts_total",
			Help:      "Total number of repair attempts, by terminal status.",
		}, []string{"status"}),
		Findings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "findings_total",
			Help:      "Total number of static-analysis findings seeded into sessions, by kind.",
		}, []string{"kind"}),
		InferenceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "inference_duration_seconds",
			Help:      "Wall-clock duration of generation calls.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		OracleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "oracle_duration_seconds",
			Help:      "Wall-clock duration of test runs, by outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 600},
		}, []string{"outcome"}),
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionFinished(status schemas.ResultStatus) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionsFinished.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) AttemptFinished(status schemas.AttemptStatus) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) FindingsSeeded(findings []schemas.Finding) {
	if m == nil {
		return
	}
	for _, f := range findings {
		m.Findings.WithLabelValues(string(f.Kind)).Inc()
	}
}

func (m *Metrics) ObserveInference(d time.Duration) {
	if m == nil {
		return
	}
	m.InferenceDuration.Observe(d.Seconds())
}

// ObserveOracle records a test run; outcome is pass, fail, timeout or error.
func (m *Metrics) ObserveOracle(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.OracleDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// Handler exposes the collectors registered in g in the text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
