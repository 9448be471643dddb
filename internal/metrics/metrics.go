package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bot's Prometheus collectors. A nil *Metrics is valid and
// records nothing, so packages can take it as an optional dependency.
type Metrics struct {
	generations     *prometheus.CounterVec
	generationTime  *prometheus.HistogramVec
	pollAttempts    *prometheus.HistogramVec
	ledgerOps       *prometheus.CounterVec
	payments        *prometheus.CounterVec
	staleHoldsSwept prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics registered on the default registerer.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New builds and registers the collectors on registerer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genbot",
			Name:      "generation_jobs_total",
			Help:      "Generation jobs by kind, model and outcome.",
		}, []string{"kind", "model", "outcome"}),
		generationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "genbot",
			Name:      "generation_duration_seconds",
			Help:      "Wall time from submission to outcome.",
			Buckets:   []float64{5, 10, 20, 40, 60, 120, 240, 600, 1200},
		}, []string{"kind"}),
		pollAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "genbot",
			Name:      "generation_poll_attempts",
			Help:      "Status polls spent per job.",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 60, 120, 240},
		}, []string{"kind"}),
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genbot",
			Name:      "ledger_operations_total",
			Help:      "Ledger mutations by operation and result.",
		}, []string{"op", "result"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genbot",
			Name:      "payment_notifications_total",
			Help:      "Payment webhook notifications by disposition.",
		}, []string{"disposition"}),
		staleHoldsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "genbot",
			Name:      "stale_holds_released_total",
			Help:      "Holds released by the sweeper after exceeding the stale threshold.",
		}),
	}
	registerer.MustRegister(m.generations, m.generationTime, m.pollAttempts, m.ledgerOps, m.payments, m.staleHoldsSwept)
	return m
}

// ObserveGeneration records a finished job.
func (m *Metrics) ObserveGeneration(kind, model, outcome string, attempts int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(kind, model, outcome).Inc()
	m.generationTime.WithLabelValues(kind).Observe(elapsed.Seconds())
	m.pollAttempts.WithLabelValues(kind).Observe(float64(attempts))
}

// LedgerOp counts a ledger mutation; err == nil is recorded as "ok".
func (m *Metrics) LedgerOp(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ledgerOps.WithLabelValues(op, result).Inc()
}

// PaymentNotification counts a webhook call. Dispositions carrying free-form
// detail are collapsed to their prefix to keep label cardinality bounded.
func (m *Metrics) PaymentNotification(disposition string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(DispositionLabel(disposition)).Inc()
}

// StaleHoldsReleased counts holds returned by the sweeper.
func (m *Metrics) StaleHoldsReleased(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.staleHoldsSwept.Add(float64(n))
}

// DispositionLabel maps "ignored_<status>" to "ignored" and "error: ..." to "error".
func DispositionLabel(disposition string) string {
	switch {
	case strings.HasPrefix(disposition, "ignored_"):
		return "ignored"
	case strings.HasPrefix(disposition, "error"):
		return "error"
	default:
		return disposition
	}
}
