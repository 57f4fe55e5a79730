// Package metrics holds the domain collectors of the dispatch decision engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dispatch"

// Assignment outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	assignmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Assignment decisions partitioned by phase and outcome.",
		},
		[]string{"phase", "outcome"},
	)

	assignmentDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assignment_duration_seconds",
			Help:      "Time spent producing one assignment decision.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"phase"},
	)

	modelFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_fallbacks_total",
			Help:      "Phase 2 requests served by the rule engine, by reason.",
		},
		[]string{"reason"},
	)

	modelInferenceSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_inference_seconds",
			Help:      "Latency of successful model predictions.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	abDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ab_decisions_total",
			Help:      "Traffic split decisions by strategy and phase.",
		},
		[]string{"strategy", "phase"},
	)

	alertsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Alerts opened by type and severity.",
		},
		[]string{"type", "severity"},
	)

	alertsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts_open",
			Help:      "Number of alerts currently open.",
		},
	)

	healthStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_status",
			Help:      "Health check state: 0 healthy, 1 degraded, 2 unhealthy.",
		},
		[]string{"check"},
	)

	driftDetected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drift_detected",
			Help:      "1 when the last scan of a detector reported an issue.",
		},
		[]string{"detector"},
	)
)

// Register attaches the collectors to reg. Collectors already registered are skipped.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		assignmentsTotal,
		assignmentDurationSeconds,
		modelFallbacksTotal,
		modelInferenceSeconds,
		abDecisionsTotal,
		alertsCreatedTotal,
		alertsOpen,
		healthStatus,
		driftDetected,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAssignment records one pipeline run.
func ObserveAssignment(phase int, outcome string, duration time.Duration) {
	label := strconv.Itoa(phase)
	assignmentsTotal.WithLabelValues(label, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	assignmentDurationSeconds.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveFallback counts a Phase 2 request answered by the rule engine.
func ObserveFallback(reason string) {
	modelFallbacksTotal.WithLabelValues(reason).Inc()
}

// ObserveInference records a successful model call.
func ObserveInference(duration time.Duration) {
	modelInferenceSeconds.Observe(duration.Seconds())
}

// ObserveABDecision counts a traffic split decision.
func ObserveABDecision(strategy string, phase int) {
	abDecisionsTotal.WithLabelValues(strategy, strconv.Itoa(phase)).Inc()
}

// ObserveAlertCreated counts a newly opened alert.
func ObserveAlertCreated(alertType, severity string) {
	alertsCreatedTotal.WithLabelValues(alertType, severity).Inc()
}

// SetOpenAlerts publishes the open alert count.
func SetOpenAlerts(n int) {
	alertsOpen.Set(float64(n))
}

// SetHealth publishes a health check level.
func SetHealth(check string, level float64) {
	healthStatus.WithLabelValues(check).Set(level)
}

// SetDrift publishes whether a detector currently reports an issue.
func SetDrift(detector string, detected bool) {
	v := 0.0
	if detected {
		v = 1
	}
	driftDetected.WithLabelValues(detector).Set(v)
}
