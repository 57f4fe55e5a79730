package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ems/dispatch/internal/metrics"
	"ems/dispatch/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AlertType is the closed set of alert kinds.
type AlertType string

const (
	AlertDriftDetected          AlertType = "drift_detected"
	AlertPerformanceDegradation AlertType = "performance_degradation"
	AlertServiceDown            AlertType = "service_down"
	AlertHighFallbackRate       AlertType = "high_fallback_rate"
	AlertLowConfidence          AlertType = "low_confidence"
	AlertDataQuality            AlertType = "data_quality"
	AlertResourceExhaustion     AlertType = "resource_exhaustion"
	AlertStorageError           AlertType = "storage_error"
)

var alertTypes = map[AlertType][]string{
	AlertDriftDetected: {
		"Compare recent confidence distribution with the training baseline",
		"Check for upstream changes in dispatch data",
		"Schedule model retraining if drift persists",
	},
	AlertPerformanceDegradation: {
		"Review recent outcome feedback",
		"Compare with phase 1 results in the A/B dashboard",
		"Consider reducing phase 2 traffic weight",
	},
	AlertServiceDown: {
		"Check model artifact location or inference service",
		"Verify fallback decisions are being produced",
	},
	AlertHighFallbackRate: {
		"Inspect model load and timeout errors in the logs",
		"Verify the model artifact is readable",
	},
	AlertLowConfidence: {
		"Review low confidence predictions",
		"Validate feature inputs against the training schema",
	},
	AlertDataQuality: {
		"Check for missing features in prediction records",
		"Inspect outlier confidence values",
	},
	AlertResourceExhaustion: {
		"Check process memory usage",
		"Scale the service or lower concurrency",
	},
	AlertStorageError: {
		"Check database connectivity",
		"Verify migrations have been applied",
	},
}

var severities = map[string]bool{
	store.SeverityCritical: true,
	store.SeverityHigh:     true,
	store.SeverityMedium:   true,
	store.SeverityLow:      true,
	store.SeverityInfo:     true,
}

var (
	ErrAlertNotFound        = errors.New("alert not found")
	ErrAlertAlreadyResolved = errors.New("alert already resolved")
	ErrUnknownAlertType     = errors.New("unknown alert type")
	ErrInvalidSeverity      = errors.New("invalid alert severity")
)

// AlertTypes lists every alert type.
func AlertTypes() []AlertType {
	return []AlertType{
		AlertDriftDetected, AlertPerformanceDegradation, AlertServiceDown, AlertHighFallbackRate,
		AlertLowConfidence, AlertDataQuality, AlertResourceExhaustion, AlertStorageError,
	}
}

// Handler is notified after a new alert is opened.
type Handler interface {
	HandleAlert(ctx context.Context, alert store.Alert) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, alert store.Alert) error

func (f HandlerFunc) HandleAlert(ctx context.Context, alert store.Alert) error { return f(ctx, alert) }

// AlertSpec describes an alert to open.
type AlertSpec struct {
	Type            AlertType
	Severity        string
	Title           string
	Description     string
	Details         map[string]any
	ResolutionSteps []string
}

// AlertManager owns the alert lifecycle: open, deduplicate, notify, resolve.
type AlertManager struct {
	store      store.AlertStore
	thresholds Thresholds
	log        zerolog.Logger
	now        func() time.Time

	mu       sync.RWMutex
	handlers []Handler
}

func NewAlertManager(st store.AlertStore, th Thresholds, log zerolog.Logger) *AlertManager {
	return &AlertManager{
		store:      st,
		thresholds: th,
		log:        log.With().Str("component", "alert_manager").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Thresholds returns the thresholds shared with the health checker.
func (m *AlertManager) Thresholds() Thresholds { return m.thresholds }

// RegisterHandler adds a notification handler.
func (m *AlertManager) RegisterHandler(h Handler) {
	m.mu.Lock()
	m.handlers = append(m.handlers, h)
	m.mu.Unlock()
}

// CreateAlert opens an alert unless one of the same type is already open, in which
// case the open alert is returned with created=false.
func (m *AlertManager) CreateAlert(ctx context.Context, spec AlertSpec) (store.Alert, bool, error) {
	steps, ok := alertTypes[spec.Type]
	if !ok {
		return store.Alert{}, false, fmt.Errorf("%w: %q", ErrUnknownAlertType, spec.Type)
	}
	if !severities[spec.Severity] {
		return store.Alert{}, false, fmt.Errorf("%w: %q", ErrInvalidSeverity, spec.Severity)
	}
	if spec.ResolutionSteps == nil {
		spec.ResolutionSteps = steps
	}

	alert, created, err := m.store.CreateIfNoneOpen(ctx, store.Alert{
		ID:              uuid.New(),
		Type:            string(spec.Type),
		Severity:        spec.Severity,
		Title:           spec.Title,
		Description:     spec.Description,
		Details:         spec.Details,
		ResolutionSteps: spec.ResolutionSteps,
		Status:          store.AlertOpen,
		CreatedAt:       m.now(),
	})
	if err != nil {
		return store.Alert{}, false, fmt.Errorf("create alert: %w", err)
	}
	if !created {
		m.log.Debug().Str("type", alert.Type).Str("alert_id", alert.ID.String()).Msg("alert already open")
		return alert, false, nil
	}

	metrics.ObserveAlertCreated(alert.Type, alert.Severity)
	m.refreshOpenGauge(ctx)
	m.log.Warn().
		Str("alert_id", alert.ID.String()).
		Str("type", alert.Type).
		Str("severity", alert.Severity).
		Msg(alert.Title)
	m.notify(ctx, alert)
	return alert, true, nil
}

func (m *AlertManager) notify(ctx context.Context, alert store.Alert) {
	m.mu.RLock()
	handlers := append([]Handler(nil), m.handlers...)
	m.mu.RUnlock()
	for _, h := range handlers {
		if err := h.HandleAlert(ctx, alert); err != nil {
			m.log.Error().Err(err).Str("alert_id", alert.ID.String()).Msg("alert handler failed")
		}
	}
}

func (m *AlertManager) refreshOpenGauge(ctx context.Context) {
	open, err := m.store.ListOpenAlerts(ctx)
	if err != nil {
		return
	}
	metrics.SetOpenAlerts(len(open))
}

// ResolveAlert closes an open alert.
func (m *AlertManager) ResolveAlert(ctx context.Context, id uuid.UUID, notes string) (store.Alert, error) {
	alert, err := m.store.ResolveAlert(ctx, id, notes, m.now())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return store.Alert{}, ErrAlertNotFound
	case errors.Is(err, store.ErrAlreadyResolved):
		return store.Alert{}, ErrAlertAlreadyResolved
	case err != nil:
		return store.Alert{}, fmt.Errorf("resolve alert: %w", err)
	}
	m.refreshOpenGauge(ctx)
	m.log.Info().Str("alert_id", id.String()).Str("type", alert.Type).Msg("alert resolved")
	return alert, nil
}

// ActiveAlerts returns open alerts, most severe first.
func (m *AlertManager) ActiveAlerts(ctx context.Context) ([]store.Alert, error) {
	return m.store.ListOpenAlerts(ctx)
}

// History returns alerts created within window, newest first.
func (m *AlertManager) History(ctx context.Context, window time.Duration) ([]store.Alert, error) {
	return m.store.ListAlertsSince(ctx, m.now().Add(-window))
}

// AlertStatistics summarises alerts created within a window.
type AlertStatistics struct {
	PeriodDays     float64        `json:"period_days"`
	Timestamp      time.Time      `json:"timestamp"`
	TotalAlerts    int            `json:"total_alerts"`
	BySeverity     map[string]int `json:"by_severity"`
	ByType         map[string]int `json:"by_type"`
	ByStatus       map[string]int `json:"by_status"`
	ResolutionRate float64        `json:"resolution_rate"`
}

func (m *AlertManager) Statistics(ctx context.Context, window time.Duration) (AlertStatistics, error) {
	alerts, err := m.History(ctx, window)
	if err != nil {
		return AlertStatistics{}, err
	}
	st := AlertStatistics{
		PeriodDays:  window.Hours() / 24,
		Timestamp:   m.now(),
		TotalAlerts: len(alerts),
		BySeverity:  map[string]int{},
		ByType:      map[string]int{},
		ByStatus:    map[string]int{},
	}
	for _, a := range alerts {
		st.BySeverity[a.Severity]++
		st.ByType[a.Type]++
		st.ByStatus[a.Status]++
	}
	st.ResolutionRate = round(rate(st.ByStatus[store.AlertResolved], len(alerts)), 2)
	return st, nil
}

// EvaluateDrift opens an alert for a detector result with issues.
func (m *AlertManager) EvaluateDrift(ctx context.Context, r Result) (*store.Alert, error) {
	if !r.HasIssue {
		return nil, nil
	}
	var typ AlertType
	switch r.Detector {
	case DetectorPrediction:
		typ = AlertDriftDetected
	case DetectorPerformance:
		typ = AlertPerformanceDegradation
	case DetectorDataQuality:
		typ = AlertDataQuality
	default:
		return nil, fmt.Errorf("%w: detector %q", ErrUnknownAlertType, r.Detector)
	}
	details := map[string]any{"metrics": r.Metrics, "issues": r.Issues}
	return m.open(ctx, AlertSpec{
		Type:        typ,
		Severity:    r.Severity,
		Title:       titleFor(typ),
		Description: r.Issues[0].Message,
		Details:     details,
	})
}

// EvaluateHealth opens alerts for unhealthy or degraded checks.
func (m *AlertManager) EvaluateHealth(ctx context.Context, rep HealthReport) ([]store.Alert, error) {
	var out []store.Alert
	for name, check := range rep.Checks {
		spec, ok := m.healthAlert(name, check)
		if !ok {
			continue
		}
		a, err := m.open(ctx, spec)
		if err != nil {
			return out, err
		}
		if a != nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *AlertManager) healthAlert(name string, c CheckResult) (AlertSpec, bool) {
	if c.Status == HealthHealthy {
		return AlertSpec{}, false
	}
	sev := store.SeverityMedium
	if c.Status == HealthUnhealthy {
		sev = store.SeverityHigh
	}
	spec := AlertSpec{Severity: sev, Description: c.Message, Details: c.Metrics}
	switch name {
	case CheckStorage:
		if c.Status != HealthUnhealthy {
			return AlertSpec{}, false
		}
		spec.Type, spec.Severity = AlertStorageError, store.SeverityCritical
	case CheckModel:
		if c.Status != HealthUnhealthy {
			return AlertSpec{}, false
		}
		spec.Type, spec.Severity = AlertServiceDown, store.SeverityCritical
	case CheckPredictions:
		if c.Status != HealthUnhealthy {
			return AlertSpec{}, false
		}
		spec.Type = AlertLowConfidence
	case CheckFallback:
		spec.Type = AlertHighFallbackRate
	case CheckMemory:
		spec.Type = AlertResourceExhaustion
		if c.Status == HealthUnhealthy {
			spec.Severity = store.SeverityCritical
		}
	default:
		return AlertSpec{}, false
	}
	spec.Title = titleFor(spec.Type)
	return spec, true
}

func (m *AlertManager) open(ctx context.Context, spec AlertSpec) (*store.Alert, error) {
	a, created, err := m.CreateAlert(ctx, spec)
	if err != nil || !created {
		return nil, err
	}
	return &a, nil
}

func titleFor(t AlertType) string {
	switch t {
	case AlertDriftDetected:
		return "Prediction drift detected"
	case AlertPerformanceDegradation:
		return "Model performance degraded"
	case AlertServiceDown:
		return "Model service unavailable"
	case AlertHighFallbackRate:
		return "High fallback rate"
	case AlertLowConfidence:
		return "Low prediction confidence"
	case AlertDataQuality:
		return "Data quality issues"
	case AlertResourceExhaustion:
		return "Memory usage high"
	case AlertStorageError:
		return "Storage unavailable"
	}
	return string(t)
}
