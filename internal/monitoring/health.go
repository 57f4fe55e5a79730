package monitoring

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"ems/dispatch/internal/metrics"
	"ems/dispatch/internal/prediction"
	"ems/dispatch/internal/store"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Health statuses, ordered unhealthy > degraded > healthy.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// Check names.
const (
	CheckStorage     = "storage"
	CheckModel       = "model"
	CheckPredictions = "predictions"
	CheckFallback    = "fallback"
	CheckMemory      = "memory"
)

var ErrUnknownCheck = errors.New("unknown health check")

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Metrics   map[string]any `json:"metrics,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// HealthSummary counts checks per status.
type HealthSummary struct {
	Healthy   int `json:"healthy"`
	Degraded  int `json:"degraded"`
	Unhealthy int `json:"unhealthy"`
}

// HealthReport aggregates every check.
type HealthReport struct {
	OverallStatus string                 `json:"overall_status"`
	Timestamp     time.Time              `json:"timestamp"`
	Checks        map[string]CheckResult `json:"checks"`
	Summary       HealthSummary          `json:"summary"`
}

// ModelProbe reports whether model artifacts are present.
type ModelProbe interface {
	Probe(ctx context.Context) (prediction.ArtifactStatus, error)
}

// HealthConfig tunes the checker.
type HealthConfig struct {
	Window         time.Duration
	ModelMaxAge    time.Duration
	MemoryLimit    uint64
	ExpectedTables []string
}

// HealthChecker runs the storage, model, predictions and fallback checks, plus a
// memory check when a limit is configured.
type HealthChecker struct {
	storage     store.Prober
	model       ModelProbe
	predictions store.PredictionLog
	thresholds  Thresholds
	cfg         HealthConfig
	log         zerolog.Logger
	now         func() time.Time
	memStats    func() uint64
}

func NewHealthChecker(storage store.Prober, model ModelProbe, predictions store.PredictionLog, th Thresholds, cfg HealthConfig, log zerolog.Logger) *HealthChecker {
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.ExpectedTables == nil {
		cfg.ExpectedTables = store.Tables
	}
	return &HealthChecker{
		storage:     storage,
		model:       model,
		predictions: predictions,
		thresholds:  th,
		cfg:         cfg,
		log:         log.With().Str("component", "health_checker").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
		memStats: func() uint64 {
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			return ms.HeapAlloc
		},
	}
}

// Checks lists the check names the checker runs.
func (h *HealthChecker) Checks() []string {
	names := []string{CheckStorage, CheckModel, CheckPredictions, CheckFallback}
	if h.cfg.MemoryLimit > 0 {
		names = append(names, CheckMemory)
	}
	return names
}

// Check runs every check concurrently and aggregates them.
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	names := h.Checks()
	results := make(map[string]CheckResult, len(names))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			r, _ := h.CheckOne(gctx, name)
			mu.Lock()
			results[name] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	rep := HealthReport{OverallStatus: HealthHealthy, Timestamp: h.now(), Checks: results}
	for name, r := range results {
		metrics.SetHealth(name, healthLevel(r.Status))
		switch r.Status {
		case HealthUnhealthy:
			rep.Summary.Unhealthy++
			rep.OverallStatus = HealthUnhealthy
		case HealthDegraded:
			rep.Summary.Degraded++
			if rep.OverallStatus != HealthUnhealthy {
				rep.OverallStatus = HealthDegraded
			}
		default:
			rep.Summary.Healthy++
		}
	}
	return rep
}

func healthLevel(status string) float64 {
	switch status {
	case HealthHealthy:
		return 1
	case HealthDegraded:
		return 0.5
	}
	return 0
}

// CheckOne runs a single named check.
func (h *HealthChecker) CheckOne(ctx context.Context, name string) (CheckResult, error) {
	var r CheckResult
	switch name {
	case CheckStorage:
		r = h.checkStorage(ctx)
	case CheckModel:
		r = h.checkModel(ctx)
	case CheckPredictions:
		r = h.checkPredictions(ctx)
	case CheckFallback:
		r = h.checkFallback(ctx)
	case CheckMemory:
		r = h.checkMemory()
	default:
		return CheckResult{}, fmt.Errorf("%w: %q", ErrUnknownCheck, name)
	}
	r.Timestamp = h.now()
	if r.Status != HealthHealthy {
		h.log.Warn().Str("check", name).Str("status", r.Status).Msg(r.Message)
	}
	return r, nil
}

func (h *HealthChecker) checkStorage(ctx context.Context) CheckResult {
	if h.storage == nil {
		return CheckResult{Status: HealthUnhealthy, Message: "No storage configured"}
	}
	hs, err := h.storage.Probe(ctx)
	if err != nil || !hs.Connected {
		msg := "Cannot connect to storage"
		if err != nil {
			h.log.Error().Err(err).Msg("storage probe failed")
		}
		return CheckResult{Status: HealthUnhealthy, Message: msg}
	}
	var missing []string
	for _, t := range h.cfg.ExpectedTables {
		if !hs.Tables[t] {
			missing = append(missing, t)
		}
	}
	m := map[string]any{
		"tables":     hs.Tables,
		"size_bytes": hs.SizeBytes,
		"latency_ms": hs.LatencyMillis,
	}
	if len(missing) > 0 {
		m["missing_tables"] = missing
		return CheckResult{Status: HealthUnhealthy, Message: "Expected tables missing", Metrics: m}
	}
	return CheckResult{Status: HealthHealthy, Message: "Storage connected", Metrics: m}
}

func (h *HealthChecker) checkModel(ctx context.Context) CheckResult {
	if h.model == nil {
		return CheckResult{Status: HealthUnhealthy, Message: "No model configured"}
	}
	st, err := h.model.Probe(ctx)
	if err != nil {
		return CheckResult{Status: HealthUnhealthy, Message: "Model probe failed"}
	}
	m := map[string]any{"source": st.Source, "present": st.Present}
	if !st.UpdatedAt.IsZero() {
		m["updated_at"] = st.UpdatedAt
	}
	if !st.Present {
		msg := "Model artifacts not found"
		if st.Detail != "" {
			m["detail"] = st.Detail
		}
		return CheckResult{Status: HealthUnhealthy, Message: msg, Metrics: m}
	}
	if h.cfg.ModelMaxAge > 0 && !st.UpdatedAt.IsZero() {
		age := h.now().Sub(st.UpdatedAt)
		m["age_hours"] = round(age.Hours(), 2)
		if age > h.cfg.ModelMaxAge {
			return CheckResult{Status: HealthDegraded, Message: "Model artifacts are stale", Metrics: m}
		}
	}
	return CheckResult{Status: HealthHealthy, Message: "Model artifacts present", Metrics: m}
}

func (h *HealthChecker) windowRecords(ctx context.Context) ([]store.PredictionRecord, error) {
	now := h.now()
	return h.predictions.ListPredictions(ctx, now.Add(-h.cfg.Window), now)
}

func (h *HealthChecker) checkPredictions(ctx context.Context) CheckResult {
	recs, err := h.windowRecords(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("list predictions failed")
		return CheckResult{Status: HealthUnhealthy, Message: "Cannot read prediction log"}
	}
	conf := modelConfidences(recs)
	low := 0
	for _, c := range conf {
		if c < h.thresholds.ConfidenceMinimum {
			low++
		}
	}
	avg := mean(conf)
	lowRate := rate(low, len(conf))
	m := map[string]any{
		"total_predictions":    len(conf),
		"avg_confidence":       round(avg, 4),
		"low_confidence_count": low,
		"low_confidence_rate":  round(lowRate, 2),
	}
	switch {
	case len(conf) == 0:
		return CheckResult{Status: HealthDegraded, Message: "No predictions in window", Metrics: m}
	case avg < h.thresholds.ConfidenceMinimum || lowRate > h.thresholds.LowConfidenceRate:
		return CheckResult{Status: HealthUnhealthy, Message: "Low confidence levels detected", Metrics: m}
	case avg < h.thresholds.ConfidenceOptimal:
		return CheckResult{Status: HealthDegraded, Message: "Confidence below optimal threshold", Metrics: m}
	}
	return CheckResult{Status: HealthHealthy, Message: "Predictions healthy", Metrics: m}
}

func (h *HealthChecker) checkFallback(ctx context.Context) CheckResult {
	recs, err := h.windowRecords(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("list predictions failed")
		return CheckResult{Status: HealthUnhealthy, Message: "Cannot read prediction log"}
	}
	fallbacks := 0
	for _, r := range recs {
		if r.UsedFallback {
			fallbacks++
		}
	}
	fr := rate(fallbacks, len(recs))
	m := map[string]any{
		"total_predictions": len(recs),
		"fallback_count":    fallbacks,
		"fallback_rate":     round(fr, 2),
	}
	switch {
	case fr > h.thresholds.FallbackRateCritical:
		return CheckResult{Status: HealthUnhealthy, Message: "Critical fallback rate", Metrics: m}
	case fr > h.thresholds.FallbackRateWarning:
		return CheckResult{Status: HealthDegraded, Message: "High fallback rate", Metrics: m}
	}
	return CheckResult{Status: HealthHealthy, Message: "Fallback rate normal", Metrics: m}
}

func (h *HealthChecker) checkMemory() CheckResult {
	used := h.memStats()
	pct := float64(used) / float64(h.cfg.MemoryLimit) * 100
	m := map[string]any{
		"heap_bytes":    used,
		"limit_bytes":   h.cfg.MemoryLimit,
		"usage_percent": round(pct, 2),
	}
	switch {
	case pct > h.thresholds.MemoryCritical:
		return CheckResult{Status: HealthUnhealthy, Message: "Memory usage critical", Metrics: m}
	case pct > h.thresholds.MemoryWarning:
		return CheckResult{Status: HealthDegraded, Message: "Memory usage high", Metrics: m}
	}
	return CheckResult{Status: HealthHealthy, Message: "Memory usage normal", Metrics: m}
}
