package monitoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"ems/dispatch/internal/prediction"
	"ems/dispatch/internal/store"

	"golang.org/x/sync/errgroup"
)

// Detector names.
const (
	DetectorPrediction  = "prediction_drift"
	DetectorPerformance = "performance_degradation"
	DetectorDataQuality = "data_quality"
)

// Issue types reported by the detectors.
const (
	IssueConfidenceDrift = "confidence_drift"
	IssueVarianceDrift   = "variance_drift"
	IssueDegradation     = "performance_degradation"
	IssueHighNullRate    = "high_null_rate"
	IssueOutliers        = "outliers_detected"
)

// Result statuses.
const (
	StatusOK               = "ok"
	StatusIssue            = "issue"
	StatusInsufficientData = "insufficient_data"
)

// SeverityNone marks a result without issues.
const SeverityNone = "none"

// Issue is a single finding.
type Issue struct {
	Type     string         `json:"type"`
	Severity string         `json:"severity"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// Result is what every detector returns. Detectors never touch alerts.
type Result struct {
	Detector  string             `json:"detector"`
	Status    string             `json:"status"`
	HasIssue  bool               `json:"has_issue"`
	Severity  string             `json:"severity"`
	Metrics   map[string]float64 `json:"metrics"`
	Issues    []Issue            `json:"issues"`
	Timestamp time.Time          `json:"timestamp"`
}

func newResult(detector string, at time.Time) Result {
	return Result{
		Detector:  detector,
		Status:    StatusOK,
		Severity:  SeverityNone,
		Metrics:   map[string]float64{},
		Issues:    []Issue{},
		Timestamp: at,
	}
}

func (r *Result) add(issue Issue) {
	r.Issues = append(r.Issues, issue)
	r.HasIssue = true
	r.Status = StatusIssue
	if r.Severity == SeverityNone || store.SeverityRank(issue.Severity) > store.SeverityRank(r.Severity) {
		r.Severity = issue.Severity
	}
}

// Baseline is the reference confidence distribution.
type Baseline struct {
	Mean float64
	Std  float64
}

// TrainingBaseline is the confidence distribution observed at training time.
var TrainingBaseline = Baseline{Mean: 0.91, Std: 0.08}

// PredictionDrift compares current confidences with a baseline.
func PredictionDrift(current []float64, base Baseline, th Thresholds, at time.Time) Result {
	r := newResult(DetectorPrediction, at)
	r.Metrics["sample_count"] = float64(len(current))
	r.Metrics["baseline_mean"] = base.Mean
	r.Metrics["baseline_std"] = base.Std
	if len(current) == 0 {
		r.Status = StatusInsufficientData
		return r
	}

	m, sd := mean(current), stddev(current)
	r.Metrics["current_mean"] = round(m, 4)
	r.Metrics["current_std"] = round(sd, 4)

	change := 0.0
	if base.Mean > 0 {
		change = math.Abs(m-base.Mean) / base.Mean * 100
	}
	r.Metrics["mean_change_percent"] = round(change, 2)
	if change > th.DriftPercent {
		sev := store.SeverityMedium
		if change > th.DriftHighPercent {
			sev = store.SeverityHigh
		}
		direction := "increased"
		if m < base.Mean {
			direction = "decreased"
		}
		r.add(Issue{
			Type:     IssueConfidenceDrift,
			Severity: sev,
			Message:  fmt.Sprintf("Average confidence %s %.2f%% against baseline", direction, change),
			Details:  map[string]any{"current": round(m, 4), "baseline": base.Mean},
		})
	}

	stdChange := math.Abs(sd - base.Std)
	r.Metrics["std_change"] = round(stdChange, 4)
	if stdChange > th.VarianceChange {
		r.add(Issue{
			Type:     IssueVarianceDrift,
			Severity: store.SeverityMedium,
			Message:  "Confidence variance changed significantly",
			Details:  map[string]any{"current_std": round(sd, 4), "baseline_std": base.Std},
		})
	}
	return r
}

// Degradation compares the current window mean with the preceding one.
func Degradation(current, previous []float64, th Thresholds, at time.Time) Result {
	r := newResult(DetectorPerformance, at)
	r.Metrics["current_count"] = float64(len(current))
	r.Metrics["previous_count"] = float64(len(previous))
	if len(current) == 0 || len(previous) == 0 {
		r.Status = StatusInsufficientData
		return r
	}
	cur, prev := mean(current), mean(previous)
	r.Metrics["current_mean"] = round(cur, 4)
	r.Metrics["previous_mean"] = round(prev, 4)
	if prev <= 0 {
		r.Status = StatusInsufficientData
		return r
	}
	change := (cur - prev) / prev * 100
	r.Metrics["change_percent"] = round(change, 2)
	if change < -th.DegradationPercent {
		sev := store.SeverityMedium
		if change < -th.DegradationHigh {
			sev = store.SeverityHigh
		}
		r.add(Issue{
			Type:     IssueDegradation,
			Severity: sev,
			Message:  fmt.Sprintf("Confidence dropped %.2f%% against the previous period", -change),
		})
	}
	return r
}

// DataQuality reports null and outlier rates over prediction records.
func DataQuality(records []store.PredictionRecord, required []string, th Thresholds, at time.Time) Result {
	r := newResult(DetectorDataQuality, at)
	r.Metrics["total_records"] = float64(len(records))
	if len(records) == 0 {
		r.Status = StatusInsufficientData
		return r
	}

	nulls := 0
	var confidences []float64
	for _, rec := range records {
		if rec.Confidence == nil || missingFeature(rec.Features, required) {
			nulls++
		}
		if rec.Confidence != nil {
			confidences = append(confidences, *rec.Confidence)
		}
	}
	nullRate := rate(nulls, len(records))
	r.Metrics["null_count"] = float64(nulls)
	r.Metrics["null_rate"] = round(nullRate, 2)
	if nullRate > th.NullRateWarning {
		sev := store.SeverityMedium
		if nullRate > th.NullRateCritical {
			sev = store.SeverityHigh
		}
		r.add(Issue{
			Type:     IssueHighNullRate,
			Severity: sev,
			Message:  fmt.Sprintf("%.2f%% of records have no model output or missing features", nullRate),
		})
	}

	if len(confidences) > th.OutlierMinSamples {
		sorted := sortedCopy(confidences)
		q1, q3 := percentile(sorted, 25), percentile(sorted, 75)
		iqr := q3 - q1
		lower, upper := q1-1.5*iqr, q3+1.5*iqr
		outliers := 0
		for _, c := range confidences {
			if c < lower || c > upper {
				outliers++
			}
		}
		outlierRate := rate(outliers, len(confidences))
		r.Metrics["outlier_count"] = float64(outliers)
		r.Metrics["outlier_rate"] = round(outlierRate, 2)
		r.Metrics["lower_bound"] = round(lower, 4)
		r.Metrics["upper_bound"] = round(upper, 4)
		if outlierRate > th.OutlierRateWarning {
			r.add(Issue{
				Type:     IssueOutliers,
				Severity: store.SeverityMedium,
				Message:  fmt.Sprintf("%.2f%% of confidence values are outliers", outlierRate),
			})
		}
	}
	return r
}

func missingFeature(features map[string]float64, required []string) bool {
	for _, name := range required {
		v, ok := features[name]
		if !ok || math.IsNaN(v) {
			return true
		}
	}
	return false
}

// modelConfidences keeps confidences produced by the model, skipping fallbacks.
func modelConfidences(records []store.PredictionRecord) []float64 {
	var out []float64
	for _, rec := range records {
		if rec.UsedFallback || rec.Confidence == nil {
			continue
		}
		out = append(out, *rec.Confidence)
	}
	return out
}

// BaselineMode selects what prediction drift is compared against.
type BaselineMode string

const (
	BaselineTraining       BaselineMode = "training"
	BaselinePreviousWindow BaselineMode = "previous_window"
)

// DriftMonitor runs the detectors over the prediction log.
type DriftMonitor struct {
	predictions store.PredictionLog
	thresholds  Thresholds
	baseline    Baseline
	mode        BaselineMode
	required    []string
	now         func() time.Time
}

// DriftOption customises a DriftMonitor.
type DriftOption func(*DriftMonitor)

func WithBaseline(b Baseline) DriftOption {
	return func(d *DriftMonitor) { d.baseline = b }
}

func WithBaselineMode(m BaselineMode) DriftOption {
	return func(d *DriftMonitor) { d.mode = m }
}

func WithDriftClock(now func() time.Time) DriftOption {
	return func(d *DriftMonitor) { d.now = now }
}

func NewDriftMonitor(predictions store.PredictionLog, th Thresholds, opts ...DriftOption) *DriftMonitor {
	d := &DriftMonitor{
		predictions: predictions,
		thresholds:  th,
		baseline:    TrainingBaseline,
		mode:        BaselineTraining,
		required:    prediction.FeatureNames,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DriftMonitor) list(ctx context.Context, from, to time.Time) ([]store.PredictionRecord, error) {
	recs, err := d.predictions.ListPredictions(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	return recs, nil
}

// DetectPredictionDrift compares the last window with the configured baseline.
// In previous_window mode an empty previous window falls back to the training baseline.
func (d *DriftMonitor) DetectPredictionDrift(ctx context.Context, window time.Duration) (Result, error) {
	now := d.now()
	recs, err := d.list(ctx, now.Add(-window), now)
	if err != nil {
		return Result{}, err
	}
	base := d.baseline
	if d.mode == BaselinePreviousWindow {
		prev, err := d.list(ctx, now.Add(-2*window), now.Add(-window))
		if err != nil {
			return Result{}, err
		}
		if pc := modelConfidences(prev); len(pc) > 0 {
			base = Baseline{Mean: mean(pc), Std: stddev(pc)}
		}
	}
	return PredictionDrift(modelConfidences(recs), base, d.thresholds, now), nil
}

// DetectPerformanceDegradation compares the last window with the comparison period
// immediately before it.
func (d *DriftMonitor) DetectPerformanceDegradation(ctx context.Context, window, comparison time.Duration) (Result, error) {
	now := d.now()
	cur, err := d.list(ctx, now.Add(-window), now)
	if err != nil {
		return Result{}, err
	}
	prev, err := d.list(ctx, now.Add(-window-comparison), now.Add(-window))
	if err != nil {
		return Result{}, err
	}
	return Degradation(modelConfidences(cur), modelConfidences(prev), d.thresholds, now), nil
}

// DetectDataQuality inspects every prediction record in window.
func (d *DriftMonitor) DetectDataQuality(ctx context.Context, window time.Duration) (Result, error) {
	now := d.now()
	recs, err := d.list(ctx, now.Add(-window), now)
	if err != nil {
		return Result{}, err
	}
	return DataQuality(recs, d.required, d.thresholds, now), nil
}

// DriftReport bundles the three detector results.
type DriftReport struct {
	Prediction  Result `json:"prediction_drift"`
	Performance Result `json:"performance_degradation"`
	DataQuality Result `json:"data_quality"`
}

// HasIssue reports whether any detector found an issue.
func (r DriftReport) HasIssue() bool {
	return r.Prediction.HasIssue || r.Performance.HasIssue || r.DataQuality.HasIssue
}

// Scan runs all detectors concurrently.
func (d *DriftMonitor) Scan(ctx context.Context, window, comparison time.Duration) (DriftReport, error) {
	var rep DriftReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := d.DetectPredictionDrift(gctx, window)
		rep.Prediction = r
		return err
	})
	g.Go(func() error {
		r, err := d.DetectPerformanceDegradation(gctx, window, comparison)
		rep.Performance = r
		return err
	})
	g.Go(func() error {
		r, err := d.DetectDataQuality(gctx, window)
		rep.DataQuality = r
		return err
	})
	if err := g.Wait(); err != nil {
		return DriftReport{}, err
	}
	return rep, nil
}
