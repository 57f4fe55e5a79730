package abtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"ems/dispatch/internal/store"
)

// PhaseStats summarises the confidences logged for one phase.
type PhaseStats struct {
	Total         int     `json:"total"`
	AvgConfidence float64 `json:"avg_confidence"`
	MinConfidence float64 `json:"min_confidence"`
	MaxConfidence float64 `json:"max_confidence"`
}

// Summary holds the derived comparison figures.
type Summary struct {
	ConfidenceDifference         float64 `json:"confidence_difference"`
	ConfidenceImprovementPercent float64 `json:"confidence_improvement_percent"`
	Phase2Better                 bool    `json:"phase2_better"`
	Recommendation               string  `json:"recommendation"`
}

// Comparison is the result of ComparePhases.
type Comparison struct {
	PeriodHours float64    `json:"period_hours"`
	Phase1      PhaseStats `json:"phase1"`
	Phase2      PhaseStats `json:"phase2"`
	Comparison  Summary    `json:"comparison"`
}

// Recommendation bands.
const (
	BandRollout          = "rollout"
	BandContinueTesting  = "continue testing"
	BandCollectMoreData  = "collect more data"
	BandPhase1Reliable   = "phase 1 more reliable"
	BandInsufficientData = "insufficient data"
)

// Recommendation is a band plus an operator facing message.
type Recommendation struct {
	Band        string  `json:"band"`
	Message     string  `json:"message"`
	Improvement float64 `json:"confidence_improvement_percent"`
}

// Recommend maps an improvement percentage to a rollout band.
func Recommend(c Comparison) Recommendation {
	imp := c.Comparison.ConfidenceImprovementPercent
	r := Recommendation{Improvement: imp}
	switch {
	case c.Phase1.Total == 0 || c.Phase2.Total == 0:
		r.Band, r.Message = BandInsufficientData, "Both phases need logged outcomes before comparing."
	case imp > 10:
		r.Band, r.Message = BandRollout, "Phase 2 showing significant improvement. Consider gradual rollout."
	case imp > 5:
		r.Band, r.Message = BandContinueTesting, "Phase 2 showing moderate improvement. Continue testing."
	case imp >= 0:
		r.Band, r.Message = BandCollectMoreData, "Results are close. Collect more data."
	default:
		r.Band, r.Message = BandPhase1Reliable, "Phase 1 more reliable. Phase 2 needs optimization."
	}
	return r
}

// Compare derives the comparison from outcome entries. Decision entries are ignored.
func Compare(entries []store.ABLogEntry, window time.Duration) Comparison {
	var p1, p2 []float64
	for _, e := range entries {
		if e.Kind != store.ABKindOutcome {
			continue
		}
		if e.Phase1Result != nil {
			p1 = append(p1, e.Phase1Result.Confidence)
		}
		if e.Phase2Result != nil {
			p2 = append(p2, e.Phase2Result.Confidence)
		}
	}
	c := Comparison{
		PeriodHours: window.Hours(),
		Phase1:      summarize(p1),
		Phase2:      summarize(p2),
	}
	diff := c.Phase2.AvgConfidence - c.Phase1.AvgConfidence
	imp := 0.0
	if c.Phase1.AvgConfidence > 0 {
		imp = diff / c.Phase1.AvgConfidence * 100
	}
	c.Comparison = Summary{
		ConfidenceDifference:         round(diff, 4),
		ConfidenceImprovementPercent: round(imp, 2),
		Phase2Better:                 diff > 0,
	}
	c.Comparison.Recommendation = Recommend(c).Band
	return c
}

func summarize(values []float64) PhaseStats {
	if len(values) == 0 {
		return PhaseStats{}
	}
	st := PhaseStats{Total: len(values), MinConfidence: math.Inf(1), MaxConfidence: math.Inf(-1)}
	sum := 0.0
	for _, v := range values {
		sum += v
		st.MinConfidence = math.Min(st.MinConfidence, v)
		st.MaxConfidence = math.Max(st.MaxConfidence, v)
	}
	st.AvgConfidence = sum / float64(len(values))
	return st
}

// ComparePhases compares phase confidences logged within window.
func (s *Splitter) ComparePhases(ctx context.Context, window time.Duration) (Comparison, error) {
	entries, err := s.log.ListABLog(ctx, s.now().Add(-window))
	if err != nil {
		return Comparison{}, err
	}
	return Compare(entries, window), nil
}

// Results is the traffic distribution over a window.
type Results struct {
	TotalTests       int      `json:"total_tests"`
	Phase1Count      int      `json:"phase1_count"`
	Phase2Count      int      `json:"phase2_count"`
	Phase1Percentage float64  `json:"phase1_percentage"`
	Phase2Percentage float64  `json:"phase2_percentage"`
	Hours            float64  `json:"hours"`
	Strategy         Strategy `json:"strategy"`
}

// Results counts decision entries per phase within window.
func (s *Splitter) Results(ctx context.Context, window time.Duration) (Results, error) {
	entries, err := s.log.ListABLog(ctx, s.now().Add(-window))
	if err != nil {
		return Results{}, err
	}
	r := Results{Hours: window.Hours(), Strategy: s.cfg.Strategy}
	for _, e := range entries {
		if e.Kind != store.ABKindDecision {
			continue
		}
		switch e.PhaseUsed {
		case Phase1:
			r.Phase1Count++
		case Phase2:
			r.Phase2Count++
		}
	}
	r.TotalTests = r.Phase1Count + r.Phase2Count
	if r.TotalTests > 0 {
		r.Phase1Percentage = round(float64(r.Phase1Count)/float64(r.TotalTests)*100, 2)
		r.Phase2Percentage = round(float64(r.Phase2Count)/float64(r.TotalTests)*100, 2)
	}
	return r, nil
}

// Report is the dashboard payload.
type Report struct {
	Period         string         `json:"period"`
	Timestamp      time.Time      `json:"timestamp"`
	Status         Status         `json:"status"`
	Summary        Results        `json:"summary"`
	Phase1Metrics  PhaseStats     `json:"phase1_metrics"`
	Phase2Metrics  PhaseStats     `json:"phase2_metrics"`
	Comparison     Summary        `json:"comparison"`
	Recommendation Recommendation `json:"recommendation"`
}

// Report combines status, distribution, comparison and recommendation.
func (s *Splitter) Report(ctx context.Context, window time.Duration) (Report, error) {
	entries, err := s.log.ListABLog(ctx, s.now().Add(-window))
	if err != nil {
		return Report{}, err
	}
	results, err := s.Results(ctx, window)
	if err != nil {
		return Report{}, err
	}
	c := Compare(entries, window)
	return Report{
		Period:         fmt.Sprintf("Last %g hours", window.Hours()),
		Timestamp:      s.now(),
		Status:         s.Status(),
		Summary:        results,
		Phase1Metrics:  roundStats(c.Phase1),
		Phase2Metrics:  roundStats(c.Phase2),
		Comparison:     c.Comparison,
		Recommendation: Recommend(c),
	}, nil
}

func roundStats(st PhaseStats) PhaseStats {
	st.AvgConfidence = round(st.AvgConfidence, 4)
	st.MinConfidence = round(st.MinConfidence, 4)
	st.MaxConfidence = round(st.MaxConfidence, 4)
	return st
}
