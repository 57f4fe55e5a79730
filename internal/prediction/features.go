package prediction

import (
	"fmt"
	"math"
	"time"

	"ems/dispatch/internal/assignment"
	"ems/dispatch/internal/geo"
	"ems/dispatch/internal/store"
)

// FeatureNames is the fixed input schema of the Phase 2 classifier, in order.
var FeatureNames = []string{
	"severity_level",
	"hour_of_day",
	"day_of_week",
	"is_weekend",
	"available_ambulances_count",
	"nearest_ambulance_distance_km",
	"paramedics_available_count",
	"paramedics_senior_count",
	"paramedics_junior_count",
	"nurses_available_count",
	"active_dispatches_count",
	"ambulances_busy_percentage",
	"average_response_time_minutes",
	"actual_response_time_minutes",
	"actual_travel_distance_km",
	"optimization_score",
	"paramedic_satisfaction_rating",
	"patient_satisfaction_rating",
}

// FeatureVector maps feature names to values.
type FeatureVector map[string]float64

// Vector returns the values in schema order. Missing or non-finite values are
// reported as invalid input.
func (fv FeatureVector) Vector() ([]float64, error) {
	out := make([]float64, len(FeatureNames))
	for i, name := range FeatureNames {
		v, ok := fv[name]
		if !ok {
			return nil, &ModelError{Reason: ReasonInvalidInput, Err: fmt.Errorf("missing feature %q", name)}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &ModelError{Reason: ReasonInvalidInput, Err: fmt.Errorf("feature %q is not finite", name)}
		}
		out[i] = v
	}
	return out, nil
}

// Missing returns the schema features absent from fv.
func (fv FeatureVector) Missing() []string {
	var out []string
	for _, name := range FeatureNames {
		if _, ok := fv[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// Neutral priors used when no history is available yet.
const (
	defaultResponseMinutes   = 10.0
	defaultOptimization      = 0.5
	defaultSatisfactionScore = 4.0
)

// BuildFeatures derives the classifier input from a request and recent history.
// Outcome-type features are not known at decision time, so historical averages
// stand in for them.
func BuildFeatures(req assignment.Request, at time.Time, hist store.HistoryStatistics) FeatureVector {
	if !req.Timestamp.IsZero() {
		at = req.Timestamp
	}
	weekday := at.Weekday()

	var available, busy int
	nearest := math.Inf(1)
	for _, a := range req.Ambulances {
		if a.Status != assignment.StatusAvailable {
			busy++
			continue
		}
		available++
		d, err := geo.Distance(req.Origin(), geo.Point{Latitude: a.Latitude, Longitude: a.Longitude})
		if err == nil && d < nearest {
			nearest = d
		}
	}
	if math.IsInf(nearest, 1) {
		nearest = 0
	}
	busyPct := 0.0
	if total := available + busy; total > 0 {
		busyPct = float64(busy) / float64(total) * 100
	}

	var paramedics, seniors, juniors int
	for _, p := range req.Paramedics {
		if p.Status != assignment.StatusAvailable {
			continue
		}
		paramedics++
		if p.Level == assignment.LevelSenior {
			seniors++
		} else {
			juniors++
		}
	}
	nurses := 0
	for _, n := range req.Nurses {
		if n.Status == assignment.StatusAvailable {
			nurses++
		}
	}

	avgResponse := orDefault(hist.AvgResponseTimeMinutes, defaultResponseMinutes)
	weekend := 0.0
	if weekday == time.Saturday || weekday == time.Sunday {
		weekend = 1
	}

	return FeatureVector{
		"severity_level":                float64(req.SeverityLevel),
		"hour_of_day":                   float64(at.Hour()),
		"day_of_week":                   float64(weekday),
		"is_weekend":                    weekend,
		"available_ambulances_count":    float64(available),
		"nearest_ambulance_distance_km": geo.RoundKm(nearest),
		"paramedics_available_count":    float64(paramedics),
		"paramedics_senior_count":       float64(seniors),
		"paramedics_junior_count":       float64(juniors),
		"nurses_available_count":        float64(nurses),
		"active_dispatches_count":       float64(busy),
		"ambulances_busy_percentage":    busyPct,
		"average_response_time_minutes": avgResponse,
		"actual_response_time_minutes":  avgResponse,
		"actual_travel_distance_km":     geo.RoundKm(nearest),
		"optimization_score":            orDefault(hist.AvgOptimizationScore, defaultOptimization),
		"paramedic_satisfaction_rating": defaultSatisfactionScore,
		"patient_satisfaction_rating":   orDefault(hist.AvgPatientSatisfaction, defaultSatisfactionScore),
	}
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
