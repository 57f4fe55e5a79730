// Package monitoring watches the Phase 2 classifier in production: drift and
// data quality detectors, the alert lifecycle and the aggregated health check.
package monitoring

import (
	"math"
	"sort"
)

// Thresholds are shared by the detectors, the health checker and the alert manager.
// Percentages are expressed in 0-100.
type Thresholds struct {
	FallbackRateWarning  float64
	FallbackRateCritical float64
	ConfidenceMinimum    float64
	ConfidenceOptimal    float64
	LowConfidenceRate    float64
	DriftPercent         float64
	DriftHighPercent     float64
	VarianceChange       float64
	DegradationPercent   float64
	DegradationHigh      float64
	NullRateWarning      float64
	NullRateCritical     float64
	OutlierRateWarning   float64
	OutlierMinSamples    int
	MemoryWarning        float64
	MemoryCritical       float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		FallbackRateWarning:  5,
		FallbackRateCritical: 10,
		ConfidenceMinimum:    0.75,
		ConfidenceOptimal:    0.85,
		LowConfidenceRate:    20,
		DriftPercent:         10,
		DriftHighPercent:     15,
		VarianceChange:       0.05,
		DegradationPercent:   5,
		DegradationHigh:      10,
		NullRateWarning:      5,
		NullRateCritical:     20,
		OutlierRateWarning:   5,
		OutlierMinSamples:    10,
		MemoryWarning:        80,
		MemoryCritical:       95,
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation; fewer than two samples give 0.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// percentile uses linear interpolation between closest ranks. sorted must be ascending.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func sortedCopy(xs []float64) []float64 {
	out := append([]float64(nil), xs...)
	sort.Float64s(out)
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
