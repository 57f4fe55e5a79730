package store

import (
	"math"
	"sort"
)

// Alert severities, ordered from most to least severe.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// SeverityRank orders severities; unknown values rank lowest.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Summarize aggregates history records the way GetStatistics reports them.
func Summarize(recs []HistoryRecord) HistoryStatistics {
	var (
		st                        HistoryStatistics
		confSum, distSum          float64
		respSum, scoreSum, satSum float64
		respN, scoreN, satN       int
		ambulances                = map[int64]struct{}{}
	)
	st.MinResponseTimeMinutes = math.Inf(1)
	for _, r := range recs {
		st.TotalAssignments++
		confSum += r.Confidence
		distSum += r.DistanceKm
		ambulances[r.AmbulanceID] = struct{}{}
		if r.UsedFallback {
			st.FallbackCount++
		}
		o := r.Outcome
		if o == nil {
			continue
		}
		st.OutcomesRecorded++
		if o.WasOptimal != nil && *o.WasOptimal {
			st.OptimalCount++
		}
		if o.ActualResponseTimeMinutes != nil {
			v := *o.ActualResponseTimeMinutes
			respSum += v
			respN++
			st.MinResponseTimeMinutes = math.Min(st.MinResponseTimeMinutes, v)
			st.MaxResponseTimeMinutes = math.Max(st.MaxResponseTimeMinutes, v)
		}
		if o.OptimizationScore != nil {
			scoreSum += *o.OptimizationScore
			scoreN++
		}
		if o.PatientSatisfactionRating != nil {
			satSum += float64(*o.PatientSatisfactionRating)
			satN++
		}
	}
	if respN == 0 {
		st.MinResponseTimeMinutes = 0
	}
	st.UniqueAmbulances = len(ambulances)
	st.AvgConfidence = mean(confSum, st.TotalAssignments)
	st.AvgDistanceKm = mean(distSum, st.TotalAssignments)
	st.AvgResponseTimeMinutes = mean(respSum, respN)
	st.AvgOptimizationScore = mean(scoreSum, scoreN)
	st.AvgPatientSatisfaction = mean(satSum, satN)
	if st.OutcomesRecorded > 0 {
		st.OptimalRate = float64(st.OptimalCount) / float64(st.OutcomesRecorded) * 100
	}
	return st
}

// GroupBySeverity buckets records by severity level, ascending.
func GroupBySeverity(recs []HistoryRecord) []SeverityBucket {
	type acc struct {
		n          int
		dist, conf float64
	}
	groups := map[int]*acc{}
	for _, r := range recs {
		g, ok := groups[r.SeverityLevel]
		if !ok {
			g = &acc{}
			groups[r.SeverityLevel] = g
		}
		g.n++
		g.dist += r.DistanceKm
		g.conf += r.Confidence
	}
	out := make([]SeverityBucket, 0, len(groups))
	for sev, g := range groups {
		out = append(out, SeverityBucket{
			SeverityLevel: sev,
			Count:         g.n,
			AvgDistanceKm: mean(g.dist, g.n),
			AvgConfidence: mean(g.conf, g.n),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeverityLevel < out[j].SeverityLevel })
	return out
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
