package assignment

import (
	"fmt"
	"strings"
)

// DistanceScorer maps a distance to a Phase 1 confidence.
type DistanceScorer struct {
	bands []ConfidenceBand
}

// NewDistanceScorer validates and copies the band table.
func NewDistanceScorer(bands []ConfidenceBand) (*DistanceScorer, error) {
	if err := validateBands(bands); err != nil {
		return nil, err
	}
	return &DistanceScorer{bands: append([]ConfidenceBand(nil), bands...)}, nil
}

// Score returns the confidence of the first band covering distanceKm. Distances past
// the last band keep its confidence.
func (s *DistanceScorer) Score(distanceKm float64) (float64, ConfidenceBand) {
	for _, b := range s.bands {
		if distanceKm <= b.MaxKm {
			return b.Confidence, b
		}
	}
	last := s.bands[len(s.bands)-1]
	return last.Confidence, last
}

func describeSelection(sel Selection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Nearest ambulance %d at %.2fkm", sel.AmbulanceID, sel.DistanceKm)
	var attrs []string
	if sel.CrewLevel != "" {
		attrs = append(attrs, "crew: "+sel.CrewLevel)
	}
	if sel.UnitType != "" {
		attrs = append(attrs, "unit: "+sel.UnitType)
	}
	if len(attrs) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(attrs, ", "))
	}
	fmt.Fprintf(&b, ", %d of %d available units in range", sel.InRange, sel.Available)
	return b.String()
}

func describeCrew(crew Crew) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Personnel: severity %d requires %d paramedics, assigned", crew.Severity, crew.Required)
	for i, id := range crew.ParamedicIDs {
		sep := ","
		if i == 0 {
			sep = ""
		}
		fmt.Fprintf(&b, "%s %s #%d", sep, crew.ParamedicLevels[i], id)
	}
	switch {
	case crew.NurseID != nil:
		fmt.Fprintf(&b, " + nurse #%d", *crew.NurseID)
	case crew.NurseMissing():
		b.WriteString("; required nurse unavailable")
	}
	for _, sub := range crew.Substitutions {
		fmt.Fprintf(&b, "; fallback: %s #%d substituted for %s", sub.Got, sub.ParamedicID, sub.Wanted)
	}
	return b.String()
}

func describeBand(conf float64, band ConfidenceBand) string {
	return fmt.Sprintf("Confidence %.2f from distance band up to %.0fkm", conf, band.MaxKm)
}

func describeVerdict(v Verdict) string {
	outcome := "not optimal"
	if v.Label == 1 {
		outcome = "optimal"
	}
	return fmt.Sprintf("Model %s predicts %s (confidence %.2f), recommendation %s", v.ModelID, outcome, v.Confidence, v.Recommendation)
}

func joinReasoning(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ". ") + "."
}
