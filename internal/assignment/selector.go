package assignment

import (
	"fmt"

	"ems/dispatch/internal/geo"
)

// Selection is the ambulance chosen by the Selector.
type Selection struct {
	AmbulanceID int64
	DistanceKm  float64
	CrewLevel   string
	UnitType    string
	Available   int
	InRange     int
}

// Selector picks the nearest available ambulance within a maximum distance.
type Selector struct {
	maxDistanceKm float64
}

// NewSelector returns a selector bounded by maxDistanceKm.
func NewSelector(maxDistanceKm float64) *Selector {
	if maxDistanceKm <= 0 {
		maxDistanceKm = DefaultMaxDistanceKm
	}
	return &Selector{maxDistanceKm: maxDistanceKm}
}

// MaxDistanceKm returns the configured search radius.
func (s *Selector) MaxDistanceKm() float64 { return s.maxDistanceKm }

// Select returns the closest available candidate. Equal distances are broken by the
// lower ambulance id.
func (s *Selector) Select(origin geo.Point, candidates []Ambulance) (Selection, error) {
	if err := origin.Validate(); err != nil {
		return Selection{}, validationError("assignment.select", map[string]string{"patient": "coordinates"}, err)
	}

	var (
		best  Selection
		found bool
	)
	for _, amb := range candidates {
		if amb.Status != StatusAvailable {
			continue
		}
		best.Available++

		d, err := geo.Distance(origin, geo.Point{Latitude: amb.Latitude, Longitude: amb.Longitude})
		if err != nil {
			return Selection{}, validationError("assignment.select",
				map[string]string{fmt.Sprintf("ambulance[%d]", amb.ID): "coordinates"}, err)
		}
		if d > s.maxDistanceKm {
			continue
		}
		best.InRange++

		if !found || d < best.DistanceKm || (d == best.DistanceKm && amb.ID < best.AmbulanceID) {
			best.AmbulanceID = amb.ID
			best.DistanceKm = d
			best.CrewLevel = amb.CrewLevel
			best.UnitType = amb.UnitType
			found = true
		}
	}

	if !found {
		if best.Available == 0 {
			return Selection{}, &Error{Op: "assignment.select", Category: CategoryNoAmbulance, Err: ErrNoAmbulanceAvailable}
		}
		return Selection{}, &Error{
			Op:       "assignment.select",
			Category: CategoryNoAmbulance,
			Err:      fmt.Errorf("%w: none within %.1fkm", ErrNoAmbulanceAvailable, s.maxDistanceKm),
		}
	}
	return best, nil
}
