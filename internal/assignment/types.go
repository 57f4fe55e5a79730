// Package assignment implements the Phase 1 decision engine: nearest ambulance
// selection, severity driven crew composition, distance based confidence and the
// pipeline that persists each decision as a history record.
package assignment

import (
	"time"

	"ems/dispatch/internal/geo"

	"github.com/google/uuid"
)

const (
	// StatusAvailable is the only unit/personnel status eligible for assignment.
	StatusAvailable = "available"

	LevelSenior = "senior"
	LevelJunior = "junior"

	// MethodRules tags decisions produced by the rule pipeline.
	MethodRules = "deterministic_rules"

	PhaseRules = 1
	PhaseModel = 2

	// CreatedBySystem marks history rows written by the engine.
	CreatedBySystem = "SYSTEM"
)

// Ambulance is a candidate unit.
type Ambulance struct {
	ID        int64   `json:"id" validate:"required"`
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
	Status    string  `json:"status" validate:"required"`
	CrewLevel string  `json:"crew_level,omitempty"`
	UnitType  string  `json:"unit_type,omitempty"`
}

// Paramedic is a candidate crew member.
type Paramedic struct {
	ID     int64  `json:"id" validate:"required"`
	Level  string `json:"level" validate:"required,oneof=senior junior"`
	Status string `json:"status" validate:"required"`
}

// Nurse is a candidate nurse.
type Nurse struct {
	ID     int64  `json:"id" validate:"required"`
	Status string `json:"status" validate:"required"`
}

// Request is an inbound dispatch to assign.
type Request struct {
	DispatchID       int64       `json:"dispatch_id" validate:"required"`
	PatientLatitude  float64     `json:"patient_latitude" validate:"latitude"`
	PatientLongitude float64     `json:"patient_longitude" validate:"longitude"`
	EmergencyType    string      `json:"emergency_type" validate:"required"`
	Description      string      `json:"description,omitempty"`
	SeverityLevel    int         `json:"severity_level" validate:"min=1,max=5"`
	ZoneCode         string      `json:"zone_code,omitempty"`
	Timestamp        time.Time   `json:"timestamp,omitempty"`
	Ambulances       []Ambulance `json:"available_ambulances" validate:"dive"`
	Paramedics       []Paramedic `json:"available_paramedics" validate:"dive"`
	Nurses           []Nurse     `json:"available_nurses" validate:"dive"`
}

// Origin returns the emergency location.
func (r Request) Origin() geo.Point {
	return geo.Point{Latitude: r.PatientLatitude, Longitude: r.PatientLongitude}
}

// Decision is the immutable result of one assignment.
type Decision struct {
	DispatchID      int64     `json:"dispatch_id"`
	AmbulanceID     int64     `json:"ambulance_id"`
	ParamedicIDs    []int64   `json:"paramedic_ids"`
	ParamedicLevels []string  `json:"paramedic_levels"`
	NurseID         *int64    `json:"nurse_id,omitempty"`
	DistanceKm      float64   `json:"distance_km"`
	Confidence      float64   `json:"confidence"`
	AssignmentType  string    `json:"assignment_type"`
	Phase           int       `json:"phase"`
	Reasoning       string    `json:"reasoning"`
	Timestamp       time.Time `json:"timestamp"`
	HistoryID       uuid.UUID `json:"history_id"`
	UsedFallback    bool      `json:"used_fallback"`
	CrewFallback    bool      `json:"crew_fallback"`
	Recommendation  string    `json:"recommendation,omitempty"`
}

// Verdict is a model score for a candidate assignment.
type Verdict struct {
	ModelID        string
	Label          int
	Confidence     float64
	Recommendation string
}

func countAvailableAmbulances(list []Ambulance) int {
	n := 0
	for _, a := range list {
		if a.Status == StatusAvailable {
			n++
		}
	}
	return n
}

func countAvailableParamedics(list []Paramedic) (total, senior, junior int) {
	for _, p := range list {
		if p.Status != StatusAvailable {
			continue
		}
		total++
		switch p.Level {
		case LevelSenior:
			senior++
		case LevelJunior:
			junior++
		}
	}
	return total, senior, junior
}

func countAvailableNurses(list []Nurse) int {
	n := 0
	for _, nu := range list {
		if nu.Status == StatusAvailable {
			n++
		}
	}
	return n
}
