// Package store defines the storage collaborator consumed by the decision engine:
// an append-mostly log of assignment history, A/B decisions, model predictions and
// alerts. Implementations live in the memory and postgres subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrOutcomeRecorded is returned when outcome fields were already attached.
	ErrOutcomeRecorded = errors.New("outcome already recorded")
	// ErrAlreadyResolved is returned when resolving an alert that is not open.
	ErrAlreadyResolved = errors.New("alert already resolved")
)

// HistoryRecord is one persisted assignment decision plus its feature snapshot and
// the outcome fields attached later.
type HistoryRecord struct {
	ID              uuid.UUID `json:"id"`
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
	UsedFallback    bool      `json:"used_fallback"`

	SeverityLevel       int    `json:"severity_level"`
	EmergencyType       string `json:"emergency_type"`
	ZoneCode            string `json:"zone_code,omitempty"`
	AvailableAmbulances int    `json:"available_ambulances_count"`
	AvailableParamedics int    `json:"available_paramedics_count"`
	AvailableNurses     int    `json:"available_nurses_count"`
	HourOfDay           int    `json:"hour_of_day"`
	DayOfWeek           int    `json:"day_of_week"`
	IsWeekend           bool   `json:"is_weekend"`
	CreatedBy           string `json:"created_by"`

	Outcome   *Outcome  `json:"outcome,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Outcome is the feedback attached once to a history record.
type Outcome struct {
	ActualResponseTimeMinutes   *float64  `json:"actual_response_time_minutes,omitempty"`
	ActualTravelDistanceKm      *float64  `json:"actual_travel_distance_km,omitempty"`
	PatientOutcome              string    `json:"patient_outcome,omitempty"`
	WasOptimal                  *bool     `json:"was_optimal,omitempty"`
	OptimizationScore           *float64  `json:"optimization_score,omitempty"`
	ParamedicSatisfactionRating *int      `json:"paramedic_satisfaction_rating,omitempty"`
	PatientSatisfactionRating   *int      `json:"patient_satisfaction_rating,omitempty"`
	Notes                       string    `json:"notes,omitempty"`
	RecordedAt                  time.Time `json:"recorded_at"`
}

// HistoryStatistics summarises history records created within a window.
type HistoryStatistics struct {
	Hours                  int     `json:"hours"`
	TotalAssignments       int     `json:"total_assignments"`
	OutcomesRecorded       int     `json:"outcomes_recorded"`
	OptimalCount           int     `json:"optimal_count"`
	OptimalRate            float64 `json:"optimal_rate"`
	AvgResponseTimeMinutes float64 `json:"avg_response_time_minutes"`
	MinResponseTimeMinutes float64 `json:"min_response_time_minutes"`
	MaxResponseTimeMinutes float64 `json:"max_response_time_minutes"`
	AvgOptimizationScore   float64 `json:"avg_optimization_score"`
	AvgPatientSatisfaction float64 `json:"avg_patient_satisfaction"`
	AvgConfidence          float64 `json:"avg_confidence"`
	AvgDistanceKm          float64 `json:"avg_distance_km"`
	UniqueAmbulances       int     `json:"unique_ambulances"`
	FallbackCount          int     `json:"fallback_count"`
}

// AmbulancePerformance summarises one ambulance's history over a window.
type AmbulancePerformance struct {
	AmbulanceID            int64   `json:"ambulance_id"`
	Days                   int     `json:"days"`
	TotalAssignments       int     `json:"total_assignments"`
	OptimalCount           int     `json:"optimal_count"`
	AvgDistanceKm          float64 `json:"avg_distance_km"`
	AvgResponseTimeMinutes float64 `json:"avg_response_time_minutes"`
	AvgOptimizationScore   float64 `json:"avg_optimization_score"`
}

// SeverityBucket counts assignments for one severity level.
type SeverityBucket struct {
	SeverityLevel int     `json:"severity_level"`
	Count         int     `json:"count"`
	AvgDistanceKm float64 `json:"avg_distance_km"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// HistoryStore is the assignment history arena. Records are immutable apart from a
// single UpdateOutcome call.
type HistoryStore interface {
	CreateHistoryRecord(ctx context.Context, rec HistoryRecord) (uuid.UUID, error)
	GetHistoryByDispatch(ctx context.Context, dispatchID int64) ([]HistoryRecord, error)
	GetRecent(ctx context.Context, limit, hours int) ([]HistoryRecord, error)
	GetStatistics(ctx context.Context, hours int) (HistoryStatistics, error)
	UpdateOutcome(ctx context.Context, id uuid.UUID, outcome Outcome) error
	GetByAmbulance(ctx context.Context, ambulanceID int64, limit int) ([]HistoryRecord, error)
	AmbulancePerformance(ctx context.Context, ambulanceID int64, days int) (AmbulancePerformance, error)
	SeverityDistribution(ctx context.Context, days int) ([]SeverityBucket, error)
}

// PhaseResult is the summary of one phase's answer stored in the A/B log.
type PhaseResult struct {
	Confidence   float64 `json:"confidence"`
	AmbulanceID  int64   `json:"ambulance_id,omitempty"`
	UsedFallback bool    `json:"used_fallback,omitempty"`
}

// A/B log entry kinds.
const (
	ABKindDecision = "decision"
	ABKindOutcome  = "outcome"
)

// ABLogEntry is one append-only A/B log row.
type ABLogEntry struct {
	ID           int64        `json:"id"`
	DispatchID   int64        `json:"dispatch_id"`
	PhaseUsed    int          `json:"phase_used"`
	Strategy     string       `json:"strategy"`
	Kind         string       `json:"kind"`
	Phase1Result *PhaseResult `json:"phase1_result,omitempty"`
	Phase2Result *PhaseResult `json:"phase2_result,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ABLog appends and reads A/B entries.
type ABLog interface {
	AppendABLog(ctx context.Context, entry ABLogEntry) error
	ListABLog(ctx context.Context, since time.Time) ([]ABLogEntry, error)
}

// PredictionRecord is one Phase 2 attempt. Confidence and Label are nil when the model
// produced no usable output.
type PredictionRecord struct {
	ID             int64              `json:"id"`
	DispatchID     int64              `json:"dispatch_id"`
	ModelID        string             `json:"model_id"`
	Label          *int               `json:"label,omitempty"`
	Confidence     *float64           `json:"confidence,omitempty"`
	Recommendation string             `json:"recommendation,omitempty"`
	UsedFallback   bool               `json:"used_fallback"`
	FallbackReason string             `json:"fallback_reason,omitempty"`
	Features       map[string]float64 `json:"features,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// PredictionLog appends and reads prediction records.
type PredictionLog interface {
	AppendPrediction(ctx context.Context, rec PredictionRecord) error
	ListPredictions(ctx context.Context, from, to time.Time) ([]PredictionRecord, error)
}

// Alert statuses.
const (
	AlertOpen     = "open"
	AlertResolved = "resolved"
)

// Alert is a persisted monitoring alert.
type Alert struct {
	ID              uuid.UUID      `json:"id"`
	Type            string         `json:"type"`
	Severity        string         `json:"severity"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Details         map[string]any `json:"details,omitempty"`
	ResolutionSteps []string       `json:"resolution_steps,omitempty"`
	Status          string         `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	ResolutionNotes string         `json:"resolution_notes,omitempty"`
}

// AlertStore persists alerts. CreateIfNoneOpen must be atomic with respect to other
// writers: when an open alert of the same type exists it is returned with created=false.
type AlertStore interface {
	CreateIfNoneOpen(ctx context.Context, alert Alert) (Alert, bool, error)
	GetAlert(ctx context.Context, id uuid.UUID) (Alert, error)
	ResolveAlert(ctx context.Context, id uuid.UUID, notes string, at time.Time) (Alert, error)
	ListOpenAlerts(ctx context.Context) ([]Alert, error)
	ListAlertsSince(ctx context.Context, since time.Time) ([]Alert, error)
}

// Store groups every collaborator interface.
type Store interface {
	HistoryStore
	ABLog
	PredictionLog
	AlertStore
}

// Health is the result of probing a storage backend.
type Health struct {
	Connected     bool            `json:"connected"`
	Tables        map[string]bool `json:"tables"`
	SizeBytes     int64           `json:"size_bytes"`
	LatencyMillis int64           `json:"latency_ms"`
}

// Prober reports storage health.
type Prober interface {
	Probe(ctx context.Context) (Health, error)
}

// Tables lists the relations a healthy backend must expose.
var Tables = []string{"assignment_history", "ab_test_log", "predictions_log", "system_alerts"}
