package server

import (
	"time"

	"ems/dispatch/internal/assignment"
	"ems/dispatch/internal/monitoring"
	"ems/dispatch/internal/prediction"
	"ems/dispatch/internal/store"

	"github.com/google/uuid"
)

type LivenessResponse struct {
	Status      string    `json:"status"`
	Env         string    `json:"env"`
	StartedAt   time.Time `json:"started_at"`
	UptimeSec   int64     `json:"uptime_seconds"`
	AuthEnabled bool      `json:"auth_enabled"`
}

// ReadinessResponse reports whether the instance can take assignments.
type ReadinessResponse struct {
	Status  string                            `json:"status"`
	ModelID string                            `json:"model_id"`
	Checks  map[string]monitoring.CheckResult `json:"checks"`
}

// AssignmentResponse is the success payload; the decision fields are inlined.
type AssignmentResponse struct {
	Success bool `json:"success"`
	assignment.Decision
}

// AssignmentFailure is the failure payload. Error is a stable message and Category
// a stable machine readable code.
type AssignmentFailure struct {
	Success    bool              `json:"success"`
	DispatchID int64             `json:"dispatch_id"`
	Error      string            `json:"error"`
	Category   string            `json:"category"`
	Details    map[string]string `json:"details,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Phase      int               `json:"phase"`
}

type BatchAssignmentRequest struct {
	Requests []assignment.Request `json:"requests" validate:"required,min=1,max=100"`
}

// BatchAssignmentResponse holds one AssignmentResponse or AssignmentFailure per
// request, in request order.
type BatchAssignmentResponse struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Results   []interface{} `json:"results"`
}

type HistoryListResponse struct {
	Count   int                   `json:"count"`
	Records []store.HistoryRecord `json:"records"`
}

type OutcomeRequest struct {
	ActualResponseTimeMinutes   *float64 `json:"actual_response_time_minutes" validate:"omitempty,gte=0"`
	ActualTravelDistanceKm      *float64 `json:"actual_travel_distance_km" validate:"omitempty,gte=0"`
	PatientOutcome              string   `json:"patient_outcome" validate:"max=200"`
	WasOptimal                  *bool    `json:"was_optimal"`
	OptimizationScore           *float64 `json:"optimization_score" validate:"omitempty,gte=0,lte=1"`
	ParamedicSatisfactionRating *int     `json:"paramedic_satisfaction_rating" validate:"omitempty,min=1,max=5"`
	PatientSatisfactionRating   *int     `json:"patient_satisfaction_rating" validate:"omitempty,min=1,max=5"`
	Notes                       string   `json:"notes" validate:"max=2000"`
}

func (o OutcomeRequest) toOutcome() store.Outcome {
	return store.Outcome{
		ActualResponseTimeMinutes:   o.ActualResponseTimeMinutes,
		ActualTravelDistanceKm:      o.ActualTravelDistanceKm,
		PatientOutcome:              o.PatientOutcome,
		WasOptimal:                  o.WasOptimal,
		OptimizationScore:           o.OptimizationScore,
		ParamedicSatisfactionRating: o.ParamedicSatisfactionRating,
		PatientSatisfactionRating:   o.PatientSatisfactionRating,
		Notes:                       o.Notes,
	}
}

type OutcomeResponse struct {
	Success   bool      `json:"success"`
	HistoryID uuid.UUID `json:"history_id"`
}

type DecidePhaseRequest struct {
	DispatchID int64 `json:"dispatch_id" validate:"required,gt=0"`
}

type ABLogRequest struct {
	DispatchID   int64             `json:"dispatch_id" validate:"required,gt=0"`
	PhaseUsed    int               `json:"phase_used" validate:"oneof=1 2"`
	Phase1Result *PhaseResultInput `json:"phase1_result"`
	Phase2Result *PhaseResultInput `json:"phase2_result"`
}

type PhaseResultInput struct {
	Confidence   float64 `json:"confidence" validate:"gte=0,lte=1"`
	AmbulanceID  int64   `json:"ambulance_id" validate:"gte=0"`
	UsedFallback bool    `json:"used_fallback"`
}

func (p *PhaseResultInput) toStore() *store.PhaseResult {
	if p == nil {
		return nil
	}
	return &store.PhaseResult{Confidence: p.Confidence, AmbulanceID: p.AmbulanceID, UsedFallback: p.UsedFallback}
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type PredictRequest struct {
	DispatchID int64                    `json:"dispatch_id"`
	Features   prediction.FeatureVector `json:"features" validate:"required"`
}

type BatchPredictRequest struct {
	Items []PredictRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

type BatchPredictResponse struct {
	Total int                    `json:"total"`
	Items []prediction.BatchItem `json:"items"`
}

type ModelErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

type ResolveAlertRequest struct {
	ResolutionNotes string `json:"resolution_notes" validate:"max=2000"`
}

type ResolveAlertResponse struct {
	Success bool        `json:"success"`
	Alert   store.Alert `json:"alert"`
}

type AlertListResponse struct {
	Count  int           `json:"count"`
	Alerts []store.Alert `json:"alerts"`
}

type StrategiesResponse struct {
	Active     string      `json:"active"`
	Strategies interface{} `json:"strategies"`
}
