// Package postgres implements the storage collaborator on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ems/dispatch/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store runs every query against db.
type Store struct {
	db  DBTX
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New(db DBTX) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithTx returns a Store bound to tx.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx, now: s.now}
}

const historyColumns = `id, dispatch_id, ambulance_id, paramedic_ids, paramedic_levels, nurse_id,
	distance_km, confidence, assignment_type, phase, reasoning, used_fallback,
	severity_level, emergency_type, zone_code, available_ambulances_count,
	available_paramedics_count, available_nurses_count, hour_of_day, day_of_week,
	is_weekend, created_by, actual_response_time_minutes, actual_travel_distance_km,
	patient_outcome, was_optimal, optimization_score, paramedic_satisfaction_rating,
	patient_satisfaction_rating, outcome_notes, outcome_recorded_at, created_at`

const createHistoryRecord = `INSERT INTO assignment_history (
	id, dispatch_id, ambulance_id, paramedic_ids, paramedic_levels, nurse_id,
	distance_km, confidence, assignment_type, phase, reasoning, used_fallback,
	severity_level, emergency_type, zone_code, available_ambulances_count,
	available_paramedics_count, available_nurses_count, hour_of_day, day_of_week,
	is_weekend, created_by, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

func (s *Store) CreateHistoryRecord(ctx context.Context, rec store.HistoryRecord) (uuid.UUID, error) {
	id := uuid.New()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	ids := rec.ParamedicIDs
	if ids == nil {
		ids = []int64{}
	}
	levels := rec.ParamedicLevels
	if levels == nil {
		levels = []string{}
	}
	_, err := s.db.Exec(ctx, createHistoryRecord,
		id, rec.DispatchID, rec.AmbulanceID, ids, levels, rec.NurseID,
		rec.DistanceKm, rec.Confidence, rec.AssignmentType, rec.Phase, rec.Reasoning, rec.UsedFallback,
		rec.SeverityLevel, rec.EmergencyType, rec.ZoneCode, rec.AvailableAmbulances,
		rec.AvailableParamedics, rec.AvailableNurses, rec.HourOfDay, rec.DayOfWeek,
		rec.IsWeekend, rec.CreatedBy, createdAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert assignment_history: %w", err)
	}
	return id, nil
}

func (s *Store) GetHistoryByDispatch(ctx context.Context, dispatchID int64) ([]store.HistoryRecord, error) {
	return s.queryHistory(ctx,
		`SELECT `+historyColumns+` FROM assignment_history WHERE dispatch_id = $1 ORDER BY created_at DESC`,
		dispatchID)
}

func (s *Store) GetRecent(ctx context.Context, limit, hours int) ([]store.HistoryRecord, error) {
	return s.queryHistory(ctx,
		`SELECT `+historyColumns+` FROM assignment_history WHERE created_at >= $1 ORDER BY created_at DESC LIMIT $2`,
		s.since(hours), limitOrAll(limit))
}

func (s *Store) GetByAmbulance(ctx context.Context, ambulanceID int64, limit int) ([]store.HistoryRecord, error) {
	return s.queryHistory(ctx,
		`SELECT `+historyColumns+` FROM assignment_history WHERE ambulance_id = $1 ORDER BY created_at DESC LIMIT $2`,
		ambulanceID, limitOrAll(limit))
}

// GetStatistics reuses store.Summarize so both backends report identical figures.
func (s *Store) GetStatistics(ctx context.Context, hours int) (store.HistoryStatistics, error) {
	recs, err := s.queryHistory(ctx,
		`SELECT `+historyColumns+` FROM assignment_history WHERE created_at >= $1`,
		s.since(hours))
	if err != nil {
		return store.HistoryStatistics{}, err
	}
	st := store.Summarize(recs)
	st.Hours = hours
	return st, nil
}

func (s *Store) AmbulancePerformance(ctx context.Context, ambulanceID int64, days int) (store.AmbulancePerformance, error) {
	recs, err := s.queryHistory(ctx,
		`SELECT `+historyColumns+` FROM assignment_history WHERE ambulance_id = $1 AND created_at >= $2`,
		ambulanceID, s.now().AddDate(0, 0, -days))
	if err != nil {
		return store.AmbulancePerformance{}, err
	}
	st := store.Summarize(recs)
	return store.AmbulancePerformance{
		AmbulanceID:            ambulanceID,
		Days:                   days,
		TotalAssignments:       st.TotalAssignments,
		OptimalCount:           st.OptimalCount,
		AvgDistanceKm:          st.AvgDistanceKm,
		AvgResponseTimeMinutes: st.AvgResponseTimeMinutes,
		AvgOptimizationScore:   st.AvgOptimizationScore,
	}, nil
}

func (s *Store) SeverityDistribution(ctx context.Context, days int) ([]store.SeverityBucket, error) {
	rows, err := s.db.Query(ctx, `SELECT severity_level, COUNT(*), AVG(distance_km), AVG(confidence)
		FROM assignment_history
		WHERE created_at >= $1
		GROUP BY severity_level
		ORDER BY severity_level`, s.now().AddDate(0, 0, -days))
	if err != nil {
		return nil, fmt.Errorf("query severity distribution: %w", err)
	}
	defer rows.Close()

	out := make([]store.SeverityBucket, 0, 5)
	for rows.Next() {
		var b store.SeverityBucket
		if err := rows.Scan(&b.SeverityLevel, &b.Count, &b.AvgDistanceKm, &b.AvgConfidence); err != nil {
			return nil, fmt.Errorf("scan severity bucket: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const updateOutcome = `UPDATE assignment_history SET
	actual_response_time_minutes = $2,
	actual_travel_distance_km = $3,
	patient_outcome = $4,
	was_optimal = $5,
	optimization_score = $6,
	paramedic_satisfaction_rating = $7,
	patient_satisfaction_rating = $8,
	outcome_notes = $9,
	outcome_recorded_at = $10
WHERE id = $1 AND outcome_recorded_at IS NULL`

func (s *Store) UpdateOutcome(ctx context.Context, id uuid.UUID, o store.Outcome) error {
	recordedAt := o.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = s.now()
	}
	tag, err := s.db.Exec(ctx, updateOutcome, id,
		o.ActualResponseTimeMinutes, o.ActualTravelDistanceKm, o.PatientOutcome, o.WasOptimal,
		o.OptimizationScore, o.ParamedicSatisfactionRating, o.PatientSatisfactionRating,
		o.Notes, recordedAt)
	if err != nil {
		return fmt.Errorf("update outcome: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var recorded bool
	err = s.db.QueryRow(ctx, `SELECT outcome_recorded_at IS NOT NULL FROM assignment_history WHERE id = $1`, id).Scan(&recorded)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return store.ErrNotFound
	case err != nil:
		return fmt.Errorf("check outcome: %w", err)
	case recorded:
		return store.ErrOutcomeRecorded
	default:
		return fmt.Errorf("update outcome %s: no rows changed", id)
	}
}

func (s *Store) queryHistory(ctx context.Context, sql string, args ...interface{}) ([]store.HistoryRecord, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query assignment_history: %w", err)
	}
	defer rows.Close()

	out := make([]store.HistoryRecord, 0)
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignment_history: %w", err)
	}
	return out, nil
}

func scanHistory(row pgx.Row) (store.HistoryRecord, error) {
	var (
		r              store.HistoryRecord
		o              store.Outcome
		patientOutcome *string
		notes          *string
		recordedAt     *time.Time
	)
	err := row.Scan(
		&r.ID, &r.DispatchID, &r.AmbulanceID, &r.ParamedicIDs, &r.ParamedicLevels, &r.NurseID,
		&r.DistanceKm, &r.Confidence, &r.AssignmentType, &r.Phase, &r.Reasoning, &r.UsedFallback,
		&r.SeverityLevel, &r.EmergencyType, &r.ZoneCode, &r.AvailableAmbulances,
		&r.AvailableParamedics, &r.AvailableNurses, &r.HourOfDay, &r.DayOfWeek,
		&r.IsWeekend, &r.CreatedBy, &o.ActualResponseTimeMinutes, &o.ActualTravelDistanceKm,
		&patientOutcome, &o.WasOptimal, &o.OptimizationScore, &o.ParamedicSatisfactionRating,
		&o.PatientSatisfactionRating, &notes, &recordedAt, &r.CreatedAt,
	)
	if err != nil {
		return store.HistoryRecord{}, fmt.Errorf("scan assignment_history: %w", err)
	}
	if recordedAt != nil {
		o.RecordedAt = recordedAt.UTC()
		o.PatientOutcome = deref(patientOutcome)
		o.Notes = deref(notes)
		r.Outcome = &o
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func (s *Store) since(hours int) time.Time {
	return s.now().Add(-time.Duration(hours) * time.Hour)
}

// limitOrAll maps a non-positive limit to NULL, which LIMIT treats as no limit.
func limitOrAll(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

