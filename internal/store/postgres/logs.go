package postgres

import (
	"context"
	"fmt"
	"time"

	"ems/dispatch/internal/store"
)

func (s *Store) AppendABLog(ctx context.Context, e store.ABLogEntry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err := s.db.Exec(ctx, `INSERT INTO ab_test_log
		(dispatch_id, phase_used, strategy, kind, phase1_result, phase2_result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.DispatchID, e.PhaseUsed, e.Strategy, e.Kind, e.Phase1Result, e.Phase2Result, createdAt)
	if err != nil {
		return fmt.Errorf("insert ab_test_log: %w", err)
	}
	return nil
}

func (s *Store) ListABLog(ctx context.Context, since time.Time) ([]store.ABLogEntry, error) {
	rows, err := s.db.Query(ctx, `SELECT id, dispatch_id, phase_used, strategy, kind, phase1_result, phase2_result, created_at
		FROM ab_test_log
		WHERE created_at >= $1
		ORDER BY created_at, id`, since)
	if err != nil {
		return nil, fmt.Errorf("query ab_test_log: %w", err)
	}
	defer rows.Close()

	out := make([]store.ABLogEntry, 0)
	for rows.Next() {
		var e store.ABLogEntry
		if err := rows.Scan(&e.ID, &e.DispatchID, &e.PhaseUsed, &e.Strategy, &e.Kind,
			&e.Phase1Result, &e.Phase2Result, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ab_test_log: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) AppendPrediction(ctx context.Context, r store.PredictionRecord) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err := s.db.Exec(ctx, `INSERT INTO predictions_log
		(dispatch_id, model_id, label, confidence, recommendation, used_fallback, fallback_reason, features, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.DispatchID, r.ModelID, r.Label, r.Confidence, r.Recommendation, r.UsedFallback,
		r.FallbackReason, r.Features, createdAt)
	if err != nil {
		return fmt.Errorf("insert predictions_log: %w", err)
	}
	return nil
}

func (s *Store) ListPredictions(ctx context.Context, from, to time.Time) ([]store.PredictionRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT id, dispatch_id, model_id, label, confidence, recommendation,
			used_fallback, fallback_reason, features, created_at
		FROM predictions_log
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query predictions_log: %w", err)
	}
	defer rows.Close()

	out := make([]store.PredictionRecord, 0)
	for rows.Next() {
		var r store.PredictionRecord
		if err := rows.Scan(&r.ID, &r.DispatchID, &r.ModelID, &r.Label, &r.Confidence, &r.Recommendation,
			&r.UsedFallback, &r.FallbackReason, &r.Features, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan predictions_log: %w", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
