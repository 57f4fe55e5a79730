package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ems/dispatch/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const alertColumns = `id, alert_type, severity, title, description, details, resolution_steps,
	status, created_at, resolved_at, resolution_notes`

// CreateIfNoneOpen relies on the partial unique index over open alerts, so two
// writers racing on the same type cannot both insert.
func (s *Store) CreateIfNoneOpen(ctx context.Context, a store.Alert) (store.Alert, bool, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	steps := a.ResolutionSteps
	if steps == nil {
		steps = []string{}
	}

	// The open alert found on conflict may be resolved before it is read back.
	for attempt := 0; attempt < 3; attempt++ {
		created, err := scanAlert(s.db.QueryRow(ctx, `INSERT INTO system_alerts
			(id, alert_type, severity, title, description, details, resolution_steps, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'open', $8)
			ON CONFLICT (alert_type) WHERE status = 'open' DO NOTHING
			RETURNING `+alertColumns,
			a.ID, a.Type, a.Severity, a.Title, a.Description, a.Details, steps, a.CreatedAt))
		if err == nil {
			return created, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return store.Alert{}, false, fmt.Errorf("insert system_alerts: %w", err)
		}

		existing, err := scanAlert(s.db.QueryRow(ctx,
			`SELECT `+alertColumns+` FROM system_alerts WHERE alert_type = $1 AND status = 'open'`, a.Type))
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return store.Alert{}, false, fmt.Errorf("select open alert: %w", err)
		}
	}
	return store.Alert{}, false, fmt.Errorf("create alert %s: open alert kept changing", a.Type)
}

func (s *Store) GetAlert(ctx context.Context, id uuid.UUID) (store.Alert, error) {
	a, err := scanAlert(s.db.QueryRow(ctx, `SELECT `+alertColumns+` FROM system_alerts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Alert{}, store.ErrNotFound
	}
	if err != nil {
		return store.Alert{}, fmt.Errorf("select alert: %w", err)
	}
	return a, nil
}

func (s *Store) ResolveAlert(ctx context.Context, id uuid.UUID, notes string, at time.Time) (store.Alert, error) {
	a, err := scanAlert(s.db.QueryRow(ctx, `UPDATE system_alerts
		SET status = 'resolved', resolved_at = $2, resolution_notes = $3
		WHERE id = $1 AND status = 'open'
		RETURNING `+alertColumns, id, at, notes))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return store.Alert{}, fmt.Errorf("resolve alert: %w", err)
	}
	if _, err := s.GetAlert(ctx, id); err != nil {
		return store.Alert{}, err
	}
	return store.Alert{}, store.ErrAlreadyResolved
}

func (s *Store) ListOpenAlerts(ctx context.Context) ([]store.Alert, error) {
	return s.queryAlerts(ctx, `SELECT `+alertColumns+` FROM system_alerts
		WHERE status = 'open'
		ORDER BY CASE severity
			WHEN 'critical' THEN 5
			WHEN 'high' THEN 4
			WHEN 'medium' THEN 3
			WHEN 'low' THEN 2
			WHEN 'info' THEN 1
			ELSE 0 END DESC, created_at DESC`)
}

func (s *Store) ListAlertsSince(ctx context.Context, since time.Time) ([]store.Alert, error) {
	return s.queryAlerts(ctx, `SELECT `+alertColumns+` FROM system_alerts
		WHERE created_at >= $1
		ORDER BY created_at DESC`, since)
}

func (s *Store) queryAlerts(ctx context.Context, sql string, args ...interface{}) ([]store.Alert, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query system_alerts: %w", err)
	}
	defer rows.Close()

	out := make([]store.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan system_alerts: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAlert(row pgx.Row) (store.Alert, error) {
	var a store.Alert
	err := row.Scan(&a.ID, &a.Type, &a.Severity, &a.Title, &a.Description, &a.Details,
		&a.ResolutionSteps, &a.Status, &a.CreatedAt, &a.ResolvedAt, &a.ResolutionNotes)
	if err != nil {
		return store.Alert{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	if a.ResolvedAt != nil {
		t := a.ResolvedAt.UTC()
		a.ResolvedAt = &t
	}
	return a, nil
}
