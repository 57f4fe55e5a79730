package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ems/dispatch/internal/store"
)

// Prober reports connectivity, table presence and database size. It runs over
// database/sql so it can share the pool through pgx's stdlib adapter.
type Prober struct {
	db     *sql.DB
	tables []string
}

var _ store.Prober = (*Prober)(nil)

// NewProber checks the given tables, or store.Tables when none are given.
func NewProber(db *sql.DB, tables ...string) *Prober {
	if len(tables) == 0 {
		tables = store.Tables
	}
	return &Prober{db: db, tables: tables}
}

func (p *Prober) Probe(ctx context.Context) (store.Health, error) {
	h := store.Health{Tables: make(map[string]bool, len(p.tables))}

	start := time.Now()
	if err := p.db.PingContext(ctx); err != nil {
		return h, fmt.Errorf("ping database: %w", err)
	}
	h.LatencyMillis = time.Since(start).Milliseconds()
	h.Connected = true

	for _, t := range p.tables {
		var present bool
		if err := p.db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, t).Scan(&present); err != nil {
			return h, fmt.Errorf("check table %s: %w", t, err)
		}
		h.Tables[t] = present
	}

	if err := p.db.QueryRowContext(ctx, `SELECT pg_database_size(current_database())`).Scan(&h.SizeBytes); err != nil {
		return h, fmt.Errorf("database size: %w", err)
	}
	return h, nil
}
