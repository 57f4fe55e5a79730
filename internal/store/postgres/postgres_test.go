package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"ems/dispatch/internal/store"
	"ems/dispatch/migrations"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to DISPATCH_TEST_DATABASE_URL and starts from empty tables.
func openTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	url := os.Getenv("DISPATCH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("DISPATCH_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	db := stdlib.OpenDBFromPool(pool)
	t.Cleanup(func() { _ = db.Close() })

	src := &migrate.EmbedFileSystemMigrationSource{FileSystem: migrations.FS, Root: "."}
	_, err = migrate.ExecContext(ctx, db, "postgres", src, migrate.Up)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `TRUNCATE assignment_history, ab_test_log, predictions_log, system_alerts`)
	require.NoError(t, err)
	return New(pool), db
}

func TestHistoryRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	nurse := int64(20)

	id, err := s.CreateHistoryRecord(ctx, store.HistoryRecord{
		DispatchID:      2001,
		AmbulanceID:     7,
		ParamedicIDs:    []int64{10, 11},
		ParamedicLevels: []string{"senior", "junior"},
		NurseID:         &nurse,
		DistanceKm:      0.15,
		Confidence:      0.95,
		AssignmentType:  "deterministic_rules",
		Phase:           1,
		Reasoning:       "nearest unit 0.15km",
		SeverityLevel:   4,
		EmergencyType:   "cardiac",
		HourOfDay:       10,
		DayOfWeek:       5,
		CreatedBy:       "SYSTEM",
	})
	require.NoError(t, err)

	recs, err := s.GetHistoryByDispatch(ctx, 2001)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].ID)
	assert.Equal(t, []int64{10, 11}, recs[0].ParamedicIDs)
	assert.Nil(t, recs[0].Outcome)

	optimal := true
	rt := 7.5
	require.NoError(t, s.UpdateOutcome(ctx, id, store.Outcome{WasOptimal: &optimal, ActualResponseTimeMinutes: &rt}))
	assert.ErrorIs(t, s.UpdateOutcome(ctx, id, store.Outcome{}), store.ErrOutcomeRecorded)
	assert.ErrorIs(t, s.UpdateOutcome(ctx, uuid.New(), store.Outcome{}), store.ErrNotFound)

	st, err := s.GetStatistics(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalAssignments)
	assert.Equal(t, 1, st.OptimalCount)
	assert.InDelta(t, 7.5, st.AvgResponseTimeMinutes, 1e-9)
}

func TestAlertDeduplication(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	first, created, err := s.CreateIfNoneOpen(ctx, store.Alert{Type: "high_fallback_rate", Severity: "high", Title: "fallback"})
	require.NoError(t, err)
	assert.True(t, created)

	dup, created, err := s.CreateIfNoneOpen(ctx, store.Alert{Type: "high_fallback_rate", Severity: "high", Title: "fallback"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, dup.ID)

	_, err = s.ResolveAlert(ctx, first.ID, "restarted model server", time.Now().UTC())
	require.NoError(t, err)
	_, err = s.ResolveAlert(ctx, first.ID, "again", time.Now().UTC())
	assert.ErrorIs(t, err, store.ErrAlreadyResolved)

	_, created, err = s.CreateIfNoneOpen(ctx, store.Alert{Type: "high_fallback_rate", Severity: "high", Title: "fallback"})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestLogsRoundTrip(t *testing.T) {
	s, db := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, s.AppendABLog(ctx, store.ABLogEntry{
		DispatchID: 1, PhaseUsed: 2, Strategy: "round_robin", Kind: store.ABKindOutcome,
		Phase2Result: &store.PhaseResult{Confidence: 0.9, AmbulanceID: 7}, CreatedAt: now,
	}))
	entries, err := s.ListABLog(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Phase1Result)
	require.NotNil(t, entries[0].Phase2Result)
	assert.InDelta(t, 0.9, entries[0].Phase2Result.Confidence, 1e-9)

	require.NoError(t, s.AppendPrediction(ctx, store.PredictionRecord{
		DispatchID: 1, ModelID: "logreg", UsedFallback: true, FallbackReason: "model_timeout", CreatedAt: now,
	}))
	preds, err := s.ListPredictions(ctx, now, now.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Nil(t, preds[0].Confidence)

	h, err := NewProber(db).Probe(ctx)
	require.NoError(t, err)
	assert.True(t, h.Connected)
	for _, table := range store.Tables {
		assert.True(t, h.Tables[table], table)
	}
}
