package memory

import (
	"context"
	"testing"
	"time"

	"ems/dispatch/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func ptr[T any](v T) *T { return &v }

func TestHistoryOutcomeAttachedOnce(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	id, err := s.CreateHistoryRecord(ctx, store.HistoryRecord{DispatchID: 1, AmbulanceID: 7, Confidence: 0.9})
	require.NoError(t, err)

	require.NoError(t, s.UpdateOutcome(ctx, id, store.Outcome{
		ActualResponseTimeMinutes: ptr(8.5),
		WasOptimal:                ptr(true),
		OptimizationScore:         ptr(0.8),
		PatientSatisfactionRating: ptr(5),
	}))
	require.ErrorIs(t, s.UpdateOutcome(ctx, id, store.Outcome{}), store.ErrOutcomeRecorded)
	require.ErrorIs(t, s.UpdateOutcome(ctx, uuid.New(), store.Outcome{}), store.ErrNotFound)

	recs, err := s.GetHistoryByDispatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].Outcome)
	assert.Equal(t, 8.5, *recs[0].Outcome.ActualResponseTimeMinutes)
}

func TestHistoryRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	ids := []int64{1, 2}
	_, err := s.CreateHistoryRecord(ctx, store.HistoryRecord{DispatchID: 5, ParamedicIDs: ids})
	require.NoError(t, err)
	ids[0] = 99

	recs, _ := s.GetHistoryByDispatch(ctx, 5)
	assert.Equal(t, []int64{1, 2}, recs[0].ParamedicIDs)
	recs[0].ParamedicIDs[1] = 42

	again, _ := s.GetHistoryByDispatch(ctx, 5)
	assert.Equal(t, []int64{1, 2}, again[0].ParamedicIDs)
}

func TestRecentAndStatistics(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	s := New(c.now)

	_, _ = s.CreateHistoryRecord(ctx, store.HistoryRecord{DispatchID: 1, AmbulanceID: 1, Confidence: 0.5, CreatedAt: c.t.Add(-48 * time.Hour)})
	a, _ := s.CreateHistoryRecord(ctx, store.HistoryRecord{DispatchID: 2, AmbulanceID: 1, SeverityLevel: 3, Confidence: 0.95, DistanceKm: 1})
	_, _ = s.CreateHistoryRecord(ctx, store.HistoryRecord{DispatchID: 3, AmbulanceID: 2, SeverityLevel: 5, Confidence: 0.85, DistanceKm: 3, UsedFallback: true})
	require.NoError(t, s.UpdateOutcome(ctx, a, store.Outcome{ActualResponseTimeMinutes: ptr(6.0), WasOptimal: ptr(true)}))

	recent, err := s.GetRecent(ctx, 10, 24)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(3), recent[0].DispatchID)

	limited, _ := s.GetRecent(ctx, 1, 24)
	assert.Len(t, limited, 1)

	st, err := s.GetStatistics(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, 24, st.Hours)
	assert.Equal(t, 2, st.TotalAssignments)
	assert.Equal(t, 1, st.OptimalCount)
	assert.Equal(t, 100.0, st.OptimalRate)
	assert.Equal(t, 6.0, st.AvgResponseTimeMinutes)
	assert.Equal(t, 2, st.UniqueAmbulances)
	assert.Equal(t, 1, st.FallbackCount)
	assert.InDelta(t, 0.9, st.AvgConfidence, 1e-9)

	perf, err := s.AmbulancePerformance(ctx, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, perf.TotalAssignments)

	dist, err := s.SeverityDistribution(ctx, 1)
	require.NoError(t, err)
	require.Len(t, dist, 2)
	assert.Equal(t, 3, dist[0].SeverityLevel)
	assert.Equal(t, 5, dist[1].SeverityLevel)
}

func TestABLogAndPredictionsWindow(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	s := New(c.now)

	require.NoError(t, s.AppendABLog(ctx, store.ABLogEntry{DispatchID: 1, PhaseUsed: 1, Kind: store.ABKindDecision, CreatedAt: c.t.Add(-2 * time.Hour)}))
	require.NoError(t, s.AppendABLog(ctx, store.ABLogEntry{DispatchID: 2, PhaseUsed: 2, Kind: store.ABKindDecision}))
	entries, err := s.ListABLog(ctx, c.t.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].DispatchID)
	assert.Equal(t, int64(2), entries[0].ID)

	require.NoError(t, s.AppendPrediction(ctx, store.PredictionRecord{DispatchID: 1, CreatedAt: c.t.Add(-30 * time.Hour)}))
	require.NoError(t, s.AppendPrediction(ctx, store.PredictionRecord{DispatchID: 2}))
	preds, err := s.ListPredictions(ctx, c.t.Add(-24*time.Hour), c.t.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, int64(2), preds[0].DispatchID)
}

func TestAlertsDedupAndResolve(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	first, created, err := s.CreateIfNoneOpen(ctx, store.Alert{Type: "high_fallback_rate", Severity: store.SeverityHigh})
	require.NoError(t, err)
	require.True(t, created)

	dup, created, err := s.CreateIfNoneOpen(ctx, store.Alert{Type: "high_fallback_rate", Severity: store.SeverityCritical})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, dup.ID)

	_, created, err = s.CreateIfNoneOpen(ctx, store.Alert{Type: "low_confidence", Severity: store.SeverityCritical})
	require.NoError(t, err)
	require.True(t, created)

	open, err := s.ListOpenAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "low_confidence", open[0].Type)

	resolved, err := s.ResolveAlert(ctx, first.ID, "model redeployed", time.Now())
	require.NoError(t, err)
	assert.Equal(t, store.AlertResolved, resolved.Status)
	assert.Equal(t, "model redeployed", resolved.ResolutionNotes)

	_, err = s.ResolveAlert(ctx, first.ID, "", time.Now())
	require.ErrorIs(t, err, store.ErrAlreadyResolved)
	_, err = s.ResolveAlert(ctx, uuid.New(), "", time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)

	_, created, err = s.CreateIfNoneOpen(ctx, store.Alert{Type: "high_fallback_rate", Severity: store.SeverityHigh})
	require.NoError(t, err)
	assert.True(t, created)
}
