package monitoring

import (
	"context"
	"testing"
	"time"

	"ems/dispatch/internal/store"
	"ems/dispatch/internal/store/memory"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAlertManager() (*AlertManager, *memory.Store) {
	mem := memory.New(clock)
	m := NewAlertManager(mem, DefaultThresholds(), zerolog.Nop())
	m.now = clock
	return m, mem
}

func fallbackSpec() AlertSpec {
	return AlertSpec{
		Type:        AlertHighFallbackRate,
		Severity:    store.SeverityHigh,
		Title:       "High fallback rate",
		Description: "12% of predictions fell back to rules",
	}
}

func TestCreateAlertDeduplicatesOpenType(t *testing.T) {
	m, _ := newAlertManager()
	ctx := context.Background()

	first, created, err := m.CreateAlert(ctx, fallbackSpec())
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, first.ResolutionSteps)

	second, created, err := m.CreateAlert(ctx, fallbackSpec())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	active, err := m.ActiveAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestResolveThenRecreate(t *testing.T) {
	m, _ := newAlertManager()
	ctx := context.Background()

	a, _, err := m.CreateAlert(ctx, fallbackSpec())
	require.NoError(t, err)

	resolved, err := m.ResolveAlert(ctx, a.ID, "model artifact restored")
	require.NoError(t, err)
	assert.Equal(t, store.AlertResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, "model artifact restored", resolved.ResolutionNotes)

	_, err = m.ResolveAlert(ctx, a.ID, "again")
	assert.ErrorIs(t, err, ErrAlertAlreadyResolved)

	_, err = m.ResolveAlert(ctx, uuid.New(), "")
	assert.ErrorIs(t, err, ErrAlertNotFound)

	b, created, err := m.CreateAlert(ctx, fallbackSpec())
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestCreateAlertRejectsUnknownValues(t *testing.T) {
	m, _ := newAlertManager()
	spec := fallbackSpec()
	spec.Type = "disk_full"
	_, _, err := m.CreateAlert(context.Background(), spec)
	assert.ErrorIs(t, err, ErrUnknownAlertType)

	spec = fallbackSpec()
	spec.Severity = "urgent"
	_, _, err = m.CreateAlert(context.Background(), spec)
	assert.ErrorIs(t, err, ErrInvalidSeverity)
}

func TestHandlersNotifiedOnlyOnCreation(t *testing.T) {
	m, _ := newAlertManager()
	var got []store.Alert
	m.RegisterHandler(HandlerFunc(func(_ context.Context, a store.Alert) error {
		got = append(got, a)
		return nil
	}))

	_, _, err := m.CreateAlert(context.Background(), fallbackSpec())
	require.NoError(t, err)
	_, _, err = m.CreateAlert(context.Background(), fallbackSpec())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, string(AlertHighFallbackRate), got[0].Type)
}

func TestAlertStatistics(t *testing.T) {
	m, _ := newAlertManager()
	ctx := context.Background()

	a, _, err := m.CreateAlert(ctx, fallbackSpec())
	require.NoError(t, err)
	_, _, err = m.CreateAlert(ctx, AlertSpec{Type: AlertDataQuality, Severity: store.SeverityMedium, Title: "Data quality issues"})
	require.NoError(t, err)
	_, err = m.ResolveAlert(ctx, a.ID, "")
	require.NoError(t, err)

	st, err := m.Statistics(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalAlerts)
	assert.Equal(t, 50.0, st.ResolutionRate)
	assert.Equal(t, 1, st.ByType[string(AlertDataQuality)])
	assert.Equal(t, 1, st.ByStatus[store.AlertOpen])
	assert.Equal(t, 7.0, st.PeriodDays)
}

func TestEvaluateDrift(t *testing.T) {
	m, _ := newAlertManager()
	ctx := context.Background()

	a, err := m.EvaluateDrift(ctx, PredictionDrift(alternating(50, 0.70, 0.08), TrainingBaseline, DefaultThresholds(), fixedNow))
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, string(AlertDriftDetected), a.Type)
	assert.Equal(t, store.SeverityHigh, a.Severity)

	a, err = m.EvaluateDrift(ctx, PredictionDrift(alternating(50, 0.91, 0.08), TrainingBaseline, DefaultThresholds(), fixedNow))
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestEvaluateHealth(t *testing.T) {
	m, _ := newAlertManager()
	rep := HealthReport{Checks: map[string]CheckResult{
		CheckStorage:     {Status: HealthHealthy},
		CheckModel:       {Status: HealthUnhealthy, Message: "Model artifacts not found"},
		CheckPredictions: {Status: HealthDegraded},
		CheckFallback:    {Status: HealthDegraded, Message: "High fallback rate"},
	}}

	created, err := m.EvaluateHealth(context.Background(), rep)
	require.NoError(t, err)
	types := map[string]string{}
	for _, a := range created {
		types[a.Type] = a.Severity
	}
	assert.Equal(t, map[string]string{
		string(AlertServiceDown):      store.SeverityCritical,
		string(AlertHighFallbackRate): store.SeverityMedium,
	}, types)
}
