package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"ems/dispatch/internal/prediction"
	"ems/dispatch/internal/store"
	"ems/dispatch/internal/store/memory"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type modelProbe struct {
	status prediction.ArtifactStatus
	err    error
}

func (p modelProbe) Probe(context.Context) (prediction.ArtifactStatus, error) { return p.status, p.err }

type storageProbe struct {
	health store.Health
	err    error
}

func (p storageProbe) Probe(context.Context) (store.Health, error) { return p.health, p.err }

func freshModel() modelProbe {
	return modelProbe{status: prediction.ArtifactStatus{Source: "model.json", Present: true, UpdatedAt: fixedNow.Add(-time.Hour)}}
}

func newChecker(storage store.Prober, model ModelProbe, mem *memory.Store, cfg HealthConfig) *HealthChecker {
	h := NewHealthChecker(storage, model, mem, DefaultThresholds(), cfg, zerolog.Nop())
	h.now = clock
	return h
}

func TestHealthNoPredictionsIsDegraded(t *testing.T) {
	mem := memory.New(clock)
	h := newChecker(mem, freshModel(), mem, HealthConfig{})

	rep := h.Check(context.Background())
	assert.Equal(t, HealthDegraded, rep.OverallStatus)
	assert.Equal(t, HealthDegraded, rep.Checks[CheckPredictions].Status)
	assert.Equal(t, HealthHealthy, rep.Checks[CheckStorage].Status)
	assert.Equal(t, HealthHealthy, rep.Checks[CheckFallback].Status)
	assert.Equal(t, HealthSummary{Healthy: 3, Degraded: 1}, rep.Summary)
}

func TestHealthPredictionsThresholds(t *testing.T) {
	cases := []struct {
		name   string
		conf   []float64
		status string
	}{
		{"healthy", alternating(20, 0.92, 0.02), HealthHealthy},
		{"below optimal", alternating(20, 0.80, 0.01), HealthDegraded},
		{"below minimum", alternating(20, 0.70, 0.01), HealthUnhealthy},
		{"many low", append(alternating(16, 0.95, 0), 0.5, 0.5, 0.5, 0.5, 0.5), HealthUnhealthy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mem := memory.New(clock)
			for _, c := range tc.conf {
				seed(t, mem, modelRecord(c, fixedNow.Add(-time.Hour)))
			}
			h := newChecker(mem, freshModel(), mem, HealthConfig{})
			r, err := h.CheckOne(context.Background(), CheckPredictions)
			require.NoError(t, err)
			assert.Equal(t, tc.status, r.Status)
		})
	}
}

func TestHealthFallbackRate(t *testing.T) {
	mem := memory.New(clock)
	for i := 0; i < 8; i++ {
		seed(t, mem, modelRecord(0.9, fixedNow.Add(-time.Hour)))
	}
	seed(t, mem, fallbackRecord(fixedNow.Add(-time.Hour)), fallbackRecord(fixedNow.Add(-time.Hour)))

	h := newChecker(mem, freshModel(), mem, HealthConfig{})
	r, err := h.CheckOne(context.Background(), CheckFallback)
	require.NoError(t, err)
	assert.Equal(t, HealthUnhealthy, r.Status)
	assert.Equal(t, 20.0, r.Metrics["fallback_rate"])

	rep := h.Check(context.Background())
	assert.Equal(t, HealthUnhealthy, rep.OverallStatus)
}

func TestHealthModelChecks(t *testing.T) {
	mem := memory.New(clock)

	h := newChecker(mem, modelProbe{status: prediction.ArtifactStatus{Source: "model.json"}}, mem, HealthConfig{})
	r, _ := h.CheckOne(context.Background(), CheckModel)
	assert.Equal(t, HealthUnhealthy, r.Status)

	stale := modelProbe{status: prediction.ArtifactStatus{Present: true, UpdatedAt: fixedNow.Add(-60 * 24 * time.Hour)}}
	h = newChecker(mem, stale, mem, HealthConfig{ModelMaxAge: 30 * 24 * time.Hour})
	r, _ = h.CheckOne(context.Background(), CheckModel)
	assert.Equal(t, HealthDegraded, r.Status)

	h = newChecker(mem, modelProbe{err: errors.New("permission denied")}, mem, HealthConfig{})
	r, _ = h.CheckOne(context.Background(), CheckModel)
	assert.Equal(t, HealthUnhealthy, r.Status)
}

func TestHealthStorageChecks(t *testing.T) {
	mem := memory.New(clock)

	down := storageProbe{err: errors.New("dial tcp: connection refused")}
	h := newChecker(down, freshModel(), mem, HealthConfig{})
	r, _ := h.CheckOne(context.Background(), CheckStorage)
	assert.Equal(t, HealthUnhealthy, r.Status)
	assert.NotContains(t, r.Message, "dial tcp")

	partial := storageProbe{health: store.Health{Connected: true, Tables: map[string]bool{"assignment_history": true}}}
	h = newChecker(partial, freshModel(), mem, HealthConfig{})
	r, _ = h.CheckOne(context.Background(), CheckStorage)
	assert.Equal(t, HealthUnhealthy, r.Status)
	assert.Contains(t, r.Metrics, "missing_tables")
}

func TestHealthMemoryCheck(t *testing.T) {
	mem := memory.New(clock)
	h := newChecker(mem, freshModel(), mem, HealthConfig{MemoryLimit: 1000})
	assert.Contains(t, h.Checks(), CheckMemory)

	h.memStats = func() uint64 { return 850 }
	r, _ := h.CheckOne(context.Background(), CheckMemory)
	assert.Equal(t, HealthDegraded, r.Status)

	h.memStats = func() uint64 { return 990 }
	r, _ = h.CheckOne(context.Background(), CheckMemory)
	assert.Equal(t, HealthUnhealthy, r.Status)
}

func TestHealthUnknownCheck(t *testing.T) {
	mem := memory.New(clock)
	h := newChecker(mem, freshModel(), mem, HealthConfig{})
	_, err := h.CheckOne(context.Background(), "disk")
	assert.ErrorIs(t, err, ErrUnknownCheck)
}
