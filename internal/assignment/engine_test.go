package assignment

import (
	"context"
	"errors"
	"testing"
	"time"

	"ems/dispatch/internal/store"
	"ems/dispatch/internal/store/memory"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

type failingHistory struct{ calls int }

func (f *failingHistory) CreateHistoryRecord(context.Context, store.HistoryRecord) (uuid.UUID, error) {
	f.calls++
	return uuid.Nil, errors.New("connection reset by peer")
}

func newEngine(t *testing.T, history HistoryWriter) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultModelConfiguration(), history, zerolog.Nop(), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return e
}

// scenarioRequest has one ambulance 0.15 km from the patient, a senior and a junior
// paramedic and one nurse.
func scenarioRequest() Request {
	return Request{
		DispatchID:       1001,
		PatientLatitude:  -16.5,
		PatientLongitude: -68.15,
		EmergencyType:    "cardiac_arrest",
		SeverityLevel:    4,
		ZoneCode:         "Z-01",
		Ambulances: []Ambulance{
			{ID: 7, Latitude: -16.498651, Longitude: -68.15, Status: StatusAvailable, CrewLevel: "advanced", UnitType: "ALS"},
		},
		Paramedics: []Paramedic{
			{ID: 10, Level: LevelSenior, Status: StatusAvailable},
			{ID: 11, Level: LevelJunior, Status: StatusAvailable},
		},
		Nurses: []Nurse{{ID: 20, Status: StatusAvailable}},
	}
}

func TestAssignNearbyAmbulanceSeverityFour(t *testing.T) {
	mem := memory.New(func() time.Time { return fixedNow })
	e := newEngine(t, mem)

	d, err := e.Assign(context.Background(), scenarioRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(7), d.AmbulanceID)
	assert.Equal(t, []int64{10, 11}, d.ParamedicIDs)
	require.NotNil(t, d.NurseID)
	assert.Equal(t, int64(20), *d.NurseID)
	assert.Equal(t, 0.15, d.DistanceKm)
	assert.Equal(t, 0.95, d.Confidence)
	assert.Equal(t, MethodRules, d.AssignmentType)
	assert.Equal(t, PhaseRules, d.Phase)
	assert.Contains(t, d.Reasoning, "0.15km")
	assert.False(t, d.UsedFallback)
	assert.Equal(t, fixedNow, d.Timestamp)
	require.NotEqual(t, uuid.Nil, d.HistoryID)

	recs, err := mem.GetHistoryByDispatch(context.Background(), 1001)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, d.HistoryID, recs[0].ID)
	assert.Equal(t, 1, recs[0].AvailableAmbulances)
	assert.Equal(t, 2, recs[0].AvailableParamedics)
	assert.Equal(t, 10, recs[0].HourOfDay)
	assert.True(t, recs[0].IsWeekend)
	assert.Equal(t, CreatedBySystem, recs[0].CreatedBy)
}

func TestAssignNoAmbulances(t *testing.T) {
	mem := memory.New(nil)
	e := newEngine(t, mem)

	req := scenarioRequest()
	req.Ambulances = nil
	_, err := e.Assign(context.Background(), req)
	require.ErrorIs(t, err, ErrNoAmbulanceAvailable)
	assert.Equal(t, "No ambulances available", Message(err))

	recs, _ := mem.GetRecent(context.Background(), 10, 24)
	assert.Empty(t, recs)
}

func TestAssignScoresUnroundedDistance(t *testing.T) {
	e := newEngine(t, memory.New(nil))

	// 2.003 km away: reported as 2.00 km but scored in the second band.
	req := scenarioRequest()
	req.Ambulances[0].Latitude = -16.481987
	d, err := e.Assign(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2.0, d.DistanceKm)
	assert.Equal(t, 0.85, d.Confidence)
	assert.Contains(t, d.Reasoning, "up to 5km")
}

func TestAssignInsufficientPersonnelStoresNothing(t *testing.T) {
	mem := memory.New(nil)
	e := newEngine(t, mem)

	req := scenarioRequest()
	req.SeverityLevel = 5
	req.Paramedics = []Paramedic{
		{ID: 1, Level: LevelJunior, Status: StatusAvailable},
		{ID: 2, Level: LevelJunior, Status: StatusAvailable},
	}
	_, err := e.Assign(context.Background(), req)
	require.ErrorIs(t, err, ErrInsufficientPersonnel)

	recs, _ := mem.GetRecent(context.Background(), 10, 24)
	assert.Empty(t, recs)
}

func TestAssignValidation(t *testing.T) {
	hist := &failingHistory{}
	e := newEngine(t, hist)

	cases := map[string]func(*Request){
		"severity too high":  func(r *Request) { r.SeverityLevel = 6 },
		"severity zero":      func(r *Request) { r.SeverityLevel = 0 },
		"missing dispatch":   func(r *Request) { r.DispatchID = 0 },
		"missing emergency":  func(r *Request) { r.EmergencyType = "" },
		"bad latitude":       func(r *Request) { r.PatientLatitude = 95 },
		"bad paramedic kind": func(r *Request) { r.Paramedics[0].Level = "chief" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := scenarioRequest()
			mutate(&req)
			_, err := e.Assign(context.Background(), req)
			require.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, CategoryValidation, Category(err))

			var ae *Error
			require.True(t, errors.As(err, &ae))
			assert.NotEmpty(t, ae.Fields)
		})
	}
	assert.Zero(t, hist.calls)
}

func TestAssignStorageFailure(t *testing.T) {
	e := newEngine(t, &failingHistory{})

	_, err := e.Assign(context.Background(), scenarioRequest())
	require.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, CategoryStorage, Category(err))
	assert.NotContains(t, Message(err), "connection reset")

	// the engine stays usable after a storage failure
	e2 := newEngine(t, memory.New(nil))
	_, err = e2.Assign(context.Background(), scenarioRequest())
	require.NoError(t, err)
}

func TestAssignIsDeterministic(t *testing.T) {
	e := newEngine(t, memory.New(nil))
	req := scenarioRequest()
	req.Ambulances = append(req.Ambulances,
		Ambulance{ID: 3, Latitude: -16.498651, Longitude: -68.15, Status: StatusAvailable},
	)

	first, err := e.Assign(context.Background(), req)
	require.NoError(t, err)
	second, err := e.Assign(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int64(3), first.AmbulanceID)
	assert.Equal(t, first.AmbulanceID, second.AmbulanceID)
	assert.Equal(t, first.ParamedicIDs, second.ParamedicIDs)
	assert.NotEqual(t, first.HistoryID, second.HistoryID)
}

func TestAssignFallbackTagsDecision(t *testing.T) {
	mem := memory.New(nil)
	e := newEngine(t, mem)

	d, err := e.AssignFallback(context.Background(), scenarioRequest(), "model timeout")
	require.NoError(t, err)
	assert.True(t, d.UsedFallback)
	assert.Equal(t, PhaseRules, d.Phase)
	assert.Equal(t, MethodRules, d.AssignmentType)
	assert.Contains(t, d.Reasoning, "model timeout")

	recs, _ := mem.GetHistoryByDispatch(context.Background(), 1001)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].UsedFallback)
}

func TestAssignWithVerdict(t *testing.T) {
	e := newEngine(t, memory.New(nil))

	d, err := e.AssignWithVerdict(context.Background(), scenarioRequest(), Verdict{
		ModelID: "logistic:v3", Label: 1, Confidence: 0.88, Recommendation: "ASSIGN",
	})
	require.NoError(t, err)
	assert.Equal(t, PhaseModel, d.Phase)
	assert.Equal(t, 0.88, d.Confidence)
	assert.Equal(t, "logistic:v3", d.AssignmentType)
	assert.Equal(t, "ASSIGN", d.Recommendation)
	assert.Contains(t, d.Reasoning, "predicts optimal")
}

func TestNewEngineRejectsBadConfiguration(t *testing.T) {
	cfg := DefaultModelConfiguration()
	cfg.Staffing = cfg.Staffing[:2]
	_, err := NewEngine(cfg, memory.New(nil), zerolog.Nop())
	require.Error(t, err)

	_, err = NewEngine(DefaultModelConfiguration(), nil, zerolog.Nop())
	require.Error(t, err)
}
