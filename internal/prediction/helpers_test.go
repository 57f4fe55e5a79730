package prediction

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ems/dispatch/internal/assignment"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

// testArtifact weights only the distance feature: the closer the unit the more
// likely the assignment is optimal.
func testArtifact() Artifact {
	n := len(FeatureNames)
	art := Artifact{
		ModelID:      "logreg-test",
		Version:      "1.0.0",
		TrainedAt:    fixedNow.Add(-24 * time.Hour),
		FeatureNames: append([]string(nil), FeatureNames...),
		Means:        make([]float64, n),
		Scales:       make([]float64, n),
		Weights:      make([]float64, n),
		Bias:         2,
		Threshold:    0.5,
	}
	for i, name := range FeatureNames {
		art.Scales[i] = 1
		if name == "nearest_ambulance_distance_km" {
			art.Weights[i] = -0.5
		}
		if name == "severity_level" {
			art.Weights[i] = 0.1
		}
	}
	return art
}

func writeArtifact(t *testing.T, art Artifact) string {
	t.Helper()
	raw, err := json.Marshal(art)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func fullVector() FeatureVector {
	fv := FeatureVector{}
	for _, name := range FeatureNames {
		fv[name] = 1
	}
	return fv
}

func scenarioRequest() assignment.Request {
	return assignment.Request{
		DispatchID:       2001,
		PatientLatitude:  -16.5,
		PatientLongitude: -68.15,
		EmergencyType:    "trauma",
		SeverityLevel:    3,
		Timestamp:        fixedNow,
		Ambulances: []assignment.Ambulance{
			{ID: 7, Latitude: -16.498651, Longitude: -68.15, Status: assignment.StatusAvailable},
			{ID: 8, Latitude: -16.45, Longitude: -68.10, Status: "busy"},
		},
		Paramedics: []assignment.Paramedic{
			{ID: 10, Level: assignment.LevelSenior, Status: assignment.StatusAvailable},
			{ID: 11, Level: assignment.LevelJunior, Status: assignment.StatusAvailable},
		},
		Nurses: []assignment.Nurse{{ID: 20, Status: assignment.StatusAvailable}},
	}
}

type stubModel struct {
	id     string
	out    Output
	err    error
	block  bool
	panics bool
}

func (s *stubModel) ID() string { return s.id }

func (s *stubModel) Predict(ctx context.Context, _ FeatureVector) (Output, error) {
	if s.panics {
		panic("index out of range")
	}
	if s.block {
		<-ctx.Done()
		return Output{}, ctx.Err()
	}
	return s.out, s.err
}
