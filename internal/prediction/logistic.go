package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Artifact is a serialised logistic classifier with its standard scaler.
type Artifact struct {
	ModelID      string    `json:"model_id"`
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	FeatureNames []string  `json:"feature_names"`
	Means        []float64 `json:"means"`
	Scales       []float64 `json:"scales"`
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	Threshold    float64   `json:"threshold"`
}

// Validate checks the artifact shape.
func (a Artifact) Validate() error {
	if a.ModelID == "" {
		return errors.New("artifact model_id is required")
	}
	n := len(a.FeatureNames)
	if n == 0 {
		return errors.New("artifact has no features")
	}
	if len(a.Means) != n || len(a.Scales) != n || len(a.Weights) != n {
		return fmt.Errorf("artifact vectors disagree: %d features, %d means, %d scales, %d weights",
			n, len(a.Means), len(a.Scales), len(a.Weights))
	}
	if a.Threshold < 0 || a.Threshold >= 1 {
		return fmt.Errorf("artifact threshold %v outside [0,1)", a.Threshold)
	}
	return nil
}

// Logistic evaluates an Artifact in process.
type Logistic struct {
	art    Artifact
	source string
}

// NewLogistic validates the artifact and builds a model from it.
func NewLogistic(art Artifact, source string) (*Logistic, error) {
	if err := art.Validate(); err != nil {
		return nil, err
	}
	if art.Threshold == 0 {
		art.Threshold = 0.5
	}
	return &Logistic{art: art, source: source}, nil
}

func (m *Logistic) ID() string { return m.art.ModelID }

// Predict scales each feature, applies the linear model and a sigmoid.
func (m *Logistic) Predict(_ context.Context, fv FeatureVector) (Output, error) {
	z := m.art.Bias
	for i, name := range m.art.FeatureNames {
		v, ok := fv[name]
		if !ok {
			return Output{}, &ModelError{Reason: ReasonInvalidInput, Err: fmt.Errorf("missing feature %q", name)}
		}
		scale := m.art.Scales[i]
		if scale == 0 {
			scale = 1
		}
		z += m.art.Weights[i] * (v - m.art.Means[i]) / scale
	}
	p := 1 / (1 + math.Exp(-z))
	label := 0
	if p >= m.art.Threshold {
		label = 1
	}
	return Output{Label: label, Probabilities: []float64{1 - p, p}}, nil
}

func (m *Logistic) Info(context.Context) (Info, error) {
	return Info{
		ModelID:      m.art.ModelID,
		Version:      m.art.Version,
		Algorithm:    "logistic_regression",
		TrainedAt:    m.art.TrainedAt,
		FeatureNames: append([]string(nil), m.art.FeatureNames...),
		Source:       m.source,
	}, nil
}

// FeatureImportance returns absolute weights normalised to sum to one.
func (m *Logistic) FeatureImportance(context.Context) (map[string]float64, error) {
	total := 0.0
	for _, w := range m.art.Weights {
		total += math.Abs(w)
	}
	out := make(map[string]float64, len(m.art.Weights))
	for i, name := range m.art.FeatureNames {
		if total == 0 {
			out[name] = 0
			continue
		}
		out[name] = math.Abs(m.art.Weights[i]) / total
	}
	return out, nil
}
