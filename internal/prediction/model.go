// Package prediction wraps the Phase 2 classifier: it normalises model output,
// bounds inference time and falls back to the rule engine whenever the model
// cannot answer.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Recommendations attached to a prediction.
const (
	RecommendAssign = "ASSIGN"
	RecommendReview = "REVIEW"
)

// Model failure reasons, used as log fields and metric labels.
const (
	ReasonUnavailable   = "model_unavailable"
	ReasonTimeout       = "model_timeout"
	ReasonCanceled      = "canceled"
	ReasonInvalidInput  = "invalid_input"
	ReasonInvalidOutput = "invalid_output"
	ReasonRuntime       = "runtime_error"
)

// ErrModel is matched by every model failure.
var ErrModel = errors.New("model error")

// ModelError is a classifier failure. It is always recovered by falling back.
type ModelError struct {
	Reason string
	Err    error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

func (e *ModelError) Is(target error) bool { return target == ErrModel }

// Output is the raw classifier answer: a label and the class probabilities
// ordered [not_optimal, optimal].
type Output struct {
	Label         int
	Probabilities []float64
}

// Model maps a feature vector to an Output.
type Model interface {
	ID() string
	Predict(ctx context.Context, fv FeatureVector) (Output, error)
}

// Info describes a loaded model.
type Info struct {
	ModelID      string    `json:"model_id"`
	Version      string    `json:"version"`
	Algorithm    string    `json:"algorithm"`
	TrainedAt    time.Time `json:"trained_at,omitempty"`
	FeatureNames []string  `json:"feature_names"`
	Source       string    `json:"source"`
}

// Describer is implemented by models able to report metadata.
type Describer interface {
	Info(ctx context.Context) (Info, error)
}

// Explainer is implemented by models exposing per-feature importance.
type Explainer interface {
	FeatureImportance(ctx context.Context) (map[string]float64, error)
}

// ArtifactStatus reports whether model artifacts are present and how old they are.
type ArtifactStatus struct {
	Source    string    `json:"source"`
	Present   bool      `json:"present"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Prober is implemented by models whose artifacts can be inspected.
type Prober interface {
	Probe(ctx context.Context) (ArtifactStatus, error)
}

// ClassProbabilities is the normalised probability distribution.
type ClassProbabilities struct {
	NotOptimal float64 `json:"not_optimal"`
	Optimal    float64 `json:"optimal"`
}

// Prediction is the normalised classifier answer.
type Prediction struct {
	ModelID        string             `json:"model_id"`
	Label          int                `json:"prediction"`
	Confidence     float64            `json:"confidence"`
	Probabilities  ClassProbabilities `json:"probabilities"`
	Recommendation string             `json:"recommendation"`
}

const probabilityTolerance = 1e-6

// Normalize validates raw output and derives confidence and recommendation.
func Normalize(modelID string, out Output) (Prediction, error) {
	if len(out.Probabilities) != 2 {
		return Prediction{}, &ModelError{Reason: ReasonInvalidOutput, Err: fmt.Errorf("expected 2 class probabilities, got %d", len(out.Probabilities))}
	}
	if out.Label != 0 && out.Label != 1 {
		return Prediction{}, &ModelError{Reason: ReasonInvalidOutput, Err: fmt.Errorf("label %d outside {0,1}", out.Label)}
	}
	sum := 0.0
	for _, p := range out.Probabilities {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return Prediction{}, &ModelError{Reason: ReasonInvalidOutput, Err: fmt.Errorf("probability %v outside [0,1]", p)}
		}
		sum += p
	}
	if math.Abs(sum-1) > probabilityTolerance {
		return Prediction{}, &ModelError{Reason: ReasonInvalidOutput, Err: fmt.Errorf("probabilities sum to %v", sum)}
	}

	rec := RecommendReview
	if out.Label == 1 {
		rec = RecommendAssign
	}
	return Prediction{
		ModelID:    modelID,
		Label:      out.Label,
		Confidence: out.Probabilities[out.Label],
		Probabilities: ClassProbabilities{
			NotOptimal: out.Probabilities[0],
			Optimal:    out.Probabilities[1],
		},
		Recommendation: rec,
	}, nil
}
