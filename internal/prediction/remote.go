package prediction

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type remotePredictRequest struct {
	Features FeatureVector `json:"features"`
}

type remotePredictResponse struct {
	ModelID       string `json:"model_id"`
	Prediction    *int   `json:"prediction"`
	Probabilities *struct {
		NotOptimal float64 `json:"not_optimal"`
		Optimal    float64 `json:"optimal"`
	} `json:"probabilities"`
}

type remoteHealthResponse struct {
	Status    string    `json:"status"`
	ModelID   string    `json:"model_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RemoteModel calls an external inference service over HTTP.
type RemoteModel struct {
	client  *resty.Client
	baseURL string
	modelID string
}

// NewRemoteModel builds a client against baseURL. Retries are left to the caller
// since the adapter enforces an overall deadline.
func NewRemoteModel(baseURL, modelID string, timeout time.Duration) *RemoteModel {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &RemoteModel{client: client, baseURL: baseURL, modelID: modelID}
}

func (m *RemoteModel) ID() string { return m.modelID }

func (m *RemoteModel) Predict(ctx context.Context, fv FeatureVector) (Output, error) {
	var body remotePredictResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(remotePredictRequest{Features: fv}).
		SetResult(&body).
		Post("/predict")
	if err != nil {
		return Output{}, &ModelError{Reason: ReasonUnavailable, Err: fmt.Errorf("call inference service: %w", err)}
	}
	if resp.IsError() {
		return Output{}, &ModelError{Reason: ReasonUnavailable, Err: fmt.Errorf("inference service returned %s", resp.Status())}
	}
	if body.Prediction == nil || body.Probabilities == nil {
		return Output{}, &ModelError{Reason: ReasonInvalidOutput, Err: fmt.Errorf("inference response missing prediction or probabilities")}
	}
	return Output{
		Label:         *body.Prediction,
		Probabilities: []float64{body.Probabilities.NotOptimal, body.Probabilities.Optimal},
	}, nil
}

func (m *RemoteModel) Info(ctx context.Context) (Info, error) {
	var info Info
	resp, err := m.client.R().SetContext(ctx).SetResult(&info).Get("/model/info")
	if err != nil {
		return Info{}, fmt.Errorf("call inference service: %w", err)
	}
	if resp.IsError() {
		return Info{}, fmt.Errorf("inference service returned %s", resp.Status())
	}
	if info.Source == "" {
		info.Source = m.baseURL
	}
	return info, nil
}

func (m *RemoteModel) FeatureImportance(ctx context.Context) (map[string]float64, error) {
	var out struct {
		Importance map[string]float64 `json:"feature_importance"`
	}
	resp, err := m.client.R().SetContext(ctx).SetResult(&out).Get("/model/feature-importance")
	if err != nil {
		return nil, fmt.Errorf("call inference service: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("inference service returned %s", resp.Status())
	}
	return out.Importance, nil
}

// Probe asks the inference service for its health. Unreachable services are
// reported as absent rather than as an error.
func (m *RemoteModel) Probe(ctx context.Context) (ArtifactStatus, error) {
	st := ArtifactStatus{Source: m.baseURL}
	var body remoteHealthResponse
	resp, err := m.client.R().SetContext(ctx).SetResult(&body).Get("/health")
	if err != nil {
		st.Detail = err.Error()
		return st, nil
	}
	if resp.IsError() {
		st.Detail = "inference service returned " + resp.Status()
		return st, nil
	}
	st.Present = body.Status == "" || body.Status == "ok" || body.Status == "healthy"
	st.UpdatedAt = body.UpdatedAt
	if !st.Present {
		st.Detail = "inference service status " + body.Status
	}
	return st, nil
}
