package prediction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ems/dispatch/internal/metrics"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds a single inference call.
const DefaultTimeout = 2 * time.Second

// Adapter normalises model output and bounds inference time. Every failure is
// returned as a *ModelError.
type Adapter struct {
	model   Model
	timeout time.Duration
	log     zerolog.Logger
	tracer  trace.Tracer
}

// NewAdapter wraps a model. A non-positive timeout selects DefaultTimeout.
func NewAdapter(model Model, timeout time.Duration, log zerolog.Logger) *Adapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Adapter{
		model:   model,
		timeout: timeout,
		log:     log.With().Str("component", "prediction_adapter").Logger(),
		tracer:  otel.Tracer("ems/dispatch/prediction"),
	}
}

// Model returns the wrapped model.
func (a *Adapter) Model() Model { return a.model }

type inference struct {
	out Output
	err error
}

// Predict runs one inference under the adapter deadline.
func (a *Adapter) Predict(ctx context.Context, fv FeatureVector) (Prediction, error) {
	ctx, span := a.tracer.Start(ctx, "prediction.predict")
	defer span.End()

	pred, err := a.predict(ctx, fv)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, reasonOf(err))
		return Prediction{}, err
	}
	span.SetAttributes(
		attribute.String("model.id", pred.ModelID),
		attribute.Float64("model.confidence", pred.Confidence),
	)
	return pred, nil
}

func (a *Adapter) predict(ctx context.Context, fv FeatureVector) (Prediction, error) {
	if _, err := fv.Vector(); err != nil {
		return Prediction{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan inference, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- inference{err: &ModelError{Reason: ReasonRuntime, Err: fmt.Errorf("model panic: %v", r)}}
			}
		}()
		out, err := a.model.Predict(ctx, fv)
		done <- inference{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		reason := ReasonTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			reason = ReasonCanceled
		}
		return Prediction{}, &ModelError{Reason: reason, Err: ctx.Err()}
	case res := <-done:
		metrics.ObserveInference(time.Since(start))
		if res.err != nil {
			var me *ModelError
			if errors.As(res.err, &me) {
				return Prediction{}, me
			}
			return Prediction{}, &ModelError{Reason: ReasonRuntime, Err: res.err}
		}
		return Normalize(a.model.ID(), res.out)
	}
}

// BatchItem is one entry of a batch prediction.
type BatchItem struct {
	Index      int         `json:"index"`
	Prediction *Prediction `json:"prediction,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// PredictBatch runs Predict for every vector. Individual failures are reported
// per item.
func (a *Adapter) PredictBatch(ctx context.Context, vectors []FeatureVector) []BatchItem {
	out := make([]BatchItem, len(vectors))
	for i, fv := range vectors {
		out[i].Index = i
		pred, err := a.Predict(ctx, fv)
		if err != nil {
			out[i].Error = err.Error()
			continue
		}
		out[i].Prediction = &pred
	}
	return out
}

// Info reports model metadata when the model supports it.
func (a *Adapter) Info(ctx context.Context) (Info, error) {
	d, ok := a.model.(Describer)
	if !ok {
		return Info{ModelID: a.model.ID(), FeatureNames: FeatureNames}, nil
	}
	return d.Info(ctx)
}

// FeatureImportance reports per-feature importance when the model supports it.
func (a *Adapter) FeatureImportance(ctx context.Context) (map[string]float64, error) {
	x, ok := a.model.(Explainer)
	if !ok {
		return nil, fmt.Errorf("model %s does not expose feature importance", a.model.ID())
	}
	return x.FeatureImportance(ctx)
}

// Probe inspects model artifacts when the model supports it.
func (a *Adapter) Probe(ctx context.Context) (ArtifactStatus, error) {
	p, ok := a.model.(Prober)
	if !ok {
		return ArtifactStatus{Source: a.model.ID(), Present: true}, nil
	}
	return p.Probe(ctx)
}

func reasonOf(err error) string {
	var me *ModelError
	if errors.As(err, &me) {
		return me.Reason
	}
	return ReasonRuntime
}
