package prediction

import (
	"context"
	"errors"
	"time"

	"ems/dispatch/internal/assignment"
	"ems/dispatch/internal/metrics"
	"ems/dispatch/internal/store"

	"github.com/rs/zerolog"
)

// Decider produces a decision for a request.
type Decider interface {
	Decide(ctx context.Context, req assignment.Request, fv FeatureVector) (assignment.Decision, error)
}

// RuleEngine is the part of the Phase 1 engine the Phase 2 path reuses.
type RuleEngine interface {
	AssignWithVerdict(ctx context.Context, req assignment.Request, v assignment.Verdict) (assignment.Decision, error)
	AssignFallback(ctx context.Context, req assignment.Request, reason string) (assignment.Decision, error)
}

// ModelDecider scores the request with the classifier and lets the rule engine
// pick the unit and crew under that verdict.
type ModelDecider struct {
	adapter *Adapter
	engine  RuleEngine
}

func NewModelDecider(adapter *Adapter, engine RuleEngine) *ModelDecider {
	return &ModelDecider{adapter: adapter, engine: engine}
}

func (d *ModelDecider) Decide(ctx context.Context, req assignment.Request, fv FeatureVector) (assignment.Decision, error) {
	pred, err := d.adapter.Predict(ctx, fv)
	if err != nil {
		return assignment.Decision{}, err
	}
	return d.engine.AssignWithVerdict(ctx, req, assignment.Verdict{
		ModelID:        pred.ModelID,
		Label:          pred.Label,
		Confidence:     pred.Confidence,
		Recommendation: pred.Recommendation,
	})
}

// Fallback decorates a Decider: any model failure is recovered by running the
// rule engine. Every attempt that yields a decision is appended to the prediction log.
type Fallback struct {
	primary     Decider
	engine      RuleEngine
	predictions store.PredictionLog
	modelID     func() string
	log         zerolog.Logger
	now         func() time.Time
}

// WithFallback wraps primary. modelID names the model in prediction records.
func WithFallback(primary Decider, engine RuleEngine, predictions store.PredictionLog, modelID func() string, log zerolog.Logger) *Fallback {
	return &Fallback{
		primary:     primary,
		engine:      engine,
		predictions: predictions,
		modelID:     modelID,
		log:         log.With().Str("component", "prediction_fallback").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (f *Fallback) Decide(ctx context.Context, req assignment.Request, fv FeatureVector) (assignment.Decision, error) {
	d, err := f.primary.Decide(ctx, req, fv)
	if err == nil {
		label := 0
		if d.Recommendation == RecommendAssign {
			label = 1
		}
		conf := d.Confidence
		f.record(ctx, store.PredictionRecord{
			DispatchID:     req.DispatchID,
			Label:          &label,
			Confidence:     &conf,
			Recommendation: d.Recommendation,
			Features:       fv,
		})
		return d, nil
	}

	var me *ModelError
	if !errors.As(err, &me) {
		return assignment.Decision{}, err
	}

	metrics.ObserveFallback(me.Reason)
	f.log.Warn().Err(err).
		Int64("dispatch_id", req.DispatchID).
		Str("reason", me.Reason).
		Msg("model unavailable, falling back to rules")
	d, err = f.engine.AssignFallback(ctx, req, me.Reason)
	if err != nil {
		return assignment.Decision{}, err
	}
	f.record(ctx, store.PredictionRecord{
		DispatchID:     req.DispatchID,
		UsedFallback:   true,
		FallbackReason: me.Reason,
		Features:       fv,
	})
	return d, nil
}

func (f *Fallback) record(ctx context.Context, rec store.PredictionRecord) {
	if f.predictions == nil {
		return
	}
	rec.ModelID = f.modelID()
	rec.CreatedAt = f.now()
	if err := f.predictions.AppendPrediction(ctx, rec); err != nil {
		f.log.Error().Err(err).Int64("dispatch_id", rec.DispatchID).Msg("failed to record prediction")
	}
}
