package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ems/dispatch/internal/geo"
	"ems/dispatch/internal/metrics"
	"ems/dispatch/internal/store"
	"ems/dispatch/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HistoryWriter is the part of the storage collaborator the engine writes to.
type HistoryWriter interface {
	CreateHistoryRecord(ctx context.Context, rec store.HistoryRecord) (uuid.UUID, error)
}

// Engine runs Validate → SelectAmbulance → ComposeCrew → Score → Persist.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	cfg      ModelConfiguration
	validate *validator.Validate
	selector *Selector
	composer *CrewComposer
	scorer   *DistanceScorer
	history  HistoryWriter
	log      zerolog.Logger
	now      func() time.Time
	tracer   trace.Tracer
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithValidator shares an existing validator instance.
func WithValidator(v *validator.Validate) Option {
	return func(e *Engine) { e.validate = v }
}

// NewEngine wires an engine from a validated configuration.
func NewEngine(cfg ModelConfiguration, history HistoryWriter, log zerolog.Logger, opts ...Option) (*Engine, error) {
	if history == nil {
		return nil, errors.New("assignment engine requires a history store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	composer, err := NewCrewComposer(cfg)
	if err != nil {
		return nil, err
	}
	scorer, err := NewDistanceScorer(cfg.ConfidenceBands)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		selector: NewSelector(cfg.MaxDistanceKm),
		composer: composer,
		scorer:   scorer,
		history:  history,
		log:      log.With().Str("component", "assignment_engine").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
		tracer:   otel.Tracer("ems/dispatch/assignment"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.validate == nil {
		e.validate = validation.New()
	}
	return e, nil
}

// Configuration returns the policy the engine was built with.
func (e *Engine) Configuration() ModelConfiguration { return e.cfg }

// Assign produces and persists a Phase 1 decision.
func (e *Engine) Assign(ctx context.Context, req Request) (Decision, error) {
	return e.run(ctx, req, scoring{})
}

// AssignFallback produces a Phase 1 decision on behalf of a failed Phase 2 attempt.
// The decision and its history record carry used_fallback.
func (e *Engine) AssignFallback(ctx context.Context, req Request, reason string) (Decision, error) {
	return e.run(ctx, req, scoring{fallback: true, fallbackReason: reason})
}

// AssignWithVerdict runs the same pipeline but takes the confidence from a model
// verdict instead of the distance table.
func (e *Engine) AssignWithVerdict(ctx context.Context, req Request, v Verdict) (Decision, error) {
	return e.run(ctx, req, scoring{verdict: &v})
}

type scoring struct {
	verdict        *Verdict
	fallback       bool
	fallbackReason string
}

func (s scoring) phase() int {
	if s.verdict != nil {
		return PhaseModel
	}
	return PhaseRules
}

func (e *Engine) run(ctx context.Context, req Request, mode scoring) (Decision, error) {
	start := time.Now()
	phase := mode.phase()

	ctx, span := e.tracer.Start(ctx, "assignment.assign", trace.WithAttributes(
		attribute.Int64("dispatch.id", req.DispatchID),
		attribute.Int("dispatch.severity", req.SeverityLevel),
		attribute.Int("assignment.phase", phase),
		attribute.Bool("assignment.fallback", mode.fallback),
	))
	defer span.End()

	decision, err := e.decide(ctx, req, mode)
	if err != nil {
		outcome := metrics.OutcomeRejected
		if Category(err) == CategoryStorage || Category(err) == CategoryInternal {
			outcome = metrics.OutcomeError
		}
		metrics.ObserveAssignment(phase, outcome, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, Category(err))
		e.log.Warn().Err(err).
			Int64("dispatch_id", req.DispatchID).
			Str("category", Category(err)).
			Msg("assignment rejected")
		return Decision{}, err
	}

	metrics.ObserveAssignment(phase, metrics.OutcomeSuccess, time.Since(start))
	span.SetAttributes(
		attribute.Int64("assignment.ambulance_id", decision.AmbulanceID),
		attribute.Float64("assignment.confidence", decision.Confidence),
	)
	e.log.Info().
		Int64("dispatch_id", decision.DispatchID).
		Int64("ambulance_id", decision.AmbulanceID).
		Float64("distance_km", decision.DistanceKm).
		Float64("confidence", decision.Confidence).
		Int("phase", decision.Phase).
		Bool("used_fallback", decision.UsedFallback).
		Str("history_id", decision.HistoryID.String()).
		Msg("assignment created")
	return decision, nil
}

func (e *Engine) decide(ctx context.Context, req Request, mode scoring) (Decision, error) {
	if err := e.validate.Struct(req); err != nil {
		return Decision{}, validationError("assignment.validate", validation.Fields(err), err)
	}

	sel, err := e.selector.Select(req.Origin(), req.Ambulances)
	if err != nil {
		return Decision{}, err
	}

	crew, err := e.composer.Compose(req.SeverityLevel, req.Paramedics, req.Nurses)
	if err != nil {
		return Decision{}, err
	}

	now := e.now()
	decision := Decision{
		DispatchID:      req.DispatchID,
		AmbulanceID:     sel.AmbulanceID,
		ParamedicIDs:    crew.ParamedicIDs,
		ParamedicLevels: crew.ParamedicLevels,
		NurseID:         crew.NurseID,
		DistanceKm:      geo.RoundKm(sel.DistanceKm),
		Timestamp:       now,
		UsedFallback:    mode.fallback,
		CrewFallback:    crew.UsedFallback(),
	}

	if v := mode.verdict; v != nil {
		decision.Confidence = v.Confidence
		decision.AssignmentType = v.ModelID
		decision.Phase = PhaseModel
		decision.Recommendation = v.Recommendation
		decision.Reasoning = joinReasoning(describeSelection(sel), describeCrew(crew), describeVerdict(*v))
	} else {
		conf, band := e.scorer.Score(sel.DistanceKm)
		decision.Confidence = conf
		decision.AssignmentType = MethodRules
		decision.Phase = PhaseRules
		fallbackNote := ""
		if mode.fallback {
			fallbackNote = fmt.Sprintf("Phase 2 unavailable (%s), rule-based fallback applied", mode.fallbackReason)
		}
		decision.Reasoning = joinReasoning(describeSelection(sel), describeCrew(crew), describeBand(conf, band), fallbackNote)
	}

	id, err := e.history.CreateHistoryRecord(ctx, historyRecord(req, decision, now))
	if err != nil {
		return Decision{}, &Error{Op: "assignment.persist", Category: CategoryStorage, Err: fmt.Errorf("%w: %w", ErrStorage, err)}
	}
	decision.HistoryID = id
	return decision, nil
}

func historyRecord(req Request, d Decision, now time.Time) store.HistoryRecord {
	at := req.Timestamp
	if at.IsZero() {
		at = now
	}
	paramedics, _, _ := countAvailableParamedics(req.Paramedics)
	weekday := at.Weekday()
	return store.HistoryRecord{
		DispatchID:          d.DispatchID,
		AmbulanceID:         d.AmbulanceID,
		ParamedicIDs:        append([]int64(nil), d.ParamedicIDs...),
		ParamedicLevels:     append([]string(nil), d.ParamedicLevels...),
		NurseID:             d.NurseID,
		DistanceKm:          d.DistanceKm,
		Confidence:          d.Confidence,
		AssignmentType:      d.AssignmentType,
		Phase:               d.Phase,
		Reasoning:           d.Reasoning,
		UsedFallback:        d.UsedFallback,
		SeverityLevel:       req.SeverityLevel,
		EmergencyType:       req.EmergencyType,
		ZoneCode:            req.ZoneCode,
		AvailableAmbulances: countAvailableAmbulances(req.Ambulances),
		AvailableParamedics: paramedics,
		AvailableNurses:     countAvailableNurses(req.Nurses),
		HourOfDay:           at.Hour(),
		DayOfWeek:           int(weekday),
		IsWeekend:           weekday == time.Saturday || weekday == time.Sunday,
		CreatedBy:           CreatedBySystem,
		CreatedAt:           now,
	}
}
