// Package service routes assignment requests between the rule engine and the
// classifier and feeds each result back into the A/B log.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ems/dispatch/internal/abtest"
	"ems/dispatch/internal/assignment"
	"ems/dispatch/internal/notify"
	"ems/dispatch/internal/prediction"
	"ems/dispatch/internal/store"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidPhase is returned when a forced phase is neither 1 nor 2.
var ErrInvalidPhase = errors.New("phase must be 1 or 2")

// RuleEngine is the Phase 1 entry point.
type RuleEngine interface {
	Assign(ctx context.Context, req assignment.Request) (assignment.Decision, error)
}

// Splitter chooses a phase and records outcomes.
type Splitter interface {
	DecidePhase(ctx context.Context, dispatchID int64) (abtest.PhaseDecision, error)
	LogResult(ctx context.Context, r abtest.Result) error
}

// Statistics provides the rolling history figures used as model features.
type Statistics interface {
	GetStatistics(ctx context.Context, hours int) (store.HistoryStatistics, error)
}

// Events receives a copy of every successful decision.
type Events interface {
	PublishAssignment(ctx context.Context, ev notify.AssignmentEvent) error
}

// Config tunes the service.
type Config struct {
	StatsHours int
	BatchLimit int
}

// Service is the assignment entry point used by the transport.
type Service struct {
	rules    RuleEngine
	model    prediction.Decider
	splitter Splitter
	stats    Statistics
	events   Events
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithEvents publishes decisions to ev.
func WithEvents(ev Events) Option {
	return func(s *Service) { s.events = ev }
}

// WithClock overrides the feature clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds a Service. model is expected to recover model failures on its own,
// which prediction.WithFallback does.
func New(rules RuleEngine, model prediction.Decider, splitter Splitter, stats Statistics, cfg Config, log zerolog.Logger, opts ...Option) *Service {
	if cfg.StatsHours <= 0 {
		cfg.StatsHours = 24
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 8
	}
	s := &Service{
		rules:    rules,
		model:    model,
		splitter: splitter,
		stats:    stats,
		cfg:      cfg,
		log:      log.With().Str("component", "assignment_service").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is one routed assignment. Phase is the phase the request was routed to;
// a Phase 2 request recovered by the rules carries Decision.UsedFallback.
type Result struct {
	Phase    int                 `json:"phase"`
	Decision assignment.Decision `json:"decision"`
}

// Assign routes req through the splitter unless forcePhase is 1 or 2.
// A zero forcePhase means no override.
func (s *Service) Assign(ctx context.Context, req assignment.Request, forcePhase int) (Result, error) {
	phase, err := s.route(ctx, req.DispatchID, forcePhase)
	if err != nil {
		return Result{}, err
	}

	var d assignment.Decision
	if phase == abtest.Phase2 {
		d, err = s.model.Decide(ctx, req, s.features(ctx, req))
	} else {
		d, err = s.rules.Assign(ctx, req)
	}
	if err != nil {
		return Result{Phase: phase}, err
	}

	s.logOutcome(ctx, d)
	s.publish(ctx, d)
	return Result{Phase: phase, Decision: d}, nil
}

func (s *Service) route(ctx context.Context, dispatchID int64, force int) (int, error) {
	switch force {
	case 0:
	case abtest.Phase1, abtest.Phase2:
		return force, nil
	default:
		return 0, fmt.Errorf("%w: got %d", ErrInvalidPhase, force)
	}
	dec, err := s.splitter.DecidePhase(ctx, dispatchID)
	if err != nil && !errors.Is(err, abtest.ErrLog) {
		return 0, err
	}
	return dec.Phase, nil
}

func (s *Service) features(ctx context.Context, req assignment.Request) prediction.FeatureVector {
	var hist store.HistoryStatistics
	if s.stats != nil {
		st, err := s.stats.GetStatistics(ctx, s.cfg.StatsHours)
		if err != nil {
			s.log.Warn().Err(err).Int64("dispatch_id", req.DispatchID).Msg("history statistics unavailable, using feature defaults")
		} else {
			hist = st
		}
	}
	return prediction.BuildFeatures(req, s.now(), hist)
}

// logOutcome files the decision under the phase that actually produced it, so
// fallback confidences never count toward Phase 2.
func (s *Service) logOutcome(ctx context.Context, d assignment.Decision) {
	pr := &store.PhaseResult{Confidence: d.Confidence, AmbulanceID: d.AmbulanceID, UsedFallback: d.UsedFallback}
	r := abtest.Result{DispatchID: d.DispatchID, PhaseUsed: d.Phase}
	if d.Phase == abtest.Phase2 {
		r.Phase2Result = pr
	} else {
		r.Phase1Result = pr
	}
	if err := s.splitter.LogResult(ctx, r); err != nil {
		s.log.Warn().Err(err).Int64("dispatch_id", d.DispatchID).Msg("a/b outcome not logged")
	}
}

func (s *Service) publish(ctx context.Context, d assignment.Decision) {
	if s.events == nil {
		return
	}
	err := s.events.PublishAssignment(ctx, notify.AssignmentEvent{
		DispatchID:   d.DispatchID,
		AmbulanceID:  d.AmbulanceID,
		Phase:        d.Phase,
		Confidence:   d.Confidence,
		UsedFallback: d.UsedFallback,
		DistanceKm:   d.DistanceKm,
		AssignedAt:   d.Timestamp,
	})
	if err != nil {
		s.log.Warn().Err(err).Int64("dispatch_id", d.DispatchID).Msg("assignment event not published")
	}
}

// BatchItem is the outcome of one request in a batch.
type BatchItem struct {
	Index  int
	Result Result
	Err    error
}

// AssignBatch assigns every request independently. Items keep the input order.
// Requests naming the same resources are not coordinated.
func (s *Service) AssignBatch(ctx context.Context, reqs []assignment.Request, forcePhase int) []BatchItem {
	items := make([]BatchItem, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchLimit)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := s.Assign(gctx, req, forcePhase)
			items[i] = BatchItem{Index: i, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return items
}
