package abtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ems/dispatch/internal/metrics"
	"ems/dispatch/internal/store"

	"github.com/rs/zerolog"
)

const (
	Phase1 = 1
	Phase2 = 2
)

var (
	// ErrInvalidPhase is returned for a phase outside {1,2}.
	ErrInvalidPhase = errors.New("phase must be 1 or 2")
	// ErrInvalidWeight is returned for a weight outside [0,1].
	ErrInvalidWeight = errors.New("phase 2 weight must be within [0,1]")
	// ErrLog is returned when the A/B log could not be written.
	ErrLog = errors.New("a/b log write failed")
)

// Config holds the splitter settings. It is fixed for the lifetime of a Splitter.
type Config struct {
	Strategy           Strategy
	Phase2Weight       float64
	PeakStartHour      int
	PeakEndHour        int
	PeakProbability    float64
	OffPeakProbability float64
	SeedFromDispatch   bool
	Location           *time.Location
}

// DefaultConfig is a 50/50 random split with 9-17 peak hours.
func DefaultConfig() Config {
	return Config{
		Strategy:           Random5050,
		Phase2Weight:       0.5,
		PeakStartHour:      9,
		PeakEndHour:        17,
		PeakProbability:    0.7,
		OffPeakProbability: 0.3,
		Location:           time.UTC,
	}
}

func (c Config) validate() error {
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	for _, p := range []float64{c.Phase2Weight, c.PeakProbability, c.OffPeakProbability} {
		if p < 0 || p > 1 {
			return ErrInvalidWeight
		}
	}
	if c.PeakStartHour < 0 || c.PeakEndHour > 24 || c.PeakStartHour > c.PeakEndHour {
		return fmt.Errorf("invalid peak hours %d-%d", c.PeakStartHour, c.PeakEndHour)
	}
	return nil
}

// PhaseDecision is the answer to DecidePhase.
type PhaseDecision struct {
	Success    bool     `json:"success"`
	Phase      int      `json:"phase"`
	Strategy   Strategy `json:"strategy"`
	DispatchID int64    `json:"dispatch_id"`
}

// Result is the outcome of one routed request, logged after the assignment.
type Result struct {
	DispatchID   int64              `json:"dispatch_id" validate:"required"`
	PhaseUsed    int                `json:"phase_used" validate:"oneof=1 2"`
	Phase1Result *store.PhaseResult `json:"phase1_result,omitempty"`
	Phase2Result *store.PhaseResult `json:"phase2_result,omitempty"`
}

// Splitter routes requests to a phase and keeps the A/B log.
type Splitter struct {
	cfg     Config
	rnd     Random
	counter Counter
	log     store.ABLog
	logger  zerolog.Logger
	now     func() time.Time
}

// Option customises a Splitter.
type Option func(*Splitter)

// WithRandom replaces the process-wide random source.
func WithRandom(r Random) Option {
	return func(s *Splitter) { s.rnd = r }
}

// WithCounter replaces the in-process round robin counter.
func WithCounter(c Counter) Option {
	return func(s *Splitter) { s.counter = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Splitter) { s.now = now }
}

// NewSplitter validates cfg and builds a Splitter.
func NewSplitter(cfg Config, log store.ABLog, logger zerolog.Logger, opts ...Option) (*Splitter, error) {
	st, err := ParseStrategy(string(cfg.Strategy))
	if err != nil {
		return nil, err
	}
	cfg.Strategy = st
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Splitter{
		cfg:     cfg,
		rnd:     NewRandom(uint64(time.Now().UnixNano())),
		counter: &LocalCounter{},
		log:     log,
		logger:  logger.With().Str("component", "traffic_splitter").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Strategy returns the active strategy.
func (s *Splitter) Strategy() Strategy { return s.cfg.Strategy }

// DecidePhase picks a phase and appends a decision entry. When the entry cannot be
// written the chosen phase is still returned, together with an error wrapping ErrLog.
func (s *Splitter) DecidePhase(ctx context.Context, dispatchID int64) (PhaseDecision, error) {
	phase := s.pick(ctx, dispatchID)
	metrics.ObserveABDecision(string(s.cfg.Strategy), phase)
	d := PhaseDecision{Success: true, Phase: phase, Strategy: s.cfg.Strategy, DispatchID: dispatchID}

	err := s.log.AppendABLog(ctx, store.ABLogEntry{
		DispatchID: dispatchID,
		PhaseUsed:  phase,
		Strategy:   string(s.cfg.Strategy),
		Kind:       store.ABKindDecision,
		CreatedAt:  s.now(),
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("dispatch_id", dispatchID).Msg("failed to log a/b decision")
		return d, fmt.Errorf("%w: %w", ErrLog, err)
	}
	s.logger.Debug().Int64("dispatch_id", dispatchID).Int("phase", phase).Msg("a/b phase decided")
	return d, nil
}

func (s *Splitter) pick(ctx context.Context, dispatchID int64) int {
	switch s.cfg.Strategy {
	case RoundRobin:
		n, err := s.counter.Next(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("round robin counter unavailable, drawing at random")
			return s.draw(dispatchID, 0.5)
		}
		if n%2 == 0 {
			return Phase2
		}
		return Phase1
	case TimeBased:
		hour := s.now().In(s.cfg.Location).Hour()
		if hour >= s.cfg.PeakStartHour && hour < s.cfg.PeakEndHour {
			return s.draw(dispatchID, s.cfg.PeakProbability)
		}
		return s.draw(dispatchID, s.cfg.OffPeakProbability)
	case WeightBased:
		return s.draw(dispatchID, s.cfg.Phase2Weight)
	default:
		return s.draw(dispatchID, 0.5)
	}
}

func (s *Splitter) draw(dispatchID int64, phase2Probability float64) int {
	var u float64
	if s.cfg.SeedFromDispatch {
		u = dispatchDraw(dispatchID)
	} else {
		u = s.rnd.Float64()
	}
	if u < phase2Probability {
		return Phase2
	}
	return Phase1
}

// LogResult appends an outcome entry for a completed request.
func (s *Splitter) LogResult(ctx context.Context, r Result) error {
	if r.PhaseUsed != Phase1 && r.PhaseUsed != Phase2 {
		return ErrInvalidPhase
	}
	err := s.log.AppendABLog(ctx, store.ABLogEntry{
		DispatchID:   r.DispatchID,
		PhaseUsed:    r.PhaseUsed,
		Strategy:     string(s.cfg.Strategy),
		Kind:         store.ABKindOutcome,
		Phase1Result: r.Phase1Result,
		Phase2Result: r.Phase2Result,
		CreatedAt:    s.now(),
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("dispatch_id", r.DispatchID).Msg("failed to log a/b result")
		return fmt.Errorf("%w: %w", ErrLog, err)
	}
	return nil
}

// Status describes the running configuration.
type Status struct {
	Active           bool     `json:"active"`
	Strategy         Strategy `json:"strategy"`
	Phase2Weight     float64  `json:"phase2_weight"`
	PeakHours        [2]int   `json:"peak_hours"`
	SeedFromDispatch bool     `json:"seed_from_dispatch"`
	Timestamp        string   `json:"timestamp"`
}

func (s *Splitter) Status() Status {
	return Status{
		Active:           true,
		Strategy:         s.cfg.Strategy,
		Phase2Weight:     s.cfg.Phase2Weight,
		PeakHours:        [2]int{s.cfg.PeakStartHour, s.cfg.PeakEndHour},
		SeedFromDispatch: s.cfg.SeedFromDispatch,
		Timestamp:        s.now().Format(time.RFC3339),
	}
}
