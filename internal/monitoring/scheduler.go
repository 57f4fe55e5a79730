package monitoring

import (
	"context"
	"time"

	"ems/dispatch/internal/metrics"
	"ems/dispatch/internal/store"

	"github.com/rs/zerolog"
)

// SchedulerConfig sets the scan cadence and windows.
type SchedulerConfig struct {
	Interval   time.Duration
	Window     time.Duration
	Comparison time.Duration
}

// Scheduler periodically runs the health check and the detectors and turns
// their findings into alerts.
type Scheduler struct {
	health *HealthChecker
	drift  *DriftMonitor
	alerts *AlertManager
	cfg    SchedulerConfig
	log    zerolog.Logger
}

func NewScheduler(health *HealthChecker, drift *DriftMonitor, alerts *AlertManager, cfg SchedulerConfig, log zerolog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.Comparison <= 0 {
		cfg.Comparison = 72 * time.Hour
	}
	return &Scheduler{
		health: health,
		drift:  drift,
		alerts: alerts,
		cfg:    cfg,
		log:    log.With().Str("component", "monitor_scheduler").Logger(),
	}
}

// Run scans once immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.cfg.Interval).Msg("monitoring scheduler started")
	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("monitoring scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scan and returns the alerts it opened.
func (s *Scheduler) RunOnce(ctx context.Context) []store.Alert {
	var opened []store.Alert

	rep := s.health.Check(ctx)
	created, err := s.alerts.EvaluateHealth(ctx, rep)
	if err != nil {
		s.log.Error().Err(err).Msg("evaluate health alerts")
	}
	opened = append(opened, created...)

	drift, err := s.drift.Scan(ctx, s.cfg.Window, s.cfg.Comparison)
	if err != nil {
		s.log.Error().Err(err).Msg("drift scan failed")
		return opened
	}
	for _, r := range []Result{drift.Prediction, drift.Performance, drift.DataQuality} {
		metrics.SetDrift(r.Detector, r.HasIssue)
		a, err := s.alerts.EvaluateDrift(ctx, r)
		if err != nil {
			s.log.Error().Err(err).Str("detector", r.Detector).Msg("evaluate drift alert")
			continue
		}
		if a != nil {
			opened = append(opened, *a)
		}
	}

	s.log.Debug().
		Str("health", rep.OverallStatus).
		Bool("drift", drift.HasIssue()).
		Int("alerts_opened", len(opened)).
		Msg("monitoring scan complete")
	return opened
}

// Dashboard is the combined monitoring view.
type Dashboard struct {
	Timestamp    time.Time       `json:"timestamp"`
	Health       HealthReport    `json:"health"`
	Drift        DriftReport     `json:"drift"`
	ActiveAlerts []store.Alert   `json:"active_alerts"`
	AlertStats   AlertStatistics `json:"alert_statistics"`
}

// Dashboard gathers health, drift and alerts in one payload.
func (s *Scheduler) Dashboard(ctx context.Context) (Dashboard, error) {
	drift, err := s.drift.Scan(ctx, s.cfg.Window, s.cfg.Comparison)
	if err != nil {
		return Dashboard{}, err
	}
	active, err := s.alerts.ActiveAlerts(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	stats, err := s.alerts.Statistics(ctx, 7*24*time.Hour)
	if err != nil {
		return Dashboard{}, err
	}
	health := s.health.Check(ctx)
	return Dashboard{
		Timestamp:    health.Timestamp,
		Health:       health,
		Drift:        drift,
		ActiveAlerts: active,
		AlertStats:   stats,
	}, nil
}
