package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"ems/dispatch/internal/abtest"
	"ems/dispatch/internal/assignment"
	"ems/dispatch/internal/cache"
	"ems/dispatch/internal/config"
	"ems/dispatch/internal/database"
	"ems/dispatch/internal/metrics"
	"ems/dispatch/internal/monitoring"
	"ems/dispatch/internal/notify"
	"ems/dispatch/internal/prediction"
	"ems/dispatch/internal/service"
	"ems/dispatch/internal/store"
	"ems/dispatch/internal/store/memory"
	"ems/dispatch/internal/store/postgres"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// buildDeps connects the configured backends and assembles the domain components.
// The returned closers release connections and must run even when later steps fail.
func buildDeps(ctx context.Context, cfg config.Config, log zerolog.Logger) (Deps, []func(), error) {
	var closers []func()
	fail := func(err error) (Deps, []func(), error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return Deps{}, nil, err
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fail(fmt.Errorf("register metrics: %w", err))
	}

	loc, err := cfg.Location()
	if err != nil {
		return fail(err)
	}

	var (
		st     store.Store
		prober store.Prober
	)
	switch cfg.Database.Backend {
	case "memory":
		mem := memory.New(nil)
		st, prober = mem, mem
		log.Warn().Msg("using in-memory storage; records are lost on restart")
	case "postgres", "":
		pool, err := database.Connect(ctx, cfg, log)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, pool.Close)
		sqlDB := database.OpenDB(pool)
		closers = append(closers, func() { _ = sqlDB.Close() })
		st, prober = postgres.New(pool), postgres.NewProber(sqlDB)
	default:
		return fail(fmt.Errorf("unknown storage backend %q", cfg.Database.Backend))
	}

	var (
		history store.HistoryStore = st
		counter abtest.Counter
	)
	if cfg.Redis.Enabled {
		rdb, err := cache.NewClient(ctx, cache.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		history = cache.NewHistoryStore(st, rdb, cfg.Redis.StatsTTL, log)
		counter = cache.NewCounter(rdb, cfg.ABTest.CounterKey)
	}

	var publisher *notify.Publisher
	if cfg.NATS.Enabled {
		conn, err := notify.Connect(notify.Config{
			URL:            cfg.NATS.URL,
			Name:           cfg.AppName,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ConnectTimeout: cfg.NATS.ConnectTimeout,
		}, log)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = conn.Drain() })
		publisher = notify.NewPublisher(conn, log)
	}

	policy, err := assignment.LoadModelConfiguration(cfg.Policy.File)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("file", cfg.Policy.File).Msg("policy file not found, using built-in rules")
		policy, err = assignment.DefaultModelConfiguration(), nil
	}
	if err != nil {
		return fail(err)
	}
	engine, err := assignment.NewEngine(policy, history, log)
	if err != nil {
		return fail(err)
	}

	var model prediction.Model
	switch cfg.Model.Source {
	case "remote":
		model = prediction.NewRemoteModel(cfg.Model.RemoteURL, cfg.Model.RemoteID, cfg.Model.Timeout)
	case "file", "":
		model = prediction.NewLazyModel(prediction.FileLoader{Path: cfg.Model.ArtifactPath}, cfg.Model.RetryAfter, log)
	default:
		return fail(fmt.Errorf("unknown model source %q", cfg.Model.Source))
	}
	adapter := prediction.NewAdapter(model, cfg.Model.Timeout, log)
	decider := prediction.WithFallback(prediction.NewModelDecider(adapter, engine), engine, st, model.ID, log)

	strategy, err := abtest.ParseStrategy(cfg.ABTest.Strategy)
	if err != nil {
		return fail(err)
	}
	var splitOpts []abtest.Option
	if counter != nil {
		splitOpts = append(splitOpts, abtest.WithCounter(counter))
	}
	splitter, err := abtest.NewSplitter(abtest.Config{
		Strategy:           strategy,
		Phase2Weight:       cfg.ABTest.Phase2Weight,
		PeakStartHour:      cfg.ABTest.PeakStartHour,
		PeakEndHour:        cfg.ABTest.PeakEndHour,
		PeakProbability:    cfg.ABTest.PeakProbability,
		OffPeakProbability: cfg.ABTest.OffPeakProbability,
		SeedFromDispatch:   cfg.ABTest.SeedFromDispatch,
		Location:           loc,
	}, st, log, splitOpts...)
	if err != nil {
		return fail(err)
	}

	var svcOpts []service.Option
	if publisher != nil {
		svcOpts = append(svcOpts, service.WithEvents(publisher))
	}
	svc := service.New(engine, decider, splitter, history, service.Config{}, log, svcOpts...)

	th := monitoring.DefaultThresholds()
	drift := monitoring.NewDriftMonitor(st, th, monitoring.WithBaselineMode(monitoring.BaselineMode(cfg.Monitor.BaselineMode)))
	alerts := monitoring.NewAlertManager(st, th, log)
	if publisher != nil {
		alerts.RegisterHandler(publisher)
	}
	health := monitoring.NewHealthChecker(prober, adapter, st, th, monitoring.HealthConfig{
		Window:         cfg.Monitor.Window,
		ModelMaxAge:    cfg.Model.MaxAge,
		MemoryLimit:    cfg.Monitor.MemoryLimitMB << 20,
		ExpectedTables: store.Tables,
	}, log)
	scheduler := monitoring.NewScheduler(health, drift, alerts, monitoring.SchedulerConfig{
		Interval:   cfg.Monitor.Interval,
		Window:     cfg.Monitor.Window,
		Comparison: cfg.Monitor.Comparison,
	}, log)

	log.Info().
		Str("storage", cfg.Database.Backend).
		Bool("redis", cfg.Redis.Enabled).
		Bool("nats", cfg.NATS.Enabled).
		Str("model_source", cfg.Model.Source).
		Str("strategy", string(strategy)).
		Dur("model_timeout", cfg.Model.Timeout).
		Msg("dependencies ready")

	return Deps{
		History:     history,
		Assignments: svc,
		Splitter:    splitter,
		Predictor:   adapter,
		Drift:       drift,
		Alerts:      alerts,
		Health:      health,
		Scheduler:   scheduler,
	}, closers, nil
}
