package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.metricsMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Route("/v1", func(v1 chi.Router) {
		if s.authMw != nil {
			v1.Use(s.authMw.Middleware)
		}

		v1.Post("/assignments", s.handleCreateAssignment)
		v1.Post("/assignments/batch", s.handleCreateAssignmentBatch)

		v1.Get("/history/dispatch/{dispatchID}", s.handleListHistoryByDispatch)
		v1.Get("/history/recent", s.handleListRecentHistory)
		v1.Get("/history/ambulance/{ambulanceID}", s.handleListHistoryByAmbulance)
		v1.Post("/history/{historyID}/outcome", s.handleRecordOutcome)

		v1.Get("/statistics", s.handleGetStatistics)
		v1.Get("/statistics/ambulance/{ambulanceID}", s.handleGetAmbulancePerformance)
		v1.Get("/statistics/severity-distribution", s.handleGetSeverityDistribution)

		v1.Route("/ab-testing", func(ab chi.Router) {
			ab.Post("/decide-phase", s.handleDecidePhase)
			ab.Post("/log", s.handleLogABResult)
			ab.Get("/status", s.handleABStatus)
			ab.Get("/comparison", s.handleABComparison)
			ab.Get("/recommendation", s.handleABRecommendation)
			ab.Get("/metrics", s.handleABMetrics)
			ab.Get("/strategies", s.handleABStrategies)
			ab.Get("/dashboard", s.handleABDashboard)
		})

		v1.Post("/predictions", s.handlePredict)
		v1.Post("/predictions/batch", s.handlePredictBatch)
		v1.Get("/model/info", s.handleModelInfo)
		v1.Get("/model/feature-importance", s.handleFeatureImportance)

		v1.Route("/monitoring", func(m chi.Router) {
			m.Get("/health", s.handleMonitoringHealth)
			m.Get("/health/{check}", s.handleMonitoringCheck)
			m.Get("/drift/prediction", s.handlePredictionDrift)
			m.Get("/drift/performance", s.handlePerformanceDrift)
			m.Get("/drift/data-quality", s.handleDataQuality)
			m.Get("/alerts/active", s.handleActiveAlerts)
			m.Get("/alerts/history", s.handleAlertHistory)
			m.Get("/alerts/statistics", s.handleAlertStatistics)
			m.Post("/alerts/{alertID}/resolve", s.handleResolveAlert)
			m.Get("/dashboard", s.handleMonitoringDashboard)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", duration).
			Msg("http request")
	})
}
