package server

import (
	"errors"
	"net/http"
	"time"

	"ems/dispatch/internal/monitoring"

	"github.com/go-chi/chi/v5"
)

func (s *Server) monitorWindow() time.Duration {
	if s.cfg.Monitor.Window > 0 {
		return s.cfg.Monitor.Window
	}
	return 24 * time.Hour
}

func (s *Server) monitorComparison() time.Duration {
	if s.cfg.Monitor.Comparison > 0 {
		return s.cfg.Monitor.Comparison
	}
	return 72 * time.Hour
}

func healthStatusCode(status string) int {
	if status == monitoring.HealthUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// handleMonitoringHealth godoc
// @Title Run every health check
// @Description Answers 503 when any check is unhealthy.
// @Resource Monitoring
// @Produce json
// @Success 200 {object} monitoring.HealthReport
// @Failure 503 {object} monitoring.HealthReport
// @Route /v1/monitoring/health [get]
func (s *Server) handleMonitoringHealth(w http.ResponseWriter, r *http.Request) {
	rep := s.deps.Health.Check(r.Context())
	s.writeJSON(w, healthStatusCode(rep.OverallStatus), rep)
}

// handleMonitoringCheck godoc
// @Title Run one health check
// @Resource Monitoring
// @Produce json
// @Param check path string true "Check name"
// @Success 200 {object} monitoring.CheckResult
// @Failure 404 {object} APIError
// @Route /v1/monitoring/health/{check} [get]
func (s *Server) handleMonitoringCheck(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "check")
	res, err := s.deps.Health.CheckOne(r.Context(), name)
	if errors.Is(err, monitoring.ErrUnknownCheck) {
		s.writeError(w, http.StatusNotFound, "unknown health check", s.deps.Health.Checks())
		return
	}
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, healthStatusCode(res.Status), res)
}

// handlePredictionDrift godoc
// @Title Prediction confidence drift
// @Resource Monitoring
// @Produce json
// @Param hours query int false "Window in hours"
// @Success 200 {object} monitoring.Result
// @Route /v1/monitoring/drift/prediction [get]
func (s *Server) handlePredictionDrift(w http.ResponseWriter, r *http.Request) {
	window, ok := s.windowHours(w, r, int(s.monitorWindow().Hours()))
	if !ok {
		return
	}
	res, err := s.deps.Drift.DetectPredictionDrift(r.Context(), window)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handlePerformanceDrift godoc
// @Title Performance degradation against the preceding period
// @Resource Monitoring
// @Produce json
// @Param hours query int false "Window in hours"
// @Param comparison_hours query int false "Comparison period in hours"
// @Success 200 {object} monitoring.Result
// @Route /v1/monitoring/drift/performance [get]
func (s *Server) handlePerformanceDrift(w http.ResponseWriter, r *http.Request) {
	window, ok := s.windowHours(w, r, int(s.monitorWindow().Hours()))
	if !ok {
		return
	}
	comparison, err := queryInt(r, "comparison_hours", int(s.monitorComparison().Hours()), 1, 24*90)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidQuery, err.Error())
		return
	}
	res, err := s.deps.Drift.DetectPerformanceDegradation(r.Context(), window, time.Duration(comparison)*time.Hour)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleDataQuality godoc
// @Title Prediction input data quality
// @Resource Monitoring
// @Produce json
// @Param hours query int false "Window in hours"
// @Success 200 {object} monitoring.Result
// @Route /v1/monitoring/drift/data-quality [get]
func (s *Server) handleDataQuality(w http.ResponseWriter, r *http.Request) {
	window, ok := s.windowHours(w, r, int(s.monitorWindow().Hours()))
	if !ok {
		return
	}
	res, err := s.deps.Drift.DetectDataQuality(r.Context(), window)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleActiveAlerts godoc
// @Title Open alerts, most severe first
// @Resource Monitoring
// @Produce json
// @Success 200 {object} AlertListResponse
// @Route /v1/monitoring/alerts/active [get]
func (s *Server) handleActiveAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.deps.Alerts.ActiveAlerts(r.Context())
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, AlertListResponse{Count: len(alerts), Alerts: alerts})
}

// handleAlertHistory godoc
// @Title Alerts created in the last days
// @Resource Monitoring
// @Produce json
// @Param days query int false "Window in days (default 7)"
// @Success 200 {object} AlertListResponse
// @Route /v1/monitoring/alerts/history [get]
func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 7, 1, 365)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidQuery, err.Error())
		return
	}
	alerts, err := s.deps.Alerts.History(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, AlertListResponse{Count: len(alerts), Alerts: alerts})
}

// handleAlertStatistics godoc
// @Title Alert counts by severity, type and status
// @Resource Monitoring
// @Produce json
// @Param days query int false "Window in days (default 7)"
// @Success 200 {object} monitoring.AlertStatistics
// @Route /v1/monitoring/alerts/statistics [get]
func (s *Server) handleAlertStatistics(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 7, 1, 365)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidQuery, err.Error())
		return
	}
	st, err := s.deps.Alerts.Statistics(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// handleResolveAlert godoc
// @Title Resolve an open alert
// @Resource Monitoring
// @Accept json
// @Produce json
// @Param alertID path string true "Alert ID"
// @Param body body ResolveAlertRequest true "Resolution notes"
// @Success 200 {object} ResolveAlertResponse
// @Failure 404 {object} APIError
// @Failure 409 {object} APIError
// @Route /v1/monitoring/alerts/{alertID}/resolve [post]
func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "alertID")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidAlertID, err.Error())
		return
	}
	var body ResolveAlertRequest
	if err := s.decodeAndValidate(r, &body); err != nil {
		s.writeDecodeError(w, err)
		return
	}

	alert, err := s.deps.Alerts.ResolveAlert(r.Context(), id, body.ResolutionNotes)
	switch {
	case errors.Is(err, monitoring.ErrAlertNotFound):
		s.writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, monitoring.ErrAlertAlreadyResolved):
		s.writeError(w, http.StatusConflict, err.Error(), nil)
	case err != nil:
		s.writeInternal(w, r, err)
	default:
		s.writeJSON(w, http.StatusOK, ResolveAlertResponse{Success: true, Alert: alert})
	}
}

// handleMonitoringDashboard godoc
// @Title Combined health, drift and alert view
// @Resource Monitoring
// @Produce json
// @Success 200 {object} monitoring.Dashboard
// @Route /v1/monitoring/dashboard [get]
func (s *Server) handleMonitoringDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Scheduler.Dashboard(r.Context())
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}
