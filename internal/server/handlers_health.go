package server

import (
	"net/http"
	"time"

	"ems/dispatch/internal/monitoring"
)

// handleHealth godoc
// @Title Liveness
// @Description Answers 200 while the process serves requests. Dependencies are not contacted.
// @Resource System
// @Produce json
// @Success 200 {object} LivenessResponse
// @Route /healthz [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, LivenessResponse{
		Status:      "alive",
		Env:         s.cfg.Env,
		StartedAt:   s.startedAt,
		UptimeSec:   int64(time.Since(s.startedAt).Seconds()),
		AuthEnabled: s.authMw != nil,
	})
}

// handleReady godoc
// @Title Readiness
// @Description Runs the storage and model checks. Storage gates readiness; a missing
// @Description model only marks the instance degraded because rule-based fallback still assigns.
// @Resource System
// @Produce json
// @Success 200 {object} ReadinessResponse
// @Failure 503 {object} ReadinessResponse
// @Route /readyz [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := ReadinessResponse{Status: "ready", Checks: map[string]monitoring.CheckResult{}}

	storage, err := s.deps.Health.CheckOne(ctx, monitoring.CheckStorage)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	resp.Checks[monitoring.CheckStorage] = storage

	model, err := s.deps.Health.CheckOne(ctx, monitoring.CheckModel)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	resp.Checks[monitoring.CheckModel] = model
	resp.ModelID = s.deps.Predictor.Model().ID()

	code := http.StatusOK
	switch {
	case storage.Status == monitoring.HealthUnhealthy:
		resp.Status = "not_ready"
		code = http.StatusServiceUnavailable
	case model.Status != monitoring.HealthHealthy:
		resp.Status = "degraded"
	}
	s.writeJSON(w, code, resp)
}
