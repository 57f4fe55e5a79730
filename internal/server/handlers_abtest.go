package server

import (
	"errors"
	"net/http"
	"time"

	"ems/dispatch/internal/abtest"
)

func (s *Server) windowHours(w http.ResponseWriter, r *http.Request, def int) (time.Duration, bool) {
	hours, err := queryInt(r, "hours", def, 1, 24*90)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidQuery, err.Error())
		return 0, false
	}
	return time.Duration(hours) * time.Hour, true
}

// handleDecidePhase godoc
// @Title Decide which phase handles a dispatch
// @Description The decision is returned even when the A/B log could not be written.
// @Resource A/B Testing
// @Accept json
// @Produce json
// @Param body body DecidePhaseRequest true "Dispatch"
// @Success 200 {object} abtest.PhaseDecision
// @Route /v1/ab-testing/decide-phase [post]
func (s *Server) handleDecidePhase(w http.ResponseWriter, r *http.Request) {
	var body DecidePhaseRequest
	if err := s.decodeAndValidate(r, &body); err != nil {
		s.writeDecodeError(w, err)
		return
	}
	d, err := s.deps.Splitter.DecidePhase(r.Context(), body.DispatchID)
	if err != nil && !errors.Is(err, abtest.ErrLog) {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

// handleLogABResult godoc
// @Title Log the result of a routed dispatch
// @Resource A/B Testing
// @Accept json
// @Produce json
// @Param body body ABLogRequest true "Result"
// @Success 200 {object} SuccessResponse
// @Route /v1/ab-testing/log [post]
func (s *Server) handleLogABResult(w http.ResponseWriter, r *http.Request) {
	var body ABLogRequest
	if err := s.decodeAndValidate(r, &body); err != nil {
		s.writeDecodeError(w, err)
		return
	}
	err := s.deps.Splitter.LogResult(r.Context(), abtest.Result{
		DispatchID:   body.DispatchID,
		PhaseUsed:    body.PhaseUsed,
		Phase1Result: body.Phase1Result.toStore(),
		Phase2Result: body.Phase2Result.toStore(),
	})
	switch {
	case errors.Is(err, abtest.ErrInvalidPhase):
		s.writeError(w, http.StatusBadRequest, errInvalidPayload, err.Error())
	case err != nil:
		s.writeInternal(w, r, err)
	default:
		s.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
	}
}

// handleABStatus godoc
// @Title Current A/B configuration
// @Resource A/B Testing
// @Produce json
// @Success 200 {object} abtest.Status
// @Route /v1/ab-testing/status [get]
func (s *Server) handleABStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Splitter.Status())
}

// handleABComparison godoc
// @Title Compare phase 1 and phase 2 confidences
// @Resource A/B Testing
// @Produce json
// @Param hours query int false "Window in hours (default 24)"
// @Success 200 {object} abtest.Comparison
// @Route /v1/ab-testing/comparison [get]
func (s *Server) handleABComparison(w http.ResponseWriter, r *http.Request) {
	window, ok := s.windowHours(w, r, 24)
	if !ok {
		return
	}
	c, err := s.deps.Splitter.ComparePhases(r.Context(), window)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

// handleABRecommendation godoc
// @Title Rollout recommendation
// @Resource A/B Testing
// @Produce json
// @Param hours query int false "Window in hours (default 24)"
// @Success 200 {object} abtest.Recommendation
// @Route /v1/ab-testing/recommendation [get]
func (s *Server) handleABRecommendation(w http.ResponseWriter, r *http.Request) {
	window, ok := s.windowHours(w, r, 24)
	if !ok {
		return
	}
	c, err := s.deps.Splitter.ComparePhases(r.Context(), window)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, abtest.Recommend(c))
}

// handleABMetrics godoc
// @Title Traffic distribution
// @Resource A/B Testing
// @Produce json
// @Param hours query int false "Window in hours (default 24)"
// @Success 200 {object} abtest.Results
// @Route /v1/ab-testing/metrics [get]
func (s *Server) handleABMetrics(w http.ResponseWriter, r *http.Request) {
	window, ok := s.windowHours(w, r, 24)
	if !ok {
		return
	}
	res, err := s.deps.Splitter.Results(r.Context(), window)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleABStrategies godoc
// @Title Available splitting strategies
// @Resource A/B Testing
// @Produce json
// @Success 200 {object} StrategiesResponse
// @Route /v1/ab-testing/strategies [get]
func (s *Server) handleABStrategies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, StrategiesResponse{
		Active:     string(s.deps.Splitter.Strategy()),
		Strategies: abtest.Strategies(),
	})
}

// handleABDashboard godoc
// @Title A/B dashboard
// @Resource A/B Testing
// @Produce json
// @Param hours query int false "Window in hours (default 24)"
// @Success 200 {object} abtest.Report
// @Route /v1/ab-testing/dashboard [get]
func (s *Server) handleABDashboard(w http.ResponseWriter, r *http.Request) {
	window, ok := s.windowHours(w, r, 24)
	if !ok {
		return
	}
	rep, err := s.deps.Splitter.Report(r.Context(), window)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}
