package server

import (
	"errors"
	"net/http"

	"ems/dispatch/internal/store"
)

// handleListHistoryByDispatch godoc
// @Title List assignment history for a dispatch
// @Resource History
// @Produce json
// @Param dispatchID path int true "Dispatch ID"
// @Success 200 {object} HistoryListResponse
// @Route /v1/history/dispatch/{dispatchID} [get]
func (s *Server) handleListHistoryByDispatch(w http.ResponseWriter, r *http.Request) {
	id, err := parseInt64Param(r, "dispatchID")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidDispatchID, err.Error())
		return
	}
	recs, err := s.deps.History.GetHistoryByDispatch(r.Context(), id)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, HistoryListResponse{Count: len(recs), Records: recs})
}

// handleListRecentHistory godoc
// @Title List recent assignments
// @Resource History
// @Produce json
// @Param limit query int false "Maximum records (default 50, max 1000)"
// @Param hours query int false "Look-back window in hours (default 24)"
// @Success 200 {object} HistoryListResponse
// @Route /v1/history/recent [get]
func (s *Server) handleListRecentHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50, 1, 1000)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidQuery, err.Error())
		return
	}
	hours, err := queryInt(r, "hours", 24, 1, 24*90)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidQuery, err.Error())
		return
	}
	recs, err := s.deps.History.GetRecent(r.Context(), limit, hours)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, HistoryListResponse{Count: len(recs), Records: recs})
}

// handleListHistoryByAmbulance godoc
// @Title List assignments of an ambulance
// @Resource History
// @Produce json
// @Param ambulanceID path int true "Ambulance ID"
// @Param limit query int false "Maximum records (default 50)"
// @Success 200 {object} HistoryListResponse
// @Route /v1/history/ambulance/{ambulanceID} [get]
func (s *Server) handleListHistoryByAmbulance(w http.ResponseWriter, r *http.Request) {
	id, err := parseInt64Param(r, "ambulanceID")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidAmbulance, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 50, 1, 1000)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidQuery, err.Error())
		return
	}
	recs, err := s.deps.History.GetByAmbulance(r.Context(), id, limit)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, HistoryListResponse{Count: len(recs), Records: recs})
}

// handleRecordOutcome godoc
// @Title Attach the real-world outcome to an assignment
// @Description Outcome fields can be attached once per history record.
// @Resource History
// @Accept json
// @Produce json
// @Param historyID path string true "History record ID"
// @Param body body OutcomeRequest true "Outcome"
// @Success 200 {object} OutcomeResponse
// @Failure 404 {object} APIError
// @Failure 409 {object} APIError
// @Route /v1/history/{historyID}/outcome [post]
func (s *Server) handleRecordOutcome(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "historyID")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidHistoryID, err.Error())
		return
	}
	var body OutcomeRequest
	if err := s.decodeAndValidate(r, &body); err != nil {
		s.writeDecodeError(w, err)
		return
	}

	err = s.deps.History.UpdateOutcome(r.Context(), id, body.toOutcome())
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "history record not found", nil)
	case errors.Is(err, store.ErrOutcomeRecorded):
		s.writeError(w, http.StatusConflict, "outcome already recorded", nil)
	case err != nil:
		s.writeInternal(w, r, err)
	default:
		s.writeJSON(w, http.StatusOK, OutcomeResponse{Success: true, HistoryID: id})
	}
}

// handleGetStatistics godoc
// @Title Assignment statistics
// @Resource Statistics
// @Produce json
// @Param hours query int false "Window in hours (default 24)"
// @Success 200 {object} store.HistoryStatistics
// @Route /v1/statistics [get]
func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", 24, 1, 24*365)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidQuery, err.Error())
		return
	}
	st, err := s.deps.History.GetStatistics(r.Context(), hours)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// handleGetAmbulancePerformance godoc
// @Title Performance of one ambulance
// @Resource Statistics
// @Produce json
// @Param ambulanceID path int true "Ambulance ID"
// @Param days query int false "Window in days (default 30)"
// @Success 200 {object} store.AmbulancePerformance
// @Route /v1/statistics/ambulance/{ambulanceID} [get]
func (s *Server) handleGetAmbulancePerformance(w http.ResponseWriter, r *http.Request) {
	id, err := parseInt64Param(r, "ambulanceID")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidAmbulance, err.Error())
		return
	}
	days, err := queryInt(r, "days", 30, 1, 365)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidQuery, err.Error())
		return
	}
	perf, err := s.deps.History.AmbulancePerformance(r.Context(), id, days)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, perf)
}

// handleGetSeverityDistribution godoc
// @Title Assignments grouped by severity
// @Resource Statistics
// @Produce json
// @Param days query int false "Window in days (default 7)"
// @Success 200 {array} store.SeverityBucket
// @Route /v1/statistics/severity-distribution [get]
func (s *Server) handleGetSeverityDistribution(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 7, 1, 365)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidQuery, err.Error())
		return
	}
	buckets, err := s.deps.History.SeverityDistribution(r.Context(), days)
	if err != nil {
		s.writeInternal(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, buckets)
}
