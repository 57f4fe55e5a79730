package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"ems/dispatch/internal/assignment"
	"ems/dispatch/internal/service"
	"ems/dispatch/internal/validation"
)

// handleCreateAssignment godoc
// @Title Assign an ambulance and crew
// @Description Routes the request to Phase 1 rules or the Phase 2 model through the A/B splitter. Use ?phase=1|2 to force a phase.
// @Resource Assignments
// @Accept json
// @Produce json
// @Param body body assignment.Request true "Dispatch request"
// @Success 201 {object} AssignmentResponse
// @Failure 400 {object} AssignmentFailure
// @Failure 500 {object} AssignmentFailure
// @Route /v1/assignments [post]
func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	force, err := forcedPhase(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidQuery, "phase must be 1 or 2")
		return
	}

	var req assignment.Request
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidPayload, err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, validationFailure(req.DispatchID, err))
		return
	}

	res, err := s.deps.Assignments.Assign(r.Context(), req, force)
	if err != nil {
		status, body := s.assignmentFailure(req.DispatchID, res.Phase, err)
		s.writeJSON(w, status, body)
		return
	}
	s.writeJSON(w, http.StatusCreated, AssignmentResponse{Success: true, Decision: res.Decision})
}

// handleCreateAssignmentBatch godoc
// @Title Assign a batch of dispatches
// @Description Each request is assigned independently; the response lists one result per request in order.
// @Resource Assignments
// @Accept json
// @Produce json
// @Param body body BatchAssignmentRequest true "Dispatch requests"
// @Success 200 {object} BatchAssignmentResponse
// @Route /v1/assignments/batch [post]
func (s *Server) handleCreateAssignmentBatch(w http.ResponseWriter, r *http.Request) {
	force, err := forcedPhase(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidQuery, "phase must be 1 or 2")
		return
	}

	var body BatchAssignmentRequest
	if err := s.decodeAndValidate(r, &body); err != nil {
		s.writeDecodeError(w, err)
		return
	}

	results := make([]interface{}, len(body.Requests))
	valid := make([]assignment.Request, 0, len(body.Requests))
	index := make([]int, 0, len(body.Requests))
	for i, req := range body.Requests {
		if err := s.validate.Struct(req); err != nil {
			results[i] = validationFailure(req.DispatchID, err)
			continue
		}
		valid = append(valid, req)
		index = append(index, i)
	}

	for _, item := range s.deps.Assignments.AssignBatch(r.Context(), valid, force) {
		i := index[item.Index]
		if item.Err != nil {
			_, failure := s.assignmentFailure(valid[item.Index].DispatchID, item.Result.Phase, item.Err)
			results[i] = failure
			continue
		}
		results[i] = AssignmentResponse{Success: true, Decision: item.Result.Decision}
	}

	resp := BatchAssignmentResponse{Total: len(results), Results: results}
	for _, res := range results {
		if _, ok := res.(AssignmentResponse); ok {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func forcedPhase(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("phase")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || (n != 1 && n != 2) {
		return 0, service.ErrInvalidPhase
	}
	return n, nil
}

func validationFailure(dispatchID int64, err error) AssignmentFailure {
	return AssignmentFailure{
		DispatchID: dispatchID,
		Error:      assignment.Message(assignment.ErrValidation),
		Category:   assignment.CategoryValidation,
		Details:    validation.Fields(err),
		Timestamp:  time.Now().UTC(),
	}
}

// assignmentFailure maps an engine error to a status and a payload without storage details.
func (s *Server) assignmentFailure(dispatchID int64, phase int, err error) (int, AssignmentFailure) {
	body := AssignmentFailure{
		DispatchID: dispatchID,
		Error:      assignment.Message(err),
		Category:   assignment.Category(err),
		Timestamp:  time.Now().UTC(),
		Phase:      phase,
	}
	var ae *assignment.Error
	if errors.As(err, &ae) && ae.Category == assignment.CategoryValidation {
		body.Details = ae.Fields
	}

	switch body.Category {
	case assignment.CategoryValidation, assignment.CategoryNoAmbulance, assignment.CategoryInsufficientPersonnel:
		return http.StatusBadRequest, body
	default:
		s.log.Error().Err(err).Int64("dispatch_id", dispatchID).Str("category", body.Category).Msg("assignment failed")
		return http.StatusInternalServerError, body
	}
}
