package server

import (
	"errors"
	"net/http"

	"ems/dispatch/internal/prediction"
)

// writeModelError answers 503 for classifier failures and 500 for anything else.
func (s *Server) writeModelError(w http.ResponseWriter, r *http.Request, err error) {
	var me *prediction.ModelError
	if errors.As(err, &me) {
		s.log.Warn().Err(err).Str("reason", me.Reason).Str("path", r.URL.Path).Msg("model unavailable")
		s.writeJSON(w, http.StatusServiceUnavailable, ModelErrorResponse{Error: "model unavailable", Reason: me.Reason})
		return
	}
	s.writeInternal(w, r, err)
}

// handlePredict godoc
// @Title Run the Phase 2 classifier
// @Description Returns the normalised prediction. Model failures answer 503 with the failure reason and never fall back.
// @Resource Predictions
// @Accept json
// @Produce json
// @Param body body PredictRequest true "Feature vector"
// @Success 200 {object} prediction.Prediction
// @Failure 503 {object} ModelErrorResponse
// @Route /v1/predictions [post]
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var body PredictRequest
	if err := s.decodeAndValidate(r, &body); err != nil {
		s.writeDecodeError(w, err)
		return
	}
	pred, err := s.deps.Predictor.Predict(r.Context(), body.Features)
	if err != nil {
		s.writeModelError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pred)
}

// handlePredictBatch godoc
// @Title Run the classifier on several feature vectors
// @Resource Predictions
// @Accept json
// @Produce json
// @Param body body BatchPredictRequest true "Feature vectors"
// @Success 200 {object} BatchPredictResponse
// @Route /v1/predictions/batch [post]
func (s *Server) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	var body BatchPredictRequest
	if err := s.decodeAndValidate(r, &body); err != nil {
		s.writeDecodeError(w, err)
		return
	}
	vectors := make([]prediction.FeatureVector, len(body.Items))
	for i, item := range body.Items {
		vectors[i] = item.Features
	}
	items := s.deps.Predictor.PredictBatch(r.Context(), vectors)
	s.writeJSON(w, http.StatusOK, BatchPredictResponse{Total: len(items), Items: items})
}

// handleModelInfo godoc
// @Title Loaded model metadata
// @Resource Predictions
// @Produce json
// @Success 200 {object} prediction.Info
// @Failure 503 {object} ModelErrorResponse
// @Route /v1/model/info [get]
func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Predictor.Info(r.Context())
	if err != nil {
		s.writeModelError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

// handleFeatureImportance godoc
// @Title Per-feature importance of the loaded model
// @Resource Predictions
// @Produce json
// @Success 200 {object} map[string]float64
// @Failure 503 {object} ModelErrorResponse
// @Route /v1/model/feature-importance [get]
func (s *Server) handleFeatureImportance(w http.ResponseWriter, r *http.Request) {
	imp, err := s.deps.Predictor.FeatureImportance(r.Context())
	if err != nil {
		s.writeModelError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, imp)
}
