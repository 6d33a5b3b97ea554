package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ayusman/abhyasa/internal/align"
	"github.com/ayusman/abhyasa/internal/compare"
	"github.com/ayusman/abhyasa/internal/feedback"
	"github.com/ayusman/abhyasa/internal/score"
	"github.com/ayusman/abhyasa/internal/store"
)

// ComparisonHandler handles HTTP requests for comparison resources and
// triggers comparison runs.
type ComparisonHandler struct {
	store        *store.Store
	orchestrator *compare.Orchestrator
}

// NewComparisonHandler creates a new ComparisonHandler.
func NewComparisonHandler(s *store.Store, o *compare.Orchestrator) *ComparisonHandler {
	return &ComparisonHandler{store: s, orchestrator: o}
}

// ServeHTTP implements the http.Handler interface and routes requests to
// appropriate methods.
func (h *ComparisonHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/comparisons, /api/comparisons/{id},
	// /api/comparisons/{id}/rerun
	path := strings.TrimPrefix(r.URL.Path, "/api/comparisons")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if id, ok := strings.CutSuffix(path, "/rerun"); ok {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.rerun(w, r, id)
		return
	}

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Request and response types

type createComparisonRequest struct {
	LearnerAnalysisID   string `json:"learner_analysis_id"`
	ReferenceAnalysisID string `json:"reference_analysis_id"`
	ReferenceModelID    string `json:"reference_model_id"`
	EntityID            string `json:"entity_id"`
}

type comparisonResponse struct {
	ID                  string                   `json:"id"`
	LearnerAnalysisID   string                   `json:"learner_analysis_id"`
	ReferenceAnalysisID string                   `json:"reference_analysis_id"`
	ReferenceModelID    string                   `json:"reference_model_id,omitempty"`
	EntityID            string                   `json:"entity_id,omitempty"`
	Status              string                   `json:"status"`
	Progress            float64                  `json:"progress"`
	OverallScore        float64                  `json:"overall_score"`
	ComponentScores     score.Components         `json:"component_scores"`
	DTWDistance         float64                  `json:"dtw_distance"`
	TemporalAlignment   []align.Pair             `json:"temporal_alignment,omitempty"`
	Feedback            *feedback.List           `json:"feedback,omitempty"`
	MetricsComparison   *score.MetricsComparison `json:"metrics_comparison,omitempty"`
	ErrorMessage        string                   `json:"error_message,omitempty"`
	CreatedAt           string                   `json:"created_at"`
	UpdatedAt           string                   `json:"updated_at"`
}

func toComparisonResponse(c *store.Comparison) comparisonResponse {
	return comparisonResponse{
		ID:                  c.ID,
		LearnerAnalysisID:   c.LearnerAnalysisID,
		ReferenceAnalysisID: c.ReferenceAnalysisID,
		ReferenceModelID:    c.ReferenceModelID,
		EntityID:            c.EntityID,
		Status:              string(c.Status),
		Progress:            c.Progress,
		OverallScore:        c.OverallScore,
		ComponentScores:     c.Components,
		DTWDistance:         c.DTWDistance,
		TemporalAlignment:   c.Alignment,
		Feedback:            c.Feedback,
		MetricsComparison:   c.Metrics,
		ErrorMessage:        c.ErrorMessage,
		CreatedAt:           c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:           c.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// create handles POST /api/comparisons: it records the comparison and
// triggers its run.
func (h *ComparisonHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createComparisonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.LearnerAnalysisID == "" || req.ReferenceAnalysisID == "" {
		writeError(w, http.StatusBadRequest, "learner_analysis_id and reference_analysis_id are required")
		return
	}

	c := &store.Comparison{
		ID:                  uuid.NewString(),
		LearnerAnalysisID:   req.LearnerAnalysisID,
		ReferenceAnalysisID: req.ReferenceAnalysisID,
		ReferenceModelID:    req.ReferenceModelID,
		EntityID:            req.EntityID,
		Status:              store.ComparisonPending,
	}

	if err := h.store.Comparisons().Create(c); err != nil {
		writeError(w, http.StatusBadRequest, "failed to create comparison: check analysis ids")
		return
	}

	if err := h.orchestrator.Submit(r.Context(), c.ID); err != nil {
		h.writeSubmitError(w, err)
		return
	}

	created, err := h.store.Comparisons().GetByID(c.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load comparison")
		return
	}

	writeJSON(w, http.StatusAccepted, toComparisonResponse(created))
}

// rerun handles POST /api/comparisons/{id}/rerun: explicit resubmission of a
// finished (typically failed) comparison.
func (h *ComparisonHandler) rerun(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.orchestrator.Submit(r.Context(), id); err != nil {
		h.writeSubmitError(w, err)
		return
	}

	c, err := h.store.Comparisons().GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load comparison")
		return
	}

	writeJSON(w, http.StatusAccepted, toComparisonResponse(c))
}

// writeSubmitError maps orchestrator submit failures onto HTTP statuses.
func (h *ComparisonHandler) writeSubmitError(w http.ResponseWriter, err error) {
	var depErr *compare.DependencyNotReadyError
	switch {
	case errors.Is(err, compare.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &depErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// list handles GET /api/comparisons.
func (h *ComparisonHandler) list(w http.ResponseWriter, r *http.Request) {
	comparisons, err := h.store.Comparisons().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list comparisons")
		return
	}

	responses := make([]comparisonResponse, 0, len(comparisons))
	for _, c := range comparisons {
		responses = append(responses, toComparisonResponse(c))
	}

	writeJSON(w, http.StatusOK, responses)
}

// get handles GET /api/comparisons/{id}. Failed comparisons stay queryable
// with their recorded error.
func (h *ComparisonHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	c, err := h.store.Comparisons().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "comparison not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load comparison")
		return
	}

	writeJSON(w, http.StatusOK, toComparisonResponse(c))
}

// delete handles DELETE /api/comparisons/{id}.
func (h *ComparisonHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if h.orchestrator.Running(id) {
		writeError(w, http.StatusConflict, "comparison is running")
		return
	}

	if err := h.store.Comparisons().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "comparison not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete comparison")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
