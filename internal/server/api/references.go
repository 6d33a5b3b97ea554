package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ayusman/abhyasa/internal/score"
	"github.com/ayusman/abhyasa/internal/store"
)

// ReferenceHandler handles HTTP requests for reference model resources.
type ReferenceHandler struct {
	store *store.Store
}

// NewReferenceHandler creates a new ReferenceHandler with the given store.
func NewReferenceHandler(s *store.Store) *ReferenceHandler {
	return &ReferenceHandler{store: s}
}

// ServeHTTP implements the http.Handler interface and routes requests to
// appropriate methods.
func (h *ReferenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/references or /api/references/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/references")
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

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Request and response types

type referenceRequest struct {
	Name    string        `json:"name"`
	Kind    string        `json:"kind"`
	Weights score.Weights `json:"weights"`
}

type referenceResponse struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Kind      string        `json:"kind"`
	Weights   score.Weights `json:"weights"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
}

func toReferenceResponse(m *store.ReferenceModel) referenceResponse {
	return referenceResponse{
		ID:        m.ID,
		Name:      m.Name,
		Kind:      string(m.Kind),
		Weights:   m.Weights,
		CreatedAt: m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: m.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// validateReference checks the request and returns the normalized weights.
func validateReference(req *referenceRequest) (store.ReferenceKind, score.Weights, error) {
	if req.Name == "" {
		return "", score.Weights{}, errors.New("name is required")
	}

	kind := store.ReferenceKind(req.Kind)
	switch kind {
	case store.ReferenceExpert, store.ReferenceStandard, store.ReferenceCustom:
	case "":
		kind = store.ReferenceCustom
	default:
		return "", score.Weights{}, errors.New("kind must be expert, standard, or custom")
	}

	weights := req.Weights
	if weights == (score.Weights{}) {
		weights = score.DefaultWeights()
	}
	weights, err := weights.Normalize()
	if err != nil {
		return "", score.Weights{}, err
	}

	return kind, weights, nil
}

// create handles POST /api/references.
func (h *ReferenceHandler) create(w http.ResponseWriter, r *http.Request) {
	var req referenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	kind, weights, err := validateReference(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m := &store.ReferenceModel{
		ID:      uuid.NewString(),
		Name:    req.Name,
		Kind:    kind,
		Weights: weights,
	}

	if err := h.store.References().Create(m); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store reference model")
		return
	}

	writeJSON(w, http.StatusCreated, toReferenceResponse(m))
}

// list handles GET /api/references.
func (h *ReferenceHandler) list(w http.ResponseWriter, r *http.Request) {
	models, err := h.store.References().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list reference models")
		return
	}

	responses := make([]referenceResponse, 0, len(models))
	for _, m := range models {
		responses = append(responses, toReferenceResponse(m))
	}

	writeJSON(w, http.StatusOK, responses)
}

// get handles GET /api/references/{id}.
func (h *ReferenceHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	m, err := h.store.References().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "reference model not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load reference model")
		return
	}

	writeJSON(w, http.StatusOK, toReferenceResponse(m))
}

// update handles PUT /api/references/{id}.
func (h *ReferenceHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	var req referenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	kind, weights, err := validateReference(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m := &store.ReferenceModel{
		ID:      id,
		Name:    req.Name,
		Kind:    kind,
		Weights: weights,
	}

	if err := h.store.References().Update(m); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "reference model not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update reference model")
		return
	}

	writeJSON(w, http.StatusOK, toReferenceResponse(m))
}

// delete handles DELETE /api/references/{id}.
func (h *ReferenceHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.References().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "reference model not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete reference model")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
