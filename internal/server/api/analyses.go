package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ayusman/abhyasa/internal/motion"
	"github.com/ayusman/abhyasa/internal/store"
)

// AnalysisHandler handles HTTP requests for analysis resources: the tracking
// output registered for one video.
type AnalysisHandler struct {
	store *store.Store
}

// NewAnalysisHandler creates a new AnalysisHandler with the given store.
func NewAnalysisHandler(s *store.Store) *AnalysisHandler {
	return &AnalysisHandler{store: s}
}

// ServeHTTP implements the http.Handler interface and routes requests to
// appropriate methods.
func (h *AnalysisHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/analyses or /api/analyses/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/analyses")
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
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Request and response types

type rawEntityRequest struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Position   motion.Point3D `json:"position"`
	Confidence float64        `json:"confidence"`
}

type rawFrameRequest struct {
	FrameNumber int                `json:"frame_number"`
	TimestampMs int64              `json:"timestamp_ms"`
	Entities    []rawEntityRequest `json:"entities"`
}

type createAnalysisRequest struct {
	Label   string                   `json:"label"`
	Frames  []rawFrameRequest        `json:"frames"`
	Quality motion.QualityAnnotation `json:"quality"`
}

type analysisResponse struct {
	ID         string                   `json:"id"`
	Label      string                   `json:"label"`
	Status     string                   `json:"status"`
	FrameCount int                      `json:"frame_count"`
	Quality    motion.QualityAnnotation `json:"quality"`
	CreatedAt  string                   `json:"created_at"`
	UpdatedAt  string                   `json:"updated_at"`
}

func toAnalysisResponse(a *store.Analysis) analysisResponse {
	return analysisResponse{
		ID:         a.ID,
		Label:      a.Label,
		Status:     string(a.Status),
		FrameCount: len(a.Frames),
		Quality:    a.Quality,
		CreatedAt:  a.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:  a.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// create handles POST /api/analyses. The payload is validated at this
// ingestion boundary: unknown entity kinds and non-increasing timestamps are
// rejected rather than probed later.
func (h *AnalysisHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	frames, err := validateFrames(req.Frames)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a := &store.Analysis{
		ID:      uuid.NewString(),
		Label:   req.Label,
		Status:  store.AnalysisCompleted,
		Frames:  frames,
		Quality: req.Quality,
	}

	if err := h.store.Analyses().Create(a); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store analysis")
		return
	}

	writeJSON(w, http.StatusCreated, toAnalysisResponse(a))
}

// validateFrames converts the wire frames into motion.RawFrame, applying the
// legacy kind mapping and rejecting malformed shapes.
func validateFrames(frames []rawFrameRequest) ([]motion.RawFrame, error) {
	if len(frames) == 0 {
		return nil, errors.New("frames must not be empty")
	}

	out := make([]motion.RawFrame, len(frames))
	lastTS := int64(-1)
	for i, f := range frames {
		if f.TimestampMs <= lastTS {
			return nil, fmt.Errorf("frame %d: timestamp %d not strictly increasing", f.FrameNumber, f.TimestampMs)
		}
		lastTS = f.TimestampMs

		entities := make([]motion.Entity, len(f.Entities))
		for j, e := range f.Entities {
			if e.ID == "" {
				return nil, fmt.Errorf("frame %d: entity with empty id", f.FrameNumber)
			}
			kind, err := motion.ParseEntityKind(e.Kind)
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", f.FrameNumber, err)
			}
			entities[j] = motion.Entity{
				ID:         e.ID,
				Kind:       kind,
				Position:   e.Position,
				Confidence: e.Confidence,
			}
		}
		out[i] = motion.RawFrame{
			FrameNumber: f.FrameNumber,
			TimestampMs: f.TimestampMs,
			Entities:    entities,
		}
	}

	return out, nil
}

// list handles GET /api/analyses.
func (h *AnalysisHandler) list(w http.ResponseWriter, r *http.Request) {
	analyses, err := h.store.Analyses().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}

	responses := make([]analysisResponse, 0, len(analyses))
	for _, a := range analyses {
		responses = append(responses, toAnalysisResponse(a))
	}

	writeJSON(w, http.StatusOK, responses)
}

// get handles GET /api/analyses/{id}.
func (h *AnalysisHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	a, err := h.store.Analyses().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "analysis not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load analysis")
		return
	}

	writeJSON(w, http.StatusOK, toAnalysisResponse(a))
}

// delete handles DELETE /api/analyses/{id}.
func (h *AnalysisHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Analyses().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "analysis not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete analysis")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
