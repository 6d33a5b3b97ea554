// Package server provides the HTTP server for the Abhyasa motion comparison
// engine.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/abhyasa/internal/compare"
	"github.com/ayusman/abhyasa/internal/notify"
	"github.com/ayusman/abhyasa/internal/server/api"
	"github.com/ayusman/abhyasa/internal/store"
)

// Config holds the server configuration.
type Config struct {
	Store        *store.Store
	Orchestrator *compare.Orchestrator
	Hub          *notify.Hub
	StaticDir    string
}

// Server represents the HTTP server for the Abhyasa application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		analysisHandler := api.NewAnalysisHandler(s.config.Store)
		s.mux.Handle("/api/analyses", analysisHandler)
		s.mux.Handle("/api/analyses/", analysisHandler)

		referenceHandler := api.NewReferenceHandler(s.config.Store)
		s.mux.Handle("/api/references", referenceHandler)
		s.mux.Handle("/api/references/", referenceHandler)
	}

	if s.config.Store != nil && s.config.Orchestrator != nil {
		comparisonHandler := api.NewComparisonHandler(s.config.Store, s.config.Orchestrator)
		s.mux.Handle("/api/comparisons", comparisonHandler)
		s.mux.Handle("/api/comparisons/", comparisonHandler)
	}

	// Register progress notification WebSocket endpoint if Hub is configured
	if s.config.Hub != nil {
		s.mux.Handle("/api/ws", s.config.Hub)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
