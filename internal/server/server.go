// Package server provides the HTTP surface of the Snoezelen projection
// engine: status, settings, recordings, the output stream and the remote
// control channel.
package server

import (
	"encoding/json"
	"image"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ayusman/snoezelen/internal/app"
	"github.com/ayusman/snoezelen/internal/detector"
	"github.com/ayusman/snoezelen/internal/remote"
	"github.com/ayusman/snoezelen/internal/server/api"
	"github.com/ayusman/snoezelen/internal/store"
)

// Engine is the part of app.Engine the server exposes.
type Engine interface {
	api.SettingsService
	api.RecordingService
	FrameSource
	Status() app.Status
	Keypoints() []detector.Keypoint
}

// FrameSource provides the latest composited frames.
type FrameSource interface {
	Output() *image.RGBA
	Preview() *image.RGBA
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Engine    Engine
	Hub       *remote.Hub
}

// Server represents the HTTP server for the Snoezelen application.
type Server struct {
	config    Config
	router    *mux.Router
	start     time.Time
	keypoints *KeypointsHandler
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		router: mux.NewRouter(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/health", s.handleHealth)

	if s.config.Engine != nil {
		s.router.HandleFunc("/api/status", s.handleStatus)

		settingsHandler := api.NewSettingsHandler(s.config.Engine)
		s.router.Handle("/api/settings", settingsHandler)
		s.router.PathPrefix("/api/settings/").Handler(settingsHandler)
		s.router.PathPrefix("/api/recording/").Handler(api.NewRecordingHandler(s.config.Engine))

		s.router.Handle("/api/stream", NewStreamHandler(s.config.Engine))

		s.keypoints = NewKeypointsHandler(s.config.Engine)
		s.router.Handle("/api/keypoints", s.keypoints)
	}

	if s.config.Store != nil {
		sessionsHandler := api.NewSessionsHandler(s.config.Store)
		s.router.Handle("/api/sessions", sessionsHandler)
		s.router.PathPrefix("/api/sessions/").Handler(sessionsHandler)
	}

	if s.config.Hub != nil {
		s.router.Handle("/api/remote", s.config.Hub)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.router.PathPrefix("/").Handler(fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	writeJSON(w, response)
}

// handleStatus handles GET requests to /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.config.Engine.Status())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// Close stops background broadcasters.
func (s *Server) Close() {
	if s.keypoints != nil {
		s.keypoints.Close()
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
