package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"can-session-logger/internal/session"
)

// Server represents the HTTP API server
type Server struct {
	server     *http.Server
	logger     *log.Logger
	sessionAPI *SessionAPI
	analysis   *AnalysisAPI
}

// ServerConfig holds API server configuration
type ServerConfig struct {
	Port             int
	DefaultTopN      int
	PeriodicInterval time.Duration
	Logger           *log.Logger
}

// NewServer creates a new API server instance around a session controller
func NewServer(config ServerConfig, ctrl *session.Controller) *Server {
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	if config.DefaultTopN == 0 {
		config.DefaultTopN = 10
	}
	if config.PeriodicInterval <= 0 {
		config.PeriodicInterval = session.DefaultPeriodicInterval
	}

	server := &Server{
		logger:     logger,
		sessionAPI: NewSessionAPI(ctrl, config.PeriodicInterval),
		analysis:   NewAnalysisAPI(ctrl, config.DefaultTopN),
	}

	// Setup HTTP router
	mux := http.NewServeMux()
	server.setupRoutes(mux)

	// Create HTTP server
	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      loggingMiddleware(logger, corsMiddleware(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Root endpoint
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)

	// Session control
	mux.HandleFunc("/api/session", s.sessionAPI.GetStatus)
	mux.HandleFunc("/api/session/logging", s.sessionAPI.ToggleLogging)
	mux.HandleFunc("/api/session/periodic", s.sessionAPI.TogglePeriodic)
	mux.HandleFunc("/api/session/send", s.sessionAPI.Send)

	// Log analysis
	mux.HandleFunc("/api/analysis/summary", s.analysis.GetSummary)
	mux.HandleFunc("/api/analysis/messages", s.analysis.GetMessages)
	mux.HandleFunc("/api/analysis/frequency", s.analysis.GetFrequency)
}

// Handler returns the routed handler, middleware included
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// handleRoot returns API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	info := map[string]any{
		"name":    "CAN Session Logger API",
		"version": "1.0.0",
		"endpoints": map[string]any{
			"health": "/health",
			"session": map[string]string{
				"status":   "/api/session",
				"logging":  "POST /api/session/logging - toggles frame logging",
				"periodic": "POST /api/session/periodic?interval_ms=100 - toggles the periodic test sender",
				"send":     "POST /api/session/send (body: {can_id, data, extended}; empty body sends the next test frame)",
			},
			"analysis": map[string]string{
				"note":      "every analysis request switches logging off first",
				"summary":   "/api/analysis/summary",
				"messages":  "/api/analysis/messages?can_id=0x100&limit=100&offset=0",
				"frequency": "/api/analysis/frequency?top_n=10",
			},
		},
	}

	respondWithJSON(w, http.StatusOK, info)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	busState := "disconnected"
	if s.sessionAPI.ctrl.State().Connected() {
		busState = "connected"
	}

	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now(),
		"services": map[string]string{
			"api": "up",
			"bus": busState,
		},
	}

	respondWithJSON(w, http.StatusOK, health)
}

// Start starts the API server. It returns http.ErrServerClosed after Stop.
func (s *Server) Start() error {
	s.logger.Printf("Starting HTTP API server on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Println("Stopping API server...")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Log request
		logger.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)

		// Call next handler
		next.ServeHTTP(w, r)

		// Log duration
		logger.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
