package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
	"github.com/sharma-sourabh3435/promptqueue/internal/scheduler"
	"github.com/sharma-sourabh3435/promptqueue/internal/signals"
)

// Server represents the API server
type Server struct {
	scheduler *scheduler.Scheduler
	bus       *signals.Bus
	hub       *EventHub
	logger    arbor.ILogger
	validate  *validator.Validate
	handler   http.Handler
	server    *http.Server
}

// NewServer creates a new API server instance
func NewServer(sched *scheduler.Scheduler, bus *signals.Bus, hub *EventHub, addr string, logger arbor.ILogger) *Server {
	s := &Server{
		scheduler: sched,
		bus:       bus,
		hub:       hub,
		logger:    logger,
		validate:  validator.New(),
	}

	mux := http.NewServeMux()

	// Session endpoints
	mux.HandleFunc("/sessions", s.loggingMiddleware(s.handleCreateSession))
	mux.HandleFunc("/session", s.loggingMiddleware(s.handleSession))
	mux.HandleFunc("/session/", s.loggingMiddleware(s.handleSessionAction))

	// Worker and job endpoints
	mux.HandleFunc("/workers/", s.loggingMiddleware(s.handleWorkerAction))
	mux.HandleFunc("/jobs/", s.loggingMiddleware(s.handleJobAction))

	// Observer endpoints
	mux.HandleFunc("/signals", s.loggingMiddleware(s.handleSignal))
	mux.HandleFunc("/signals/ws", s.handleSignalSocket)
	mux.HandleFunc("/channels/", s.loggingMiddleware(s.handleChannel))

	// Operator feed
	if hub != nil {
		mux.HandleFunc("/events/ws", hub.HandleWebSocket)
	}
	mux.HandleFunc("/health", s.handleHealth)

	s.handler = s.corsMiddleware(mux)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down API server...")
	if s.hub != nil {
		s.hub.Close()
	}
	return s.server.Shutdown(ctx)
}

// Middleware: CORS
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Middleware: Logging
func (s *Server) loggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("elapsed", time.Since(start).String()).
			Msg("Request completed")
	}
}

// Helper: JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// Helper: Error response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// Helper: map scheduler errors onto status codes
func (s *Server) schedulerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, scheduler.ErrNoSession),
		errors.Is(err, scheduler.ErrWorkerNotFound),
		errors.Is(err, scheduler.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, scheduler.ErrSessionExists),
		errors.Is(err, scheduler.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, scheduler.ErrNoPrompts),
		errors.Is(err, scheduler.ErrInvalidWorkerCount),
		errors.Is(err, scheduler.ErrUnknownSignal):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("Request failed")
	}
	s.errorResponse(w, status, err.Error())
}

// Helper: decode and validate a request body
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// Handler: Create session (POST /sessions)
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.CreateSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Mode == models.ModeParallel && req.WorkerCount == 0 {
		s.errorResponse(w, http.StatusBadRequest, "worker_count is required in parallel mode")
		return
	}

	session, err := s.scheduler.CreateSession(r.Context(), req)
	if err != nil {
		s.schedulerError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, session)
}

// Handler: Session (GET /session, DELETE /session)
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Get("view") == "summary" {
			summary, err := s.scheduler.Summary()
			if err != nil {
				s.schedulerError(w, err)
				return
			}
			s.jsonResponse(w, http.StatusOK, summary)
			return
		}
		session, err := s.scheduler.Snapshot()
		if err != nil {
			s.schedulerError(w, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, session)
	case http.MethodDelete:
		if err := s.scheduler.Clear(r.Context()); err != nil {
			s.schedulerError(w, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, map[string]string{"status": "cleared"})
	default:
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// Handler: Session actions (POST /session/{start|pause|reset})
func (s *Server) handleSessionAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var err error
	switch action := strings.TrimPrefix(r.URL.Path, "/session/"); action {
	case "start":
		err = s.scheduler.Start(r.Context())
	case "pause":
		err = s.scheduler.Pause(r.Context())
	case "reset":
		err = s.scheduler.ResetSession(r.Context())
	default:
		s.errorResponse(w, http.StatusNotFound, "Unknown session action")
		return
	}
	if err != nil {
		s.schedulerError(w, err)
		return
	}

	summary, err := s.scheduler.Summary()
	if err != nil {
		s.schedulerError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, summary)
}

// Handler: Worker actions (POST /workers/{id}/{pause|resume|reset})
func (s *Server) handleWorkerAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/workers/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		s.errorResponse(w, http.StatusBadRequest, "Worker ID and action required")
		return
	}
	workerID := parts[0]

	var err error
	switch parts[1] {
	case "pause":
		err = s.scheduler.PauseWorker(r.Context(), workerID)
	case "resume":
		err = s.scheduler.ResumeWorker(r.Context(), workerID)
	case "reset":
		err = s.scheduler.ResetWorker(r.Context(), workerID)
	default:
		s.errorResponse(w, http.StatusNotFound, "Unknown worker action")
		return
	}
	if err != nil {
		s.schedulerError(w, err)
		return
	}

	s.logger.Info().Str("worker_id", workerID).Str("action", parts[1]).Msg("Worker action applied")
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Handler: Job actions (POST /jobs/{id}/{retry|reset}, POST /jobs/retry-failed, GET /jobs/failed)
func (s *Server) handleJobAction(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/jobs/")

	switch path {
	case "failed":
		if r.Method != http.MethodGet {
			s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		failed, err := s.scheduler.FailedJobs()
		if err != nil {
			s.schedulerError(w, err)
			return
		}
		if r.URL.Query().Get("format") == "text" {
			prompts := make([]string, len(failed))
			for i, f := range failed {
				prompts[i] = f.Prompt
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(strings.Join(prompts, "\n")))
			return
		}
		s.jsonResponse(w, http.StatusOK, failed)
		return
	case "retry-failed":
		if r.Method != http.MethodPost {
			s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		count, err := s.scheduler.RetryFailed(r.Context())
		if err != nil {
			s.schedulerError(w, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, map[string]int{"requeued": count})
		return
	}

	if r.Method != http.MethodPost {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		s.errorResponse(w, http.StatusBadRequest, "Job ID and action required")
		return
	}
	jobID := parts[0]

	var err error
	switch parts[1] {
	case "retry":
		err = s.scheduler.RetryJob(r.Context(), jobID)
	case "reset":
		err = s.scheduler.ResetJob(r.Context(), jobID)
	default:
		s.errorResponse(w, http.StatusNotFound, "Unknown job action")
		return
	}
	if err != nil {
		s.schedulerError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Handler: Signal (POST /signals)
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var signal models.Signal
	if err := json.NewDecoder(r.Body).Decode(&signal); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	accepted, err := s.bus.Publish(r.Context(), signal, "http")
	if err != nil {
		if !accepted {
			s.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		s.schedulerError(w, err)
		return
	}

	status := "accepted"
	if !accepted {
		status = "duplicate"
	}
	s.jsonResponse(w, http.StatusAccepted, map[string]string{"status": status})
}

// Handler: Channels (POST /channels/attach, POST /channels/{id}/closed)
func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/channels/")
	if path == "attach" {
		var req models.AttachChannelRequest
		if !s.decode(w, r, &req) {
			return
		}
		if err := s.scheduler.AttachChannel(r.Context(), req.WorkerIndex, req.ChannelID); err != nil {
			s.schedulerError(w, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, map[string]string{"status": "attached"})
		return
	}

	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "closed" {
		s.errorResponse(w, http.StatusNotFound, "Unknown channel action")
		return
	}
	if err := s.scheduler.ChannelClosed(r.Context(), parts[0]); err != nil {
		s.schedulerError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "detached"})
}

// Handler: Health (GET /health)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats := s.scheduler.GetStats()
	stats["status"] = "ok"
	if s.hub != nil {
		stats["event_clients"] = s.hub.ClientCount()
	}
	s.jsonResponse(w, http.StatusOK, stats)
}
