// Package httpapi serves the webhook endpoint and the management API on one
// listener.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"linebell/internal/directory"
	"linebell/internal/dispatch"
	"linebell/internal/jobs"
	"linebell/internal/runtime/supervisor"
	"linebell/internal/transport"
	logx "linebell/pkg/logx"
)

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// ReplyEnabled gates the webhook echo reply; the webhook still accepts
	// and acknowledges events when it is off.
	ReplyEnabled bool
	// ChannelSecret enables webhook signature validation when non-empty.
	ChannelSecret string
}

type Server struct {
	cfg     Config
	jobs    *jobs.Service
	dir     *directory.Directory
	disp    *dispatch.Service
	replier transport.Replier
	sup     *supervisor.Supervisor
	log     logx.Logger

	srv *http.Server
}

func New(cfg Config, js *jobs.Service, dir *directory.Directory, disp *dispatch.Service, replier transport.Replier, sup *supervisor.Supervisor, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":3000"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		cfg:     cfg,
		jobs:    js,
		dir:     dir,
		disp:    disp,
		replier: replier,
		sup:     sup,
		log:     log,
	}
	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// SetSupervisor attaches the supervisor whose counters /api/status reports.
// Call before Serve.
func (s *Server) SetSupervisor(sup *supervisor.Supervisor) { s.sup = sup }

// Handler builds the route table. Exposed so tests can drive it with
// httptest without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("POST /api/jobs", s.handleCreateJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleDeleteJob)
	mux.HandleFunc("PATCH /api/jobs/{id}", s.handleEditJob)
	mux.HandleFunc("GET /api/recipients", s.handleListRecipients)
	mux.HandleFunc("POST /api/recipients", s.handleRegisterRecipient)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	return mux
}

// Serve blocks until the listener fails or Shutdown is called.
func (s *Server) Serve() error {
	s.log.Info("http server listening", logx.String("addr", s.cfg.Addr))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// ---- response helpers ----

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Error string `json:"error"`
}

// writeErr maps domain errors onto status codes: validation 400, unknown id
// 404, everything else (persistence included) 500.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	switch {
	case jobs.IsValidation(err), errors.Is(err, directory.ErrEmptyName):
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
	case errors.Is(err, jobs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, apiError{Error: err.Error()})
	default:
		s.log.Error("request failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
	}
}
