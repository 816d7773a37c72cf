// Package api exposes a small admin HTTP interface for PawPulse:
// health, the known user list, per-user check-in history, and a manual
// fire of the daily survey.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/PawPulse/PawPulse/internal/models"
	"github.com/PawPulse/PawPulse/internal/store"
)

// DefaultAddr is the default listen address for the admin API.
const DefaultAddr = ":8080"

// historyLimit mirrors the /history command: last 10, most recent first.
const historyLimit = 10

// FireFunc triggers the daily survey for all users immediately.
type FireFunc func(ctx context.Context)

// Server serves the admin endpoints.
type Server struct {
	store   store.UserStore
	fire    FireFunc
	addr    string
	webhook http.HandlerFunc
}

// Opts holds configuration options for the admin API server.
type Opts struct {
	Addr    string
	Webhook http.HandlerFunc
}

// Option defines a configuration option for the admin API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithInboundWebhook mounts a transport webhook at POST /webhook/inbound.
func WithInboundWebhook(handler http.HandlerFunc) Option {
	return func(o *Opts) {
		o.Webhook = handler
	}
}

// NewServer creates an admin API server over the given store.
func NewServer(st store.UserStore, fire FireFunc, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{store: st, fire: fire, addr: cfg.Addr, webhook: cfg.Webhook}
}

// Router builds the chi router with all admin routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Get("/users", s.handleUsers)
	r.Get("/users/{id}/history", s.handleHistory)
	r.Post("/fire", s.handleFire)
	if s.webhook != nil {
		r.Post("/webhook/inbound", s.webhook)
	}
	return r
}

// Run serves the API until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("API shutdown failed", "error", err)
		}
	}()

	slog.Info("API server listening", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{"service": "pawpulse"})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.AllIDs()
	if err != nil {
		slog.Error("API failed to list users", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeOK(w, ids)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.store.Get(id)
	if errors.Is(err, models.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		slog.Error("API failed to load user", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	surveys := rec.Surveys
	if len(surveys) > historyLimit {
		surveys = surveys[len(surveys)-historyLimit:]
	}
	// Most recent first, matching the /history command.
	out := make([]models.SurveyRecord, 0, len(surveys))
	for i := len(surveys) - 1; i >= 0; i-- {
		out = append(out, surveys[i])
	}
	writeOK(w, out)
}

func (s *Server) handleFire(w http.ResponseWriter, r *http.Request) {
	slog.Info("API manual fire requested")
	go s.fire(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusAccepted, APIResponse{Status: "ok", Message: "daily survey fire started"})
}
