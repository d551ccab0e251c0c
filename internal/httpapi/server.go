package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/docvoice/internal/catalog"
	"github.com/ent0n29/docvoice/internal/config"
	"github.com/ent0n29/docvoice/internal/jobs"
	"github.com/ent0n29/docvoice/internal/observability"
	"github.com/ent0n29/docvoice/internal/session"
	"github.com/ent0n29/docvoice/internal/telegram"
)

// Telegram caps a single update well below this.
const maxWebhookBodyBytes = 1 << 20

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	webhook  *telegram.Webhook
	catalog  *catalog.Catalog
	metrics  *observability.Metrics
	logger   *slog.Logger
}

func New(cfg config.Config, sessions *session.Manager, webhook *telegram.Webhook, cat *catalog.Catalog, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		webhook:  webhook,
		catalog:  cat,
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/webhook", s.handleWebhook)
	r.Get("/v1/voices", s.handleListVoices)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"storage_backend": s.cfg.StorageBackend,
		"job_store":       jobs.ResolveBackend(s.cfg.JobStore, s.cfg.DatabaseURL),
	})
}

// handleWebhook processes one Telegram update before replying. Anything other
// than a bad secret is acknowledged with 200.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhook == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "webhook not configured")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		s.metrics.ObserveWebhookUpdate("malformed")
		s.logger.Warn("webhook body unreadable", "err", err)
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	// The session work must finish even if Telegram hangs up early.
	ctx := context.WithoutCancel(r.Context())
	if err := s.webhook.Receive(ctx, r.Header.Get(telegram.SecretTokenHeader), body); err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
