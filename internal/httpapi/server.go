package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/linerelay/internal/line"
	"github.com/antoniostano/linerelay/internal/observability"
)

// WebhookParser verifies and decodes a platform webhook request.
type WebhookParser interface {
	ParseRequest(r *http.Request) ([]line.Event, error)
}

// EventSink accepts verified events for asynchronous processing.
type EventSink interface {
	Dispatch(events ...line.Event)
}

// HistoryStatus is the part of the history store readiness reports on.
type HistoryStatus interface {
	BackendName() string
	Active() int
}

type Server struct {
	parser  WebhookParser
	sink    EventSink
	history HistoryStatus
	metrics *observability.Metrics
	logger  *slog.Logger
}

func New(parser WebhookParser, sink EventSink, history HistoryStatus, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		parser:  parser,
		sink:    sink,
		history: history,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/", s.handleWebhook)
	r.Post("/callback", s.handleWebhook)

	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", s.metrics.Handler())
	return r
}

// handleWebhook acknowledges every verified delivery with 200 before any
// event is processed; reply outcomes never change the status code.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	events, err := s.parser.ParseRequest(r)
	switch {
	case errors.Is(err, line.ErrInvalidSignature):
		s.metrics.ObserveWebhook("invalid_signature")
		s.logger.Warn("webhook rejected", "reason", "invalid signature", "remote", r.RemoteAddr)
		respondError(w, http.StatusBadRequest, "invalid_signature", "invalid signature")
		return
	case err != nil:
		s.metrics.ObserveWebhook("invalid_request")
		s.logger.Warn("webhook rejected", "reason", "malformed body", "error", err)
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed webhook body")
		return
	}

	s.metrics.ObserveWebhook("accepted")
	if len(events) > 0 {
		s.sink.Dispatch(events...)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ready"}
	if s.history != nil {
		body["history_backend"] = s.history.BackendName()
		body["active_users"] = s.history.Active()
	}
	respondJSON(w, http.StatusOK, body)
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
