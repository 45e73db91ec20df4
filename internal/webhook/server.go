// Package webhook runs the inbound HTTP listener for ticketing status
// callbacks. The callback only nudges the tracker to re-check a ticket;
// the ticketing backend stays the source of truth for states, so a lost
// or duplicated callback costs nothing but latency.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/chatdesk/chatdesk/internal/config"
	"github.com/chatdesk/chatdesk/internal/database"
	"github.com/chatdesk/chatdesk/internal/pipeline"
)

const shutdownTimeout = 10 * time.Second

// Server is the status-callback HTTP server.
type Server struct {
	httpServer *http.Server
	tracker    *pipeline.Tracker
	store      database.Store
	logger     *slog.Logger
}

// NewServer creates the webhook server.
func NewServer(cfg config.WebhookConfig, tracker *pipeline.Tracker, store database.Store, logger *slog.Logger) *Server {
	s := &Server{
		tracker: tracker,
		store:   store,
		logger:  logger.With("component", "webhook_server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /hooks/ticket-status", s.handleTicketStatus)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Webhook server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down webhook server...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Webhook server shutdown failed", "error", err)
		return err
	}
	return <-errCh
}

// statusCallback is the payload the ticketing backend's business rule
// sends on incident updates.
type statusCallback struct {
	SysID  string `json:"sys_id"`
	Number string `json:"number"`
	State  string `json:"state"`
}

func (s *Server) handleTicketStatus(w http.ResponseWriter, r *http.Request) {
	var payload statusCallback
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.logger.WarnContext(r.Context(), "Rejected malformed status callback", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if payload.SysID == "" {
		http.Error(w, "sys_id is required", http.StatusBadRequest)
		return
	}

	s.logger.InfoContext(r.Context(), "Received ticket status callback",
		"ticket_id", payload.SysID, "number", payload.Number, "state", payload.State)

	if err := s.tracker.CheckTicket(r.Context(), payload.SysID); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to process status callback",
			"ticket_id", payload.SysID, "error", err)
		http.Error(w, "callback processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
