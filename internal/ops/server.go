package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"bubble-ledger-go/internal/database"
	"bubble-ledger-go/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Ledger is the part of the ledger service the ops server exposes.
type Ledger interface {
	HealthCheck(ctx context.Context) error
	Reconcile(ctx context.Context) (*models.ReconcileReport, error)
	AcknowledgeDelivery(ctx context.Context, eventId string, delivered bool, detail string) error
}

// Server serves health, metrics, reconciliation and the notification delivery-status callback.
type Server struct {
	router *chi.Mux
	ledger Ledger
	srv    *http.Server
}

type ackRequest struct {
	Delivered bool   `json:"delivered"`
	Detail    string `json:"detail"`
}

type reconcileResponse struct {
	*models.ReconcileReport
	Held     int64 `json:"held"`
	Balanced bool  `json:"balanced"`
}

func NewServer(addr string, ledger Ledger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		ledger: ledger,
	}

	s.setupRoutes()

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/reconcile", s.handleReconcile)
	s.router.Post("/outbox/{id}/ack", s.handleAck)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	zap.L().Info("Starting ops server", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	zap.L().Info("Shutting down ops server")
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.HealthCheck(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.Reconcile(r.Context())
	if err != nil {
		zap.L().Error("Reconcile failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, reconcileResponse{
		ReconcileReport: report,
		Held:            report.Held(),
		Balanced:        report.Balanced(),
	})
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	eventId := chi.URLParam(r, "id")

	var req ackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.ledger.AcknowledgeDelivery(r.Context(), eventId, req.Delivered, req.Detail); err != nil {
		if errors.Is(err, database.ErrEventNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		zap.L().Error("Failed to acknowledge delivery", zap.String("event_id", eventId), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("Failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
