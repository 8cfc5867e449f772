package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"FlowGuard/internal/classifier"
	"FlowGuard/internal/engine/manager"
	"FlowGuard/internal/model"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultRecent = 50
	maxRecent     = 500
)

// Controller is the capture lifecycle the HTTP surface drives.
type Controller interface {
	Start(iface string) error
	Stop()
	Status() manager.Status
	Recent(n int) []model.Event
	Stats() map[string]int
}

// Server exposes the capture lifecycle, model selection, live events and
// metrics over HTTP.
type Server struct {
	ctrl    Controller
	adapter *classifier.Adapter
	hub     http.Handler
	reg     *prometheus.Registry
	router  *mux.Router
}

// NewServer wires the routes. hub and reg may be nil, in which case /ws and
// /metrics are not registered.
func NewServer(ctrl Controller, adapter *classifier.Adapter, hub http.Handler, reg *prometheus.Registry) *Server {
	s := &Server{ctrl: ctrl, adapter: adapter, hub: hub, reg: reg, router: mux.NewRouter()}

	r := s.router
	r.HandleFunc("/api/live/start", s.handleStart).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/api/live/stop", s.handleStop).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/api/live/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/live/recent", s.handleRecent).Methods(http.MethodGet)
	r.HandleFunc("/api/live/stats", s.handleStats).Methods(http.MethodGet)

	r.HandleFunc("/api/ml/active", s.handleActive).Methods(http.MethodGet)
	r.HandleFunc("/api/ml/select", s.handleSelect).Methods(http.MethodPost)
	r.HandleFunc("/api/ml/health", s.handleHealth).Methods(http.MethodGet)

	if hub != nil {
		s.router.Handle("/ws", hub)
	}
	if reg != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("HTTP server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	log.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	iface := r.URL.Query().Get("iface")
	if err := s.ctrl.Start(iface); err != nil {
		log.WithError(err).WithField("iface", iface).Error("Failed to start capture")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Stop()
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	n := defaultRecent
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid n %q", raw))
			return
		}
		n = v
	}
	if n > maxRecent {
		n = maxRecent
	}
	items := s.ctrl.Recent(n)
	if items == nil {
		items = []model.Event{}
	}
	writeJSON(w, http.StatusOK, model.Batch{Count: len(items), Items: items})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"model": s.adapter.Selector().Active(),
		"stats": s.ctrl.Stats(),
	})
}

func (s *Server) handleActive(w http.ResponseWriter, _ *http.Request) {
	sel := s.adapter.Selector()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":   sel.Active(),
		"mode":     sel.ActiveMode(),
		"variants": sel.Variants(),
	})
}

type selectRequest struct {
	Model string `json:"model"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	req := selectRequest{Model: r.URL.Query().Get("model")}
	if req.Model == "" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}
	if err := s.adapter.Selector().Select(req.Model); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, classifier.ErrUnknownModel) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	log.WithField("model", req.Model).Info("Active model switched")
	s.handleActive(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.adapter.Health(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
