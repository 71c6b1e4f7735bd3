// Package server exposes a local status API for a running dictation session:
// a health probe, a JSON stats snapshot, and the Prometheus scrape endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yujixr/stream-scribe/internal/config"
	"github.com/yujixr/stream-scribe/internal/pipeline"
)

// HTTPServer serves the monitoring endpoints.
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	pipe      *pipeline.Pipeline
	startTime time.Time
}

// NewHTTPServer creates the status server.
func NewHTTPServer(cfg config.HTTPConfig, pipe *pipeline.Pipeline, logger *slog.Logger) *HTTPServer {
	h := &HTTPServer{
		logger:    logger,
		pipe:      pipe,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/stats", h.handleStats)
	mux.Handle("/metrics", promhttp.Handler())

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return h
}

// Start begins serving in a background goroutine.
func (h *HTTPServer) Start() {
	go func() {
		h.logger.Info("status server listening", slog.String("addr", h.server.Addr))
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("status server failed", slog.String("error", err.Error()))
		}
	}()
}

// Stop shuts the server down gracefully.
func (h *HTTPServer) Stop(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	})
}

func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipe.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
