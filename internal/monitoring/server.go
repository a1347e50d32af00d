package monitoring

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the metrics registry over HTTP.
type Server struct {
	metrics *Metrics
	server  *http.Server
}

// NewServer creates a monitoring server listening on addr (e.g. ":9090").
func NewServer(metrics *Metrics, addr string) *Server {
	mux := http.NewServeMux()

	server := &Server{
		metrics: metrics,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second, //nolint:mnd // Standard timeout value
		},
	}

	mux.Handle("/metrics", server.Handler())
	mux.HandleFunc("/health", server.handleHealth)

	return server
}

// Handler serves the registry in the prometheus exposition format.
func (ms *Server) Handler() http.Handler {
	return promhttp.HandlerFor(ms.metrics.Gatherer(), promhttp.HandlerOpts{})
}

// Addr returns the configured listen address.
func (ms *Server) Addr() string {
	return ms.server.Addr
}

// Start starts the monitoring server. It blocks until the server stops.
func (ms *Server) Start() error {
	if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("monitoring server: %w", err)
	}
	return nil
}

// Stop stops the monitoring server.
func (ms *Server) Stop() error {
	return ms.server.Close()
}

// handleHealth serves the health check endpoint.
func (ms *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode health status", http.StatusInternalServerError)
		return
	}
}
