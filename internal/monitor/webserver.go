// Package monitor serves the sifter's HTTP status, metrics and debug pages.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/tsweb"

	"github.com/chord-frb/sifter/internal/db"
	"github.com/chord-frb/sifter/internal/frb/exposure"
	"github.com/chord-frb/sifter/internal/frb/pipeline"
)

// StatusSource is the pipeline state the web server reports on.
// *pipeline.Runtime implements it.
type StatusSource interface {
	Snapshot() pipeline.Snapshot
	Exposure() (*exposure.Grid, string)
}

// WebServer handles the HTTP interface for monitoring the sifter.
type WebServer struct {
	address string
	source  StatusSource
	db      *db.DB
	server  *http.Server
	mux     *http.ServeMux
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Source  StatusSource
	DB      *db.DB // optional event store
}

// NewWebServer creates a web server with its routes attached.
func NewWebServer(config WebServerConfig) (*WebServer, error) {
	ws := &WebServer{
		address: config.Address,
		source:  config.Source,
		db:      config.DB,
	}
	mux, err := ws.setupRoutes()
	if err != nil {
		return nil, err
	}
	ws.mux = mux
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ws, nil
}

// Handler returns the root handler of the server.
func (ws *WebServer) Handler() http.Handler { return ws.mux }

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Start serves until ctx is cancelled, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and the tsweb debug index.
func (ws *WebServer) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/status", ws.handleStatus)

	debug := tsweb.Debugger(mux)
	debug.Handle("liveness", "Frame assembler liveness sets (JSON)", http.HandlerFunc(ws.handleLiveness))
	debug.Handle("activity", "Activity lookback chart", http.HandlerFunc(ws.handleActivityChart))
	debug.Handle("exposure.png", "Today's exposure grid", http.HandlerFunc(ws.handleExposurePNG))

	if ws.db != nil {
		mux.HandleFunc("/api/events", ws.handleEvents)
		if err := ws.db.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "sifter", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ws.source.Snapshot())
}

func (ws *WebServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ws.source.Snapshot().Liveness)
}

// handleEvents returns recent events from the store.
// Query params:
//
//	limit (optional, default 50)
func (ws *WebServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			ws.writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	events, err := ws.db.RecentEvents(r.Context(), limit)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, events)
}

func (ws *WebServer) handleExposurePNG(w http.ResponseWriter, r *http.Request) {
	grid, date := ws.source.Exposure()
	if grid == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no exposure grid")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := exposure.WritePNG(w, grid, "Exposure "+date); err != nil {
		log.Printf("exposure plot failed: %v", err)
	}
}

// Close shuts down the web server immediately.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
