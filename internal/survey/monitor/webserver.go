// Package monitor provides the operational listener for the survey service:
// a status page, Prometheus metrics, fleet statistics, debug chart pages,
// and post-run plot generation. It binds separately from the upload API so
// operators can firewall it independently.
package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"tailscale.com/tsweb"

	"github.com/pavescan-data/surface.report/internal/config"
	"github.com/pavescan-data/surface.report/internal/metrics"
	"github.com/pavescan-data/surface.report/internal/survey"
	"github.com/pavescan-data/surface.report/internal/version"
)

//go:embed status.html
var statusHTML embed.FS

// WebServer handles the HTTP interface for monitoring survey processing.
// It provides endpoints for health checks, job and fleet statistics, and
// debugging charts.
type WebServer struct {
	address  string
	statuses *survey.StatusStore
	results  *survey.ResultStore
	metrics  *metrics.Metrics
	fleet    *FleetStats
	tuning   *config.TuningConfig
	server   *http.Server
}

// WebServerConfig contains configuration options for the monitor server.
type WebServerConfig struct {
	Address  string
	Statuses *survey.StatusStore
	Results  *survey.ResultStore
	Metrics  *metrics.Metrics
	Fleet    *FleetStats
	Tuning   *config.TuningConfig
}

// NewWebServer creates a monitor server with the provided configuration.
func NewWebServer(cfg WebServerConfig) *WebServer {
	ws := &WebServer{
		address:  cfg.Address,
		statuses: cfg.Statuses,
		results:  cfg.Results,
		metrics:  cfg.Metrics,
		fleet:    cfg.Fleet,
		tuning:   cfg.Tuning,
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
// when the context is cancelled.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting monitor server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start monitor server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down monitor server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("monitor server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("monitor server force close error: %v", err)
		}
	}

	log.Printf("monitor server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.Handle("/metrics", ws.metrics.Handler())
	mux.HandleFunc("/api/jobs", ws.handleJobs)
	mux.HandleFunc("/api/stats", ws.handleStats)
	mux.HandleFunc("/charts/jobs", ws.handleJobsChart)

	debug := tsweb.Debugger(mux)
	debug.Handle("jobs", "Dump job statuses", http.HandlerFunc(ws.handleJobs))
	debug.Handle("tuning", "Resolved tuning values", http.HandlerFunc(ws.handleTuning))

	return mux
}

// handleHealth handles the health check endpoint.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "survey-monitor", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus handles the main status page endpoint.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	tmpl, err := template.ParseFS(statusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	data := struct {
		Address   string
		Version   string
		Uptime    string
		Known     int
		Active    int64
		Completed uint64
		Failed    uint64
		Rejected  uint64
		Frames    uint64
		Listeners int64
		Stats     StatsSnapshot
	}{
		Address:   ws.address,
		Version:   version.String(),
		Uptime:    ws.fleet.Uptime().Round(time.Second).String(),
		Known:     ws.statuses.Len(),
		Active:    ws.metrics.JobsActive.Load(),
		Completed: ws.metrics.JobsCompleted.Load(),
		Failed:    ws.metrics.JobsFailed.Load(),
		Rejected:  ws.metrics.JobsRejected.Load(),
		Frames:    ws.metrics.FramesProcessed.Load(),
		Listeners: ws.metrics.ListenersActive.Load(),
		Stats:     ws.fleet.Snapshot(),
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// handleJobs returns every known job with its current status.
func (ws *WebServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	type jobEntry struct {
		VideoID  string `json:"video_id"`
		Status   string `json:"status"`
		Progress int    `json:"progress"`
		Message  string `json:"message"`
	}

	ids := ws.statuses.IDs()
	entries := make([]jobEntry, 0, len(ids))
	for _, id := range ids {
		st, ok := ws.statuses.Get(id)
		if !ok {
			continue
		}
		entries = append(entries, jobEntry{
			VideoID:  id,
			Status:   st.Status,
			Progress: st.Progress,
			Message:  st.Message,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// handleStats returns the fleet statistics snapshot.
func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.fleet == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no fleet statistics available")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ws.fleet.Snapshot())
}

// handleTuning returns the resolved tuning values, defaults filled in.
func (ws *WebServer) handleTuning(w http.ResponseWriter, r *http.Request) {
	if ws.tuning == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no tuning config loaded")
		return
	}

	resolved := map[string]interface{}{
		"frame_step":            ws.tuning.GetFrameStep(),
		"max_stored_frames":     ws.tuning.GetMaxStoredFrames(),
		"worker_count":          ws.tuning.GetWorkerCount(),
		"queue_size":            ws.tuning.GetQueueSize(),
		"progress_step":         ws.tuning.GetProgressStep(),
		"attach_pause":          ws.tuning.GetAttachPause().String(),
		"track_history_size":    ws.tuning.GetTrackHistorySize(),
		"min_detection_frames":  ws.tuning.GetMinDetectionFrames(),
		"detection_time_window": ws.tuning.GetDetectionTimeWindow(),
		"heartbeat_interval":    ws.tuning.GetHeartbeatInterval().String(),
		"send_timeout":          ws.tuning.GetSendTimeout().String(),
		"default_speed_kmh":     ws.tuning.GetDefaultSpeedKMH(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resolved)
}

// Close shuts down the web server.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
