// Package api implements the public HTTP surface of the survey service:
// video upload, status and results queries, and the per-job WebSocket
// live channel. Handlers stay thin; admission, processing, and event
// routing live in the pipeline and live packages.
package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/pavescan-data/surface.report/internal/config"
	"github.com/pavescan-data/surface.report/internal/fsutil"
	"github.com/pavescan-data/surface.report/internal/httputil"
	"github.com/pavescan-data/surface.report/internal/metrics"
	"github.com/pavescan-data/surface.report/internal/survey"
	"github.com/pavescan-data/surface.report/internal/survey/live"
	"github.com/pavescan-data/surface.report/internal/survey/pipeline"
	"github.com/pavescan-data/surface.report/internal/timeutil"
	"github.com/pavescan-data/surface.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Submitter admits jobs into the processing pool. Implemented by
// pipeline.Runner; tests substitute their own.
type Submitter interface {
	Submit(job pipeline.Job) bool
	QueueDepth() int
}

// HealthChecker is implemented by detectors that can probe their backing
// model (the remote inference client does). Detectors without it are
// considered ready once constructed.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Config carries the collaborators and settings for a Server. FS and Clock
// default to the real implementations; Tuning to the built-in defaults.
type Config struct {
	Runner   Submitter
	Statuses *survey.StatusStore
	Results  *survey.ResultStore
	Hub      *live.Hub
	Metrics  *metrics.Metrics

	// UploadDir is where raw videos land before processing.
	UploadDir string

	// Detector is only consulted for health reporting; the pipeline holds
	// its own reference. May be nil when no detector is configured.
	Detector interface{}

	FS     fsutil.FileSystem
	Clock  timeutil.Clock
	Tuning *config.TuningConfig
}

type Server struct {
	runner   Submitter
	statuses *survey.StatusStore
	results  *survey.ResultStore
	hub      *live.Hub
	metrics  *metrics.Metrics

	uploadDir string
	detector  interface{}

	fs    fsutil.FileSystem
	clock timeutil.Clock

	defaultSpeedKMH int
	attachPause     time.Duration
	heartbeat       time.Duration
	sendTimeout     time.Duration
}

func NewServer(cfg Config) *Server {
	if cfg.FS == nil {
		cfg.FS = fsutil.OSFileSystem{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Tuning == nil {
		cfg.Tuning = config.EmptyTuningConfig()
	}
	return &Server{
		runner:          cfg.Runner,
		statuses:        cfg.Statuses,
		results:         cfg.Results,
		hub:             cfg.Hub,
		metrics:         cfg.Metrics,
		uploadDir:       cfg.UploadDir,
		detector:        cfg.Detector,
		fs:              cfg.FS,
		clock:           cfg.Clock,
		defaultSpeedKMH: cfg.Tuning.GetDefaultSpeedKMH(),
		attachPause:     cfg.Tuning.GetAttachPause(),
		heartbeat:       cfg.Tuning.GetHeartbeatInterval(),
		sendTimeout:     cfg.Tuning.GetSendTimeout(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// CORSMiddleware allows browser dashboards served from other origins to
// call the API and open WebSocket connections.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/status/", s.handleStatus)
	mux.HandleFunc("/results/", s.handleResults)
	mux.HandleFunc("/videos", s.handleVideos)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ws/", s.handleLive)
	return mux
}

// RootHandler serves the index document on / with the API version and
// endpoint map, mirroring what clients probe before uploading.
func RootHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		httputil.WriteJSONOK(w, map[string]interface{}{
			"message": "Road Surface Survey API",
			"version": version.Version,
			"endpoints": map[string]string{
				"upload":  "POST /api/v1/upload",
				"status":  "GET /api/v1/status/{video_id}",
				"results": "GET /api/v1/results/{video_id}",
				"videos":  "GET /api/v1/videos",
				"healthz": "GET /api/v1/healthz",
				"live":    "WS /api/v1/ws/{video_id}",
			},
		})
	})
}
