package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pavescan-data/surface.report/internal/api"
	"github.com/pavescan-data/surface.report/internal/config"
	"github.com/pavescan-data/surface.report/internal/metrics"
	"github.com/pavescan-data/surface.report/internal/survey"
	"github.com/pavescan-data/surface.report/internal/survey/detect"
	"github.com/pavescan-data/surface.report/internal/survey/events"
	"github.com/pavescan-data/surface.report/internal/survey/live"
	"github.com/pavescan-data/surface.report/internal/survey/monitor"
	"github.com/pavescan-data/surface.report/internal/survey/pipeline"
	"github.com/pavescan-data/surface.report/internal/survey/source"
	"github.com/pavescan-data/surface.report/internal/version"
)

var (
	listen        = flag.String("listen", ":8080", "HTTP listen address")
	monitorListen = flag.String("monitor-listen", ":8081", "Monitor listen address (empty to disable)")
	uploadsDir    = flag.String("uploads-dir", "uploads", "Directory for uploaded videos")
	resultsDir    = flag.String("results-dir", "results", "Directory for report JSON files")
	modelPath     = flag.String("model", "", "Path to the pothole detection model (requires gocv build)")
	modelURL      = flag.String("model-url", "", "Base URL of a remote model server")
	scriptPath    = flag.String("script", "", "Path to a scripted detection file (for replay and testing)")
	tuningPath    = flag.String("tuning", "", "Path to a tuning config JSON file (built-in defaults if empty)")
	plotDir       = flag.String("plot-dir", "", "Directory for post-run timeline plots (empty to disable)")
	verbosity     = flag.Int("verbosity", 1, "Log verbosity: 0 quiet, 1 ops, 2 diag, 3 trace")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// configureLogging routes the per-package log streams to stderr according
// to the verbosity level.
func configureLogging(level int) {
	var ops, diag, trace io.Writer
	if level >= 1 {
		ops = os.Stderr
	}
	if level >= 2 {
		diag = os.Stderr
	}
	if level >= 3 {
		trace = os.Stderr
	}
	survey.SetLogWriters(ops, diag, trace)
	pipeline.SetLogWriters(ops, diag, trace)
	live.SetLogWriters(ops, diag, trace)
}

// selectDetector picks the detection backend from the flags. Exactly one
// backend runs per process; -model wins over -model-url over -script.
func selectDetector() (detect.Detector, func() error, error) {
	switch {
	case *modelPath != "":
		model, err := detect.OpenModel(*modelPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open model %s: %w", *modelPath, err)
		}
		log.Printf("Loaded detection model from %s", *modelPath)
		return model, model.Close, nil
	case *modelURL != "":
		client := detect.NewModelClient(*modelURL, nil)
		log.Printf("Using remote model server at %s", *modelURL)
		return client, nil, nil
	case *scriptPath != "":
		script, err := detect.LoadScript(*scriptPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load script %s: %w", *scriptPath, err)
		}
		log.Printf("Loaded scripted detections from %s", *scriptPath)
		return script, nil, nil
	}
	return nil, nil, fmt.Errorf("a detector is required: set -model, -model-url, or -script")
}

// Main
func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}

	flag.Parse()

	if *showVersion {
		fmt.Println("surface.report " + version.String())
		return
	}

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}

	configureLogging(*verbosity)

	// Load tuning parameters
	tuning := config.EmptyTuningConfig()
	if *tuningPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		log.Printf("Loaded tuning config from %s", *tuningPath)
	}

	if err := os.MkdirAll(*uploadsDir, 0755); err != nil {
		log.Fatalf("Failed to create uploads directory: %v", err)
	}

	// Initialize stores
	statuses := survey.NewStatusStore()
	results, err := survey.NewResultStore(*resultsDir, nil)
	if err != nil {
		log.Fatalf("Failed to create result store: %v", err)
	}

	m := metrics.New()
	hub := live.NewHub(0, tuning.GetSendTimeout(), m)

	// Initialize the detection backend
	detector, closeDetector, err := selectDetector()
	if err != nil {
		log.Fatalf("Failed to initialize detector: %v", err)
	}
	if closeDetector != nil {
		defer func() {
			if err := closeDetector(); err != nil {
				log.Printf("detector close error: %v", err)
			}
		}()
	}

	// Initialize the Kafka publisher when brokers are configured
	var publisher events.Publisher
	if kcfg := events.FromEnv(); kcfg.Brokers != "" {
		kp, err := events.NewKafkaPublisher(kcfg)
		if err != nil {
			log.Fatalf("Failed to create Kafka publisher: %v", err)
		}
		publisher = kp
		defer kp.Close()
		log.Printf("Publishing confirmed potholes to %s (topic %s)", kcfg.Brokers, kcfg.Topic)
	} else {
		log.Printf("Event publishing disabled (set KAFKA_BROKERS to enable)")
	}

	// Fleet statistics and optional post-run plots
	fleet := monitor.NewFleetStats()

	var plotter *monitor.TimelinePlotter
	if *plotDir != "" {
		plotter, err = monitor.NewTimelinePlotter(*plotDir)
		if err != nil {
			log.Fatalf("Failed to create plot directory: %v", err)
		}
		log.Printf("Writing timeline plots to %s", *plotDir)
	}

	completedHook := func(r *survey.Report) {
		fleet.Record(r)
		if plotter == nil {
			return
		}
		if _, err := plotter.Plot(r); err != nil {
			log.Printf("failed to plot %s: %v", r.VideoID, err)
		}
	}

	// Build the worker pool
	var bands survey.BandValues
	bands.LowROI, bands.LowConfidence = tuning.GetLowSpeedBand()
	bands.MediumROI, bands.MediumConfidence = tuning.GetMediumSpeedBand()
	bands.HighROI, bands.HighConfidence = tuning.GetHighSpeedBand()
	runner := pipeline.NewRunner(pipeline.Config{
		Workers:         tuning.GetWorkerCount(),
		QueueSize:       tuning.GetQueueSize(),
		FrameStep:       tuning.GetFrameStep(),
		ProgressStep:    tuning.GetProgressStep(),
		MaxStoredFrames: tuning.GetMaxStoredFrames(),
		Bands:           bands,
		Tracker: survey.TrackerConfig{
			HistorySize:         tuning.GetTrackHistorySize(),
			MinDetectionFrames:  tuning.GetMinDetectionFrames(),
			DetectionTimeWindow: tuning.GetDetectionTimeWindow(),
		},
	}, pipeline.Deps{
		Open:          source.OpenVideo,
		Detector:      detector,
		Statuses:      statuses,
		Results:       results,
		Hub:           hub,
		Publisher:     publisher,
		Metrics:       m,
		CompletedHook: completedHook,
	})

	apiServer := api.NewServer(api.Config{
		Runner:    runner,
		Statuses:  statuses,
		Results:   results,
		Hub:       hub,
		Metrics:   m,
		UploadDir: *uploadsDir,
		Detector:  detector,
		Tuning:    tuning,
	})

	reporter := monitor.NewStatsReporter(m, fleet)
	reporter.Start()
	defer reporter.Stop()

	// Create a wait group for the HTTP server, monitor, and worker routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner.Start(ctx)

	// Monitor server goroutine
	if *monitorListen != "" {
		monitorServer := monitor.NewWebServer(monitor.WebServerConfig{
			Address:  *monitorListen,
			Statuses: statuses,
			Results:  results,
			Metrics:  m,
			Fleet:    fleet,
			Tuning:   tuning,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := monitorServer.Start(ctx); err != nil {
				log.Printf("monitor server error: %v", err)
			}
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the API handlers under the versioned prefix
		apiMux := apiServer.ServeMux()
		mux.Handle("/api/v1/", http.StripPrefix("/api/v1", apiMux))

		// index document with the endpoint directory
		mux.Handle("/", api.RootHandler())

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(api.CORSMiddleware(mux)),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("surface.report %s listening on %s", version.String(), *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish, then drain in-flight jobs
	wg.Wait()
	runner.Wait()
	hub.Close()
	log.Printf("Graceful shutdown complete")
}
