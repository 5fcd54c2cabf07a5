// Package pipeline runs survey jobs through a bounded worker pool. Each job
// decodes its video, samples frames, runs detection and confirmation, and
// produces a Report, pushing status and progress to the live hub along the
// way. Admission is non-blocking: a full queue rejects the job so the HTTP
// surface can answer with backpressure instead of stalling.
package pipeline

import (
	"context"
	"sync"

	"github.com/pavescan-data/surface.report/internal/metrics"
	"github.com/pavescan-data/surface.report/internal/survey"
	"github.com/pavescan-data/surface.report/internal/survey/detect"
	"github.com/pavescan-data/surface.report/internal/survey/events"
	"github.com/pavescan-data/surface.report/internal/survey/live"
	"github.com/pavescan-data/surface.report/internal/survey/source"
	"github.com/pavescan-data/surface.report/internal/timeutil"
)

// Config sets the pool size and the frame-loop parameters shared by every
// job. Zero values fall back to the service defaults.
type Config struct {
	Workers         int
	QueueSize       int
	FrameStep       int
	ProgressStep    int
	MaxStoredFrames int
	Bands           survey.BandValues
	Tracker         survey.TrackerConfig
}

func (c Config) withDefaults() Config {
	if c.Workers < 1 {
		c.Workers = 4
	}
	if c.QueueSize < 1 {
		c.QueueSize = 16
	}
	if c.FrameStep < 1 {
		c.FrameStep = 2
	}
	if c.ProgressStep < 1 {
		c.ProgressStep = 5
	}
	if c.MaxStoredFrames < 1 {
		c.MaxStoredFrames = survey.DefaultMaxStoredFrames
	}
	if c.Bands == (survey.BandValues{}) {
		c.Bands = survey.DefaultBandValues()
	}
	return c
}

// Job is one admitted survey run.
type Job struct {
	VideoID   string
	VideoPath string
	SpeedKMH  int
}

// Deps are the collaborators a Runner drives. Publisher may be nil to
// disable event publishing; Clock defaults to the real clock;
// CompletedHook, when set, runs after each successful job.
type Deps struct {
	Open          source.OpenFunc
	Detector      detect.Detector
	Statuses      *survey.StatusStore
	Results       *survey.ResultStore
	Hub           *live.Hub
	Publisher     events.Publisher
	Metrics       *metrics.Metrics
	Clock         timeutil.Clock
	CompletedHook func(*survey.Report)
}

// Runner owns the job queue and worker pool.
type Runner struct {
	cfg   Config
	deps  Deps
	clock timeutil.Clock
	jobs  chan Job
	wg    sync.WaitGroup
}

// NewRunner builds a runner. Start must be called before jobs are consumed.
func NewRunner(cfg Config, deps Deps) *Runner {
	cfg = cfg.withDefaults()
	clock := deps.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Runner{
		cfg:   cfg,
		deps:  deps,
		clock: clock,
		jobs:  make(chan Job, cfg.QueueSize),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled; call
// Wait to block until they have drained.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
	opsf("started %d workers, queue size %d", r.cfg.Workers, r.cfg.QueueSize)
}

func (r *Runner) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.jobs:
			diagf("worker %d picked up job %s", id, job.VideoID)
			r.process(ctx, job)
		}
	}
}

// Submit admits a job without blocking. Returns false when the queue is
// full; the caller is expected to surface backpressure to the client.
func (r *Runner) Submit(job Job) bool {
	select {
	case r.jobs <- job:
		r.deps.Metrics.JobsAdmitted.Add(1)
		diagf("admitted job %s (queue depth %d)", job.VideoID, len(r.jobs))
		return true
	default:
		r.deps.Metrics.JobsRejected.Add(1)
		opsf("rejected job %s: queue full", job.VideoID)
		return false
	}
}

// QueueDepth reports how many admitted jobs are waiting for a worker.
func (r *Runner) QueueDepth() int {
	return len(r.jobs)
}

// Wait blocks until all workers have exited after their context was
// cancelled.
func (r *Runner) Wait() {
	r.wg.Wait()
}
