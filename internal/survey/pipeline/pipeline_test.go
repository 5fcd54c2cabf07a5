package pipeline

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavescan-data/surface.report/internal/fsutil"
	"github.com/pavescan-data/surface.report/internal/metrics"
	"github.com/pavescan-data/surface.report/internal/survey"
	"github.com/pavescan-data/surface.report/internal/survey/detect"
	"github.com/pavescan-data/surface.report/internal/survey/events"
	"github.com/pavescan-data/surface.report/internal/survey/live"
	"github.com/pavescan-data/surface.report/internal/survey/source"
	"github.com/pavescan-data/surface.report/internal/timeutil"
)

// standardMeta is a 40-frame 30 FPS clip. With the default step of 2 the
// pipeline samples the 20 even frames.
var standardMeta = source.Metadata{Width: 64, Height: 48, TotalFrames: 40, FPS: 30}

type testEnv struct {
	statuses *survey.StatusStore
	results  *survey.ResultStore
	hub      *live.Hub
	metrics  *metrics.Metrics
	clock    *timeutil.MockClock
	dir      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	results, err := survey.NewResultStore(dir, nil)
	require.NoError(t, err)

	m := metrics.New()
	hub := live.NewHub(64, time.Second, m)
	t.Cleanup(hub.Close)

	return &testEnv{
		statuses: survey.NewStatusStore(),
		results:  results,
		hub:      hub,
		metrics:  m,
		clock:    timeutil.NewMockClock(time.Date(2026, 2, 11, 9, 30, 0, 0, time.UTC)),
		dir:      dir,
	}
}

func (e *testEnv) deps(det detect.Detector, open source.OpenFunc) Deps {
	return Deps{
		Open:     open,
		Detector: det,
		Statuses: e.statuses,
		Results:  e.results,
		Hub:      e.hub,
		Metrics:  e.metrics,
		Clock:    e.clock,
	}
}

func syntheticOpen(meta source.Metadata) source.OpenFunc {
	return func(string) (source.Source, error) {
		return source.NewSynthetic(meta), nil
	}
}

// trackHit is one detection of the given track in region-local coordinates.
func trackHit(id int64, conf float64) []detect.Result {
	return []detect.Result{{TrackID: id, Confidence: conf, Box: image.Rect(10, 5, 30, 25)}}
}

// captureListener records hub events and unblocks wait once the hub closes
// it after a terminal delivery.
type captureListener struct {
	mu     sync.Mutex
	events []live.Event
	done   chan struct{}
	closed bool
}

func newCaptureListener() *captureListener {
	return &captureListener{done: make(chan struct{})}
}

func (c *captureListener) Send(_ context.Context, ev live.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureListener) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

func (c *captureListener) wait(t *testing.T) []live.Event {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal event")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]live.Event(nil), c.events...)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.ConfirmedEvent
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, ev events.ConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) Close() {}

func (p *capturePublisher) published() []events.ConfirmedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.ConfirmedEvent(nil), p.events...)
}

func TestProcessConfirmsTrackAcrossWindow(t *testing.T) {
	env := newTestEnv(t)
	det := &detect.Scripted{ByFrame: map[int][]detect.Result{
		28: trackHit(7, 0.81),
		30: trackHit(7, 0.84),
		32: trackHit(7, 0.88),
	}}
	r := NewRunner(Config{}, env.deps(det, syntheticOpen(standardMeta)))

	r.process(context.Background(), Job{VideoID: "veh-1", VideoPath: "survey.mp4", SpeedKMH: 45})

	st, ok := env.statuses.Get("veh-1")
	require.True(t, ok)
	assert.Equal(t, survey.Status{Status: survey.StateCompleted, Progress: 100, Message: "Processing completed successfully"}, st)

	report, err := env.results.Get("veh-1")
	require.NoError(t, err)

	assert.Equal(t, "veh-1", report.VideoID)
	assert.Equal(t, "survey.mp4", report.VideoPath)
	assert.Equal(t, 45, report.SpeedKMH)
	assert.Equal(t, "2026-02-11T09:30:00Z", report.ProcessedAt)

	assert.Equal(t, 40, report.Summary.TotalFrames)
	assert.Equal(t, 20, report.Summary.ProcessedFrames)
	assert.Equal(t, 2, report.Summary.FrameStep)
	assert.Equal(t, 1, report.Summary.UniquePotholes)
	assert.Equal(t, 1, report.Summary.TotalDetections)
	assert.Equal(t, 1, report.Summary.FramesWithDetections)
	assert.Equal(t, 5.0, report.Summary.DetectionRate)

	assert.Equal(t, 40, report.VideoInfo.TotalFrames)
	assert.Equal(t, 30.0, report.VideoInfo.FPS)
	assert.Equal(t, 1.33, report.VideoInfo.Duration)
	assert.Equal(t, "64x48", report.VideoInfo.Resolution)

	// Third sighting within the window confirms; the record pins the
	// confirming frame, not the first sighting.
	require.Len(t, report.PotholeList, 1)
	rec := report.PotholeList[0]
	assert.Equal(t, int64(7), rec.PotholeID)
	assert.Equal(t, 32, rec.FirstDetectedFrame)
	assert.Equal(t, 1.07, rec.FirstDetectedTime)
	assert.Equal(t, 0.88, rec.Confidence)

	// Only the confirming sighting is stored, with the box shifted back to
	// full-frame coordinates (ROI starts at y=16 for 48px at medium speed).
	require.Len(t, report.Frames, 1)
	entry := report.Frames[0]
	assert.Equal(t, 32, entry.FrameID)
	assert.Equal(t, 45, entry.SpeedKMH)
	assert.Equal(t, 0.65, entry.ROIRatio)
	require.Len(t, entry.Potholes, 1)
	d := entry.Potholes[0]
	assert.Equal(t, survey.BBox{X1: 10, Y1: 21, X2: 30, Y2: 41}, d.BBox)
	assert.Equal(t, survey.Center{X: 20, Y: 31}, d.Center)
	assert.Equal(t, 400, d.Area)
	assert.Equal(t, "pothole", d.Type)

	if _, err := os.Stat(filepath.Join(env.dir, "veh-1.json")); err != nil {
		t.Errorf("report file not written: %v", err)
	}

	assert.Equal(t, uint64(40), env.metrics.FramesRead.Load())
	assert.Equal(t, uint64(20), env.metrics.FramesProcessed.Load())
	assert.Equal(t, uint64(1), env.metrics.Detections.Load())
	assert.Equal(t, uint64(1), env.metrics.ConfirmedPotholes.Load())
	assert.Equal(t, uint64(1), env.metrics.JobsCompleted.Load())
	assert.Equal(t, int64(0), env.metrics.JobsActive.Load())
}

func TestProcessSightingsSpreadPastWindowConfirmLater(t *testing.T) {
	env := newTestEnv(t)
	det := &detect.Scripted{ByFrame: map[int][]detect.Result{
		30: trackHit(3, 0.70),
		32: trackHit(3, 0.75),
		34: trackHit(3, 0.72),
	}}
	r := NewRunner(Config{}, env.deps(det, syntheticOpen(standardMeta)))

	r.process(context.Background(), Job{VideoID: "veh-2", VideoPath: "survey.mp4", SpeedKMH: 45})

	report, err := env.results.Get("veh-2")
	require.NoError(t, err)

	require.Len(t, report.PotholeList, 1)
	rec := report.PotholeList[0]
	assert.Equal(t, int64(3), rec.PotholeID)
	assert.Equal(t, 34, rec.FirstDetectedFrame)
	assert.Equal(t, 1.13, rec.FirstDetectedTime)
	assert.Equal(t, 0.72, rec.Confidence)
	assert.Equal(t, 1, report.Summary.TotalDetections)
}

func TestProcessNoDetections(t *testing.T) {
	env := newTestEnv(t)
	r := NewRunner(Config{}, env.deps(&detect.Scripted{}, syntheticOpen(standardMeta)))

	r.process(context.Background(), Job{VideoID: "veh-3", VideoPath: "empty.mp4", SpeedKMH: 45})

	report, err := env.results.Get("veh-3")
	require.NoError(t, err)

	assert.Equal(t, 0, report.Summary.UniquePotholes)
	assert.Equal(t, 0, report.Summary.TotalDetections)
	assert.Equal(t, 0, report.Summary.FramesWithDetections)
	assert.Equal(t, 0.0, report.Summary.DetectionRate)
	require.NotNil(t, report.PotholeList)
	assert.Len(t, report.PotholeList, 0)
	require.NotNil(t, report.Frames)
	assert.Len(t, report.Frames, 0)
}

func TestProcessOpenFailure(t *testing.T) {
	env := newTestEnv(t)
	open := func(string) (source.Source, error) {
		return nil, errors.New("no such device")
	}
	lis := newCaptureListener()
	env.hub.Attach("veh-4", lis)

	r := NewRunner(Config{}, env.deps(&detect.Scripted{}, open))
	r.process(context.Background(), Job{VideoID: "veh-4", VideoPath: "missing.mp4", SpeedKMH: 45})

	st, ok := env.statuses.Get("veh-4")
	require.True(t, ok)
	assert.Equal(t, survey.Status{Status: survey.StateError, Progress: 0, Message: "Error: Could not open video"}, st)

	_, err := env.results.Get("veh-4")
	assert.ErrorIs(t, err, survey.ErrReportNotFound)
	assert.Equal(t, uint64(1), env.metrics.JobsFailed.Load())

	evs := lis.wait(t)
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, "error", last.Type)
	assert.Equal(t, survey.StateError, last.Status)
	assert.Equal(t, "Processing failed: Could not open video", last.Message)
}

func TestProcessDetectorFailureSkipsFrame(t *testing.T) {
	env := newTestEnv(t)
	det := &detect.Scripted{
		ByFrame: map[int][]detect.Result{
			28: trackHit(9, 0.80),
			32: trackHit(9, 0.82),
			34: trackHit(9, 0.85),
		},
		ErrAt: map[int]error{30: errors.New("inference timeout")},
	}
	r := NewRunner(Config{}, env.deps(det, syntheticOpen(standardMeta)))

	r.process(context.Background(), Job{VideoID: "veh-5", VideoPath: "survey.mp4", SpeedKMH: 45})

	// One failed frame does not abort the job, and the remaining sightings
	// still confirm the track.
	st, ok := env.statuses.Get("veh-5")
	require.True(t, ok)
	assert.Equal(t, survey.StateCompleted, st.Status)

	report, err := env.results.Get("veh-5")
	require.NoError(t, err)
	require.Len(t, report.PotholeList, 1)
	assert.Equal(t, 34, report.PotholeList[0].FirstDetectedFrame)
	assert.Equal(t, 20, report.Summary.ProcessedFrames)
}

func TestProcessUntrackedDetectionsCountedNotStored(t *testing.T) {
	env := newTestEnv(t)
	untracked := []detect.Result{{TrackID: 0, Confidence: 0.9, Box: image.Rect(5, 5, 15, 15)}}
	det := &detect.Scripted{ByFrame: map[int][]detect.Result{
		30: untracked,
		32: untracked,
	}}
	r := NewRunner(Config{}, env.deps(det, syntheticOpen(standardMeta)))

	r.process(context.Background(), Job{VideoID: "veh-6", VideoPath: "survey.mp4", SpeedKMH: 45})

	report, err := env.results.Get("veh-6")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Summary.TotalDetections)
	assert.Equal(t, 0, report.Summary.UniquePotholes)
	assert.Equal(t, 0, report.Summary.FramesWithDetections)
	assert.Len(t, report.PotholeList, 0)
	assert.Len(t, report.Frames, 0)
	assert.Equal(t, uint64(2), env.metrics.Detections.Load())
}

func TestProcessEventSequence(t *testing.T) {
	env := newTestEnv(t)
	lis := newCaptureListener()
	env.hub.Attach("veh-7", lis)

	r := NewRunner(Config{}, env.deps(&detect.Scripted{}, syntheticOpen(standardMeta)))
	r.process(context.Background(), Job{VideoID: "veh-7", VideoPath: "survey.mp4", SpeedKMH: 45})

	evs := lis.wait(t)
	require.GreaterOrEqual(t, len(evs), 4)

	assert.Equal(t, "status", evs[0].Type)
	require.NotNil(t, evs[0].Progress)
	assert.Equal(t, 0, *evs[0].Progress)
	assert.Equal(t, "Loading model...", evs[0].Message)

	assert.Equal(t, "status", evs[1].Type)
	require.NotNil(t, evs[1].Progress)
	assert.Equal(t, 5, *evs[1].Progress)
	assert.Equal(t, "Model loaded, processing every 2th frame...", evs[1].Message)

	progress := evs[2 : len(evs)-1]
	prev := 5
	for i, ev := range progress {
		require.Equal(t, "progress", ev.Type, "event %d", i+2)
		require.NotNil(t, ev.Progress)
		assert.Greater(t, *ev.Progress, prev)
		prev = *ev.Progress
		require.NotNil(t, ev.UniquePotholes)
		assert.Equal(t, 0, *ev.UniquePotholes)
	}
	lastProgress := progress[len(progress)-1]
	assert.Equal(t, 100, *lastProgress.Progress)
	assert.Equal(t, "Frame 40/40 (20 processed)", lastProgress.Message)

	final := evs[len(evs)-1]
	assert.Equal(t, "complete", final.Type)
	require.NotNil(t, final.Progress)
	assert.Equal(t, 100, *final.Progress)
	assert.Equal(t, "Processing completed successfully", final.Message)
	require.NotNil(t, final.Summary)
	assert.Equal(t, 40, final.Summary.TotalFrames)
}

func TestProcessStreamWithoutContainerMetadata(t *testing.T) {
	env := newTestEnv(t)
	open := func(string) (source.Source, error) {
		return metaOverride{
			Source: source.NewSynthetic(source.Metadata{Width: 64, Height: 48, TotalFrames: 12, FPS: 30}),
			meta:   source.Metadata{Width: 64, Height: 48},
		}, nil
	}
	det := &detect.Scripted{ByFrame: map[int][]detect.Result{
		2: trackHit(5, 0.80),
		4: trackHit(5, 0.82),
		6: trackHit(5, 0.84),
	}}
	lis := newCaptureListener()
	env.hub.Attach("veh-8", lis)

	r := NewRunner(Config{}, env.deps(det, open))
	r.process(context.Background(), Job{VideoID: "veh-8", VideoPath: "stream", SpeedKMH: 45})

	report, err := env.results.Get("veh-8")
	require.NoError(t, err)

	// The summary counts frames actually read; video_info reports what the
	// container claimed, which here is nothing.
	assert.Equal(t, 12, report.Summary.TotalFrames)
	assert.Equal(t, 6, report.Summary.ProcessedFrames)
	assert.Equal(t, 0, report.VideoInfo.TotalFrames)
	assert.Equal(t, 0.0, report.VideoInfo.FPS)
	assert.Equal(t, 0.0, report.VideoInfo.Duration)

	// Without FPS every timestamp is zero, which keeps all sightings inside
	// the confirmation window.
	require.Len(t, report.PotholeList, 1)
	assert.Equal(t, 6, report.PotholeList[0].FirstDetectedFrame)
	assert.Equal(t, 0.0, report.PotholeList[0].FirstDetectedTime)

	for _, ev := range lis.wait(t) {
		assert.NotEqual(t, "progress", ev.Type)
	}
}

func TestProcessAppliesTunedBands(t *testing.T) {
	// A 0.25-confidence hit sits below the stock medium-band threshold of
	// 0.28 but above a tuned threshold of 0.20.
	script := func() *detect.Scripted {
		return &detect.Scripted{ByFrame: map[int][]detect.Result{
			2: {{Confidence: 0.25, Box: image.Rect(10, 5, 30, 25)}},
		}}
	}
	env := newTestEnv(t)

	r := NewRunner(Config{}, env.deps(script(), syntheticOpen(standardMeta)))
	r.process(context.Background(), Job{VideoID: "veh-12", VideoPath: "survey.mp4", SpeedKMH: 45})
	report, err := env.results.Get("veh-12")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Summary.TotalDetections)

	bands := survey.DefaultBandValues()
	bands.MediumConfidence = 0.20
	r = NewRunner(Config{Bands: bands}, env.deps(script(), syntheticOpen(standardMeta)))
	r.process(context.Background(), Job{VideoID: "veh-13", VideoPath: "survey.mp4", SpeedKMH: 45})
	report, err = env.results.Get("veh-13")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.TotalDetections)
}

func TestProcessPublishesConfirmedEvents(t *testing.T) {
	env := newTestEnv(t)
	det := &detect.Scripted{ByFrame: map[int][]detect.Result{
		28: trackHit(7, 0.81),
		30: trackHit(7, 0.84),
		32: trackHit(7, 0.88),
	}}
	pub := &capturePublisher{}
	d := env.deps(det, syntheticOpen(standardMeta))
	d.Publisher = pub
	r := NewRunner(Config{}, d)

	r.process(context.Background(), Job{VideoID: "veh-9", VideoPath: "survey.mp4", SpeedKMH: 45})

	got := pub.published()
	require.Len(t, got, 1)
	ev := got[0]
	assert.Equal(t, "veh-9", ev.VideoID)
	assert.Equal(t, int64(7), ev.PotholeID)
	assert.Equal(t, 32, ev.Frame)
	assert.InDelta(t, 1.0667, ev.Timestamp, 0.001)
	assert.Equal(t, 0.88, ev.Confidence)
	assert.Equal(t, 45, ev.SpeedKMH)
	assert.Equal(t, survey.BBox{X1: 10, Y1: 21, X2: 30, Y2: 41}, ev.BBox)
	assert.Equal(t, uint64(1), env.metrics.EventsPublished.Load())
}

func TestProcessPublishFailureDoesNotFailJob(t *testing.T) {
	env := newTestEnv(t)
	det := &detect.Scripted{ByFrame: map[int][]detect.Result{
		28: trackHit(7, 0.81),
		30: trackHit(7, 0.84),
		32: trackHit(7, 0.88),
	}}
	pub := &capturePublisher{err: errors.New("broker unreachable")}
	d := env.deps(det, syntheticOpen(standardMeta))
	d.Publisher = pub
	r := NewRunner(Config{}, d)

	r.process(context.Background(), Job{VideoID: "veh-10", VideoPath: "survey.mp4", SpeedKMH: 45})

	st, ok := env.statuses.Get("veh-10")
	require.True(t, ok)
	assert.Equal(t, survey.StateCompleted, st.Status)
	assert.Equal(t, uint64(1), env.metrics.EventsDropped.Load())
	assert.Equal(t, uint64(0), env.metrics.EventsPublished.Load())
}

func TestProcessWriteFailureKeepsMemoryReport(t *testing.T) {
	dir := t.TempDir()
	results, err := survey.NewResultStore(dir, failingFS{fsutil.NewMemoryFileSystem()})
	require.NoError(t, err)

	env := newTestEnv(t)
	env.results = results

	r := NewRunner(Config{}, env.deps(&detect.Scripted{}, syntheticOpen(standardMeta)))
	r.process(context.Background(), Job{VideoID: "veh-11", VideoPath: "survey.mp4", SpeedKMH: 45})

	st, ok := env.statuses.Get("veh-11")
	require.True(t, ok)
	assert.Equal(t, survey.StateError, st.Status)
	assert.Contains(t, st.Message, "Error: ")
	assert.Contains(t, st.Message, "disk full")
	assert.Equal(t, uint64(1), env.metrics.JobsFailed.Load())
	assert.Equal(t, uint64(0), env.metrics.JobsCompleted.Load())

	report, err := results.Get("veh-11")
	require.NoError(t, err)
	assert.Equal(t, "veh-11", report.VideoID)
}

func TestProcessCanceled(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(Config{}, env.deps(&detect.Scripted{}, syntheticOpen(standardMeta)))
	r.process(ctx, Job{VideoID: "veh-12", VideoPath: "survey.mp4", SpeedKMH: 45})

	st, ok := env.statuses.Get("veh-12")
	require.True(t, ok)
	assert.Equal(t, survey.Status{Status: survey.StateError, Progress: 0, Message: "Error: processing canceled"}, st)
}

func TestSubmitRejectsWhenQueueFull(t *testing.T) {
	env := newTestEnv(t)
	r := NewRunner(Config{Workers: 1, QueueSize: 1}, env.deps(&detect.Scripted{}, syntheticOpen(standardMeta)))

	assert.True(t, r.Submit(Job{VideoID: "a"}))
	assert.False(t, r.Submit(Job{VideoID: "b"}))
	assert.Equal(t, 1, r.QueueDepth())
	assert.Equal(t, uint64(1), env.metrics.JobsAdmitted.Load())
	assert.Equal(t, uint64(1), env.metrics.JobsRejected.Load())
}

func TestRunnerProcessesSubmittedJobs(t *testing.T) {
	env := newTestEnv(t)
	det := &detect.Scripted{ByFrame: map[int][]detect.Result{
		28: trackHit(7, 0.81),
		30: trackHit(7, 0.84),
		32: trackHit(7, 0.88),
	}}
	r := NewRunner(Config{Workers: 2, QueueSize: 4}, env.deps(det, syntheticOpen(standardMeta)))

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	require.True(t, r.Submit(Job{VideoID: "veh-13", VideoPath: "survey.mp4", SpeedKMH: 45}))
	require.Eventually(t, func() bool {
		st, ok := env.statuses.Get("veh-13")
		return ok && st.Status == survey.StateCompleted
	}, 2*time.Second, 10*time.Millisecond)

	report, err := env.results.Get("veh-13")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.UniquePotholes)

	cancel()
	r.Wait()
}

// metaOverride hides a source's real metadata, mimicking containers that do
// not report a frame count or FPS.
type metaOverride struct {
	source.Source
	meta source.Metadata
}

func (m metaOverride) Meta() source.Metadata { return m.meta }

type failingFS struct {
	fsutil.FileSystem
}

func (failingFS) WriteFile(string, []byte, os.FileMode) error {
	return errors.New("disk full")
}
