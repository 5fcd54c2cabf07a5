package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pavescan-data/surface.report/internal/survey"
	"github.com/pavescan-data/surface.report/internal/survey/detect"
	"github.com/pavescan-data/surface.report/internal/survey/events"
	"github.com/pavescan-data/surface.report/internal/survey/live"
	"github.com/pavescan-data/surface.report/internal/survey/source"
)

// process runs one job end to end and records its terminal state. The
// queryable status is set to its pickup value first, then only the progress
// number advances until the job finishes or fails.
func (r *Runner) process(ctx context.Context, job Job) {
	r.deps.Statuses.Set(job.VideoID, survey.Status{
		Status:   survey.StateProcessing,
		Progress: 0,
		Message:  "Starting processing...",
	})
	r.deps.Metrics.JobsActive.Add(1)
	defer r.deps.Metrics.JobsActive.Add(-1)

	report, err := r.run(ctx, job)
	if err != nil {
		r.fail(job.VideoID, err)
		return
	}

	if err := r.deps.Results.Put(report); err != nil {
		// The in-memory report stays readable; the job still ends in error.
		r.fail(job.VideoID, err)
		return
	}

	r.deps.Statuses.Set(job.VideoID, survey.Status{
		Status:   survey.StateCompleted,
		Progress: 100,
		Message:  "Processing completed successfully",
	})
	r.deps.Metrics.JobsCompleted.Add(1)
	r.deps.Hub.Publish(job.VideoID, live.CompleteEvent("Processing completed successfully", report.Summary))

	if r.deps.CompletedHook != nil {
		r.deps.CompletedHook(report)
	}
}

func (r *Runner) fail(id string, cause error) {
	msg := cause.Error()
	r.deps.Statuses.Set(id, survey.Status{
		Status:   survey.StateError,
		Progress: 0,
		Message:  "Error: " + msg,
	})
	r.deps.Metrics.JobsFailed.Add(1)
	r.deps.Hub.Publish(id, live.ErrorEvent("Processing failed: "+msg))
	opsf("job %s failed: %v", id, cause)
}

// jobRun carries the per-job detection state through the frame loop.
type jobRun struct {
	r         *Runner
	job       Job
	meta      source.Metadata
	params    survey.AdaptiveParams
	tracker   *survey.Tracker
	frames    *survey.FrameLog
	roiYStart int

	totalDetections int
}

func (r *Runner) run(ctx context.Context, job Job) (*survey.Report, error) {
	r.deps.Hub.Publish(job.VideoID, live.StatusEvent(survey.Status{
		Status:   survey.StateProcessing,
		Progress: 0,
		Message:  "Loading model...",
	}))

	src, err := r.deps.Open(job.VideoPath)
	if err != nil {
		opsf("job %s: open %s: %v", job.VideoID, job.VideoPath, err)
		return nil, errors.New("Could not open video")
	}
	defer src.Close()

	meta := src.Meta()
	opsf("processing %s: %d frames @ %.2f FPS, resolution %dx%d",
		job.VideoID, meta.TotalFrames, meta.FPS, meta.Width, meta.Height)

	r.deps.Hub.Publish(job.VideoID, live.StatusEvent(survey.Status{
		Status:   survey.StateProcessing,
		Progress: 5,
		Message:  fmt.Sprintf("Model loaded, processing every %dth frame...", r.cfg.FrameStep),
	}))

	jr := &jobRun{
		r:       r,
		job:     job,
		meta:    meta,
		params:  survey.SelectParamsFrom(float64(job.SpeedKMH), r.cfg.Bands),
		tracker: survey.NewTracker(r.cfg.Tracker),
		frames:  survey.NewFrameLog(r.cfg.MaxStoredFrames),
	}
	jr.roiYStart = int(float64(meta.Height) * (1 - jr.params.ROIRatio))
	diagf("job %s: %s (roi %.2f, conf %.2f)", job.VideoID,
		jr.params.Description, jr.params.ROIRatio, jr.params.Confidence)

	frameCount := 0
	processedCount := 0
	lastProgress := 0

	for {
		if ctx.Err() != nil {
			return nil, errors.New("processing canceled")
		}

		// Frames off the sampling grid are skipped without decoding.
		if (frameCount+1)%r.cfg.FrameStep != 0 {
			if err := src.Skip(); err != nil {
				if !errors.Is(err, io.EOF) {
					opsf("job %s: read stopped at frame %d: %v", job.VideoID, frameCount+1, err)
				}
				break
			}
			frameCount++
			r.deps.Metrics.FramesRead.Add(1)
			continue
		}

		frame, err := src.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				opsf("job %s: read stopped at frame %d: %v", job.VideoID, frameCount+1, err)
			}
			break
		}
		frameCount++
		r.deps.Metrics.FramesRead.Add(1)
		processedCount++
		r.deps.Metrics.FramesProcessed.Add(1)

		var currentTime float64
		if meta.FPS > 0 {
			currentTime = float64(frameCount) / meta.FPS
		}

		framePotholes := jr.detectFrame(ctx, frame, currentTime)
		jr.totalDetections += framePotholes
		if framePotholes > 0 {
			r.deps.Metrics.Detections.Add(uint64(framePotholes))
		}

		// Progress runs 5..100 over the sampled frames. Streams that do
		// not report a frame count skip progress and jump to 100 at the
		// end.
		if meta.TotalFrames > 0 {
			sampledTotal := float64(meta.TotalFrames) / float64(r.cfg.FrameStep)
			progress := int(float64(processedCount)/sampledTotal*95) + 5
			if progress-lastProgress >= r.cfg.ProgressStep {
				if st, ok := r.deps.Statuses.Get(job.VideoID); ok {
					st.Progress = progress
					r.deps.Statuses.Set(job.VideoID, st)
				}
				r.deps.Hub.Publish(job.VideoID, live.ProgressEvent(
					progress,
					fmt.Sprintf("Frame %d/%d (%d processed)", frameCount, meta.TotalFrames, processedCount),
					jr.tracker.ConfirmedCount(),
					jr.totalDetections,
				))
				lastProgress = progress
				tracef("job %s: frame %d/%d, progress %d%%", job.VideoID, frameCount, meta.TotalFrames, progress)
			}
		}
	}

	confirmed := jr.tracker.Confirmed()
	potholeList := make([]survey.PotholeRecord, 0, len(confirmed))
	for _, c := range confirmed {
		potholeList = append(potholeList, c.Record())
	}

	report := &survey.Report{
		VideoID:     job.VideoID,
		VideoPath:   job.VideoPath,
		SpeedKMH:    job.SpeedKMH,
		ProcessedAt: r.clock.Now().Format(time.RFC3339),
		VideoInfo:   survey.NewVideoInfo(meta.Width, meta.Height, meta.TotalFrames, meta.FPS),
		Summary: survey.NewSummary(frameCount, processedCount, r.cfg.FrameStep,
			jr.tracker.ConfirmedCount(), jr.totalDetections, jr.frames.Len()),
		PotholeList: potholeList,
		Frames:      jr.frames.Entries(),
	}

	opsf("job %s complete: %d unique potholes, %d total detections (processed %d/%d frames)",
		job.VideoID, report.Summary.UniquePotholes, report.Summary.TotalDetections,
		processedCount, frameCount)

	return report, nil
}

// detectFrame runs one sampled frame through detection and confirmation,
// returning how many detections counted toward the frame's total. Detection
// failures are logged and count as zero; the job continues.
func (jr *jobRun) detectFrame(ctx context.Context, frame source.Frame, currentTime float64) int {
	region := detect.Region{Frame: frame, YStart: jr.roiYStart}
	results, err := jr.r.deps.Detector.Detect(ctx, region, jr.params.Confidence)
	if err != nil {
		opsf("job %s: frame %d detection error: %v", jr.job.VideoID, frame.Index, err)
		return 0
	}

	framePotholes := 0
	var stored []survey.Detection

	for _, res := range results {
		box := survey.BBox{
			X1: res.Box.Min.X,
			Y1: res.Box.Min.Y + jr.roiYStart,
			X2: res.Box.Max.X,
			Y2: res.Box.Max.Y + jr.roiYStart,
		}

		if res.TrackID == 0 {
			// Counted but never persisted: without a stable id the same
			// pothole would be stored once per sighting.
			framePotholes++
			continue
		}

		confirmed, newly := jr.tracker.Observe(survey.Observation{
			TrackID:    res.TrackID,
			FrameID:    frame.Index,
			Timestamp:  currentTime,
			Confidence: res.Confidence,
		})
		if newly {
			jr.r.deps.Metrics.ConfirmedPotholes.Add(1)
			jr.publishConfirmed(ctx, res, frame.Index, currentTime, box)
		}
		if confirmed {
			framePotholes++
			stored = append(stored, survey.NewDetection(frame.Index, res.TrackID, res.Confidence, box))
		}
	}

	if len(stored) > 0 {
		jr.frames.Append(survey.FrameLogEntry{
			FrameID:  frame.Index,
			SpeedKMH: jr.job.SpeedKMH,
			ROIRatio: jr.params.ROIRatio,
			Potholes: stored,
		})
	}
	return framePotholes
}

func (jr *jobRun) publishConfirmed(ctx context.Context, res detect.Result, frameID int, ts float64, box survey.BBox) {
	pub := jr.r.deps.Publisher
	if pub == nil {
		return
	}
	ev := events.ConfirmedEvent{
		VideoID:    jr.job.VideoID,
		PotholeID:  res.TrackID,
		Frame:      frameID,
		Timestamp:  ts,
		Confidence: res.Confidence,
		SpeedKMH:   jr.job.SpeedKMH,
		BBox:       box,
	}
	if err := pub.Publish(ctx, ev); err != nil {
		opsf("job %s: publish pothole %d: %v", jr.job.VideoID, res.TrackID, err)
		jr.r.deps.Metrics.EventsDropped.Add(1)
		return
	}
	jr.r.deps.Metrics.EventsPublished.Add(1)
	diagf("job %s: published confirmed pothole %d (frame %d)", jr.job.VideoID, res.TrackID, frameID)
}
