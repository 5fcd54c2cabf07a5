package api

import (
	"io"
	"log"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/pavescan-data/surface.report/internal/httputil"
	"github.com/pavescan-data/surface.report/internal/security"
	"github.com/pavescan-data/surface.report/internal/survey"
	"github.com/pavescan-data/surface.report/internal/survey/live"
	"github.com/pavescan-data/surface.report/internal/survey/pipeline"
	"github.com/pavescan-data/surface.report/internal/units"
)

type uploadResponse struct {
	VideoID  string `json:"video_id"`
	Filename string `json:"filename"`
	Message  string `json:"message"`
	Status   string `json:"status"`
}

// handleUpload accepts a multipart video, stores it under a fresh job id,
// and admits the job. The optional speed_kmh field selects the adaptive
// detection parameters for the whole run.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "Missing video file in form field \"file\"")
		return
	}
	defer file.Close()

	ext, err := security.ValidateVideoFilename(header.Filename)
	if err != nil {
		httputil.BadRequest(w, "Invalid file type. Please upload a video file.")
		return
	}

	speed, err := units.ParseSpeed(r.FormValue("speed_kmh"), s.defaultSpeedKMH)
	if err != nil {
		httputil.BadRequest(w, "Invalid speed_kmh value")
		return
	}

	videoID := uuid.New().String()
	videoPath := filepath.Join(s.uploadDir, videoID+ext)
	if err := security.ValidatePathWithinDirectory(videoPath, s.uploadDir); err != nil {
		httputil.BadRequest(w, "Invalid file name")
		return
	}

	if err := s.saveUpload(videoPath, file); err != nil {
		log.Printf("save upload %s: %v", videoID, err)
		httputil.InternalServerError(w, "Failed to save video file")
		return
	}

	s.statuses.Set(videoID, survey.Status{
		Status:   survey.StateQueued,
		Progress: 0,
		Message:  "Video uploaded, waiting to process...",
	})

	if !s.runner.Submit(pipeline.Job{VideoID: videoID, VideoPath: videoPath, SpeedKMH: speed}) {
		s.statuses.Delete(videoID)
		if err := s.fs.Remove(videoPath); err != nil {
			log.Printf("remove rejected upload %s: %v", videoPath, err)
		}
		httputil.ServiceUnavailable(w, "Processing queue is full. Please try again later.")
		return
	}

	// Pause before the first push so a listener opened on the heels of the
	// upload can attach and see it.
	s.clock.Sleep(s.attachPause)
	s.hub.Publish(videoID, live.StatusEvent(survey.Status{
		Status:   survey.StateQueued,
		Progress: 0,
		Message:  "Video uploaded, starting processing...",
	}))

	httputil.WriteJSONOK(w, uploadResponse{
		VideoID:  videoID,
		Filename: header.Filename,
		Message:  "Video uploaded successfully. Processing started.",
		Status:   survey.StateQueued,
	})
}

// saveUpload streams the multipart part to its destination, removing the
// partial file on a failed copy.
func (s *Server) saveUpload(path string, src io.Reader) error {
	dst, err := s.fs.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		if rmErr := s.fs.Remove(path); rmErr != nil {
			log.Printf("remove partial upload %s: %v", path, rmErr)
		}
		return err
	}
	return dst.Close()
}
