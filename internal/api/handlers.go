package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/pavescan-data/surface.report/internal/httputil"
	"github.com/pavescan-data/surface.report/internal/survey"
)

// pathID extracts the job id from a path like /status/{id}. Empty or
// nested ids are rejected.
func pathID(path, prefix string) (string, bool) {
	id := strings.TrimPrefix(path, prefix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id, ok := pathID(r.URL.Path, "/status/")
	if !ok {
		httputil.NotFound(w, "Video ID not found")
		return
	}
	st, ok := s.statuses.Get(id)
	if !ok {
		httputil.NotFound(w, "Video ID not found")
		return
	}
	httputil.WriteJSONOK(w, st)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id, ok := pathID(r.URL.Path, "/results/")
	if !ok {
		httputil.NotFound(w, "Results not found. Video may still be processing.")
		return
	}
	report, err := s.results.Get(id)
	if err != nil {
		if errors.Is(err, survey.ErrReportNotFound) {
			httputil.NotFound(w, "Results not found. Video may still be processing.")
			return
		}
		httputil.InternalServerError(w, "Failed to load results")
		return
	}
	httputil.WriteJSONOK(w, report)
}

type videoEntry struct {
	VideoID  string          `json:"video_id"`
	Status   string          `json:"status"`
	Progress int             `json:"progress"`
	Message  string          `json:"message"`
	Summary  *survey.Summary `json:"summary,omitempty"`
}

// handleVideos lists every known job with its status; completed jobs carry
// their report summary.
func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	ids := s.statuses.IDs()
	videos := make([]videoEntry, 0, len(ids))
	for _, id := range ids {
		st, ok := s.statuses.Get(id)
		if !ok {
			continue
		}
		entry := videoEntry{
			VideoID:  id,
			Status:   st.Status,
			Progress: st.Progress,
			Message:  st.Message,
		}
		if st.Status == survey.StateCompleted {
			if summary, ok := s.results.Summary(id); ok {
				entry.Summary = &summary
			}
		}
		videos = append(videos, entry)
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"videos": videos})
}

// healthzProbeTimeout bounds the remote detector probe so a hung model
// server cannot stall health checks.
const healthzProbeTimeout = 2 * time.Second

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	ready := s.detector != nil
	if hc, ok := s.detector.(HealthChecker); ok {
		ctx, cancel := context.WithTimeout(r.Context(), healthzProbeTimeout)
		defer cancel()
		if err := hc.CheckHealth(ctx); err != nil {
			ready = false
		}
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":         "ok",
		"detector_ready": ready,
		"queue_depth":    s.runner.QueueDepth(),
		"jobs":           s.statuses.Len(),
	})
}
