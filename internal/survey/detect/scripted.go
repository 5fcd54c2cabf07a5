package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"sort"
	"strconv"
)

// wireBox is the JSON form of a detection box, shared by script files and
// the HTTP model server response.
type wireBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

type wireResult struct {
	TrackID    int64   `json:"track_id"`
	Class      string  `json:"class,omitempty"`
	Confidence float64 `json:"confidence"`
	Box        wireBox `json:"box"`
}

func (w wireResult) result() Result {
	class := w.Class
	if class == "" {
		class = "pothole"
	}
	return Result{
		TrackID:    w.TrackID,
		Class:      class,
		Confidence: w.Confidence,
		Box:        image.Rect(w.Box.X1, w.Box.Y1, w.Box.X2, w.Box.Y2),
	}
}

func toWire(r Result) wireResult {
	return wireResult{
		TrackID:    r.TrackID,
		Class:      r.Class,
		Confidence: r.Confidence,
		Box: wireBox{
			X1: r.Box.Min.X,
			Y1: r.Box.Min.Y,
			X2: r.Box.Max.X,
			Y2: r.Box.Max.Y,
		},
	}
}

type scriptFile struct {
	Frames map[string][]wireResult `json:"frames"`
}

// Scripted replays canned detections keyed by 1-based frame index. Tests and
// the replay tooling use it in place of a real model. Results below the
// requested confidence threshold are dropped, as a real detector would.
type Scripted struct {
	ByFrame map[int][]Result
	ErrAt   map[int]error
}

func (s *Scripted) Detect(ctx context.Context, region Region, conf float64) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx := region.Frame.Index
	if err := s.ErrAt[idx]; err != nil {
		return nil, err
	}
	var out []Result
	for _, r := range s.ByFrame[idx] {
		if r.Confidence >= conf {
			out = append(out, r)
		}
	}
	return out, nil
}

// LoadScript reads a detection script from a JSON file. Frame keys are
// decimal 1-based frame indices.
func LoadScript(path string) (*Scripted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	var file scriptFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}

	s := &Scripted{ByFrame: make(map[int][]Result)}
	for key, entries := range file.Frames {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 1 {
			return nil, fmt.Errorf("script %s: invalid frame key %q", path, key)
		}
		results := make([]Result, 0, len(entries))
		for _, e := range entries {
			results = append(results, e.result())
		}
		s.ByFrame[idx] = results
	}
	return s, nil
}

// Save writes the script to a JSON file in the same format LoadScript reads.
func (s *Scripted) Save(path string) error {
	file := scriptFile{Frames: make(map[string][]wireResult, len(s.ByFrame))}

	frames := make([]int, 0, len(s.ByFrame))
	for idx := range s.ByFrame {
		frames = append(frames, idx)
	}
	sort.Ints(frames)
	for _, idx := range frames {
		entries := make([]wireResult, 0, len(s.ByFrame[idx]))
		for _, r := range s.ByFrame[idx] {
			entries = append(entries, toWire(r))
		}
		file.Frames[strconv.Itoa(idx)] = entries
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode script: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write script %s: %w", path, err)
	}
	return nil
}
