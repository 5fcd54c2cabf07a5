package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/pavescan-data/surface.report/internal/survey"
)

// TimelinePlotter renders post-run PNGs for completed jobs: stored
// detections over video time, and the cumulative unique pothole count.
// The pipeline's completion hook feeds it when a plot directory is
// configured; failures are reported to the caller, never to the job.
type TimelinePlotter struct {
	dir string
}

// NewTimelinePlotter creates the output directory if needed.
func NewTimelinePlotter(dir string) (*TimelinePlotter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}
	return &TimelinePlotter{dir: dir}, nil
}

var (
	detectionColor = color.RGBA{R: 0x26, G: 0x82, B: 0x8e, A: 255}
	confirmColor   = color.RGBA{R: 0x44, G: 0x01, B: 0x54, A: 255}
	countColor     = color.RGBA{R: 0x35, G: 0xb7, B: 0x79, A: 255}
)

// Plot writes the timeline PNGs for one report and returns their paths.
func (tp *TimelinePlotter) Plot(r *survey.Report) ([]string, error) {
	fps := r.VideoInfo.FPS
	xOf := func(frameID int) float64 {
		if fps > 0 {
			return float64(frameID) / fps
		}
		return float64(frameID)
	}
	xLabel := "Time (s)"
	if fps <= 0 {
		xLabel = "Frame"
	}

	confidencePath := filepath.Join(tp.dir, r.VideoID+"_detections.png")
	if err := tp.confidencePlot(r, xOf, xLabel, confidencePath); err != nil {
		return nil, err
	}

	countPath := filepath.Join(tp.dir, r.VideoID+"_count.png")
	if err := tp.countPlot(r, countPath); err != nil {
		return []string{confidencePath}, err
	}

	return []string{confidencePath, countPath}, nil
}

// confidencePlot scatters every stored detection and marks each pothole's
// confirming sighting.
func (tp *TimelinePlotter) confidencePlot(r *survey.Report, xOf func(int) float64, xLabel, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Survey %s: %d unique potholes", shortID(r.VideoID), r.Summary.UniquePotholes)
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "Confidence"
	p.Y.Min = 0
	p.Y.Max = 1

	var detections plotter.XYs
	for _, entry := range r.Frames {
		for _, d := range entry.Potholes {
			detections = append(detections, plotter.XY{X: xOf(entry.FrameID), Y: d.Confidence})
		}
	}
	if len(detections) > 0 {
		scatter, err := plotter.NewScatter(detections)
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Color = detectionColor
		scatter.GlyphStyle.Radius = vg.Points(3)
		p.Add(scatter)
		p.Legend.Add("detections", scatter)
	}

	var confirmations plotter.XYs
	for _, rec := range r.PotholeList {
		confirmations = append(confirmations, plotter.XY{X: rec.FirstDetectedTime, Y: rec.Confidence})
	}
	if len(confirmations) > 0 {
		scatter, err := plotter.NewScatter(confirmations)
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Color = confirmColor
		scatter.GlyphStyle.Radius = vg.Points(5)
		p.Add(scatter)
		p.Legend.Add("confirmed", scatter)
	}

	p.Legend.Top = true
	p.Legend.Left = false

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save confidence plot: %w", err)
	}
	return nil
}

// countPlot draws the cumulative unique pothole count as a step line from
// the start of the clip to its end.
func (tp *TimelinePlotter) countPlot(r *survey.Report, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Survey %s: cumulative potholes", shortID(r.VideoID))
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Unique potholes"
	p.Y.Min = 0

	sorted := append([]survey.PotholeRecord(nil), r.PotholeList...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FirstDetectedTime < sorted[j].FirstDetectedTime
	})

	pts := plotter.XYs{{X: 0, Y: 0}}
	for i, rec := range sorted {
		pts = append(pts,
			plotter.XY{X: rec.FirstDetectedTime, Y: float64(i)},
			plotter.XY{X: rec.FirstDetectedTime, Y: float64(i + 1)},
		)
	}
	end := r.VideoInfo.Duration
	if last := pts[len(pts)-1]; end > last.X {
		pts = append(pts, plotter.XY{X: end, Y: float64(len(sorted))})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = countColor
	line.Width = vg.Points(2)
	p.Add(line)

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save count plot: %w", err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
