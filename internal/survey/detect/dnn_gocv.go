//go:build gocv
// +build gocv

package detect

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"sort"
	"sync"

	"gocv.io/x/gocv"
)

const dnnInputSize = 640

// DNN runs a YOLO-family ONNX model through OpenCV's DNN module. The
// exported head emits normalized center/size rows with an objectness score
// followed by per-class scores. The model has no tracker, so every result
// carries TrackID 0.
// This implementation is only available when building with the 'gocv' build tag.
type DNN struct {
	mu      sync.Mutex
	net     gocv.Net
	classes []string
	nms     float32
}

// OpenModel loads an ONNX detection model from disk.
func OpenModel(path string) (*DNN, error) {
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, fmt.Errorf("load model %s: empty network", path)
	}
	return &DNN{net: net, classes: []string{"pothole"}, nms: 0.45}, nil
}

func (d *DNN) Detect(ctx context.Context, region Region, conf float64) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := region.Image()
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	mat, err := gocv.ImageToMatRGB(rgba)
	if err != nil {
		return nil, fmt.Errorf("convert frame %d: %w", region.Frame.Index, err)
	}
	defer mat.Close()

	// The network is not safe for concurrent Forward calls.
	d.mu.Lock()
	defer d.mu.Unlock()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Pt(dnnInputSize, dnnInputSize), 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(resized, 1.0/255.0, image.Pt(dnnInputSize, dnnInputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	prob := d.net.Forward("")
	defer prob.Close()

	flat := prob
	if prob.Dims() == 3 {
		sz := prob.Size()
		flat = prob.Reshape(1, sz[1])
		defer flat.Close()
	}

	return d.decode(flat, b.Dx(), b.Dy(), float32(conf)), nil
}

type dnnCandidate struct {
	box   image.Rectangle
	score float32
	class int
}

func (d *DNN) decode(out gocv.Mat, regionW, regionH int, conf float32) []Result {
	rows := out.Rows()
	cols := out.Cols()

	var candidates []dnnCandidate
	for i := 0; i < rows; i++ {
		objectness := out.GetFloatAt(i, 4)
		if objectness < conf {
			continue
		}

		classID := 0
		maxScore := float32(0)
		for j := 5; j < cols; j++ {
			if score := out.GetFloatAt(i, j); score > maxScore {
				maxScore = score
				classID = j - 5
			}
		}
		score := objectness * maxScore
		if score < conf {
			continue
		}

		cx := out.GetFloatAt(i, 0)
		cy := out.GetFloatAt(i, 1)
		w := out.GetFloatAt(i, 2)
		h := out.GetFloatAt(i, 3)

		x1 := clamp(int((cx-w/2)*float32(regionW)), 0, regionW)
		y1 := clamp(int((cy-h/2)*float32(regionH)), 0, regionH)
		x2 := clamp(int((cx+w/2)*float32(regionW)), 0, regionW)
		y2 := clamp(int((cy+h/2)*float32(regionH)), 0, regionH)
		if x2 <= x1 || y2 <= y1 {
			continue
		}

		candidates = append(candidates, dnnCandidate{
			box:   image.Rect(x1, y1, x2, y2),
			score: score,
			class: classID,
		})
	}

	return d.suppress(candidates)
}

// suppress applies non-maximum suppression, keeping the highest-scoring box
// of each overlapping cluster.
func (d *DNN) suppress(candidates []dnnCandidate) []Result {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	var results []Result
	used := make([]bool, len(candidates))
	for i := range candidates {
		if used[i] {
			continue
		}
		used[i] = true
		for j := i + 1; j < len(candidates); j++ {
			if !used[j] && iou(candidates[i].box, candidates[j].box) > float64(d.nms) {
				used[j] = true
			}
		}

		class := "pothole"
		if candidates[i].class < len(d.classes) {
			class = d.classes[candidates[i].class]
		}
		results = append(results, Result{
			TrackID:    0,
			Class:      class,
			Confidence: float64(candidates[i].score),
			Box:        candidates[i].box,
		})
	}
	return results
}

func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ai := inter.Dx() * inter.Dy()
	union := a.Dx()*a.Dy() + b.Dx()*b.Dy() - ai
	if union <= 0 {
		return 0
	}
	return float64(ai) / float64(union)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Close releases the network.
func (d *DNN) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
