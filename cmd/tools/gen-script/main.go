// Command gen-script generates synthetic detection scripts for replaying
// survey runs without a model. Each pothole appears on a run of consecutive
// sampled frames with a drifting box and rising confidence, enough for the
// tracker to confirm it.
package main

import (
	"flag"
	"image"
	"log"
	"math/rand"

	"github.com/pavescan-data/surface.report/internal/survey/detect"
)

func main() {
	output := flag.String("o", "script.json", "output path")
	frames := flag.Int("frames", 300, "total frames in the target video")
	step := flag.Int("step", 2, "frame stride the pipeline will use")
	potholes := flag.Int("potholes", 3, "number of synthetic potholes")
	sightings := flag.Int("sightings", 4, "sampled-frame sightings per pothole")
	width := flag.Int("width", 640, "frame width in pixels")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	script := &detect.Scripted{ByFrame: make(map[int][]detect.Result)}

	span := *frames - *sightings**step
	if span < 1 {
		log.Fatalf("video too short: %d frames cannot fit %d sightings at stride %d", *frames, *sightings, *step)
	}

	total := 0
	for id := 1; id <= *potholes; id++ {
		// First sighting lands on a sampled frame index.
		start := rng.Intn(span) + 1
		start = start - (start % *step) + *step

		x := 40 + rng.Intn(*width-160)
		y := 20 + rng.Intn(120)
		w := 60 + rng.Intn(60)
		h := 40 + rng.Intn(40)
		conf := 0.55 + rng.Float64()*0.25

		for s := 0; s < *sightings; s++ {
			frame := start + s**step
			if frame > *frames {
				break
			}
			// The box slides down and grows as the vehicle approaches.
			box := boxAt(x, y+8*s, w+4*s, h+3*s)
			script.ByFrame[frame] = append(script.ByFrame[frame], detect.Result{
				TrackID:    int64(id),
				Class:      "pothole",
				Confidence: clamp(conf + 0.05*float64(s)),
				Box:        box,
			})
			total++
		}
	}

	if err := script.Save(*output); err != nil {
		log.Fatalf("failed to write script: %v", err)
	}
	log.Printf("✓ Created: %s (%d potholes, %d detections over %d frames)", *output, *potholes, total, *frames)
}

func boxAt(x, y, w, h int) image.Rectangle {
	return image.Rect(x, y, x+w, y+h)
}

func clamp(v float64) float64 {
	if v > 0.99 {
		return 0.99
	}
	return v
}
