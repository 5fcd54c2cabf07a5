// Command report-dump summarises survey report files on the command line.
// Point it at a results directory or individual report JSON files; it prints
// one line per run plus aggregate confidence statistics across all of them.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/pavescan-data/surface.report/internal/survey"
)

type aggregate struct {
	Reports        int     `json:"reports"`
	Potholes       int     `json:"potholes"`
	Detections     int     `json:"detections"`
	MeanConfidence float64 `json:"mean_confidence"`
	StdDev         float64 `json:"stddev_confidence"`
	Median         float64 `json:"median_confidence"`
	MeanRate       float64 `json:"mean_detection_rate"`
}

func main() {
	dir := flag.String("dir", "", "results directory to scan for report files")
	asJSON := flag.Bool("json", false, "emit the aggregate as JSON")
	quiet := flag.Bool("quiet", false, "suppress per-report lines")
	flag.Parse()

	paths := flag.Args()
	if *dir != "" {
		found, err := filepath.Glob(filepath.Join(*dir, "*.json"))
		if err != nil {
			log.Fatalf("scan %s: %v", *dir, err)
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		log.Fatal("no report files: pass paths or -dir")
	}
	sort.Strings(paths)

	var (
		agg         aggregate
		confidences []float64
		rates       []float64
	)

	for _, path := range paths {
		report, err := loadReport(path)
		if err != nil {
			log.Printf("skipping %s: %v", path, err)
			continue
		}

		agg.Reports++
		agg.Potholes += report.Summary.UniquePotholes
		agg.Detections += report.Summary.TotalDetections
		rates = append(rates, report.Summary.DetectionRate)
		for _, p := range report.PotholeList {
			confidences = append(confidences, p.Confidence)
		}

		if !*quiet {
			fmt.Printf("%-36s  %5d frames (%d processed)  %2d potholes  %3d detections  rate %5.2f%%\n",
				report.VideoID, report.Summary.TotalFrames, report.Summary.ProcessedFrames,
				report.Summary.UniquePotholes, report.Summary.TotalDetections, report.Summary.DetectionRate)
		}
	}

	if agg.Reports == 0 {
		log.Fatal("no readable reports")
	}

	if len(confidences) > 0 {
		sort.Float64s(confidences)
		agg.MeanConfidence = stat.Mean(confidences, nil)
		if len(confidences) > 1 {
			agg.StdDev = stat.StdDev(confidences, nil)
		}
		agg.Median = stat.Quantile(0.5, stat.Empirical, confidences, nil)
	}
	agg.MeanRate = stat.Mean(rates, nil)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(agg); err != nil {
			log.Fatalf("encode aggregate: %v", err)
		}
		return
	}

	fmt.Println(strings.Repeat("-", 72))
	fmt.Printf("%d reports, %d potholes, %d detections\n", agg.Reports, agg.Potholes, agg.Detections)
	if len(confidences) > 0 {
		fmt.Printf("confidence: mean %.3f, stddev %.3f, median %.3f\n", agg.MeanConfidence, agg.StdDev, agg.Median)
	}
	fmt.Printf("mean detection rate: %.2f%%\n", agg.MeanRate)
}

func loadReport(path string) (*survey.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var report survey.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if report.VideoID == "" {
		return nil, fmt.Errorf("not a survey report")
	}
	return &report, nil
}
