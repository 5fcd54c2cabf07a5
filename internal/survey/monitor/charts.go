package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridisColors is the palette used for visual maps on the chart pages.
var viridisColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// handleJobsChart renders a debugging page with per-job progress and pothole
// counts, plus a scatter of confirmed-pothole confidences over detection
// time. Reports are read through the result store, so completed jobs from a
// previous process run appear once their files are loaded.
func (ws *WebServer) handleJobsChart(w http.ResponseWriter, r *http.Request) {
	ids := ws.statuses.IDs()
	if len(ids) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no jobs recorded")
		return
	}

	labels := make([]string, 0, len(ids))
	progress := make([]opts.BarData, 0, len(ids))
	potholes := make([]opts.BarData, 0, len(ids))
	confidences := make([]opts.ScatterData, 0)
	maxConf := 0.0

	for _, id := range ids {
		st, ok := ws.statuses.Get(id)
		if !ok {
			continue
		}

		short := id
		if len(short) > 8 {
			short = short[:8]
		}
		labels = append(labels, short)
		progress = append(progress, opts.BarData{Value: st.Progress})

		count := 0
		if report, err := ws.results.Get(id); err == nil {
			count = report.Summary.UniquePotholes
			for _, p := range report.PotholeList {
				if p.Confidence > maxConf {
					maxConf = p.Confidence
				}
				confidences = append(confidences, opts.ScatterData{Value: []interface{}{p.FirstDetectedTime, p.Confidence, p.Confidence}})
			}
		}
		potholes = append(potholes, opts.BarData{Value: count})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Survey Jobs", Theme: "dark", Width: "100%", Height: "480px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Survey Jobs", Subtitle: time.Now().UTC().Format(time.RFC3339)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("progress", progress,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		).
		AddSeries("unique potholes", potholes)

	if maxConf == 0 {
		maxConf = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "100%", Height: "480px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Confirmed Pothole Confidence", Subtitle: fmt.Sprintf("jobs=%d potholes=%d", len(labels), len(confidences))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "First detection (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "Confidence", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxConf),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisColors},
		}),
	)
	scatter.AddSeries("potholes", confidences, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar, scatter)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
