package controller

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"pooltemp/internal/growth"
	"pooltemp/internal/utils"
)

// handleChart renders the sampled window of the growth sensor as a line
// chart. The x axis is the sample age relative to the newest sample.
func (c *telemetryControllerImpl) handleChart(w http.ResponseWriter, r *http.Request) {
	if c.trend == nil {
		utils.WriteError(w, http.StatusNotFound, "growth estimate disabled")
		return
	}

	var buf bytes.Buffer
	if err := renderGrowthChart(&buf, c.trend.Trend()); err != nil {
		slog.Error("growth chart render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render chart")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func renderGrowthChart(buf *bytes.Buffer, t growth.Trend) error {
	labels := make([]string, len(t.Samples))
	data := make([]opts.LineData, len(t.Samples))
	for i, v := range t.Samples {
		age := time.Duration(len(t.Samples)-1-i) * t.Interval
		labels[i] = "-" + age.String()
		data[i] = opts.LineData{Value: v}
	}

	subtitle := fmt.Sprintf("sensor=%s samples=%d", t.Sensor, t.Growth.Samples)
	if t.Growth.Samples >= 2 {
		subtitle += fmt.Sprintf(" growth=%.2f°C/h", t.Growth.Value)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Pooltemp growth", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Growth window", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "age"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "°C", Scale: opts.Bool(true)}),
	)
	line.SetXAxis(labels).
		AddSeries("temperature", data).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	return line.Render(buf)
}
