package controller

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"pooltemp/internal/growth"
	"pooltemp/internal/modules/telemetry/views"
	"pooltemp/internal/radio"
	"pooltemp/internal/snapshot"
	"pooltemp/internal/utils"
)

const dashboardRefreshSeconds = 5

// handleFresh forces one decode cycle. It never writes the cache.
func (c *telemetryControllerImpl) handleFresh(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	snap, err := c.decoder.Fresh(r.Context())
	switch {
	case err == nil:
		utils.WriteJSON(w, http.StatusOK, snap)
	case errors.Is(err, radio.ErrNoData):
		w.WriteHeader(http.StatusNoContent)
	default:
		slog.Warn("fresh decode failed", "error", err)
		utils.WriteError(w, http.StatusBadGateway, err.Error())
	}
}

func (c *telemetryControllerImpl) handleCache(w http.ResponseWriter, r *http.Request) {
	snap, ok := c.cache.Load()
	if !ok {
		utils.WriteJSON(w, http.StatusOK, struct{}{})
		return
	}
	utils.WriteJSON(w, http.StatusOK, snap)
}

type growthResponse struct {
	Sensor          string          `json:"sensor"`
	Growth          snapshot.Growth `json:"growth"`
	Samples         []float64       `json:"samples"`
	IntervalSeconds float64         `json:"interval_seconds"`
	UpdatedAt       *time.Time      `json:"updated_at,omitempty"`
}

func (c *telemetryControllerImpl) handleGrowth(w http.ResponseWriter, r *http.Request) {
	if c.trend == nil {
		utils.WriteError(w, http.StatusNotFound, "growth estimate disabled")
		return
	}
	t := c.trend.Trend()
	resp := growthResponse{
		Sensor:          t.Sensor.String(),
		Growth:          t.Growth,
		Samples:         t.Samples,
		IntervalSeconds: t.Interval.Seconds(),
	}
	if resp.Samples == nil {
		resp.Samples = []float64{}
	}
	if !t.UpdatedAt.IsZero() {
		resp.UpdatedAt = &t.UpdatedAt
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (c *telemetryControllerImpl) handleSensors(w http.ResponseWriter, r *http.Request) {
	if c.repository == nil {
		utils.WriteError(w, http.StatusNotFound, "history disabled")
		return
	}
	sensors, err := c.repository.GetSensors()
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, sensors)
}

func (c *telemetryControllerImpl) handleReadings(w http.ResponseWriter, r *http.Request) {
	if c.repository == nil {
		utils.WriteError(w, http.StatusNotFound, "history disabled")
		return
	}
	id, err := parseSensorPath(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, to, limit, err := parseReadingsQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, err := c.repository.GetReadings(id, from, to, limit)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, readings)
}

func (c *telemetryControllerImpl) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if c.repository == nil {
		utils.WriteError(w, http.StatusNotFound, "history disabled")
		return
	}
	limit, err := parseLimitQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	snaps, err := c.repository.GetLatestSnapshots(limit)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, snaps)
}

func (c *telemetryControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := views.DashboardData{RefreshSeconds: dashboardRefreshSeconds}

	var trend *growth.Trend
	if c.trend != nil {
		t := c.trend.Trend()
		trend = &t
		data.Growth = &views.GrowthView{
			Sensor:  t.Sensor.String(),
			Samples: t.Growth.Samples,
			Value:   t.Growth.Value,
			Ready:   t.Growth.Samples >= 2,
		}
	}
	if snap, ok := c.cache.Load(); ok {
		data.Snapshot = snapshotView(snap, trend)
	}

	var buf bytes.Buffer
	if err := views.RenderDashboard(&buf, &data); err != nil {
		slog.Error("dashboard template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func snapshotView(snap snapshot.Snapshot, trend *growth.Trend) *views.SnapshotView {
	v := &views.SnapshotView{
		CapturedAt: snap.CapturedAt,
		Uptime:     snap.Uptime,
		MemAlloc:   snap.MemAlloc,
		MemFree:    snap.MemFree,
		RSSI:       snap.SignalStrength,
		Sensors:    make([]views.SensorRow, 0, len(snap.Sensors)),
	}
	for id, temp := range snap.Sensors {
		v.Sensors = append(v.Sensors, views.SensorRow{
			ID:          id.String(),
			Temperature: temp,
			Tracked:     trend != nil && trend.Sensor == id,
		})
	}
	sort.Slice(v.Sensors, func(i, j int) bool { return v.Sensors[i].ID < v.Sensors[j].ID })
	return v
}
