// Package metrics exposes ingest and sampler activity as prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pooltemp/internal/ingest"
	"pooltemp/internal/snapshot"
)

// Station implements ingest.Metrics and growth.Metrics on its own registry.
type Station struct {
	registry *prometheus.Registry

	cycles       *prometheus.CounterVec
	sinkFailures *prometheus.CounterVec
	sampleSkips  *prometheus.CounterVec
	rssi         prometheus.Gauge
	lastCapture  prometheus.Gauge
	nodeUptime   prometheus.Gauge
	nodeMemFree  prometheus.Gauge
	temperature  *prometheus.GaugeVec
	growthRate   prometheus.Gauge
	growthWindow prometheus.Gauge
}

func New() *Station {
	s := &Station{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pooltemp_ingest_cycles_total",
			Help: "Receive cycles by outcome.",
		}, []string{"outcome"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pooltemp_sink_failures_total",
			Help: "Snapshots a sink failed to accept.",
		}, []string{"sink"}),
		sampleSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pooltemp_growth_samples_skipped_total",
			Help: "Growth sampling cycles skipped, by reason.",
		}, []string{"reason"}),
		rssi: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pooltemp_radio_rssi_dbm",
			Help: "Signal strength of the last stored frame.",
		}),
		lastCapture: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pooltemp_snapshot_captured_timestamp_seconds",
			Help: "Unix time the cached snapshot was captured.",
		}),
		nodeUptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pooltemp_node_uptime_seconds",
			Help: "Uptime reported by the sensor node.",
		}),
		nodeMemFree: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pooltemp_node_mem_free_bytes",
			Help: "Free memory reported by the sensor node.",
		}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pooltemp_sensor_temperature_celsius",
			Help: "Last reported temperature per sensor.",
		}, []string{"sensor"}),
		growthRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pooltemp_growth_rate_celsius_per_hour",
			Help: "Growth-rate estimate of the sampled sensor; the sentinel when not computable.",
		}),
		growthWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pooltemp_growth_window_samples",
			Help: "Samples in the growth window.",
		}),
	}

	s.registry.MustRegister(
		s.cycles, s.sinkFailures, s.sampleSkips,
		s.rssi, s.lastCapture, s.nodeUptime, s.nodeMemFree,
		s.temperature, s.growthRate, s.growthWindow,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return s
}

func (s *Station) CycleCompleted(o ingest.Outcome) {
	s.cycles.WithLabelValues(o.String()).Inc()
}

func (s *Station) SnapshotStored(snap snapshot.Snapshot) {
	s.rssi.Set(float64(snap.SignalStrength))
	s.lastCapture.Set(float64(snap.CapturedAt.UnixNano()) / 1e9)
	s.nodeUptime.Set(snap.Uptime)
	s.nodeMemFree.Set(float64(snap.MemFree))
	for id, t := range snap.Sensors {
		s.temperature.WithLabelValues(id.String()).Set(float64(t))
	}
}

func (s *Station) SinkFailed(sink string) {
	s.sinkFailures.WithLabelValues(sink).Inc()
}

func (s *Station) SampleSkipped(reason string) {
	s.sampleSkips.WithLabelValues(reason).Inc()
}

func (s *Station) GrowthUpdated(g snapshot.Growth) {
	s.growthRate.Set(g.Value)
	s.growthWindow.Set(float64(g.Samples))
}

// Handler serves the registry in the prometheus exposition format.
func (s *Station) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

func (s *Station) Registry() *prometheus.Registry {
	return s.registry
}
