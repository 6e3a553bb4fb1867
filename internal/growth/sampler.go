package growth

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"pooltemp/internal/frame"
	"pooltemp/internal/snapshot"
)

var (
	ErrCacheEmpty = errors.New("growth: no snapshot cached yet")
	ErrMissingKey = errors.New("growth: sensor missing from snapshot")
	ErrNonFinite  = errors.New("growth: sensor reading is not a finite number")
)

// SnapshotReader is the read side of the snapshot cache.
type SnapshotReader interface {
	Load() (snapshot.Snapshot, bool)
}

type Metrics interface {
	SampleSkipped(reason string)
	GrowthUpdated(g snapshot.Growth)
}

type nopMetrics struct{}

func (nopMetrics) SampleSkipped(string)          {}
func (nopMetrics) GrowthUpdated(snapshot.Growth) {}

// Trend is the published result of the latest sampling cycle.
type Trend struct {
	Sensor    frame.SensorID  `json:"sensor"`
	Growth    snapshot.Growth `json:"growth"`
	Samples   []float64       `json:"samples"`
	Interval  time.Duration   `json:"-"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Sampler periodically copies the designated sensor's temperature from the
// cache into its window and recomputes the growth estimate.
type Sampler struct {
	cache     SnapshotReader
	sensor    frame.SensorID
	window    *Window
	estimator Estimator
	logger    *slog.Logger
	metrics   Metrics

	latest atomic.Pointer[Trend]
}

func NewSampler(cache SnapshotReader, sensor frame.SensorID, window *Window, estimator Estimator, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sampler{
		cache:     cache,
		sensor:    sensor,
		window:    window,
		estimator: estimator,
		logger:    logger,
		metrics:   nopMetrics{},
	}
	s.latest.Store(&Trend{
		Sensor:   sensor,
		Growth:   estimator.Estimate(nil),
		Samples:  []float64{},
		Interval: estimator.Interval(),
	})
	return s
}

// WithMetrics attaches a metrics sink. Call before Run.
func (s *Sampler) WithMetrics(m Metrics) *Sampler {
	if m != nil {
		s.metrics = m
	}
	return s
}

// Sample runs one cycle. It returns ErrCacheEmpty, ErrMissingKey or
// ErrNonFinite when the cycle was skipped; the window is untouched in that
// case.
func (s *Sampler) Sample() error {
	snap, ok := s.cache.Load()
	if !ok {
		return ErrCacheEmpty
	}
	temp, ok := snap.Temperature(s.sensor)
	if !ok {
		return ErrMissingKey
	}
	if v := float64(temp); math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrNonFinite
	}

	s.window.Push(float64(temp))
	samples := s.window.Values()
	g := s.estimator.Estimate(samples)
	s.latest.Store(&Trend{
		Sensor:    s.sensor,
		Growth:    g,
		Samples:   samples,
		Interval:  s.estimator.Interval(),
		UpdatedAt: time.Now(),
	})
	s.metrics.GrowthUpdated(g)
	return nil
}

// Run samples every interval until ctx is done. Skipped cycles are logged and
// never end the loop.
func (s *Sampler) Run(ctx context.Context) error {
	interval := s.estimator.Interval()
	s.logger.Info("growth sampler started", "sensor", s.sensor.String(), "interval", interval, "capacity", s.window.Cap())

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("growth sampler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		if err := s.Sample(); err != nil {
			reason := skipReason(err)
			s.metrics.SampleSkipped(reason)
			if reason == "non_finite" {
				s.logger.Warn("growth sample skipped", "sensor", s.sensor.String(), "reason", err)
			} else {
				s.logger.Debug("growth sample skipped", "sensor", s.sensor.String(), "reason", err)
			}
		} else {
			t := s.Trend()
			s.logger.Debug("growth sampled", "samples", t.Growth.Samples, "rate", t.Growth.Value)
		}
		timer.Reset(interval)
	}
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingKey):
		return "missing_key"
	case errors.Is(err, ErrNonFinite):
		return "non_finite"
	default:
		return "cache_empty"
	}
}

// Growth returns the most recent estimate. Safe from any goroutine.
func (s *Sampler) Growth() snapshot.Growth {
	return s.latest.Load().Growth
}

// Trend returns the most recent estimate together with the window contents
// it was computed from.
func (s *Sampler) Trend() Trend {
	return *s.latest.Load()
}
