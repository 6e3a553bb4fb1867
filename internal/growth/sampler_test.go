package growth

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pooltemp/internal/frame"
	"pooltemp/internal/snapshot"
)

var (
	poolSensor = frame.SensorID{40, 170, 73, 65, 64, 20, 1, 64}
	airSensor  = frame.SensorID{40, 170, 188, 49, 64, 20, 1, 156}
)

type recordingMetrics struct {
	mu      sync.Mutex
	skips   []string
	updates int
}

func (m *recordingMetrics) SampleSkipped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skips = append(m.skips, reason)
}

func (m *recordingMetrics) GrowthUpdated(snapshot.Growth) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
}

func (m *recordingMetrics) snapshot() ([]string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.skips...), m.updates
}

func newTestSampler(cache SnapshotReader, interval time.Duration) (*Sampler, *Window) {
	w := NewWindow(DefaultCapacity)
	return NewSampler(cache, poolSensor, w, NewEstimator(interval, DefaultSentinel, DefaultPrecision), nil), w
}

func TestSampler_EmptyCacheSkips(t *testing.T) {
	s, w := newTestSampler(snapshot.NewCache(), time.Minute)

	err := s.Sample()
	assert.True(t, errors.Is(err, ErrCacheEmpty))
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, snapshot.Growth{Samples: 0, Value: DefaultSentinel}, s.Growth())
}

func TestSampler_MissingKeySkips(t *testing.T) {
	cache := snapshot.NewCache()
	cache.Store(snapshot.Snapshot{Sensors: map[frame.SensorID]float32{airSensor: 12}})
	s, w := newTestSampler(cache, time.Minute)

	assert.ErrorIs(t, s.Sample(), ErrMissingKey)
	assert.Equal(t, 0, w.Len())
}

func TestSampler_NonFiniteReadingSkips(t *testing.T) {
	cache := snapshot.NewCache()
	s, w := newTestSampler(cache, 15*time.Second)

	for _, v := range []float32{10, float32(math.NaN()), float32(math.Inf(1)), 11, 13} {
		cache.Store(snapshot.Snapshot{Sensors: map[frame.SensorID]float32{poolSensor: v}})
		if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
			assert.ErrorIs(t, s.Sample(), ErrNonFinite)
			continue
		}
		require.NoError(t, s.Sample())
	}

	assert.Equal(t, []float64{10, 11, 13}, w.Values())
	assert.Equal(t, snapshot.Growth{Samples: 3, Value: 360}, s.Growth())
}

func TestSampler_RunReportsNonFiniteSkip(t *testing.T) {
	cache := snapshot.NewCache()
	cache.Store(snapshot.Snapshot{Sensors: map[frame.SensorID]float32{poolSensor: float32(math.NaN())}})
	m := &recordingMetrics{}
	s, w := newTestSampler(cache, 5*time.Millisecond)
	s.WithMetrics(m)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, s.Run(ctx), context.DeadlineExceeded)
	assert.Equal(t, 0, w.Len())

	skips, updates := m.snapshot()
	require.NotEmpty(t, skips)
	assert.Equal(t, "non_finite", skips[0])
	assert.Equal(t, 0, updates)
}

func TestSampler_PushesAndEstimates(t *testing.T) {
	cache := snapshot.NewCache()
	s, w := newTestSampler(cache, 15*time.Second)

	for _, v := range []float32{10, 11, 13} {
		cache.Store(snapshot.Snapshot{Sensors: map[frame.SensorID]float32{poolSensor: v}})
		require.NoError(t, s.Sample())
	}

	assert.Equal(t, []float64{10, 11, 13}, w.Values())
	trend := s.Trend()
	assert.Equal(t, poolSensor, trend.Sensor)
	assert.Equal(t, []float64{10, 11, 13}, trend.Samples)
	assert.Equal(t, snapshot.Growth{Samples: 3, Value: 360}, s.Growth())
	assert.False(t, trend.UpdatedAt.IsZero())
}

func TestSampler_RunOnEmptyCacheKeepsGoing(t *testing.T) {
	m := &recordingMetrics{}
	s, w := newTestSampler(snapshot.NewCache(), 5*time.Millisecond)
	s.WithMetrics(m)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, w.Len())

	skips, updates := m.snapshot()
	assert.GreaterOrEqual(t, len(skips), 2)
	assert.Equal(t, "cache_empty", skips[0])
	assert.Equal(t, 0, updates)
}

func TestSampler_RunSamplesUntilCanceled(t *testing.T) {
	cache := snapshot.NewCache()
	cache.Store(snapshot.Snapshot{Sensors: map[frame.SensorID]float32{poolSensor: 24}})
	m := &recordingMetrics{}
	s, _ := newTestSampler(cache, 5*time.Millisecond)
	s.WithMetrics(m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, updates := m.snapshot()
		return updates >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sampler did not stop")
	}
	assert.Equal(t, 0.0, s.Growth().Value)
}
