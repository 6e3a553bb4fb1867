package growth

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/stat"

	"pooltemp/internal/snapshot"
)

const (
	DefaultInterval  = 60 * time.Second
	// DefaultSentinel is also a valid rate; Growth.Samples < 2 is what marks
	// an estimate as unavailable.
	DefaultSentinel  = -1.0
	DefaultPrecision = 2
)

// Estimator converts evenly spaced samples into a per-hour rate of change.
type Estimator struct {
	interval  time.Duration
	sentinel  float64
	precision int
}

// NewEstimator builds an Estimator for samples taken every interval. A
// non-positive interval selects DefaultInterval; a negative precision
// selects DefaultPrecision.
func NewEstimator(interval time.Duration, sentinel float64, precision int) Estimator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if precision < 0 {
		precision = DefaultPrecision
	}
	return Estimator{interval: interval, sentinel: sentinel, precision: precision}
}

func (e Estimator) Interval() time.Duration { return e.interval }

func (e Estimator) Sentinel() float64 { return e.sentinel }

// Estimate returns the mean of consecutive deltas scaled to one hour,
// rounded to the configured precision. With fewer than two samples the value
// is the sentinel.
func (e Estimator) Estimate(samples []float64) snapshot.Growth {
	n := len(samples)
	if n < 2 {
		return snapshot.Growth{Samples: n, Value: e.sentinel}
	}

	deltas := make([]float64, n-1)
	floats.SubTo(deltas, samples[1:], samples[:n-1])
	rate := stat.Mean(deltas, nil) * 3600 / e.interval.Seconds()

	return snapshot.Growth{Samples: n, Value: scalar.Round(rate, e.precision)}
}
