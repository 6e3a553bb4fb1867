// Package node is the sensor side: read probes, build a frame, transmit it.
package node

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"time"

	"pooltemp/internal/frame"
	"pooltemp/internal/radio"
)

const (
	DefaultInterval   = 2 * time.Second
	DefaultRetryDelay = 5 * time.Second
)

// Reader produces one record per probe.
type Reader interface {
	Read(ctx context.Context) ([]frame.SensorRecord, error)
}

// Transmitter sends a frame every interval. Any failure is logged and the
// next attempt waits the retry delay instead.
type Transmitter struct {
	reader     Reader
	sender     radio.Sender
	interval   time.Duration
	retryDelay time.Duration
	logger     *slog.Logger

	started  time.Time
	now      func() time.Time
	memStats func() (alloc, free uint32)
}

func NewTransmitter(reader Reader, sender radio.Sender, interval, retryDelay time.Duration, logger *slog.Logger) *Transmitter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transmitter{
		reader:     reader,
		sender:     sender,
		interval:   interval,
		retryDelay: retryDelay,
		logger:     logger,
		started:    time.Now(),
		now:        time.Now,
		memStats:   runtimeMem,
	}
}

// Header describes the node right now.
func (t *Transmitter) Header() frame.Header {
	alloc, free := t.memStats()
	return frame.Header{
		Uptime:   t.now().Sub(t.started).Seconds(),
		MemAlloc: alloc,
		MemFree:  free,
	}
}

// Transmit reads all probes and sends one frame.
func (t *Transmitter) Transmit(ctx context.Context) (int, error) {
	records, err := t.reader.Read(ctx)
	if err != nil {
		return 0, err
	}
	payload := frame.Encode(t.Header(), records)
	if err := t.sender.Send(ctx, payload); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Run transmits until ctx is done.
func (t *Transmitter) Run(ctx context.Context) error {
	t.logger.Info("transmitter started", "interval", t.interval, "retry_delay", t.retryDelay)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("transmitter stopped")
			return ctx.Err()
		case <-timer.C:
		}

		wait := t.interval
		n, err := t.Transmit(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			t.logger.Warn("transmit failed", "error", err, "retry_in", t.retryDelay)
			wait = t.retryDelay
		} else {
			t.logger.Debug("frame sent", "sensors", n, "bytes", frame.Size(n))
		}
		timer.Reset(wait)
	}
}

func runtimeMem() (alloc, free uint32) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return clampUint32(m.HeapAlloc), clampUint32(m.HeapIdle - m.HeapReleased)
}

func clampUint32(v uint64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}
