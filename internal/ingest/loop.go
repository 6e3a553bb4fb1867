// Package ingest pulls frames off the radio, decodes them and publishes each
// one to the snapshot cache.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pooltemp/internal/frame"
	"pooltemp/internal/radio"
	"pooltemp/internal/snapshot"
)

type Mode int

const (
	// SingleShot performs exactly one cycle.
	SingleShot Mode = iota
	// Recurring repeats cycles until the context is done.
	Recurring
)

func (m Mode) String() string {
	if m == Recurring {
		return "recurring"
	}
	return "single-shot"
}

// Outcome classifies a single receive/decode attempt.
type Outcome int

const (
	OutcomeDecoded Outcome = iota
	OutcomeNoData
	OutcomeFormatError
	OutcomeTransportFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDecoded:
		return "decoded"
	case OutcomeNoData:
		return "no_data"
	case OutcomeFormatError:
		return "format_error"
	case OutcomeTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// CycleResult is the result of one cycle. Snapshot is only set for
// OutcomeDecoded; Err only for the two failure outcomes.
type CycleResult struct {
	Outcome  Outcome
	Snapshot snapshot.Snapshot
	Err      error
}

const DefaultFailureBackoff = time.Second

type Config struct {
	Mode    Mode
	Timeout time.Duration
	// Delay separates recurring cycles. Zero means back to back.
	Delay time.Duration
	// FailureBackoff is waited after a transport failure so a dead link does
	// not spin.
	FailureBackoff time.Duration
}

// GrowthSource supplies the current growth estimate stamped on each snapshot.
type GrowthSource interface {
	Growth() snapshot.Growth
}

type Metrics interface {
	CycleCompleted(o Outcome)
	SnapshotStored(s snapshot.Snapshot)
	SinkFailed(sink string)
}

type nopMetrics struct{}

func (nopMetrics) CycleCompleted(Outcome)           {}
func (nopMetrics) SnapshotStored(snapshot.Snapshot) {}
func (nopMetrics) SinkFailed(string)                {}

// StaticGrowth is a GrowthSource that never changes, used when no sensor is
// designated for sampling.
type StaticGrowth snapshot.Growth

func (g StaticGrowth) Growth() snapshot.Growth { return snapshot.Growth(g) }

// Loop is the only writer of its cache.
type Loop struct {
	source  radio.PacketSource
	cache   *snapshot.Cache
	cfg     Config
	logger  *slog.Logger
	growth  GrowthSource
	sinks   []Sink
	metrics Metrics
	now     func() time.Time
}

func NewLoop(source radio.PacketSource, cache *snapshot.Cache, cfg Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureBackoff <= 0 {
		cfg.FailureBackoff = DefaultFailureBackoff
	}
	return &Loop{
		source:  source,
		cache:   cache,
		cfg:     cfg,
		logger:  logger,
		growth:  StaticGrowth{Value: -1},
		metrics: nopMetrics{},
		now:     time.Now,
	}
}

func (l *Loop) WithGrowth(g GrowthSource) *Loop {
	if g != nil {
		l.growth = g
	}
	return l
}

// WithSinks registers sinks that receive every stored snapshot.
func (l *Loop) WithSinks(sinks ...Sink) *Loop {
	l.sinks = append(l.sinks, sinks...)
	return l
}

func (l *Loop) WithMetrics(m Metrics) *Loop {
	if m != nil {
		l.metrics = m
	}
	return l
}

// Cycle performs one receive attempt and, on a good frame, replaces the
// cached snapshot and forwards it to the sinks.
func (l *Loop) Cycle(ctx context.Context) CycleResult {
	res := l.receive(ctx)
	if res.Outcome == OutcomeDecoded {
		l.cache.Store(res.Snapshot)
		l.metrics.SnapshotStored(res.Snapshot)
		l.dispatch(ctx, res.Snapshot)
	}
	l.metrics.CycleCompleted(res.Outcome)
	return res
}

// Fresh receives and decodes one frame without touching the cache.
// It returns radio.ErrNoData when nothing arrived within the timeout.
func (l *Loop) Fresh(ctx context.Context) (snapshot.Snapshot, error) {
	res := l.receive(ctx)
	switch res.Outcome {
	case OutcomeDecoded:
		return res.Snapshot, nil
	case OutcomeNoData:
		return snapshot.Snapshot{}, radio.ErrNoData
	default:
		return snapshot.Snapshot{}, res.Err
	}
}

// Run executes cycles according to the configured mode. Recoverable
// outcomes are logged and never stop a recurring loop; Run only returns
// ctx.Err() once the context is done.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("ingest started", "mode", l.cfg.Mode.String(), "timeout", l.cfg.Timeout, "delay", l.cfg.Delay)
	for {
		res := l.Cycle(ctx)
		if err := ctx.Err(); err != nil {
			l.logger.Info("ingest stopped")
			return err
		}
		l.logResult(res)

		if l.cfg.Mode == SingleShot {
			return nil
		}

		wait := l.cfg.Delay
		if res.Outcome == OutcomeTransportFailure && wait < l.cfg.FailureBackoff {
			wait = l.cfg.FailureBackoff
		}
		if wait > 0 {
			select {
			case <-ctx.Done():
				l.logger.Info("ingest stopped")
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
}

// receive turns a panicking source into a transport failure.
func (l *Loop) receive(ctx context.Context) (res CycleResult) {
	defer func() {
		if r := recover(); r != nil {
			res = CycleResult{Outcome: OutcomeTransportFailure, Err: fmt.Errorf("packet source panic: %v", r)}
		}
	}()

	pkt, err := l.source.Receive(ctx, l.cfg.Timeout)
	if errors.Is(err, radio.ErrNoData) {
		return CycleResult{Outcome: OutcomeNoData}
	}
	if err != nil {
		return CycleResult{Outcome: OutcomeTransportFailure, Err: err}
	}

	f, err := frame.Decode(pkt.Payload)
	if err != nil {
		return CycleResult{Outcome: OutcomeFormatError, Err: err}
	}

	capturedAt := pkt.ReceivedAt
	if capturedAt.IsZero() {
		capturedAt = l.now()
	}
	return CycleResult{
		Outcome:  OutcomeDecoded,
		Snapshot: snapshot.New(f, pkt.RSSI, capturedAt, l.growth.Growth()),
	}
}

func (l *Loop) dispatch(ctx context.Context, s snapshot.Snapshot) {
	for _, sink := range l.sinks {
		if err := consume(ctx, sink, s); err != nil {
			l.metrics.SinkFailed(sink.Name())
			l.logger.Warn("snapshot sink failed", "sink", sink.Name(), "error", err)
		}
	}
}

func consume(ctx context.Context, sink Sink, s snapshot.Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return sink.Consume(ctx, s)
}

func (l *Loop) logResult(res CycleResult) {
	switch res.Outcome {
	case OutcomeDecoded:
		l.logger.Info("snapshot stored",
			"sensors", len(res.Snapshot.Sensors),
			"rssi", res.Snapshot.SignalStrength,
			"uptime", res.Snapshot.Uptime,
			"mem_free", res.Snapshot.MemFree,
		)
	case OutcomeNoData:
		l.logger.Debug("no frame within timeout", "timeout", l.cfg.Timeout)
	case OutcomeFormatError:
		var fe *frame.FormatError
		if errors.As(res.Err, &fe) {
			l.logger.Warn("discarding malformed frame", "length", fe.Length, "error", res.Err)
			return
		}
		l.logger.Warn("discarding malformed frame", "error", res.Err)
	case OutcomeTransportFailure:
		l.logger.Error("receive failed", "error", res.Err)
	}
}
