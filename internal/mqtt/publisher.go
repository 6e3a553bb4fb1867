package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"pooltemp/internal/snapshot"
)

// StationHealth is published retained so late subscribers see the last
// known state of the sensor node.
type StationHealth struct {
	Station   string    `json:"station"`
	LastFrame time.Time `json:"last_frame"`
	Uptime    float64   `json:"uptime"`
	MemFree   uint32    `json:"mem_free"`
	RSSI      int       `json:"rssi"`
	Sensors   int       `json:"sensors"`
	Healthy   bool      `json:"healthy"`
}

// Publisher forwards stored snapshots to <prefix>/snapshot and node health
// to <prefix>/health. It is an ingest sink.
type Publisher struct {
	*session
	prefix string
}

func NewPublisher(o Options, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{session: newSession(o, logger, nil), prefix: prefix}
}

func (p *Publisher) SnapshotTopic() string { return p.prefix + "/snapshot" }

func (p *Publisher) HealthTopic() string { return p.prefix + "/health" }

func (p *Publisher) Name() string { return "mqtt" }

// Consume publishes the snapshot followed by the derived health message.
func (p *Publisher) Consume(_ context.Context, snap snapshot.Snapshot) error {
	if err := p.PublishSnapshot(snap); err != nil {
		return err
	}
	return p.PublishHealth(healthFromSnapshot(p.prefix, snap))
}

func (p *Publisher) PublishSnapshot(snap snapshot.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	topic := p.SnapshotTopic()
	if err := p.publish(topic, true, data); err != nil {
		p.logger.Error("failed to publish snapshot", "topic", topic, "error", err)
		return err
	}
	p.logger.Debug("published snapshot", "topic", topic, "sensors", len(snap.Sensors))
	return nil
}

func (p *Publisher) PublishHealth(h StationHealth) error {
	if h.LastFrame.IsZero() {
		h.LastFrame = time.Now()
	}
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal health: %w", err)
	}
	topic := p.HealthTopic()
	if err := p.publish(topic, true, data); err != nil {
		p.logger.Error("failed to publish station health", "topic", topic, "error", err)
		return err
	}
	p.logger.Debug("published station health",
		"topic", topic,
		"last_frame", h.LastFrame,
		"healthy", h.Healthy,
	)
	return nil
}

// healthFromSnapshot marks the node unhealthy when its frame carried no
// sensor readings.
func healthFromSnapshot(station string, snap snapshot.Snapshot) StationHealth {
	return StationHealth{
		Station:   station,
		LastFrame: snap.CapturedAt,
		Uptime:    snap.Uptime,
		MemFree:   snap.MemFree,
		RSSI:      snap.SignalStrength,
		Sensors:   len(snap.Sensors),
		Healthy:   len(snap.Sensors) > 0,
	}
}
