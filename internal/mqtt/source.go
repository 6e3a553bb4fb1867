package mqtt

import (
	"context"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"pooltemp/internal/radio"
)

const frameBuffer = 16

// FrameSource receives raw frames published on a topic. It satisfies
// radio.PacketSource; MQTT carries no radio signal strength, so RSSI is 0.
type FrameSource struct {
	*session
	topic  string
	frames chan radio.Packet
}

func NewFrameSource(o Options, topic string, logger *slog.Logger) *FrameSource {
	fs := &FrameSource{topic: topic, frames: make(chan radio.Packet, frameBuffer)}
	fs.session = newSession(o, logger, fs.subscribe)
	return fs
}

func (f *FrameSource) Topic() string { return f.topic }

func (f *FrameSource) subscribe() {
	qos := byte(1)
	token := f.client.Subscribe(f.topic, qos, func(_ paho.Client, msg paho.Message) {
		f.handleMessage(msg.Topic(), msg.Payload())
	})
	// Called from the paho connect callback; waiting here would block it.
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			f.logger.Error("subscribe timeout", "topic", f.topic)
			return
		}
		if err := token.Error(); err != nil {
			f.logger.Error("subscribe failed", "topic", f.topic, "error", err)
			return
		}
		f.logger.Info("subscribed to mqtt topic", "topic", f.topic, "qos", qos)
	}()
}

// handleMessage queues a copy of the payload. When the queue is full the
// frame is dropped; frames are not acknowledged or retransmitted.
func (f *FrameSource) handleMessage(topic string, payload []byte) {
	p := radio.Packet{
		Payload:    append([]byte(nil), payload...),
		ReceivedAt: time.Now(),
	}
	select {
	case f.frames <- p:
		f.logger.Debug("received mqtt frame", "topic", topic, "size", len(payload))
	default:
		f.logger.Warn("frame queue full, dropping frame", "topic", topic, "size", len(payload))
	}
}

func (f *FrameSource) Receive(ctx context.Context, timeout time.Duration) (radio.Packet, error) {
	select {
	case <-f.stopped():
		return radio.Packet{}, radio.ErrClosed
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return radio.Packet{}, ctx.Err()
	case <-f.stopped():
		return radio.Packet{}, radio.ErrClosed
	case p := <-f.frames:
		return p, nil
	case <-timer.C:
		return radio.Packet{}, radio.ErrNoData
	}
}

func (f *FrameSource) SignalStrength() int { return 0 }

func (f *FrameSource) Close() error {
	f.Disconnect()
	return nil
}

// FrameSender publishes raw frames for a FrameSource to pick up. It
// satisfies radio.Sender.
type FrameSender struct {
	*session
	topic string
}

func NewFrameSender(o Options, topic string, logger *slog.Logger) *FrameSender {
	return &FrameSender{session: newSession(o, logger, nil), topic: topic}
}

// Send connects lazily, then publishes the frame without retain.
func (s *FrameSender) Send(ctx context.Context, payload []byte) error {
	if !s.IsConnected() {
		if err := s.Connect(ctx); err != nil {
			return err
		}
	}
	return s.publish(s.topic, false, payload)
}

func (s *FrameSender) Close() error {
	s.Disconnect()
	return nil
}
