// Package mqtt connects the base station and the node to an MQTT broker:
// snapshots and station health go out, raw frames can come in.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

var errStopped = errors.New("mqtt client stopped")

// Options selects the broker and session identity.
type Options struct {
	Broker   string
	Port     int
	ClientID string
}

// session is the connection state shared by the publisher, the frame source
// and the frame sender.
type session struct {
	client    paho.Client
	opts      Options
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func newSession(o Options, logger *slog.Logger, onConnect func()) *session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &session{
		opts:   o,
		logger: logger.With("component", "mqtt"),
		stopCh: make(chan struct{}),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", o.Broker, o.Port))
	opts.SetClientID(clientID(o.ClientID))

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Subscriptions are restored here after an auto-reconnect.
	opts.SetOnConnectHandler(func(_ paho.Client) {
		s.setConnected(true)
		s.logger.Info("mqtt connected", "broker", o.Broker, "port", o.Port)
		if onConnect != nil {
			onConnect()
		}
	})

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.setConnected(false)
		s.logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = paho.NewClient(opts)
	return s
}

// clientID appends a short random suffix so two processes with the same
// configuration do not kick each other off the broker.
func clientID(base string) string {
	if base == "" {
		base = "pooltemp"
	}
	return base + "-" + uuid.NewString()[:8]
}

// Connect waits for the initial connection, respecting ctx and Disconnect.
func (s *session) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return errStopped
	default:
	}

	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			// The connect handler runs asynchronously; do not race it.
			s.setConnected(true)
			return nil
		}

		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return errStopped
		default:
		}
	}
}

func (s *session) publish(topic string, retained bool, payload []byte) error {
	if !s.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}
	token := s.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (s *session) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect is idempotent. After it, Connect returns an error.
func (s *session) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.client != nil {
		s.client.Disconnect(250)
	}
	s.setConnected(false)
	s.logger.Info("mqtt disconnected")
}

func (s *session) stopped() <-chan struct{} { return s.stopCh }

func (s *session) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
