package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pooltemp/internal/config"
	"pooltemp/internal/mqtt"
	"pooltemp/internal/radio"
)

const mqttSourceConnectTimeout = 10 * time.Second

func mqttOptions(cfg config.Config) mqtt.Options {
	return mqtt.Options{Broker: cfg.MQTTBroker, Port: cfg.MQTTPort, ClientID: cfg.MQTTClientID}
}

// openSource opens the configured receive side. Failing here is the only
// fatal transport error.
func openSource(ctx context.Context, cfg config.Config, logger *slog.Logger) (radio.PacketSource, func() error, error) {
	switch cfg.Transport {
	case config.TransportSerial:
		b, err := radio.OpenSerial(cfg.SerialPort, cfg.SerialBaud, logger.With("component", "serial"))
		if err != nil {
			return nil, nil, err
		}
		logger.Info("serial radio open", "port", cfg.SerialPort, "baud", cfg.SerialBaud)
		return b, b.Close, nil
	case config.TransportUDP:
		s, err := radio.ListenUDP(cfg.UDPAddr)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("udp radio listening", "addr", s.Addr().String())
		return s, s.Close, nil
	case config.TransportMQTT:
		s := mqtt.NewFrameSource(mqttOptions(cfg), cfg.MQTTFrameTopic, logger)
		connectCtx, cancel := context.WithTimeout(ctx, mqttSourceConnectTimeout)
		defer cancel()
		if err := s.Connect(connectCtx); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("mqtt frame source: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// openSender opens the node's transmit side.
func openSender(cfg config.Config, logger *slog.Logger) (radio.Sender, func() error, error) {
	switch cfg.Transport {
	case config.TransportSerial:
		b, err := radio.OpenSerial(cfg.SerialPort, cfg.SerialBaud, logger.With("component", "serial"))
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	case config.TransportUDP:
		s, err := radio.DialUDP(cfg.UDPAddr)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.TransportMQTT:
		s := mqtt.NewFrameSender(mqttOptions(cfg), cfg.MQTTFrameTopic, logger)
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func closeQuietly(what string, closeFn func() error) {
	if closeFn == nil {
		return
	}
	if err := closeFn(); err != nil {
		slog.Error("close failed", "what", what, "error", err)
	}
}
