package app

import (
	"context"
	"log/slog"

	"pooltemp/internal/config"
	"pooltemp/internal/node"
)

// RunNode reads the one-wire probes and transmits a frame every
// NodeInterval until ctx is done.
func RunNode(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	slog.Info("node config loaded",
		"transport", cfg.Transport,
		"interval", cfg.NodeInterval,
		"retryDelay", cfg.NodeRetryDelay,
		"resolution", cfg.NodeResolution,
		"sensors", len(cfg.NodeSensors),
		"bus", cfg.OneWireBus,
	)

	reader, err := node.OpenOneWire(cfg.OneWireBus, cfg.NodeSensors, cfg.NodeResolution, logger.With("component", "onewire"))
	if err != nil {
		return err
	}
	defer closeQuietly("one-wire bus", reader.Close)

	sender, closeSender, err := openSender(cfg, logger)
	if err != nil {
		return err
	}
	defer closeQuietly("radio", closeSender)

	tx := node.NewTransmitter(reader, sender, cfg.NodeInterval, cfg.NodeRetryDelay, logger.With("component", "transmitter"))
	return tx.Run(ctx)
}
