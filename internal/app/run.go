package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"pooltemp/internal/config"
	"pooltemp/internal/db"
	"pooltemp/internal/growth"
	"pooltemp/internal/httpapi"
	"pooltemp/internal/ingest"
	"pooltemp/internal/metrics"
	"pooltemp/internal/migrate"
	"pooltemp/internal/modules/telemetry"
	"pooltemp/internal/modules/telemetry/controller"
	telemetryviews "pooltemp/internal/modules/telemetry/views"
	"pooltemp/internal/mqtt"
	"pooltemp/internal/snapshot"
)

const shutdownTimeout = 10 * time.Second

// Run starts the base station and blocks until ctx is done or, in
// single-shot command-line mode, after one receive cycle. Snapshots are
// printed to stdout as JSON lines unless the HTTP server is enabled.
func Run(ctx context.Context, cfg config.Config, stdout io.Writer) error {
	logger := slog.Default()
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"serve", cfg.Serve,
		"httpAddr", cfg.HTTPAddr,
		"recurring", cfg.Recurring,
		"receiveTimeout", cfg.ReceiveTimeout,
		"transport", cfg.Transport,
		"growthEnabled", cfg.GrowthEnabled,
		"growthSensor", cfg.GrowthSensor.String(),
		"growthInterval", cfg.GrowthInterval,
		"history", cfg.HistoryEnabled(),
		"mqttBroker", cfg.MQTTBroker,
		"mqttTopic", cfg.MQTTTopic,
	)

	source, closeSource, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeQuietly("radio", closeSource)

	mode := ingest.SingleShot
	if cfg.Recurring {
		mode = ingest.Recurring
	}
	stationMetrics := metrics.New()
	cache := snapshot.NewCache()
	loop := ingest.NewLoop(source, cache, ingest.Config{
		Mode:    mode,
		Timeout: cfg.ReceiveTimeout,
		Delay:   cfg.CycleDelay,
	}, logger.With("component", "ingest")).
		WithMetrics(stationMetrics).
		WithGrowth(ingest.StaticGrowth{Value: cfg.GrowthSentinel})

	if !cfg.Serve {
		loop.WithSinks(ingest.NewJSONLineSink(stdout))
	}

	var dbConn *sql.DB
	if cfg.HistoryEnabled() {
		dbConn, err = db.Open(cfg, logger)
		if err != nil {
			return err
		}
		defer closeQuietly("db", func() error { return db.Close(dbConn) })

		if _, err := migrate.Run(ctx, dbConn, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		slog.Info("history database ready", "path", cfg.SQLitePath)
		loop.WithSinks(telemetry.NewHistorySink(dbConn, logger))
	}

	if cfg.MQTTEnabled() {
		publisher := mqtt.NewPublisher(mqttOptions(cfg), cfg.MQTTTopic, logger)
		defer publisher.Disconnect()
		// Connect in the background so a missing broker never blocks ingest;
		// the sink reports failures until the connection is up.
		go func() {
			if err := publisher.Connect(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
			}
		}()
		loop.WithSinks(publisher)
	}

	if mode == ingest.SingleShot && !cfg.Serve {
		return loop.Run(ctx)
	}

	if cfg.Serve {
		if err := telemetryviews.LoadTemplates(); err != nil {
			return err
		}
	}

	var trend controller.TrendReader
	g, gctx := errgroup.WithContext(ctx)
	if cfg.GrowthEnabled {
		sampler := growth.NewSampler(cache, cfg.GrowthSensor,
			growth.NewWindow(cfg.WindowCapacity),
			growth.NewEstimator(cfg.GrowthInterval, cfg.GrowthSentinel, cfg.GrowthPrecision),
			logger.With("component", "growth"),
		).WithMetrics(stationMetrics)
		loop.WithGrowth(sampler)
		trend = sampler
		g.Go(func() error { return ignoreCanceled(sampler.Run(gctx)) })
	}

	g.Go(func() error { return ignoreCanceled(loop.Run(gctx)) })

	if cfg.Serve {
		mux := httpapi.NewMux(dbConn, stationMetrics.Handler())
		telemetry.RegisterFeature(mux, dbConn, controller.Deps{
			Cache:   cache,
			Decoder: loop,
			Trend:   trend,
		})
		srv := httpapi.NewServer(cfg, mux)

		g.Go(func() error {
			slog.Info("http listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			slog.Info("http shutting down")
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
