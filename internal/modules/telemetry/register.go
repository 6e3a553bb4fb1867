package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"pooltemp/internal/modules/telemetry/controller"
	"pooltemp/internal/modules/telemetry/repository"
	"pooltemp/internal/snapshot"
)

// RegisterFeature mounts the telemetry routes. A nil db leaves the history
// routes answering 404.
func RegisterFeature(mux *http.ServeMux, db *sql.DB, live controller.Deps) {
	if db != nil {
		live.Repository = repository.NewRepository(db)
	}
	telemetryController := controller.NewTelemetryController(live)
	telemetryController.RegisterRoutes(mux)
}

// HistorySink persists every stored snapshot to SQLite.
type HistorySink struct {
	repo   repository.TelemetryRepository
	logger *slog.Logger
}

func NewHistorySink(db *sql.DB, logger *slog.Logger) *HistorySink {
	return newHistorySink(repository.NewRepository(db), logger)
}

func newHistorySink(repo repository.TelemetryRepository, logger *slog.Logger) *HistorySink {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistorySink{repo: repo, logger: logger}
}

func (s *HistorySink) Name() string { return "sqlite" }

func (s *HistorySink) Consume(ctx context.Context, snap snapshot.Snapshot) error {
	id, err := s.repo.InsertSnapshot(ctx, snap)
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	s.logger.Debug("snapshot persisted", "id", id, "sensors", len(snap.Sensors))
	return nil
}
