package controller

import (
	"context"
	"net/http"

	"pooltemp/internal/growth"
	"pooltemp/internal/modules/telemetry/repository"
	"pooltemp/internal/snapshot"
)

type SnapshotLoader interface {
	Load() (snapshot.Snapshot, bool)
}

// FreshDecoder runs one receive/decode attempt without touching the cache.
type FreshDecoder interface {
	Fresh(ctx context.Context) (snapshot.Snapshot, error)
}

type TrendReader interface {
	Trend() growth.Trend
}

// Deps wires the controller to the live base station. Trend and Repository
// are optional: growth and history routes report them as disabled when nil.
type Deps struct {
	Cache      SnapshotLoader
	Decoder    FreshDecoder
	Trend      TrendReader
	Repository repository.TelemetryRepository
}

type TelemetryController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type telemetryControllerImpl struct {
	cache      SnapshotLoader
	decoder    FreshDecoder
	trend      TrendReader
	repository repository.TelemetryRepository
}

func NewTelemetryController(deps Deps) TelemetryController {
	return &telemetryControllerImpl{
		cache:      deps.Cache,
		decoder:    deps.Decoder,
		trend:      deps.Trend,
		repository: deps.Repository,
	}
}

func (c *telemetryControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", c.handleFresh)
	mux.HandleFunc("GET /cache", c.handleCache)
	mux.HandleFunc("GET /dashboard", c.handleDashboard)
	mux.HandleFunc("GET /chart", c.handleChart)
	mux.HandleFunc("GET /api/v1/growth", c.handleGrowth)
	mux.HandleFunc("GET /api/v1/sensors", c.handleSensors)
	mux.HandleFunc("GET /api/v1/sensors/{id}/readings", c.handleReadings)
	mux.HandleFunc("GET /api/v1/snapshots", c.handleSnapshots)
}
