package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pooltemp/internal/frame"
	"pooltemp/internal/ingest"
	"pooltemp/internal/migrate"
	"pooltemp/internal/modules/telemetry/controller"
	"pooltemp/internal/modules/telemetry/types"
	"pooltemp/internal/snapshot"
)

var _ ingest.Sink = (*HistorySink)(nil)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = migrate.Run(context.Background(), db, slog.Default())
	require.NoError(t, err)
	return db
}

func TestHistorySinkFeedsHistoryRoutes(t *testing.T) {
	db := openDB(t)
	sink := NewHistorySink(db, slog.Default())
	assert.Equal(t, "sqlite", sink.Name())

	probe := frame.SensorID{40, 170, 73, 65, 64, 20, 1, 64}
	snap := snapshot.Snapshot{
		Uptime:     1,
		Sensors:    map[frame.SensorID]float32{probe: 24.5},
		CapturedAt: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
		Growth:     snapshot.Growth{Value: -1},
	}
	require.NoError(t, sink.Consume(context.Background(), snap))

	mux := http.NewServeMux()
	RegisterFeature(mux, db, controller.Deps{Cache: snapshot.NewCache()})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sensors", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var sensors []types.Sensor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sensors))
	require.Len(t, sensors, 1)
	assert.Equal(t, probe.String(), sensors[0].ID)
	assert.Equal(t, 1, sensors[0].Readings)
}

func TestRegisterFeature_WithoutDB(t *testing.T) {
	mux := http.NewServeMux()
	RegisterFeature(mux, nil, controller.Deps{Cache: snapshot.NewCache()})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/snapshots", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cache", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "{}\n", rec.Body.String())
}

type failingRepo struct{}

func (failingRepo) InsertSnapshot(context.Context, snapshot.Snapshot) (string, error) {
	return "", sql.ErrConnDone
}
func (failingRepo) GetSensors() ([]types.Sensor, error) { return nil, nil }
func (failingRepo) GetReadings(string, time.Time, time.Time, int) ([]types.Reading, error) {
	return nil, nil
}
func (failingRepo) GetLatestSnapshots(int) ([]types.StoredSnapshot, error) { return nil, nil }

func TestHistorySink_Error(t *testing.T) {
	sink := newHistorySink(failingRepo{}, nil)
	err := sink.Consume(context.Background(), snapshot.Snapshot{})
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}
