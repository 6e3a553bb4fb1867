package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"pooltemp/internal/modules/telemetry/types"
	"pooltemp/internal/snapshot"
)

//go:embed sql/insert-snapshot.sql
var insertSnapshotSQL string

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/get-sensors.sql
var getSensorsSQL string

//go:embed sql/get-readings.sql
var getReadingsSQL string

//go:embed sql/get-latest-snapshots.sql
var getLatestSnapshotsSQL string

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

type TelemetryRepository interface {
	InsertSnapshot(ctx context.Context, snap snapshot.Snapshot) (string, error)
	GetSensors() ([]types.Sensor, error)
	GetReadings(sensorID string, from time.Time, to time.Time, limit int) ([]types.Reading, error)
	GetLatestSnapshots(limit int) ([]types.StoredSnapshot, error)
}

type repositoryImpl struct {
	db    *sql.DB
	newID func() string
}

func NewRepository(db *sql.DB) TelemetryRepository {
	return &repositoryImpl{db: db, newID: uuid.NewString}
}

// InsertSnapshot stores the snapshot header and one reading per sensor in a
// single transaction and returns the generated snapshot id.
func (r *repositoryImpl) InsertSnapshot(ctx context.Context, snap snapshot.Snapshot) (string, error) {
	id := r.newID()
	ts := formatTime(snap.CapturedAt)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, insertSnapshotSQL,
		id, ts, snap.Uptime, snap.MemAlloc, snap.MemFree, snap.SignalStrength,
		snap.Growth.Samples, snap.Growth.Value,
	); err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}

	for sensorID, temp := range snap.Sensors {
		// SQLite stores NaN as NULL; non-finite readings are not history.
		if v := float64(temp); math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if _, err := tx.ExecContext(ctx, insertReadingSQL, id, sensorID.String(), float64(temp), ts); err != nil {
			return "", fmt.Errorf("insert reading %s: %w", sensorID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

func (r *repositoryImpl) GetSensors() ([]types.Sensor, error) {
	rows, err := r.db.Query(getSensorsSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close sensors rows", "error", err)
		}
	}()

	var out []types.Sensor
	for rows.Next() {
		var s types.Sensor
		var ts string
		if err := rows.Scan(&s.ID, &s.Readings, &ts, &s.LastTemperature); err != nil {
			return nil, err
		}
		if s.LastSeen, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetReadings returns the newest readings first. A zero from or to leaves
// that side of the range open.
func (r *repositoryImpl) GetReadings(sensorID string, from time.Time, to time.Time, limit int) ([]types.Reading, error) {
	rows, err := r.db.Query(getReadingsSQL, sensorID, boundary(from), boundary(to), limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close readings rows", "error", err)
		}
	}()

	var out []types.Reading
	for rows.Next() {
		var rec types.Reading
		var ts string
		if err := rows.Scan(&rec.SensorID, &ts, &rec.Temperature); err != nil {
			return nil, err
		}
		if rec.Time, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetLatestSnapshots(limit int) ([]types.StoredSnapshot, error) {
	rows, err := r.db.Query(getLatestSnapshotsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close snapshots rows", "error", err)
		}
	}()

	var out []types.StoredSnapshot
	for rows.Next() {
		var s types.StoredSnapshot
		var ts string
		if err := rows.Scan(&s.ID, &ts, &s.Uptime, &s.MemAlloc, &s.MemFree, &s.RSSI,
			&s.Growth.Samples, &s.Growth.Value, &s.Sensors); err != nil {
			return nil, err
		}
		if s.CapturedAt, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func boundary(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTime(t)
}

func parseTime(ts string) (time.Time, error) {
	t, err := time.Parse(timeLayout, ts)
	if err != nil {
		var err2 error
		t, err2 = time.Parse(time.RFC3339Nano, ts)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w; RFC3339Nano: %w", ts, err, err2)
		}
	}
	return t, nil
}
