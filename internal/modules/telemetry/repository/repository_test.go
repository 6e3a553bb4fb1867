package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pooltemp/internal/frame"
	"pooltemp/internal/migrate"
	"pooltemp/internal/snapshot"
)

var (
	probeA = frame.SensorID{40, 170, 73, 65, 64, 20, 1, 64}
	probeB = frame.SensorID{40, 1, 2, 3, 4, 5, 6, 7}
	base   = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Fatalf("close db: %v", closeErr)
		}
	})
	_, err = migrate.Run(context.Background(), db, slog.Default())
	require.NoError(t, err)
	return db
}

func newTestRepo(t *testing.T) *repositoryImpl {
	t.Helper()
	repo := NewRepository(setupTestDB(t)).(*repositoryImpl)
	n := 0
	repo.newID = func() string {
		n++
		return fmt.Sprintf("snap-%03d", n)
	}
	return repo
}

func snapAt(at time.Time, temps map[frame.SensorID]float32) snapshot.Snapshot {
	return snapshot.Snapshot{
		Uptime:         42.5,
		MemAlloc:       2048,
		MemFree:        1024,
		SignalStrength: -71,
		Sensors:        temps,
		CapturedAt:     at,
		Growth:         snapshot.Growth{Samples: 3, Value: 1.25},
	}
}

func TestInsertSnapshot_SkipsNonFiniteReadings(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.InsertSnapshot(ctx, snapAt(base, map[frame.SensorID]float32{
		probeA: 24.5,
		probeB: float32(math.NaN()),
	}))
	require.NoError(t, err)

	readings, err := repo.GetReadings(probeB.String(), time.Time{}, time.Time{}, 10)
	require.NoError(t, err)
	assert.Empty(t, readings)

	readings, err = repo.GetReadings(probeA.String(), time.Time{}, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 24.5, readings[0].Temperature)
}

func TestNewRepository(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	require.NotNil(t, repo)
}

func TestInsertSnapshot_AndLatest(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id1, err := repo.InsertSnapshot(ctx, snapAt(base, map[frame.SensorID]float32{probeA: 24.5, probeB: 19}))
	require.NoError(t, err)
	id2, err := repo.InsertSnapshot(ctx, snapAt(base.Add(time.Minute), map[frame.SensorID]float32{probeA: 25}))
	require.NoError(t, err)
	assert.Equal(t, "snap-001", id1)
	assert.Equal(t, "snap-002", id2)

	latest, err := repo.GetLatestSnapshots(10)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, id2, latest[0].ID)
	assert.Equal(t, 1, latest[0].Sensors)
	assert.Equal(t, 2, latest[1].Sensors)
	assert.True(t, latest[0].CapturedAt.Equal(base.Add(time.Minute)))
	assert.Equal(t, uint32(2048), latest[0].MemAlloc)
	assert.Equal(t, uint32(1024), latest[0].MemFree)
	assert.Equal(t, -71, latest[0].RSSI)
	assert.Equal(t, snapshot.Growth{Samples: 3, Value: 1.25}, latest[0].Growth)

	limited, err := repo.GetLatestSnapshots(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestInsertSnapshot_DefaultIDGenerator(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	id, err := repo.InsertSnapshot(context.Background(), snapAt(base, map[frame.SensorID]float32{probeA: 20}))
	require.NoError(t, err)
	assert.Len(t, id, 36)
}

func TestGetSensors(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.InsertSnapshot(ctx, snapAt(base, map[frame.SensorID]float32{probeA: 24.5, probeB: 19}))
	require.NoError(t, err)
	_, err = repo.InsertSnapshot(ctx, snapAt(base.Add(time.Minute), map[frame.SensorID]float32{probeA: 26}))
	require.NoError(t, err)

	sensors, err := repo.GetSensors()
	require.NoError(t, err)
	require.Len(t, sensors, 2)

	byID := map[string]int{}
	for i, s := range sensors {
		byID[s.ID] = i
	}
	a := sensors[byID[probeA.String()]]
	assert.Equal(t, 2, a.Readings)
	assert.InDelta(t, 26.0, a.LastTemperature, 1e-6)
	assert.True(t, a.LastSeen.Equal(base.Add(time.Minute)))

	b := sensors[byID[probeB.String()]]
	assert.Equal(t, 1, b.Readings)
	assert.InDelta(t, 19.0, b.LastTemperature, 1e-6)
}

func TestGetReadings_Range(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := repo.InsertSnapshot(ctx, snapAt(base.Add(time.Duration(i)*time.Minute),
			map[frame.SensorID]float32{probeA: 20 + float32(i)}))
		require.NoError(t, err)
	}

	all, err := repo.GetReadings(probeA.String(), time.Time{}, time.Time{}, 100)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.InDelta(t, 24.0, all[0].Temperature, 1e-6, "newest first")
	assert.Equal(t, probeA.String(), all[0].SensorID)

	window, err := repo.GetReadings(probeA.String(), base.Add(time.Minute), base.Add(3*time.Minute), 100)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.True(t, window[0].Time.Equal(base.Add(3*time.Minute)))
	assert.True(t, window[2].Time.Equal(base.Add(time.Minute)))

	from, err := repo.GetReadings(probeA.String(), base.Add(4*time.Minute), time.Time{}, 100)
	require.NoError(t, err)
	assert.Len(t, from, 1)

	limited, err := repo.GetReadings(probeA.String(), time.Time{}, time.Time{}, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := repo.GetReadings(probeB.String(), time.Time{}, time.Time{}, 100)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestParseTime(t *testing.T) {
	got, err := parseTime("2026-07-01T12:00:00.500000Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(base.Add(500*time.Millisecond)))

	got, err = parseTime("2026-07-01T12:00:00Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(base))

	_, err = parseTime("yesterday")
	assert.Error(t, err)
}
