package types

import (
	"time"

	"pooltemp/internal/snapshot"
)

// Sensor summarises one probe seen in the stored history.
type Sensor struct {
	ID              string    `json:"id"`
	Readings        int       `json:"readings"`
	LastSeen        time.Time `json:"last_seen"`
	LastTemperature float64   `json:"last_temperature"`
}

type Reading struct {
	SensorID    string    `json:"sensor_id"`
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature"`
}

// StoredSnapshot is a persisted snapshot header without its readings.
type StoredSnapshot struct {
	ID         string          `json:"id"`
	CapturedAt time.Time       `json:"captured_at"`
	Uptime     float64         `json:"uptime"`
	MemAlloc   uint32          `json:"mem_alloc"`
	MemFree    uint32          `json:"mem_free"`
	RSSI       int             `json:"rssi"`
	Sensors    int             `json:"sensors"`
	Growth     snapshot.Growth `json:"growth"`
}
