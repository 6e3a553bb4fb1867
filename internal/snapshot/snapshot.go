// Package snapshot holds the latest decoded view of the sensor node.
package snapshot

import (
	"encoding/json"
	"maps"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"pooltemp/internal/frame"
)

// Growth is the hourly growth-rate estimate of the sampled sensor. Value is
// the configured sentinel when fewer than two samples exist.
// The sentinel can also be a real rate, so check Samples < 2 rather than
// comparing Value to it.
type Growth struct {
	Samples int     `json:"samples"`
	Value   float64 `json:"value"`
}

// MarshalJSON writes a non-finite Value as null.
func (g Growth) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Samples int      `json:"samples"`
		Value   *float64 `json:"value"`
	}{g.Samples, finite(g.Value)})
}

// Snapshot is one complete decoded frame plus receive metadata. A stored
// Snapshot is never modified; Cache hands out copies.
type Snapshot struct {
	Uptime         float64                    `json:"uptime"`
	MemAlloc       uint32                     `json:"mem_alloc"`
	MemFree        uint32                     `json:"mem_free"`
	SignalStrength int                        `json:"rssi"`
	Sensors        map[frame.SensorID]float32 `json:"sensors"`
	CapturedAt     time.Time                  `json:"captured_at"`
	Growth         Growth                     `json:"growth"`
}

// MarshalJSON writes non-finite uptime and temperatures as null. The radio
// link carries no checksum, so any bit pattern can arrive as a float.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type plain Snapshot
	var sensors map[frame.SensorID]*float32
	if s.Sensors != nil {
		sensors = make(map[frame.SensorID]*float32, len(s.Sensors))
	}
	for id, t := range s.Sensors {
		if f := float64(t); math.IsNaN(f) || math.IsInf(f, 0) {
			sensors[id] = nil
			continue
		}
		sensors[id] = &t
	}
	return json.Marshal(struct {
		plain
		Uptime  *float64                    `json:"uptime"`
		Sensors map[frame.SensorID]*float32 `json:"sensors"`
	}{plain(s), finite(s.Uptime), sensors})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// New builds a Snapshot from a decoded frame. Duplicate sensor ids resolve
// to the last record in the frame.
func New(f frame.Frame, rssi int, capturedAt time.Time, growth Growth) Snapshot {
	return Snapshot{
		Uptime:         f.Header.Uptime,
		MemAlloc:       f.Header.MemAlloc,
		MemFree:        f.Header.MemFree,
		SignalStrength: rssi,
		Sensors:        f.Temperatures(),
		CapturedAt:     capturedAt,
		Growth:         growth,
	}
}

// Temperature returns the reading for id, if the frame carried one.
func (s Snapshot) Temperature(id frame.SensorID) (float32, bool) {
	v, ok := s.Sensors[id]
	return v, ok
}

func (s Snapshot) clone() Snapshot {
	s.Sensors = maps.Clone(s.Sensors)
	return s
}

// Cache holds the most recent Snapshot. Store is for the single ingest
// writer; Load is lock-free and safe from any goroutine.
type Cache struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

func NewCache() *Cache {
	return &Cache{}
}

// Store replaces the cached snapshot as a whole.
func (c *Cache) Store(s Snapshot) {
	s = s.clone()
	c.mu.Lock()
	c.current.Store(&s)
	c.mu.Unlock()
}

// Load returns a copy of the cached snapshot and false if nothing has been
// stored yet.
func (c *Cache) Load() (Snapshot, bool) {
	p := c.current.Load()
	if p == nil {
		return Snapshot{}, false
	}
	return p.clone(), true
}
