package frame

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SensorID is the 8-byte one-wire ROM code of a sensor. It is only compared,
// never interpreted as a number.
type SensorID [8]byte

// String renders the id as colon-joined decimal bytes, e.g. "40:170:73:65:64:20:1:64".
func (id SensorID) String() string {
	var b strings.Builder
	for i, v := range id {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(strconv.Itoa(int(v)))
	}
	return b.String()
}

// MarshalText lets SensorID key JSON objects.
func (id SensorID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *SensorID) UnmarshalText(text []byte) error {
	parsed, err := ParseSensorID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseSensorID accepts the colon-joined decimal form produced by String or
// 16 hex digits.
func ParseSensorID(s string) (SensorID, error) {
	var id SensorID
	s = strings.TrimSpace(s)
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) != len(id) {
			return SensorID{}, fmt.Errorf("sensor id %q: want 8 bytes, got %d", s, len(parts))
		}
		for i, p := range parts {
			v, err := strconv.ParseUint(p, 10, 8)
			if err != nil {
				return SensorID{}, fmt.Errorf("sensor id %q: byte %d: %w", s, i, err)
			}
			id[i] = byte(v)
		}
		return id, nil
	}
	if len(s) != 2*len(id) {
		return SensorID{}, fmt.Errorf("sensor id %q: want 16 hex digits or 8 colon-separated bytes", s)
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return SensorID{}, fmt.Errorf("sensor id %q: %w", s, err)
	}
	return id, nil
}

// SensorRecord is one sensor's reading inside a frame.
type SensorRecord struct {
	ID          SensorID
	Temperature float32
	Resolution  uint8
}

// EncodeRecord lays out temperature, resolution then the id bytes.
func EncodeRecord(r SensorRecord) [RecordSize]byte {
	var out [RecordSize]byte
	binary.LittleEndian.PutUint32(out[0:4], math.Float32bits(r.Temperature))
	out[4] = r.Resolution
	copy(out[5:], r.ID[:])
	return out
}

// DecodeRecord is the inverse of EncodeRecord.
func DecodeRecord(b [RecordSize]byte) SensorRecord {
	var r SensorRecord
	r.Temperature = math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))
	r.Resolution = b[4]
	copy(r.ID[:], b[5:])
	return r
}
