// Package frame implements the fixed-layout binary frame sent by a sensor node:
// a 16-byte health header followed by zero or more 13-byte sensor records.
//
// Layout (little-endian):
//
//	[0:8]   uptime    float64
//	[8:12]  mem_alloc uint32
//	[12:16] mem_free  uint32
//	[16:]   records, 13 bytes each: temperature float32, resolution uint8, id [8]byte
package frame

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	HeaderSize = 16
	RecordSize = 13
)

// Header carries sender-side health at transmit time.
type Header struct {
	Uptime   float64 `json:"uptime"`
	MemAlloc uint32  `json:"mem_alloc"`
	MemFree  uint32  `json:"mem_free"`
}

// Frame is a decoded header plus its records in transmission order.
type Frame struct {
	Header  Header
	Records []SensorRecord
}

// FormatError reports a payload whose length cannot be a frame.
type FormatError struct {
	Length int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("frame: %s (length %d)", e.Reason, e.Length)
}

// Size returns the encoded length of a frame carrying n records.
func Size(n int) int {
	return HeaderSize + n*RecordSize
}

// Encode serializes the header followed by each record in order.
func Encode(h Header, records []SensorRecord) []byte {
	buf := make([]byte, Size(len(records)))
	binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(h.Uptime))
	binary.LittleEndian.PutUint32(buf[8:12], h.MemAlloc)
	binary.LittleEndian.PutUint32(buf[12:16], h.MemFree)
	for i, r := range records {
		off := HeaderSize + i*RecordSize
		rec := EncodeRecord(r)
		copy(buf[off:off+RecordSize], rec[:])
	}
	return buf
}

// Decode parses a frame. It fails with *FormatError when data has no complete
// header or the record section is not a whole number of records.
// Duplicate sensor ids are kept; see Frame.Temperatures for folding.
func Decode(data []byte) (Frame, error) {
	if len(data) < HeaderSize {
		return Frame{}, &FormatError{Length: len(data), Reason: "payload too short for header"}
	}
	if (len(data)-HeaderSize)%RecordSize != 0 {
		return Frame{}, &FormatError{Length: len(data), Reason: "record section is not a multiple of 13 bytes"}
	}

	f := Frame{
		Header: Header{
			Uptime:   math.Float64frombits(binary.LittleEndian.Uint64(data[0:8])),
			MemAlloc: binary.LittleEndian.Uint32(data[8:12]),
			MemFree:  binary.LittleEndian.Uint32(data[12:16]),
		},
	}

	n := (len(data) - HeaderSize) / RecordSize
	if n == 0 {
		return f, nil
	}
	f.Records = make([]SensorRecord, 0, n)
	for off := HeaderSize; off < len(data); off += RecordSize {
		var rec [RecordSize]byte
		copy(rec[:], data[off:off+RecordSize])
		f.Records = append(f.Records, DecodeRecord(rec))
	}
	return f, nil
}

// Temperatures folds the records into an id -> temperature map.
// When an id repeats, the later record wins.
func (f Frame) Temperatures() map[SensorID]float32 {
	out := make(map[SensorID]float32, len(f.Records))
	for _, r := range f.Records {
		out[r.ID] = r.Temperature
	}
	return out
}
