package node

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/onewire/onewirereg"
	"periph.io/x/devices/v3/ds18b20"
	"periph.io/x/host/v3"

	"pooltemp/internal/frame"
)

// ds18b20Family is the one-wire family code of the DS18B20.
const ds18b20Family = 0x28

type probe struct {
	id  frame.SensorID
	dev *ds18b20.Dev
}

// OneWireReader reads every configured DS18B20 on one bus.
type OneWireReader struct {
	bus        onewire.BusCloser
	probes     []probe
	resolution int
	logger     *slog.Logger
}

// OpenOneWire initialises the host drivers and opens bus (empty = first
// registered bus). With no ids it searches the bus for DS18B20 probes.
func OpenOneWire(bus string, ids []frame.SensorID, resolution int, logger *slog.Logger) (*OneWireReader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	b, err := onewirereg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("open one-wire bus %q: %w", bus, err)
	}

	if len(ids) == 0 {
		addrs, err := b.Search(false)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("one-wire search: %w", err)
		}
		for _, a := range addrs {
			if byte(a&0xff) == ds18b20Family {
				ids = append(ids, sensorIDFromAddress(a))
			}
		}
		if len(ids) == 0 {
			_ = b.Close()
			return nil, errors.New("one-wire search found no DS18B20 probes")
		}
	}

	r := &OneWireReader{bus: b, resolution: resolution, logger: logger}
	for _, id := range ids {
		dev, err := ds18b20.New(b, addressFromSensorID(id), resolution)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("ds18b20 %s: %w", id, err)
		}
		r.probes = append(r.probes, probe{id: id, dev: dev})
		logger.Info("ds18b20 probe ready", "sensor", id.String(), "resolution", resolution)
	}
	return r, nil
}

// Read starts one conversion on all probes and collects the results.
func (r *OneWireReader) Read(ctx context.Context) ([]frame.SensorRecord, error) {
	if err := ds18b20.ConvertAll(r.bus, r.resolution); err != nil {
		return nil, fmt.Errorf("ds18b20 convert: %w", err)
	}
	out := make([]frame.SensorRecord, 0, len(r.probes))
	for _, p := range r.probes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := p.dev.LastTemp()
		if err != nil {
			return nil, fmt.Errorf("ds18b20 %s: %w", p.id, err)
		}
		out = append(out, frame.SensorRecord{
			ID:          p.id,
			Temperature: float32(t.Celsius()),
			Resolution:  uint8(r.resolution),
		})
	}
	return out, nil
}

func (r *OneWireReader) Close() error {
	return r.bus.Close()
}

// The ROM code is transmitted family byte first, which is also the order of
// SensorID bytes.
func sensorIDFromAddress(a onewire.Address) frame.SensorID {
	var id frame.SensorID
	binary.LittleEndian.PutUint64(id[:], uint64(a))
	return id
}

func addressFromSensorID(id frame.SensorID) onewire.Address {
	return onewire.Address(binary.LittleEndian.Uint64(id[:]))
}
