// Package radio abstracts the link between a sensor node and the base station.
// A PacketSource hands out whole frames with a bounded, timed receive; a Sender
// transmits them.
package radio

import (
	"context"
	"errors"
	"time"
)

// ErrNoData is returned by Receive when nothing arrived within the timeout.
// It is an expected outcome, not a failure.
var ErrNoData = errors.New("radio: no data within timeout")

// ErrClosed is returned after the transport has been closed.
var ErrClosed = errors.New("radio: transport closed")

// Packet is one received payload. RSSI is the transport-reported signal
// strength for this receive; transports without one report 0.
type Packet struct {
	Payload    []byte
	RSSI       int
	ReceivedAt time.Time
}

type PacketSource interface {
	// Receive blocks until a packet arrives, the timeout elapses (ErrNoData)
	// or ctx is done.
	Receive(ctx context.Context, timeout time.Duration) (Packet, error)
	// SignalStrength is the RSSI of the last successful Receive.
	SignalStrength() int
}

type Sender interface {
	Send(ctx context.Context, payload []byte) error
}
