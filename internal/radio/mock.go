package radio

import (
	"context"
	"sync"
	"time"
)

// Step is one scripted Receive outcome.
type Step struct {
	Payload []byte
	RSSI    int
	Err     error
}

// ScriptedSource replays a fixed sequence of receive outcomes, then reports
// ErrNoData forever. It is used in tests and for offline replays.
type ScriptedSource struct {
	mu    sync.Mutex
	steps []Step
	calls int
	rssi  int
}

func NewScriptedSource(steps ...Step) *ScriptedSource {
	return &ScriptedSource{steps: steps}
}

func (s *ScriptedSource) Receive(ctx context.Context, _ time.Duration) (Packet, error) {
	if err := ctx.Err(); err != nil {
		return Packet{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if len(s.steps) == 0 {
		return Packet{}, ErrNoData
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	if step.Err != nil {
		return Packet{}, step.Err
	}
	s.rssi = step.RSSI
	return Packet{Payload: step.Payload, RSSI: step.RSSI, ReceivedAt: time.Now()}, nil
}

func (s *ScriptedSource) SignalStrength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rssi
}

// Calls reports how many times Receive has been called.
func (s *ScriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
