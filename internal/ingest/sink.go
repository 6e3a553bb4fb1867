package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"pooltemp/internal/snapshot"
)

// Sink receives every snapshot the loop stores. Errors are logged by the
// loop and do not affect the cache.
type Sink interface {
	Name() string
	Consume(ctx context.Context, s snapshot.Snapshot) error
}

// JSONLineSink writes one JSON document per line, the command-line output
// format of the receiver.
type JSONLineSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONLineSink(w io.Writer) *JSONLineSink {
	return &JSONLineSink{enc: json.NewEncoder(w)}
}

func (s *JSONLineSink) Name() string { return "stdout" }

func (s *JSONLineSink) Consume(_ context.Context, snap snapshot.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}
