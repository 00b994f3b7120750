package tracker

import (
	"context"
	"sync"

	"github.com/tjfontaine/rd-mini/internal/codec/wire"
	"github.com/tjfontaine/rd-mini/internal/core/ports"
)

type sinkEvent struct {
	kind    ports.EventKind
	payload any
}

// recordingSink captures enqueued records in memory.
type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *recordingSink) Enqueue(kind ports.EventKind, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{kind: kind, payload: payload})
}

func (s *recordingSink) Flush(ctx context.Context) error { return nil }
func (s *recordingSink) Close(ctx context.Context) error { return nil }

func (s *recordingSink) records(kind ports.EventKind) []*wire.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*wire.Record
	for _, e := range s.events {
		if e.kind == kind {
			out = append(out, e.payload.(*wire.Record))
		}
	}
	return out
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
