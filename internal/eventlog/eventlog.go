// Package eventlog holds the canonical security-event model, the store
// interface the engine persists events through, and the asynchronous
// dispatcher that forwards events to optional external sinks.
package eventlog

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Severity grades a security event. The engine only emits the three
// documented levels; stores must preserve the value opaquely.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Event is one immutable security-event row. Events are append-only: the
// engine never updates or deletes them, and retention is the store's concern.
type Event struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	EventType   string            `json:"event_type"`
	Description string            `json:"description"`
	IP          string            `json:"ip_address"`
	UserAgent   string            `json:"user_agent"`
	Location    string            `json:"location,omitempty"`
	Severity    Severity          `json:"severity"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Filter narrows an event query. Zero values match everything.
type Filter struct {
	EventType string
	Severity  Severity
}

// Store persists and queries security events. Query returns one page ordered
// newest-first plus the total match count; page is 1-based.
type Store interface {
	Insert(ctx context.Context, event *Event) error
	Query(ctx context.Context, userID string, filter Filter, page, limit int) ([]*Event, int64, error)
}

// Sink receives events forwarded by the dispatcher, in addition to (not
// instead of) the store write.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink buffers events into a channel, mostly for tests and bridges.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
