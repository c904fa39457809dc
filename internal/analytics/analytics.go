// analytics.go - Optional outbound sink for individual Web Vital values.
// Forwarding is fire-and-forget: a sink that is slow, full or broken never
// affects metric collection.
package analytics

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is one named metric value forwarded to a sink.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Rating    string    `json:"rating,omitempty"`
	Page      string    `json:"page,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps a fresh identifier and the current time.
func NewEvent(name string, value float64, rating string) Event {
	return Event{
		ID:        uuid.NewString(),
		Name:      name,
		Value:     value,
		Rating:    rating,
		Timestamp: time.Now().UTC(),
	}
}

// Sink receives events. Record must not block the caller.
type Sink interface {
	Record(e Event)
	Close() error
}

// ============================================
// LogSink
// ============================================

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink that logs at info level under "analytics".
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("analytics")}
}

// Record logs e.
func (s *LogSink) Record(e Event) {
	s.logger.Info("web vital",
		zap.String("id", e.ID),
		zap.String("name", e.Name),
		zap.Float64("value", e.Value),
		zap.String("rating", e.Rating),
		zap.String("page", e.Page),
	)
}

// Close is a no-op.
func (s *LogSink) Close() error { return nil }

// ============================================
// MultiSink
// ============================================

// MultiSink fans each event out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink ignores nil sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Record forwards e to every sink.
func (m *MultiSink) Record(e Event) {
	for _, s := range m.sinks {
		s.Record(e)
	}
}

// Close closes every sink and joins their errors.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ============================================
// MemorySink
// ============================================

// MemorySink keeps events in memory. Used by the dev surface and tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// Record appends e.
func (s *MemorySink) Record(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Close is a no-op.
func (s *MemorySink) Close() error { return nil }
