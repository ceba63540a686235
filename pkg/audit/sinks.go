package audit

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// LogSink writes each event as an info record on a logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "audit")}
}

// Record logs the event.
func (s *LogSink) Record(ctx context.Context, e Event) {
	attrs := []slog.Attr{
		slog.String("event_id", e.ID),
		slog.String("request_id", e.RequestID),
		slog.String("provider", e.ProviderID),
		slog.String("model", e.Model),
		slog.Int("attempt", e.Attempt),
		slog.String("result", string(e.Result)),
		slog.Float64("cost_cents", e.CostCents),
		slog.Float64("estimate_cents", e.EstimateCents),
		slog.Duration("latency", e.Latency),
	}
	if e.Reason != "" {
		attrs = append(attrs, slog.String("reason", e.Reason))
	}
	if e.FailureKind != "" {
		attrs = append(attrs, slog.String("failure_kind", e.FailureKind))
	}

	level := slog.LevelInfo
	if e.Result == ResultFailure {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "routing attempt", attrs...)
}

// Close is a no-op.
func (s *LogSink) Close() error {
	return nil
}

// MemorySink keeps events in memory. It implements Store.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record appends the event.
func (s *MemorySink) Record(_ context.Context, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a copy of all events in recording order.
func (s *MemorySink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Query returns matching events, newest first.
func (s *MemorySink) Query(ctx context.Context, q Query) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []Event
	for _, e := range s.events {
		if q.matches(e) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.After(out[j].Time)
	})
	if len(out) > q.limit() {
		out = out[:q.limit()]
	}
	return out, nil
}

// DeleteBefore removes events older than cutoff.
func (s *MemorySink) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var deleted int64
	for _, e := range s.events {
		if e.Time.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return deleted, nil
}

// Close is a no-op.
func (s *MemorySink) Close() error {
	return nil
}

// MultiSink sends every event to each of its sinks.
type MultiSink []Sink

// Record forwards the event.
func (m MultiSink) Record(ctx context.Context, e Event) {
	for _, s := range m {
		s.Record(ctx, e)
	}
}

// Close closes every sink and joins their errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopSink discards events.
type NopSink struct{}

// Record does nothing.
func (NopSink) Record(context.Context, Event) {}

// Close does nothing.
func (NopSink) Close() error { return nil }
