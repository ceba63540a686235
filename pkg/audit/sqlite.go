package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrSinkClosed is returned by Flush after Close.
var ErrSinkClosed = errors.New("audit sink closed")

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id             TEXT PRIMARY KEY,
	request_id     TEXT NOT NULL,
	event_time     INTEGER NOT NULL,
	provider_id    TEXT NOT NULL,
	model          TEXT NOT NULL,
	attempt        INTEGER NOT NULL,
	result         TEXT NOT NULL,
	reason         TEXT,
	failure_kind   TEXT,
	cost_cents     REAL NOT NULL,
	estimate_cents REAL NOT NULL,
	latency_ms     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_time ON audit_events(event_time);
CREATE INDEX IF NOT EXISTS idx_audit_events_provider ON audit_events(provider_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_request ON audit_events(request_id);
`

const insertEvent = `
INSERT OR REPLACE INTO audit_events (
	id, request_id, event_time, provider_id, model, attempt,
	result, reason, failure_kind, cost_cents, estimate_cents, latency_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// SQLiteConfig contains configuration for the SQLite sink.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// BufferSize is the length of the async write queue. Events recorded
	// while the queue is full are dropped.
	// Default: 1000
	BufferSize int

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// WriteTimeout bounds a single insert.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// Logger receives write failures. Default: slog.Default()
	Logger *slog.Logger
}

type queued struct {
	event Event
	flush chan struct{}
}

// SQLiteSink stores events in SQLite. Record enqueues; a single background
// worker performs the inserts.
type SQLiteSink struct {
	db     *sql.DB
	insert *sql.Stmt
	config SQLiteConfig
	logger *slog.Logger

	queue   chan queued
	done    chan struct{}
	wg      sync.WaitGroup
	closeMu sync.RWMutex
	closed  bool

	dropped atomic.Int64
	written atomic.Int64
}

// NewSQLiteSink opens (creating if needed) the database and starts the
// writer.
func NewSQLiteSink(cfg SQLiteConfig) (*SQLiteSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit sqlite path cannot be empty")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audit.sqlite")

	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	s := &SQLiteSink{
		db:     db,
		config: cfg,
		logger: logger,
		queue:  make(chan queued, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.wg.Add(1)
	go s.worker()

	logger.Info("SQLite audit sink initialized",
		"path", cfg.Path,
		"buffer_size", cfg.BufferSize,
	)
	return s, nil
}

func (s *SQLiteSink) initialize() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	stmt, err := s.db.Prepare(insertEvent)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	s.insert = stmt
	return nil
}

// Record enqueues the event. It never blocks; when the queue is full the
// event is dropped and counted.
func (s *SQLiteSink) Record(_ context.Context, e Event) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		return
	}

	select {
	case s.queue <- queued{event: e}:
	default:
		s.dropped.Add(1)
		s.logger.Error("audit queue full, dropping event",
			"event_id", e.ID,
			"request_id", e.RequestID,
			"queue_capacity", s.config.BufferSize,
		)
	}
}

// Flush waits until every event recorded before the call is written.
func (s *SQLiteSink) Flush(ctx context.Context) error {
	s.closeMu.RLock()
	if s.closed {
		s.closeMu.RUnlock()
		return ErrSinkClosed
	}
	marker := queued{flush: make(chan struct{})}
	select {
	case s.queue <- marker:
		s.closeMu.RUnlock()
	case <-ctx.Done():
		s.closeMu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-marker.flush:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns the number of events discarded because the queue was
// full or the sink was closed.
func (s *SQLiteSink) Dropped() int64 {
	return s.dropped.Load()
}

// Written returns the number of events stored.
func (s *SQLiteSink) Written() int64 {
	return s.written.Load()
}

func (s *SQLiteSink) worker() {
	defer s.wg.Done()

	for {
		select {
		case item := <-s.queue:
			s.handle(item)
		case <-s.done:
			for {
				select {
				case item := <-s.queue:
					s.handle(item)
				default:
					return
				}
			}
		}
	}
}

func (s *SQLiteSink) handle(item queued) {
	if item.flush != nil {
		close(item.flush)
		return
	}
	if err := s.write(item.event); err != nil {
		s.logger.Error("failed to write audit event",
			"event_id", item.event.ID,
			"error", err,
		)
		return
	}
	s.written.Add(1)
}

func (s *SQLiteSink) write(e Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
	defer cancel()

	_, err := s.insert.ExecContext(ctx,
		e.ID, e.RequestID, e.Time.UnixNano(), e.ProviderID, e.Model, e.Attempt,
		string(e.Result), nullable(e.Reason), nullable(e.FailureKind),
		e.CostCents, e.EstimateCents, e.Latency.Milliseconds(),
	)
	return err
}

// Query returns matching events, newest first.
func (s *SQLiteSink) Query(ctx context.Context, q Query) ([]Event, error) {
	where, args := buildWhere(q)

	query := `SELECT id, request_id, event_time, provider_id, model, attempt,
		result, reason, failure_kind, cost_cents, estimate_cents, latency_ms
		FROM audit_events`
	if where != "" {
		query += " WHERE " + where
	}
	query += fmt.Sprintf(" ORDER BY event_time DESC LIMIT %d", q.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e                   Event
			nanos, latencyMs    int64
			result              string
			reason, failureKind sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &nanos, &e.ProviderID, &e.Model, &e.Attempt,
			&result, &reason, &failureKind, &e.CostCents, &e.EstimateCents, &latencyMs); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Time = time.Unix(0, nanos).UTC()
		e.Result = Result(result)
		e.Reason = reason.String
		e.FailureKind = failureKind.String
		e.Latency = time.Duration(latencyMs) * time.Millisecond
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	return events, nil
}

// DeleteBefore removes events older than cutoff and returns the count.
func (s *SQLiteSink) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE event_time < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit events: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit events: %w", err)
	}
	return n, nil
}

// Close drains the queue, stops the writer and closes the database.
// It is safe to call more than once.
func (s *SQLiteSink) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	close(s.done)
	s.wg.Wait()

	s.insert.Close()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close audit database: %w", err)
	}

	s.logger.Info("SQLite audit sink closed",
		"written", s.written.Load(),
		"dropped", s.dropped.Load(),
	)
	return nil
}

func buildWhere(q Query) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	if !q.Since.IsZero() {
		conditions = append(conditions, "event_time >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if !q.Until.IsZero() {
		conditions = append(conditions, "event_time <= ?")
		args = append(args, q.Until.UnixNano())
	}
	if q.ProviderID != "" {
		conditions = append(conditions, "provider_id = ?")
		args = append(args, q.ProviderID)
	}
	if q.RequestID != "" {
		conditions = append(conditions, "request_id = ?")
		args = append(args, q.RequestID)
	}
	if q.Result != "" {
		conditions = append(conditions, "result = ?")
		args = append(args, string(q.Result))
	}
	return strings.Join(conditions, " AND "), args
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
