// sqlite.go - SQLite-backed analytics sink with batched async writes.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Schema for the web_vitals table.
const Schema = `
CREATE TABLE IF NOT EXISTS web_vitals (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	value REAL NOT NULL,
	rating TEXT,
	page TEXT,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_web_vitals_name_ts ON web_vitals(name, timestamp);
`

const (
	sqliteQueueSize = 1024
	sqliteBatchSize = 64
)

// SQLiteSink persists events. Record never blocks: when the queue is full
// the event is dropped and counted.
type SQLiteSink struct {
	db      *sql.DB
	logger  *zap.Logger
	ch      chan Event
	done    chan struct{}
	syncReq chan chan struct{}
	once    sync.Once
	dropped atomic.Int64
	flush   time.Duration
}

// OpenSQLiteSink opens (or creates) the database at path and starts the
// flush loop.
func OpenSQLiteSink(path string, logger *zap.Logger) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open analytics db: %w", err)
	}
	s, err := NewSQLiteSink(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteSink wraps an existing database handle. The sink owns db and
// closes it on Close.
func NewSQLiteSink(db *sql.DB, logger *zap.Logger) (*SQLiteSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("create analytics schema: %w", err)
	}
	s := &SQLiteSink{
		db:      db,
		logger:  logger.Named("analytics.sqlite"),
		ch:      make(chan Event, sqliteQueueSize),
		done:    make(chan struct{}),
		syncReq: make(chan chan struct{}),
		flush:   time.Second,
	}
	go s.flushLoop()
	return s, nil
}

// Record queues e for persistence.
func (s *SQLiteSink) Record(e Event) {
	defer func() {
		// Record after Close: the channel is closed.
		if recover() != nil {
			s.dropped.Add(1)
		}
	}()
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded.
func (s *SQLiteSink) Dropped() int64 { return s.dropped.Load() }

// Close drains the queue, stops the flush loop and closes the database.
func (s *SQLiteSink) Close() error {
	var err error
	s.once.Do(func() {
		close(s.ch)
		<-s.done
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteSink) flushLoop() {
	defer close(s.done)

	batch := make([]Event, 0, sqliteBatchSize)
	ticker := time.NewTicker(s.flush)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				s.flushBatch(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= sqliteBatchSize {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		case reply := <-s.syncReq:
			batch = s.drainInto(batch)
			s.flushBatch(batch)
			batch = batch[:0]
			close(reply)
		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *SQLiteSink) drainInto(batch []Event) []Event {
	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				return batch
			}
			batch = append(batch, e)
		default:
			return batch
		}
	}
}

func (s *SQLiteSink) flushBatch(batch []Event) {
	if len(batch) == 0 {
		return
	}
	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error("begin tx", zap.Error(err))
		return
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO web_vitals (id, name, value, rating, page, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		s.logger.Error("prepare insert", zap.Error(err))
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.Exec(e.ID, e.Name, e.Value, e.Rating, e.Page, e.Timestamp.UnixMilli()); err != nil {
			s.logger.Warn("insert event", zap.String("name", e.Name), zap.Error(err))
		}
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("commit", zap.Error(err))
	}
}

// Recent returns up to limit events for name, newest first. An empty name
// matches every event.
func (s *SQLiteSink) Recent(ctx context.Context, name string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, value, COALESCE(rating, ''), COALESCE(page, ''), timestamp
		FROM web_vitals WHERE (? = '' OR name = ?) ORDER BY timestamp DESC LIMIT ?`, name, name, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e  Event
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Value, &e.Rating, &e.Page, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Sync flushes everything queued so far. Used before reading back.
func (s *SQLiteSink) Sync() {
	reply := make(chan struct{})
	select {
	case s.syncReq <- reply:
		<-reply
	case <-s.done:
	}
}
