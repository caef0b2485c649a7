package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver
)

// sqliteSink appends audit events to a SQLite table. The schema is created on
// first open so the runtime needs no migration step.
type sqliteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (creating if needed) the audit database at path.
func NewSQLiteSink(path string) (Sink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	// SQLite is single-writer; one shared connection serializes writers
	// inside database/sql instead of hitting lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	action TEXT NOT NULL,
	conversation_id TEXT,
	booking_id TEXT,
	meeting_id TEXT,
	status TEXT,
	data_hash TEXT,
	metadata TEXT,
	error TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
CREATE INDEX IF NOT EXISTS idx_audit_logs_conversation ON audit_logs(conversation_id);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &sqliteSink{db: db}, nil
}

func (s *sqliteSink) Write(ctx context.Context, event Event) error {
	var metadata any
	if event.Metadata != nil {
		encoded, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = string(encoded)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO audit_logs (timestamp, action, conversation_id, booking_id, meeting_id, status, data_hash, metadata, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		event.Action,
		nullable(event.ConversationID),
		nullable(event.BookingID),
		nullable(event.MeetingID),
		nullable(event.Status),
		nullable(event.DataHash),
		metadata,
		nullable(event.Error),
	)
	if err != nil {
		return fmt.Errorf("insert audit row: %w", err)
	}
	return nil
}

func (s *sqliteSink) Close() error {
	return s.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// fileSink appends one JSON object per line.
type fileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (creating if needed) the JSON-lines audit file at path.
func NewFileSink(path string) (Sink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	return &fileSink{file: file}, nil
}

func (s *fileSink) Write(_ context.Context, event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append audit line: %w", err)
	}
	return nil
}

func (s *fileSink) Close() error {
	return s.file.Close()
}
