package journal

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db      *sql.DB
	closed  bool
	writeMu sync.Mutex
}

// NewSQLiteStore opens (or creates) the journal database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one writer at a time; the pipeline is sequential anyway
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS transfers (
		host TEXT NOT NULL,
		base_name TEXT NOT NULL,
		folder TEXT NOT NULL,
		remote_name TEXT NOT NULL,
		outcome TEXT NOT NULL,
		stage TEXT,
		bytes INTEGER DEFAULT 0,
		attempts INTEGER DEFAULT 0,
		last_error TEXT,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (host, base_name)
	);

	CREATE INDEX IF NOT EXISTS idx_transfers_outcome ON transfers(outcome);
	CREATE INDEX IF NOT EXISTS idx_transfers_updated_at ON transfers(updated_at);
	`

	_, err := s.db.Exec(query)
	return err
}

// Record saves or updates an entry with retry mechanism
func (s *SQLiteStore) Record(e *Entry) error {
	if s.closed {
		return fmt.Errorf("database store is closed")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.retryOnBusy(func() error {
		return s.recordWithTransaction(e)
	})
}

func (s *SQLiteStore) recordWithTransaction(e *Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // This will be ignored if Commit() succeeds

	query := `
	INSERT INTO transfers
	(host, base_name, folder, remote_name, outcome, stage, bytes, attempts, last_error, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	ON CONFLICT(host, base_name) DO UPDATE SET
		folder = excluded.folder,
		remote_name = excluded.remote_name,
		outcome = excluded.outcome,
		stage = excluded.stage,
		bytes = excluded.bytes,
		attempts = transfers.attempts + 1,
		last_error = excluded.last_error,
		updated_at = excluded.updated_at
	`

	_, err = tx.Exec(query,
		e.Host,
		e.BaseName,
		e.Folder,
		e.RemoteName,
		e.Outcome,
		e.Stage,
		e.Bytes,
		e.LastError,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to execute upsert: %w", err)
	}

	return tx.Commit()
}

// retryOnBusy retries the operation if SQLite is busy
func (s *SQLiteStore) retryOnBusy(operation func() error) error {
	maxRetries := 10
	baseDelay := 50 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if isSQLiteBusyError(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
			continue
		}

		return err
	}

	return nil
}

// isSQLiteBusyError checks if the error is a SQLite busy error
func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	errorStr := err.Error()
	return strings.Contains(errorStr, "database is locked") ||
		strings.Contains(errorStr, "SQLITE_BUSY")
}

// List returns entries by outcome, oldest first
func (s *SQLiteStore) List(outcome string) ([]*Entry, error) {
	query := `
	SELECT host, base_name, folder, remote_name, outcome, stage, bytes, attempts, last_error, updated_at
	FROM transfers`
	var args []any
	if outcome != "" {
		query += ` WHERE outcome = ?`
		args = append(args, outcome)
	}
	query += ` ORDER BY updated_at ASC, host ASC, base_name ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry

	for rows.Next() {
		var e Entry
		var stage, lastError sql.NullString

		err := rows.Scan(
			&e.Host,
			&e.BaseName,
			&e.Folder,
			&e.RemoteName,
			&e.Outcome,
			&stage,
			&e.Bytes,
			&e.Attempts,
			&lastError,
			&e.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		e.Stage = stage.String
		e.LastError = lastError.String
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.closed = true
	return s.db.Close()
}
