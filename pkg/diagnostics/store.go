package diagnostics

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists load events to a local sqlite database.
type SQLiteStore struct {
	db         *sql.DB
	insertStmt *sql.Stmt

	mu     sync.Mutex
	closed bool
}

// OpenSQLiteStore opens (or creates) the event database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, ErrInvalidStorePath
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping event store: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS load_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error_kind TEXT NOT NULL DEFAULT '',
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		recorded_at DATETIME NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize event table: %w", err)
	}
	if _, err := db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_load_events_asset ON load_events(asset_id, outcome)`,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create event index: %w", err)
	}

	stmt, err := db.Prepare(
		`INSERT INTO load_events (asset_id, outcome, error_kind, elapsed_ms, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	return &SQLiteStore{db: db, insertStmt: stmt}, nil
}

// RecordEvent inserts one load event.
func (s *SQLiteStore) RecordEvent(ev LoadEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err := s.insertStmt.Exec(ev.AssetID, string(ev.Outcome), ev.ErrorKind, ev.Elapsed.Milliseconds(), at.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert load event: %w", err)
	}
	return nil
}

// EventCount returns how many events of the given outcome are stored for
// the asset. An empty id counts across all assets.
func (s *SQLiteStore) EventCount(id string, outcome Outcome) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var (
		row *sql.Row
	)
	if id == "" {
		row = s.db.QueryRow(`SELECT COUNT(*) FROM load_events WHERE outcome = ?`, string(outcome))
	} else {
		row = s.db.QueryRow(
			`SELECT COUNT(*) FROM load_events WHERE asset_id = ? AND outcome = ?`,
			id, string(outcome),
		)
	}

	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count load events: %w", err)
	}
	return n, nil
}

// Prune deletes events recorded before the cutoff and returns how many
// rows were removed.
func (s *SQLiteStore) Prune(before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.Exec(`DELETE FROM load_events WHERE recorded_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune load events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close releases the database handle. Safe to call more than once.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.insertStmt.Close()
	return s.db.Close()
}
