package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on SQLite. With the default ":memory:" path
// the database lives in-process only, matching the in-memory backend's
// lifetime; a file path makes entries outlive restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at dbPath and initializes the
// schema. Pass ":memory:" for a process-local database.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	var dsn string
	if dbPath == ":memory:" {
		// A pooled connection would otherwise get its own empty database.
		dsn = "file::memory:?cache=shared"
	} else {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		app_name TEXT NOT NULL,
		user_id TEXT NOT NULL,
		session_key TEXT NOT NULL,
		state_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (app_name, user_id, session_key)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(app_name, user_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create inserts a new session entry seeded with state.
func (s *SQLiteStore) Create(ctx context.Context, appName, userID, key string, state map[string]string) (*Session, error) {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal session state: %w", err)
	}

	now := time.Now()
	query := `INSERT INTO sessions (app_name, user_id, session_key, state_json, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, appName, userID, key, string(stateJSON), now.Unix()); err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrSessionExists
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return &Session{
		AppName:    appName,
		UserID:     userID,
		SessionKey: key,
		State:      copyState(state),
		CreatedAt:  now,
	}, nil
}

// Get retrieves a session entry, or (nil, nil) if absent.
func (s *SQLiteStore) Get(ctx context.Context, appName, userID, key string) (*Session, error) {
	query := `SELECT state_json, created_at FROM sessions WHERE app_name = ? AND user_id = ? AND session_key = ?`
	row := s.db.QueryRowContext(ctx, query, appName, userID, key)

	var stateJSON string
	var createdAt int64
	err := row.Scan(&stateJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	state := make(map[string]string)
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}

	return &Session{
		AppName:    appName,
		UserID:     userID,
		SessionKey: key,
		State:      state,
		CreatedAt:  time.Unix(createdAt, 0),
	}, nil
}

// Delete removes a session entry; deleting an absent entry is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, appName, userID, key string) error {
	query := `DELETE FROM sessions WHERE app_name = ? AND user_id = ? AND session_key = ?`
	if _, err := s.db.ExecContext(ctx, query, appName, userID, key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isUniqueConstraintError checks for a SQLite primary-key violation.
// modernc.org/sqlite surfaces these as plain error strings.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed")
}
