package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sharma-sourabh3435/promptqueue/internal/models"
)

// SQLiteStorage implements the Repository interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer keeps snapshot replacement serialized
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storage := &SQLiteStorage{db: db}

	// Initialize schema
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema initializes the database schema
func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		slot TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		label TEXT,
		is_running INTEGER NOT NULL DEFAULT 0,
		completed INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0,
		snapshot TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_session_id ON sessions(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Save replaces the stored snapshot with the given session
func (s *SQLiteStorage) Save(ctx context.Context, session *models.Session) error {
	snapshot, err := encodeSession(session)
	if err != nil {
		return err
	}

	completed, total := session.Totals()
	query := `INSERT INTO sessions (slot, session_id, mode, label, is_running, completed, total, snapshot, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	          ON CONFLICT(slot) DO UPDATE SET session_id = excluded.session_id, mode = excluded.mode,
	          label = excluded.label, is_running = excluded.is_running, completed = excluded.completed,
	          total = excluded.total, snapshot = excluded.snapshot, created_at = excluded.created_at,
	          updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		currentSlot, session.ID, string(session.Mode), session.Label, session.IsRunning,
		completed, total, string(snapshot), session.CreatedAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}

	return nil
}

// Load retrieves the stored session snapshot
func (s *SQLiteStorage) Load(ctx context.Context) (*models.Session, error) {
	query := `SELECT snapshot FROM sessions WHERE slot = ?`

	var snapshot string
	err := s.db.QueryRowContext(ctx, query, currentSlot).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, nil // Nothing persisted
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	return decodeSession([]byte(snapshot))
}

// Clear deletes the stored session
func (s *SQLiteStorage) Clear(ctx context.Context) error {
	query := `DELETE FROM sessions WHERE slot = ?`
	if _, err := s.db.ExecContext(ctx, query, currentSlot); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
