package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dshills/agentflow-go/flow"
)

// SQLiteStore persists workflow definitions in a single-file SQLite
// database. Zero-setup persistence for single-process deployments; use
// ":memory:" for tests.
//
// WAL mode is enabled so reads don't block behind the writer, and the pool
// is capped at one connection because SQLite supports one writer at a time.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens (creating if needed) the database at path and runs
// migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT NOT NULL PRIMARY KEY,
			name TEXT NOT NULL,
			is_template INTEGER NOT NULL DEFAULT 0,
			definition TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create workflows table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_workflows_template ON workflows(is_template)"); err != nil {
		return fmt.Errorf("failed to create idx_workflows_template: %w", err)
	}
	return nil
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, def *flow.Definition) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if def == nil || def.ID == "" {
		return fmt.Errorf("definition must have an ID")
	}

	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	query := `
		INSERT INTO workflows (id, name, is_template, definition, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_template = excluded.is_template,
			definition = excluded.definition,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		def.ID, def.Name, boolToInt(def.IsTemplate), string(data),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*flow.Definition, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var data string
	err := s.db.QueryRowContext(ctx, "SELECT definition FROM workflows WHERE id = ?", id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}

	var def flow.Definition
	if err := json.Unmarshal([]byte(data), &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}
	return &def, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAll implements Store.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]*flow.Definition, error) {
	return s.list(ctx, "SELECT definition FROM workflows ORDER BY name")
}

// ListTemplates implements Store.
func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]*flow.Definition, error) {
	return s.list(ctx, "SELECT definition FROM workflows WHERE is_template = 1 ORDER BY name")
}

// ListUserWorkflows implements Store.
func (s *SQLiteStore) ListUserWorkflows(ctx context.Context) ([]*flow.Definition, error) {
	return s.list(ctx, "SELECT definition FROM workflows WHERE is_template = 0 ORDER BY name")
}

func (s *SQLiteStore) list(ctx context.Context, query string) ([]*flow.Definition, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var defs []*flow.Definition
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan workflow row: %w", err)
		}
		var def flow.Definition
		if err := json.Unmarshal([]byte(data), &def); err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
		}
		defs = append(defs, &def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow rows: %w", err)
	}
	return defs, nil
}

// Exists implements Store.
func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflows WHERE id = ?", id).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check workflow existence: %w", err)
	}
	return count > 0, nil
}

// Close implements Store. Double-close is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
