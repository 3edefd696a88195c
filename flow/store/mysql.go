package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/dshills/agentflow-go/flow"
)

// MySQLStore persists workflow definitions in MySQL for shared deployments
// where several processes serve the same workflow library.
//
// DSN format: user:password@tcp(host:3306)/dbname?parseTime=true
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore opens a connection pool against dsn, verifies it, and runs
// migrations.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS workflows (
			id VARCHAR(255) NOT NULL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			is_template TINYINT(1) NOT NULL DEFAULT 0,
			definition JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_workflows_template (is_template)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
	`
	if _, err := m.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create workflows table: %w", err)
	}
	return nil
}

func (m *MySQLStore) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// Save implements Store.
func (m *MySQLStore) Save(ctx context.Context, def *flow.Definition) error {
	if err := m.checkOpen(); err != nil {
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
		INSERT INTO workflows (id, name, is_template, definition)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			is_template = VALUES(is_template),
			definition = VALUES(definition)
	`
	if _, err := m.db.ExecContext(ctx, query, def.ID, def.Name, def.IsTemplate, string(data)); err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	return nil
}

// Load implements Store.
func (m *MySQLStore) Load(ctx context.Context, id string) (*flow.Definition, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	var data string
	err := m.db.QueryRowContext(ctx, "SELECT definition FROM workflows WHERE id = ?", id).Scan(&data)
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
func (m *MySQLStore) Delete(ctx context.Context, id string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	res, err := m.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAll implements Store.
func (m *MySQLStore) ListAll(ctx context.Context) ([]*flow.Definition, error) {
	return m.list(ctx, "SELECT definition FROM workflows ORDER BY name")
}

// ListTemplates implements Store.
func (m *MySQLStore) ListTemplates(ctx context.Context) ([]*flow.Definition, error) {
	return m.list(ctx, "SELECT definition FROM workflows WHERE is_template = 1 ORDER BY name")
}

// ListUserWorkflows implements Store.
func (m *MySQLStore) ListUserWorkflows(ctx context.Context) ([]*flow.Definition, error) {
	return m.list(ctx, "SELECT definition FROM workflows WHERE is_template = 0 ORDER BY name")
}

func (m *MySQLStore) list(ctx context.Context, query string) ([]*flow.Definition, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, query)
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
func (m *MySQLStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := m.checkOpen(); err != nil {
		return false, err
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflows WHERE id = ?", id).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check workflow existence: %w", err)
	}
	return count > 0, nil
}

// Close implements Store. Double-close is a no-op.
func (m *MySQLStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive.
func (m *MySQLStore) Ping(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.db.PingContext(ctx)
}
