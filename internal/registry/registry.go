// Package registry manages the master database: the shared catalog of all
// known workspaces plus append-only tool-usage telemetry. The master DB is
// separate from every workspace DB and may be opened by many processes at
// once; writes are small so contention stays low.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/taskmcp/taskmcp/internal/types"
)

const busyTimeoutMillis = 5000

// Fixed-width UTC timestamps so lexicographic comparison in SQL matches
// chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS workspaces (
	id TEXT PRIMARY KEY,
	workspace_path TEXT NOT NULL UNIQUE,
	friendly_name TEXT,
	created_at TEXT NOT NULL,
	last_accessed TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tool_usage (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tool_name TEXT NOT NULL,
	workspace_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	success INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_workspaces_last_accessed ON workspaces(last_accessed);
CREATE INDEX IF NOT EXISTS idx_tool_usage_timestamp ON tool_usage(timestamp);
CREATE INDEX IF NOT EXISTS idx_tool_usage_tool_name ON tool_usage(tool_name);
CREATE INDEX IF NOT EXISTS idx_tool_usage_workspace ON tool_usage(workspace_id);
`

// Registry is a handle on the master database.
type Registry struct {
	db   *sql.DB
	path string
}

func dsn(path string) string {
	return "file:" + url.PathEscape(path) +
		"?_txlock=immediate" +
		fmt.Sprintf("&_pragma=busy_timeout(%d)", busyTimeoutMillis) +
		"&_pragma=foreign_keys(ON)"
}

// Open opens (creating if necessary) the master database at path. First-time
// schema creation is guarded by a cross-process file lock so concurrent
// first opens do not race.
func Open(ctx context.Context, path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create master DB directory: %w", err)
	}

	fileLock := flock.New(path + ".lock")
	if err := fileLock.Lock(); err != nil {
		return nil, fmt.Errorf("failed to acquire master DB lock: %w", err)
	}
	defer func() { _ = fileLock.Unlock() }()

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open master DB: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL on master DB: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize master DB schema: %w", err)
	}
	return &Registry{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Path returns the master database file path.
func (r *Registry) Path() string {
	return r.path
}

// Register records a workspace, inserting it on first sight and bumping
// last_accessed on every later call. It is called on every core operation
// before the workspace store is touched. A workspace id that already maps to
// a different path is a hash collision and reports CONFLICT.
func (r *Registry) Register(ctx context.Context, id, workspacePath string, now time.Time) error {
	var existingPath string
	err := r.db.QueryRowContext(ctx,
		"SELECT workspace_path FROM workspaces WHERE id = ?", id).Scan(&existingPath)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First sight.
	case err != nil:
		return fmt.Errorf("failed to check workspace registration: %w", err)
	case existingPath != workspacePath:
		return types.Errorf(types.KindConflict,
			"workspace id %s already registered for %s", id, existingPath)
	}

	ts := now.UTC().Format(timeFormat)
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, workspace_path, created_at, last_accessed)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_accessed = excluded.last_accessed
	`, id, workspacePath, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to register workspace: %w", err)
	}
	return nil
}

// SetFriendlyName sets the display name for a workspace, registering it
// first if it has never been seen.
func (r *Registry) SetFriendlyName(ctx context.Context, id, workspacePath, name string, now time.Time) error {
	if err := r.Register(ctx, id, workspacePath, now); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		"UPDATE workspaces SET friendly_name = ? WHERE id = ?", name, id)
	if err != nil {
		return fmt.Errorf("failed to set friendly name: %w", err)
	}
	return nil
}

// GetWorkspace returns the registry row for a workspace id.
func (r *Registry) GetWorkspace(ctx context.Context, id string) (*types.Workspace, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, workspace_path, friendly_name, created_at, last_accessed
		FROM workspaces WHERE id = ?`, id)
	ws, err := scanWorkspace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.Errorf(types.KindNotFound, "workspace %s not registered", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}
	return ws, nil
}

// ListWorkspaces returns all known workspaces, most recently accessed first.
func (r *Registry) ListWorkspaces(ctx context.Context) ([]*types.Workspace, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workspace_path, friendly_name, created_at, last_accessed
		FROM workspaces ORDER BY last_accessed DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkspace(row rowScanner) (*types.Workspace, error) {
	var (
		ws           types.Workspace
		friendly     sql.NullString
		createdAt    string
		lastAccessed string
	)
	err := row.Scan(&ws.ID, &ws.WorkspacePath, &friendly, &createdAt, &lastAccessed)
	if err != nil {
		return nil, err
	}
	if friendly.Valid {
		ws.FriendlyName = &friendly.String
	}
	if ws.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if ws.LastAccessed, err = time.Parse(time.RFC3339Nano, lastAccessed); err != nil {
		return nil, fmt.Errorf("invalid last_accessed %q: %w", lastAccessed, err)
	}
	return &ws, nil
}
