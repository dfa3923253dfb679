// Package sqlite - database migrations
package sqlite

import (
	"database/sql"
	"fmt"
)

// Migration represents a single database migration
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// migrationsList is the ordered list of all migrations to run.
// Every migration must be idempotent: databases of any vintage pass through
// the full list on every open.
var migrationsList = []Migration{
	{"workspace_metadata_column", migrateWorkspaceMetadataColumn},
}

// RunMigrations executes all registered migrations in order. An EXCLUSIVE
// transaction serializes check-then-alter sequences across processes opening
// the same database simultaneously.
func RunMigrations(db *sql.DB) error {
	if _, err := db.Exec("BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock for migrations: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	for _, migration := range migrationsList {
		if err := migration.Func(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true
	return nil
}

// migrateWorkspaceMetadataColumn adds the nullable workspace_metadata column
// to tasks. Forward-only: rows created before the column keep NULL metadata
// and are tolerated everywhere (reported as legacy by the workspace audit).
func migrateWorkspaceMetadataColumn(db *sql.DB) error {
	exists, err := columnExists(db, "tasks", "workspace_metadata")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := db.Exec("ALTER TABLE tasks ADD COLUMN workspace_metadata TEXT"); err != nil {
		return fmt.Errorf("failed to add workspace_metadata column: %w", err)
	}
	return nil
}

// columnExists checks whether a table already has a column.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s schema: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &primaryKey); err != nil {
			return false, fmt.Errorf("failed to scan column info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
