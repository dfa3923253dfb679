package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskmcp/taskmcp/internal/types"
)

func TestOpenCreatesSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ws.db")

	store, err := New(ctx, path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	for _, table := range []string{"tasks", "entities", "task_entity_links"} {
		var n int
		err := store.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		if err != nil || n != 1 {
			t.Errorf("table %s missing (n=%d, err=%v)", table, n, err)
		}
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ws.db")

	store, err := New(ctx, path)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Reopening runs schema + migrations again; all are idempotent.
	store, err = New(ctx, path)
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	defer func() { _ = store.Close() }()
}

func TestWorkspaceMetadataMigration(t *testing.T) {
	store := newTestStore(t)

	exists, err := columnExists(store.db, "tasks", "workspace_metadata")
	if err != nil {
		t.Fatalf("columnExists failed: %v", err)
	}
	if !exists {
		t.Fatal("workspace_metadata column not added by migration")
	}

	// Running the migration again must be a no-op.
	if err := migrateWorkspaceMetadataColumn(store.db); err != nil {
		t.Fatalf("re-running migration failed: %v", err)
	}
}

func TestWALModeEnabled(t *testing.T) {
	store := newTestStore(t)
	var mode string
	if err := store.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode query failed: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestPartialUniqueIndexes(t *testing.T) {
	env := newTestEnv(t)

	env.CreateEntity("file", "a", strPtr("/x/a.py"))

	// Same (type, identifier) again: must conflict.
	dup := &types.Entity{EntityType: "file", Name: "a2", Identifier: strPtr("/x/a.py"),
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	err := env.Store.CreateEntity(env.Ctx, dup)
	if !types.IsKind(err, types.KindConflict) {
		t.Fatalf("expected CONFLICT for duplicate identifier, got %v", err)
	}

	// Different type, same identifier: allowed.
	env.CreateEntity("other", "a3", strPtr("/x/a.py"))

	// NULL identifiers never collide.
	env.CreateEntity("other", "vendor", nil)
	env.CreateEntity("other", "vendor2", nil)

	// Duplicate live link conflicts; the same pair is fine once the first
	// link is soft-deleted.
	task := env.CreateTask("t")
	entity := env.CreateEntity("file", "b", strPtr("/x/b.py"))
	env.Link(task, entity)
	link := &types.TaskEntityLink{TaskID: task.ID, EntityID: entity.ID, CreatedAt: time.Now().UTC()}
	if err := env.Store.CreateLink(env.Ctx, link); !types.IsKind(err, types.KindConflict) {
		t.Fatalf("expected CONFLICT for duplicate link, got %v", err)
	}
	if _, err := env.Store.SoftDeleteEntity(env.Ctx, entity.ID, time.Now().UTC()); err != nil {
		t.Fatalf("SoftDeleteEntity failed: %v", err)
	}
	entity2 := env.CreateEntity("file", "b", strPtr("/x/b.py"))
	env.Link(task, entity2)
}

func TestOpenPathWithQueryMetacharacters(t *testing.T) {
	ctx := context.Background()
	// A '?' or '#' in the path must not be parsed as DSN query syntax.
	path := filepath.Join(t.TempDir(), "odd?dir#1", "ws.db")

	store, err := New(ctx, path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entity := &types.Entity{
		EntityType: types.EntityTypeFile,
		Name:       "odd-path check",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.CreateEntity(ctx, entity); err != nil {
		t.Fatalf("CreateEntity failed: %v", err)
	}
	if _, err := store.GetEntity(ctx, entity.ID, false); err != nil {
		t.Fatalf("GetEntity failed: %v", err)
	}
	// Foreign keys come from a _pragma query parameter; a mangled DSN
	// would silently drop it.
	var fk int
	if err := store.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil || fk != 1 {
		t.Errorf("foreign_keys = %d (err=%v), want 1", fk, err)
	}
}
