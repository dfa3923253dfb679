package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskmcp/taskmcp/internal/types"
)

// newTestStore opens a store on a throwaway database file. File-backed
// databases exercise the same WAL/busy-timeout path as production; shared
// in-memory databases do not.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("Failed to close test database: %v", cerr)
		}
	})
	return store
}

// testEnv provides a store plus shorthand row constructors.
type testEnv struct {
	t     *testing.T
	Store *Store
	Ctx   context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{t: t, Store: newTestStore(t), Ctx: context.Background()}
}

// CreateTask creates a task with the given title and defaults.
func (e *testEnv) CreateTask(title string) *types.Task {
	e.t.Helper()
	return e.CreateTaskWith(title, types.StatusTodo, types.PriorityMedium)
}

// CreateTaskWith creates a task with the given status and priority.
func (e *testEnv) CreateTaskWith(title string, status types.Status, priority types.Priority) *types.Task {
	e.t.Helper()
	now := time.Now().UTC()
	task := &types.Task{
		Title:     title,
		Status:    status,
		Priority:  priority,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == types.StatusDone {
		task.CompletedAt = &now
	}
	if err := e.Store.CreateTask(e.Ctx, task); err != nil {
		e.t.Fatalf("CreateTask(%q) failed: %v", title, err)
	}
	return task
}

// CreateChild creates a task parented under parent.
func (e *testEnv) CreateChild(title string, parent *types.Task) *types.Task {
	e.t.Helper()
	now := time.Now().UTC()
	task := &types.Task{
		Title:        title,
		Status:       types.StatusTodo,
		Priority:     types.PriorityMedium,
		ParentTaskID: &parent.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.Store.CreateTask(e.Ctx, task); err != nil {
		e.t.Fatalf("CreateTask(%q) failed: %v", title, err)
	}
	return task
}

// CreateEntity creates an entity with the given type, name, and identifier.
func (e *testEnv) CreateEntity(entityType types.EntityType, name string, identifier *string) *types.Entity {
	e.t.Helper()
	now := time.Now().UTC()
	entity := &types.Entity{
		EntityType: entityType,
		Name:       name,
		Identifier: identifier,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.Store.CreateEntity(e.Ctx, entity); err != nil {
		e.t.Fatalf("CreateEntity(%q) failed: %v", name, err)
	}
	return entity
}

// Link links a task to an entity.
func (e *testEnv) Link(task *types.Task, entity *types.Entity) *types.TaskEntityLink {
	e.t.Helper()
	link := &types.TaskEntityLink{
		TaskID:    task.ID,
		EntityID:  entity.ID,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.Store.CreateLink(e.Ctx, link); err != nil {
		e.t.Fatalf("CreateLink(%d, %d) failed: %v", task.ID, entity.ID, err)
	}
	return link
}

func strPtr(s string) *string { return &s }
