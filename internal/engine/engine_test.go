package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/taskmcp/taskmcp/internal/queries"
	"github.com/taskmcp/taskmcp/internal/registry"
	"github.com/taskmcp/taskmcp/internal/types"
	"github.com/taskmcp/taskmcp/internal/workspace"
)

// newTestEngine builds an engine over a throwaway data root and returns it
// with a fresh workspace directory.
func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	resolver := workspace.NewResolver(t.TempDir())
	if err := resolver.EnsureLayout(); err != nil {
		t.Fatalf("EnsureLayout failed: %v", err)
	}
	reg, err := registry.Open(context.Background(), resolver.MasterDBPath())
	if err != nil {
		t.Fatalf("Failed to open master DB: %v", err)
	}
	eng := New(resolver, reg)
	t.Cleanup(func() {
		if cerr := eng.Close(); cerr != nil {
			t.Errorf("engine close failed: %v", cerr)
		}
		if cerr := reg.Close(); cerr != nil {
			t.Errorf("registry close failed: %v", cerr)
		}
	})
	return eng, t.TempDir()
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func int64Ptr(i int64) *int64 { return &i }

func mustCreateTask(t *testing.T, eng *Engine, ws, title string) *types.Task {
	t.Helper()
	task, err := eng.CreateTask(context.Background(), CreateTaskInput{
		WorkspacePath: ws, Title: title,
	})
	if err != nil {
		t.Fatalf("CreateTask(%q) failed: %v", title, err)
	}
	return task
}

func TestCreateTaskDefaultsAndMetadata(t *testing.T) {
	eng, ws := newTestEngine(t)
	ctx := context.Background()

	task, err := eng.CreateTask(ctx, CreateTaskInput{
		WorkspacePath: ws,
		Title:         "first",
		Tags:          []string{"  Backend ", "backend", "API design"},
		CreatedBy:     "agent-1",
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.Status != types.StatusTodo || task.Priority != types.PriorityMedium {
		t.Errorf("defaults wrong: %s/%s", task.Status, task.Priority)
	}
	// Tags are normalized and deduplicated.
	if len(task.Tags) != 2 || task.Tags[0] != "backend" || task.Tags[1] != "api design" {
		t.Errorf("tags = %v", task.Tags)
	}
	if task.WorkspaceMetadata == nil {
		t.Fatal("workspace metadata not captured")
	}
	if task.WorkspaceMetadata.CwdAtCreation == "" {
		t.Error("cwd_at_creation not defaulted")
	}
	if task.CompletedAt != nil {
		t.Error("completed_at set on todo task")
	}
}

func TestCreateTaskValidation(t *testing.T) {
	eng, ws := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateTaskInput
		kind types.Kind
	}{
		{"empty workspace", CreateTaskInput{Title: "x"}, types.KindWorkspaceMissing},
		{"empty title", CreateTaskInput{WorkspacePath: ws}, types.KindInvalidInput},
		{"bad status", CreateTaskInput{WorkspacePath: ws, Title: "x", Status: "paused"}, types.KindInvalidInput},
		{"bad priority", CreateTaskInput{WorkspacePath: ws, Title: "x", Priority: "urgent"}, types.KindInvalidInput},
		{"blocked without reason", CreateTaskInput{WorkspacePath: ws, Title: "x", Status: "blocked"}, types.KindBlockerReasonMissing},
		{"long description", CreateTaskInput{WorkspacePath: ws, Title: "x",
			Description: strings.Repeat("a", types.MaxDescriptionLen+1)}, types.KindInvalidInput},
		{"missing parent", CreateTaskInput{WorkspacePath: ws, Title: "x", ParentTaskID: int64Ptr(999)}, types.KindNotFound},
		{"missing dependency", CreateTaskInput{WorkspacePath: ws, Title: "x", DependsOn: []int64{999}}, types.KindNotFound},
	}
	for _, tt := range tests {
		if _, err := eng.CreateTask(ctx, tt.in); !types.IsKind(err, tt.kind) {
			t.Errorf("%s: expected %s, got %v", tt.name, tt.kind, err)
		}
	}
}

func TestDependencyGate(t *testing.T) {
	eng, ws := newTestEngine(t)
	ctx := context.Background()

	a := mustCreateTask(t, eng, ws, "A")
	b, err := eng.CreateTask(ctx, CreateTaskInput{
		WorkspacePath: ws, Title: "B", DependsOn: []int64{a.ID},
	})
	if err != nil {
		t.Fatalf("CreateTask(B) failed: %v", err)
	}

	// B cannot start while A is unfinished.
	_, err = eng.UpdateTask(ctx, UpdateTaskInput{WorkspacePath: ws, ID: b.ID, Status: strPtr("in_progress")})
	if !types.IsKind(err, types.KindDependencyNotSatisfied) {
		t.Fatalf("expected DEPENDENCY_NOT_SATISFIED, got %v", err)
	}

	done, err := eng.UpdateTask(ctx, UpdateTaskInput{WorkspacePath: ws, ID: a.ID, Status: strPtr("done")})
	if err != nil {
		t.Fatalf("completing A failed: %v", err)
	}
	if done.CompletedAt == nil {
		t.Error("completed_at not set on done")
	}

	if _, err := eng.UpdateTask(ctx, UpdateTaskInput{WorkspacePath: ws, ID: b.ID, Status: strPtr("in_progress")}); err != nil {
		t.Fatalf("starting B after A done failed: %v", err)
	}

	// Creating a task directly in in_progress is gated the same way.
	c := mustCreateTask(t, eng, ws, "C")
	_, err = eng.CreateTask(ctx, CreateTaskInput{
		WorkspacePath: ws, Title: "D", Status: "in_progress", DependsOn: []int64{c.ID},
	})
	if !types.IsKind(err, types.KindDependencyNotSatisfied) {
		t.Fatalf("expected DEPENDENCY_NOT_SATISFIED on create, got %v", err)
	}
}

func TestBlockerReasonEnforcement(t *testing.T) {
	eng, ws := newTestEngine(t)
	ctx := context.Background()
	task := mustCreateTask(t, eng, ws, "T")

	_, err := eng.UpdateTask(ctx, UpdateTaskInput{WorkspacePath: ws, ID: task.ID, Status: strPtr("blocked")})
	if !types.IsKind(err, types.KindBlockerReasonMissing) {
		t.Fatalf("expected BLOCKER_REASON_MISSING, got %v", err)
	}

	blocked, err := eng.UpdateTask(ctx, UpdateTaskInput{
		WorkspacePath: ws, ID: task.ID,
		Status: strPtr("blocked"), BlockerReason: strPtr("waiting for X"),
	})
	if err != nil {
		t.Fatalf("blocking with reason failed: %v", err)
	}
	if blocked.BlockerReason != "waiting for X" {
		t.Errorf("blocker_reason = %q", blocked.BlockerReason)
	}

	// Leaving blocked clears the reason.
	unblocked, err := eng.UpdateTask(ctx, UpdateTaskInput{WorkspacePath: ws, ID: task.ID, Status: strPtr("todo")})
	if err != nil {
		t.Fatalf("unblocking failed: %v", err)
	}
	if unblocked.BlockerReason != "" {
		t.Errorf("blocker_reason not cleared: %q", unblocked.BlockerReason)
	}
}

func TestLeavingDoneClearsCompletedAt(t *testing.T) {
	eng, ws := newTestEngine(t)
	ctx := context.Background()
	task := mustCreateTask(t, eng, ws, "T")

	if _, err := eng.UpdateTask(ctx, UpdateTaskInput{WorkspacePath: ws, ID: task.ID, Status: strPtr("done")}); err != nil {
		t.Fatalf("completing failed: %v", err)
	}
	reopened, err := eng.UpdateTask(ctx, UpdateTaskInput{WorkspacePath: ws, ID: task.ID, Status: strPtr("todo")})
	if err != nil {
		t.Fatalf("reopening failed: %v", err)
	}
	if reopened.CompletedAt != nil {
		t.Error("completed_at not cleared on reopen")
	}
}

func TestParentCycleRejected(t *testing.T) {
	eng, ws := newTestEngine(t)
	ctx := context.Background()

	a := mustCreateTask(t, eng, ws, "A")
	b, err := eng.CreateTask(ctx, CreateTaskInput{WorkspacePath: ws, Title: "B", ParentTaskID: &a.ID})
	if err != nil {
		t.Fatalf("CreateTask(B) failed: %v", err)
	}
	c, err := eng.CreateTask(ctx, CreateTaskInput{WorkspacePath: ws, Title: "C", ParentTaskID: &b.ID})
	if err != nil {
		t.Fatalf("CreateTask(C) failed: %v", err)
	}

	// A under C closes the loop A -> B -> C -> A.
	_, err = eng.UpdateTask(ctx, UpdateTaskInput{WorkspacePath: ws, ID: a.ID, ParentTaskID: &c.ID})
	if !types.IsKind(err, types.KindCycle) {
		t.Fatalf("expected CYCLE, got %v", err)
	}

	// Self-parenting is the degenerate case.
	_, err = eng.UpdateTask(ctx, UpdateTaskInput{WorkspacePath: ws, ID: a.ID, ParentTaskID: &a.ID})
	if !types.IsKind(err, types.KindCycle) {
		t.Fatalf("expected CYCLE for self-parent, got %v", err)
	}

	// Legitimate reparenting still works.
	if _, err := eng.UpdateTask(ctx, UpdateTaskInput{WorkspacePath: ws, ID: c.ID, ParentTaskID: &a.ID}); err != nil {
		t.Fatalf("valid reparent failed: %v", err)
	}
}

func TestDependencyCycleRejected(t *testing.T) {
	eng, ws := newTestEngine(t)
	ctx := context.Background()

	a := mustCreateTask(t, eng, ws, "A")
	b, err := eng.CreateTask(ctx, CreateTaskInput{WorkspacePath: ws, Title: "B", DependsOn: []int64{a.ID}})
	if err != nil {
		t.Fatalf("CreateTask(B) failed: %v", err)
	}
	c, err := eng.CreateTask(ctx, CreateTaskInput{WorkspacePath: ws, Title: "C", DependsOn: []int64{b.ID}})
	if err != nil {
		t.Fatalf("CreateTask(C) failed: %v", err)
	}

	deps := []int64{c.ID}
	_, err = eng.UpdateTask(ctx, UpdateTaskInput{WorkspacePath: ws, ID: a.ID, DependsOn: &deps})
	if !types.IsKind(err, types.KindCycle) {
		t.Fatalf("expected CYCLE, got %v", err)
	}

	self := []int64{a.ID}
	_, err = eng.UpdateTask(ctx, UpdateTaskInput{WorkspacePath: ws, ID: a.ID, DependsOn: &self})
	if !types.IsKind(err, types.KindCycle) {
		t.Fatalf("expected CYCLE for self-dependency, got %v", err)
	}
}

func TestSoftDeleteAndCleanup(t *testing.T) {
	eng, ws := newTestEngine(t)
	ctx := context.Background()

	parent := mustCreateTask(t, eng, ws, "P")
	if _, err := eng.CreateTask(ctx, CreateTaskInput{WorkspacePath: ws, Title: "C", ParentTaskID: &parent.ID}); err != nil {
		t.Fatalf("CreateTask(C) failed: %v", err)
	}

	result, err := eng.DeleteTask(ctx, ws, parent.ID, true)
	if err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if result.DeletedCount != 2 {
		t.Fatalf("deleted %d, want 2", result.DeletedCount)
	}

	page, err := eng.ListTasks(ctx, ListTasksInput{WorkspacePath: ws})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if page.TotalCount != 0 {
		t.Errorf("soft-deleted tasks still listed: %+v", page)
	}

	purged, err := eng.CleanupDeletedTasks(ctx, ws, intPtr(0))
	if err != nil {
		t.Fatalf("CleanupDeletedTasks failed: %v", err)
	}
	if purged != 2 {
		t.Errorf("purged %d, want 2", purged)
	}

	page, err = eng.ListTasks(ctx, ListTasksInput{WorkspacePath: ws})
	if err != nil || page.TotalCount != 0 {
		t.Errorf("post-cleanup listing: %+v, %v", page, err)
	}
}

func TestPaginationEnvelope(t *testing.T) {
	eng, ws := newTestEngine(t)
	ctx := context.Background()
	for i := 0; i < 250; i++ {
		mustCreateTask(t, eng, ws, "task")
	}

	page, err := eng.ListTasks(ctx, ListTasksInput{WorkspacePath: ws, Limit: intPtr(100)})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if page.TotalCount != 250 || page.ReturnedCount != 100 {
		t.Errorf("first page: total=%d returned=%d", page.TotalCount, page.ReturnedCount)
	}

	page, err = eng.ListTasks(ctx, ListTasksInput{WorkspacePath: ws, Limit: intPtr(100), Offset: intPtr(200)})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if page.ReturnedCount != 50 {
		t.Errorf("last page returned %d, want 50", page.ReturnedCount)
	}

	_, err = eng.ListTasks(ctx, ListTasksInput{WorkspacePath: ws, Limit: intPtr(2000)})
	if !types.IsKind(err, types.KindPaginationInvalid) {
		t.Fatalf("expected PAGINATION_INVALID, got %v", err)
	}
}

func TestResponseSizeBudget(t *testing.T) {
	eng, ws := newTestEngine(t)
	ctx := context.Background()

	// Enough long descriptions that the details projection exceeds the token
	// ceiling while the summary projection stays under it.
	long := strings.Repeat("workload description text ", 40)
	for i := 0; i < 120; i++ {
		if _, err := eng.CreateTask(ctx, CreateTaskInput{WorkspacePath: ws, Title: "bulk", Description: long}); err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
	}

	_, err := eng.ListTasks(ctx, ListTasksInput{WorkspacePath: ws, Mode: "details", Limit: intPtr(1000)})
	if !types.IsKind(err, types.KindResponseSizeExceeded) {
		t.Fatalf("expected RESPONSE_SIZE_EXCEEDED, got %v", err)
	}

	if _, err := eng.ListTasks(ctx, ListTasksInput{WorkspacePath: ws, Mode: "summary", Limit: intPtr(1000)}); err != nil {
		t.Fatalf("summary mode should fit the budget: %v", err)
	}
}

func TestGetNextTasks(t *testing.T) {
	eng, ws := newTestEngine(t)
	ctx := context.Background()

	a := mustCreateTask(t, eng, ws, "A")
	blockedByA, err := eng.CreateTask(ctx, CreateTaskInput{WorkspacePath: ws, Title: "needs-A", DependsOn: []int64{a.ID}})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	free := mustCreateTask(t, eng, ws, "free")

	items, err := eng.GetNextTasks(ctx, ws, "summary")
	if err != nil {
		t.Fatalf("GetNextTasks failed: %v", err)
	}
	ids := nextTaskIDs(t, items)
	if !ids[a.ID] || !ids[free.ID] || ids[blockedByA.ID] {
		t.Errorf("actionable set wrong: %v", ids)
	}

	// Completing A frees its dependent.
	if _, err := eng.UpdateTask(ctx, UpdateTaskInput{WorkspacePath: ws, ID: a.ID, Status: strPtr("done")}); err != nil {
		t.Fatalf("completing A failed: %v", err)
	}
	items, err = eng.GetNextTasks(ctx, ws, "summary")
	if err != nil {
		t.Fatalf("GetNextTasks failed: %v", err)
	}
	ids = nextTaskIDs(t, items)
	if !ids[blockedByA.ID] {
		t.Error("dependent not actionable after dependency done")
	}
	if ids[a.ID] {
		t.Error("done task still listed as next")
	}
}

func nextTaskIDs(t *testing.T, items []any) map[int64]bool {
	t.Helper()
	ids := make(map[int64]bool, len(items))
	for _, item := range items {
		summary, ok := item.(queries.TaskSummary)
		if !ok {
			t.Fatalf("unexpected item type %T", item)
		}
		ids[summary.ID] = true
	}
	return ids
}

func TestGetTaskTree(t *testing.T) {
	eng, ws := newTestEngine(t)
	ctx := context.Background()

	root := mustCreateTask(t, eng, ws, "root")
	child, err := eng.CreateTask(ctx, CreateTaskInput{WorkspacePath: ws, Title: "child", ParentTaskID: &root.ID})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if _, err := eng.CreateTask(ctx, CreateTaskInput{WorkspacePath: ws, Title: "grandchild", ParentTaskID: &child.ID}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	pruned, err := eng.CreateTask(ctx, CreateTaskInput{WorkspacePath: ws, Title: "pruned", ParentTaskID: &root.ID})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if _, err := eng.DeleteTask(ctx, ws, pruned.ID, true); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}

	tree, err := eng.GetTaskTree(ctx, ws, root.ID, "summary")
	if err != nil {
		t.Fatalf("GetTaskTree failed: %v", err)
	}
	// Deleted subtree excluded; surviving chain fully expanded.
	if len(tree.Children) != 1 {
		t.Fatalf("root has %d children, want 1", len(tree.Children))
	}
	if len(tree.Children[0].Children) != 1 {
		t.Errorf("grandchild missing from tree")
	}

	_, err = eng.GetTaskTree(ctx, ws, 9999, "summary")
	if !types.IsKind(err, types.KindNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestWorkspaceIsolation(t *testing.T) {
	eng, wsA := newTestEngine(t)
	wsB := t.TempDir()
	ctx := context.Background()

	taskA := mustCreateTask(t, eng, wsA, "only-in-A")

	// B's store never sees A's rows.
	page, err := eng.ListTasks(ctx, ListTasksInput{WorkspacePath: wsB})
	if err != nil {
		t.Fatalf("ListTasks(B) failed: %v", err)
	}
	if page.TotalCount != 0 {
		t.Errorf("workspace B sees %d foreign tasks", page.TotalCount)
	}
	if _, err := eng.GetTask(ctx, wsB, taskA.ID); !types.IsKind(err, types.KindNotFound) {
		t.Errorf("expected NOT_FOUND across workspaces, got %v", err)
	}
}
