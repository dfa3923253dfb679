package sqlite

import (
	"strings"
	"testing"
	"time"

	"github.com/taskmcp/taskmcp/internal/types"
)

func TestTaskCreateGetRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	parent := env.CreateTask("parent")

	task := &types.Task{
		Title:          "implement parser",
		Description:    "handle quoted strings",
		Status:         types.StatusInProgress,
		Priority:       types.PriorityHigh,
		ParentTaskID:   &parent.ID,
		DependsOn:      []int64{parent.ID},
		Tags:           []string{"parser", "backend"},
		FileReferences: []string{"internal/parse/lex.go"},
		CreatedBy:      "agent-1",
		CreatedAt:      now,
		UpdatedAt:      now,
		WorkspaceMetadata: &types.WorkspaceMetadata{
			WorkspacePath: "/home/dev/proj",
			CwdAtCreation: "/home/dev/proj/sub",
			ProjectName:   "proj",
		},
	}
	if err := env.Store.CreateTask(env.Ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.ID == 0 {
		t.Fatal("id not populated")
	}

	got, err := env.Store.GetTask(env.Ctx, task.ID, false)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != task.Title || got.Description != task.Description {
		t.Errorf("title/description mismatch: %+v", got)
	}
	if got.Status != types.StatusInProgress || got.Priority != types.PriorityHigh {
		t.Errorf("status/priority mismatch: %s/%s", got.Status, got.Priority)
	}
	if got.ParentTaskID == nil || *got.ParentTaskID != parent.ID {
		t.Errorf("parent mismatch: %v", got.ParentTaskID)
	}
	if len(got.DependsOn) != 1 || got.DependsOn[0] != parent.ID {
		t.Errorf("depends_on mismatch: %v", got.DependsOn)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "parser" || got.Tags[1] != "backend" {
		t.Errorf("tags mismatch: %v", got.Tags)
	}
	if len(got.FileReferences) != 1 || got.FileReferences[0] != "internal/parse/lex.go" {
		t.Errorf("file_references mismatch: %v", got.FileReferences)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, now)
	}
	if got.WorkspaceMetadata == nil || got.WorkspaceMetadata.ProjectName != "proj" {
		t.Errorf("workspace metadata mismatch: %+v", got.WorkspaceMetadata)
	}
	if got.CompletedAt != nil || got.DeletedAt != nil {
		t.Errorf("unexpected completed/deleted timestamps: %+v", got)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Store.GetTask(env.Ctx, 9999, false)
	if !types.IsKind(err, types.KindNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestGetTaskIncludeDeleted(t *testing.T) {
	env := newTestEnv(t)
	task := env.CreateTask("doomed")
	if _, err := env.Store.SoftDeleteTaskTree(env.Ctx, task.ID, false, time.Now().UTC()); err != nil {
		t.Fatalf("soft delete failed: %v", err)
	}

	if _, err := env.Store.GetTask(env.Ctx, task.ID, false); !types.IsKind(err, types.KindNotFound) {
		t.Fatalf("expected NOT_FOUND for live read, got %v", err)
	}
	got, err := env.Store.GetTask(env.Ctx, task.ID, true)
	if err != nil {
		t.Fatalf("includeDeleted read failed: %v", err)
	}
	if got.DeletedAt == nil {
		t.Error("deleted_at not set")
	}
}

func TestUpdateTask(t *testing.T) {
	env := newTestEnv(t)
	task := env.CreateTask("draft")

	task.Title = "final"
	task.Status = types.StatusBlocked
	task.BlockerReason = "waiting on API keys"
	task.Tags = []string{"ops"}
	task.UpdatedAt = time.Now().UTC()
	if err := env.Store.UpdateTask(env.Ctx, task); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}

	got, err := env.Store.GetTask(env.Ctx, task.ID, false)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != "final" || got.Status != types.StatusBlocked || got.BlockerReason != "waiting on API keys" {
		t.Errorf("update not persisted: %+v", got)
	}

	// Updating a missing or deleted task reports NOT_FOUND.
	missing := *task
	missing.ID = 9999
	if err := env.Store.UpdateTask(env.Ctx, &missing); !types.IsKind(err, types.KindNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestListTasksOrdering(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mk := func(title string, priority types.Priority, offset time.Duration) *types.Task {
		task := &types.Task{
			Title:     title,
			Status:    types.StatusTodo,
			Priority:  priority,
			CreatedAt: base.Add(offset),
			UpdatedAt: base.Add(offset),
		}
		if err := env.Store.CreateTask(env.Ctx, task); err != nil {
			t.Fatalf("CreateTask(%q) failed: %v", title, err)
		}
		return task
	}

	mk("low-old", types.PriorityLow, 0)
	mk("high-new", types.PriorityHigh, 3*time.Hour)
	mk("med", types.PriorityMedium, time.Hour)
	mk("high-old", types.PriorityHigh, 2*time.Hour)

	tasks, total, err := env.Store.ListTasks(env.Ctx, types.TaskFilter{}, 0, 0)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if total != 4 {
		t.Fatalf("total = %d, want 4", total)
	}
	want := []string{"high-old", "high-new", "med", "low-old"}
	for i, task := range tasks {
		if task.Title != want[i] {
			t.Errorf("position %d = %q, want %q", i, task.Title, want[i])
		}
	}

	// Sub-second creations must still order chronologically: the fixed-width
	// timestamp format keeps lexicographic and chronological order aligned.
	mk("high-frac", types.PriorityHigh, 2*time.Hour+500*time.Millisecond)
	tasks, _, err = env.Store.ListTasks(env.Ctx, types.TaskFilter{}, 0, 0)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if tasks[0].Title != "high-old" || tasks[1].Title != "high-frac" || tasks[2].Title != "high-new" {
		t.Errorf("fractional-second ordering wrong: %q %q %q",
			tasks[0].Title, tasks[1].Title, tasks[2].Title)
	}
}

func TestListTasksFilters(t *testing.T) {
	env := newTestEnv(t)
	parent := env.CreateTask("parent")
	child := env.CreateChild("child", parent)
	done := env.CreateTaskWith("finished", types.StatusDone, types.PriorityLow)

	tagged := env.CreateTask("tagged")
	tagged.Tags = []string{"auth", "security"}
	tagged.UpdatedAt = time.Now().UTC()
	if err := env.Store.UpdateTask(env.Ctx, tagged); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}

	status := types.StatusDone
	tasks, total, err := env.Store.ListTasks(env.Ctx, types.TaskFilter{Status: &status}, 0, 0)
	if err != nil || total != 1 || tasks[0].ID != done.ID {
		t.Fatalf("status filter: total=%d err=%v", total, err)
	}

	tasks, total, err = env.Store.ListTasks(env.Ctx, types.TaskFilter{ParentTaskID: &parent.ID}, 0, 0)
	if err != nil || total != 1 || tasks[0].ID != child.ID {
		t.Fatalf("parent filter: total=%d err=%v", total, err)
	}

	_, total, err = env.Store.ListTasks(env.Ctx, types.TaskFilter{Tags: "AUTH"}, 0, 0)
	if err != nil || total != 1 {
		t.Fatalf("tag filter: total=%d err=%v", total, err)
	}

	priority := types.PriorityLow
	_, total, err = env.Store.ListTasks(env.Ctx, types.TaskFilter{Priority: &priority, Status: &status}, 0, 0)
	if err != nil || total != 1 {
		t.Fatalf("combined filter: total=%d err=%v", total, err)
	}
}

func TestListTasksPagination(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		env.CreateTask(strings.Repeat("x", i+1))
	}

	tasks, total, err := env.Store.ListTasks(env.Ctx, types.TaskFilter{}, 2, 0)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5 (pre-pagination count)", total)
	}
	if len(tasks) != 2 {
		t.Errorf("page size = %d, want 2", len(tasks))
	}

	tasks, total, err = env.Store.ListTasks(env.Ctx, types.TaskFilter{}, 2, 4)
	if err != nil || total != 5 || len(tasks) != 1 {
		t.Fatalf("last page: len=%d total=%d err=%v", len(tasks), total, err)
	}

	tasks, _, err = env.Store.ListTasks(env.Ctx, types.TaskFilter{}, 2, 10)
	if err != nil || len(tasks) != 0 {
		t.Fatalf("past-end page: len=%d err=%v", len(tasks), err)
	}
}

func TestSearchTasks(t *testing.T) {
	env := newTestEnv(t)
	env.CreateTask("Fix login timeout")
	other := env.CreateTask("unrelated")
	other.Description = "see LOGIN flow doc"
	other.UpdatedAt = time.Now().UTC()
	if err := env.Store.UpdateTask(env.Ctx, other); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	env.CreateTask("something else")

	tasks, total, err := env.Store.SearchTasks(env.Ctx, "login", types.TaskFilter{}, 0, 0)
	if err != nil {
		t.Fatalf("SearchTasks failed: %v", err)
	}
	if total != 2 || len(tasks) != 2 {
		t.Errorf("search matched %d/%d, want 2", len(tasks), total)
	}
}

func TestGetBlockedTasksOrder(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"first", "second", "third"} {
		task := &types.Task{
			Title:         title,
			Status:        types.StatusBlocked,
			Priority:      types.PriorityMedium,
			BlockerReason: "waiting",
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		if err := env.Store.CreateTask(env.Ctx, task); err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
	}
	env.CreateTask("not blocked")

	tasks, err := env.Store.GetBlockedTasks(env.Ctx)
	if err != nil {
		t.Fatalf("GetBlockedTasks failed: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d blocked tasks, want 3", len(tasks))
	}
	// Newest first.
	if tasks[0].Title != "third" || tasks[2].Title != "first" {
		t.Errorf("order wrong: %q .. %q", tasks[0].Title, tasks[2].Title)
	}
}

func TestSoftDeleteTaskTreeCascade(t *testing.T) {
	env := newTestEnv(t)
	root := env.CreateTask("root")
	child := env.CreateChild("child", root)
	grandchild := env.CreateChild("grandchild", child)
	sibling := env.CreateTask("sibling")

	entity := env.CreateEntity("file", "main", strPtr("/p/main.go"))
	env.Link(child, entity)

	ids, err := env.Store.SoftDeleteTaskTree(env.Ctx, root.ID, true, time.Now().UTC())
	if err != nil {
		t.Fatalf("SoftDeleteTaskTree failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("deleted %d tasks, want 3 (%v)", len(ids), ids)
	}

	for _, id := range []int64{root.ID, child.ID, grandchild.ID} {
		if _, err := env.Store.GetTask(env.Ctx, id, false); !types.IsKind(err, types.KindNotFound) {
			t.Errorf("task %d still live: %v", id, err)
		}
	}
	if _, err := env.Store.GetTask(env.Ctx, sibling.ID, false); err != nil {
		t.Errorf("sibling should survive: %v", err)
	}

	// The child's link is soft-deleted along with it.
	link, err := env.Store.GetLiveLink(env.Ctx, child.ID, entity.ID)
	if err != nil {
		t.Fatalf("GetLiveLink failed: %v", err)
	}
	if link != nil {
		t.Error("link survived cascade")
	}
}

func TestSoftDeleteTaskNoCascade(t *testing.T) {
	env := newTestEnv(t)
	root := env.CreateTask("root")
	child := env.CreateChild("child", root)

	ids, err := env.Store.SoftDeleteTaskTree(env.Ctx, root.ID, false, time.Now().UTC())
	if err != nil {
		t.Fatalf("SoftDeleteTaskTree failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != root.ID {
		t.Fatalf("deleted %v, want just root", ids)
	}

	// The orphan keeps its parent pointer and stays live.
	got, err := env.Store.GetTask(env.Ctx, child.ID, false)
	if err != nil {
		t.Fatalf("child should survive: %v", err)
	}
	if got.ParentTaskID == nil || *got.ParentTaskID != root.ID {
		t.Errorf("parent pointer changed: %v", got.ParentTaskID)
	}
}

func TestSoftDeleteTaskTreeNotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Store.SoftDeleteTaskTree(env.Ctx, 42, true, time.Now().UTC()); !types.IsKind(err, types.KindNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}

	// Already-deleted roots also report NOT_FOUND.
	task := env.CreateTask("once")
	if _, err := env.Store.SoftDeleteTaskTree(env.Ctx, task.ID, false, time.Now().UTC()); err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
	if _, err := env.Store.SoftDeleteTaskTree(env.Ctx, task.ID, false, time.Now().UTC()); !types.IsKind(err, types.KindNotFound) {
		t.Fatalf("expected NOT_FOUND on second delete, got %v", err)
	}
}

func TestCleanupDeletedTasks(t *testing.T) {
	env := newTestEnv(t)
	old := env.CreateTask("old")
	recent := env.CreateTask("recent")
	live := env.CreateTask("live")

	now := time.Now().UTC()
	if _, err := env.Store.SoftDeleteTaskTree(env.Ctx, old.ID, false, now.Add(-40*24*time.Hour)); err != nil {
		t.Fatalf("delete old failed: %v", err)
	}
	if _, err := env.Store.SoftDeleteTaskTree(env.Ctx, recent.ID, false, now.Add(-5*24*time.Hour)); err != nil {
		t.Fatalf("delete recent failed: %v", err)
	}

	purged, err := env.Store.CleanupDeletedTasks(env.Ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("CleanupDeletedTasks failed: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}

	// The expired row is physically gone; the recent one is still readable
	// with includeDeleted; the live one is untouched.
	if _, err := env.Store.GetTask(env.Ctx, old.ID, true); !types.IsKind(err, types.KindNotFound) {
		t.Errorf("old task not purged: %v", err)
	}
	if _, err := env.Store.GetTask(env.Ctx, recent.ID, true); err != nil {
		t.Errorf("recent task should remain: %v", err)
	}
	if _, err := env.Store.GetTask(env.Ctx, live.ID, false); err != nil {
		t.Errorf("live task should remain: %v", err)
	}
}

func TestStatusesByID(t *testing.T) {
	env := newTestEnv(t)
	a := env.CreateTask("a")
	b := env.CreateTaskWith("b", types.StatusDone, types.PriorityMedium)
	deleted := env.CreateTask("gone")
	if _, err := env.Store.SoftDeleteTaskTree(env.Ctx, deleted.ID, false, time.Now().UTC()); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	statuses, err := env.Store.StatusesByID(env.Ctx)
	if err != nil {
		t.Fatalf("StatusesByID failed: %v", err)
	}
	if statuses[a.ID] != types.StatusTodo || statuses[b.ID] != types.StatusDone {
		t.Errorf("statuses wrong: %v", statuses)
	}
	if _, ok := statuses[deleted.ID]; ok {
		t.Error("deleted task present in status map")
	}
}
