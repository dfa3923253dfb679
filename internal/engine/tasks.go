package engine

import (
	"context"

	"github.com/taskmcp/taskmcp/internal/queries"
	"github.com/taskmcp/taskmcp/internal/storage"
	"github.com/taskmcp/taskmcp/internal/types"
	"github.com/taskmcp/taskmcp/internal/workspace"
)

// CreateTaskInput carries the arguments of create_task. Zero values mean
// "not provided": status defaults to todo, priority to medium.
type CreateTaskInput struct {
	WorkspacePath  string
	Title          string
	Description    string
	Status         string
	Priority       string
	ParentTaskID   *int64
	DependsOn      []int64
	Tags           []string
	BlockerReason  string
	FileReferences []string
	CreatedBy      string
	// Caller-reported working directory at creation time. Falls back to the
	// resolved workspace path.
	CwdAtCreation string
}

// CreateTask validates and inserts a new task, capturing workspace
// provenance metadata from the resolver.
func (e *Engine) CreateTask(ctx context.Context, in CreateTaskInput) (task *types.Task, err error) {
	resolved, store, err := e.workspaceFor(ctx, in.WorkspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "create_task", resolved.ID, err) }()

	status := types.Status(in.Status)
	if in.Status == "" {
		status = types.StatusTodo
	}
	priority := types.Priority(in.Priority)
	if in.Priority == "" {
		priority = types.PriorityMedium
	}

	now := e.now()
	cwd := in.CwdAtCreation
	if cwd == "" {
		cwd = resolved.WorkspacePath
	}
	task = &types.Task{
		Title:          in.Title,
		Description:    in.Description,
		Status:         status,
		Priority:       priority,
		ParentTaskID:   in.ParentTaskID,
		DependsOn:      in.DependsOn,
		Tags:           types.NormalizeTags(in.Tags),
		BlockerReason:  in.BlockerReason,
		FileReferences: in.FileReferences,
		CreatedBy:      in.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
		WorkspaceMetadata: &types.WorkspaceMetadata{
			WorkspacePath: resolved.WorkspacePath,
			GitRoot:       resolved.GitRoot,
			CwdAtCreation: cwd,
			ProjectName:   resolved.ProjectName,
		},
	}
	if status == types.StatusDone {
		task.CompletedAt = &now
	}
	if err = task.Validate(); err != nil {
		return nil, err
	}
	if err = e.checkParentExists(ctx, store, in.ParentTaskID); err != nil {
		return nil, err
	}
	if err = e.checkDependenciesExist(ctx, store, in.DependsOn); err != nil {
		return nil, err
	}
	if status == types.StatusInProgress || status == types.StatusDone {
		if err = e.dependencyGate(ctx, store, in.DependsOn); err != nil {
			return nil, err
		}
	}

	if err = store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTaskInput is a partial update: nil pointers leave fields untouched.
// ClearParentTaskID detaches the task from its parent.
type UpdateTaskInput struct {
	WorkspacePath     string
	ID                int64
	Title             *string
	Description       *string
	Status            *string
	Priority          *string
	ParentTaskID      *int64
	ClearParentTaskID bool
	DependsOn         *[]int64
	Tags              *[]string
	BlockerReason     *string
	FileReferences    *[]string
}

// UpdateTask applies a partial update, enforcing the status-transition rules
// (blocker reason on entering blocked, dependency gate on entering
// in_progress/done, completion timestamp bookkeeping) and rejecting parent or
// dependency cycles.
func (e *Engine) UpdateTask(ctx context.Context, in UpdateTaskInput) (task *types.Task, err error) {
	resolved, store, err := e.workspaceFor(ctx, in.WorkspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "update_task", resolved.ID, err) }()

	task, err = store.GetTask(ctx, in.ID, false)
	if err != nil {
		return nil, err
	}
	now := e.now()

	if in.Title != nil {
		task.Title = *in.Title
	}
	if in.Description != nil {
		task.Description = *in.Description
	}
	if in.Priority != nil {
		task.Priority = types.Priority(*in.Priority)
	}
	if in.Tags != nil {
		task.Tags = types.NormalizeTags(*in.Tags)
	}
	if in.FileReferences != nil {
		task.FileReferences = *in.FileReferences
	}
	if in.BlockerReason != nil {
		task.BlockerReason = *in.BlockerReason
	}

	if in.Status != nil && types.Status(*in.Status) != task.Status {
		newStatus := types.Status(*in.Status)
		if !newStatus.IsValid() {
			return nil, types.Errorf(types.KindInvalidInput, "invalid status: %s", newStatus)
		}
		if newStatus == types.StatusBlocked && task.BlockerReason == "" {
			return nil, types.Errorf(types.KindBlockerReasonMissing,
				"entering status 'blocked' requires a blocker_reason")
		}
		if task.Status == types.StatusBlocked && newStatus != types.StatusBlocked {
			// Leaving blocked clears the reason unless this update sets a new
			// one (which Validate would then reject for non-blocked states).
			if in.BlockerReason == nil {
				task.BlockerReason = ""
			}
		}
		if newStatus == types.StatusInProgress || newStatus == types.StatusDone {
			deps := task.DependsOn
			if in.DependsOn != nil {
				deps = *in.DependsOn
			}
			if err = e.dependencyGate(ctx, store, deps); err != nil {
				return nil, err
			}
		}
		if newStatus == types.StatusDone {
			task.CompletedAt = &now
		} else if task.Status == types.StatusDone {
			task.CompletedAt = nil
		}
		task.Status = newStatus
	}

	switch {
	case in.ClearParentTaskID:
		task.ParentTaskID = nil
	case in.ParentTaskID != nil:
		if err = e.checkParentExists(ctx, store, in.ParentTaskID); err != nil {
			return nil, err
		}
		if err = e.checkParentCycle(ctx, store, task.ID, *in.ParentTaskID); err != nil {
			return nil, err
		}
		task.ParentTaskID = in.ParentTaskID
	}

	if in.DependsOn != nil {
		if err = e.checkDependenciesExist(ctx, store, *in.DependsOn); err != nil {
			return nil, err
		}
		if err = e.checkDependencyCycle(ctx, store, task.ID, *in.DependsOn); err != nil {
			return nil, err
		}
		task.DependsOn = *in.DependsOn
	}

	task.UpdatedAt = now
	if err = task.Validate(); err != nil {
		return nil, err
	}
	if err = store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// GetTask returns a live task by id.
func (e *Engine) GetTask(ctx context.Context, workspacePath string, id int64) (task *types.Task, err error) {
	resolved, store, err := e.workspaceFor(ctx, workspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "get_task", resolved.ID, err) }()
	return store.GetTask(ctx, id, false)
}

// DeleteTaskResult reports what a delete touched.
type DeleteTaskResult struct {
	DeletedTaskIDs []int64 `json:"deleted_task_ids"`
	DeletedCount   int     `json:"deleted_count"`
}

// DeleteTask soft-deletes a task, optionally cascading through all
// descendants, and soft-deletes the task's live entity links.
func (e *Engine) DeleteTask(ctx context.Context, workspacePath string, id int64, cascade bool) (result *DeleteTaskResult, err error) {
	resolved, store, err := e.workspaceFor(ctx, workspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "delete_task", resolved.ID, err) }()

	ids, err := store.SoftDeleteTaskTree(ctx, id, cascade, e.now())
	if err != nil {
		return nil, err
	}
	return &DeleteTaskResult{DeletedTaskIDs: ids, DeletedCount: len(ids)}, nil
}

// ListTasksInput carries the arguments of list_tasks.
type ListTasksInput struct {
	WorkspacePath string
	Status        string
	Priority      string
	ParentTaskID  *int64
	Tags          string
	Mode          string
	Limit         *int
	Offset        *int
}

func taskFilterFrom(status, priority string, parentTaskID *int64, tags string) (types.TaskFilter, error) {
	filter := types.TaskFilter{ParentTaskID: parentTaskID, Tags: tags}
	if status != "" {
		s := types.Status(status)
		if !s.IsValid() {
			return filter, types.Errorf(types.KindInvalidInput, "invalid status: %s", status)
		}
		filter.Status = &s
	}
	if priority != "" {
		p := types.Priority(priority)
		if !p.IsValid() {
			return filter, types.Errorf(types.KindInvalidInput, "invalid priority: %s", priority)
		}
		filter.Priority = &p
	}
	return filter, nil
}

// ListTasks returns live tasks matching the filters, paginated, ordered by
// priority then age.
func (e *Engine) ListTasks(ctx context.Context, in ListTasksInput) (page *queries.Page, err error) {
	resolved, store, err := e.workspaceFor(ctx, in.WorkspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "list_tasks", resolved.ID, err) }()

	mode, err := queries.ParseMode(in.Mode)
	if err != nil {
		return nil, err
	}
	p, err := queries.ParsePagination(in.Limit, in.Offset)
	if err != nil {
		return nil, err
	}
	filter, err := taskFilterFrom(in.Status, in.Priority, in.ParentTaskID, in.Tags)
	if err != nil {
		return nil, err
	}

	tasks, total, err := store.ListTasks(ctx, filter, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	return e.taskPage(tasks, total, mode, p, "list_tasks")
}

// SearchTasksInput carries the arguments of search_tasks.
type SearchTasksInput struct {
	ListTasksInput
	Term string
}

// SearchTasks is ListTasks plus a case-insensitive substring match on title
// or description.
func (e *Engine) SearchTasks(ctx context.Context, in SearchTasksInput) (page *queries.Page, err error) {
	resolved, store, err := e.workspaceFor(ctx, in.WorkspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "search_tasks", resolved.ID, err) }()

	mode, err := queries.ParseMode(in.Mode)
	if err != nil {
		return nil, err
	}
	p, err := queries.ParsePagination(in.Limit, in.Offset)
	if err != nil {
		return nil, err
	}
	filter, err := taskFilterFrom(in.Status, in.Priority, in.ParentTaskID, in.Tags)
	if err != nil {
		return nil, err
	}

	tasks, total, err := store.SearchTasks(ctx, in.Term, filter, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	return e.taskPage(tasks, total, mode, p, "search_tasks")
}

func (e *Engine) taskPage(tasks []*types.Task, total int, mode queries.Mode, p queries.Pagination, tool string) (*queries.Page, error) {
	page := queries.NewPage(queries.ProjectTasks(tasks, mode), total, p)
	if _, err := queries.EnforceBudget(tool, page); err != nil {
		return nil, err
	}
	return page, nil
}

// GetTaskTree returns the task and a depth-first expansion of its live
// descendants, each projected in the requested mode.
func (e *Engine) GetTaskTree(ctx context.Context, workspacePath string, rootID int64, modeStr string) (tree *queries.TreeNode, err error) {
	resolved, store, err := e.workspaceFor(ctx, workspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "get_task_tree", resolved.ID, err) }()

	mode, err := queries.ParseMode(modeStr)
	if err != nil {
		return nil, err
	}
	root, err := store.GetTask(ctx, rootID, false)
	if err != nil {
		return nil, err
	}

	node, err := e.expandTree(ctx, store, root)
	if err != nil {
		return nil, err
	}
	tree = queries.ProjectTree(node, mode)
	if _, err = queries.EnforceBudget("get_task_tree", tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// expandTree walks the hierarchy depth-first with an explicit visited set so
// a parent cycle left behind by a buggy historical write cannot loop forever.
func (e *Engine) expandTree(ctx context.Context, store storage.Store, root *types.Task) (*types.TreeNode, error) {
	rootNode := &types.TreeNode{Task: root}
	visited := map[int64]bool{root.ID: true}
	stack := []*types.TreeNode{rootNode}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := store.ListChildren(ctx, node.Task.ID)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			childNode := &types.TreeNode{Task: child}
			node.Children = append(node.Children, childNode)
			stack = append(stack, childNode)
		}
	}
	return rootNode, nil
}

// GetBlockedTasks returns all blocked tasks, newest first.
func (e *Engine) GetBlockedTasks(ctx context.Context, workspacePath, modeStr string) (items []any, err error) {
	resolved, store, err := e.workspaceFor(ctx, workspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "get_blocked_tasks", resolved.ID, err) }()

	mode, err := queries.ParseMode(modeStr)
	if err != nil {
		return nil, err
	}
	tasks, err := store.GetBlockedTasks(ctx)
	if err != nil {
		return nil, err
	}
	items = queries.ProjectTasks(tasks, mode)
	if _, err = queries.EnforceBudget("get_blocked_tasks", items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetNextTasks returns todo tasks whose dependencies are all done, in
// priority-then-age order: the actionable frontier.
func (e *Engine) GetNextTasks(ctx context.Context, workspacePath, modeStr string) (items []any, err error) {
	resolved, store, err := e.workspaceFor(ctx, workspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "get_next_tasks", resolved.ID, err) }()

	mode, err := queries.ParseMode(modeStr)
	if err != nil {
		return nil, err
	}
	todos, err := store.ListByStatus(ctx, types.StatusTodo)
	if err != nil {
		return nil, err
	}
	statuses, err := store.StatusesByID(ctx)
	if err != nil {
		return nil, err
	}

	var actionable []*types.Task
	for _, task := range todos {
		ready := true
		for _, dep := range task.DependsOn {
			if statuses[dep] != types.StatusDone {
				ready = false
				break
			}
		}
		if ready {
			actionable = append(actionable, task)
		}
	}
	items = queries.ProjectTasks(actionable, mode)
	if _, err = queries.EnforceBudget("get_next_tasks", items); err != nil {
		return nil, err
	}
	return items, nil
}

// CleanupDeletedTasks permanently purges tasks soft-deleted longer than
// retentionDays ago. Nil means the default 30 days; zero purges every
// soft-deleted row immediately.
func (e *Engine) CleanupDeletedTasks(ctx context.Context, workspacePath string, retentionDays *int) (purged int, err error) {
	resolved, store, err := e.workspaceFor(ctx, workspacePath)
	if err != nil {
		return 0, err
	}
	defer func() { e.track(ctx, "cleanup_deleted_tasks", resolved.ID, err) }()

	days := 30
	if retentionDays != nil {
		if *retentionDays < 0 {
			return 0, types.Errorf(types.KindInvalidInput,
				"retention_days must be non-negative, got %d", *retentionDays)
		}
		days = *retentionDays
	}
	return store.CleanupDeletedTasks(ctx, e.now().AddDate(0, 0, -days))
}

func (e *Engine) checkParentExists(ctx context.Context, store storage.Store, parentID *int64) error {
	if parentID == nil {
		return nil
	}
	if _, err := store.GetTask(ctx, *parentID, false); err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return types.Errorf(types.KindNotFound, "parent task %d not found", *parentID)
		}
		return err
	}
	return nil
}

func (e *Engine) checkDependenciesExist(ctx context.Context, store storage.Store, dependsOn []int64) error {
	for _, dep := range dependsOn {
		if _, err := store.GetTask(ctx, dep, false); err != nil {
			if types.IsKind(err, types.KindNotFound) {
				return types.Errorf(types.KindNotFound, "dependency task %d not found", dep)
			}
			return err
		}
	}
	return nil
}

// dependencyGate enforces that every dependency is done before a task may
// enter in_progress or done.
func (e *Engine) dependencyGate(ctx context.Context, store storage.Store, dependsOn []int64) error {
	var unmet []int64
	for _, dep := range dependsOn {
		task, err := store.GetTask(ctx, dep, false)
		if err != nil {
			if types.IsKind(err, types.KindNotFound) {
				unmet = append(unmet, dep)
				continue
			}
			return err
		}
		if task.Status != types.StatusDone {
			unmet = append(unmet, dep)
		}
	}
	if len(unmet) > 0 {
		return types.Errorf(types.KindDependencyNotSatisfied,
			"cannot start or complete: %d unfinished dependencies", len(unmet)).
			WithDetail("unsatisfied_dependencies", unmet).
			WithSuggestion("Complete the listed dependencies first, or remove them from depends_on.")
	}
	return nil
}

// checkParentCycle walks up from the proposed parent; reaching the task
// itself means reparenting would create a loop.
func (e *Engine) checkParentCycle(ctx context.Context, store storage.Store, taskID, newParentID int64) error {
	if newParentID == taskID {
		return types.Errorf(types.KindCycle, "task %d cannot be its own parent", taskID)
	}
	seen := map[int64]bool{taskID: true}
	current := newParentID
	for {
		if seen[current] {
			return types.Errorf(types.KindCycle,
				"setting parent %d on task %d would create a hierarchy cycle", newParentID, taskID)
		}
		seen[current] = true
		task, err := store.GetTask(ctx, current, true)
		if err != nil {
			if types.IsKind(err, types.KindNotFound) {
				return nil
			}
			return err
		}
		if task.ParentTaskID == nil {
			return nil
		}
		current = *task.ParentTaskID
	}
}

// checkDependencyCycle rejects a depends_on set from which taskID is
// transitively reachable.
func (e *Engine) checkDependencyCycle(ctx context.Context, store storage.Store, taskID int64, dependsOn []int64) error {
	visited := make(map[int64]bool)
	var visit func(id int64) error
	visit = func(id int64) error {
		if id == taskID {
			return types.Errorf(types.KindCycle,
				"dependency on task %d would create a cycle through task %d", id, taskID)
		}
		if visited[id] {
			return nil
		}
		visited[id] = true
		task, err := store.GetTask(ctx, id, true)
		if err != nil {
			if types.IsKind(err, types.KindNotFound) {
				return nil
			}
			return err
		}
		for _, dep := range task.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, dep := range dependsOn {
		if err := visit(dep); err != nil {
			return err
		}
	}
	return nil
}

// touchWorkspace registers a workspace without doing anything else; used by
// commands that only need registry side effects.
func (e *Engine) touchWorkspace(ctx context.Context, workspacePath string) (*workspace.Resolved, error) {
	resolved, _, err := e.workspaceFor(ctx, workspacePath)
	return resolved, err
}
