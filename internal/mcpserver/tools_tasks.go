package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/taskmcp/taskmcp/internal/engine"
)

type createTaskArgs struct {
	WorkspacePath  string   `json:"workspace_path" jsonschema:"absolute path of the project root"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Status         string   `json:"status,omitempty" jsonschema:"todo, in_progress, blocked, done, or cancelled"`
	Priority       string   `json:"priority,omitempty" jsonschema:"low, medium, or high"`
	ParentTaskID   *int64   `json:"parent_task_id,omitempty"`
	DependsOn      []int64  `json:"depends_on,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	BlockerReason  string   `json:"blocker_reason,omitempty"`
	FileReferences []string `json:"file_references,omitempty"`
	CreatedBy      string   `json:"created_by,omitempty"`
	CwdAtCreation  string   `json:"cwd_at_creation,omitempty"`
}

type updateTaskArgs struct {
	WorkspacePath     string    `json:"workspace_path"`
	ID                int64     `json:"id"`
	Title             *string   `json:"title,omitempty"`
	Description       *string   `json:"description,omitempty"`
	Status            *string   `json:"status,omitempty"`
	Priority          *string   `json:"priority,omitempty"`
	ParentTaskID      *int64    `json:"parent_task_id,omitempty"`
	ClearParentTaskID bool      `json:"clear_parent_task_id,omitempty"`
	DependsOn         *[]int64  `json:"depends_on,omitempty"`
	Tags              *[]string `json:"tags,omitempty"`
	BlockerReason     *string   `json:"blocker_reason,omitempty"`
	FileReferences    *[]string `json:"file_references,omitempty"`
}

type taskIDArgs struct {
	WorkspacePath string `json:"workspace_path"`
	ID            int64  `json:"id"`
}

type deleteTaskArgs struct {
	WorkspacePath string `json:"workspace_path"`
	ID            int64  `json:"id"`
	Cascade       bool   `json:"cascade,omitempty" jsonschema:"also soft-delete all descendant tasks"`
}

type listTasksArgs struct {
	WorkspacePath string `json:"workspace_path"`
	Status        string `json:"status,omitempty"`
	Priority      string `json:"priority,omitempty"`
	ParentTaskID  *int64 `json:"parent_task_id,omitempty"`
	Tags          string `json:"tags,omitempty" jsonschema:"substring match against normalized tags"`
	Mode          string `json:"mode,omitempty" jsonschema:"summary or details"`
	Limit         *int   `json:"limit,omitempty"`
	Offset        *int   `json:"offset,omitempty"`
}

type searchTasksArgs struct {
	listTasksArgs
	Term string `json:"term" jsonschema:"case-insensitive substring of title or description"`
}

type taskTreeArgs struct {
	WorkspacePath string `json:"workspace_path"`
	RootID        int64  `json:"root_id"`
	Mode          string `json:"mode,omitempty"`
}

type workspaceModeArgs struct {
	WorkspacePath string `json:"workspace_path"`
	Mode          string `json:"mode,omitempty"`
}

type cleanupArgs struct {
	WorkspacePath string `json:"workspace_path"`
	RetentionDays *int   `json:"retention_days,omitempty" jsonschema:"default 30; 0 purges immediately"`
}

func (s *Server) registerTaskTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "create_task",
		Description: "Create a task in the given workspace. Tasks support hierarchy (parent_task_id), dependencies (depends_on), tags, and file references.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args createTaskArgs) (*mcp.CallToolResult, any, error) {
		task, err := s.engine.CreateTask(ctx, engine.CreateTaskInput{
			WorkspacePath:  args.WorkspacePath,
			Title:          args.Title,
			Description:    args.Description,
			Status:         args.Status,
			Priority:       args.Priority,
			ParentTaskID:   args.ParentTaskID,
			DependsOn:      args.DependsOn,
			Tags:           args.Tags,
			BlockerReason:  args.BlockerReason,
			FileReferences: args.FileReferences,
			CreatedBy:      args.CreatedBy,
			CwdAtCreation:  args.CwdAtCreation,
		})
		return reply(task, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "update_task",
		Description: "Partially update a task. Status transitions enforce blocker reasons and the dependency gate; parent and dependency changes are checked for cycles.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args updateTaskArgs) (*mcp.CallToolResult, any, error) {
		task, err := s.engine.UpdateTask(ctx, engine.UpdateTaskInput{
			WorkspacePath:     args.WorkspacePath,
			ID:                args.ID,
			Title:             args.Title,
			Description:       args.Description,
			Status:            args.Status,
			Priority:          args.Priority,
			ParentTaskID:      args.ParentTaskID,
			ClearParentTaskID: args.ClearParentTaskID,
			DependsOn:         args.DependsOn,
			Tags:              args.Tags,
			BlockerReason:     args.BlockerReason,
			FileReferences:    args.FileReferences,
		})
		return reply(task, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_task",
		Description: "Fetch a single task by id.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args taskIDArgs) (*mcp.CallToolResult, any, error) {
		task, err := s.engine.GetTask(ctx, args.WorkspacePath, args.ID)
		return reply(task, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_task",
		Description: "Soft-delete a task and its entity links; with cascade, also its descendants.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args deleteTaskArgs) (*mcp.CallToolResult, any, error) {
		result, err := s.engine.DeleteTask(ctx, args.WorkspacePath, args.ID, args.Cascade)
		return reply(result, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_tasks",
		Description: "List live tasks filtered by status, priority, parent, or tags; paginated, ordered by priority then age.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args listTasksArgs) (*mcp.CallToolResult, any, error) {
		page, err := s.engine.ListTasks(ctx, engine.ListTasksInput{
			WorkspacePath: args.WorkspacePath,
			Status:        args.Status,
			Priority:      args.Priority,
			ParentTaskID:  args.ParentTaskID,
			Tags:          args.Tags,
			Mode:          args.Mode,
			Limit:         args.Limit,
			Offset:        args.Offset,
		})
		return reply(page, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_tasks",
		Description: "Search tasks by a case-insensitive substring of title or description, with the same filters as list_tasks.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args searchTasksArgs) (*mcp.CallToolResult, any, error) {
		page, err := s.engine.SearchTasks(ctx, engine.SearchTasksInput{
			ListTasksInput: engine.ListTasksInput{
				WorkspacePath: args.WorkspacePath,
				Status:        args.Status,
				Priority:      args.Priority,
				ParentTaskID:  args.ParentTaskID,
				Tags:          args.Tags,
				Mode:          args.Mode,
				Limit:         args.Limit,
				Offset:        args.Offset,
			},
			Term: args.Term,
		})
		return reply(page, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_task_tree",
		Description: "Return a task and all live descendants as a nested tree.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args taskTreeArgs) (*mcp.CallToolResult, any, error) {
		tree, err := s.engine.GetTaskTree(ctx, args.WorkspacePath, args.RootID, args.Mode)
		return reply(tree, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_blocked_tasks",
		Description: "List all blocked tasks, newest first.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args workspaceModeArgs) (*mcp.CallToolResult, any, error) {
		items, err := s.engine.GetBlockedTasks(ctx, args.WorkspacePath, args.Mode)
		return reply(items, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_next_tasks",
		Description: "List todo tasks whose dependencies are all done: the next actionable work, ordered by priority then age.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args workspaceModeArgs) (*mcp.CallToolResult, any, error) {
		items, err := s.engine.GetNextTasks(ctx, args.WorkspacePath, args.Mode)
		return reply(items, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cleanup_deleted_tasks",
		Description: "Permanently purge tasks soft-deleted longer than retention_days ago.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args cleanupArgs) (*mcp.CallToolResult, any, error) {
		purged, err := s.engine.CleanupDeletedTasks(ctx, args.WorkspacePath, args.RetentionDays)
		return reply(map[string]int{"purged": purged}, err)
	})
}
