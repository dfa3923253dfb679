package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/taskmcp/taskmcp/internal/engine"
)

type validateTaskArgs struct {
	WorkspacePath string `json:"workspace_path"`
	TaskID        int64  `json:"task_id"`
}

type auditArgs struct {
	WorkspacePath  string `json:"workspace_path"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
	CheckGitRepo   bool   `json:"check_git_repo,omitempty"`
}

type usageStatsArgs struct {
	WorkspacePath string `json:"workspace_path"`
	Days          int    `json:"days,omitempty" jsonschema:"trailing window size, default 7"`
	ToolName      string `json:"tool_name,omitempty"`
}

type setNameArgs struct {
	WorkspacePath string `json:"workspace_path"`
	Name          string `json:"name"`
}

func (s *Server) registerAuditTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "validate_task_workspace",
		Description: "Check whether a task's stored workspace provenance matches the current workspace.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args validateTaskArgs) (*mcp.CallToolResult, any, error) {
		report, err := s.engine.ValidateTaskWorkspace(ctx, args.WorkspacePath, args.TaskID)
		return reply(report, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "audit_workspace_integrity",
		Description: "Run cross-workspace contamination heuristics over every task and entity in the workspace.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args auditArgs) (*mcp.CallToolResult, any, error) {
		report, err := s.engine.AuditWorkspaceIntegrity(ctx, engine.AuditWorkspaceInput{
			WorkspacePath:  args.WorkspacePath,
			IncludeDeleted: args.IncludeDeleted,
			CheckGitRepo:   args.CheckGitRepo,
		})
		return reply(report, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_usage_stats",
		Description: "Aggregate per-tool usage over a trailing window of days.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args usageStatsArgs) (*mcp.CallToolResult, any, error) {
		stats, err := s.engine.GetUsageStats(ctx, args.WorkspacePath, args.Days, args.ToolName)
		return reply(stats, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "set_workspace_name",
		Description: "Set a friendly display name for a workspace in the master registry.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args setNameArgs) (*mcp.CallToolResult, any, error) {
		ws, err := s.engine.SetFriendlyName(ctx, args.WorkspacePath, args.Name)
		return reply(ws, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_workspaces",
		Description: "List every known workspace, most recently accessed first.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, any, error) {
		workspaces, err := s.engine.ListWorkspaces(ctx)
		return reply(workspaces, err)
	})
}
