package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/taskmcp/taskmcp/internal/engine"
)

type createEntityArgs struct {
	WorkspacePath string   `json:"workspace_path"`
	EntityType    string   `json:"entity_type" jsonschema:"file or other"`
	Name          string   `json:"name"`
	Identifier    *string  `json:"identifier,omitempty" jsonschema:"unique per entity_type among live entities, e.g. a file path"`
	Description   string   `json:"description,omitempty"`
	Metadata      any      `json:"metadata,omitempty" jsonschema:"opaque string, object, or array; stored as canonical JSON"`
	Tags          []string `json:"tags,omitempty"`
	CreatedBy     string   `json:"created_by,omitempty"`
}

type updateEntityArgs struct {
	WorkspacePath   string    `json:"workspace_path"`
	ID              int64     `json:"id"`
	EntityType      *string   `json:"entity_type,omitempty"`
	Name            *string   `json:"name,omitempty"`
	Identifier      *string   `json:"identifier,omitempty"`
	ClearIdentifier bool      `json:"clear_identifier,omitempty"`
	Description     *string   `json:"description,omitempty"`
	Metadata        any       `json:"metadata,omitempty"`
	MetadataSet     bool      `json:"metadata_set,omitempty" jsonschema:"set true to replace metadata (distinguishes null from absent)"`
	Tags            *[]string `json:"tags,omitempty"`
}

type entityIDArgs struct {
	WorkspacePath string `json:"workspace_path"`
	ID            int64  `json:"id"`
}

type listEntitiesArgs struct {
	WorkspacePath string `json:"workspace_path"`
	EntityType    string `json:"entity_type,omitempty"`
	Tags          string `json:"tags,omitempty"`
	Mode          string `json:"mode,omitempty"`
	Limit         *int   `json:"limit,omitempty"`
	Offset        *int   `json:"offset,omitempty"`
}

type searchEntitiesArgs struct {
	WorkspacePath string `json:"workspace_path"`
	Term          string `json:"term"`
	EntityType    string `json:"entity_type,omitempty"`
	Mode          string `json:"mode,omitempty"`
	Limit         *int   `json:"limit,omitempty"`
	Offset        *int   `json:"offset,omitempty"`
}

type linkArgs struct {
	WorkspacePath string `json:"workspace_path"`
	TaskID        int64  `json:"task_id"`
	EntityID      int64  `json:"entity_id"`
	CreatedBy     string `json:"created_by,omitempty"`
}

type taskEntitiesArgs struct {
	WorkspacePath string `json:"workspace_path"`
	TaskID        int64  `json:"task_id"`
	Mode          string `json:"mode,omitempty"`
	Limit         *int   `json:"limit,omitempty"`
	Offset        *int   `json:"offset,omitempty"`
}

type entityTasksArgs struct {
	WorkspacePath string `json:"workspace_path"`
	EntityID      int64  `json:"entity_id"`
	Status        string `json:"status,omitempty"`
	Priority      string `json:"priority,omitempty"`
	Mode          string `json:"mode,omitempty"`
	Limit         *int   `json:"limit,omitempty"`
	Offset        *int   `json:"offset,omitempty"`
}

func (s *Server) registerEntityTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "create_entity",
		Description: "Create an entity (a file or other domain object) that tasks can link to.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args createEntityArgs) (*mcp.CallToolResult, any, error) {
		entity, err := s.engine.CreateEntity(ctx, engine.CreateEntityInput{
			WorkspacePath: args.WorkspacePath,
			EntityType:    args.EntityType,
			Name:          args.Name,
			Identifier:    args.Identifier,
			Description:   args.Description,
			Metadata:      args.Metadata,
			Tags:          args.Tags,
			CreatedBy:     args.CreatedBy,
		})
		return reply(entity, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "update_entity",
		Description: "Partially update an entity. Identifier changes re-check uniqueness.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args updateEntityArgs) (*mcp.CallToolResult, any, error) {
		entity, err := s.engine.UpdateEntity(ctx, engine.UpdateEntityInput{
			WorkspacePath:   args.WorkspacePath,
			ID:              args.ID,
			EntityType:      args.EntityType,
			Name:            args.Name,
			Identifier:      args.Identifier,
			ClearIdentifier: args.ClearIdentifier,
			Description:     args.Description,
			Metadata:        args.Metadata,
			MetadataSet:     args.MetadataSet || args.Metadata != nil,
			Tags:            args.Tags,
		})
		return reply(entity, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_entity",
		Description: "Fetch a single entity by id.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args entityIDArgs) (*mcp.CallToolResult, any, error) {
		entity, err := s.engine.GetEntity(ctx, args.WorkspacePath, args.ID)
		return reply(entity, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_entities",
		Description: "List live entities filtered by type or tags, newest first.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args listEntitiesArgs) (*mcp.CallToolResult, any, error) {
		page, err := s.engine.ListEntities(ctx, engine.ListEntitiesInput{
			WorkspacePath: args.WorkspacePath,
			EntityType:    args.EntityType,
			Tags:          args.Tags,
			Mode:          args.Mode,
			Limit:         args.Limit,
			Offset:        args.Offset,
		})
		return reply(page, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_entities",
		Description: "Search entities by a case-insensitive substring of name or identifier.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args searchEntitiesArgs) (*mcp.CallToolResult, any, error) {
		page, err := s.engine.SearchEntities(ctx, engine.SearchEntitiesInput{
			WorkspacePath: args.WorkspacePath,
			Term:          args.Term,
			EntityType:    args.EntityType,
			Mode:          args.Mode,
			Limit:         args.Limit,
			Offset:        args.Offset,
		})
		return reply(page, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_entity",
		Description: "Soft-delete an entity and all of its live task links.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args entityIDArgs) (*mcp.CallToolResult, any, error) {
		result, err := s.engine.DeleteEntity(ctx, args.WorkspacePath, args.ID)
		return reply(result, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "link_entity_to_task",
		Description: "Link an entity to a task. Both must exist and be live.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args linkArgs) (*mcp.CallToolResult, any, error) {
		link, err := s.engine.LinkEntityToTask(ctx, args.WorkspacePath, args.TaskID, args.EntityID, args.CreatedBy)
		return reply(link, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_task_entities",
		Description: "List the entities linked to a task, most recently linked first, with link provenance.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args taskEntitiesArgs) (*mcp.CallToolResult, any, error) {
		page, err := s.engine.GetTaskEntities(ctx, args.WorkspacePath, args.TaskID, args.Mode, args.Limit, args.Offset)
		return reply(page, err)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_entity_tasks",
		Description: "List the tasks linked to an entity, optionally filtered by status or priority.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args entityTasksArgs) (*mcp.CallToolResult, any, error) {
		page, err := s.engine.GetEntityTasks(ctx, engine.GetEntityTasksInput{
			WorkspacePath: args.WorkspacePath,
			EntityID:      args.EntityID,
			Status:        args.Status,
			Priority:      args.Priority,
			Mode:          args.Mode,
			Limit:         args.Limit,
			Offset:        args.Offset,
		})
		return reply(page, err)
	})
}
