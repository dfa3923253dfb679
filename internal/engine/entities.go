package engine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/taskmcp/taskmcp/internal/queries"
	"github.com/taskmcp/taskmcp/internal/types"
)

// canonicalMetadata serializes caller-supplied metadata for storage. Strings
// pass through byte-for-byte; objects and arrays serialize to their canonical
// JSON form (object keys sorted).
func canonicalMetadata(v any) (string, error) {
	switch m := v.(type) {
	case nil:
		return "", nil
	case string:
		return m, nil
	default:
		data, err := json.Marshal(m)
		if err != nil {
			return "", types.Errorf(types.KindInvalidInput, "metadata is not serializable: %v", err)
		}
		return string(data), nil
	}
}

// CreateEntityInput carries the arguments of create_entity. Metadata may be
// a string, object, or array.
type CreateEntityInput struct {
	WorkspacePath string
	EntityType    string
	Name          string
	Identifier    *string
	Description   string
	Metadata      any
	Tags          []string
	CreatedBy     string
}

// CreateEntity validates and inserts an entity. A live entity with the same
// (entity_type, identifier) reports CONFLICT.
func (e *Engine) CreateEntity(ctx context.Context, in CreateEntityInput) (entity *types.Entity, err error) {
	resolved, store, err := e.workspaceFor(ctx, in.WorkspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "create_entity", resolved.ID, err) }()

	metadata, err := canonicalMetadata(in.Metadata)
	if err != nil {
		return nil, err
	}
	now := e.now()
	entity = &types.Entity{
		EntityType:  types.EntityType(in.EntityType),
		Name:        in.Name,
		Identifier:  in.Identifier,
		Description: in.Description,
		Metadata:    metadata,
		Tags:        types.NormalizeTags(in.Tags),
		CreatedBy:   in.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err = entity.Validate(); err != nil {
		return nil, err
	}
	// Pre-check names the existing entity; the unique index backstops the
	// race between check and insert.
	if in.Identifier != nil {
		existing, ferr := store.FindEntityByIdentifier(ctx, entity.EntityType, *in.Identifier)
		if ferr != nil {
			err = ferr
			return nil, err
		}
		if existing != nil {
			err = types.Errorf(types.KindConflict,
				"a live %s entity with identifier %q already exists (id %d)",
				entity.EntityType, *in.Identifier, existing.ID).
				WithSuggestion("Use update_entity on the existing entity, or delete it first.")
			return nil, err
		}
	}
	if err = store.CreateEntity(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// UpdateEntityInput is a partial update: nil pointers leave fields
// untouched. ClearIdentifier removes the identifier.
type UpdateEntityInput struct {
	WorkspacePath   string
	ID              int64
	EntityType      *string
	Name            *string
	Identifier      *string
	ClearIdentifier bool
	Description     *string
	Metadata        any
	MetadataSet     bool
	Tags            *[]string
}

// UpdateEntity applies a partial update. Identifier changes re-check
// uniqueness; metadata is re-serialized to canonical form.
func (e *Engine) UpdateEntity(ctx context.Context, in UpdateEntityInput) (entity *types.Entity, err error) {
	resolved, store, err := e.workspaceFor(ctx, in.WorkspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "update_entity", resolved.ID, err) }()

	entity, err = store.GetEntity(ctx, in.ID, false)
	if err != nil {
		return nil, err
	}

	if in.EntityType != nil {
		entity.EntityType = types.EntityType(*in.EntityType)
	}
	if in.Name != nil {
		entity.Name = *in.Name
	}
	switch {
	case in.ClearIdentifier:
		entity.Identifier = nil
	case in.Identifier != nil:
		entity.Identifier = in.Identifier
	}
	if in.Description != nil {
		entity.Description = *in.Description
	}
	if in.MetadataSet {
		if entity.Metadata, err = canonicalMetadata(in.Metadata); err != nil {
			return nil, err
		}
	}
	if in.Tags != nil {
		entity.Tags = types.NormalizeTags(*in.Tags)
	}

	entity.UpdatedAt = e.now()
	if err = entity.Validate(); err != nil {
		return nil, err
	}
	if err = store.UpdateEntity(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// GetEntity returns a live entity by id.
func (e *Engine) GetEntity(ctx context.Context, workspacePath string, id int64) (entity *types.Entity, err error) {
	resolved, store, err := e.workspaceFor(ctx, workspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "get_entity", resolved.ID, err) }()
	return store.GetEntity(ctx, id, false)
}

// ListEntitiesInput carries the arguments of list_entities.
type ListEntitiesInput struct {
	WorkspacePath string
	EntityType    string
	Tags          string
	Mode          string
	Limit         *int
	Offset        *int
}

func entityTypeFilter(entityType string) (*types.EntityType, error) {
	if entityType == "" {
		return nil, nil
	}
	et := types.EntityType(entityType)
	if !et.IsValid() {
		return nil, types.Errorf(types.KindInvalidInput, "invalid entity_type: %s", entityType)
	}
	return &et, nil
}

// ListEntities returns live entities matching the filters, newest first.
func (e *Engine) ListEntities(ctx context.Context, in ListEntitiesInput) (page *queries.Page, err error) {
	resolved, store, err := e.workspaceFor(ctx, in.WorkspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "list_entities", resolved.ID, err) }()

	mode, err := queries.ParseMode(in.Mode)
	if err != nil {
		return nil, err
	}
	p, err := queries.ParsePagination(in.Limit, in.Offset)
	if err != nil {
		return nil, err
	}
	et, err := entityTypeFilter(in.EntityType)
	if err != nil {
		return nil, err
	}

	entities, total, err := store.ListEntities(ctx,
		types.EntityFilter{EntityType: et, Tags: strings.TrimSpace(in.Tags)}, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	page = queries.NewPage(queries.ProjectEntities(entities, mode), total, p)
	if _, err = queries.EnforceBudget("list_entities", page); err != nil {
		return nil, err
	}
	return page, nil
}

// SearchEntitiesInput carries the arguments of search_entities.
type SearchEntitiesInput struct {
	WorkspacePath string
	Term          string
	EntityType    string
	Mode          string
	Limit         *int
	Offset        *int
}

// SearchEntities matches a case-insensitive substring of name or identifier.
func (e *Engine) SearchEntities(ctx context.Context, in SearchEntitiesInput) (page *queries.Page, err error) {
	resolved, store, err := e.workspaceFor(ctx, in.WorkspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "search_entities", resolved.ID, err) }()

	mode, err := queries.ParseMode(in.Mode)
	if err != nil {
		return nil, err
	}
	p, err := queries.ParsePagination(in.Limit, in.Offset)
	if err != nil {
		return nil, err
	}
	et, err := entityTypeFilter(in.EntityType)
	if err != nil {
		return nil, err
	}

	entities, total, err := store.SearchEntities(ctx, in.Term, et, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	page = queries.NewPage(queries.ProjectEntities(entities, mode), total, p)
	if _, err = queries.EnforceBudget("search_entities", page); err != nil {
		return nil, err
	}
	return page, nil
}

// DeleteEntityResult reports the cascade of an entity delete.
type DeleteEntityResult struct {
	DeletedLinks int `json:"deleted_links"`
}

// DeleteEntity soft-deletes an entity and always cascades to its live links.
func (e *Engine) DeleteEntity(ctx context.Context, workspacePath string, id int64) (result *DeleteEntityResult, err error) {
	resolved, store, err := e.workspaceFor(ctx, workspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "delete_entity", resolved.ID, err) }()

	links, err := store.SoftDeleteEntity(ctx, id, e.now())
	if err != nil {
		return nil, err
	}
	return &DeleteEntityResult{DeletedLinks: links}, nil
}

// LinkEntityToTask links an entity to a task. Both must exist and be live;
// a duplicate live link reports CONFLICT.
func (e *Engine) LinkEntityToTask(ctx context.Context, workspacePath string, taskID, entityID int64, createdBy string) (link *types.TaskEntityLink, err error) {
	resolved, store, err := e.workspaceFor(ctx, workspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "link_entity_to_task", resolved.ID, err) }()

	if _, err = store.GetTask(ctx, taskID, false); err != nil {
		return nil, err
	}
	if _, err = store.GetEntity(ctx, entityID, false); err != nil {
		return nil, err
	}
	existing, err := store.GetLiveLink(ctx, taskID, entityID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		err = types.Errorf(types.KindConflict,
			"task %d is already linked to entity %d (link %d)", taskID, entityID, existing.ID)
		return nil, err
	}

	link = &types.TaskEntityLink{
		TaskID:    taskID,
		EntityID:  entityID,
		CreatedBy: createdBy,
		CreatedAt: e.now(),
	}
	if err = store.CreateLink(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

// GetTaskEntities returns the entities linked to a task with link
// provenance, most recently linked first.
func (e *Engine) GetTaskEntities(ctx context.Context, workspacePath string, taskID int64, modeStr string, limit, offset *int) (page *queries.Page, err error) {
	resolved, store, err := e.workspaceFor(ctx, workspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "get_task_entities", resolved.ID, err) }()

	mode, err := queries.ParseMode(modeStr)
	if err != nil {
		return nil, err
	}
	p, err := queries.ParsePagination(limit, offset)
	if err != nil {
		return nil, err
	}
	if _, err = store.GetTask(ctx, taskID, false); err != nil {
		return nil, err
	}

	linked, total, err := store.GetTaskEntities(ctx, taskID, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	page = queries.NewPage(queries.ProjectLinkedEntities(linked, mode), total, p)
	if _, err = queries.EnforceBudget("get_task_entities", page); err != nil {
		return nil, err
	}
	return page, nil
}

// GetEntityTasksInput carries the arguments of get_entity_tasks.
type GetEntityTasksInput struct {
	WorkspacePath string
	EntityID      int64
	Status        string
	Priority      string
	Mode          string
	Limit         *int
	Offset        *int
}

// GetEntityTasks is the reverse relationship query: tasks linked to an
// entity, optionally filtered by status and priority.
func (e *Engine) GetEntityTasks(ctx context.Context, in GetEntityTasksInput) (page *queries.Page, err error) {
	resolved, store, err := e.workspaceFor(ctx, in.WorkspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "get_entity_tasks", resolved.ID, err) }()

	mode, err := queries.ParseMode(in.Mode)
	if err != nil {
		return nil, err
	}
	p, err := queries.ParsePagination(in.Limit, in.Offset)
	if err != nil {
		return nil, err
	}
	filter, err := taskFilterFrom(in.Status, in.Priority, nil, "")
	if err != nil {
		return nil, err
	}
	if _, err = store.GetEntity(ctx, in.EntityID, false); err != nil {
		return nil, err
	}

	linked, total, err := store.GetEntityTasks(ctx, in.EntityID, filter, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	page = queries.NewPage(queries.ProjectLinkedTasks(linked, mode), total, p)
	if _, err = queries.EnforceBudget("get_entity_tasks", page); err != nil {
		return nil, err
	}
	return page, nil
}
