package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taskmcp/taskmcp/internal/types"
)

// CreateLink inserts a task-entity link and populates its id. A live
// duplicate of (task_id, entity_id) reports CONFLICT via the partial unique
// index.
func (s *Store) CreateLink(ctx context.Context, link *types.TaskEntityLink) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO task_entity_links (task_id, entity_id, created_by, created_at)
		VALUES (?, ?, ?, ?)
	`, link.TaskID, link.EntityID, link.CreatedBy, formatTime(link.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return types.Errorf(types.KindConflict,
				"task %d is already linked to entity %d", link.TaskID, link.EntityID)
		}
		return mapSQLError(err, "insert link")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read new link id: %w", err)
	}
	link.ID = id
	return nil
}

// GetLiveLink returns the live link between a task and an entity, or nil.
func (s *Store) GetLiveLink(ctx context.Context, taskID, entityID int64) (*types.TaskEntityLink, error) {
	var (
		link      types.TaskEntityLink
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, entity_id, created_by, created_at
		FROM task_entity_links
		WHERE task_id = ? AND entity_id = ? AND deleted_at IS NULL
	`, taskID, entityID).Scan(&link.ID, &link.TaskID, &link.EntityID, &link.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapSQLError(err, "load link")
	}
	if link.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &link, nil
}

// GetTaskEntities returns the live entities linked to a task, most recently
// linked first, with link provenance attached.
func (s *Store) GetTaskEntities(ctx context.Context, taskID int64, limit, offset int) ([]*types.LinkedEntity, int, error) {
	const join = `
		FROM task_entity_links l
		JOIN entities e ON e.id = l.entity_id
		WHERE l.task_id = ? AND l.deleted_at IS NULL AND e.deleted_at IS NULL`

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+join, taskID).Scan(&total); err != nil {
		return nil, 0, mapSQLError(err, "count task entities")
	}

	query := `SELECT e.id, e.entity_type, e.name, e.identifier, e.description,
			e.metadata, e.tags, e.created_by, e.created_at, e.updated_at, e.deleted_at,
			l.created_at, l.created_by` + join +
		" ORDER BY l.created_at DESC, l.id DESC"
	args := []any{taskID}
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapSQLError(err, "list task entities")
	}
	defer func() { _ = rows.Close() }()

	var out []*types.LinkedEntity
	for rows.Next() {
		var (
			le            types.LinkedEntity
			identifier    sql.NullString
			tags          string
			createdAt     string
			updatedAt     string
			deletedAt     sql.NullString
			linkCreatedAt string
		)
		err := rows.Scan(&le.ID, &le.EntityType, &le.Name, &identifier, &le.Description,
			&le.Metadata, &tags, &le.CreatedBy, &createdAt, &updatedAt, &deletedAt,
			&linkCreatedAt, &le.LinkCreatedBy)
		if err != nil {
			return nil, 0, mapSQLError(err, "scan task entity")
		}
		if identifier.Valid {
			le.Identifier = &identifier.String
		}
		if le.Tags, err = unmarshalStrings(tags); err != nil {
			return nil, 0, err
		}
		if le.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, 0, err
		}
		if le.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, 0, err
		}
		if le.DeletedAt, err = parseTimePtr(deletedAt); err != nil {
			return nil, 0, err
		}
		if le.LinkCreatedAt, err = parseTime(linkCreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &le)
	}
	return out, total, rows.Err()
}

// GetEntityTasks is the reverse relationship query: live tasks linked to an
// entity, most recently linked first, optionally filtered by task status and
// priority.
func (s *Store) GetEntityTasks(ctx context.Context, entityID int64, filter types.TaskFilter, limit, offset int) ([]*types.LinkedTask, int, error) {
	join := `
		FROM task_entity_links l
		JOIN tasks t ON t.id = l.task_id
		WHERE l.entity_id = ? AND l.deleted_at IS NULL AND t.deleted_at IS NULL`
	args := []any{entityID}
	if filter.Status != nil {
		join += " AND t.status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.Priority != nil {
		join += " AND t.priority = ?"
		args = append(args, string(*filter.Priority))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+join, args...).Scan(&total); err != nil {
		return nil, 0, mapSQLError(err, "count entity tasks")
	}

	query := `SELECT t.id, t.title, t.description, t.status, t.priority, t.parent_task_id,
			t.depends_on, t.tags, t.blocker_reason, t.file_references, t.created_by,
			t.created_at, t.updated_at, t.completed_at, t.deleted_at, t.workspace_metadata,
			l.created_at, l.created_by` + join +
		" ORDER BY l.created_at DESC, l.id DESC"
	queryArgs := args
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		queryArgs = append(append([]any{}, args...), limit, offset)
	}
	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, mapSQLError(err, "list entity tasks")
	}
	defer func() { _ = rows.Close() }()

	var out []*types.LinkedTask
	for rows.Next() {
		var (
			lt            types.LinkedTask
			parentID      sql.NullInt64
			dependsOn     string
			tags          string
			fileRefs      string
			createdAt     string
			updatedAt     string
			completedAt   sql.NullString
			deletedAt     sql.NullString
			wsMetadata    sql.NullString
			linkCreatedAt string
		)
		err := rows.Scan(&lt.ID, &lt.Title, &lt.Description, &lt.Status, &lt.Priority, &parentID,
			&dependsOn, &tags, &lt.BlockerReason, &fileRefs, &lt.CreatedBy,
			&createdAt, &updatedAt, &completedAt, &deletedAt, &wsMetadata,
			&linkCreatedAt, &lt.LinkCreatedBy)
		if err != nil {
			return nil, 0, mapSQLError(err, "scan entity task")
		}
		if parentID.Valid {
			lt.ParentTaskID = &parentID.Int64
		}
		if lt.DependsOn, err = unmarshalInt64s(dependsOn); err != nil {
			return nil, 0, err
		}
		if lt.Tags, err = unmarshalStrings(tags); err != nil {
			return nil, 0, err
		}
		if lt.FileReferences, err = unmarshalStrings(fileRefs); err != nil {
			return nil, 0, err
		}
		if lt.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, 0, err
		}
		if lt.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, 0, err
		}
		if lt.CompletedAt, err = parseTimePtr(completedAt); err != nil {
			return nil, 0, err
		}
		if lt.DeletedAt, err = parseTimePtr(deletedAt); err != nil {
			return nil, 0, err
		}
		if lt.WorkspaceMetadata, err = unmarshalWorkspaceMetadata(wsMetadata); err != nil {
			return nil, 0, err
		}
		if lt.LinkCreatedAt, err = parseTime(linkCreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &lt)
	}
	return out, total, rows.Err()
}
