package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskmcp/taskmcp/internal/types"
)

const taskColumns = `id, title, description, status, priority, parent_task_id,
	depends_on, tags, blocker_reason, file_references, created_by,
	created_at, updated_at, completed_at, deleted_at, workspace_metadata`

// taskOrder lists high before medium before low, then oldest first.
// Ties break on id so pagination is stable.
const taskOrder = `ORDER BY CASE priority
		WHEN 'high' THEN 0
		WHEN 'medium' THEN 1
		ELSE 2
	END, created_at ASC, id ASC`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*types.Task, error) {
	var (
		t           types.Task
		parentID    sql.NullInt64
		dependsOn   string
		tags        string
		fileRefs    string
		createdAt   string
		updatedAt   string
		completedAt sql.NullString
		deletedAt   sql.NullString
		wsMetadata  sql.NullString
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &parentID,
		&dependsOn, &tags, &t.BlockerReason, &fileRefs, &t.CreatedBy,
		&createdAt, &updatedAt, &completedAt, &deletedAt, &wsMetadata)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		t.ParentTaskID = &parentID.Int64
	}
	if t.DependsOn, err = unmarshalInt64s(dependsOn); err != nil {
		return nil, err
	}
	if t.Tags, err = unmarshalStrings(tags); err != nil {
		return nil, err
	}
	if t.FileReferences, err = unmarshalStrings(fileRefs); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, err
	}
	if t.DeletedAt, err = parseTimePtr(deletedAt); err != nil {
		return nil, err
	}
	if t.WorkspaceMetadata, err = unmarshalWorkspaceMetadata(wsMetadata); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTask inserts the task and populates its id.
func (s *Store) CreateTask(ctx context.Context, task *types.Task) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			title, description, status, priority, parent_task_id,
			depends_on, tags, blocker_reason, file_references, created_by,
			created_at, updated_at, completed_at, workspace_metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.Title, task.Description, string(task.Status), string(task.Priority),
		nullableInt64(task.ParentTaskID),
		marshalInt64s(task.DependsOn), marshalStrings(task.Tags),
		task.BlockerReason, marshalStrings(task.FileReferences), task.CreatedBy,
		formatTime(task.CreatedAt), formatTime(task.UpdatedAt),
		formatTimePtr(task.CompletedAt), marshalWorkspaceMetadata(task.WorkspaceMetadata),
	)
	if err != nil {
		return mapSQLError(err, "insert task")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read new task id: %w", err)
	}
	task.ID = id
	return nil
}

// GetTask loads a task by id. Unless includeDeleted is set, soft-deleted rows
// report NOT_FOUND exactly like missing ones.
func (s *Store) GetTask(ctx context.Context, id int64, includeDeleted bool) (*types.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE id = ?"
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.Errorf(types.KindNotFound, "task %d not found", id)
	}
	if err != nil {
		return nil, mapSQLError(err, "load task")
	}
	return task, nil
}

// UpdateTask writes the task's mutable fields back. created_at, created_by,
// and workspace_metadata are immutable and never touched here.
func (s *Store) UpdateTask(ctx context.Context, task *types.Task) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			title = ?, description = ?, status = ?, priority = ?,
			parent_task_id = ?, depends_on = ?, tags = ?, blocker_reason = ?,
			file_references = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`,
		task.Title, task.Description, string(task.Status), string(task.Priority),
		nullableInt64(task.ParentTaskID), marshalInt64s(task.DependsOn),
		marshalStrings(task.Tags), task.BlockerReason,
		marshalStrings(task.FileReferences),
		formatTime(task.UpdatedAt), formatTimePtr(task.CompletedAt),
		task.ID,
	)
	if err != nil {
		return mapSQLError(err, "update task")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return types.Errorf(types.KindNotFound, "task %d not found", task.ID)
	}
	return nil
}

// buildTaskWhere renders filter (and optional search term) into a WHERE
// clause over live rows.
func buildTaskWhere(filter types.TaskFilter, term string) (string, []any) {
	clauses := []string{"deleted_at IS NULL"}
	var args []any

	if filter.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Priority != nil {
		clauses = append(clauses, "priority = ?")
		args = append(args, string(*filter.Priority))
	}
	if filter.ParentTaskID != nil {
		clauses = append(clauses, "parent_task_id = ?")
		args = append(args, *filter.ParentTaskID)
	}
	if filter.Tags != "" {
		// Tags are stored normalized (lowercase), so the substring match is
		// case-insensitive by lowering the needle.
		clauses = append(clauses, "tags LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.Tags)+"%")
	}
	if term != "" {
		clauses = append(clauses, "(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)")
		needle := "%" + strings.ToLower(term) + "%"
		args = append(args, needle, needle)
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (s *Store) queryTasks(ctx context.Context, where string, args []any, order string, limit, offset int) ([]*types.Task, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks "+where, args...).Scan(&total); err != nil {
		return nil, 0, mapSQLError(err, "count tasks")
	}

	query := "SELECT " + taskColumns + " FROM tasks " + where + " " + order
	queryArgs := args
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		queryArgs = append(append([]any{}, args...), limit, offset)
	}
	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, mapSQLError(err, "list tasks")
	}
	defer func() { _ = rows.Close() }()

	var tasks []*types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, mapSQLError(err, "scan task")
		}
		tasks = append(tasks, task)
	}
	return tasks, total, rows.Err()
}

// ListTasks returns live tasks matching the filter plus the pre-pagination
// total, ordered by priority then age.
func (s *Store) ListTasks(ctx context.Context, filter types.TaskFilter, limit, offset int) ([]*types.Task, int, error) {
	where, args := buildTaskWhere(filter, "")
	return s.queryTasks(ctx, where, args, taskOrder, limit, offset)
}

// SearchTasks is ListTasks plus a case-insensitive substring match on title
// or description.
func (s *Store) SearchTasks(ctx context.Context, term string, filter types.TaskFilter, limit, offset int) ([]*types.Task, int, error) {
	where, args := buildTaskWhere(filter, term)
	return s.queryTasks(ctx, where, args, taskOrder, limit, offset)
}

// ListChildren returns the live direct children of a task.
func (s *Store) ListChildren(ctx context.Context, parentID int64) ([]*types.Task, error) {
	tasks, _, err := s.queryTasks(ctx,
		"WHERE parent_task_id = ? AND deleted_at IS NULL", []any{parentID}, taskOrder, 0, 0)
	return tasks, err
}

// GetBlockedTasks returns all live blocked tasks, newest first.
func (s *Store) GetBlockedTasks(ctx context.Context) ([]*types.Task, error) {
	tasks, _, err := s.queryTasks(ctx,
		"WHERE status = ? AND deleted_at IS NULL", []any{string(types.StatusBlocked)},
		"ORDER BY created_at DESC, id DESC", 0, 0)
	return tasks, err
}

// ListByStatus returns all live tasks with the given status in the standard
// priority-then-age order.
func (s *Store) ListByStatus(ctx context.Context, status types.Status) ([]*types.Task, error) {
	tasks, _, err := s.queryTasks(ctx,
		"WHERE status = ? AND deleted_at IS NULL", []any{string(status)}, taskOrder, 0, 0)
	return tasks, err
}

// StatusesByID returns the status of every live task, keyed by id. Used for
// dependency-gate checks without loading full rows.
func (s *Store) StatusesByID(ctx context.Context) (map[int64]types.Status, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, status FROM tasks WHERE deleted_at IS NULL")
	if err != nil {
		return nil, mapSQLError(err, "load task statuses")
	}
	defer func() { _ = rows.Close() }()

	statuses := make(map[int64]types.Status)
	for rows.Next() {
		var id int64
		var status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, mapSQLError(err, "scan task status")
		}
		statuses[id] = types.Status(status)
	}
	return statuses, rows.Err()
}

// ListAllTasks returns every task, optionally including soft-deleted rows.
// Only the workspace audit uses the includeDeleted form.
func (s *Store) ListAllTasks(ctx context.Context, includeDeleted bool) ([]*types.Task, error) {
	where := "WHERE deleted_at IS NULL"
	if includeDeleted {
		where = "WHERE 1=1"
	}
	tasks, _, err := s.queryTasks(ctx, where, nil, taskOrder, 0, 0)
	return tasks, err
}

// SoftDeleteTaskTree marks the root (and with cascade, all its transitive
// descendants) deleted and cascades to the marked tasks' live links, all in
// one transaction. Returns the ids of the tasks marked.
func (s *Store) SoftDeleteTaskTree(ctx context.Context, rootID int64, cascade bool, now time.Time) ([]int64, error) {
	var marked []int64
	err := s.inTransaction(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM tasks WHERE id = ? AND deleted_at IS NULL", rootID).Scan(&exists)
		if err != nil {
			return mapSQLError(err, "check task")
		}
		if exists == 0 {
			return types.Errorf(types.KindNotFound, "task %d not found", rootID)
		}

		marked = []int64{rootID}
		if cascade {
			// Iterative frontier expansion with a visited set: a parent cycle
			// written by buggy external tooling must not hang the delete.
			visited := map[int64]bool{rootID: true}
			frontier := []int64{rootID}
			for len(frontier) > 0 {
				placeholders := strings.TrimSuffix(strings.Repeat("?,", len(frontier)), ",")
				args := make([]any, len(frontier))
				for i, id := range frontier {
					args[i] = id
				}
				rows, err := tx.QueryContext(ctx,
					"SELECT id FROM tasks WHERE parent_task_id IN ("+placeholders+") AND deleted_at IS NULL", args...)
				if err != nil {
					return mapSQLError(err, "expand descendants")
				}
				var next []int64
				for rows.Next() {
					var id int64
					if err := rows.Scan(&id); err != nil {
						_ = rows.Close()
						return mapSQLError(err, "scan descendant")
					}
					if !visited[id] {
						visited[id] = true
						next = append(next, id)
					}
				}
				if err := rows.Err(); err != nil {
					_ = rows.Close()
					return mapSQLError(err, "expand descendants")
				}
				_ = rows.Close()
				marked = append(marked, next...)
				frontier = next
			}
		}

		ts := formatTime(now)
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(marked)), ",")
		args := []any{ts, ts}
		for _, id := range marked {
			args = append(args, id)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE tasks SET deleted_at = ?, updated_at = ? WHERE id IN ("+placeholders+")", args...); err != nil {
			return mapSQLError(err, "soft-delete tasks")
		}

		linkArgs := []any{ts}
		for _, id := range marked {
			linkArgs = append(linkArgs, id)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE task_entity_links SET deleted_at = ? WHERE task_id IN ("+placeholders+") AND deleted_at IS NULL",
			linkArgs...); err != nil {
			return mapSQLError(err, "cascade link soft-delete")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return marked, nil
}

// CleanupDeletedTasks permanently removes tasks soft-deleted at or before the
// cutoff, along with any links referencing them. Timestamp comparison happens
// in Go so the stored string format never decides retention.
func (s *Store) CleanupDeletedTasks(ctx context.Context, cutoff time.Time) (int, error) {
	purged := 0
	err := s.inTransaction(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT id, deleted_at FROM tasks WHERE deleted_at IS NOT NULL")
		if err != nil {
			return mapSQLError(err, "list deleted tasks")
		}
		var expired []int64
		for rows.Next() {
			var id int64
			var deletedAt string
			if err := rows.Scan(&id, &deletedAt); err != nil {
				_ = rows.Close()
				return mapSQLError(err, "scan deleted task")
			}
			ts, err := parseTime(deletedAt)
			if err != nil {
				_ = rows.Close()
				return err
			}
			if !ts.After(cutoff) {
				expired = append(expired, id)
			}
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return mapSQLError(err, "list deleted tasks")
		}
		_ = rows.Close()

		if len(expired) == 0 {
			return nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(expired)), ",")
		args := make([]any, len(expired))
		for i, id := range expired {
			args[i] = id
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM task_entity_links WHERE task_id IN ("+placeholders+")", args...); err != nil {
			return mapSQLError(err, "purge links")
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM tasks WHERE id IN ("+placeholders+")", args...); err != nil {
			return mapSQLError(err, "purge tasks")
		}
		purged = len(expired)
		return nil
	})
	return purged, err
}
