// Package storage defines the interface for workspace task stores.
package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/taskmcp/taskmcp/internal/types"
)

// Store is the per-workspace persistence interface. One Store owns exactly one
// workspace database; tasks, entities, and links never cross stores.
//
// All multi-row mutations (cascading soft deletes, purges) run inside a single
// transaction in the implementation. Reads observe either the pre-write or
// post-write state of any given write.
type Store interface {
	// Tasks
	CreateTask(ctx context.Context, task *types.Task) error
	GetTask(ctx context.Context, id int64, includeDeleted bool) (*types.Task, error)
	UpdateTask(ctx context.Context, task *types.Task) error
	ListTasks(ctx context.Context, filter types.TaskFilter, limit, offset int) ([]*types.Task, int, error)
	SearchTasks(ctx context.Context, term string, filter types.TaskFilter, limit, offset int) ([]*types.Task, int, error)
	ListChildren(ctx context.Context, parentID int64) ([]*types.Task, error)
	GetBlockedTasks(ctx context.Context) ([]*types.Task, error)
	ListByStatus(ctx context.Context, status types.Status) ([]*types.Task, error)
	StatusesByID(ctx context.Context) (map[int64]types.Status, error)
	ListAllTasks(ctx context.Context, includeDeleted bool) ([]*types.Task, error)

	// SoftDeleteTaskTree marks the task (and with cascade, all transitive
	// descendants) deleted, cascades to owned links, and returns the ids of
	// the tasks it marked. Single transaction.
	SoftDeleteTaskTree(ctx context.Context, rootID int64, cascade bool, now time.Time) ([]int64, error)

	// CleanupDeletedTasks permanently removes tasks soft-deleted before the
	// cutoff, purging links that reference them. Returns the purge count.
	CleanupDeletedTasks(ctx context.Context, cutoff time.Time) (int, error)

	// Entities
	CreateEntity(ctx context.Context, entity *types.Entity) error
	GetEntity(ctx context.Context, id int64, includeDeleted bool) (*types.Entity, error)
	UpdateEntity(ctx context.Context, entity *types.Entity) error
	ListEntities(ctx context.Context, filter types.EntityFilter, limit, offset int) ([]*types.Entity, int, error)
	SearchEntities(ctx context.Context, term string, entityType *types.EntityType, limit, offset int) ([]*types.Entity, int, error)
	FindEntityByIdentifier(ctx context.Context, entityType types.EntityType, identifier string) (*types.Entity, error)
	ListAllEntities(ctx context.Context, includeDeleted bool) ([]*types.Entity, error)

	// SoftDeleteEntity marks the entity deleted and cascades to its live
	// links, returning how many links were cascaded. Single transaction.
	SoftDeleteEntity(ctx context.Context, id int64, now time.Time) (int, error)

	// Links
	CreateLink(ctx context.Context, link *types.TaskEntityLink) error
	GetLiveLink(ctx context.Context, taskID, entityID int64) (*types.TaskEntityLink, error)
	GetTaskEntities(ctx context.Context, taskID int64, limit, offset int) ([]*types.LinkedEntity, int, error)
	GetEntityTasks(ctx context.Context, entityID int64, filter types.TaskFilter, limit, offset int) ([]*types.LinkedTask, int, error)

	// Lifecycle
	Close() error
	Path() string

	// UnderlyingDB exposes the raw connection for diagnostics and tests.
	UnderlyingDB() *sql.DB
}
