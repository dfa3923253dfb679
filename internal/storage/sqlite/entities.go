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

const entityColumns = `id, entity_type, name, identifier, description, metadata,
	tags, created_by, created_at, updated_at, deleted_at`

func scanEntity(row rowScanner) (*types.Entity, error) {
	var (
		e          types.Entity
		identifier sql.NullString
		tags       string
		createdAt  string
		updatedAt  string
		deletedAt  sql.NullString
	)
	err := row.Scan(&e.ID, &e.EntityType, &e.Name, &identifier, &e.Description,
		&e.Metadata, &tags, &e.CreatedBy, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	if identifier.Valid {
		e.Identifier = &identifier.String
	}
	if e.Tags, err = unmarshalStrings(tags); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if e.DeletedAt, err = parseTimePtr(deletedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEntity inserts the entity and populates its id. The partial unique
// index on (entity_type, identifier) turns duplicate live identifiers into a
// CONFLICT error.
func (s *Store) CreateEntity(ctx context.Context, entity *types.Entity) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (
			entity_type, name, identifier, description, metadata, tags,
			created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(entity.EntityType), entity.Name, nullableString(entity.Identifier),
		entity.Description, entity.Metadata, marshalStrings(entity.Tags),
		entity.CreatedBy, formatTime(entity.CreatedAt), formatTime(entity.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return types.Errorf(types.KindConflict,
				"entity with type %q and identifier %q already exists",
				entity.EntityType, derefString(entity.Identifier))
		}
		return mapSQLError(err, "insert entity")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read new entity id: %w", err)
	}
	entity.ID = id
	return nil
}

// GetEntity loads an entity by id. Soft-deleted rows report NOT_FOUND unless
// includeDeleted is set.
func (s *Store) GetEntity(ctx context.Context, id int64, includeDeleted bool) (*types.Entity, error) {
	query := "SELECT " + entityColumns + " FROM entities WHERE id = ?"
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}
	entity, err := scanEntity(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.Errorf(types.KindNotFound, "entity %d not found", id)
	}
	if err != nil {
		return nil, mapSQLError(err, "load entity")
	}
	return entity, nil
}

// UpdateEntity writes the entity's mutable fields back.
func (s *Store) UpdateEntity(ctx context.Context, entity *types.Entity) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entities SET
			entity_type = ?, name = ?, identifier = ?, description = ?,
			metadata = ?, tags = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`,
		string(entity.EntityType), entity.Name, nullableString(entity.Identifier),
		entity.Description, entity.Metadata, marshalStrings(entity.Tags),
		formatTime(entity.UpdatedAt), entity.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return types.Errorf(types.KindConflict,
				"entity with type %q and identifier %q already exists",
				entity.EntityType, derefString(entity.Identifier))
		}
		return mapSQLError(err, "update entity")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return types.Errorf(types.KindNotFound, "entity %d not found", entity.ID)
	}
	return nil
}

func (s *Store) queryEntities(ctx context.Context, where string, args []any, limit, offset int) ([]*types.Entity, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities "+where, args...).Scan(&total); err != nil {
		return nil, 0, mapSQLError(err, "count entities")
	}

	query := "SELECT " + entityColumns + " FROM entities " + where +
		" ORDER BY created_at DESC, id DESC"
	queryArgs := args
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		queryArgs = append(append([]any{}, args...), limit, offset)
	}
	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, mapSQLError(err, "list entities")
	}
	defer func() { _ = rows.Close() }()

	var entities []*types.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, 0, mapSQLError(err, "scan entity")
		}
		entities = append(entities, entity)
	}
	return entities, total, rows.Err()
}

// ListEntities returns live entities matching the filter, newest first, plus
// the pre-pagination total.
func (s *Store) ListEntities(ctx context.Context, filter types.EntityFilter, limit, offset int) ([]*types.Entity, int, error) {
	clauses := []string{"deleted_at IS NULL"}
	var args []any
	if filter.EntityType != nil {
		clauses = append(clauses, "entity_type = ?")
		args = append(args, string(*filter.EntityType))
	}
	if filter.Tags != "" {
		clauses = append(clauses, "tags LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.Tags)+"%")
	}
	return s.queryEntities(ctx, "WHERE "+strings.Join(clauses, " AND "), args, limit, offset)
}

// SearchEntities matches a case-insensitive substring of name or identifier.
func (s *Store) SearchEntities(ctx context.Context, term string, entityType *types.EntityType, limit, offset int) ([]*types.Entity, int, error) {
	clauses := []string{"deleted_at IS NULL", "(LOWER(name) LIKE ? OR LOWER(identifier) LIKE ?)"}
	needle := "%" + strings.ToLower(term) + "%"
	args := []any{needle, needle}
	if entityType != nil {
		clauses = append(clauses, "entity_type = ?")
		args = append(args, string(*entityType))
	}
	return s.queryEntities(ctx, "WHERE "+strings.Join(clauses, " AND "), args, limit, offset)
}

// FindEntityByIdentifier returns the live entity with the given type and
// identifier, or nil when there is none.
func (s *Store) FindEntityByIdentifier(ctx context.Context, entityType types.EntityType, identifier string) (*types.Entity, error) {
	entity, err := scanEntity(s.db.QueryRowContext(ctx,
		"SELECT "+entityColumns+" FROM entities WHERE entity_type = ? AND identifier = ? AND deleted_at IS NULL",
		string(entityType), identifier))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapSQLError(err, "find entity")
	}
	return entity, nil
}

// ListAllEntities returns every entity, optionally including soft-deleted
// rows. Only the workspace audit uses the includeDeleted form.
func (s *Store) ListAllEntities(ctx context.Context, includeDeleted bool) ([]*types.Entity, error) {
	where := "WHERE deleted_at IS NULL"
	if includeDeleted {
		where = "WHERE 1=1"
	}
	entities, _, err := s.queryEntities(ctx, where, nil, 0, 0)
	return entities, err
}

// SoftDeleteEntity marks the entity deleted and cascades to its live links in
// one transaction. Returns the number of links cascaded.
func (s *Store) SoftDeleteEntity(ctx context.Context, id int64, now time.Time) (int, error) {
	deletedLinks := 0
	err := s.inTransaction(ctx, func(tx *sql.Tx) error {
		ts := formatTime(now)
		res, err := tx.ExecContext(ctx,
			"UPDATE entities SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL",
			ts, ts, id)
		if err != nil {
			return mapSQLError(err, "soft-delete entity")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read delete result: %w", err)
		}
		if n == 0 {
			return types.Errorf(types.KindNotFound, "entity %d not found", id)
		}

		linkRes, err := tx.ExecContext(ctx,
			"UPDATE task_entity_links SET deleted_at = ? WHERE entity_id = ? AND deleted_at IS NULL",
			ts, id)
		if err != nil {
			return mapSQLError(err, "cascade link soft-delete")
		}
		links, err := linkRes.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read cascade result: %w", err)
		}
		deletedLinks = int(links)
		return nil
	})
	return deletedLinks, err
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
