package sqlite

// Base schema for a workspace database. The workspace_metadata column on tasks
// is intentionally absent here: it is added by a forward-only migration so
// databases created before the column behave identically to fresh ones.
const schema = `
-- Tasks table
CREATE TABLE IF NOT EXISTS tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL CHECK(length(title) > 0),
    description TEXT NOT NULL DEFAULT '' CHECK(length(description) <= 10000),
    status TEXT NOT NULL DEFAULT 'todo',
    priority TEXT NOT NULL DEFAULT 'medium',
    parent_task_id INTEGER,
    depends_on TEXT NOT NULL DEFAULT '[]',       -- JSON array of task ids, ordered
    tags TEXT NOT NULL DEFAULT '[]',             -- JSON array of normalized tags
    blocker_reason TEXT NOT NULL DEFAULT '',
    file_references TEXT NOT NULL DEFAULT '[]',  -- JSON array of opaque paths
    created_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    completed_at TEXT,
    deleted_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id);
CREATE INDEX IF NOT EXISTS idx_tasks_deleted_at ON tasks(deleted_at);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);

-- Entities table
CREATE TABLE IF NOT EXISTS entities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    name TEXT NOT NULL CHECK(length(name) > 0),
    identifier TEXT,
    description TEXT NOT NULL DEFAULT '' CHECK(length(description) <= 10000),
    metadata TEXT NOT NULL DEFAULT '',           -- opaque JSON string, returned verbatim
    tags TEXT NOT NULL DEFAULT '[]',
    created_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_entities_deleted_at ON entities(deleted_at);

-- Uniqueness of (entity_type, identifier) among live rows only; soft-deleted
-- rows must not block re-creation, and NULL identifiers never collide.
CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_type_identifier
    ON entities(entity_type, identifier)
    WHERE deleted_at IS NULL AND identifier IS NOT NULL;

-- Task-entity links table
CREATE TABLE IF NOT EXISTS task_entity_links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id INTEGER NOT NULL,
    entity_id INTEGER NOT NULL,
    created_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    deleted_at TEXT,
    FOREIGN KEY (task_id) REFERENCES tasks(id),
    FOREIGN KEY (entity_id) REFERENCES entities(id)
);

CREATE INDEX IF NOT EXISTS idx_links_task ON task_entity_links(task_id);
CREATE INDEX IF NOT EXISTS idx_links_entity ON task_entity_links(entity_id);

CREATE UNIQUE INDEX IF NOT EXISTS idx_links_task_entity
    ON task_entity_links(task_id, entity_id)
    WHERE deleted_at IS NULL;
`
