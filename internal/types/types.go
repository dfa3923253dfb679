// Package types defines core data structures for the task-mcp tracker.
package types

import (
	"fmt"
	"strings"
	"time"
)

// MaxDescriptionLen is the maximum length of task and entity descriptions.
const MaxDescriptionLen = 10000

// Status represents the current state of a task
type Status string

// Task status constants
const (
	StatusTodo        Status = "todo"
	StatusInProgress  Status = "in_progress"
	StatusBlocked     Status = "blocked"
	StatusDone        Status = "done"
	StatusCancelled   Status = "cancelled"
	StatusToBeDeleted Status = "to_be_deleted"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusBlocked, StatusDone, StatusCancelled, StatusToBeDeleted:
		return true
	}
	return false
}

// Priority represents task priority
type Priority string

// Task priority constants
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// IsValid checks if the priority value is valid
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Rank returns a sortable weight for the priority: high > medium > low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// EntityType categorizes a linkable entity
type EntityType string

// Entity type constants
const (
	EntityTypeFile  EntityType = "file"
	EntityTypeOther EntityType = "other"
)

// IsValid checks if the entity type is valid
func (t EntityType) IsValid() bool {
	return t == EntityTypeFile || t == EntityTypeOther
}

// WorkspaceMetadata is captured once at task creation and never updated.
type WorkspaceMetadata struct {
	WorkspacePath string  `json:"workspace_path"`
	GitRoot       *string `json:"git_root"`
	CwdAtCreation string  `json:"cwd_at_creation"`
	ProjectName   string  `json:"project_name"`
}

// Task represents a trackable unit of work within one workspace
type Task struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         Status     `json:"status"`
	Priority       Priority   `json:"priority"`
	ParentTaskID   *int64     `json:"parent_task_id"`
	DependsOn      []int64    `json:"depends_on,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	BlockerReason  string     `json:"blocker_reason,omitempty"`
	FileReferences []string   `json:"file_references,omitempty"`
	CreatedBy      string     `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`

	// Captured at creation, immutable afterwards. Nil for legacy rows
	// created before the workspace_metadata migration.
	WorkspaceMetadata *WorkspaceMetadata `json:"workspace_metadata,omitempty"`
}

// IsDeleted returns true if the task has been soft-deleted
func (t *Task) IsDeleted() bool {
	return t.DeletedAt != nil
}

// Validate checks the task's field invariants.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return Errorf(KindInvalidInput, "title is required")
	}
	if len(t.Description) > MaxDescriptionLen {
		return Errorf(KindInvalidInput, "description must be %d characters or less (got %d)", MaxDescriptionLen, len(t.Description))
	}
	if !t.Status.IsValid() {
		return Errorf(KindInvalidInput, "invalid status: %s", t.Status)
	}
	if !t.Priority.IsValid() {
		return Errorf(KindInvalidInput, "invalid priority: %s", t.Priority)
	}
	// blocked <=> blocker_reason
	if t.Status == StatusBlocked && t.BlockerReason == "" {
		return Errorf(KindBlockerReasonMissing, "status 'blocked' requires a blocker_reason")
	}
	if t.Status != StatusBlocked && t.BlockerReason != "" {
		return Errorf(KindConflict, "blocker_reason is only allowed while status is 'blocked'")
	}
	// completed_at <=> done
	if t.Status == StatusDone && t.CompletedAt == nil {
		return Errorf(KindInvalidInput, "done tasks must have completed_at")
	}
	if t.Status != StatusDone && t.CompletedAt != nil {
		return Errorf(KindInvalidInput, "non-done tasks cannot have completed_at")
	}
	for _, dep := range t.DependsOn {
		if dep == t.ID && t.ID != 0 {
			return Errorf(KindInvalidInput, "task cannot depend on itself")
		}
	}
	return nil
}

// Entity represents a typed, linkable domain object (a file, a vendor, ...)
type Entity struct {
	ID          int64      `json:"id"`
	EntityType  EntityType `json:"entity_type"`
	Name        string     `json:"name"`
	Identifier  *string    `json:"identifier"`
	Description string     `json:"description,omitempty"`
	// Opaque JSON string. Stored and returned byte-for-byte.
	Metadata  string     `json:"metadata,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsDeleted returns true if the entity has been soft-deleted
func (e *Entity) IsDeleted() bool {
	return e.DeletedAt != nil
}

// Validate checks the entity's field invariants.
func (e *Entity) Validate() error {
	if !e.EntityType.IsValid() {
		return Errorf(KindInvalidInput, "invalid entity_type: %s", e.EntityType)
	}
	if strings.TrimSpace(e.Name) == "" {
		return Errorf(KindInvalidInput, "name is required")
	}
	if len(e.Description) > MaxDescriptionLen {
		return Errorf(KindInvalidInput, "description must be %d characters or less (got %d)", MaxDescriptionLen, len(e.Description))
	}
	return nil
}

// TaskEntityLink is a many-to-many association between a task and an entity
type TaskEntityLink struct {
	ID        int64      `json:"id"`
	TaskID    int64      `json:"task_id"`
	EntityID  int64      `json:"entity_id"`
	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Workspace is a master-registry row describing one known workspace
type Workspace struct {
	ID            string    `json:"id"`
	WorkspacePath string    `json:"workspace_path"`
	FriendlyName  *string   `json:"friendly_name"`
	CreatedAt     time.Time `json:"created_at"`
	LastAccessed  time.Time `json:"last_accessed"`
}

// ToolUsage is an append-only telemetry row in the master registry
type ToolUsage struct {
	ID          int64     `json:"id"`
	ToolName    string    `json:"tool_name"`
	WorkspaceID string    `json:"workspace_id"`
	Timestamp   time.Time `json:"timestamp"`
	Success     bool      `json:"success"`
}

// NormalizeTags lowercases tags, collapses internal whitespace to single
// spaces, trims, and removes duplicates while preserving insertion order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		norm := strings.Join(strings.Fields(strings.ToLower(tag)), " ")
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// TaskFilter narrows task listings. Nil fields mean "no constraint".
type TaskFilter struct {
	Status       *Status
	Priority     *Priority
	ParentTaskID *int64
	// Substring match against the normalized tag string.
	Tags string
}

// Validate checks filter enum values.
func (f TaskFilter) Validate() error {
	if f.Status != nil && !f.Status.IsValid() {
		return Errorf(KindInvalidInput, "invalid status filter: %s", *f.Status)
	}
	if f.Priority != nil && !f.Priority.IsValid() {
		return Errorf(KindInvalidInput, "invalid priority filter: %s", *f.Priority)
	}
	return nil
}

// EntityFilter narrows entity listings.
type EntityFilter struct {
	EntityType *EntityType
	Tags       string
}

// Validate checks filter enum values.
func (f EntityFilter) Validate() error {
	if f.EntityType != nil && !f.EntityType.IsValid() {
		return Errorf(KindInvalidInput, "invalid entity_type filter: %s", *f.EntityType)
	}
	return nil
}

// LinkedEntity is an entity joined with its link row for relationship queries.
type LinkedEntity struct {
	Entity
	LinkCreatedAt time.Time `json:"link_created_at"`
	LinkCreatedBy string    `json:"link_created_by,omitempty"`
}

// LinkedTask is a task joined with its link row for reverse relationship queries.
type LinkedTask struct {
	Task
	LinkCreatedAt time.Time `json:"link_created_at"`
	LinkCreatedBy string    `json:"link_created_by,omitempty"`
}

// TreeNode is a task with its eagerly expanded, non-deleted children.
type TreeNode struct {
	Task     *Task       `json:"-"`
	Children []*TreeNode `json:"-"`
}

func (n *TreeNode) String() string {
	return fmt.Sprintf("TreeNode(%d, children=%d)", n.Task.ID, len(n.Children))
}
