// Package queries is the projection layer between the domain engine and the
// dispatch boundary: mode-based field selection, pagination envelopes, tree
// shaping, and the response-size budget.
package queries

import (
	"time"

	"github.com/taskmcp/taskmcp/internal/types"
)

// Mode selects how much of each row a listing returns.
type Mode string

const (
	ModeSummary Mode = "summary"
	ModeDetails Mode = "details"
)

// ParseMode validates a caller-supplied mode string. Empty defaults to
// summary; anything else unknown is INVALID_MODE.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", string(ModeSummary):
		return ModeSummary, nil
	case string(ModeDetails):
		return ModeDetails, nil
	default:
		return "", types.Errorf(types.KindInvalidMode,
			"invalid mode %q: must be \"summary\" or \"details\"", s)
	}
}

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Pagination is a validated limit/offset pair.
type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination validates caller-supplied limit and offset. Nil limit
// defaults to 100; nil offset defaults to 0.
func ParsePagination(limit, offset *int) (Pagination, error) {
	p := Pagination{Limit: defaultLimit}
	if limit != nil {
		if *limit < 1 || *limit > maxLimit {
			return Pagination{}, types.Errorf(types.KindPaginationInvalid,
				"limit %d out of range [1, %d]", *limit, maxLimit)
		}
		p.Limit = *limit
	}
	if offset != nil {
		if *offset < 0 {
			return Pagination{}, types.Errorf(types.KindPaginationInvalid,
				"offset %d must be non-negative", *offset)
		}
		p.Offset = *offset
	}
	return p, nil
}

// Page is the uniform envelope for paginated responses. TotalCount is the
// number of rows matching the filters before pagination.
type Page struct {
	TotalCount    int `json:"total_count"`
	ReturnedCount int `json:"returned_count"`
	Limit         int `json:"limit"`
	Offset        int `json:"offset"`
	Items         any `json:"items"`
}

// NewPage wraps already-projected items in the pagination envelope.
func NewPage(items []any, total int, p Pagination) *Page {
	if items == nil {
		items = []any{}
	}
	return &Page{
		TotalCount:    total,
		ReturnedCount: len(items),
		Limit:         p.Limit,
		Offset:        p.Offset,
		Items:         items,
	}
}

// TaskSummary carries the fields every task listing returns.
type TaskSummary struct {
	ID           int64          `json:"id"`
	Title        string         `json:"title"`
	Status       types.Status   `json:"status"`
	Priority     types.Priority `json:"priority"`
	Tags         []string       `json:"tags"`
	ParentTaskID *int64         `json:"parent_task_id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TaskDetails is the summary plus every remaining stored field.
type TaskDetails struct {
	TaskSummary
	Description       string                   `json:"description"`
	DependsOn         []int64                  `json:"depends_on"`
	BlockerReason     string                   `json:"blocker_reason,omitempty"`
	FileReferences    []string                 `json:"file_references"`
	CreatedBy         string                   `json:"created_by,omitempty"`
	CompletedAt       *time.Time               `json:"completed_at"`
	DeletedAt         *time.Time               `json:"deleted_at,omitempty"`
	WorkspaceMetadata *types.WorkspaceMetadata `json:"workspace_metadata"`
}

func taskSummary(t *types.Task) TaskSummary {
	return TaskSummary{
		ID:           t.ID,
		Title:        t.Title,
		Status:       t.Status,
		Priority:     t.Priority,
		Tags:         t.Tags,
		ParentTaskID: t.ParentTaskID,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// ProjectTask renders one task in the given mode.
func ProjectTask(t *types.Task, mode Mode) any {
	if mode == ModeSummary {
		return taskSummary(t)
	}
	return TaskDetails{
		TaskSummary:       taskSummary(t),
		Description:       t.Description,
		DependsOn:         t.DependsOn,
		BlockerReason:     t.BlockerReason,
		FileReferences:    t.FileReferences,
		CreatedBy:         t.CreatedBy,
		CompletedAt:       t.CompletedAt,
		DeletedAt:         t.DeletedAt,
		WorkspaceMetadata: t.WorkspaceMetadata,
	}
}

// ProjectTasks renders a slice of tasks in the given mode.
func ProjectTasks(tasks []*types.Task, mode Mode) []any {
	out := make([]any, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, ProjectTask(t, mode))
	}
	return out
}

// EntitySummary carries the fields every entity listing returns.
type EntitySummary struct {
	ID         int64            `json:"id"`
	EntityType types.EntityType `json:"entity_type"`
	Name       string           `json:"name"`
	Identifier *string          `json:"identifier"`
	Tags       []string         `json:"tags"`
	CreatedAt  time.Time        `json:"created_at"`
}

// EntityDetails is the summary plus every remaining stored field.
type EntityDetails struct {
	EntitySummary
	Description string     `json:"description"`
	Metadata    string     `json:"metadata"`
	CreatedBy   string     `json:"created_by,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

func entitySummary(e *types.Entity) EntitySummary {
	return EntitySummary{
		ID:         e.ID,
		EntityType: e.EntityType,
		Name:       e.Name,
		Identifier: e.Identifier,
		Tags:       e.Tags,
		CreatedAt:  e.CreatedAt,
	}
}

// ProjectEntity renders one entity in the given mode.
func ProjectEntity(e *types.Entity, mode Mode) any {
	if mode == ModeSummary {
		return entitySummary(e)
	}
	return EntityDetails{
		EntitySummary: entitySummary(e),
		Description:   e.Description,
		Metadata:      e.Metadata,
		CreatedBy:     e.CreatedBy,
		UpdatedAt:     e.UpdatedAt,
		DeletedAt:     e.DeletedAt,
	}
}

// ProjectEntities renders a slice of entities in the given mode.
func ProjectEntities(entities []*types.Entity, mode Mode) []any {
	out := make([]any, 0, len(entities))
	for _, e := range entities {
		out = append(out, ProjectEntity(e, mode))
	}
	return out
}

// linkProvenance is attached to every relationship row regardless of mode.
type linkProvenance struct {
	LinkCreatedAt time.Time `json:"link_created_at"`
	LinkCreatedBy string    `json:"link_created_by,omitempty"`
}

// LinkedEntityRow is an entity projection plus link provenance.
type LinkedEntityRow struct {
	Entity any `json:"entity"`
	linkProvenance
}

// ProjectLinkedEntities renders the entities linked to a task.
func ProjectLinkedEntities(linked []*types.LinkedEntity, mode Mode) []any {
	out := make([]any, 0, len(linked))
	for _, le := range linked {
		out = append(out, LinkedEntityRow{
			Entity: ProjectEntity(&le.Entity, mode),
			linkProvenance: linkProvenance{
				LinkCreatedAt: le.LinkCreatedAt,
				LinkCreatedBy: le.LinkCreatedBy,
			},
		})
	}
	return out
}

// LinkedTaskRow is a task projection plus link provenance.
type LinkedTaskRow struct {
	Task any `json:"task"`
	linkProvenance
}

// ProjectLinkedTasks renders the tasks linked to an entity.
func ProjectLinkedTasks(linked []*types.LinkedTask, mode Mode) []any {
	out := make([]any, 0, len(linked))
	for _, lt := range linked {
		out = append(out, LinkedTaskRow{
			Task: ProjectTask(&lt.Task, mode),
			linkProvenance: linkProvenance{
				LinkCreatedAt: lt.LinkCreatedAt,
				LinkCreatedBy: lt.LinkCreatedBy,
			},
		})
	}
	return out
}

// TreeNode is a projected task with its projected children. The mode applies
// to the root and every descendant.
type TreeNode struct {
	Task     any         `json:"task"`
	Children []*TreeNode `json:"children"`
}

// ProjectTree renders a task tree in the given mode.
func ProjectTree(node *types.TreeNode, mode Mode) *TreeNode {
	out := &TreeNode{
		Task:     ProjectTask(node.Task, mode),
		Children: make([]*TreeNode, 0, len(node.Children)),
	}
	for _, child := range node.Children {
		out.Children = append(out.Children, ProjectTree(child, mode))
	}
	return out
}
