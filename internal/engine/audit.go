package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/taskmcp/taskmcp/internal/registry"
	"github.com/taskmcp/taskmcp/internal/types"
	"github.com/taskmcp/taskmcp/internal/workspace"
)

// TaskWorkspaceReport is the result of validate_task_workspace.
type TaskWorkspaceReport struct {
	Valid            bool                     `json:"valid"`
	TaskID           int64                    `json:"task_id"`
	CurrentWorkspace string                   `json:"current_workspace"`
	TaskWorkspace    *string                  `json:"task_workspace"`
	WorkspaceMatch   bool                     `json:"workspace_match"`
	Warnings         []string                 `json:"warnings"`
	Metadata         *types.WorkspaceMetadata `json:"metadata"`
}

// ValidateTaskWorkspace compares a task's stored workspace provenance with
// the currently resolved workspace. Tasks created before metadata capture
// existed validate with a warning.
func (e *Engine) ValidateTaskWorkspace(ctx context.Context, workspacePath string, taskID int64) (report *TaskWorkspaceReport, err error) {
	resolved, store, err := e.workspaceFor(ctx, workspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "validate_task_workspace", resolved.ID, err) }()

	task, err := store.GetTask(ctx, taskID, false)
	if err != nil {
		return nil, err
	}

	report = &TaskWorkspaceReport{
		TaskID:           taskID,
		CurrentWorkspace: resolved.WorkspacePath,
		Warnings:         []string{},
		Metadata:         task.WorkspaceMetadata,
	}
	if task.WorkspaceMetadata == nil {
		report.Valid = true
		report.WorkspaceMatch = true
		report.Warnings = append(report.Warnings,
			"task has no workspace metadata (created before provenance capture); cannot verify origin")
		return report, nil
	}

	report.TaskWorkspace = &task.WorkspaceMetadata.WorkspacePath
	report.WorkspaceMatch = task.WorkspaceMetadata.WorkspacePath == resolved.WorkspacePath
	report.Valid = report.WorkspaceMatch
	if !report.WorkspaceMatch {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"task was created in %s but is being accessed from %s",
			task.WorkspaceMetadata.WorkspacePath, resolved.WorkspacePath))
	}
	return report, nil
}

// AuditIssue describes one suspicious row found by the integrity audit.
type AuditIssue struct {
	Kind     string `json:"kind"`
	TaskID   int64  `json:"task_id,omitempty"`
	EntityID int64  `json:"entity_id,omitempty"`
	Title    string `json:"title,omitempty"`
	Detail   string `json:"detail"`
}

// AuditIssues groups the audit findings by heuristic.
type AuditIssues struct {
	FileReferenceMismatches    []AuditIssue `json:"file_reference_mismatches"`
	SuspiciousTags             []AuditIssue `json:"suspicious_tags"`
	GitRepoMismatches          []AuditIssue `json:"git_repo_mismatches"`
	EntityIdentifierMismatches []AuditIssue `json:"entity_identifier_mismatches"`
	DescriptionPathReferences  []AuditIssue `json:"description_path_references"`
}

// AuditStatistics summarizes the audit findings.
type AuditStatistics struct {
	ContaminatedTasks    int `json:"contaminated_tasks"`
	ContaminatedEntities int `json:"contaminated_entities"`
}

// AuditReport is the result of audit_workspace_integrity.
type AuditReport struct {
	WorkspacePath      string          `json:"workspace_path"`
	AuditTimestamp     string          `json:"audit_timestamp"`
	ContaminationFound bool            `json:"contamination_found"`
	Issues             AuditIssues     `json:"issues"`
	Statistics         AuditStatistics `json:"statistics"`
	Recommendations    []string        `json:"recommendations"`
}

// AuditWorkspaceInput carries the arguments of audit_workspace_integrity.
type AuditWorkspaceInput struct {
	WorkspacePath  string
	IncludeDeleted bool
	CheckGitRepo   bool
}

var absPathPattern = regexp.MustCompile(`(?:^|\s)(/[A-Za-z0-9._-]+(?:/[A-Za-z0-9._-]+)+)`)

// AuditWorkspaceIntegrity runs contamination heuristics over every task and
// entity in the workspace, looking for rows that appear to belong to a
// different workspace.
func (e *Engine) AuditWorkspaceIntegrity(ctx context.Context, in AuditWorkspaceInput) (report *AuditReport, err error) {
	resolved, store, err := e.workspaceFor(ctx, in.WorkspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "audit_workspace_integrity", resolved.ID, err) }()

	tasks, err := store.ListAllTasks(ctx, in.IncludeDeleted)
	if err != nil {
		return nil, err
	}
	entities, err := store.ListAllEntities(ctx, in.IncludeDeleted)
	if err != nil {
		return nil, err
	}
	otherNames, err := e.otherWorkspaceNames(ctx, resolved.ID)
	if err != nil {
		return nil, err
	}

	report = &AuditReport{
		WorkspacePath:  resolved.WorkspacePath,
		AuditTimestamp: e.now().Format("2006-01-02T15:04:05Z07:00"),
		Issues: AuditIssues{
			FileReferenceMismatches:    []AuditIssue{},
			SuspiciousTags:             []AuditIssue{},
			GitRepoMismatches:          []AuditIssue{},
			EntityIdentifierMismatches: []AuditIssue{},
			DescriptionPathReferences:  []AuditIssue{},
		},
		Recommendations: []string{},
	}

	contaminatedTasks := make(map[int64]bool)
	contaminatedEntities := make(map[int64]bool)

	for _, task := range tasks {
		for _, ref := range task.FileReferences {
			if filepath.IsAbs(ref) && !pathWithin(ref, resolved.WorkspacePath) {
				report.Issues.FileReferenceMismatches = append(report.Issues.FileReferenceMismatches,
					AuditIssue{
						Kind: "file_reference_mismatch", TaskID: task.ID, Title: task.Title,
						Detail: fmt.Sprintf("file reference %s is outside the workspace", ref),
					})
				contaminatedTasks[task.ID] = true
			}
		}

		for _, tag := range task.Tags {
			for _, name := range otherNames {
				// Tags are stored lowercase, so the comparison is
				// case-insensitive on the workspace name side.
				if strings.Contains(strings.ToLower(tag), strings.ToLower(name)) {
					report.Issues.SuspiciousTags = append(report.Issues.SuspiciousTags,
						AuditIssue{
							Kind: "suspicious_tag", TaskID: task.ID, Title: task.Title,
							Detail: fmt.Sprintf("tag %q names another known workspace (%s)", tag, name),
						})
					contaminatedTasks[task.ID] = true
				}
			}
		}

		if in.CheckGitRepo && task.WorkspaceMetadata != nil && task.WorkspaceMetadata.GitRoot != nil {
			current := workspace.GitRoot(resolved.WorkspacePath)
			if current == nil || *current != *task.WorkspaceMetadata.GitRoot {
				report.Issues.GitRepoMismatches = append(report.Issues.GitRepoMismatches,
					AuditIssue{
						Kind: "git_repo_mismatch", TaskID: task.ID, Title: task.Title,
						Detail: fmt.Sprintf("stored git root %s differs from the current workspace's",
							*task.WorkspaceMetadata.GitRoot),
					})
				contaminatedTasks[task.ID] = true
			}
		}

		for _, path := range foreignPaths(task.Description, resolved.WorkspacePath) {
			report.Issues.DescriptionPathReferences = append(report.Issues.DescriptionPathReferences,
				AuditIssue{
					Kind: "description_path_reference", TaskID: task.ID, Title: task.Title,
					Detail: fmt.Sprintf("description references path %s outside the workspace", path),
				})
			contaminatedTasks[task.ID] = true
		}
	}

	for _, entity := range entities {
		if entity.EntityType != types.EntityTypeFile || entity.Identifier == nil {
			continue
		}
		id := *entity.Identifier
		if filepath.IsAbs(id) && !pathWithin(id, resolved.WorkspacePath) {
			report.Issues.EntityIdentifierMismatches = append(report.Issues.EntityIdentifierMismatches,
				AuditIssue{
					Kind: "entity_identifier_mismatch", EntityID: entity.ID, Title: entity.Name,
					Detail: fmt.Sprintf("file entity identifier %s is outside the workspace", id),
				})
			contaminatedEntities[entity.ID] = true
		}
	}

	report.Statistics = AuditStatistics{
		ContaminatedTasks:    len(contaminatedTasks),
		ContaminatedEntities: len(contaminatedEntities),
	}
	report.ContaminationFound = len(contaminatedTasks) > 0 || len(contaminatedEntities) > 0
	if report.ContaminationFound {
		report.Recommendations = append(report.Recommendations,
			"Review the flagged rows; they may have been created from a different workspace.",
			"Use validate_task_workspace on individual tasks to confirm their origin.")
	}
	return report, nil
}

func (e *Engine) otherWorkspaceNames(ctx context.Context, currentID string) ([]string, error) {
	workspaces, err := e.registry.ListWorkspaces(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, ws := range workspaces {
		if ws.ID == currentID {
			continue
		}
		if name := filepath.Base(ws.WorkspacePath); name != "" && name != "/" && name != "." {
			names = append(names, name)
		}
	}
	return names, nil
}

// pathWithin reports whether path sits under root after lexical cleanup.
func pathWithin(path, root string) bool {
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

// foreignPaths extracts absolute path substrings from text that point
// outside the workspace root.
func foreignPaths(text, root string) []string {
	var out []string
	for _, match := range absPathPattern.FindAllStringSubmatch(text, -1) {
		if path := match[1]; !pathWithin(path, root) {
			out = append(out, path)
		}
	}
	return out
}

// GetUsageStats aggregates tool usage over a trailing window of days.
func (e *Engine) GetUsageStats(ctx context.Context, workspacePath string, days int, toolName string) (stats *registry.UsageStats, err error) {
	resolved, err := e.touchWorkspace(ctx, workspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "get_usage_stats", resolved.ID, err) }()
	return e.registry.GetUsageStats(ctx, days, toolName)
}

// SetFriendlyName names a workspace in the master registry, registering it
// first if needed.
func (e *Engine) SetFriendlyName(ctx context.Context, workspacePath, name string) (ws *types.Workspace, err error) {
	resolved, err := e.resolver.Resolve(workspacePath)
	if err != nil {
		return nil, err
	}
	defer func() { e.track(ctx, "set_friendly_name", resolved.ID, err) }()

	if err = e.registry.SetFriendlyName(ctx, resolved.ID, resolved.WorkspacePath, name, e.now()); err != nil {
		return nil, err
	}
	return e.registry.GetWorkspace(ctx, resolved.ID)
}

// ListWorkspaces returns every known workspace, most recently accessed first.
func (e *Engine) ListWorkspaces(ctx context.Context) ([]*types.Workspace, error) {
	return e.registry.ListWorkspaces(ctx)
}
