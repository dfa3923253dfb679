// Package engine implements the domain operations: task and entity CRUD,
// linking, tree and next-action queries, workspace audit, and telemetry.
// Every operation takes an explicit workspace path; the engine resolves it,
// registers the workspace in the master registry, and routes to that
// workspace's isolated store.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/taskmcp/taskmcp/internal/logging"
	"github.com/taskmcp/taskmcp/internal/registry"
	"github.com/taskmcp/taskmcp/internal/storage"
	"github.com/taskmcp/taskmcp/internal/storage/sqlite"
	"github.com/taskmcp/taskmcp/internal/workspace"
)

// Engine coordinates the resolver, master registry, and per-workspace stores.
// Safe for concurrent use.
type Engine struct {
	resolver *workspace.Resolver
	registry *registry.Registry

	mu     sync.Mutex
	stores map[string]storage.Store

	now func() time.Time
}

// New builds an engine over an already-opened master registry.
func New(resolver *workspace.Resolver, reg *registry.Registry) *Engine {
	return &Engine{
		resolver: resolver,
		registry: reg,
		stores:   make(map[string]storage.Store),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Close closes every open workspace store. The master registry is owned by
// the caller.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for id, store := range e.stores {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(e.stores, id)
	}
	return firstErr
}

// Registry exposes the master registry for listing and stats commands.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// workspaceFor resolves and registers a workspace, then returns its store,
// opening (and lazily initializing) the workspace database on first use.
func (e *Engine) workspaceFor(ctx context.Context, workspacePath string) (*workspace.Resolved, storage.Store, error) {
	resolved, err := e.resolver.Resolve(workspacePath)
	if err != nil {
		return nil, nil, err
	}
	if err := e.registry.Register(ctx, resolved.ID, resolved.WorkspacePath, e.now()); err != nil {
		return nil, nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if store, ok := e.stores[resolved.ID]; ok {
		return resolved, store, nil
	}
	store, err := sqlite.New(ctx, resolved.DBPath)
	if err != nil {
		return nil, nil, err
	}
	e.stores[resolved.ID] = store
	return resolved, store, nil
}

// track appends a usage row after an operation. Telemetry is a side effect:
// recording failures are logged and dropped, never surfaced.
func (e *Engine) track(ctx context.Context, toolName, workspaceID string, opErr error) {
	if workspaceID == "" {
		return
	}
	if err := e.registry.RecordUsage(ctx, toolName, workspaceID, opErr == nil, e.now()); err != nil {
		logging.Warnf("dropping usage record for %s: %v", toolName, err)
	}
}
