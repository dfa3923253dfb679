// Package workspace resolves explicit workspace paths to stable identifiers
// and per-workspace database locations under the data root.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/taskmcp/taskmcp/internal/types"
)

// IDLength is the number of hex characters in a workspace id.
const IDLength = 8

// databasesDir is the subdirectory of the data root holding workspace DBs.
const databasesDir = "databases"

// Resolver derives workspace identities and on-disk locations. The data root
// is injected configuration, never process-wide state, so tests can point each
// resolver at a throwaway directory.
type Resolver struct {
	dataRoot string
}

// NewResolver creates a resolver rooted at dataRoot.
func NewResolver(dataRoot string) *Resolver {
	return &Resolver{dataRoot: dataRoot}
}

// Resolved describes one validated workspace.
type Resolved struct {
	// Absolute, symlink-free where possible. Deterministic for a given input.
	WorkspacePath string
	// First 8 lowercase hex chars of sha256(WorkspacePath).
	ID string
	// Base name of the workspace path.
	ProjectName string
	// Root of the enclosing git repository, nil if none.
	GitRoot *string
	// Location of this workspace's database file.
	DBPath string
}

// Resolve validates an explicit workspace path and derives its identity.
// Auto-detection is forbidden: an absent or empty path is an error, never a
// fallback to cwd or environment.
func (r *Resolver) Resolve(workspacePath string) (*Resolved, error) {
	if workspacePath == "" {
		return nil, types.Errorf(types.KindWorkspaceMissing,
			"workspace_path is required; provide the absolute path of the project root")
	}

	abs, err := filepath.Abs(workspacePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace path %q: %w", workspacePath, err)
	}
	// Resolve symlinks when the path exists; fall back to the lexical form so
	// the mapping stays deterministic for not-yet-created workspaces.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	id := ID(abs)
	return &Resolved{
		WorkspacePath: abs,
		ID:            id,
		ProjectName:   filepath.Base(abs),
		GitRoot:       GitRoot(abs),
		DBPath:        r.WorkspaceDBPath(id),
	}, nil
}

// ID computes the workspace id for an absolute path: hex(sha256(path))[:8].
func ID(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:])[:IDLength]
}

// MasterDBPath returns the location of the shared master registry database.
func (r *Resolver) MasterDBPath() string {
	return filepath.Join(r.dataRoot, "master.db")
}

// WorkspaceDBPath returns the database location for a workspace id.
func (r *Resolver) WorkspaceDBPath(id string) string {
	return filepath.Join(r.dataRoot, databasesDir, fmt.Sprintf("project_%s.db", id))
}

// DataRoot returns the configured data root.
func (r *Resolver) DataRoot() string {
	return r.dataRoot
}

// EnsureLayout creates the data root and databases directory. MkdirAll holds
// no filesystem handles, so there is nothing to release on error paths.
func (r *Resolver) EnsureLayout() error {
	if err := os.MkdirAll(filepath.Join(r.dataRoot, databasesDir), 0750); err != nil {
		return fmt.Errorf("failed to create data root layout: %w", err)
	}
	return nil
}

// GitRoot walks up from path looking for a .git entry and returns the
// containing directory, or nil if the path is not inside a git repository.
// A filesystem walk keeps resolution deterministic and avoids depending on a
// git binary being installed.
func GitRoot(path string) *string {
	for dir := path; ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			root := dir
			return &root
		}
		if dir == filepath.Dir(dir) {
			return nil
		}
	}
}
