package repo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/pocket/pkg/object"
)

var testAuthor = object.Signature{Name: "Test Author", Email: "test@example.com"}

func initRepo(t *testing.T) *Repo {
	t.Helper()
	res, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return res.Repo
}

func writeFile(t *testing.T, r *Repo, name, content string) {
	t.Helper()
	full := filepath.Join(r.RootDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func addAndCommit(t *testing.T, r *Repo, msg string, files map[string]string) *CommitResult {
	t.Helper()
	names := make([]string, 0, len(files))
	for name, content := range files {
		writeFile(t, r, name, content)
		names = append(names, name)
	}
	if _, err := r.Add(names...); err != nil {
		t.Fatalf("Add(%v): %v", names, err)
	}
	res, err := r.Commit(CommitOptions{Message: msg, Author: testAuthor})
	if err != nil {
		t.Fatalf("Commit(%q): %v", msg, err)
	}
	return res
}

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("KindOf(%v) = %s, want %s", err, got, kind)
	}
	if !errors.Is(err, kind.Sentinel()) {
		t.Fatalf("errors.Is(%v, %v) = false", err, kind.Sentinel())
	}
}

func objectCount(t *testing.T, r *Repo) int {
	t.Helper()
	hashes, err := r.Store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return len(hashes)
}
