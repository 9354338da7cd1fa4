package repo

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/odvcencio/pocket/pkg/object"
)

func TestAddStagesFile(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, "a.txt", "hello")

	res, err := r.Add("a.txt")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !reflect.DeepEqual(res.Staged, []string{"a.txt"}) {
		t.Fatalf("Staged = %v", res.Staged)
	}
	idx, err := r.loadIndex()
	if err != nil {
		t.Fatalf("loadIndex: %v", err)
	}
	e, ok := idx.Entry("a.txt")
	if !ok {
		t.Fatal("a.txt not in index")
	}
	if e.BlobHash != object.HashObject(object.TypeBlob, []byte("hello")) {
		t.Fatalf("BlobHash = %s", e.BlobHash)
	}
	if !r.Store.Has(e.BlobHash) {
		t.Fatal("blob not written")
	}

	// Re-adding unchanged content changes nothing.
	res, err = r.Add("a.txt")
	if err != nil {
		t.Fatalf("second Add: %v", err)
	}
	if len(res.Staged) != 0 || res.Unchanged != 1 {
		t.Fatalf("second Add = %+v", res)
	}
}

func TestAddAbsoluteAndMultiplePaths(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, "one.txt", "1")
	writeFile(t, r, "dir/two.txt", "2")

	res, err := r.Add(filepath.Join(r.RootDir, "one.txt"), "dir/two.txt")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !reflect.DeepEqual(res.Staged, []string{"one.txt", "dir/two.txt"}) {
		t.Fatalf("Staged = %v", res.Staged)
	}
}

func TestAddDirectoryRespectsIgnore(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, ".pocketignore", "*.log\nbuild/\n")
	writeFile(t, r, "src/main.go", "package main")
	writeFile(t, r, "src/debug.log", "noise")
	writeFile(t, r, "src/build/out.bin", "bin")

	res, err := r.Add("src")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !reflect.DeepEqual(res.Staged, []string{"src/main.go"}) {
		t.Fatalf("Staged = %v", res.Staged)
	}
}

func TestAddMissingFile(t *testing.T) {
	r := initRepo(t)
	_, err := r.Add("nope.txt")
	wantKind(t, err, KindFileNotFound)
}

func TestAddOutOfScope(t *testing.T) {
	r := initRepo(t)
	outside := filepath.Join(t.TempDir(), "elsewhere.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := r.Add(outside)
	wantKind(t, err, KindOutOfScope)

	_, err = r.Add("../escape.txt")
	wantKind(t, err, KindOutOfScope)
}

func TestAddMetadataPathRejected(t *testing.T) {
	r := initRepo(t)
	_, err := r.Add(".pocket/HEAD")
	wantKind(t, err, KindInvalidArgument)
}

func TestAddFailureLeavesIndexUntouched(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, "ok.txt", "ok")
	if _, err := r.Add("ok.txt", "missing.txt"); err == nil {
		t.Fatal("expected error")
	}
	idx, err := r.loadIndex()
	if err != nil {
		t.Fatalf("loadIndex: %v", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("index has %d entries after failed add", idx.Len())
	}
}

func TestAddDeletedTrackedFileStagesRemoval(t *testing.T) {
	r := initRepo(t)
	addAndCommit(t, r, "first", map[string]string{"a.txt": "a", "b.txt": "b"})
	if err := os.Remove(filepath.Join(r.RootDir, "a.txt")); err != nil {
		t.Fatal(err)
	}

	res, err := r.Add("a.txt")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !reflect.DeepEqual(res.Removed, []string{"a.txt"}) {
		t.Fatalf("Removed = %v", res.Removed)
	}
	st, err := r.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(st.Staged) != 1 || st.Staged[0].Path != "a.txt" || st.Staged[0].Kind.String() != "deleted" {
		t.Fatalf("Staged = %+v", st.Staged)
	}
}

func TestAddReplacesFileWithDirectory(t *testing.T) {
	r := initRepo(t)
	addAndCommit(t, r, "first", map[string]string{"thing": "file"})
	if err := os.Remove(filepath.Join(r.RootDir, "thing")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, r, "thing/inner.txt", "now a dir")

	if _, err := r.Add("thing/inner.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit(CommitOptions{Message: "dir", Author: testAuthor}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestAddAll(t *testing.T) {
	r := initRepo(t)
	addAndCommit(t, r, "first", map[string]string{"keep.txt": "k", "change.txt": "v1", "drop.txt": "d"})
	writeFile(t, r, "change.txt", "v2")
	writeFile(t, r, "new.txt", "n")
	if err := os.Remove(filepath.Join(r.RootDir, "drop.txt")); err != nil {
		t.Fatal(err)
	}

	res, err := r.AddAll()
	if err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	if !reflect.DeepEqual(res.Staged, []string{"change.txt", "new.txt"}) {
		t.Fatalf("Staged = %v", res.Staged)
	}
	if !reflect.DeepEqual(res.Removed, []string{"drop.txt"}) {
		t.Fatalf("Removed = %v", res.Removed)
	}

	st, err := r.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(st.Modified)+len(st.Untracked)+len(st.Deleted) != 0 {
		t.Fatalf("worktree not fully staged: %+v", st.Diff)
	}
	if len(st.Staged) != 3 {
		t.Fatalf("Staged = %+v", st.Staged)
	}
}

func TestAddAllParentReplacedByFile(t *testing.T) {
	r := initRepo(t)
	addAndCommit(t, r, "first", map[string]string{"a/b": "nested"})
	if err := os.RemoveAll(filepath.Join(r.RootDir, "a")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, r, "a", "now a file")

	res, err := r.AddAll()
	if err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	if !reflect.DeepEqual(res.Staged, []string{"a"}) || !reflect.DeepEqual(res.Removed, []string{"a/b"}) {
		t.Fatalf("Staged = %v Removed = %v", res.Staged, res.Removed)
	}
	if _, err := r.Commit(CommitOptions{Message: "flatten", Author: testAuthor}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestAddPathUnderReplacedParent(t *testing.T) {
	r := initRepo(t)
	addAndCommit(t, r, "first", map[string]string{"a/b": "nested"})
	if err := os.RemoveAll(filepath.Join(r.RootDir, "a")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, r, "a", "now a file")

	res, err := r.Add("a/b")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !reflect.DeepEqual(res.Removed, []string{"a/b"}) {
		t.Fatalf("Removed = %v", res.Removed)
	}
}
