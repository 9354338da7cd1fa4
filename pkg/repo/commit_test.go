package repo

import (
	"errors"
	"testing"
	"time"

	"github.com/odvcencio/pocket/pkg/object"
	"github.com/odvcencio/pocket/pkg/refs"
)

func TestCommitFirstCommitScenario(t *testing.T) {
	r := initRepo(t)
	res := addAndCommit(t, r, "first", map[string]string{"a.txt": "hello"})

	head, err := r.Refs.Resolve("HEAD")
	if err != nil {
		t.Fatalf("Resolve HEAD: %v", err)
	}
	if head != res.Hash {
		t.Fatalf("HEAD = %s, want %s", head, res.Hash)
	}
	c, err := r.Store.ReadCommit(head)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if c.Message != "first" || c.Author != testAuthor || len(c.Parents) != 0 {
		t.Fatalf("commit = %+v", c)
	}
	tree, err := r.Store.ReadTree(c.TreeHash)
	if err != nil {
		t.Fatalf("ReadTree: %v", err)
	}
	if len(tree.Entries) != 1 {
		t.Fatalf("tree has %d entries, want 1", len(tree.Entries))
	}
	e := tree.Entries[0]
	if e.Name != "a.txt" || e.Hash != object.HashObject(object.TypeBlob, []byte("hello")) {
		t.Fatalf("entry = %+v", e)
	}
	if res.Parent != "" || res.Branch != "main" {
		t.Fatalf("result = %+v", res)
	}
}

func TestCommitEmptyMessageWritesNothing(t *testing.T) {
	r := initRepo(t)
	first := addAndCommit(t, r, "first", map[string]string{"a.txt": "1"})
	writeFile(t, r, "a.txt", "2")
	if _, err := r.Add("a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	before := objectCount(t, r)

	_, err := r.Commit(CommitOptions{Message: "  \n\t", Author: testAuthor})
	wantKind(t, err, KindEmptyMessage)

	if after := objectCount(t, r); after != before {
		t.Fatalf("objects written: %d -> %d", before, after)
	}
	head, _ := r.Refs.Resolve("HEAD")
	if head != first.Hash {
		t.Fatalf("HEAD moved to %s", head)
	}
}

func TestCommitNothingStaged(t *testing.T) {
	r := initRepo(t)
	_, err := r.Commit(CommitOptions{Message: "empty", Author: testAuthor})
	wantKind(t, err, KindNothingStaged)

	first := addAndCommit(t, r, "first", map[string]string{"a.txt": "1"})
	_, err = r.Commit(CommitOptions{Message: "again", Author: testAuthor})
	wantKind(t, err, KindNothingStaged)

	head, _ := r.Refs.Resolve("HEAD")
	if head != first.Hash {
		t.Fatalf("HEAD moved to %s", head)
	}
}

func TestCommitChainsParentsAndNestedTrees(t *testing.T) {
	r := initRepo(t)
	first := addAndCommit(t, r, "first", map[string]string{"README": "r"})
	second := addAndCommit(t, r, "second", map[string]string{
		"pkg/a/a.go":  "package a",
		"pkg/a-b.txt": "dash",
		"pkg/b.go":    "package pkg",
	})
	if second.Parent != first.Hash {
		t.Fatalf("Parent = %s, want %s", second.Parent, first.Hash)
	}

	files, err := r.flattenTree(second.Commit.TreeHash)
	if err != nil {
		t.Fatalf("flattenTree: %v", err)
	}
	for _, p := range []string{"README", "pkg/a/a.go", "pkg/a-b.txt", "pkg/b.go"} {
		if _, ok := files[p]; !ok {
			t.Fatalf("missing %s in %v", p, files)
		}
	}
	if len(files) != 4 {
		t.Fatalf("tree has %d files", len(files))
	}

	log, err := r.Log(0)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(log) != 2 || log[0].Hash != second.Hash || log[1].Hash != first.Hash {
		t.Fatalf("Log = %+v", log)
	}
}

func TestCommitRequiresAuthor(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, "a.txt", "a")
	if _, err := r.Add("a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, err := r.Commit(CommitOptions{Message: "m"})
	wantKind(t, err, KindInvalidArgument)
	_, err = r.Commit(CommitOptions{Message: "m", Author: object.Signature{Name: "Eve <evil>"}})
	wantKind(t, err, KindInvalidArgument)
}

func TestCommitSignerAndTimestamp(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, "a.txt", "a")
	if _, err := r.Add("a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("", 2*3600))
	var payload []byte
	res, err := r.Commit(CommitOptions{
		Message: "signed",
		Author:  testAuthor,
		When:    when,
		Signer: func(p []byte) (string, error) {
			payload = p
			return "sig-abc", nil
		},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	c, err := r.Store.ReadCommit(res.Hash)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if c.Signature != "sig-abc" || c.Timestamp != when.Unix() || c.Timezone != "+0200" {
		t.Fatalf("commit = %+v", c)
	}
	if string(object.CommitSigningPayload(c)) != string(payload) {
		t.Fatal("signed payload differs from stored commit payload")
	}

	writeFile(t, r, "a.txt", "b")
	if _, err := r.Add("a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, err = r.Commit(CommitOptions{
		Message: "bad signer",
		Author:  testAuthor,
		Signer:  func([]byte) (string, error) { return "", errors.New("agent unavailable") },
	})
	wantKind(t, err, KindInvalidArgument)
}

func TestCommitRefConflict(t *testing.T) {
	r := initRepo(t)
	first := addAndCommit(t, r, "first", map[string]string{"a.txt": "1"})
	second := addAndCommit(t, r, "second", map[string]string{"a.txt": "2"})

	// Another writer moves the branch after we read it.
	if err := r.Refs.Update("main", first.Hash, second.Hash, "test rewind"); err != nil {
		t.Fatalf("rewind: %v", err)
	}
	err := r.Refs.Update("main", second.Hash, second.Hash, "stale writer")
	if !errors.Is(err, refs.ErrConflict) {
		t.Fatalf("stale update = %v, want ErrConflict", err)
	}
	if KindOf(wrap("commit", err)) != KindRefConflict {
		t.Fatalf("ErrConflict classified as %s", KindOf(wrap("commit", err)))
	}
}

func TestLogOnUnbornBranch(t *testing.T) {
	r := initRepo(t)
	_, err := r.Log(10)
	wantKind(t, err, KindUnbornBranch)
}

func TestReflogRecordsCommits(t *testing.T) {
	r := initRepo(t)
	addAndCommit(t, r, "first", map[string]string{"a.txt": "1"})
	second := addAndCommit(t, r, "second", map[string]string{"a.txt": "2"})

	entries, err := r.Reflog("", 0)
	if err != nil {
		t.Fatalf("Reflog: %v", err)
	}
	if len(entries) != 2 || entries[0].NewHash != second.Hash || entries[0].Reason != "commit: second" {
		t.Fatalf("Reflog = %+v", entries)
	}
}

func TestVerifyCleanRepository(t *testing.T) {
	r := initRepo(t)
	addAndCommit(t, r, "first", map[string]string{"a.txt": "1"})
	res, err := r.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Checked != 3 || len(res.Problems) != 0 {
		t.Fatalf("Verify = %+v", res)
	}
}
