package remote

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"

	"github.com/odvcencio/pocket/pkg/object"
)

type commitParts struct {
	commit, tree, blob object.Hash
}

func memObjects() *object.Store {
	return object.NewStore(memfs.New())
}

// writeCommit stores a one-file snapshot on top of parent ("" for a root).
func writeCommit(t *testing.T, store *object.Store, parent object.Hash, content string) commitParts {
	t.Helper()
	blob, err := store.WriteBlob(&object.Blob{Data: []byte(content)})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	tree, err := store.WriteTree(&object.TreeObj{Entries: []object.TreeEntry{
		{Name: "main.txt", Kind: object.TypeBlob, Hash: blob},
	}})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	c := &object.CommitObj{
		TreeHash:  tree,
		Author:    object.Signature{Name: "Alice", Email: "alice@example.com"},
		Timestamp: 1700000000,
		Message:   content,
	}
	if parent != "" {
		c.Parents = []object.Hash{parent}
	}
	commit, err := store.WriteCommit(c)
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	return commitParts{commit: commit, tree: tree, blob: blob}
}

// copyObjects pushes every object reachable from root into dst.
func copyObjects(t *testing.T, src *object.Store, dst Transport, root object.Hash) {
	t.Helper()
	recs, err := CollectObjectsForPush(src, []object.Hash{root}, nil)
	if err != nil {
		t.Fatalf("CollectObjectsForPush: %v", err)
	}
	if err := dst.SendObjects(t.Context(), recs); err != nil {
		t.Fatalf("SendObjects: %v", err)
	}
}
