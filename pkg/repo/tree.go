package repo

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/odvcencio/pocket/pkg/index"
	"github.com/odvcencio/pocket/pkg/object"
	"github.com/odvcencio/pocket/pkg/worktree"
)

// buildTree writes the tree objects for a flat index snapshot and returns
// the root hash. An empty snapshot yields the empty tree.
func (r *Repo) buildTree(entries []index.Entry) (object.Hash, error) {
	return r.buildTreeDir(entries, "")
}

// buildTreeDir builds the tree for directory prefix. entries must be
// sorted by path and all lie under prefix.
func (r *Repo) buildTreeDir(entries []index.Entry, prefix string) (object.Hash, error) {
	var out []object.TreeEntry
	for i := 0; i < len(entries); {
		rel := strings.TrimPrefix(entries[i].Path, prefix)
		name, _, isDir := strings.Cut(rel, "/")
		if !isDir {
			e := entries[i]
			out = append(out, object.TreeEntry{
				Name: name,
				Mode: worktree.NormalizeFileMode(e.Mode),
				Kind: object.TypeBlob,
				Hash: e.BlobHash,
			})
			i++
			continue
		}

		// Gather the run of entries inside this subdirectory.
		childPrefix := prefix + name + "/"
		j := i
		for j < len(entries) && strings.HasPrefix(entries[j].Path, childPrefix) {
			j++
		}
		sub, err := r.buildTreeDir(entries[i:j], childPrefix)
		if err != nil {
			return "", err
		}
		out = append(out, object.TreeEntry{
			Name: name,
			Mode: object.TreeModeDir,
			Kind: object.TypeTree,
			Hash: sub,
		})
		i = j
	}

	h, err := r.Store.WriteTree(&object.TreeObj{Entries: out})
	if err != nil {
		return "", fmt.Errorf("write tree (prefix=%q): %w", prefix, err)
	}
	return h, nil
}

// sortForTree orders entries so that every directory's files form one
// contiguous run, which plain string order does not guarantee ("a/b" sorts
// after "a.txt" but "a-b" sorts between them).
func sortForTree(entries []index.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return treeOrderKey(entries[i].Path) < treeOrderKey(entries[j].Path)
	})
}

// treeOrderKey maps "/" below every other byte so paths sharing a directory
// stay adjacent.
func treeOrderKey(p string) string {
	return strings.ReplaceAll(p, "/", "\x00")
}

// flattenTree returns every file under tree h keyed by full path.
func (r *Repo) flattenTree(h object.Hash) (map[string]worktree.HeadEntry, error) {
	out := make(map[string]worktree.HeadEntry)
	if h == "" {
		return out, nil
	}
	if err := r.flattenTreeRec(h, "", out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) flattenTreeRec(h object.Hash, prefix string, out map[string]worktree.HeadEntry) error {
	tr, err := r.Store.ReadTree(h)
	if err != nil {
		return fmt.Errorf("flatten tree: read %s: %w", h, err)
	}
	for _, e := range tr.Entries {
		full := e.Name
		if prefix != "" {
			full = path.Join(prefix, e.Name)
		}
		if e.IsDir() {
			if err := r.flattenTreeRec(e.Hash, full, out); err != nil {
				return err
			}
			continue
		}
		out[full] = worktree.HeadEntry{Hash: e.Hash, Mode: e.Mode}
	}
	return nil
}

// headTree returns the tree of commit head, or "" for an unborn branch.
func (r *Repo) headTree(head object.Hash) (object.Hash, error) {
	if head == "" {
		return "", nil
	}
	c, err := r.Store.ReadCommit(head)
	if err != nil {
		return "", fmt.Errorf("read HEAD commit: %w", err)
	}
	return c.TreeHash, nil
}
