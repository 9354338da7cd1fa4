package worktree

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/odvcencio/pocket/pkg/index"
	"github.com/odvcencio/pocket/pkg/object"
)

// ChangeKind classifies a staged change relative to HEAD.
type ChangeKind int

const (
	Added ChangeKind = iota + 1
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "new file"
	case Modified:
		return "modified"
	case Removed:
		return "deleted"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change is a path whose index entry differs from HEAD.
type Change struct {
	Path string
	Kind ChangeKind
}

// HeadEntry is a flattened file from the HEAD tree.
type HeadEntry struct {
	Hash object.Hash
	Mode string
}

// Diff is the working tree status. All slices are sorted by path.
type Diff struct {
	Staged    []Change // index vs HEAD
	Modified  []string // in index, on-disk content differs
	Untracked []string // on disk, in neither index nor HEAD
	Deleted   []string // in index, missing on disk
}

// Clean reports whether nothing is staged, modified, untracked or deleted.
func (d *Diff) Clean() bool {
	return len(d.Staged) == 0 && len(d.Modified) == 0 && len(d.Untracked) == 0 && len(d.Deleted) == 0
}

// StagedPaths returns the paths in Staged.
func (d *Diff) StagedPaths() []string {
	out := make([]string, len(d.Staged))
	for i, c := range d.Staged {
		out[i] = c.Path
	}
	return out
}

const racyCleanWindow = 2 * time.Second

// now is replaced in tests.
var now = time.Now

// ComputeDiff classifies every path in the working tree, the index and
// HEAD. It only reads; stale stat data in the index is not refreshed.
func ComputeDiff(fs billy.Filesystem, m *Matcher, idx map[string]index.Entry, head map[string]HeadEntry) (*Diff, error) {
	files, err := Scan(fs, m)
	if err != nil {
		return nil, err
	}
	onDisk := make(map[string]File, len(files))
	for _, f := range files {
		onDisk[f.Path] = f
	}

	d := &Diff{}

	// Index vs HEAD.
	for p, e := range idx {
		h, inHead := head[p]
		switch {
		case !inHead:
			d.Staged = append(d.Staged, Change{Path: p, Kind: Added})
		case h.Hash != e.BlobHash || NormalizeFileMode(h.Mode) != NormalizeFileMode(e.Mode):
			d.Staged = append(d.Staged, Change{Path: p, Kind: Modified})
		}
	}
	for p := range head {
		if _, ok := idx[p]; !ok {
			d.Staged = append(d.Staged, Change{Path: p, Kind: Removed})
		}
	}

	// Working tree vs index.
	for p, e := range idx {
		f, ok := onDisk[p]
		if !ok {
			// Tracked files stay tracked under ignored directories.
			f, ok, err = Stat(fs, p)
			if err != nil {
				return nil, fmt.Errorf("diff: stat %q: %w", p, err)
			}
		}
		if !ok {
			d.Deleted = append(d.Deleted, p)
			continue
		}
		changed, err := fileChanged(fs, e, f)
		if err != nil {
			return nil, fmt.Errorf("diff: %q: %w", p, err)
		}
		if changed {
			d.Modified = append(d.Modified, p)
		}
	}

	for p := range onDisk {
		_, inIndex := idx[p]
		_, inHead := head[p]
		if !inIndex && !inHead {
			d.Untracked = append(d.Untracked, p)
		}
	}

	sort.Slice(d.Staged, func(i, j int) bool { return d.Staged[i].Path < d.Staged[j].Path })
	sort.Strings(d.Modified)
	sort.Strings(d.Untracked)
	sort.Strings(d.Deleted)
	return d, nil
}

// fileChanged compares a working file to its index entry, hashing only
// when the stat data cannot prove equality.
func fileChanged(fs billy.Filesystem, e index.Entry, f File) (bool, error) {
	if NormalizeFileMode(e.Mode) != NormalizeFileMode(f.Mode) {
		return true, nil
	}
	if StatMatches(e, f) {
		return false, nil
	}
	h, err := HashFile(fs, f.Path)
	if err != nil {
		return false, err
	}
	return h != e.BlobHash, nil
}

// StatMatches reports whether size, mode and mtime prove the file is
// unchanged since it was staged. Coarse or very recent mtimes never do.
func StatMatches(e index.Entry, f File) bool {
	if e.Size != f.Size || e.ModTime == 0 {
		return false
	}
	if NormalizeFileMode(e.Mode) != NormalizeFileMode(f.Mode) {
		return false
	}
	mt := f.ModTime
	if mt.Nanosecond() == 0 {
		return false
	}
	n := now()
	if mt.After(n) || n.Sub(mt) < racyCleanWindow {
		return false
	}
	return e.ModTime == mt.UnixNano()
}
