// Package index implements the staging area: a persisted mapping from
// repository-relative path to the staged blob and the file metadata seen
// when it was staged.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/odvcencio/pocket/pkg/object"
)

const formatVersion = 1

var (
	// ErrOutOfScope is returned for paths that escape the repository root.
	ErrOutOfScope = errors.New("path outside repository")
	// ErrInvalidPath is returned for empty paths and metadata paths.
	ErrInvalidPath = errors.New("invalid index path")
	// ErrMissingBlob is returned when staging a blob the object store lacks.
	ErrMissingBlob = errors.New("staged blob not in object store")
)

// BlobChecker reports whether a blob exists. *object.Store satisfies it.
type BlobChecker interface {
	Has(object.Hash) bool
}

// Entry records the staged state of a single file.
type Entry struct {
	Path     string      `json:"path"`
	BlobHash object.Hash `json:"blob_hash"`
	Mode     string      `json:"mode,omitempty"`
	Size     int64       `json:"size"`
	ModTime  int64       `json:"mod_time"` // unix nanoseconds
}

// Meta is the file metadata captured at staging time.
type Meta struct {
	Size    int64
	ModTime time.Time
	Mode    string
}

type file struct {
	Version int               `json:"version"`
	Entries map[string]*Entry `json:"entries"`
}

// Index is the in-memory staging area. It is safe for concurrent use;
// concurrent Stage calls for one path keep the last write.
type Index struct {
	mu      sync.Mutex
	fs      billy.Filesystem
	name    string
	metaDir string
	blobs   BlobChecker
	entries map[string]*Entry
}

// Load reads the index stored at name on fs. A missing file yields an
// empty index. metaDir names the repository metadata directory, which can
// never be staged. blobs may be nil to skip the blob existence check.
func Load(fs billy.Filesystem, name, metaDir string, blobs BlobChecker) (*Index, error) {
	idx := &Index{
		fs:      fs,
		name:    name,
		metaDir: metaDir,
		blobs:   blobs,
		entries: make(map[string]*Entry),
	}
	data, err := util.ReadFile(fs, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return idx, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("read index: unmarshal: %w", err)
	}
	if f.Version > formatVersion {
		return nil, fmt.Errorf("read index: unsupported version %d", f.Version)
	}
	for p, e := range f.Entries {
		if e == nil {
			continue
		}
		e.Path = p
		idx.entries[p] = e
	}
	return idx, nil
}

// Save atomically writes the index via temp file + rename.
func (x *Index) Save() error {
	x.mu.Lock()
	f := file{Version: formatVersion, Entries: x.entries}
	data, err := json.MarshalIndent(f, "", "  ")
	x.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write index: marshal: %w", err)
	}

	dir := path.Dir(x.name)
	tmp, err := x.fs.TempFile(dir, ".index-tmp-")
	if err != nil {
		return fmt.Errorf("write index: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		x.fs.Remove(tmpName)
		return fmt.Errorf("write index: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		x.fs.Remove(tmpName)
		return fmt.Errorf("write index: close: %w", err)
	}
	if err := x.fs.Rename(tmpName, x.name); err != nil {
		x.fs.Remove(tmpName)
		return fmt.Errorf("write index: rename: %w", err)
	}
	return nil
}

// CleanPath normalizes p to a forward-slash repository-relative path.
func (x *Index) CleanPath(p string) (string, error) {
	return CleanPath(p, x.metaDir)
}

// CleanPath normalizes p to a forward-slash repository-relative path and
// rejects paths that leave the root or point into metaDir.
func CleanPath(p, metaDir string) (string, error) {
	raw := strings.ReplaceAll(p, "\\", "/")
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.HasPrefix(raw, "/") {
		return "", fmt.Errorf("%w: %q is absolute", ErrOutOfScope, p)
	}
	clean := path.Clean(raw)
	if clean == "." {
		return "", fmt.Errorf("%w: %q names the repository root", ErrInvalidPath, p)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrOutOfScope, p)
	}
	if metaDir != "" && (clean == metaDir || strings.HasPrefix(clean, metaDir+"/")) {
		return "", fmt.Errorf("%w: %q is inside %s", ErrInvalidPath, p, metaDir)
	}
	return clean, nil
}

// Stage inserts or overwrites the entry for p.
func (x *Index) Stage(p string, blob object.Hash, meta Meta) error {
	clean, err := x.CleanPath(p)
	if err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	if err := object.ValidateHash(blob); err != nil {
		return fmt.Errorf("stage %q: %w", clean, err)
	}
	if x.blobs != nil && !x.blobs.Has(blob) {
		return fmt.Errorf("stage %q -> %s: %w", clean, blob.Short(), ErrMissingBlob)
	}
	mode := meta.Mode
	if mode != object.TreeModeExecutable {
		mode = object.TreeModeFile
	}
	var mtime int64
	if !meta.ModTime.IsZero() {
		mtime = meta.ModTime.UnixNano()
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries[clean] = &Entry{
		Path:     clean,
		BlobHash: blob,
		Mode:     mode,
		Size:     meta.Size,
		ModTime:  mtime,
	}
	return nil
}

// Unstage removes p and reports whether it was present.
func (x *Index) Unstage(p string) bool {
	clean, err := x.CleanPath(p)
	if err != nil {
		return false
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.entries[clean]
	delete(x.entries, clean)
	return ok
}

// Entry returns a copy of the entry for p.
func (x *Index) Entry(p string) (Entry, bool) {
	clean, err := x.CleanPath(p)
	if err != nil {
		return Entry{}, false
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.entries[clean]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Snapshot returns copies of all entries sorted by path.
func (x *Index) Snapshot() []Entry {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]Entry, 0, len(x.entries))
	for _, e := range x.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Map returns the entries keyed by path.
func (x *Index) Map() map[string]Entry {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make(map[string]Entry, len(x.entries))
	for p, e := range x.entries {
		out[p] = *e
	}
	return out
}

// Paths returns the staged paths in sorted order.
func (x *Index) Paths() []string {
	snap := x.Snapshot()
	out := make([]string, len(snap))
	for i, e := range snap {
		out[i] = e.Path
	}
	return out
}

// Len returns the number of staged entries.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}
