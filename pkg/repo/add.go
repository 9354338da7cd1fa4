package repo

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/util"

	"github.com/odvcencio/pocket/pkg/index"
	"github.com/odvcencio/pocket/pkg/object"
	"github.com/odvcencio/pocket/pkg/worktree"
)

// AddResult lists what an add changed in the index.
type AddResult struct {
	Staged    []string // new or changed content
	Removed   []string // staged removals of files deleted on disk
	Unchanged int      // already staged with identical content
}

// Summary is a one-line description for the user.
func (r *AddResult) Summary() string {
	n := len(r.Staged) + len(r.Removed)
	switch {
	case n == 0:
		return "Nothing new to add"
	case len(r.Removed) == 0:
		return fmt.Sprintf("Added %d %s", len(r.Staged), plural(len(r.Staged), "file", "files"))
	default:
		return fmt.Sprintf("Added %d %s, staged %d %s",
			len(r.Staged), plural(len(r.Staged), "file", "files"),
			len(r.Removed), plural(len(r.Removed), "removal", "removals"))
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// Add stages the named paths. Paths are absolute or relative to the
// repository root; directories stage every non-ignored file beneath them.
// A tracked path that no longer exists on disk is staged as a removal.
// The index is only written if every path succeeds.
func (r *Repo) Add(paths ...string) (*AddResult, error) {
	const op = "add"
	if len(paths) == 0 {
		return nil, fail(op, KindInvalidArgument, errors.New("no paths given"))
	}
	release, err := r.lock(op)
	if err != nil {
		return nil, err
	}
	defer release()

	st, err := r.newStager()
	if err != nil {
		return nil, wrap(op, err)
	}
	for _, p := range paths {
		rel, err := r.relPath(p)
		if err != nil {
			return nil, wrap(op, err)
		}
		if err := st.addPath(rel); err != nil {
			return nil, wrap(op, err)
		}
	}
	if err := st.idx.Save(); err != nil {
		return nil, wrap(op, err)
	}
	r.logger.Debug("staged paths", "op", op, "staged", len(st.res.Staged), "removed", len(st.res.Removed))
	return st.res, nil
}

// AddAll stages every new and modified non-ignored file and stages the
// removal of tracked files that are gone from disk.
func (r *Repo) AddAll() (*AddResult, error) {
	const op = "add"
	release, err := r.lock(op)
	if err != nil {
		return nil, err
	}
	defer release()

	st, err := r.newStager()
	if err != nil {
		return nil, wrap(op, err)
	}
	files, err := worktree.Scan(r.FS, st.matcher)
	if err != nil {
		return nil, wrap(op, err)
	}
	present := make(map[string]struct{}, len(files))
	for _, f := range files {
		present[f.Path] = struct{}{}
		if err := st.stageFile(f); err != nil {
			return nil, wrap(op, err)
		}
	}
	for _, p := range st.idx.Paths() {
		if _, ok := present[p]; ok {
			continue
		}
		// Tracked files under ignored directories are not scanned.
		_, exists, err := worktree.Stat(r.FS, p)
		if err != nil {
			return nil, wrap(op, err)
		}
		if !exists {
			st.unstage(p)
		}
	}
	if err := st.idx.Save(); err != nil {
		return nil, wrap(op, err)
	}
	r.logger.Debug("staged all", "op", op, "staged", len(st.res.Staged), "removed", len(st.res.Removed))
	return st.res, nil
}

// relPath turns an absolute or root-relative path into a clean
// repository-relative one.
func (r *Repo) relPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidArgument)
	}
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(r.RootDir, filepath.Clean(p))
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrOutOfScope, p)
		}
		p = rel
	}
	rel, err := index.CleanPath(filepath.ToSlash(p), MetaDirName)
	if errors.Is(err, index.ErrOutOfScope) {
		return "", fmt.Errorf("%w: %s", ErrOutOfScope, p)
	}
	if errors.Is(err, index.ErrInvalidPath) && (p == "." || filepath.Clean(p) == ".") {
		// The root itself: stage everything.
		return "", nil
	}
	return rel, err
}

type stager struct {
	r       *Repo
	idx     *index.Index
	matcher *worktree.Matcher
	res     *AddResult
}

func (r *Repo) newStager() (*stager, error) {
	cfg, err := r.Config()
	if err != nil {
		return nil, err
	}
	m, err := r.matcher(cfg)
	if err != nil {
		return nil, err
	}
	idx, err := r.loadIndex()
	if err != nil {
		return nil, err
	}
	return &stager{r: r, idx: idx, matcher: m, res: &AddResult{}}, nil
}

// addPath stages rel, which is "" for the repository root.
func (st *stager) addPath(rel string) error {
	if rel == "" {
		return st.addDir("")
	}
	info, err := st.r.FS.Lstat(rel)
	if worktree.IsMissing(err) {
		return st.addMissing(rel)
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return st.addDir(rel)
	}
	f, ok, err := worktree.Stat(st.r.FS, rel)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is not a regular file", ErrInvalidArgument, rel)
	}
	st.dropConflicts(rel)
	return st.stageFile(f)
}

func (st *stager) addDir(dir string) error {
	files, err := worktree.ScanDir(st.r.FS, st.matcher, dir)
	if err != nil {
		return err
	}
	present := make(map[string]struct{}, len(files))
	for _, f := range files {
		present[f.Path] = struct{}{}
		st.dropConflicts(f.Path)
		if err := st.stageFile(f); err != nil {
			return err
		}
	}
	for _, p := range st.trackedUnder(dir) {
		if _, ok := present[p]; ok {
			continue
		}
		if _, exists, err := worktree.Stat(st.r.FS, p); err != nil {
			return err
		} else if !exists {
			st.unstage(p)
		}
	}
	return nil
}

// addMissing stages the removal of a tracked path, or fails when the path
// was never tracked.
func (st *stager) addMissing(rel string) error {
	tracked := st.trackedUnder(rel)
	if _, ok := st.idx.Entry(rel); ok {
		tracked = append(tracked, rel)
	}
	if len(tracked) == 0 {
		return fmt.Errorf("%w: %s", ErrFileNotFound, rel)
	}
	for _, p := range tracked {
		st.unstage(p)
	}
	return nil
}

func (st *stager) trackedUnder(dir string) []string {
	var out []string
	for _, p := range st.idx.Paths() {
		if dir == "" || strings.HasPrefix(p, dir+"/") {
			out = append(out, p)
		}
	}
	return out
}

// dropConflicts unstages entries that would make p both a file and a
// directory in the next tree.
func (st *stager) dropConflicts(p string) {
	for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
		if _, ok := st.idx.Entry(dir); ok {
			st.unstage(dir)
		}
	}
	for _, q := range st.trackedUnder(p) {
		st.unstage(q)
	}
}

func (st *stager) unstage(p string) {
	if st.idx.Unstage(p) {
		st.res.Removed = append(st.res.Removed, p)
	}
}

func (st *stager) stageFile(f worktree.File) error {
	if e, ok := st.idx.Entry(f.Path); ok && worktree.StatMatches(e, f) {
		st.res.Unchanged++
		return nil
	}
	data, err := util.ReadFile(st.r.FS, f.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", f.Path, err)
	}
	h, err := st.r.Store.WriteBlob(&object.Blob{Data: data})
	if err != nil {
		return err
	}
	prev, had := st.idx.Entry(f.Path)
	if err := st.idx.Stage(f.Path, h, index.Meta{Size: int64(len(data)), ModTime: f.ModTime, Mode: f.Mode}); err != nil {
		return err
	}
	if had && prev.BlobHash == h && worktree.NormalizeFileMode(prev.Mode) == worktree.NormalizeFileMode(f.Mode) {
		st.res.Unchanged++
		return nil
	}
	st.res.Staged = append(st.res.Staged, f.Path)
	return nil
}
