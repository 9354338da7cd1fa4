// Package refs stores named pointers to commits: HEAD, branch heads and
// remote-tracking refs. Every update is a compare-and-swap performed
// through a lock file and recorded in a per-ref reflog.
package refs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/pocket/pkg/lockfile"
	"github.com/odvcencio/pocket/pkg/object"
)

const (
	// DefaultBranch is the branch HEAD points at after init.
	DefaultBranch = "main"

	headsPrefix   = "refs/heads/"
	remotesPrefix = "refs/remotes/"
)

var (
	ErrUnbornBranch                    = errors.New("branch has no commits yet")
	ErrNotFound                        = errors.New("ref not found")
	ErrConflict                        = errors.New("ref compare-and-swap mismatch")
	ErrMissingObject                   = errors.New("ref target object missing")
	ErrInvalidName                     = errors.New("invalid ref name")
	ErrRefUpdatedButReflogAppendFailed = errors.New("ref updated but reflog append failed")
)

// ObjectChecker reports whether an object exists. *object.Store satisfies it.
type ObjectChecker interface {
	Has(object.Hash) bool
}

// Store manages the ref files under a metadata directory.
type Store struct {
	dir     string
	objects ObjectChecker
}

// New returns a Store rooted at dir. When objects is non-nil, updates are
// refused unless the new target exists in it.
func New(dir string, objects ObjectChecker) *Store {
	return &Store{dir: dir, objects: objects}
}

// ReflogError indicates the ref file update succeeded, but appending the
// corresponding reflog entry failed.
type ReflogError struct {
	Ref     string
	OldHash object.Hash
	NewHash object.Hash
	Err     error
}

func (e *ReflogError) Error() string {
	return fmt.Sprintf("update ref %q: %s (old=%s new=%s): %v",
		e.Ref, ErrRefUpdatedButReflogAppendFailed, e.OldHash, e.NewHash, e.Err)
}

func (e *ReflogError) Unwrap() error { return e.Err }

func (e *ReflogError) Is(target error) bool {
	return target == ErrRefUpdatedButReflogAppendFailed
}

// Init writes HEAD as a symbolic ref to branch and creates the refs layout.
func (s *Store) Init(branch string) error {
	if strings.TrimSpace(branch) == "" {
		branch = DefaultBranch
	}
	for _, d := range []string{
		filepath.Join(s.dir, "refs", "heads"),
		filepath.Join(s.dir, "refs", "remotes"),
		filepath.Join(s.dir, "logs", "refs", "heads"),
	} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("init refs: mkdir %s: %w", d, err)
		}
	}
	return s.SetHead(headsPrefix + branch)
}

// Head reads HEAD. If it is symbolic ("ref: refs/heads/main") the target
// ref name is returned, otherwise the raw detached hash.
func (s *Store) Head() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	content := strings.TrimRight(string(data), "\n")
	if strings.HasPrefix(content, "ref: ") {
		return strings.TrimPrefix(content, "ref: "), nil
	}
	return content, nil
}

// SetHead points HEAD at the given ref name.
func (s *Store) SetHead(ref string) error {
	if err := ValidateName(ref); err != nil {
		return fmt.Errorf("set head: %w", err)
	}
	lock, err := lockfile.Acquire(filepath.Join(s.dir, "HEAD.lock"))
	if err != nil {
		return fmt.Errorf("set head: lock: %w", err)
	}
	defer lock.Release()
	if _, err := lock.Write([]byte("ref: " + ref + "\n")); err != nil {
		return fmt.Errorf("set head: write: %w", err)
	}
	if err := lock.Commit(filepath.Join(s.dir, "HEAD")); err != nil {
		return fmt.Errorf("set head: %w", err)
	}
	return nil
}

// CurrentBranch returns the short name of the branch HEAD points at, or ""
// for a detached HEAD.
func (s *Store) CurrentBranch() (string, error) {
	head, err := s.Head()
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	if strings.HasPrefix(head, headsPrefix) {
		return strings.TrimPrefix(head, headsPrefix), nil
	}
	return "", nil
}

// FullName expands a short branch name to refs/heads/<name>. "HEAD" and
// names already under refs/ are returned as is.
func FullName(name string) string {
	name = strings.TrimSpace(name)
	if name == "HEAD" || strings.HasPrefix(name, "refs/") {
		return name
	}
	return headsPrefix + name
}

// RemoteTrackingName returns refs/remotes/<remote>/<branch>.
func RemoteTrackingName(remote, branch string) string {
	return remotesPrefix + remote + "/" + strings.TrimPrefix(branch, headsPrefix)
}

// ValidateName checks that name is a well-formed ref under refs/.
func ValidateName(name string) error {
	if !strings.HasPrefix(name, "refs/") {
		return fmt.Errorf("%w: %q is not under refs/", ErrInvalidName, name)
	}
	for _, part := range strings.Split(name, "/") {
		switch {
		case part == "", part == ".", part == "..":
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		case strings.HasSuffix(part, ".lock"):
			return fmt.Errorf("%w: %q ends in .lock", ErrInvalidName, name)
		case strings.ContainsAny(part, " \t\n\r\\:?*[~^\x00"):
			return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidName, name)
		}
	}
	return nil
}

// Resolve resolves a ref name to a commit hash.
//
//  1. "HEAD" follows the symbolic ref; a missing target is ErrUnbornBranch.
//  2. Names starting with "refs/" are read directly.
//  3. Anything else is tried as "refs/heads/<name>".
func (s *Store) Resolve(name string) (object.Hash, error) {
	if name == "HEAD" {
		head, err := s.Head()
		if err != nil {
			return "", err
		}
		if !strings.HasPrefix(head, "refs/") {
			// Detached HEAD: the value is a hash.
			return object.Hash(head), nil
		}
		h, err := s.read(head)
		if err != nil {
			return "", fmt.Errorf("resolve HEAD: %w", err)
		}
		if h == "" {
			return "", fmt.Errorf("resolve HEAD -> %s: %w", head, ErrUnbornBranch)
		}
		return h, nil
	}

	full := FullName(name)
	if err := ValidateName(full); err != nil {
		return "", fmt.Errorf("resolve ref: %w", err)
	}
	h, err := s.read(full)
	if err != nil {
		return "", fmt.Errorf("resolve ref %q: %w", name, err)
	}
	if h == "" {
		return "", fmt.Errorf("resolve ref %q: %w", name, ErrNotFound)
	}
	return h, nil
}

// Lookup is Resolve without the not-found error: a missing ref yields "".
func (s *Store) Lookup(name string) (object.Hash, error) {
	h, err := s.Resolve(name)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnbornBranch) {
		return "", nil
	}
	return h, err
}

// read returns "" for a missing ref file.
func (s *Store) read(full string) (object.Hash, error) {
	data, err := os.ReadFile(s.path(full))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}

func (s *Store) path(full string) string {
	return filepath.Join(s.dir, filepath.FromSlash(full))
}

// Update sets name to newHash if its current value equals expectedOld. An
// empty expectedOld means the ref must not exist yet. "HEAD" updates the
// branch HEAD points at. The new target must exist in the object store.
//
// The reflog is appended after the rename; if that fails the ref update
// stays committed and a *ReflogError is returned.
func (s *Store) Update(name string, newHash, expectedOld object.Hash, reason string) error {
	full := FullName(name)
	if full == "HEAD" {
		head, err := s.Head()
		if err != nil {
			return fmt.Errorf("update ref %q: %w", name, err)
		}
		if !strings.HasPrefix(head, "refs/") {
			return fmt.Errorf("update ref %q: HEAD is detached", name)
		}
		full = head
	}
	if err := ValidateName(full); err != nil {
		return fmt.Errorf("update ref: %w", err)
	}
	if err := object.ValidateHash(newHash); err != nil {
		return fmt.Errorf("update ref %q: %w", full, err)
	}
	if s.objects != nil && !s.objects.Has(newHash) {
		return fmt.Errorf("update ref %q -> %s: %w", full, newHash, ErrMissingObject)
	}

	refPath := s.path(full)
	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", full, err)
	}

	lock, err := lockfile.Acquire(refPath + ".lock")
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", full, err)
	}
	defer lock.Release()

	oldHash, err := s.read(full)
	if err != nil {
		return fmt.Errorf("update ref %q: read old hash: %w", full, err)
	}
	if oldHash != expectedOld {
		return fmt.Errorf("update ref %q: %w (expected %s, found %s)",
			full, ErrConflict, displayHash(expectedOld), displayHash(oldHash))
	}

	if _, err := lock.Write([]byte(string(newHash) + "\n")); err != nil {
		return fmt.Errorf("update ref %q: write: %w", full, err)
	}
	if err := lock.Commit(refPath); err != nil {
		return fmt.Errorf("update ref %q: %w", full, err)
	}

	if err := s.appendReflog(full, oldHash, newHash, reason); err != nil {
		return &ReflogError{Ref: full, OldHash: oldHash, NewHash: newHash, Err: err}
	}
	return nil
}

func displayHash(h object.Hash) string {
	if h == "" {
		return "<none>"
	}
	return h.Short()
}

// List lists refs under refs/<prefix>. Names are full, e.g. "refs/heads/main".
func (s *Store) List(prefix string) (map[string]object.Hash, error) {
	root := filepath.Join(s.dir, "refs")
	dir := root
	if p := strings.Trim(strings.TrimPrefix(prefix, "refs/"), "/"); p != "" {
		dir = filepath.Join(root, filepath.FromSlash(p))
	}

	out := make(map[string]object.Hash)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".lock") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out["refs/"+filepath.ToSlash(rel)] = object.Hash(strings.TrimSpace(string(data)))
		return nil
	})
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return out, nil
}

// ListRemoteTracking maps branch name to hash for refs/remotes/<remote>/.
func (s *Store) ListRemoteTracking(remote string) (map[string]object.Hash, error) {
	prefix := remotesPrefix + remote + "/"
	all, err := s.List(prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]object.Hash, len(all))
	for name, h := range all {
		out[strings.TrimPrefix(name, prefix)] = h
	}
	return out, nil
}
