package remote

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/odvcencio/pocket/pkg/logging"
	"github.com/odvcencio/pocket/pkg/object"
	"github.com/odvcencio/pocket/pkg/refs"
)

// MetaDirName is the metadata directory of a repository with a working
// tree. A directory without it is served as a bare repository.
const MetaDirName = ".pocket"

// Backend is the receiving side of a push: an object store and ref store
// on local disk. Server and the local transport both delegate to it.
type Backend struct {
	dir     string
	objects *object.Store
	refs    *refs.Store
	logger  *slog.Logger

	// mu serialises ref updates so the ancestry check and the CAS see the
	// same value.
	mu sync.Mutex
}

// OpenBackend opens the repository at dir. A repository with a working
// tree is used through its metadata directory; an empty or missing
// directory is initialised as a bare repository.
func OpenBackend(dir string, logger *slog.Logger) (*Backend, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}
	meta, err := backendMetaDir(dir)
	if err != nil {
		return nil, err
	}
	objects := object.NewStore(osfs.New(meta))
	b := &Backend{
		dir:     meta,
		objects: objects,
		refs:    refs.New(meta, objects),
		logger:  logging.OrDiscard(logger).With("backend", dir),
	}
	if _, err := os.Stat(filepath.Join(meta, "HEAD")); os.IsNotExist(err) {
		if err := b.refs.Init(refs.DefaultBranch); err != nil {
			return nil, fmt.Errorf("init bare repository: %w", err)
		}
		b.logger.Info("initialised bare repository")
	}
	return b, nil
}

func backendMetaDir(dir string) (string, error) {
	if fi, err := os.Stat(filepath.Join(dir, MetaDirName)); err == nil && fi.IsDir() {
		return filepath.Join(dir, MetaDirName), nil
	}
	if _, err := os.Stat(filepath.Join(dir, "HEAD")); err == nil {
		return dir, nil
	}
	entries, err := os.ReadDir(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("open backend: %w", err)
		}
		return dir, nil
	case err != nil:
		return "", fmt.Errorf("open backend: %w", err)
	case len(entries) > 0:
		return "", fmt.Errorf("open backend: %s is not a repository and not empty", dir)
	}
	return dir, nil
}

// Objects exposes the backend's object store.
func (b *Backend) Objects() *object.Store {
	return b.objects
}

// Ref returns the value of a full ref name, or ErrNoSuchRef.
func (b *Backend) Ref(name string) (object.Hash, error) {
	full := refs.FullName(name)
	if err := refs.ValidateName(full); err != nil {
		return "", err
	}
	h, err := b.refs.Lookup(full)
	if err != nil {
		return "", err
	}
	if h == "" {
		return "", fmt.Errorf("%s: %w", full, ErrNoSuchRef)
	}
	return h, nil
}

// Refs lists every ref by full name.
func (b *Backend) Refs() (map[string]object.Hash, error) {
	return b.refs.List("")
}

// Have returns the subset of hashes present in the store, sorted.
func (b *Backend) Have(hashes []object.Hash) []object.Hash {
	var out []object.Hash
	for _, h := range uniqueHashes(hashes) {
		if b.objects.Has(h) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Put verifies and stores a record. It returns true when the object was new.
func (b *Backend) Put(rec ObjectRecord) (bool, error) {
	if err := verifyRecord(rec); err != nil {
		return false, err
	}
	if b.objects.Has(rec.Hash) {
		return false, nil
	}
	if _, err := b.objects.Write(rec.Type, rec.Data); err != nil {
		return false, fmt.Errorf("store object %s: %w", rec.Hash, err)
	}
	return true, nil
}

// UpdateRef moves name from old to new. new and its whole object closure
// must be present; the update must fast-forward the current value; the
// current value must still equal old. A ref already at new is left alone
// and reported as success.
func (b *Backend) UpdateRef(name string, old, new object.Hash) error {
	full := refs.FullName(name)
	if err := refs.ValidateName(full); err != nil {
		return err
	}
	if err := object.ValidateHash(new); err != nil {
		return fmt.Errorf("%w: %v", ErrBadObject, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	current, err := b.refs.Lookup(full)
	if err != nil {
		return err
	}
	if current == new && current != old {
		// A replayed request whose first attempt already applied.
		b.logger.Debug("ref already at target", "ref", full, "new", new.Short())
		return nil
	}
	var stop map[object.Hash]struct{}
	if current != "" {
		stop, err = b.objects.ReachableSet([]object.Hash{current})
		if err != nil {
			return err
		}
	}
	missing, err := b.objects.MissingClosure(new, stop)
	if err != nil {
		return err
	}
	if missing != "" {
		return fmt.Errorf("%w: %s (first missing %s)", ErrMissingObjects, new.Short(), missing.Short())
	}

	if current != old {
		if current != "" {
			ok, err := b.objects.IsAncestor(current, new)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s is not an ancestor of %s", ErrNonFastForward, current.Short(), new.Short())
			}
		}
		return fmt.Errorf("%w: %s expected %s, found %s", ErrStaleRef, full, displayHash(old), displayHash(current))
	}
	if old != "" {
		ok, err := b.objects.IsAncestor(old, new)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s is not an ancestor of %s", ErrNonFastForward, old.Short(), new.Short())
		}
	}

	err = b.refs.Update(full, new, old, "push")
	if errors.Is(err, refs.ErrRefUpdatedButReflogAppendFailed) {
		b.logger.Warn("reflog append failed", "ref", full, "error", err)
		err = nil
	}
	if errors.Is(err, refs.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrStaleRef, err)
	}
	if err != nil {
		return err
	}
	b.logger.Info("ref updated", "ref", full, "old", displayHash(old), "new", new.Short())
	return nil
}

func displayHash(h object.Hash) string {
	if h == "" {
		return "<none>"
	}
	return h.Short()
}
