// Package repo ties the object store, index, working tree and ref store
// into repository operations: init, add, status, commit and push.
//
// A Repo is a stateless handle. Every operation loads what it needs from
// disk and writes it back before returning, so handles can be created and
// dropped freely.
package repo

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/odvcencio/pocket/pkg/config"
	"github.com/odvcencio/pocket/pkg/index"
	"github.com/odvcencio/pocket/pkg/lockfile"
	"github.com/odvcencio/pocket/pkg/logging"
	"github.com/odvcencio/pocket/pkg/object"
	"github.com/odvcencio/pocket/pkg/refs"
	"github.com/odvcencio/pocket/pkg/remote"
	"github.com/odvcencio/pocket/pkg/worktree"
)

// MetaDirName is the metadata directory at the repository root.
const MetaDirName = remote.MetaDirName

const (
	indexFile = "index"
	lockFile  = "lock"
)

// Repo is an opened repository.
type Repo struct {
	RootDir string           // working tree root
	MetaDir string           // RootDir/.pocket
	FS      billy.Filesystem // working tree, rooted at RootDir
	Store   *object.Store
	Refs    *refs.Store

	logger *slog.Logger
}

// Options configures Init and Open.
type Options struct {
	Logger *slog.Logger
}

// InitResult reports what Init did.
type InitResult struct {
	Repo               *Repo
	AlreadyInitialized bool
}

// Summary is a one-line description for the user.
func (r *InitResult) Summary() string {
	if r.AlreadyInitialized {
		return "Repository already exists at " + r.Repo.RootDir
	}
	return "Initialized empty repository in " + r.Repo.MetaDir
}

// Init creates a repository at path, creating the directory if needed. An
// existing repository is left untouched and reported through
// InitResult.AlreadyInitialized.
func Init(path string) (*InitResult, error) {
	return InitWith(path, Options{})
}

// InitWith is Init with options.
func InitWith(path string, opts Options) (*InitResult, error) {
	const op = "init"
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, fail(op, KindInvalidArgument, err)
	}
	if fi, err := os.Stat(root); err == nil && !fi.IsDir() {
		return nil, fail(op, KindInvalidArgument, fmt.Errorf("%s is not a directory", root))
	}
	meta := filepath.Join(root, MetaDirName)
	if fi, err := os.Stat(meta); err == nil && fi.IsDir() {
		r := newRepo(root, opts)
		r.logger.Info("repository already initialised", "op", op, "path", root)
		return &InitResult{Repo: r, AlreadyInitialized: true}, nil
	}

	for _, d := range []string{root, filepath.Join(meta, "objects")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fail(op, KindIOFailure, err)
		}
	}
	r := newRepo(root, opts)
	if err := r.Refs.Init(refs.DefaultBranch); err != nil {
		return nil, wrap(op, err)
	}
	if err := config.Default().Save(r.configPath()); err != nil {
		return nil, wrap(op, err)
	}
	r.logger.Info("repository initialised", "op", op, "path", root)
	return &InitResult{Repo: r}, nil
}

// Open finds the repository containing path by walking upward.
func Open(path string) (*Repo, error) {
	return OpenWith(path, Options{})
}

// OpenWith is Open with options.
func OpenWith(path string, opts Options) (*Repo, error) {
	const op = "open"
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fail(op, KindInvalidArgument, err)
	}
	cur := abs
	for {
		fi, err := os.Stat(filepath.Join(cur, MetaDirName))
		if err == nil && fi.IsDir() {
			return newRepo(cur, opts), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fail(op, KindNotARepository, fmt.Errorf("%s", abs))
		}
		cur = parent
	}
}

func newRepo(root string, opts Options) *Repo {
	meta := filepath.Join(root, MetaDirName)
	store := object.NewStore(osfs.New(meta))
	return &Repo{
		RootDir: root,
		MetaDir: meta,
		FS:      osfs.New(root),
		Store:   store,
		Refs:    refs.New(meta, store),
		logger:  logging.OrDiscard(opts.Logger).With("repo", root),
	}
}

func (r *Repo) configPath() string {
	return filepath.Join(r.MetaDir, config.FileName)
}

// Config loads the repository config.
func (r *Repo) Config() (*config.Config, error) {
	cfg, err := config.Load(r.configPath())
	if err != nil {
		return nil, wrap("config", err)
	}
	return cfg, nil
}

func (r *Repo) loadIndex() (*index.Index, error) {
	return index.Load(osfs.New(r.MetaDir), indexFile, MetaDirName, r.Store)
}

func (r *Repo) matcher(cfg *config.Config) (*worktree.Matcher, error) {
	var extra []string
	if cfg != nil {
		extra = cfg.Core.Ignore
	}
	return worktree.LoadMatcher(r.FS, MetaDirName, extra)
}

// lock takes the repository-wide lock for a mutating operation. The
// returned release func must be deferred.
func (r *Repo) lock(op string) (func(), error) {
	l, err := lockfile.Acquire(filepath.Join(r.MetaDir, lockFile))
	if err != nil {
		if errors.Is(err, lockfile.ErrTimeout) {
			return nil, fail(op, KindTimeout, fmt.Errorf("repository is locked by another operation: %w", err))
		}
		return nil, fail(op, KindIOFailure, err)
	}
	return func() {
		if err := l.Release(); err != nil {
			r.logger.Warn("release repository lock", "op", op, "error", err)
		}
	}, nil
}

// headState returns the branch HEAD names and its commit, "" when unborn.
func (r *Repo) headState() (branchRef string, head object.Hash, err error) {
	branchRef, err = r.Refs.Head()
	if err != nil {
		return "", "", err
	}
	head, err = r.Refs.Lookup("HEAD")
	if err != nil {
		return "", "", err
	}
	return branchRef, head, nil
}
