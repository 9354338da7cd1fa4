// Package adapter is a facade for embedding callers that want a terminal
// success-or-failure value from every repository operation instead of Go
// errors and result structs.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odvcencio/pocket/pkg/logging"
	"github.com/odvcencio/pocket/pkg/object"
	"github.com/odvcencio/pocket/pkg/remote"
	"github.com/odvcencio/pocket/pkg/repo"
)

// Outcome is the terminal result of a Handle operation.
type Outcome struct {
	OK      bool
	Kind    repo.Kind // KindUnknown when OK
	Message string
}

func (o Outcome) String() string {
	if o.OK {
		return o.Message
	}
	return fmt.Sprintf("%s: %s", o.Kind, o.Message)
}

// Handle runs repository operations rooted at Root. It holds no open
// state; each call opens the repository afresh.
type Handle struct {
	Root     string
	Resolver PathResolver // default FileResolver
	Logger   *slog.Logger
}

type summarizer interface {
	Summary() string
}

func (h *Handle) options() repo.Options {
	return repo.Options{Logger: logging.OrDiscard(h.Logger)}
}

func (h *Handle) resolver() PathResolver {
	if h.Resolver == nil {
		return FileResolver{}
	}
	return h.Resolver
}

func (h *Handle) open() (*repo.Repo, error) {
	return repo.OpenWith(h.Root, h.options())
}

// run executes fn and converts its result into an Outcome. A panic inside
// fn becomes an IOFailure outcome.
func (h *Handle) run(op string, fn func() (summarizer, error)) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			logging.OrDiscard(h.Logger).Error("operation panicked", "op", op, "panic", p)
			out = Outcome{Kind: repo.KindIOFailure, Message: fmt.Sprintf("%s: internal error: %v", op, p)}
		}
	}()
	res, err := fn()
	if err != nil {
		return Outcome{Kind: repo.KindOf(err), Message: err.Error()}
	}
	return Outcome{OK: true, Message: res.Summary()}
}

// Init creates the repository at Root.
func (h *Handle) Init() Outcome {
	return h.run("init", func() (summarizer, error) {
		return repo.InitWith(h.Root, h.options())
	})
}

// Add stages the files or directories named by uris.
func (h *Handle) Add(uris ...string) Outcome {
	return h.run("add", func() (summarizer, error) {
		if len(uris) == 0 {
			return nil, &repo.Error{Op: "add", Kind: repo.KindInvalidArgument, Err: errors.New("no files selected")}
		}
		paths := make([]string, 0, len(uris))
		for _, u := range uris {
			p, err := h.resolver().Resolve(u)
			if err != nil {
				return nil, &repo.Error{Op: "add", Kind: repo.KindInvalidArgument, Err: err}
			}
			paths = append(paths, p)
		}
		r, err := h.open()
		if err != nil {
			return nil, err
		}
		return r.Add(paths...)
	})
}

// AddAll stages every change in the working tree.
func (h *Handle) AddAll() Outcome {
	return h.run("add", func() (summarizer, error) {
		r, err := h.open()
		if err != nil {
			return nil, err
		}
		return r.AddAll()
	})
}

// Status reports the working tree state.
func (h *Handle) Status() Outcome {
	return h.run("status", func() (summarizer, error) {
		r, err := h.open()
		if err != nil {
			return nil, err
		}
		return r.Status()
	})
}

// Commit records the staged changes.
func (h *Handle) Commit(message string, author object.Signature) Outcome {
	return h.run("commit", func() (summarizer, error) {
		r, err := h.open()
		if err != nil {
			return nil, err
		}
		return r.Commit(repo.CommitOptions{Message: message, Author: author})
	})
}

// Push sends the current branch to remoteName. creds may be nil; a token
// is passed as the password.
func (h *Handle) Push(ctx context.Context, remoteName string, creds *remote.Credentials) Outcome {
	return h.run("push", func() (summarizer, error) {
		r, err := h.open()
		if err != nil {
			return nil, err
		}
		return r.Push(ctx, repo.PushOptions{Remote: remoteName, Credentials: creds})
	})
}

// AddRemote registers a named remote.
func (h *Handle) AddRemote(name, url string) Outcome {
	return h.run("remote add", func() (summarizer, error) {
		r, err := h.open()
		if err != nil {
			return nil, err
		}
		return r.AddRemote(name, url)
	})
}
