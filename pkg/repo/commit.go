package repo

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/pocket/pkg/object"
	"github.com/odvcencio/pocket/pkg/refs"
)

// CommitSigner signs canonical commit payload bytes and returns an encoded
// signature string to be persisted in CommitObj.Signature.
type CommitSigner func(payload []byte) (string, error)

// CommitOptions describes a commit.
type CommitOptions struct {
	Message string
	Author  object.Signature
	Signer  CommitSigner // optional
	When    time.Time    // defaults to now
}

// CommitResult describes a created commit.
type CommitResult struct {
	Hash   object.Hash
	Parent object.Hash // "" for a root commit
	Branch string
	Files  int
	Commit *object.CommitObj
}

// Summary is a one-line description for the user.
func (r *CommitResult) Summary() string {
	root := ""
	if r.Parent == "" {
		root = " (root-commit)"
	}
	subject, _, _ := strings.Cut(r.Commit.Message, "\n")
	return fmt.Sprintf("[%s%s %s] %s", r.Branch, root, r.Hash.Short(), subject)
}

// now is replaced in tests.
var now = time.Now

// Commit records the index as a new commit on the current branch.
//
// A blank message fails with EmptyMessage before anything is written. An
// index identical to HEAD's tree, or an empty index on an unborn branch,
// fails with NothingStaged. The branch is moved with a compare-and-swap
// against the HEAD read at the start, so an interleaved commit yields
// RefConflict.
func (r *Repo) Commit(opts CommitOptions) (*CommitResult, error) {
	const op = "commit"
	msg := strings.TrimSpace(opts.Message)
	if msg == "" {
		return nil, fail(op, KindEmptyMessage, nil)
	}
	author := object.Signature{Name: strings.TrimSpace(opts.Author.Name), Email: strings.TrimSpace(opts.Author.Email)}
	if author.Name == "" {
		return nil, fail(op, KindInvalidArgument, errors.New("author name is required"))
	}
	if strings.ContainsAny(author.Name+author.Email, "<>\n") {
		return nil, fail(op, KindInvalidArgument, fmt.Errorf("author %q contains reserved characters", author.String()))
	}

	release, err := r.lock(op)
	if err != nil {
		return nil, err
	}
	defer release()

	branchRef, parent, err := r.headState()
	if err != nil {
		return nil, wrap(op, err)
	}
	if !strings.HasPrefix(branchRef, "refs/heads/") {
		return nil, fail(op, KindInvalidArgument, fmt.Errorf("HEAD is detached at %s", branchRef))
	}

	idx, err := r.loadIndex()
	if err != nil {
		return nil, wrap(op, err)
	}
	entries := idx.Snapshot()
	if len(entries) == 0 && parent == "" {
		return nil, fail(op, KindNothingStaged, nil)
	}
	sortForTree(entries)
	tree, err := r.buildTree(entries)
	if err != nil {
		return nil, wrap(op, err)
	}
	if parent != "" {
		parentTree, err := r.headTree(parent)
		if err != nil {
			return nil, wrap(op, err)
		}
		if parentTree == tree {
			return nil, fail(op, KindNothingStaged, nil)
		}
	}

	when := opts.When
	if when.IsZero() {
		when = now()
	}
	c := &object.CommitObj{
		TreeHash:  tree,
		Author:    author,
		Timestamp: when.Unix(),
		Timezone:  when.Format("-0700"),
		Message:   msg,
	}
	if parent != "" {
		c.Parents = []object.Hash{parent}
	}
	if opts.Signer != nil {
		sig, err := opts.Signer(object.CommitSigningPayload(c))
		if err != nil {
			return nil, fail(op, KindInvalidArgument, fmt.Errorf("sign commit: %w", err))
		}
		c.Signature = sig
	}

	h, err := r.Store.WriteCommit(c)
	if err != nil {
		return nil, wrap(op, err)
	}
	subject, _, _ := strings.Cut(msg, "\n")
	reason := "commit: " + subject
	if parent == "" {
		reason = "commit (initial): " + subject
	}
	err = r.Refs.Update(branchRef, h, parent, reason)
	switch {
	case errors.Is(err, refs.ErrRefUpdatedButReflogAppendFailed):
		r.logger.Warn("reflog append failed", "op", op, "ref", branchRef, "error", err)
	case errors.Is(err, refs.ErrConflict):
		return nil, fail(op, KindRefConflict, err)
	case err != nil:
		return nil, wrap(op, err)
	}

	res := &CommitResult{
		Hash:   h,
		Parent: parent,
		Branch: strings.TrimPrefix(branchRef, "refs/heads/"),
		Files:  len(entries),
		Commit: c,
	}
	r.logger.Info("committed", "op", op, "hash", h.Short(), "branch", res.Branch, "files", res.Files)
	return res, nil
}

// LogEntry is one commit in Log output.
type LogEntry struct {
	Hash   object.Hash
	Commit *object.CommitObj
}

// Log returns up to limit commits of first-parent history from HEAD,
// newest first. limit <= 0 means all.
func (r *Repo) Log(limit int) ([]LogEntry, error) {
	const op = "log"
	_, head, err := r.headState()
	if err != nil {
		return nil, wrap(op, err)
	}
	if head == "" {
		return nil, fail(op, KindUnbornBranch, nil)
	}
	hashes, commits, err := r.Store.FirstParentLog(head, limit)
	if err != nil {
		return nil, wrap(op, err)
	}
	out := make([]LogEntry, len(hashes))
	for i := range hashes {
		out[i] = LogEntry{Hash: hashes[i], Commit: commits[i]}
	}
	return out, nil
}

// Reflog returns up to limit recorded transitions of ref, newest first.
// An empty ref means the current branch.
func (r *Repo) Reflog(ref string, limit int) ([]refs.ReflogEntry, error) {
	entries, err := r.Refs.ReadReflog(ref, limit)
	if err != nil {
		return nil, wrap("reflog", err)
	}
	return entries, nil
}

// VerifyResult reports an object store integrity check.
type VerifyResult struct {
	Checked  int
	Problems []object.VerifyProblem
}

// Verify re-hashes every stored object and checks its references.
func (r *Repo) Verify() (*VerifyResult, error) {
	problems, checked, err := r.Store.Verify()
	if err != nil {
		return nil, wrap("verify", err)
	}
	return &VerifyResult{Checked: checked, Problems: problems}, nil
}
