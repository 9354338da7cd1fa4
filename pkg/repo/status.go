package repo

import (
	"fmt"
	"strings"

	"github.com/odvcencio/pocket/pkg/object"
	"github.com/odvcencio/pocket/pkg/worktree"
)

// StatusReport describes the working tree relative to the index and HEAD.
type StatusReport struct {
	Branch string      // short branch name HEAD points at
	Head   object.Hash // "" when the branch is unborn
	*worktree.Diff
}

// Unborn reports whether the current branch has no commits.
func (s *StatusReport) Unborn() bool {
	return s.Head == ""
}

// Summary renders the report the way the command line prints it.
func (s *StatusReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "On branch %s\n", s.Branch)
	if s.Unborn() {
		b.WriteString("\nNo commits yet\n")
	}
	if s.Clean() {
		b.WriteString("nothing to commit, working tree clean\n")
		return b.String()
	}
	if len(s.Staged) > 0 {
		b.WriteString("\nChanges to be committed:\n")
		for _, c := range s.Staged {
			fmt.Fprintf(&b, "  %-10s %s\n", c.Kind.String()+":", c.Path)
		}
	}
	if len(s.Modified)+len(s.Deleted) > 0 {
		b.WriteString("\nChanges not staged for commit:\n")
		for _, p := range s.Modified {
			fmt.Fprintf(&b, "  %-10s %s\n", "modified:", p)
		}
		for _, p := range s.Deleted {
			fmt.Fprintf(&b, "  %-10s %s\n", "deleted:", p)
		}
	}
	if len(s.Untracked) > 0 {
		b.WriteString("\nUntracked files:\n")
		for _, p := range s.Untracked {
			fmt.Fprintf(&b, "  %s\n", p)
		}
	}
	return b.String()
}

// Status compares the working tree, the index and HEAD. It only reads.
func (r *Repo) Status() (*StatusReport, error) {
	const op = "status"
	branch, err := r.Refs.CurrentBranch()
	if err != nil {
		return nil, wrap(op, err)
	}
	_, head, err := r.headState()
	if err != nil {
		return nil, wrap(op, err)
	}
	tree, err := r.headTree(head)
	if err != nil {
		return nil, wrap(op, err)
	}
	headFiles, err := r.flattenTree(tree)
	if err != nil {
		return nil, wrap(op, err)
	}

	cfg, err := r.Config()
	if err != nil {
		return nil, err
	}
	m, err := r.matcher(cfg)
	if err != nil {
		return nil, wrap(op, err)
	}
	idx, err := r.loadIndex()
	if err != nil {
		return nil, wrap(op, err)
	}
	d, err := worktree.ComputeDiff(r.FS, m, idx.Map(), headFiles)
	if err != nil {
		return nil, wrap(op, err)
	}
	return &StatusReport{Branch: branch, Head: head, Diff: d}, nil
}
