package object

import (
	"errors"
	"fmt"
)

// maxAncestryBFSSteps bounds IsAncestor so a corrupt parent cycle cannot
// spin forever.
const maxAncestryBFSSteps = 1_000_000

// ErrAncestryLimit is returned when an ancestry walk exceeds its step budget.
var ErrAncestryLimit = errors.New("ancestry traversal exceeded step limit")

// IsAncestor reports whether ancestor is reachable from descendant by
// following parent links. A commit is its own ancestor.
func (s *Store) IsAncestor(ancestor, descendant Hash) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	if ancestor == "" || descendant == "" {
		return false, nil
	}

	visited := map[Hash]struct{}{descendant: {}}
	queue := []Hash{descendant}
	steps := 0

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		steps++
		if steps > maxAncestryBFSSteps {
			return false, fmt.Errorf("is ancestor %s of %s: %w", ancestor.Short(), descendant.Short(), ErrAncestryLimit)
		}
		if cur == ancestor {
			return true, nil
		}

		commit, err := s.ReadCommit(cur)
		if err != nil {
			return false, fmt.Errorf("is ancestor: read %s: %w", cur, err)
		}
		for _, p := range commit.Parents {
			if p == "" {
				continue
			}
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			queue = append(queue, p)
		}
	}

	return false, nil
}

// FirstParentLog returns up to limit commits starting at head and following
// first parents. A limit <= 0 means no limit.
func (s *Store) FirstParentLog(head Hash, limit int) ([]Hash, []*CommitObj, error) {
	var hashes []Hash
	var commits []*CommitObj
	seen := make(map[Hash]struct{})
	for cur := head; cur != ""; {
		if limit > 0 && len(hashes) >= limit {
			break
		}
		if _, ok := seen[cur]; ok {
			return nil, nil, fmt.Errorf("log: parent cycle at %s", cur)
		}
		seen[cur] = struct{}{}
		c, err := s.ReadCommit(cur)
		if err != nil {
			return nil, nil, fmt.Errorf("log: read %s: %w", cur, err)
		}
		hashes = append(hashes, cur)
		commits = append(commits, c)
		if len(c.Parents) == 0 {
			break
		}
		cur = c.Parents[0]
	}
	return hashes, commits, nil
}
