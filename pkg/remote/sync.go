package remote

import (
	"fmt"
	"strings"

	"github.com/odvcencio/pocket/pkg/object"
)

// CollectObjectsForPush returns objects reachable from roots excluding objects
// in stopRoots (and anything reachable from stopRoots). Stop roots missing
// from the local store are ignored.
func CollectObjectsForPush(store *object.Store, roots, stopRoots []object.Hash) ([]ObjectRecord, error) {
	roots = uniqueHashes(roots)
	if len(roots) == 0 {
		return nil, fmt.Errorf("at least one root hash is required")
	}

	stopSet, err := store.ReachableSet(uniqueHashes(stopRoots))
	if err != nil {
		return nil, err
	}

	seen := make(map[object.Hash]struct{})
	stack := make([]object.Hash, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}

	var out []ObjectRecord
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[h]; ok {
			continue
		}
		if _, stopped := stopSet[h]; stopped {
			continue
		}
		seen[h] = struct{}{}

		objType, data, err := store.Read(h)
		if err != nil {
			return nil, fmt.Errorf("read object %s: %w", h, err)
		}
		out = append(out, ObjectRecord{Hash: h, Type: objType, Data: data})

		refs, err := object.ReferencedHashes(objType, data)
		if err != nil {
			return nil, fmt.Errorf("parse object %s: %w", h, err)
		}
		// Push in reverse so the first reference is visited next.
		for i := len(refs) - 1; i >= 0; i-- {
			stack = append(stack, refs[i])
		}
	}
	return out, nil
}

// uniqueHashes trims, drops empties and de-duplicates while keeping order.
func uniqueHashes(in []object.Hash) []object.Hash {
	out := make([]object.Hash, 0, len(in))
	seen := make(map[object.Hash]struct{}, len(in))
	for _, h := range in {
		h = object.Hash(strings.TrimSpace(string(h)))
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
