package remote

import (
	"context"
	"fmt"

	"github.com/odvcencio/pocket/pkg/object"
)

// localTransport pushes into a repository on the same machine.
type localTransport struct {
	backend *Backend
}

var _ Transport = (*localTransport)(nil)

func (t *localTransport) Negotiate(ctx context.Context, ref string) (object.Hash, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return t.backend.Ref(ref)
}

func (t *localTransport) HasObjects(ctx context.Context, hashes []object.Hash) (map[object.Hash]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[object.Hash]bool, len(hashes))
	for _, h := range t.backend.Have(hashes) {
		out[h] = true
	}
	return out, nil
}

func (t *localTransport) SendObjects(ctx context.Context, records []ObjectRecord) error {
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.backend.Put(rec); err != nil {
			return fmt.Errorf("send object %d: %w", i, err)
		}
	}
	return nil
}

func (t *localTransport) UpdateRef(ctx context.Context, name string, old, new object.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.backend.UpdateRef(name, old, new)
}

func (t *localTransport) Close() error { return nil }
