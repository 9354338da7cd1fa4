package adapter

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrUnresolvable is returned by a PathResolver for URIs it cannot map to
// a filesystem path.
var ErrUnresolvable = errors.New("cannot resolve uri to a path")

// PathResolver maps a caller-supplied document URI to a filesystem path.
type PathResolver interface {
	Resolve(uri string) (string, error)
}

// FileResolver accepts file:// URIs and plain paths. Relative paths are
// returned unchanged and interpreted against the repository root.
type FileResolver struct{}

func (FileResolver) Resolve(uri string) (string, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", fmt.Errorf("%w: empty uri", ErrUnresolvable)
	}
	if !strings.Contains(uri, "://") {
		return filepath.FromSlash(uri), nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrUnresolvable, u.Scheme)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("%w: remote host %q", ErrUnresolvable, u.Host)
	}
	if u.Path == "" {
		return "", fmt.Errorf("%w: %s has no path", ErrUnresolvable, uri)
	}
	return filepath.FromSlash(u.Path), nil
}
