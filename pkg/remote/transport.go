// Package remote moves objects and ref updates between a local repository
// and a remote one. A Transport is obtained with Dial; HTTP(S) URLs talk to
// a Server, file URLs and plain paths talk to a Backend directly.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/pocket/pkg/logging"
	"github.com/odvcencio/pocket/pkg/object"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultMaxAttempts = 3
)

// Transport is the push-side contract between a repository and its remote.
type Transport interface {
	// Negotiate returns the remote's current value for ref, or ErrNoSuchRef
	// when the remote has none.
	Negotiate(ctx context.Context, ref string) (object.Hash, error)
	// HasObjects reports which of hashes the remote already stores.
	HasObjects(ctx context.Context, hashes []object.Hash) (map[object.Hash]bool, error)
	// SendObjects uploads object records. Records are verified remotely.
	SendObjects(ctx context.Context, records []ObjectRecord) error
	// UpdateRef moves name from old to new. An empty old creates the ref.
	UpdateRef(ctx context.Context, name string, old, new object.Hash) error
	Close() error
}

// Credentials authenticate against an HTTP remote. A password with no
// username is sent as a bearer token.
type Credentials struct {
	Username string
	Password string
}

// Empty reports whether no credential was supplied.
func (c *Credentials) Empty() bool {
	return c == nil || (strings.TrimSpace(c.Username) == "" && c.Password == "")
}

// Options configures Dial.
type Options struct {
	Credentials *Credentials
	Timeout     time.Duration // HTTP client timeout (default 60s)
	MaxAttempts int           // retry attempts (default 3)
	Logger      *slog.Logger
	HTTPClient  *http.Client
}

// Dial opens a Transport for rawURL.
func Dial(rawURL string, opts Options) (Transport, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrUnsupportedURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	opts.Logger = logging.OrDiscard(opts.Logger)

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		if looksLikeSCP(rawURL) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedURL, rawURL)
		}
		return dialLocal(rawURL, opts)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return newHTTPTransport(u, opts)
	case "file":
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		return dialLocal(p, opts)
	default:
		// Windows drive letters parse as one-letter schemes.
		if len(u.Scheme) == 1 && filepath.VolumeName(rawURL) != "" {
			return dialLocal(rawURL, opts)
		}
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}
}

// looksLikeSCP matches "user@host:path" remotes, which would need SSH.
func looksLikeSCP(raw string) bool {
	colon := strings.Index(raw, ":")
	if colon <= 0 {
		return false
	}
	slash := strings.Index(raw, "/")
	return slash < 0 || colon < slash
}

func dialLocal(dir string, opts Options) (Transport, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrUnsupportedURL)
	}
	b, err := OpenBackend(dir, opts.Logger)
	if err != nil {
		return nil, err
	}
	return &localTransport{backend: b}, nil
}
