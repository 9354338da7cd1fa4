package repo

import (
	"fmt"
	"strings"

	"github.com/odvcencio/pocket/pkg/config"
)

// RemoteInfo is a configured remote.
type RemoteInfo struct {
	Name string
	URL  string
}

// AddRemote registers a named remote URL. Both fields are required and the
// name must be unused.
func (r *Repo) AddRemote(name, url string) (*RemoteInfo, error) {
	const op = "remote add"
	release, err := r.lock(op)
	if err != nil {
		return nil, err
	}
	defer release()

	cfg, err := r.Config()
	if err != nil {
		return nil, err
	}
	if err := cfg.AddRemote(name, url); err != nil {
		return nil, wrap(op, err)
	}
	if err := cfg.Save(r.configPath()); err != nil {
		return nil, wrap(op, err)
	}
	name = strings.TrimSpace(name)
	rm, _ := cfg.Remote(name)
	info := &RemoteInfo{Name: name, URL: rm.URL}
	r.logger.Info("remote added", "op", op, "remote", name)
	return info, nil
}

// Summary is a one-line description for the user.
func (ri *RemoteInfo) Summary() string {
	return fmt.Sprintf("Added remote %s -> %s", ri.Name, ri.URL)
}

// Remotes lists the configured remotes by name.
func (r *Repo) Remotes() ([]RemoteInfo, error) {
	cfg, err := r.Config()
	if err != nil {
		return nil, err
	}
	names := cfg.RemoteNames()
	out := make([]RemoteInfo, 0, len(names))
	for _, n := range names {
		out = append(out, RemoteInfo{Name: n, URL: cfg.Remotes[n].URL})
	}
	return out, nil
}

// resolveRemote picks the remote to push to.
func (r *Repo) resolveRemote(cfg *config.Config, name string) (string, string, error) {
	if name == "" {
		def, err := cfg.DefaultRemote()
		if err != nil {
			return "", "", err
		}
		name = def
	}
	rm, err := cfg.Remote(name)
	if err != nil {
		return "", "", err
	}
	return name, rm.URL, nil
}
