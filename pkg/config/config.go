// Package config reads and writes the repository-local config.toml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the config file name inside the metadata directory.
const FileName = "config.toml"

// DefaultRemoteName is preferred when no remote is named explicitly.
const DefaultRemoteName = "origin"

var (
	ErrDuplicateRemote = errors.New("remote already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNoRemote        = errors.New("no remote configured")
)

var remoteNameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Config stores repository-local settings.
type Config struct {
	Core    Core              `toml:"core"`
	User    User              `toml:"user"`
	Remotes map[string]Remote `toml:"remote,omitempty"`
}

// Core holds working-tree settings.
type Core struct {
	// Ignore holds extra ignore rules applied before .pocketignore.
	Ignore []string `toml:"ignore,omitempty"`
}

// User is the default commit identity.
type User struct {
	Name  string `toml:"name,omitempty"`
	Email string `toml:"email,omitempty"`
}

// Remote is a named push destination.
type Remote struct {
	URL string `toml:"url"`
}

// Default returns the config written by init.
func Default() *Config {
	return &Config{Remotes: make(map[string]Remote)}
}

// Load reads path. A missing file returns Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("read config: %s: %w", path, err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = make(map[string]Remote)
	}
	return cfg, nil
}

// Save atomically writes the config to path.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}

// ValidateRemoteName checks that name can be used as a ref path segment.
func ValidateRemoteName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: remote name is required", ErrInvalidArgument)
	}
	if !remoteNameRE.MatchString(name) || strings.Contains(name, "..") || strings.HasSuffix(name, ".lock") {
		return fmt.Errorf("%w: invalid remote name %q", ErrInvalidArgument, name)
	}
	return nil
}

// AddRemote registers a new remote. Both fields are required and the name
// must not be taken. A password embedded in the URL is dropped; credentials
// are never written to the config file.
func (c *Config) AddRemote(name, rawURL string) error {
	name = strings.TrimSpace(name)
	rawURL = strings.TrimSpace(rawURL)
	if err := ValidateRemoteName(name); err != nil {
		return fmt.Errorf("add remote: %w", err)
	}
	if rawURL == "" {
		return fmt.Errorf("add remote: %w: remote URL is required", ErrInvalidArgument)
	}
	if _, ok := c.Remotes[name]; ok {
		return fmt.Errorf("add remote %q: %w", name, ErrDuplicateRemote)
	}
	if c.Remotes == nil {
		c.Remotes = make(map[string]Remote)
	}
	c.Remotes[name] = Remote{URL: stripPassword(rawURL)}
	return nil
}

func stripPassword(rawURL string) string {
	if !strings.Contains(rawURL, "://") {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	if _, ok := u.User.Password(); !ok {
		return rawURL
	}
	if name := u.User.Username(); name != "" {
		u.User = url.User(name)
	} else {
		u.User = nil
	}
	return u.String()
}

// Remote returns the named remote.
func (c *Config) Remote(name string) (Remote, error) {
	r, ok := c.Remotes[strings.TrimSpace(name)]
	if !ok || strings.TrimSpace(r.URL) == "" {
		return Remote{}, fmt.Errorf("remote %q: %w", name, ErrNoRemote)
	}
	return r, nil
}

// RemoteNames returns the configured remote names, sorted.
func (c *Config) RemoteNames() []string {
	names := make([]string, 0, len(c.Remotes))
	for n := range c.Remotes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultRemote picks "origin" if configured, otherwise the only remote.
func (c *Config) DefaultRemote() (string, error) {
	if _, ok := c.Remotes[DefaultRemoteName]; ok {
		return DefaultRemoteName, nil
	}
	switch names := c.RemoteNames(); len(names) {
	case 0:
		return "", ErrNoRemote
	case 1:
		return names[0], nil
	default:
		return "", fmt.Errorf("%w: several remotes and none named %q; choose one of %s",
			ErrNoRemote, DefaultRemoteName, strings.Join(names, ", "))
	}
}
