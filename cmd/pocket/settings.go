package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/odvcencio/pocket/pkg/config"
	"github.com/odvcencio/pocket/pkg/object"
)

const defaultPushTimeout = 60 * time.Second

// settings holds user-level configuration: flags, POCKET_* environment
// variables and ~/.config/pocket/config.toml, in that order of precedence.
type settings struct {
	v *viper.Viper
}

func newSettings() *settings {
	v := viper.New()
	v.SetEnvPrefix("POCKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	v.SetDefault("push.timeout", defaultPushTimeout)
	return &settings{v: v}
}

func (s *settings) bindFlags(flags *pflag.FlagSet) {
	_ = s.v.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = s.v.BindPFlag("log.file", flags.Lookup("log-file"))
}

// load reads the settings file if there is one. POCKET_CONFIG overrides
// its location.
func (s *settings) load() error {
	path := s.v.GetString("config")
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(dir, "pocket", "config.toml")
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	s.v.SetConfigFile(path)
	s.v.SetConfigType("toml")
	if err := s.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read settings %s: %w", path, err)
	}
	return nil
}

func (s *settings) verbose() bool {
	return s.v.GetBool("verbose")
}

func (s *settings) logFile() string {
	return s.v.GetString("log.file")
}

func (s *settings) pushTimeout() time.Duration {
	return s.v.GetDuration("push.timeout")
}

func (s *settings) username() string {
	return s.v.GetString("username")
}

func (s *settings) password() string {
	return s.v.GetString("password")
}

// author resolves the commit identity: an explicit "Name <email>" flag,
// then the repository [user] section, then settings, then $USER.
func (s *settings) author(flag string, cfg *config.Config) object.Signature {
	if strings.TrimSpace(flag) != "" {
		return object.ParseSignature(flag)
	}
	var sig object.Signature
	if cfg != nil {
		sig = object.Signature{Name: cfg.User.Name, Email: cfg.User.Email}
	}
	if strings.TrimSpace(sig.Name) == "" {
		sig.Name = s.v.GetString("author.name")
	}
	if strings.TrimSpace(sig.Email) == "" {
		sig.Email = s.v.GetString("author.email")
	}
	if strings.TrimSpace(sig.Name) == "" {
		sig.Name = os.Getenv("USER")
	}
	return sig
}
