package main

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/pocket/pkg/config"
	"github.com/odvcencio/pocket/pkg/repo"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("POCKET_CONFIG", filepath.Join(t.TempDir(), "absent.toml"))
	t.Setenv("POCKET_AUTHOR_NAME", "")
	t.Setenv("POCKET_AUTHOR_EMAIL", "")
	t.Setenv("POCKET_USERNAME", "")
	t.Setenv("POCKET_PASSWORD", "")
	t.Setenv("USER", "tester")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "pocket %s\n%s", strings.Join(args, " "), out)
	return out
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestInitAddCommitPush(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	origin := filepath.Join(t.TempDir(), "origin")

	out := mustRun(t, "-C", dir, "init")
	assert.Contains(t, out, "Initialized empty repository")
	out = mustRun(t, "-C", dir, "init")
	assert.Contains(t, out, "already exists")

	writeFile(t, dir, "a.txt", "hello")
	writeFile(t, dir, "src/main.go", "package main")

	out = mustRun(t, "-C", dir, "status")
	assert.Contains(t, out, "No commits yet")
	assert.Contains(t, out, "Untracked files:")

	out = mustRun(t, "-C", dir, "add", "a.txt", "src")
	assert.Equal(t, "Added 2 files\n", out)

	out = mustRun(t, "-C", dir, "status", "--short")
	assert.Equal(t, "A  a.txt\nA  src/main.go\n", out)

	out = mustRun(t, "-C", dir, "commit", "-m", "first")
	assert.Regexp(t, `^\[main \(root-commit\) [0-9a-f]{8}\] first\n$`, out)

	out = mustRun(t, "-C", dir, "status")
	assert.Contains(t, out, "nothing to commit, working tree clean")

	out = mustRun(t, "-C", dir, "log")
	assert.Contains(t, out, "Author: tester")
	assert.Contains(t, out, "    first")

	out = mustRun(t, "-C", dir, "remote", "add", "origin", origin)
	assert.Contains(t, out, "Added remote origin")
	out = mustRun(t, "-C", dir, "remote")
	assert.Equal(t, "origin\t"+origin+"\n", out)

	out = mustRun(t, "-C", dir, "push")
	assert.Contains(t, out, "Pushed new branch main to origin")
	out = mustRun(t, "-C", dir, "push", "origin")
	assert.Contains(t, out, "Everything up-to-date")

	out = mustRun(t, "-C", dir, "reflog")
	assert.Contains(t, out, "commit (initial): first")

	out = mustRun(t, "-C", dir, "verify")
	assert.Contains(t, out, "ok: verified 5 object(s), 0 signed commit(s)")
}

func TestCommitFailures(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	mustRun(t, "-C", dir, "init")

	_, err := run(t, "-C", dir, "commit", "-m", "nothing")
	assert.True(t, errors.Is(err, repo.ErrNothingStaged), "err = %v", err)
	assert.Equal(t, 2, exitCode(err))

	writeFile(t, dir, "a.txt", "a")
	mustRun(t, "-C", dir, "add", "--all")
	_, err = run(t, "-C", dir, "commit")
	assert.Equal(t, repo.KindEmptyMessage, repo.KindOf(err))

	_, err = run(t, "-C", dir, "add")
	assert.Error(t, err)
	_, err = run(t, "-C", t.TempDir(), "status")
	assert.Equal(t, repo.KindNotARepository, repo.KindOf(err))
}

func TestCommitAuthorResolution(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	mustRun(t, "-C", dir, "init")

	writeFile(t, dir, "a.txt", "1")
	mustRun(t, "-C", dir, "add", "a.txt")
	t.Setenv("POCKET_AUTHOR_NAME", "Env Person")
	t.Setenv("POCKET_AUTHOR_EMAIL", "env@example.com")
	mustRun(t, "-C", dir, "commit", "-m", "from env")
	out := mustRun(t, "-C", dir, "log", "-n", "1")
	assert.Contains(t, out, "Author: Env Person <env@example.com>")

	cfgPath := filepath.Join(dir, repo.MetaDirName, config.FileName)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	cfg.User = config.User{Name: "Repo Person", Email: "repo@example.com"}
	require.NoError(t, cfg.Save(cfgPath))

	writeFile(t, dir, "a.txt", "2")
	mustRun(t, "-C", dir, "add", "a.txt")
	mustRun(t, "-C", dir, "commit", "-m", "from repo config")
	out = mustRun(t, "-C", dir, "log", "--oneline")
	assert.Contains(t, out, "from repo config")
	out = mustRun(t, "-C", dir, "log", "-n", "1")
	assert.Contains(t, out, "Author: Repo Person <repo@example.com>")

	writeFile(t, dir, "a.txt", "3")
	mustRun(t, "-C", dir, "add", "a.txt")
	mustRun(t, "-C", dir, "commit", "-m", "from flag", "--author", "Flag Person <flag@example.com>")
	out = mustRun(t, "-C", dir, "log", "-n", "1")
	assert.Contains(t, out, "Author: Flag Person <flag@example.com>")
}

func TestSignedCommitVerifies(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	mustRun(t, "-C", dir, "init")

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600))

	writeFile(t, dir, "a.txt", "signed")
	mustRun(t, "-C", dir, "add", "a.txt")
	mustRun(t, "-C", dir, "commit", "-m", "signed", "--key", keyPath)

	out := mustRun(t, "-C", dir, "log")
	assert.Contains(t, out, "Signed: yes")
	out = mustRun(t, "-C", dir, "verify")
	assert.Contains(t, out, "1 signed commit(s)")
}

func TestVersion(t *testing.T) {
	isolate(t)
	out := mustRun(t, "version")
	assert.Equal(t, "pocket "+version+"\n", out)
}

func TestAddFromSubdirectory(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	mustRun(t, "-C", dir, "init")
	writeFile(t, dir, "x.txt", "root")
	writeFile(t, dir, "sub/x.txt", "nested")

	sub := filepath.Join(dir, "sub")
	out := mustRun(t, "-C", sub, "add", "x.txt")
	assert.Equal(t, "Added 1 file\n", out)

	out = mustRun(t, "-C", dir, "status", "--short")
	assert.Equal(t, "A  sub/x.txt\n?? x.txt\n", out)

	mustRun(t, "-C", sub, "add", "../x.txt")
	out = mustRun(t, "-C", dir, "status", "--short")
	assert.Equal(t, "A  sub/x.txt\nA  x.txt\n", out)
}
