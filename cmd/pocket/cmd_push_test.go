package main

import (
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/pocket/pkg/remote"
	"github.com/odvcencio/pocket/pkg/repo"
)

func TestPushCredentials(t *testing.T) {
	isolate(t)
	a := &app{settings: newSettings()}

	creds, err := a.pushCredentials("", "", "")
	require.NoError(t, err)
	assert.Nil(t, creds)

	creds, err = a.pushCredentials("", "", " tok ")
	require.NoError(t, err)
	assert.Equal(t, &remote.Credentials{Password: "tok"}, creds)

	t.Setenv("POCKET_USERNAME", "alice")
	t.Setenv("POCKET_PASSWORD", "env-secret")
	creds, err = a.pushCredentials("", "", "")
	require.NoError(t, err)
	assert.Equal(t, &remote.Credentials{Username: "alice", Password: "env-secret"}, creds)

	creds, err = a.pushCredentials("bob", "flag-secret", "")
	require.NoError(t, err)
	assert.Equal(t, &remote.Credentials{Username: "bob", Password: "flag-secret"}, creds)
}

func TestPushOverHTTPWithCredentials(t *testing.T) {
	isolate(t)
	backend, err := remote.OpenBackend(filepath.Join(t.TempDir(), "served"), nil)
	require.NoError(t, err)
	ts := httptest.NewServer(remote.NewServer(backend, &remote.Credentials{Username: "alice", Password: "pw"}, nil))
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	mustRun(t, "-C", dir, "init")
	writeFile(t, dir, "a.txt", "hello")
	mustRun(t, "-C", dir, "add", "a.txt")
	mustRun(t, "-C", dir, "commit", "-m", "first")
	mustRun(t, "-C", dir, "remote", "add", "origin", ts.URL)

	_, err = run(t, "-C", dir, "push", "-u", "alice", "-p", "wrong")
	assert.Equal(t, repo.KindAuthenticationFailed, repo.KindOf(err))
	assert.Equal(t, 4, exitCode(err))

	out := mustRun(t, "-C", dir, "push", "-u", "alice", "-p", "pw")
	assert.Contains(t, out, "Pushed new branch main to origin")
	_, err = backend.Ref("main")
	assert.NoError(t, err)
}

func TestPushWithoutRemote(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	mustRun(t, "-C", dir, "init")
	writeFile(t, dir, "a.txt", "hello")
	mustRun(t, "-C", dir, "add", "a.txt")
	mustRun(t, "-C", dir, "commit", "-m", "first")

	_, err := run(t, "-C", dir, "push")
	assert.True(t, errors.Is(err, repo.ErrNoRemoteConfigured), "err = %v", err)
}
