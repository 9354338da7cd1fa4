package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultDiscards(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Stderr: &buf})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	assert.Empty(t, buf.String())
}

func TestNewVerboseWritesStderr(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Verbose: true, Stderr: &buf})
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("staged", "path", "a.txt")
	assert.Contains(t, buf.String(), "msg=staged")
	assert.Contains(t, buf.String(), "path=a.txt")
}

func TestNewFileAndConsole(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "pocket.log")
	logger, closer, err := New(Options{Verbose: true, Stderr: &buf, File: path})
	require.NoError(t, err)

	logger.With("op", "commit").Info("done")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "op=commit")
	assert.Contains(t, buf.String(), "op=commit")
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))
	l := Discard()
	assert.Same(t, l, OrDiscard(l))
}
