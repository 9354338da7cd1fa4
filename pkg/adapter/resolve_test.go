package adapter

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileResolver(t *testing.T) {
	var r FileResolver
	tests := []struct {
		uri  string
		want string
	}{
		{"a.txt", "a.txt"},
		{"dir/b.txt", filepath.FromSlash("dir/b.txt")},
		{"/abs/c.txt", filepath.FromSlash("/abs/c.txt")},
		{"file:///abs/d%20e.txt", filepath.FromSlash("/abs/d e.txt")},
		{"file://localhost/abs/f.txt", filepath.FromSlash("/abs/f.txt")},
	}
	for _, tt := range tests {
		got, err := r.Resolve(tt.uri)
		require.NoError(t, err, tt.uri)
		assert.Equal(t, tt.want, got, tt.uri)
	}

	for _, uri := range []string{"", "  ", "content://com.android/doc/1", "file://server/share/x", "https://example.com/a"} {
		_, err := r.Resolve(uri)
		assert.True(t, errors.Is(err, ErrUnresolvable), "uri %q: %v", uri, err)
	}
}
