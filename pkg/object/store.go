package object

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/patrickmn/go-cache"
)

var (
	// ErrNotFound is returned when an object is not present in the store.
	ErrNotFound = errors.New("object not found")
	// ErrCorrupt is returned when a stored object has a malformed envelope.
	ErrCorrupt = errors.New("object corrupt")
	// ErrDanglingReference is returned when a tree or commit refers to an
	// object that has not been written yet.
	ErrDanglingReference = errors.New("dangling object reference")
)

const (
	cacheTTL     = 10 * time.Minute
	cacheCleanup = 15 * time.Minute
)

type cachedObject struct {
	objType ObjectType
	data    []byte
}

// Store is a content-addressed object store with a 2-character fan-out
// directory layout: objects/ab/cdef0123...
type Store struct {
	fs    billy.Filesystem
	cache *cache.Cache
}

// NewStore creates a Store on fs, which should be rooted at the repository
// metadata directory. The objects/ subdirectory is created lazily on first
// write.
func NewStore(fs billy.Filesystem) *Store {
	return &Store{
		fs:    fs,
		cache: cache.New(cacheTTL, cacheCleanup),
	}
}

// objectPath returns the filesystem path for a given hash.
func objectPath(h Hash) string {
	return path.Join("objects", string(h[:2]), string(h[2:]))
}

// Has reports whether the store contains an object with the given hash.
func (s *Store) Has(h Hash) bool {
	if ValidateHash(h) != nil {
		return false
	}
	if _, ok := s.cache.Get(string(h)); ok {
		return true
	}
	_, err := s.fs.Stat(objectPath(h))
	return err == nil
}

// Write stores an object and returns its content hash. The on-disk format
// is "type len\0content". Writes are atomic: data is written to a temp
// file and then renamed into place.
func (s *Store) Write(objType ObjectType, data []byte) (Hash, error) {
	if _, err := ParseObjectType(string(objType)); err != nil {
		return "", fmt.Errorf("object write: %w", err)
	}
	h := HashObject(objType, data)

	// Fast path: already exists.
	if s.Has(h) {
		return h, nil
	}

	envelope := fmt.Sprintf("%s %d\x00", objType, len(data))
	raw := append([]byte(envelope), data...)

	dir := path.Join("objects", string(h[:2]))
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("object write mkdir: %w", err)
	}

	tmp, err := s.fs.TempFile(dir, ".tmp-")
	if err != nil {
		return "", fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return "", fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return "", fmt.Errorf("object write close: %w", err)
	}
	if err := s.fs.Rename(tmpName, objectPath(h)); err != nil {
		s.fs.Remove(tmpName)
		return "", fmt.Errorf("object write rename: %w", err)
	}

	s.remember(h, objType, data)
	return h, nil
}

// Read retrieves an object by hash, returning its type and raw content.
// The returned slice must not be modified.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	if err := ValidateHash(h); err != nil {
		return "", nil, fmt.Errorf("object read %q: %w", h, err)
	}
	if v, ok := s.cache.Get(string(h)); ok {
		obj := v.(cachedObject)
		return obj.objType, obj.data, nil
	}

	raw, err := util.ReadFile(s.fs, objectPath(h))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("object read %s: %w", h, ErrNotFound)
		}
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}

	objType, content, err := parseEnvelope(raw)
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}
	s.remember(h, objType, content)
	return objType, content, nil
}

func (s *Store) remember(h Hash, objType ObjectType, data []byte) {
	s.cache.Set(string(h), cachedObject{objType: objType, data: data}, cache.DefaultExpiration)
}

// parseEnvelope splits "type len\0content".
func parseEnvelope(raw []byte) (ObjectType, []byte, error) {
	nulIdx := bytes.IndexByte(raw, 0)
	if nulIdx < 0 {
		return "", nil, fmt.Errorf("%w: no NUL in envelope", ErrCorrupt)
	}
	header := string(raw[:nulIdx])
	content := raw[nulIdx+1:]

	typeName, lenText, ok := cutSpace(header)
	if !ok {
		return "", nil, fmt.Errorf("%w: invalid header %q", ErrCorrupt, header)
	}
	objType, err := ParseObjectType(typeName)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	length, err := strconv.Atoi(lenText)
	if err != nil {
		return "", nil, fmt.Errorf("%w: invalid length %q", ErrCorrupt, lenText)
	}
	if len(content) != length {
		return "", nil, fmt.Errorf("%w: length mismatch (header=%d, actual=%d)", ErrCorrupt, length, len(content))
	}
	return objType, content, nil
}

func cutSpace(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

// ---------------------------------------------------------------------------
// Typed convenience methods
// ---------------------------------------------------------------------------

// WriteBlob serializes and stores a Blob.
func (s *Store) WriteBlob(b *Blob) (Hash, error) {
	return s.Write(TypeBlob, MarshalBlob(b))
}

// ReadBlob reads and deserializes a Blob.
func (s *Store) ReadBlob(h Hash) (*Blob, error) {
	data, err := s.readTyped(h, TypeBlob)
	if err != nil {
		return nil, err
	}
	return UnmarshalBlob(data)
}

// WriteTree serializes and stores a TreeObj. Every entry must point at an
// object already in the store.
func (s *Store) WriteTree(tr *TreeObj) (Hash, error) {
	data, err := MarshalTree(tr)
	if err != nil {
		return "", err
	}
	for _, e := range tr.Entries {
		if !s.Has(e.Hash) {
			return "", fmt.Errorf("write tree: entry %q -> %s: %w", e.Name, e.Hash, ErrDanglingReference)
		}
	}
	return s.Write(TypeTree, data)
}

// ReadTree reads and deserializes a TreeObj.
func (s *Store) ReadTree(h Hash) (*TreeObj, error) {
	data, err := s.readTyped(h, TypeTree)
	if err != nil {
		return nil, err
	}
	return UnmarshalTree(data)
}

// WriteCommit serializes and stores a CommitObj. The tree and all parents
// must already be in the store.
func (s *Store) WriteCommit(c *CommitObj) (Hash, error) {
	if err := ValidateHash(c.TreeHash); err != nil {
		return "", fmt.Errorf("write commit: tree: %w", err)
	}
	if objType, _, err := s.Read(c.TreeHash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("write commit: tree %s: %w", c.TreeHash, ErrDanglingReference)
		}
		return "", fmt.Errorf("write commit: %w", err)
	} else if objType != TypeTree {
		return "", fmt.Errorf("write commit: %s is a %s, not a tree", c.TreeHash, objType)
	}
	for _, p := range c.Parents {
		if !s.Has(p) {
			return "", fmt.Errorf("write commit: parent %s: %w", p, ErrDanglingReference)
		}
	}
	return s.Write(TypeCommit, MarshalCommit(c))
}

// ReadCommit reads and deserializes a CommitObj.
func (s *Store) ReadCommit(h Hash) (*CommitObj, error) {
	data, err := s.readTyped(h, TypeCommit)
	if err != nil {
		return nil, err
	}
	return UnmarshalCommit(data)
}

func (s *Store) readTyped(h Hash, want ObjectType) ([]byte, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != want {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, want)
	}
	return data, nil
}
