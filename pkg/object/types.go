package object

import "fmt"

// Hash is a 64-character hex-encoded SHA-256 digest.
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
)

// ParseObjectType validates a serialized object type name.
func ParseObjectType(raw string) (ObjectType, error) {
	switch t := ObjectType(raw); t {
	case TypeBlob, TypeTree, TypeCommit:
		return t, nil
	default:
		return "", fmt.Errorf("unsupported object type %q", raw)
	}
}

const (
	// Tree mode constants compatible with Git's canonical mode strings.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
)

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object. Kind is TypeBlob for files and
// TypeTree for subdirectories.
type TreeEntry struct {
	Name string
	Mode string
	Kind ObjectType
	Hash Hash
}

// IsDir reports whether the entry points at a subtree.
func (e TreeEntry) IsDir() bool {
	return e.Kind == TypeTree
}

// TreeObj holds a sorted list of tree entries.
type TreeObj struct {
	Entries []TreeEntry // sorted by Name
}

// Signature identifies the author of a commit.
type Signature struct {
	Name  string
	Email string
}

// String renders the signature as "Name <email>".
func (s Signature) String() string {
	if s.Email == "" {
		return s.Name
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// CommitObj represents a commit pointing to a tree with metadata.
type CommitObj struct {
	TreeHash  Hash
	Parents   []Hash
	Author    Signature
	Timestamp int64
	Timezone  string // "+hhmm" / "-hhmm"
	Signature string
	Message   string
}
