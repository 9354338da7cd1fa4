package object

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidTree is returned when a tree cannot be put into canonical form.
var ErrInvalidTree = errors.New("invalid tree")

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// MarshalTree serializes a TreeObj. Entries are sorted by Name for
// deterministic output. Each entry is one line:
//
//	mode kind hash<TAB>name
//
// The name is last so it may contain spaces.
func MarshalTree(tr *TreeObj) ([]byte, error) {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var buf bytes.Buffer
	for i, e := range sorted {
		if err := validateEntryName(e.Name); err != nil {
			return nil, err
		}
		if i > 0 && sorted[i-1].Name == e.Name {
			return nil, fmt.Errorf("%w: duplicate entry %q", ErrInvalidTree, e.Name)
		}
		if e.Kind != TypeBlob && e.Kind != TypeTree {
			return nil, fmt.Errorf("%w: entry %q has kind %q", ErrInvalidTree, e.Name, e.Kind)
		}
		if err := ValidateHash(e.Hash); err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrInvalidTree, e.Name, err)
		}
		fmt.Fprintf(&buf, "%s %s %s\t%s\n", treeModeOrDefault(e), e.Kind, e.Hash, e.Name)
	}
	return buf.Bytes(), nil
}

// UnmarshalTree parses a TreeObj from its serialized form.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return tr, nil
	}
	for _, line := range strings.Split(text, "\n") {
		header, name, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("unmarshal tree: malformed entry %q", line)
		}
		parts := strings.Split(header, " ")
		if len(parts) != 3 {
			return nil, fmt.Errorf("unmarshal tree: malformed header %q", header)
		}
		kind, err := ParseObjectType(parts[1])
		if err != nil || kind == TypeCommit {
			return nil, fmt.Errorf("unmarshal tree: entry %q: bad kind %q", name, parts[1])
		}
		mode, err := parseTreeMode(parts[0], kind)
		if err != nil {
			return nil, fmt.Errorf("unmarshal tree: entry %q: %w", name, err)
		}
		tr.Entries = append(tr.Entries, TreeEntry{
			Name: name,
			Mode: mode,
			Kind: kind,
			Hash: Hash(parts[2]),
		})
	}
	return tr, nil
}

func validateEntryName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: bad entry name %q", ErrInvalidTree, name)
	case strings.ContainsAny(name, "/\t\n\x00"):
		return fmt.Errorf("%w: entry name %q contains a reserved character", ErrInvalidTree, name)
	}
	return nil
}

func treeModeOrDefault(e TreeEntry) string {
	if e.Kind == TypeTree {
		return TreeModeDir
	}
	if e.Mode == TreeModeExecutable {
		return TreeModeExecutable
	}
	return TreeModeFile
}

func parseTreeMode(mode string, kind ObjectType) (string, error) {
	switch mode {
	case TreeModeDir:
		if kind != TypeTree {
			return "", fmt.Errorf("mode %s on %s entry", mode, kind)
		}
		return mode, nil
	case TreeModeFile, TreeModeExecutable:
		if kind != TypeBlob {
			return "", fmt.Errorf("mode %s on %s entry", mode, kind)
		}
		return mode, nil
	default:
		return "", fmt.Errorf("unknown mode %q", mode)
	}
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// MarshalCommit serializes a CommitObj:
//
//	tree H
//	parent H     (zero or more)
//	author Name <email>
//	timestamp T
//	timezone Z   (optional)
//	signature S  (optional)
//
//	message
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", string(c.TreeHash))
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", string(p))
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author.String())
	fmt.Fprintf(&buf, "timestamp %d\n", c.Timestamp)
	if strings.TrimSpace(c.Timezone) != "" {
		fmt.Fprintf(&buf, "timezone %s\n", c.Timezone)
	}
	if strings.TrimSpace(c.Signature) != "" {
		fmt.Fprintf(&buf, "signature %s\n", c.Signature)
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// UnmarshalCommit parses a CommitObj from its serialized form.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal commit: missing header/message separator")
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	c := &CommitObj{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: malformed header line %q", line)
		}
		switch key {
		case "tree":
			c.TreeHash = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "author":
			c.Author = ParseSignature(val)
		case "timestamp":
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: bad timestamp %q: %w", val, err)
			}
			c.Timestamp = ts
		case "timezone":
			c.Timezone = val
		case "signature":
			c.Signature = val
		default:
			return nil, fmt.Errorf("unmarshal commit: unknown header key %q", key)
		}
	}
	if c.TreeHash == "" {
		return nil, fmt.Errorf("unmarshal commit: missing tree")
	}
	return c, nil
}

// ParseSignature splits "Name <email>" into its parts. A value without an
// email part is returned as a bare name.
func ParseSignature(s string) Signature {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ">") {
		if i := strings.LastIndex(s, " <"); i >= 0 {
			return Signature{
				Name:  strings.TrimSpace(s[:i]),
				Email: s[i+2 : len(s)-1],
			}
		}
		if strings.HasPrefix(s, "<") {
			return Signature{Email: s[1 : len(s)-1]}
		}
	}
	return Signature{Name: s}
}
