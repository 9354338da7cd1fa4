package object

import (
	"bytes"
	"reflect"
	"sort"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"pgregory.net/rapid"
)

// Writing the same bytes twice yields one hash and one stored object.
func TestPropertyWriteIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewStore(memfs.New())
		data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")

		h1, err := s.Write(TypeBlob, data)
		if err != nil {
			t.Fatalf("Write 1: %v", err)
		}
		h2, err := s.Write(TypeBlob, data)
		if err != nil {
			t.Fatalf("Write 2: %v", err)
		}
		if h1 != h2 {
			t.Fatalf("hash mismatch: %s != %s", h1, h2)
		}
		hashes, err := s.List()
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(hashes) != 1 {
			t.Fatalf("stored %d objects, want 1", len(hashes))
		}
		_, got, err := s.Read(h1)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("Read = %q, want %q", got, data)
		}
	})
}

// Canonical tree bytes decode to the same entries and re-encode identically.
func TestPropertyTreeRoundTrip(t *testing.T) {
	nameGen := rapid.StringMatching(`[a-zA-Z0-9 ._-]{1,16}`).Filter(func(s string) bool {
		return s != "." && s != ".."
	})

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(t, "n")
		seen := make(map[string]struct{})
		var entries []TreeEntry
		for i := 0; i < n; i++ {
			name := nameGen.Draw(t, "name")
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			e := TreeEntry{Name: name, Hash: HashBytes([]byte(name))}
			switch rapid.IntRange(0, 2).Draw(t, "kind") {
			case 0:
				e.Kind, e.Mode = TypeTree, TreeModeDir
			case 1:
				e.Kind, e.Mode = TypeBlob, TreeModeExecutable
			default:
				e.Kind, e.Mode = TypeBlob, TreeModeFile
			}
			entries = append(entries, e)
		}

		data, err := MarshalTree(&TreeObj{Entries: entries})
		if err != nil {
			t.Fatalf("MarshalTree: %v", err)
		}
		got, err := UnmarshalTree(data)
		if err != nil {
			t.Fatalf("UnmarshalTree: %v", err)
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		if len(entries) == 0 {
			entries = nil
		}
		if !reflect.DeepEqual(got.Entries, entries) {
			t.Fatalf("entries = %+v, want %+v", got.Entries, entries)
		}
		again, err := MarshalTree(got)
		if err != nil {
			t.Fatalf("MarshalTree again: %v", err)
		}
		if !bytes.Equal(again, data) {
			t.Fatalf("re-marshal differs:\n%q\n%q", again, data)
		}
	})
}
