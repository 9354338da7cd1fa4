package object

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func testHash(s string) Hash {
	return HashBytes([]byte(s))
}

func TestMarshalUnmarshalBlob(t *testing.T) {
	orig := &Blob{Data: []byte("hello world\nline two")}
	got, err := UnmarshalBlob(MarshalBlob(orig))
	if err != nil {
		t.Fatalf("UnmarshalBlob: %v", err)
	}
	if !bytes.Equal(got.Data, orig.Data) {
		t.Errorf("Blob round-trip mismatch: got %q, want %q", got.Data, orig.Data)
	}
}

func TestMarshalTreeSortsAndFormats(t *testing.T) {
	tr := &TreeObj{Entries: []TreeEntry{
		{Name: "zeta.txt", Kind: TypeBlob, Hash: testHash("z")},
		{Name: "alpha", Kind: TypeTree, Hash: testHash("a")},
		{Name: "run.sh", Mode: TreeModeExecutable, Kind: TypeBlob, Hash: testHash("r")},
	}}
	data, err := MarshalTree(tr)
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	want := "40000 tree " + string(testHash("a")) + "\talpha\n" +
		"100755 blob " + string(testHash("r")) + "\trun.sh\n" +
		"100644 blob " + string(testHash("z")) + "\tzeta.txt\n"
	if string(data) != want {
		t.Errorf("MarshalTree =\n%s\nwant\n%s", data, want)
	}
}

func TestTreeRoundTripWithSpaces(t *testing.T) {
	orig := &TreeObj{Entries: []TreeEntry{
		{Name: "my file.txt", Mode: TreeModeFile, Kind: TypeBlob, Hash: testHash("1")},
		{Name: "sub dir", Mode: TreeModeDir, Kind: TypeTree, Hash: testHash("2")},
	}}
	data, err := MarshalTree(orig)
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	got, err := UnmarshalTree(data)
	if err != nil {
		t.Fatalf("UnmarshalTree: %v", err)
	}
	if !reflect.DeepEqual(got.Entries, orig.Entries) {
		t.Errorf("round-trip = %+v, want %+v", got.Entries, orig.Entries)
	}
}

func TestMarshalTreeRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", ".", "..", "a/b", "tab\there", "nl\n", "nul\x00"} {
		tr := &TreeObj{Entries: []TreeEntry{{Name: name, Kind: TypeBlob, Hash: testHash(name)}}}
		if _, err := MarshalTree(tr); !errors.Is(err, ErrInvalidTree) {
			t.Errorf("MarshalTree(%q): err = %v, want ErrInvalidTree", name, err)
		}
	}
	dup := &TreeObj{Entries: []TreeEntry{
		{Name: "a", Kind: TypeBlob, Hash: testHash("1")},
		{Name: "a", Kind: TypeBlob, Hash: testHash("2")},
	}}
	if _, err := MarshalTree(dup); !errors.Is(err, ErrInvalidTree) {
		t.Errorf("MarshalTree(duplicate): err = %v, want ErrInvalidTree", err)
	}
}

func TestUnmarshalTreeRejectsMalformed(t *testing.T) {
	h := string(testHash("x"))
	for _, in := range []string{
		"100644 blob " + h + " no-tab\n",
		"100644 blob\tname\n",
		"40000 blob " + h + "\tname\n",
		"100644 commit " + h + "\tname\n",
		"777 blob " + h + "\tname\n",
	} {
		if _, err := UnmarshalTree([]byte(in)); err == nil {
			t.Errorf("UnmarshalTree(%q) = nil error", in)
		}
	}
}

func TestEmptyTree(t *testing.T) {
	data, err := MarshalTree(&TreeObj{})
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("empty tree bytes = %q", data)
	}
	got, err := UnmarshalTree(data)
	if err != nil {
		t.Fatalf("UnmarshalTree: %v", err)
	}
	if len(got.Entries) != 0 {
		t.Errorf("entries = %v", got.Entries)
	}
}

func TestCommitRoundTrip(t *testing.T) {
	orig := &CommitObj{
		TreeHash:  testHash("tree"),
		Parents:   []Hash{testHash("parent")},
		Author:    Signature{Name: "Ada Lovelace", Email: "ada@example.com"},
		Timestamp: 1700000000,
		Timezone:  "+0100",
		Message:   "first line\n\nbody with\nblank lines\n",
	}
	data := MarshalCommit(orig)
	got, err := UnmarshalCommit(data)
	if err != nil {
		t.Fatalf("UnmarshalCommit: %v", err)
	}
	if !reflect.DeepEqual(got, orig) {
		t.Errorf("round-trip = %+v, want %+v", got, orig)
	}
	if !bytes.Equal(MarshalCommit(got), data) {
		t.Error("re-marshal differs")
	}
}

func TestCommitRootHasNoParentLine(t *testing.T) {
	data := MarshalCommit(&CommitObj{TreeHash: testHash("t"), Author: Signature{Name: "n"}, Message: "m"})
	if bytes.Contains(data, []byte("parent ")) {
		t.Errorf("root commit contains parent line:\n%s", data)
	}
}

func TestCommitSigningPayloadExcludesSignature(t *testing.T) {
	c := &CommitObj{TreeHash: testHash("t"), Author: Signature{Name: "n"}, Message: "m", Signature: "sig"}
	payload := CommitSigningPayload(c)
	if bytes.Contains(payload, []byte("signature ")) {
		t.Errorf("payload contains signature:\n%s", payload)
	}
	if c.Signature != "sig" {
		t.Error("CommitSigningPayload mutated its input")
	}
}

func TestParseSignature(t *testing.T) {
	tests := []struct {
		in   string
		want Signature
	}{
		{"Ada <ada@example.com>", Signature{Name: "Ada", Email: "ada@example.com"}},
		{"Ada Lovelace <ada@example.com>", Signature{Name: "Ada Lovelace", Email: "ada@example.com"}},
		{"bare", Signature{Name: "bare"}},
		{"<only@example.com>", Signature{Email: "only@example.com"}},
	}
	for _, tt := range tests {
		if got := ParseSignature(tt.in); got != tt.want {
			t.Errorf("ParseSignature(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
