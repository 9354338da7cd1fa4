package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/pocket/pkg/object"
)

const (
	// ProtocolVersion is the current push protocol version.
	ProtocolVersion = "1"

	// ClientCapabilities lists all capabilities this client supports.
	ClientCapabilities = "zstd"

	headerProtocol     = "Pocket-Protocol"
	headerCapabilities = "Pocket-Capabilities"
	headerRequestID    = "X-Request-Id"
)

// Error codes carried in RemoteError.Code.
const (
	codeNotFound       = "not_found"
	codeNonFastForward = "non_fast_forward"
	codeStaleRef       = "stale_ref"
	codeMissingObjects = "missing_objects"
	codeBadObject      = "bad_object"
	codeBadRequest     = "bad_request"
	codeUnauthorized   = "unauthorized"
	codeInternal       = "internal"
)

var (
	// ErrNoSuchRef is returned when the remote has no value for a ref.
	ErrNoSuchRef = errors.New("remote ref does not exist")
	// ErrNonFastForward is returned when a ref update would drop history.
	ErrNonFastForward = errors.New("non-fast-forward update rejected")
	// ErrStaleRef is returned when the remote ref moved since negotiation
	// but the update would still fast-forward.
	ErrStaleRef = errors.New("remote ref changed since negotiation")
	// ErrMissingObjects is returned when a ref update names a commit whose
	// objects the remote does not fully have.
	ErrMissingObjects = errors.New("remote is missing objects")
	// ErrBadObject is returned for objects whose hash does not match.
	ErrBadObject = errors.New("object hash mismatch")
	// ErrAuthenticationFailed is returned when credentials are rejected.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrUnsupportedURL is returned by Dial for URLs with no transport.
	ErrUnsupportedURL = errors.New("unsupported remote URL")
)

// Capabilities represents a set of protocol capabilities.
type Capabilities struct {
	set map[string]struct{}
}

// ParseCapabilities parses a comma-separated capability string.
func ParseCapabilities(raw string) Capabilities {
	caps := Capabilities{set: make(map[string]struct{})}
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			caps.set[c] = struct{}{}
		}
	}
	return caps
}

// Has returns true if the capability is present.
func (c Capabilities) Has(name string) bool {
	_, ok := c.set[name]
	return ok
}

// String returns a sorted comma-separated capability string.
func (c Capabilities) String() string {
	names := make([]string, 0, len(c.set))
	for k := range c.set {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// RemoteError is a structured error from the remote server.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Detail  string `json:"detail,omitempty"`
}

func (e *RemoteError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (%s): %s", e.Message, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Unwrap maps well-known codes onto the package sentinels so callers can
// use errors.Is on errors that crossed the wire.
func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case codeNotFound:
		return ErrNoSuchRef
	case codeNonFastForward:
		return ErrNonFastForward
	case codeStaleRef:
		return ErrStaleRef
	case codeMissingObjects:
		return ErrMissingObjects
	case codeBadObject:
		return ErrBadObject
	case codeUnauthorized:
		return ErrAuthenticationFailed
	default:
		return nil
	}
}

// errorCode is the inverse of RemoteError.Unwrap, used by the server.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrNoSuchRef):
		return codeNotFound
	case errors.Is(err, ErrNonFastForward):
		return codeNonFastForward
	case errors.Is(err, ErrStaleRef):
		return codeStaleRef
	case errors.Is(err, ErrMissingObjects):
		return codeMissingObjects
	case errors.Is(err, ErrBadObject):
		return codeBadObject
	default:
		return codeInternal
	}
}

// tryParseRemoteError attempts to parse a JSON error response body.
func tryParseRemoteError(body []byte) *RemoteError {
	var re RemoteError
	if err := json.Unmarshal(body, &re); err != nil {
		return nil
	}
	if re.Message == "" && re.Code == "" {
		return nil
	}
	return &re
}

// ObjectRecord is an object payload sent during push.
type ObjectRecord struct {
	Hash object.Hash
	Type object.ObjectType
	Data []byte
}

// wireObject is the NDJSON form of an ObjectRecord.
type wireObject struct {
	Hash string `json:"hash"`
	Type string `json:"type"`
	Data []byte `json:"data"`
}

type refResponse struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

type haveRequest struct {
	Hashes []string `json:"hashes"`
}

type haveResponse struct {
	Have []string `json:"have"`
}

type refUpdateRequest struct {
	Name string `json:"name"`
	Old  string `json:"old"`
	New  string `json:"new"`
}

// verifyRecord checks that rec.Hash matches its content.
func verifyRecord(rec ObjectRecord) error {
	if _, err := object.ParseObjectType(string(rec.Type)); err != nil {
		return fmt.Errorf("%w: %v", ErrBadObject, err)
	}
	computed := object.HashObject(rec.Type, rec.Data)
	if rec.Hash != computed {
		return fmt.Errorf("%w: expected %s, got %s", ErrBadObject, rec.Hash, computed)
	}
	return nil
}
