package repo

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/odvcencio/pocket/pkg/config"
	"github.com/odvcencio/pocket/pkg/index"
	"github.com/odvcencio/pocket/pkg/lockfile"
	"github.com/odvcencio/pocket/pkg/object"
	"github.com/odvcencio/pocket/pkg/refs"
	"github.com/odvcencio/pocket/pkg/remote"
)

// Kind classifies a failed repository operation.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotARepository
	KindAlreadyInitialized
	KindFileNotFound
	KindOutOfScope
	KindEmptyMessage
	KindNothingStaged
	KindNoRemoteConfigured
	KindDuplicateRemote
	KindInvalidArgument
	KindUnbornBranch
	KindRefConflict
	KindNonFastForward
	KindAuthenticationFailed
	KindTimeout
	KindNotFound
	KindIOFailure
)

var kindNames = [...]string{
	KindUnknown:              "Unknown",
	KindNotARepository:       "NotARepository",
	KindAlreadyInitialized:   "AlreadyInitialized",
	KindFileNotFound:         "FileNotFound",
	KindOutOfScope:           "OutOfScope",
	KindEmptyMessage:         "EmptyMessage",
	KindNothingStaged:        "NothingStaged",
	KindNoRemoteConfigured:   "NoRemoteConfigured",
	KindDuplicateRemote:      "DuplicateRemote",
	KindInvalidArgument:      "InvalidArgument",
	KindUnbornBranch:         "UnbornBranch",
	KindRefConflict:          "RefConflict",
	KindNonFastForward:       "NonFastForward",
	KindAuthenticationFailed: "AuthenticationFailed",
	KindTimeout:              "Timeout",
	KindNotFound:             "NotFound",
	KindIOFailure:            "IOFailure",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// One sentinel per Kind, matched with errors.Is.
var (
	ErrNotARepository       = errors.New("not a pocket repository (or any parent directory)")
	ErrAlreadyInitialized   = errors.New("repository already exists")
	ErrFileNotFound         = errors.New("file not found")
	ErrOutOfScope           = errors.New("path is outside the repository")
	ErrEmptyMessage         = errors.New("commit message is empty")
	ErrNothingStaged        = errors.New("nothing to commit, stage files first")
	ErrNoRemoteConfigured   = errors.New("no remote configured")
	ErrDuplicateRemote      = errors.New("remote already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrUnbornBranch         = errors.New("current branch has no commits yet")
	ErrRefConflict          = errors.New("ref changed concurrently")
	ErrNonFastForward       = errors.New("rejected: remote contains commits not present locally")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrTimeout              = errors.New("operation timed out")
	ErrNotFound             = errors.New("object not found")
	ErrIOFailure            = errors.New("storage or network failure")
)

var kindErrs = map[Kind]error{
	KindNotARepository:       ErrNotARepository,
	KindAlreadyInitialized:   ErrAlreadyInitialized,
	KindFileNotFound:         ErrFileNotFound,
	KindOutOfScope:           ErrOutOfScope,
	KindEmptyMessage:         ErrEmptyMessage,
	KindNothingStaged:        ErrNothingStaged,
	KindNoRemoteConfigured:   ErrNoRemoteConfigured,
	KindDuplicateRemote:      ErrDuplicateRemote,
	KindInvalidArgument:      ErrInvalidArgument,
	KindUnbornBranch:         ErrUnbornBranch,
	KindRefConflict:          ErrRefConflict,
	KindNonFastForward:       ErrNonFastForward,
	KindAuthenticationFailed: ErrAuthenticationFailed,
	KindTimeout:              ErrTimeout,
	KindNotFound:             ErrNotFound,
	KindIOFailure:            ErrIOFailure,
}

// Sentinel returns the error value for k.
func (k Kind) Sentinel() error {
	if err, ok := kindErrs[k]; ok {
		return err
	}
	return ErrIOFailure
}

// Error is returned by every repository operation. errors.Is matches both
// the Kind sentinel and the underlying cause.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	sentinel := e.Kind.Sentinel()
	if e.Err == nil || e.Err == sentinel {
		return fmt.Sprintf("%s: %v", e.Op, sentinel)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, sentinel, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.Sentinel()}
	}
	return []error{e.Kind.Sentinel(), e.Err}
}

// KindOf returns the Kind carried by err, classifying foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return classify(err)
}

// fail wraps err as an *Error of kind for op.
func fail(op string, kind Kind, err error) error {
	if err == nil {
		err = kind.Sentinel()
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// wrap translates a component error into the taxonomy. An *Error passes
// through with its kind intact.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return &Error{Op: op, Kind: re.Kind, Err: re.Err}
	}
	return &Error{Op: op, Kind: classify(err), Err: err}
}

func classify(err error) Kind {
	for k, sentinel := range kindErrs {
		if errors.Is(err, sentinel) {
			return k
		}
	}
	var te interface{ Timeout() bool }
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		errors.Is(err, lockfile.ErrTimeout), errors.As(err, &te) && te.Timeout():
		return KindTimeout
	case errors.Is(err, index.ErrOutOfScope):
		return KindOutOfScope
	case errors.Is(err, index.ErrInvalidPath), errors.Is(err, refs.ErrInvalidName),
		errors.Is(err, config.ErrInvalidArgument), errors.Is(err, remote.ErrUnsupportedURL):
		return KindInvalidArgument
	case errors.Is(err, config.ErrDuplicateRemote):
		return KindDuplicateRemote
	case errors.Is(err, config.ErrNoRemote):
		return KindNoRemoteConfigured
	case errors.Is(err, refs.ErrUnbornBranch):
		return KindUnbornBranch
	case errors.Is(err, refs.ErrConflict), errors.Is(err, remote.ErrStaleRef):
		return KindRefConflict
	case errors.Is(err, remote.ErrNonFastForward):
		return KindNonFastForward
	case errors.Is(err, remote.ErrAuthenticationFailed):
		return KindAuthenticationFailed
	case errors.Is(err, object.ErrNotFound), errors.Is(err, refs.ErrNotFound),
		errors.Is(err, refs.ErrMissingObject), errors.Is(err, object.ErrDanglingReference),
		errors.Is(err, index.ErrMissingBlob), errors.Is(err, remote.ErrNoSuchRef):
		return KindNotFound
	case errors.Is(err, os.ErrNotExist):
		return KindFileNotFound
	default:
		return KindIOFailure
	}
}
