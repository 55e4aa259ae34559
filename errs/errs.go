// Package errs defines the caller-facing error taxonomy shared by every
// NanoIndex core component. It generalizes the teacher's single sentinel
// (engine.ErrNotFound) into a small typed-error so the service layer can
// carry richer context (op, field) while still round-tripping through
// errors.Is/errors.As.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on it
// (HTTP status mapping, retry policy, etc.) without parsing messages.
type Kind int

const (
	// KindInvalidInput covers dimension mismatches, malformed batches,
	// and out-of-range parameters such as k > N or top_k <= 0.
	KindInvalidInput Kind = iota
	// KindConflict covers a duplicate external ID.
	KindConflict
	// KindNotFound covers a lookup by an unknown external ID.
	KindNotFound
	// KindNotTrained marks an IVF search requested before Train; per
	// spec this is surfaced as an empty result, not an error, but the
	// kind exists for callers that want to distinguish the case.
	KindNotTrained
	// KindTimeout covers a caller deadline exceeded at a checkpointed
	// cancellation boundary.
	KindTimeout
	// KindStorageFatal covers mmap/ftruncate/fsync failures; the store
	// must be treated as read-only until reopened.
	KindStorageFatal
	// KindCorruptState covers a bad sidecar or size mismatch on open.
	KindCorruptState
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindNotTrained:
		return "not_trained"
	case KindTimeout:
		return "timeout"
	case KindStorageFatal:
		return "storage_fatal"
	case KindCorruptState:
		return "corrupt_state"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every core package.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers
// can do errors.Is(err, errs.New(errs.KindNotFound, "", nil)) or, more
// idiomatically, use the Is* helpers below.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs an *Error of the given kind.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf extracts the Kind from err, returning ok=false if err is not (or
// does not wrap) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func sentinel(k Kind) error { return &Error{Kind: k} }

// IsInvalidInput reports whether err is an InvalidInput error.
func IsInvalidInput(err error) bool { return errors.Is(err, sentinel(KindInvalidInput)) }

// IsConflict reports whether err is a Conflict error.
func IsConflict(err error) bool { return errors.Is(err, sentinel(KindConflict)) }

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return errors.Is(err, sentinel(KindNotFound)) }

// IsTimeout reports whether err is a Timeout error.
func IsTimeout(err error) bool { return errors.Is(err, sentinel(KindTimeout)) }

// IsStorageFatal reports whether err is a StorageFatal error.
func IsStorageFatal(err error) bool { return errors.Is(err, sentinel(KindStorageFatal)) }

// IsCorruptState reports whether err is a CorruptState error.
func IsCorruptState(err error) bool { return errors.Is(err, sentinel(KindCorruptState)) }
