// Package honeerr provides the closed error taxonomy used across the
// engine: every failure a component returns is classified into one of a
// small set of Kinds so callers can decide whether to retry, surface to the
// user, or abort.
package honeerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for retry/handling purposes.
type Kind string

const (
	// KindNotFound means the referenced row does not exist.
	KindNotFound Kind = "not_found"
	// KindInvalidData means caller-supplied data failed validation.
	KindInvalidData Kind = "invalid_data"
	// KindConflict means the operation would violate a uniqueness or
	// state invariant (duplicate import hash, concurrent cancellation).
	KindConflict Kind = "conflict"
	// KindTransport means a remote call (AI port, blob store) failed at
	// the network/protocol layer.
	KindTransport Kind = "transport"
	// KindTransient means the failure is expected to clear on retry
	// (timeout, rate limit, temporary lock contention).
	KindTransient Kind = "transient"
	// KindFatal means the failure is not recoverable by retrying
	// (corrupt database, misconfiguration).
	KindFatal Kind = "fatal"
)

// Error is the engine's wrapped error type. Err is the underlying cause;
// Kind drives handling; Op names the operation that failed for logging.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrap classifies err under kind, attaching op, unless err is already a
// honeerr.Error, in which case it is passed through with op prefixed.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Kind: existing.Kind, Op: op, Err: existing}
	}
	return New(kind, op, err)
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsRetryable reports whether err's Kind indicates the operation may
// succeed if retried (transient failures only; transport failures are
// retried by their caller's own backoff, not implicitly here).
func IsRetryable(err error) bool {
	return Is(err, KindTransient)
}

// Sentinel errors for common not-found and conflict cases, matched with errors.Is.
var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrTagNotFound           = errors.New("tag not found")
	ErrAmbiguousTagName      = errors.New("tag name is ambiguous: multiple tags share this name")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrReceiptNotFound       = errors.New("receipt not found")
	ErrSessionNotFound       = errors.New("import session not found")
	ErrDuplicateImportHash   = errors.New("transaction already imported")
	ErrDuplicateAccount      = errors.New("account already exists for this name and bank")
	ErrDuplicateTagName      = errors.New("a tag with this name already exists under this parent")
	ErrDuplicateSubscription = errors.New("subscription already exists for this account and merchant")
	ErrSessionNotCancelable  = errors.New("import session is not in a cancelable state")
	ErrEncryptionKeyMissing  = errors.New("database encryption key is not configured")
)

// NotFound wraps err as KindNotFound for op.
func NotFound(op string, err error) *Error { return New(KindNotFound, op, err) }

// InvalidData wraps err as KindInvalidData for op.
func InvalidData(op string, err error) *Error { return New(KindInvalidData, op, err) }

// Conflict wraps err as KindConflict for op.
func Conflict(op string, err error) *Error { return New(KindConflict, op, err) }

// Transport wraps err as KindTransport for op.
func Transport(op string, err error) *Error { return New(KindTransport, op, err) }

// Transient wraps err as KindTransient for op.
func Transient(op string, err error) *Error { return New(KindTransient, op, err) }

// Fatal wraps err as KindFatal for op.
func Fatal(op string, err error) *Error { return New(KindFatal, op, err) }
