package models

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a migration error for retry and reporting decisions.
type ErrorKind string

const (
	// ErrKindTransient covers network blips, rate limits, and other
	// errors where re-invoking the same stage may succeed.
	ErrKindTransient ErrorKind = "TransientRemoteError"
	// ErrKindConflict means the idempotency check found an existing
	// resource with the expected name but a different shape.
	ErrKindConflict ErrorKind = "ResourceConflict"
	// ErrKindAuthorization covers credential and permission failures.
	ErrKindAuthorization ErrorKind = "AuthorizationError"
	// ErrKindPollTimeout means a bounded wait on an async remote job
	// was exhausted without resolution.
	ErrKindPollTimeout ErrorKind = "PollTimeout"
	// ErrKindLocalIO covers staging filesystem failures.
	ErrKindLocalIO ErrorKind = "LocalIOError"
	// ErrKindAborted means an external cancellation was requested.
	ErrKindAborted ErrorKind = "AbortRequested"
)

// MigrationError is a classified error crossing a provider or stage
// boundary. Stages return it inside a StageResult; it is never allowed
// to escape a stage unclassified.
type MigrationError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *MigrationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// NewError wraps err with a classification and the remote operation name.
func NewError(kind ErrorKind, op string, err error) *MigrationError {
	return &MigrationError{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the classification from an error chain. Unclassified
// errors are treated as transient so a lost connection mid-call does not
// fail a job that a retry would have saved.
func KindOf(err error) ErrorKind {
	var me *MigrationError
	if errors.As(err, &me) {
		return me.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrKindAborted
	}
	return ErrKindTransient
}

// Retryable reports whether an error of this kind may be retried.
func (k ErrorKind) Retryable() bool { return k == ErrKindTransient }
