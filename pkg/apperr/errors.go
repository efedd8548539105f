// ABOUTME: Error kinds shared by every engine component
// ABOUTME: Errors carry a Kind so callers can branch with errors.Is

package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error. Kinds are stable strings that cross the
// RPC boundary unchanged.
type Kind string

const (
	KindDocumentNotFound      Kind = "DOCUMENT_NOT_FOUND"
	KindDocumentAlreadyExists Kind = "DOCUMENT_ALREADY_EXISTS"
	KindVersionNotFound       Kind = "VERSION_NOT_FOUND"
	KindBranchNotFound        Kind = "BRANCH_NOT_FOUND"
	KindBranchAlreadyExists   Kind = "BRANCH_ALREADY_EXISTS"
	KindInvalidBranchName     Kind = "INVALID_BRANCH_NAME"
	KindBranchProtected       Kind = "BRANCH_PROTECTED"
	KindTagNotFound           Kind = "TAG_NOT_FOUND"
	KindTagAlreadyExists      Kind = "TAG_ALREADY_EXISTS"
	KindInvalidTagName        Kind = "INVALID_TAG_NAME"
	KindMergeConflict         Kind = "MERGE_CONFLICT"
	KindNothingToMerge        Kind = "NOTHING_TO_MERGE"
	KindValidation            Kind = "VALIDATION_ERROR"
	KindStorageUnavailable    Kind = "STORAGE_UNAVAILABLE"
	KindInternal              Kind = "INTERNAL"
)

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrDocumentNotFound      = &Error{Kind: KindDocumentNotFound}
	ErrDocumentAlreadyExists = &Error{Kind: KindDocumentAlreadyExists}
	ErrVersionNotFound       = &Error{Kind: KindVersionNotFound}
	ErrBranchNotFound        = &Error{Kind: KindBranchNotFound}
	ErrBranchAlreadyExists   = &Error{Kind: KindBranchAlreadyExists}
	ErrInvalidBranchName     = &Error{Kind: KindInvalidBranchName}
	ErrBranchProtected       = &Error{Kind: KindBranchProtected}
	ErrTagNotFound           = &Error{Kind: KindTagNotFound}
	ErrTagAlreadyExists      = &Error{Kind: KindTagAlreadyExists}
	ErrInvalidTagName        = &Error{Kind: KindInvalidTagName}
	ErrMergeConflict         = &Error{Kind: KindMergeConflict}
	ErrNothingToMerge        = &Error{Kind: KindNothingToMerge}
	ErrValidation            = &Error{Kind: KindValidation}
	ErrStorageUnavailable    = &Error{Kind: KindStorageUnavailable}
	ErrInternal              = &Error{Kind: KindInternal}
)

// Error is the error type returned by the engine.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
// A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether the caller may safely retry the operation.
// Only storage unavailability is retryable; nothing was written.
func IsRetryable(err error) bool {
	return KindOf(err) == KindStorageUnavailable
}
