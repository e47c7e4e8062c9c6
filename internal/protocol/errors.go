package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes protocol errors. Codes travel across the RPC
// boundary unchanged.
type ErrorCode string

const (
	CodeInvalidArgument      ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeAlreadyExists        ErrorCode = "ALREADY_EXISTS"
	CodePermissionDenied     ErrorCode = "PERMISSION_DENIED"
	CodeBadEvent             ErrorCode = "BAD_EVENT"
	CodeBadEventSignature    ErrorCode = "BAD_EVENT_SIGNATURE"
	CodeBadEventHash         ErrorCode = "BAD_EVENT_HASH"
	CodeDuplicateEvent       ErrorCode = "DUPLICATE_EVENT"
	CodeMiniblockTooNew      ErrorCode = "MINIBLOCK_TOO_NEW"
	CodeBadPrevMiniblockHash ErrorCode = "BAD_PREV_MINIBLOCK_HASH"
	CodeBadSyncCookie        ErrorCode = "BAD_SYNC_COOKIE"
	CodeNotTrimmable         ErrorCode = "NOT_TRIMMABLE"
	CodeCanceled             ErrorCode = "CANCELED"
	CodeUnavailable          ErrorCode = "UNAVAILABLE"
	CodeInternal             ErrorCode = "INTERNAL"
)

// Error is a protocol error with a code and optional stream context.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// StreamID is the affected stream, if any.
	StreamID string

	// Err is the wrapped cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.StreamID != "" {
		msg += fmt.Sprintf(" (stream=%s)", e.StreamID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates an Error with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a code to err.
func WrapError(code ErrorCode, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithStream sets the stream context and returns e.
func (e *Error) WithStream(streamID string) *Error {
	e.StreamID = streamID
	return e
}

// CodeOf returns the code of the first Error in err's chain, or
// CodeInternal for foreign errors. A nil error has no code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeInternal
}

// IsNotFound returns true for NOT_FOUND errors.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsPermissionDenied returns true for PERMISSION_DENIED errors. These are
// not retried automatically.
func IsPermissionDenied(err error) bool { return CodeOf(err) == CodePermissionDenied }

// IsDuplicateEvent returns true when the event was already accepted.
func IsDuplicateEvent(err error) bool { return CodeOf(err) == CodeDuplicateEvent }

// IsCanceled returns true for CANCELED errors.
func IsCanceled(err error) bool { return CodeOf(err) == CodeCanceled }
