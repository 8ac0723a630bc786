package devicesdk

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable, small error-kind enum per spec §7. Values never
// carry a textual reason on their own; Error.Msg carries the detail.
type ErrorCode string

const (
	CodeOk           ErrorCode = "ok"
	CodeInvalidInput ErrorCode = "invalid input"
	CodeEmpty        ErrorCode = "empty"
	CodeFull         ErrorCode = "full"
	CodeDoesNotExist ErrorCode = "does not exist"
	CodeNotSupported ErrorCode = "not supported"
	CodeTimeout      ErrorCode = "timeout"
)

// Error is the SDK's structured error type: an operation name, a stable
// code, a human-readable message, and an optional wrapped cause.
// Carried over from the teacher's *Error shape (Op/Code/Msg/Inner/
// Unwrap/Is), re-pointed at this domain's error kinds instead of
// UblkErrorCode/syscall.Errno.
type Error struct {
	Op    string
	Code  ErrorCode
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("devicesdk: %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("devicesdk: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support by comparing error codes.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError creates a new structured error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// WrapError wraps an existing error with an operation name, preserving
// its code if it was already a structured *Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if e, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: e.Code, Msg: e.Msg, Inner: e.Inner}
	}
	return &Error{Op: op, Code: CodeInvalidInput, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a *Error carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

var (
	// ErrNoActiveTransaction describes an event-storage/log-source
	// operation invoked without a matching begin/trigger call. Those
	// operations themselves report that case as a no-op or a false/zero
	// result, not as this error.
	ErrNoActiveTransaction = NewError("begin_write", CodeInvalidInput, "no write transaction is open")
	// ErrBufferTooSmall describes a caller buffer below a component's
	// documented minimum (e.g. chunker.MinChunkBufLen). GetNext reports
	// that case as (0, NoMoreData), not as this error.
	ErrBufferTooSmall = NewError("get_next", CodeInvalidInput, "buffer below minimum size")
)
