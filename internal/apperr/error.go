package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrKind classifies engine failures so callers can branch without
// string-matching messages.
type ErrKind string

const (
	KindSchema        ErrKind = "schema_resolution"
	KindValidation    ErrKind = "validation"
	KindUniqueness    ErrKind = "uniqueness_violation"
	KindAuthorization ErrKind = "authorization_denied"
	KindTrigger       ErrKind = "trigger_failure"
	KindNotFound      ErrKind = "not_found"
)

type Error struct {
	kind   ErrKind
	status int
	msg    string
	cause  error
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Kind() ErrKind { return e.kind }
func (e *Error) Status() int   { return e.status }
func (e *Error) Unwrap() error { return e.cause }

func newError(kind ErrKind, status int, format string, args ...any) *Error {
	return &Error{kind: kind, status: status, msg: fmt.Sprintf(format, args...)}
}

func Schema(format string, args ...any) *Error {
	return newError(KindSchema, http.StatusInternalServerError, format, args...)
}

func Validation(format string, args ...any) *Error {
	return newError(KindValidation, http.StatusBadRequest, format, args...)
}

func Uniqueness(format string, args ...any) *Error {
	return newError(KindUniqueness, http.StatusConflict, format, args...)
}

func Authorization(format string, args ...any) *Error {
	return newError(KindAuthorization, http.StatusForbidden, format, args...)
}

func Trigger(cause error, format string, args ...any) *Error {
	e := newError(KindTrigger, http.StatusInternalServerError, format, args...)
	e.cause = cause
	return e
}

func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, http.StatusNotFound, format, args...)
}

func IsKind(err error, kind ErrKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == kind
	}
	return false
}

// Status reports the http-ish status for any error; unclassified errors are 400s,
// matching how the request handlers treat malformed input.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.status
	}
	return http.StatusBadRequest
}
