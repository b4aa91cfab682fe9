// Package apperr defines the error kinds shared by the tracker, model and
// orchestration layers and maps them onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an Error.
type Kind string

const (
	Configuration Kind = "configuration"
	Transport     Kind = "transport"
	Parse         Kind = "parse"
	Validation    Kind = "validation"
	NotFound      Kind = "not_found"
	Creation      Kind = "creation"
)

// Error is the standard application error.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 3)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 {
		return string(e.Kind) + " error"
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same Kind, so errors.Is(err,
// &Error{Kind: NotFound}) works as a kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

func newf(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Configurationf reports missing or invalid settings.
func Configurationf(op, format string, args ...any) *Error {
	return newf(Configuration, op, nil, format, args...)
}

// Validationf reports a rejected request.
func Validationf(op, format string, args ...any) *Error {
	return newf(Validation, op, nil, format, args...)
}

// NotFoundf reports a missing resource.
func NotFoundf(op, format string, args ...any) *Error {
	return newf(NotFound, op, nil, format, args...)
}

// Wrap attaches a kind and operation to an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrapf is Wrap with a message.
func Wrapf(kind Kind, op string, err error, format string, args ...any) *Error {
	return newf(kind, op, err, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

type statusCoder interface {
	HTTPStatus() int
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	switch KindOf(err) {
	case Configuration, Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Transport, Creation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
