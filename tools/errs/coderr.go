package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Error codes shared by HTTP responses and websocket error payloads.
const (
	ServerInternalError = 1000
	UnauthorizedError   = 1101
	ForbiddenError      = 1102
	NotFoundError       = 1104
	BadRequestError     = 1201
	OffsetMismatchError = 1301
)

var (
	ErrInternal     = NewCodeError(ServerInternalError, "server error")
	ErrUnauthorized = NewCodeError(UnauthorizedError, "unauthorized")
	ErrForbidden    = NewCodeError(ForbiddenError, "forbidden")
	ErrNotFound     = NewCodeError(NotFoundError, "not found")
	ErrBadRequest   = NewCodeError(BadRequestError, "bad request")
)

// CodeError is the structured error shape returned to clients. It is both
// an error and a JSON response body.
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

// WithDetail returns a copy carrying extra detail; the receiver is not mutated.
func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// Is matches by code so callers can test wrapped errors against the
// sentinels above with errors.Is.
func (e *CodeError) Is(err error) bool {
	var ce *CodeError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == e.Code
}

// Code extracts the CodeError from err, mapping unknown errors to
// ErrInternal so handlers never leak raw error strings.
func Code(err error) *CodeError {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce
	}
	return ErrInternal
}
