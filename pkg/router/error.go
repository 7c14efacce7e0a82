package router

import (
	"encoding/json"
	"io"
	"net/http"
)

// Error is an error that knows how to render itself as a response.
type Error interface {
	error
	StatusCode() int
	Encode(w io.Writer) error
}

// JsonError is the body of every failed API call.
type JsonError struct {
	Code int    `json:"code"`
	Err  string `json:"error"`
}

func NewJsonError(code int, err string) JsonError {
	return JsonError{Code: code, Err: err}
}

func BadRequest(msg string) JsonError   { return NewJsonError(http.StatusBadRequest, msg) }
func Unauthorized(msg string) JsonError { return NewJsonError(http.StatusUnauthorized, msg) }
func Forbidden(msg string) JsonError    { return NewJsonError(http.StatusForbidden, msg) }
func NotFound(msg string) JsonError     { return NewJsonError(http.StatusNotFound, msg) }
func Conflict(msg string) JsonError     { return NewJsonError(http.StatusConflict, msg) }

func (e JsonError) StatusCode() int {
	return e.Code
}

func (e JsonError) Error() string {
	return e.Err
}

// clientError reports whether the failure is the caller's fault.
func (e JsonError) clientError() bool {
	return e.Code >= 400 && e.Code < 500
}

func (e JsonError) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(e)
}
