// Package apperr carries an error code across layers so the HTTP boundary
// can map failures to status codes without string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeAccountNotConnected = "ACCOUNT_NOT_CONNECTED"
	CodeAlreadyPublished    = "ALREADY_PUBLISHED"
	CodeProvider            = "PROVIDER_ERROR"
	CodeAssetFetch          = "ASSET_FETCH_ERROR"
	CodeGeneration          = "GENERATION_ERROR"
	CodeDatabase            = "DATABASE_ERROR"
	CodeMisconfigured       = "MISCONFIGURED"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error represents a coded application error
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error with a user-facing message.
func New(code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps an error with additional message
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: CodeOf(err), Message: message, Err: err}
}

// WrapWithCode wraps an error with a code and message
func WrapWithCode(err error, code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost coded error in err's chain, or
// CodeInternal.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the user-facing message of the outermost coded error,
// falling back to err.Error().
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// HTTPStatus maps an error to the status code returned at the HTTP boundary.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeInvalidInput, CodeAccountNotConnected, CodeAlreadyPublished:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
