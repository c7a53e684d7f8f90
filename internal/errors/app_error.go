// Package errors defines the structured error type shared by the bootstrap
// pipeline and the panel API. Failures are classified so callers can tell
// which ones must reach the user and which are recovered silently.
package errors

import (
	"encoding/json"
	"fmt"
)

const (
	// CodeParseFailure marks malformed or absent redirect parameters.
	// Recovered locally; never shown to the user.
	CodeParseFailure = "parse_failure"

	// CodeExchangeFailure marks an unreachable exchange endpoint, a
	// non-success status, or an unparsable exchange body. Shown to the
	// user only when fallback synthesis is disabled for the current host.
	CodeExchangeFailure = "exchange_failure"

	// CodeCorruptSession marks an undeserializable stored session record.
	// Recovered by deleting the record; never shown to the user.
	CodeCorruptSession = "corrupt_session_data"

	// CodeMissingIdentity marks a redirect that carried identity markers
	// but no usable provider identifier. Always shown to the user.
	CodeMissingIdentity = "missing_identity"
)

// AppError represents a structured application error.
type AppError struct {
	// HTTPStatusCode is the HTTP status code to return when the error
	// surfaces through the panel API.
	HTTPStatusCode int `json:"-"`
	// Code is one of the Code* constants above.
	Code string `json:"code"`
	// Message is the user-facing error message.
	Message string `json:"message"`
	// Details provides additional error context (optional).
	Details map[string]interface{} `json:"details,omitempty"`
	// Err is the underlying error (not marshaled to JSON).
	Err error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// ToJSON returns the JSON byte representation of the error.
func (e *AppError) ToJSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// New creates a new AppError.
func New(statusCode int, code, message string, err error) *AppError {
	return &AppError{
		HTTPStatusCode: statusCode,
		Code:           code,
		Message:        message,
		Err:            err,
	}
}

// ExchangeFailed wraps a failed identity exchange in a user-facing error.
func ExchangeFailed(err error) *AppError {
	return New(502, CodeExchangeFailure, "Sign-in failed. Please try again.", err)
}

// MissingIdentity reports a redirect without a usable provider identifier.
func MissingIdentity() *AppError {
	return New(400, CodeMissingIdentity, "Sign-in did not include the required account information.", nil)
}

// LoginRejected reports a provider-side login error, keeping the provider's
// error token in the message so the user can see what was rejected.
func LoginRejected(param string) *AppError {
	return New(401, CodeExchangeFailure, fmt.Sprintf("Login failed: %s", param), nil)
}

// SaveFailed reports that a resolved session could not be persisted.
func SaveFailed(err error) *AppError {
	return New(500, CodeCorruptSession, "Could not save your session. Please try signing in again.", err)
}
