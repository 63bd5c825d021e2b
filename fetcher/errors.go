package fetcher

import "fmt"

// ErrorCode is the category of a per-item failure.
type ErrorCode string

const (
	// CodePermissionDenied: the read grant for a content reference was refused.
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// CodeInvalidLocation: the location looked like a URL but could not be parsed.
	CodeInvalidLocation ErrorCode = "INVALID_LOCATION"

	// CodeUpstream: the server answered with something other than 200 or 304.
	CodeUpstream ErrorCode = "UPSTREAM_ERROR"

	// CodeIO: network or filesystem failure while transferring.
	CodeIO ErrorCode = "IO_FAILURE"
)

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrPermissionDenied = &Error{Code: CodePermissionDenied}
	ErrInvalidLocation  = &Error{Code: CodeInvalidLocation}
	ErrUpstream         = &Error{Code: CodeUpstream}
	ErrIO               = &Error{Code: CodeIO}
)

// Error is a failure of one item. Message is what ends up in the refresh
// report next to the item title.
type Error struct {
	Code       ErrorCode
	Message    string
	StatusCode int // set for CodeUpstream
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return fmt.Sprintf("[%s] %v", e.Code, e.Cause)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Summary is the short, human readable text for reports.
func (e *Error) Summary() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Code)
}

func newPermissionDenied() *Error {
	return &Error{Code: CodePermissionDenied, Message: "Permission denied"}
}

func newInvalidLocation(location string, cause error) *Error {
	return &Error{Code: CodeInvalidLocation, Message: "Invalid URL: " + location, Cause: cause}
}

func newUpstreamError(code int, status string) *Error {
	return &Error{
		Code:       CodeUpstream,
		Message:    fmt.Sprintf("Server responded with %d %s", code, status),
		StatusCode: code,
	}
}

func newIOError(cause error) *Error {
	return &Error{Code: CodeIO, Cause: cause}
}
