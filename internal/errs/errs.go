// Package errs models the small, closed set of error kinds the needle server
// can return, in the shape of the teacher's alextanhongpin/errors/cause.Error
// (Code, Name, Message, an HTTP status mapping) reproduced locally since that
// module is private to its own workspace.
package errs

import "fmt"

// Code is a machine-readable error classification.
type Code int

const (
	Unknown Code = iota
	Invalid
	NotFound
	Internal
)

// httpStatus mirrors the teacher's codes.HTTP(code) lookup.
var httpStatus = map[Code]int{
	Unknown:  500,
	Invalid:  400,
	NotFound: 404,
	Internal: 500,
}

// Error is a structured error carrying a Code, a stable Name for API
// consumers, and a human Message.
type Error struct {
	Code    Code
	Name    string
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Name, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// HTTPStatus returns the HTTP status code this error maps to.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return 500
}

// New constructs an Error with no wrapped cause.
func New(code Code, name, message string) *Error {
	return &Error{Code: code, Name: name, Message: message}
}

// Wrap attaches a Code and Name to an underlying error, preserving it via Unwrap.
func Wrap(code Code, name string, err error) *Error {
	return &Error{Code: code, Name: name, Message: err.Error(), err: err}
}

// ConfigurationError signals a structurally or semantically invalid
// configuration bundle.
func ConfigurationError(err error) *Error {
	return Wrap(Invalid, "CONFIGURATION_ERROR", err)
}

// AssignmentCoverageError signals that no experiment or branch covers a
// given point in the cumulative split for a site-area — an internal
// invariant violation, never a client mistake.
func AssignmentCoverageError(siteArea string) *Error {
	return New(Internal, "ASSIGNMENT_COVERAGE_ERROR", fmt.Sprintf("no branch covers site-area %q", siteArea))
}

// NameBadRequest is the stable Name BadRequest errors carry, used by
// internal/httpapi to pick the plain-text response body §7 requires for
// this one error kind.
const NameBadRequest = "BAD_REQUEST"

// BadRequest signals a malformed or missing request parameter.
func BadRequest(message string) *Error {
	return New(Invalid, NameBadRequest, message)
}

// ReportError signals a failure while evaluating or publishing a report run.
func ReportError(err error) *Error {
	return Wrap(Internal, "REPORT_ERROR", err)
}

// NotFoundError signals a request for an experiment or resource that does
// not exist in the current configuration.
func NotFoundError(message string) *Error {
	return New(NotFound, "NOT_FOUND", message)
}
