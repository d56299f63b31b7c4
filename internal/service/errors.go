package service

import "errors"

// Error codes surfaced to the conversational layer. Business-rule violations
// are never retried; TRANSIENT is the only code a caller should retry on.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidState     = "INVALID_STATE"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeMalformed        = "MALFORMED"
	CodeTransient        = "TRANSIENT"
	CodeNoStaffAvailable = "NO_STAFF_AVAILABLE"
)

// Error is a coded business error. Handlers translate it into the
// {"error":{code,message}} envelope; the message is written for the end
// user so the conversational layer can relay it verbatim.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func notFound(msg string) *Error     { return &Error{Code: CodeNotFound, Message: msg} }
func invalidState(msg string) *Error { return &Error{Code: CodeInvalidState, Message: msg} }
func unauthorized(msg string) *Error { return &Error{Code: CodeUnauthorized, Message: msg} }
func malformed(msg string) *Error    { return &Error{Code: CodeMalformed, Message: msg} }

// ErrorCode extracts the business code from err, defaulting to TRANSIENT
// for storage and I/O failures.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeTransient
}
