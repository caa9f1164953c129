package errors

import (
	stderrors "errors"
	"fmt"
)

// Category is the error taxonomy. It decides how a failure is handled.
type Category string

const (
	// CategoryTransport covers connection drops, ping timeouts and send
	// failures. Always retried, never shown to page authors.
	CategoryTransport Category = "transport"

	// CategoryProtocol covers unknown payloads, missing sessions or pages
	// and malformed widget state. The message fails with no state change.
	CategoryProtocol Category = "protocol"

	// CategoryApplication covers page handler failures. Reported upstream
	// as ScriptFinished FAILURE plus an Exception; the session survives.
	CategoryApplication Category = "application"

	// CategoryRegistration covers invalid setup detected at startup.
	CategoryRegistration Category = "registration"

	CategoryConfig Category = "config"
	CategoryCLI    Category = "cli"
)

// Error is a coded, categorized error.
type Error struct {
	// Code is a unique error identifier (e.g., "P003").
	Code string

	// Category is the error class.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Stack is the goroutine stack captured where the error arose, if any.
	Stack []byte

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports a match for another *Error with the same code, so
// errors.Is(err, errors.New("P003")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code != "" && t.Code == e.Code
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// WithStack attaches a captured stack trace.
func (e *Error) WithStack(stack []byte) *Error {
	e.Stack = stack
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates an Error with a formatted message (no code).
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps err in an Error with the given code. An *Error anywhere
// in err's chain is returned as-is.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return New(code).Wrap(err)
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// CategoryOf returns the category of the first *Error in err's chain.
// Errors outside the taxonomy are treated as application errors.
func CategoryOf(err error) Category {
	var e *Error
	if stderrors.As(err, &e) && e.Category != "" {
		return e.Category
	}
	return CategoryApplication
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := stderrors.As(err, &e)
	return e, ok
}
