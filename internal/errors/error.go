package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error by how far it is allowed to propagate.
type Kind string

const (
	KindExpression          Kind = "ExpressionError"
	KindPatchTargetNotFound Kind = "PatchTargetNotFound"
	KindMalformedFrame      Kind = "MalformedFrame"
	KindStreamTransport     Kind = "StreamTransportError"
	KindReactiveCycle       Kind = "ReactiveCycleError"
	KindConfig              Kind = "ConfigError"
)

// Location points at the markup an error originated from.
type Location struct {
	// Element is a short description of the element (e.g. "button#save").
	Element string

	// Attribute is the attribute name the expression came from.
	Attribute string

	// Column is the 1-based offset into the source text, if known.
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	s := l.Element
	if l.Attribute != "" {
		if s != "" {
			s += " "
		}
		s += "[" + l.Attribute + "]"
	}
	if l.Column > 0 {
		s += fmt.Sprintf(":%d", l.Column)
	}
	return s
}

// Error is a structured runtime error.
type Error struct {
	// Code is a unique error identifier (e.g., "E001").
	Code string

	// Kind is the taxonomy entry the error belongs to.
	Kind Kind

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Source is the expression or frame text that caused the error.
	Source string

	// Location is the markup location where the error occurred.
	Location *Location

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
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

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Code == "" {
		return false
	}
	return t.Code == e.Code
}

// WithLocation adds the markup location to the error.
func (e *Error) WithLocation(element, attribute string, column int) *Error {
	e.Location = &Location{Element: element, Attribute: attribute, Column: column}
	return e
}

// WithSource records the source text that failed.
func (e *Error) WithSource(src string) *Error {
	e.Source = src
	return e
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

// WithDetailf adds a formatted explanation to the error.
func (e *Error) WithDetailf(format string, args ...any) *Error {
	e.Detail = fmt.Sprintf(format, args...)
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
		Code:       code,
		Kind:       template.Kind,
		Message:    template.Message,
		Suggestion: template.Suggestion,
	}
}

// Newf creates a new Error of the given kind with a formatted message (no code).
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in an Error.
// Errors that already carry a Kind are returned unchanged.
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

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err's tree contains an *Error of kind k.
// Joined errors are searched too.
func IsKind(err error, k Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == k {
			return true
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				if IsKind(inner, k) {
					return true
				}
			}
			return false
		}
		err = stderrors.Unwrap(err)
	}
	return false
}
