package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures for callers.
type ErrorKind string

const (
	KindFetch          ErrorKind = "FetchError"
	KindValidation     ErrorKind = "ValidationError"
	KindNoImagesFound  ErrorKind = "NoImagesFoundError"
	KindClassification ErrorKind = "ClassificationError"
)

// Error is the only error type that leaves the pipeline.
// Message is safe to show to end users; Err keeps the underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a pipeline error.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of a pipeline error, or "" for any other error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
