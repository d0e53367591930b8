// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound = errors.New("not found")

	// Pipeline signals.
	ErrExhausted = errors.New("all source rows have been produced")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// TransientIOError wraps a failed call against the object store or the
// relational store. Workers log it and retry on their next interval.
type TransientIOError struct {
	Err error
	Op  string
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientIOError for the named operation.
// A nil err stays nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *TransientIOError
	if errors.As(err, &existing) {
		return err
	}
	return &TransientIOError{Op: op, Err: err}
}

// IsTransient reports whether err is, or wraps, a TransientIOError.
func IsTransient(err error) bool {
	var transient *TransientIOError
	return errors.As(err, &transient)
}

// DataFormatError describes a chunk row whose required columns are missing or
// cannot be parsed. The row is skipped; the rest of the chunk is ingested.
type DataFormatError struct {
	Column string
	Reason string
	Line   int
}

func (e *DataFormatError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d: column %s: %s", e.Line, e.Column, e.Reason)
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}
