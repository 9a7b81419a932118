package model

import (
	"errors"

	"github.com/rotisserie/eris"
)

var (
	// ErrNotFound is returned when a referenced source, conflict or pattern does not exist.
	ErrNotFound = eris.New("not found")

	// ErrAlreadyResolved marks a conflict that was resolved before the call.
	// Callers usually see it as a false/no-change result rather than an error.
	ErrAlreadyResolved = eris.New("conflict already resolved")

	// ErrIllegalTransition is returned when a status change is not in the transition table.
	ErrIllegalTransition = eris.New("illegal status transition")

	// ErrInvalidInput is returned for malformed caller input.
	ErrInvalidInput = eris.New("invalid input")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput reports whether err wraps ErrInvalidInput.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsIllegalTransition reports whether err wraps ErrIllegalTransition.
func IsIllegalTransition(err error) bool {
	return errors.Is(err, ErrIllegalTransition)
}
