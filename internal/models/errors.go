package models

import (
	"errors"
	"fmt"
)

var (
	// validation errors
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidEnvironment = errors.New("invalid environment type")
	ErrProfileLimit       = errors.New("profile limit reached")
	ErrLastProfile        = errors.New("cannot delete the only profile")

	// conflict errors
	ErrDuplicateUsername    = errors.New("username already exists")
	ErrDuplicateProfileName = errors.New("profile name already exists")

	ErrNotFound         = errors.New("not found")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// DataError marks a stored record whose persisted form could not be decoded
// (corrupt timestamp, unreadable preferences blob). Collection reads match it
// with errors.As and skip the offending row instead of aborting the query.
type DataError struct {
	Field string
	Err   error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("corrupt %s: %v", e.Field, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }
