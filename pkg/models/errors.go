package models

import (
	"errors"
	"fmt"
)

var (
	// ErrAssetNotFound is returned when a symbol is not in the registry
	ErrAssetNotFound = errors.New("asset not found")

	// ErrDuplicateObservation marks an observation already stored for the same asset and timestamp.
	// It is a skip condition, never a failure of the run.
	ErrDuplicateObservation = errors.New("duplicate price observation")
)

// FetchError is returned by price fetchers when the external source can't be read
type FetchError struct {
	Source     string
	StatusCode int // 0 for transport errors
	Retryable  bool
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch failed after %d attempt(s): status %d: %v", e.Source, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch failed after %d attempt(s): %v", e.Source, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps storage read/write failures
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err came from the price source
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsPersistenceError reports whether err came from storage
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
