package repository

import "errors"

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrNoMatch is returned when a conditional update's predicate matched no record.
	// The record may exist in another state.
	ErrNoMatch = errors.New("conditional update matched no record")
)
