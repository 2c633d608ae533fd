package storage

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an insert violates a uniqueness
	// constraint. The record stores are append-only and do not allow
	// updates through inserts.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when the input fails validation.
	ErrInvalidInput = errors.New("invalid input")
)
