package storage

import "errors"

var (
	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists is returned when trying to create a resource that already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrStaleStatus is returned when a status update loses against a
	// concurrent transition (the optimistic where-clause matched no row)
	ErrStaleStatus = errors.New("status changed concurrently")
)
