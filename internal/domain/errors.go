// Package domain holds the error kinds shared by every aggregate package.
package domain

import "errors"

var (
	// ErrUnauthenticated is returned when an operation is invoked without a user identity.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden is returned when the caller's role does not permit the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrStoreUnavailable wraps connectivity and timeout failures of a backing store.
	ErrStoreUnavailable = errors.New("store unavailable")
)
