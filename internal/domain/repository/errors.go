package repository

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDirectoryUnavailable means the User Directory could not be reached,
	// timed out or answered with a non-success status.
	ErrDirectoryUnavailable = errors.New("user directory unavailable")

	// ErrDirectoryProtocol means the User Directory answered with a body that could not be parsed.
	ErrDirectoryProtocol = errors.New("user directory protocol error")

	// ErrMalformedEvent means an inbound message could not be turned into a ProductAvailableEvent.
	ErrMalformedEvent = errors.New("malformed product available event")
)
