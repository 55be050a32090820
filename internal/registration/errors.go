package registration

import "errors"

var (
	// ErrInvalidInput indicates a missing or malformed field.
	ErrInvalidInput = errors.New("email and password required")
	// ErrConflict indicates a record with the same email or id already exists.
	ErrConflict = errors.New("user exists")
	// ErrNotFound indicates no record matches the requested id.
	ErrNotFound = errors.New("not found")
	// ErrPersistence indicates the document could not be read or written.
	ErrPersistence = errors.New("persistence failure")
)
