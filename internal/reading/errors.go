package reading

import "errors"

// Domain errors for the reading package.
var (
	// ErrReadingNotFound is returned when a reading ID does not exist.
	ErrReadingNotFound = errors.New("reading: not found")

	// ErrReadingExists is returned when inserting a reading whose ID is taken.
	ErrReadingExists = errors.New("reading: already exists")

	// ErrAlreadyProcessed is returned by MarkProcessed after the first call.
	ErrAlreadyProcessed = errors.New("reading: already processed")
)
