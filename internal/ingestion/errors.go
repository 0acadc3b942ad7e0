package ingestion

import (
	"errors"

	"github.com/nerrad567/storefront-telemetry/internal/inventory"
)

// Ingestion errors. A submission rejected with any of these leaves no
// visible reading or alert, and any stock change it made is reverted.
var (
	// ErrUnknownDevice means the submission names a device the registry
	// does not know. Not retryable.
	ErrUnknownDevice = errors.New("ingestion: unknown device")

	// ErrInvalidSubmission means the submission is malformed.
	ErrInvalidSubmission = errors.New("ingestion: invalid submission")

	// ErrPersistenceFailure means the reading or device store failed.
	ErrPersistenceFailure = errors.New("ingestion: persistence failure")

	// ErrIngestionTimeout means a store call exceeded its deadline.
	// The whole submission may be retried.
	ErrIngestionTimeout = errors.New("ingestion: timeout")
)

// ErrCatalogItemNotFound is reported (logged) when reconciliation targets
// a missing catalog item. It never fails a submission.
var ErrCatalogItemNotFound = inventory.ErrItemNotFound
