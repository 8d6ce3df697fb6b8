package pipeline

import "errors"

// The worker's failure taxonomy. Validation and fatal errors terminate the
// job with a FAILED result and are never retried; transient I/O is retried
// inside the storage layer; partial-batch errors are logged and skipped by
// the stage that sees them.
var (
	// ErrValidation covers oversized files, disallowed types and malformed
	// archives.
	ErrValidation = errors.New("pipeline: validation failed")

	// ErrNoOutputsUploaded means every upload in the final stage failed.
	ErrNoOutputsUploaded = errors.New("pipeline: no outputs uploaded")

	// ErrUnknownClass means the request named a media class this worker
	// does not handle.
	ErrUnknownClass = errors.New("pipeline: unknown media class")
)
