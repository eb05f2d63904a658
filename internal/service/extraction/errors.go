package extraction

import "errors"

var (
	// ErrUnknownFormat is returned when a file's mime type cannot be determined.
	ErrUnknownFormat = errors.New("unknown document format")

	// ErrJobCancelled is returned by chunked processing once its job has been
	// cancelled. Text of units finished before cancellation is returned with it.
	ErrJobCancelled = errors.New("extraction job cancelled")
)
