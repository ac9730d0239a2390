package dataset

import "errors"

// ErrStorageUnavailable means durable storage could not be read or written
// and no usable local copy exists. It is fatal for a checkpoint.
var ErrStorageUnavailable = errors.New("dataset storage unavailable")

// ErrNotFound means no dataset exists for the requested date
var ErrNotFound = errors.New("dataset not found")
