package persist

import "errors"

// Sentinel errors for snapshot operations.
var (
	ErrLoadFailed = errors.New("snapshot load failed")
	ErrSaveFailed = errors.New("snapshot save failed")
)
