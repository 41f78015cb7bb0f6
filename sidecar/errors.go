package sidecar

import "errors"

// Sentinel errors for manager operations.
var (
	ErrNotStarted = errors.New("sidecar not started")
	ErrShutDown   = errors.New("sidecar shut down")
)
