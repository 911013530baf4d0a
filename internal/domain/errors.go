package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateRecord = errors.New("duplicate record")
	ErrBackendFailure  = errors.New("backend failure")
	ErrEmptyResult     = errors.New("empty result")
	ErrInvalidTask     = errors.New("invalid task")
	ErrAlreadyRunning  = errors.New("generation already running")
)
