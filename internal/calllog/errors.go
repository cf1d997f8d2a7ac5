package calllog

import "errors"

var (
	// ErrNotFound is returned when no record matches the provider call id
	ErrNotFound = errors.New("call log not found")

	// ErrDuplicateCall is returned when a record for the provider call id already exists
	ErrDuplicateCall = errors.New("call log already exists for provider call id")
)
