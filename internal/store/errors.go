package store

import "errors"

// Sentinel kinds for store lookups.
var (
	ErrNotFound     = errors.New("document not found")
	ErrInvalidRange = errors.New("invalid query range")
)
