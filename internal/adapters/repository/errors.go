package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidLimit = errors.New("invalid page limit")
)
