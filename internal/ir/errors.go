package ir

import "errors"

// ErrNotFound is returned by lookups when the requested entity does not exist.
// Store implementations translate their driver-specific "no rows" into it.
var ErrNotFound = errors.New("not found")
