package predicate

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTaxonomy is returned when no taxonomy key is configured.
	ErrNoTaxonomy = errors.New("taxonomy key is required")

	// ErrNoRecordTypes is returned when the record type set is empty.
	ErrNoRecordTypes = errors.New("at least one record type is required")

	// ErrNoRecordStatuses is returned when the record status set is empty.
	ErrNoRecordStatuses = errors.New("at least one record status is required")

	// ErrNoSkipMetaKey is returned when the skip-marker key is empty.
	ErrNoSkipMetaKey = errors.New("skip marker key is required")
)

// InvalidRangeError is returned when an id window is empty or inverted.
// Both bounds are exclusive, so Below must be strictly greater than Above.
type InvalidRangeError struct {
	Above int64
	Below int64
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid id range: above-id (%d) must be less than below-id (%d)", e.Above, e.Below)
}

// IsInvalidRange returns true if the error is an InvalidRangeError.
// Uses errors.As to handle wrapped errors.
func IsInvalidRange(err error) bool {
	var re *InvalidRangeError
	return errors.As(err, &re)
}
