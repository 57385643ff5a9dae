package analytics

import (
	"errors"
	"fmt"

	"github.com/machinepulse/machinepulse/pkg/types"
)

// Sentinel errors for invalid arguments. Degenerate but valid input never
// produces an error.
var (
	// ErrInvalidField is returned when a field name is empty.
	ErrInvalidField = errors.New("invalid field name")

	// ErrUnknownField is returned when bounds for a required field were not supplied.
	ErrUnknownField = errors.New("unknown field")

	// ErrInvalidSequence is returned when reading indices are negative or
	// not strictly increasing.
	ErrInvalidSequence = errors.New("invalid reading sequence")

	// ErrInvalidConfig is returned for out-of-range estimator settings.
	ErrInvalidConfig = errors.New("invalid indicator config")
)

// validateSequence checks that indices are non-negative and strictly increasing.
func validateSequence(readings []types.Reading) error {
	prev := -1
	for i, r := range readings {
		if r.Index < 0 {
			return fmt.Errorf("reading %d has negative index %d: %w", i, r.Index, ErrInvalidSequence)
		}
		if r.Index <= prev {
			return fmt.Errorf("reading %d index %d does not follow %d: %w", i, r.Index, prev, ErrInvalidSequence)
		}
		prev = r.Index
	}
	return nil
}
