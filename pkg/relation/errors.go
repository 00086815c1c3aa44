package relation

import (
	"errors"
	"fmt"
)

// ErrConfiguration is returned, possibly wrapped, whenever a program is malformed: unknown
// relations, attributes or parameters, schema mismatches, bad key or lattice declarations and
// unstratifiable negation.
var ErrConfiguration = errors.New("configuration error")

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// ErrMergeConflict is matched by MergeConflictError.
var ErrMergeConflict = errors.New("merge conflict")

// MergeConflictError is returned when a tuple is inserted into a keyed relation without a lattice
// column and the key is already mapped to a different tuple.
type MergeConflictError struct {
	Relation string
	Key      Tuple
	Existing Tuple
	Incoming Tuple
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("%s: relation %q: key %s is bound to %s, refusing %s", ErrMergeConflict,
		e.Relation, e.Key, e.Existing, e.Incoming)
}

func (e *MergeConflictError) Is(target error) bool { return target == ErrMergeConflict }
