package evaluator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/l7mp/fixpoint/pkg/relation"
)

var (
	// ErrConfiguration is returned for invalid programs.
	ErrConfiguration = relation.ErrConfiguration
	// ErrMergeConflict is returned when a keyed relation receives two tuples with the same key.
	ErrMergeConflict = relation.ErrMergeConflict
	// ErrNonTermination is returned when a stratum does not reach a fixpoint in time.
	ErrNonTermination = errors.New("fixpoint not reached")
	// ErrAlreadyRun is returned when an evaluator is run twice.
	ErrAlreadyRun = errors.New("evaluator already run")
)

// NonTerminationError reports a stratum that failed to reach a fixpoint within the iteration
// limit, along with the last state of its relations.
type NonTerminationError struct {
	Stratum    int
	Iterations int
	// Relations holds the contents of the derived relations of the stratum.
	Relations map[string][]relation.Tuple
	// Deltas holds the tuples derived in the last round.
	Deltas map[string][]relation.Tuple
}

func NewNonTerminationError(stratum, iterations int, rels, deltas map[string][]relation.Tuple) error {
	return &NonTerminationError{
		Stratum:    stratum,
		Iterations: iterations,
		Relations:  rels,
		Deltas:     deltas,
	}
}

func (e *NonTerminationError) Error() string {
	names := make([]string, 0, len(e.Deltas))
	for n, ts := range e.Deltas {
		if len(ts) > 0 {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return fmt.Sprintf("%s: stratum %d after %d iterations, still changing: %v",
		ErrNonTermination.Error(), e.Stratum, e.Iterations, names)
}

func (e *NonTerminationError) Is(target error) bool { return target == ErrNonTermination }
