// Package testutils contains fixtures shared by the tests.
package testutils

import (
	"fmt"

	"github.com/l7mp/fixpoint/pkg/relation"
)

// Tuples builds a sorted list of tuples from rows of Go values. It panics on values that cannot be
// stored in a relation.
func Tuples(rows ...[]any) []relation.Tuple {
	ret := make([]relation.Tuple, 0, len(rows))
	for _, row := range rows {
		ret = append(ret, Tuple(row...))
	}
	relation.SortTuples(ret)
	return ret
}

// Tuple builds a single tuple. It panics on values that cannot be stored in a relation.
func Tuple(vs ...any) relation.Tuple {
	t, err := relation.NewTuple(vs...)
	if err != nil {
		panic(fmt.Sprintf("invalid test tuple %v: %s", vs, err))
	}
	return t
}

var (
	// CyclicAssembly is a program whose additive max-lattice rule never converges since parts
	// depend on each other.
	CyclicAssembly = `
name: cyclic-assembly
relations:
  - name: part_depends
    attributes: [{name: part, type: string}, {name: component, type: string}]
  - name: assembly_time
    attributes: [{name: part, type: string}, {name: days, type: int}]
  - name: ready_date
    attributes: [{name: part, type: string}, {name: days, type: int}]
    lattice: {column: days, join: max}
facts:
  part_depends: [[Engine, Piston], [Piston, Engine]]
  assembly_time: [[Engine, 2], [Piston, 1]]
rules:
  - name: start
    head: {relation: ready_date, columns: {part: $a.part, days: $a.days}}
    body: [{relation: assembly_time, as: a}]
  - name: assembled
    head:
      relation: ready_date
      columns: {part: $pd.part, days: {"@add": [$a.days, $r.days]}}
    body:
      - {relation: part_depends, as: pd}
      - {relation: assembly_time, as: a, match: {part: $pd.part}}
      - {relation: ready_date, as: r, match: {part: $pd.component}}
`

	// ConflictingOwners derives two different owners for the same key.
	ConflictingOwners = `
name: conflicting-owners
relations:
  - name: claim
    attributes: [{name: item, type: string}, {name: who, type: string}]
  - name: owner
    attributes: [{name: item, type: string}, {name: who, type: string}]
    key: [item]
facts:
  claim: [[car, alice], [car, bob], [bike, carol]]
rules:
  - head: {relation: owner, columns: {item: $c.item, who: $c.who}}
    body: [{relation: claim, as: c}]
`
)
