// Package v1alpha1 contains the serialized form of fixpoint programs.
package v1alpha1

import (
	"github.com/l7mp/fixpoint/pkg/expression"
	"github.com/l7mp/fixpoint/pkg/relation"
)

// Program is a set of relations, base facts and rules. Relations that appear in the head of a
// rule are derived, every other relation holds base facts only.
type Program struct {
	// Name is the name of the program.
	Name string `json:"name" validate:"required"`

	// Params are named constants rules can refer to with the @param operator. Values may be
	// overridden when the program is compiled.
	Params map[string]relation.Value `json:"params,omitempty"`

	// Relations declares the relations of the program.
	Relations []Relation `json:"relations" validate:"required,min=1,dive"`

	// Facts lists the base tuples of each relation, one list of values per tuple.
	Facts map[string][][]relation.Value `json:"facts,omitempty"`

	// Rules are the Horn clauses deriving new tuples.
	Rules []Rule `json:"rules,omitempty" validate:"dive"`
}

// Relation declares a relation.
type Relation struct {
	// Name is the name of the relation.
	Name string `json:"name" validate:"required"`

	// Attributes is the schema of the relation.
	Attributes []Attribute `json:"attributes" validate:"required,min=1,dive"`

	// Key lists the attributes identifying a tuple. A keyed relation without a lattice rejects
	// conflicting tuples with the same key.
	Key []string `json:"key,omitempty"`

	// Lattice makes the relation lattice-valued: the lattice column holds the join of all values
	// derived for the key formed by the other attributes.
	Lattice *Lattice `json:"lattice,omitempty"`
}

// Attribute is a typed column.
type Attribute struct {
	Name string `json:"name" validate:"required"`
	// Type is one of int, string or unit.
	Type string `json:"type" validate:"required,oneof=int string unit"`
}

// Lattice specifies the lattice column of a relation.
type Lattice struct {
	// Column is the lattice-valued attribute, must be the last one.
	Column string `json:"column" validate:"required"`
	// Join is the lattice join, max or min.
	Join string `json:"join" validate:"required,oneof=max min"`
}

// Rule derives tuples of the head relation from the tuples matching the body.
type Rule struct {
	// Name identifies the rule in logs and errors. Defaults to the head relation name and the
	// index of the rule.
	Name string `json:"name,omitempty"`

	// Head is the derived tuple.
	Head Head `json:"head"`

	// Body is the conjunction of atoms to match, bound in order.
	Body []Atom `json:"body" validate:"required,min=1,dive"`

	// Where is an optional predicate over all atoms.
	Where *expression.Expression `json:"where,omitempty"`

	// Not lists the negated atoms: a body match is dropped if a matching tuple exists.
	Not []NegatedAtom `json:"not,omitempty" validate:"dive"`
}

// Head specifies the derived tuple.
type Head struct {
	// Relation is the name of the derived relation.
	Relation string `json:"relation" validate:"required"`

	// Columns sets each attribute of the head relation.
	Columns map[string]expression.Expression `json:"columns" validate:"required,min=1"`
}

// Atom is a relation occurrence in a rule body.
type Atom struct {
	// Relation is the name of the relation to match.
	Relation string `json:"relation" validate:"required"`

	// As is the alias the atom is referred to by, defaults to the relation name.
	As string `json:"as,omitempty"`

	// Match equates attributes of the atom with expressions over atoms bound earlier or constants.
	Match map[string]expression.Expression `json:"match,omitempty"`

	// Where is an optional predicate evaluated once the atom is bound.
	Where *expression.Expression `json:"where,omitempty"`
}

// NegatedAtom is a NOT EXISTS condition. Attributes not listed in Match match anything.
type NegatedAtom struct {
	// Relation is the name of the relation to check.
	Relation string `json:"relation" validate:"required"`

	// Match equates attributes of the negated relation with expressions over the body atoms.
	Match map[string]expression.Expression `json:"match,omitempty"`
}
