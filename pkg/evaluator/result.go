package evaluator

import (
	"github.com/l7mp/fixpoint/pkg/relation"
)

// Result holds the relations of an evaluated program.
type Result struct {
	names     []string
	relations map[string]*relation.Relation
}

// Names lists the relations in declaration order.
func (r *Result) Names() []string { return append([]string{}, r.names...) }

// Relation returns a relation by name.
func (r *Result) Relation(name string) (*relation.Relation, bool) {
	rel, ok := r.relations[name]
	return rel, ok
}

// Tuples returns the sorted contents of a relation, or nil if the relation does not exist.
func (r *Result) Tuples(name string) []relation.Tuple {
	rel, ok := r.relations[name]
	if !ok {
		return nil
	}
	return rel.Tuples()
}
