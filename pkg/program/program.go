// Package program compiles program declarations into stratified, executable rule plans.
package program

import (
	"fmt"
	"strings"

	"github.com/l7mp/fixpoint/internal/dag"
	"github.com/l7mp/fixpoint/pkg/algebra"
	"github.com/l7mp/fixpoint/pkg/relation"
	"github.com/l7mp/fixpoint/pkg/util"
)

// Program is a compiled, validated program.
type Program struct {
	Name   string
	Params map[string]relation.Value
	// Relations lists the relation declarations in declaration order.
	Relations []relation.Declaration
	// Facts are the base tuples per relation.
	Facts map[string][]relation.Tuple
	Rules []*Rule
	// Strata lists the strata in evaluation order.
	Strata []*Stratum

	decls   map[string]relation.Declaration
	stratum map[string]int // derived relation -> stratum index
	graph   *dag.Graph
	deps    []Dependency
}

// Rule is a compiled rule.
type Rule struct {
	Name    string
	Head    string
	Stratum int
	// Plan evaluates the rule against full relations.
	Plan *algebra.Plan
	// Variants are the semi-naive variants of the rule, one per body atom that reads a derived
	// relation of the same stratum. Exactly that atom reads the delta relation in each variant.
	Variants []*algebra.Plan
}

// IsRecursive reports whether the rule reads a derived relation of its own stratum.
func (r *Rule) IsRecursive() bool { return len(r.Variants) > 0 }

// Stratum is a set of derived relations evaluated to a fixpoint together.
type Stratum struct {
	Index     int
	Relations []string
	Rules     []*Rule
}

// Dependency is an edge of the precedence graph: a rule deriving To reads From.
type Dependency struct {
	From, To string
	Rule     string
	Negative bool
}

// Declaration returns the declaration of a relation.
func (p *Program) Declaration(name string) (relation.Declaration, bool) {
	d, ok := p.decls[name]
	return d, ok
}

// IsDerived reports whether a relation is the head of a rule.
func (p *Program) IsDerived(name string) bool {
	_, ok := p.stratum[name]
	return ok
}

// StratumOf returns the stratum of a derived relation, or -1 for base relations.
func (p *Program) StratumOf(name string) int {
	if s, ok := p.stratum[name]; ok {
		return s
	}
	return -1
}

// Base lists the base relations in declaration order.
func (p *Program) Base() []string {
	ret := []string{}
	for _, d := range p.Relations {
		if !p.IsDerived(d.Name) {
			ret = append(ret, d.Name)
		}
	}
	return ret
}

// Derived lists the derived relations in declaration order.
func (p *Program) Derived() []string {
	ret := []string{}
	for _, d := range p.Relations {
		if p.IsDerived(d.Name) {
			ret = append(ret, d.Name)
		}
	}
	return ret
}

// Dependencies returns the edges of the precedence graph, one per body atom.
func (p *Program) Dependencies() []Dependency {
	return append([]Dependency{}, p.deps...)
}

// RulesFor returns the rules deriving a relation.
func (p *Program) RulesFor(head string) []*Rule {
	ret := []*Rule{}
	for _, r := range p.Rules {
		if r.Head == head {
			ret = append(ret, r)
		}
	}
	return ret
}

// Describe renders the strata and the compiled plans.
func (p *Program) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "program %s\n", p.Name)

	for _, n := range util.SortedKeys(p.Params) {
		fmt.Fprintf(&b, "param %s = %s\n", n, p.Params[n])
	}

	for _, d := range p.Relations {
		kind := "base"
		if p.IsDerived(d.Name) {
			kind = fmt.Sprintf("derived, stratum %d", p.StratumOf(d.Name))
		}
		r, _ := relation.New(d)
		fmt.Fprintf(&b, "relation %s%s [%s, %s]\n", d.Name, d.Schema, r.Discipline(), kind)
	}

	for _, s := range p.Strata {
		fmt.Fprintf(&b, "stratum %d: %s\n", s.Index, strings.Join(s.Relations, ", "))
		for _, r := range s.Rules {
			fmt.Fprintf(&b, "  rule %s\n", r.Name)
			fmt.Fprintf(&b, "    seed: %s\n", r.Plan)
			for _, v := range r.Variants {
				fmt.Fprintf(&b, "    Δ%s: %s\n", r.Plan.Binding.Alias(v.DeltaAtom), v)
			}
		}
	}

	return b.String()
}
