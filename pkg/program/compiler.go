package program

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/go-logr/logr"

	"github.com/l7mp/fixpoint/internal/dag"
	"github.com/l7mp/fixpoint/pkg/algebra"
	"github.com/l7mp/fixpoint/pkg/api/v1alpha1"
	"github.com/l7mp/fixpoint/pkg/expression"
	"github.com/l7mp/fixpoint/pkg/relation"
	"github.com/l7mp/fixpoint/pkg/util"
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options control compilation.
type Options struct {
	// Params override the parameters declared by the program.
	Params map[string]relation.Value
	Logger logr.Logger
}

// Compiler turns program declarations into Programs.
type Compiler struct {
	params map[string]relation.Value
	log    logr.Logger
}

// NewCompiler creates a compiler.
func NewCompiler(opts Options) *Compiler {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return &Compiler{params: opts.Params, log: logger.WithName("compiler")}
}

// Compile compiles a program declaration with the given options.
func Compile(spec *v1alpha1.Program, opts Options) (*Program, error) {
	return NewCompiler(opts).Compile(spec)
}

// Compile validates a program declaration and compiles it. Every error is a configuration error.
func (c *Compiler) Compile(spec *v1alpha1.Program) (*Program, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	p := &Program{
		Name:    spec.Name,
		Params:  map[string]relation.Value{},
		Facts:   map[string][]relation.Tuple{},
		decls:   map[string]relation.Declaration{},
		stratum: map[string]int{},
		graph:   dag.New(),
	}

	for _, r := range spec.Relations {
		decl, err := declaration(r)
		if err != nil {
			return nil, err
		}
		if _, ok := p.decls[decl.Name]; ok {
			return nil, relation.NewConfigurationError("duplicate relation %q", decl.Name)
		}
		p.decls[decl.Name] = decl
		p.Relations = append(p.Relations, decl)
		p.graph.AddNode(decl.Name)
	}

	if err := c.compileParams(p, spec); err != nil {
		return nil, err
	}

	derived := map[string]bool{}
	for i, r := range spec.Rules {
		if _, ok := p.decls[r.Head.Relation]; !ok {
			return nil, relation.NewConfigurationError("rule %s: unknown head relation %q",
				ruleName(r, i), r.Head.Relation)
		}
		derived[r.Head.Relation] = true
	}

	if err := compileFacts(p, spec, derived); err != nil {
		return nil, err
	}

	// precedence graph
	for i, r := range spec.Rules {
		name := ruleName(r, i)
		for _, a := range r.Body {
			if _, ok := p.decls[a.Relation]; !ok {
				return nil, relation.NewConfigurationError("rule %s: unknown relation %q", name,
					a.Relation)
			}
			p.graph.AddEdge(a.Relation, r.Head.Relation, false)
			p.deps = append(p.deps, Dependency{From: a.Relation, To: r.Head.Relation, Rule: name})
		}
		for _, n := range r.Not {
			if _, ok := p.decls[n.Relation]; !ok {
				return nil, relation.NewConfigurationError("rule %s: unknown negated relation %q",
					name, n.Relation)
			}
			p.graph.AddEdge(n.Relation, r.Head.Relation, true)
			p.deps = append(p.deps, Dependency{From: n.Relation, To: r.Head.Relation, Rule: name,
				Negative: true})
		}
	}

	strata, err := stratify(p.graph, derived)
	if err != nil {
		return nil, err
	}
	p.stratum = strata

	numStrata := 0
	for _, s := range strata {
		numStrata = max(numStrata, s+1)
	}
	p.Strata = make([]*Stratum, numStrata)
	for i := range p.Strata {
		p.Strata[i] = &Stratum{Index: i}
	}
	for _, d := range p.Relations {
		if s, ok := strata[d.Name]; ok {
			p.Strata[s].Relations = append(p.Strata[s].Relations, d.Name)
		}
	}

	for i, r := range spec.Rules {
		rule, err := c.compileRule(p, ruleName(r, i), r)
		if err != nil {
			return nil, err
		}
		p.Rules = append(p.Rules, rule)
		p.Strata[rule.Stratum].Rules = append(p.Strata[rule.Stratum].Rules, rule)
	}

	c.log.V(1).Info("program compiled", "name", p.Name, "relations", len(p.Relations),
		"rules", len(p.Rules), "strata", len(p.Strata))

	return p, nil
}

func ruleName(r v1alpha1.Rule, i int) string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("%s#%d", r.Head.Relation, i)
}

func declaration(r v1alpha1.Relation) (relation.Declaration, error) {
	if !namePattern.MatchString(r.Name) {
		return relation.Declaration{}, relation.NewConfigurationError("invalid relation name %q", r.Name)
	}

	decl := relation.Declaration{Name: r.Name, Key: r.Key}
	for _, a := range r.Attributes {
		if !namePattern.MatchString(a.Name) {
			return relation.Declaration{}, relation.NewConfigurationError("relation %q: invalid "+
				"attribute name %q", r.Name, a.Name)
		}
		k, err := relation.ParseKind(a.Type)
		if err != nil {
			return relation.Declaration{}, err
		}
		decl.Schema.Attributes = append(decl.Schema.Attributes, relation.Attribute{Name: a.Name, Type: k})
	}

	if r.Lattice != nil {
		l, err := relation.LatticeByName(r.Lattice.Join)
		if err != nil {
			return relation.Declaration{}, err
		}
		decl.Lattice = l
		decl.LatticeColumn = r.Lattice.Column
	}

	if _, _, err := decl.Validate(); err != nil {
		return relation.Declaration{}, err
	}

	return decl, nil
}

func (c *Compiler) compileParams(p *Program, spec *v1alpha1.Program) error {
	for k, v := range spec.Params {
		p.Params[k] = v
	}
	for k, v := range c.params {
		old, ok := spec.Params[k]
		if !ok {
			return relation.NewConfigurationError("unknown parameter %q", k)
		}
		if old.Kind() != v.Kind() {
			return relation.NewConfigurationError("parameter %q expects %s, got %s", k, old.Kind(),
				v.Kind())
		}
		p.Params[k] = v
	}
	return nil
}

func compileFacts(p *Program, spec *v1alpha1.Program, derived map[string]bool) error {
	for _, n := range util.SortedKeys(spec.Facts) {
		decl, ok := p.decls[n]
		if !ok {
			return relation.NewConfigurationError("facts for unknown relation %q", n)
		}
		if derived[n] {
			return relation.NewConfigurationError("facts for derived relation %q", n)
		}
		ts := make([]relation.Tuple, 0, len(spec.Facts[n]))
		for _, row := range spec.Facts[n] {
			t := relation.Tuple(row)
			if err := decl.Schema.Check(t); err != nil {
				return relation.NewConfigurationError("facts for relation %q: %s", n, err.Error())
			}
			ts = append(ts, t)
		}
		p.Facts[n] = ts
	}
	return nil
}

func (c *Compiler) compileRule(p *Program, name string, r v1alpha1.Rule) (*Rule, error) {
	s := p.stratum[r.Head.Relation]
	rule := &Rule{Name: name, Head: r.Head.Relation, Stratum: s}

	plan, err := c.plan(p, name, r, -1)
	if err != nil {
		return nil, err
	}
	rule.Plan = plan

	for i, a := range r.Body {
		if as, ok := p.stratum[a.Relation]; ok && as == s {
			v, err := c.plan(p, name, r, i)
			if err != nil {
				return nil, err
			}
			rule.Variants = append(rule.Variants, v)
		}
	}

	c.log.V(2).Info("rule compiled", "rule", name, "stratum", s, "plan", plan.String(),
		"variants", len(rule.Variants))

	return rule, nil
}

// plan compiles a rule body. The atom at deltaAtom, if not -1, reads the delta relation.
func (c *Compiler) plan(p *Program, name string, r v1alpha1.Rule, deltaAtom int) (*algebra.Plan, error) {
	b := algebra.NewBinding()
	ops := []algebra.Operator{}

	for i, a := range r.Body {
		decl := p.decls[a.Relation]
		alias := a.As
		if alias == "" {
			alias = a.Relation
		}
		if !namePattern.MatchString(alias) {
			return nil, relation.NewConfigurationError("rule %s: invalid alias %q", name, alias)
		}
		slot, err := b.Bind(alias, decl.Schema)
		if err != nil {
			return nil, relation.NewConfigurationError("rule %s: %s", name, err.Error())
		}

		cols, keys, err := p.matches(name, decl, a.Match, b, slot-1)
		if err != nil {
			return nil, err
		}

		atom := algebra.Atom{
			Relation: a.Relation,
			Alias:    alias,
			Slot:     slot,
			Cols:     cols,
			Keys:     keys,
			Filter:   a.Where,
		}
		if i == deltaAtom {
			atom.Source = algebra.Delta
		}
		if a.Where != nil {
			if err := p.checkExpression(name, a.Where, b, slot); err != nil {
				return nil, err
			}
		}

		if i == 0 {
			ops = append(ops, algebra.NewScan(b, atom))
		} else {
			ops = append(ops, algebra.NewJoin(b, atom))
		}
	}
	last := b.Width() - 1

	if r.Where != nil {
		if err := p.checkExpression(name, r.Where, b, last); err != nil {
			return nil, err
		}
		ops = append(ops, algebra.NewSelection(b, *r.Where))
	}

	for _, n := range r.Not {
		decl := p.decls[n.Relation]
		cols, keys, err := p.matches(name, decl, n.Match, b, last)
		if err != nil {
			return nil, err
		}
		ops = append(ops, algebra.NewAntiJoin(b, n.Relation, decl.Schema, cols, keys))
	}

	head := p.decls[r.Head.Relation]
	cols := make([]expression.Expression, head.Schema.Arity())
	for attr, exp := range r.Head.Columns {
		i := head.Schema.Index(attr)
		if i < 0 {
			return nil, relation.NewConfigurationError("rule %s: unknown attribute %q in head %q",
				name, attr, head.Name)
		}
		if err := p.checkExpression(name, &exp, b, last); err != nil {
			return nil, err
		}
		cols[i] = exp
	}
	for i, a := range head.Schema.Attributes {
		if cols[i].Op == "" {
			return nil, relation.NewConfigurationError("rule %s: head %q does not set attribute %q",
				name, head.Name, a.Name)
		}
	}

	plan := &algebra.Plan{
		Rule:      name,
		Head:      head.Name,
		DeltaAtom: deltaAtom,
		Binding:   b,
		Ops:       ops,
		Project:   algebra.NewProjection(b, head, cols),
	}
	if head.Lattice != nil {
		g, err := algebra.NewGather(head)
		if err != nil {
			return nil, err
		}
		plan.Gather = g
	}

	return plan, nil
}

// matches compiles the attribute matches of an atom. Expressions may refer to slots up to
// maxSlot.
func (p *Program) matches(name string, decl relation.Declaration, match map[string]expression.Expression, b *algebra.Binding, maxSlot int) ([]int, []expression.Expression, error) {
	attrs := make([]string, 0, len(match))
	for attr := range match {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return decl.Schema.Index(attrs[i]) < decl.Schema.Index(attrs[j])
	})

	cols := make([]int, 0, len(attrs))
	keys := make([]expression.Expression, 0, len(attrs))
	for _, attr := range attrs {
		col := decl.Schema.Index(attr)
		if col < 0 {
			return nil, nil, relation.NewConfigurationError("rule %s: unknown attribute %q of relation %q",
				name, attr, decl.Name)
		}
		exp := match[attr]
		if err := p.checkExpression(name, &exp, b, maxSlot); err != nil {
			return nil, nil, err
		}
		cols = append(cols, col)
		keys = append(keys, exp)
	}
	return cols, keys, nil
}

// checkExpression makes sure every reference of an expression resolves to an attribute of an
// atom bound at or before maxSlot and every parameter exists.
func (p *Program) checkExpression(name string, exp *expression.Expression, b *algebra.Binding, maxSlot int) error {
	for _, ref := range exp.References() {
		if ref.Alias == "" || ref.Attribute == "" {
			return relation.NewConfigurationError("rule %s: malformed reference %q in %s", name,
				ref.String(), exp.String())
		}
		slot, ok := b.Slot(ref.Alias)
		if !ok {
			return relation.NewConfigurationError("rule %s: unknown alias %q in %s", name,
				ref.Alias, exp.String())
		}
		if slot > maxSlot {
			return relation.NewConfigurationError("rule %s: alias %q is not bound yet in %s", name,
				ref.Alias, exp.String())
		}
		if b.Schema(slot).Index(ref.Attribute) < 0 {
			return relation.NewConfigurationError("rule %s: unknown attribute %q of alias %q in %s",
				name, ref.Attribute, ref.Alias, exp.String())
		}
	}
	for _, param := range exp.Params() {
		if _, ok := p.Params[param]; !ok {
			return relation.NewConfigurationError("rule %s: unknown parameter %q", name, param)
		}
	}
	return nil
}
