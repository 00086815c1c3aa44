package relation

import (
	"fmt"
	"strings"
)

// Attribute is a named, typed column.
type Attribute struct {
	Name string
	Type Kind
}

// Schema is the ordered list of attributes of a relation.
type Schema struct {
	Attributes []Attribute
}

// NewSchema creates a schema from a list of attributes.
func NewSchema(attrs ...Attribute) Schema {
	return Schema{Attributes: attrs}
}

func (s Schema) Arity() int { return len(s.Attributes) }

// Index returns the position of the named attribute or -1.
func (s Schema) Index(name string) int {
	for i, a := range s.Attributes {
		if a.Name == name {
			return i
		}
	}
	return -1
}

func (s Schema) Names() []string {
	ret := make([]string, len(s.Attributes))
	for i, a := range s.Attributes {
		ret[i] = a.Name
	}
	return ret
}

// Check makes sure a tuple conforms to the schema.
func (s Schema) Check(t Tuple) error {
	if len(t) != len(s.Attributes) {
		return fmt.Errorf("arity mismatch: expected %d values, got %d in %s", len(s.Attributes),
			len(t), t)
	}
	for i, a := range s.Attributes {
		if t[i].kind != a.Type {
			return fmt.Errorf("attribute %q expects %s, got %s value %s", a.Name, a.Type,
				t[i].kind, t[i])
		}
	}
	return nil
}

func (s Schema) String() string {
	parts := make([]string, len(s.Attributes))
	for i, a := range s.Attributes {
		parts[i] = a.Name + ":" + a.Type.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Declaration describes a relation: its name, schema and merge discipline. A relation with no key
// is a plain set. A relation with a lattice column maps the key, which defaults to all other
// attributes, to a lattice value. A keyed relation without a lattice column rejects conflicting
// tuples.
type Declaration struct {
	Name          string
	Schema        Schema
	Key           []string
	LatticeColumn string
	Lattice       Lattice
}

// WithName returns a copy of the declaration under a different name.
func (d Declaration) WithName(name string) Declaration {
	d.Name = name
	return d
}

// Validate checks the declaration and returns the key column indexes and the lattice column
// index (or -1).
func (d Declaration) Validate() ([]int, int, error) {
	if d.Name == "" {
		return nil, -1, NewConfigurationError("relation name must not be empty")
	}
	if d.Schema.Arity() == 0 {
		return nil, -1, NewConfigurationError("relation %q: empty schema", d.Name)
	}

	seen := map[string]bool{}
	for _, a := range d.Schema.Attributes {
		if a.Name == "" {
			return nil, -1, NewConfigurationError("relation %q: empty attribute name", d.Name)
		}
		if seen[a.Name] {
			return nil, -1, NewConfigurationError("relation %q: duplicate attribute %q",
				d.Name, a.Name)
		}
		seen[a.Name] = true
	}

	key := make([]int, 0, len(d.Key))
	for _, k := range d.Key {
		i := d.Schema.Index(k)
		if i < 0 {
			return nil, -1, NewConfigurationError("relation %q: unknown key attribute %q",
				d.Name, k)
		}
		for _, j := range key {
			if j == i {
				return nil, -1, NewConfigurationError("relation %q: duplicate key attribute %q",
					d.Name, k)
			}
		}
		key = append(key, i)
	}

	if d.LatticeColumn == "" {
		if d.Lattice != nil {
			return nil, -1, NewConfigurationError("relation %q: lattice without a lattice column",
				d.Name)
		}
		return key, -1, nil
	}

	if d.Lattice == nil {
		return nil, -1, NewConfigurationError("relation %q: lattice column %q without a join",
			d.Name, d.LatticeColumn)
	}
	col := d.Schema.Index(d.LatticeColumn)
	if col < 0 {
		return nil, -1, NewConfigurationError("relation %q: unknown lattice column %q", d.Name,
			d.LatticeColumn)
	}
	if col != d.Schema.Arity()-1 {
		return nil, -1, NewConfigurationError("relation %q: lattice column %q must be the last attribute",
			d.Name, d.LatticeColumn)
	}
	if d.Schema.Attributes[col].Type != KindInt {
		return nil, -1, NewConfigurationError("relation %q: lattice column %q must be an int",
			d.Name, d.LatticeColumn)
	}

	// the key of a lattice relation is every attribute but the lattice column
	if len(key) > 0 && len(key) != d.Schema.Arity()-1 {
		return nil, -1, NewConfigurationError("relation %q: the key of a lattice relation must "+
			"list every attribute except %q", d.Name, d.LatticeColumn)
	}
	for _, k := range key {
		if k == col {
			return nil, -1, NewConfigurationError("relation %q: lattice column %q cannot be a key",
				d.Name, d.LatticeColumn)
		}
	}
	key = key[:0]
	for i := 0; i < col; i++ {
		key = append(key, i)
	}

	return key, col, nil
}
