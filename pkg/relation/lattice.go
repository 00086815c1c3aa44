package relation

import "math"

// Lattice is a join-semilattice over integer values.
type Lattice interface {
	Name() string
	// Bottom is the least element. Values at or below bottom are never stored.
	Bottom() Value
	// Leq reports whether a is below or equal to b in the lattice order.
	Leq(a, b Value) bool
	// Join returns the least upper bound of a and b.
	Join(a, b Value) Value
}

var (
	// Max orders integers numerically, join is the maximum.
	Max Lattice = maxLattice{}
	// Min orders integers in reverse, join is the minimum.
	Min Lattice = minLattice{}
)

// LatticeByName returns the lattice with the given join name ("max" or "min").
func LatticeByName(name string) (Lattice, error) {
	switch name {
	case "max":
		return Max, nil
	case "min":
		return Min, nil
	}
	return nil, NewConfigurationError("unknown lattice join %q", name)
}

type maxLattice struct{}

func (maxLattice) Name() string        { return "max" }
func (maxLattice) Bottom() Value       { return NewInt(math.MinInt64) }
func (maxLattice) Leq(a, b Value) bool { return a.i <= b.i }
func (l maxLattice) Join(a, b Value) Value {
	if l.Leq(a, b) {
		return b
	}
	return a
}

type minLattice struct{}

func (minLattice) Name() string        { return "min" }
func (minLattice) Bottom() Value       { return NewInt(math.MaxInt64) }
func (minLattice) Leq(a, b Value) bool { return a.i >= b.i }
func (l minLattice) Join(a, b Value) Value {
	if l.Leq(a, b) {
		return b
	}
	return a
}
