package relation

import (
	"fmt"
	"strings"
	"sync"
)

// Discipline is the merge discipline of a relation.
type Discipline int

const (
	// SetMerge inserts a tuple if it is absent.
	SetMerge Discipline = iota
	// KeyedMerge inserts a tuple if its key is absent and fails on a conflicting duplicate key.
	KeyedMerge
	// LatticeMerge joins the lattice value of a tuple into the value stored for its key.
	LatticeMerge
)

func (d Discipline) String() string {
	switch d {
	case SetMerge:
		return "set"
	case KeyedMerge:
		return "keyed"
	case LatticeMerge:
		return "lattice"
	default:
		return fmt.Sprintf("discipline(%d)", int(d))
	}
}

// Relation is a named set of tuples. Writers must not run concurrently with other writers or
// readers; concurrent readers are safe.
type Relation struct {
	decl       Declaration
	key        []int
	valueCol   int
	discipline Discipline

	// storage key -> tuple, the storage key is the tuple key of the key columns for keyed and
	// lattice relations and the key of the entire tuple for sets
	tuples map[string]Tuple

	mu      sync.Mutex
	indexes map[string]*Index
}

// New creates an empty relation from a declaration.
func New(decl Declaration) (*Relation, error) {
	key, col, err := decl.Validate()
	if err != nil {
		return nil, err
	}

	r := &Relation{
		decl:     decl,
		key:      key,
		valueCol: col,
		tuples:   map[string]Tuple{},
		indexes:  map[string]*Index{},
	}
	switch {
	case col >= 0:
		r.discipline = LatticeMerge
	case len(key) > 0:
		r.discipline = KeyedMerge
	default:
		r.discipline = SetMerge
	}

	return r, nil
}

// Empty returns a new empty relation with the same declaration.
func (r *Relation) Empty() *Relation {
	return &Relation{
		decl:       r.decl,
		key:        r.key,
		valueCol:   r.valueCol,
		discipline: r.discipline,
		tuples:     map[string]Tuple{},
		indexes:    map[string]*Index{},
	}
}

func (r *Relation) Name() string             { return r.decl.Name }
func (r *Relation) Schema() Schema           { return r.decl.Schema }
func (r *Relation) Declaration() Declaration { return r.decl }
func (r *Relation) Discipline() Discipline   { return r.discipline }
func (r *Relation) Lattice() Lattice         { return r.decl.Lattice }
func (r *Relation) KeyColumns() []int        { return r.key }
func (r *Relation) ValueColumn() int         { return r.valueCol }
func (r *Relation) Len() int                 { return len(r.tuples) }

func (r *Relation) storageKey(t Tuple) string {
	if r.discipline == SetMerge {
		return t.Key()
	}
	return t.Project(r.key).Key()
}

// Check makes sure a tuple can be stored in the relation.
func (r *Relation) Check(t Tuple) error {
	if err := r.decl.Schema.Check(t); err != nil {
		return NewConfigurationError("relation %q: %s", r.decl.Name, err.Error())
	}
	return nil
}

// Lookup returns the tuple stored for the key columns of t, if any. For set relations the key is
// the whole tuple.
func (r *Relation) Lookup(t Tuple) (Tuple, bool) {
	old, ok := r.tuples[r.storageKey(t)]
	return old, ok
}

// Improves reports whether inserting t would change the relation. For lattice relations this
// means the lattice value of t is above bottom and not below or equal to the stored value.
func (r *Relation) Improves(t Tuple) bool {
	switch r.discipline {
	case LatticeMerge:
		l := r.decl.Lattice
		v := t[r.valueCol]
		if l.Leq(v, l.Bottom()) {
			return false
		}
		old, ok := r.tuples[r.storageKey(t)]
		return !ok || !l.Leq(v, old[r.valueCol])
	case KeyedMerge:
		old, ok := r.tuples[r.storageKey(t)]
		return !ok || !old.Equal(t)
	default:
		_, ok := r.tuples[t.Key()]
		return !ok
	}
}

// Insert adds a tuple following the merge discipline of the relation and returns the stored tuple
// if the relation changed.
func (r *Relation) Insert(t Tuple) (Tuple, bool, error) {
	if err := r.Check(t); err != nil {
		return nil, false, err
	}

	k := r.storageKey(t)
	old, ok := r.tuples[k]

	switch r.discipline {
	case LatticeMerge:
		l := r.decl.Lattice
		v := t[r.valueCol]
		if l.Leq(v, l.Bottom()) {
			return nil, false, nil
		}
		if ok {
			j := l.Join(old[r.valueCol], v)
			if j == old[r.valueCol] {
				return nil, false, nil
			}
			nt := make(Tuple, len(t))
			copy(nt, t)
			nt[r.valueCol] = j
			t = nt
		}
	case KeyedMerge:
		if ok {
			if old.Equal(t) {
				return nil, false, nil
			}
			return nil, false, &MergeConflictError{
				Relation: r.decl.Name,
				Key:      t.Project(r.key),
				Existing: old,
				Incoming: t,
			}
		}
	default:
		if ok {
			return nil, false, nil
		}
	}

	r.tuples[k] = t
	r.invalidate()
	return t, true, nil
}

// Merge inserts every tuple of src and returns the number of tuples that changed the relation.
func (r *Relation) Merge(src *Relation) (int, error) {
	n := 0
	for _, t := range src.Tuples() {
		_, changed, err := r.Insert(t)
		if err != nil {
			return n, err
		}
		if changed {
			n++
		}
	}
	return n, nil
}

// Scan calls fn on each tuple in unspecified order until fn returns false.
func (r *Relation) Scan(fn func(Tuple) bool) {
	for _, t := range r.tuples {
		if !fn(t) {
			return
		}
	}
}

// Tuples returns the contents in sorted order.
func (r *Relation) Tuples() []Tuple {
	ret := make([]Tuple, 0, len(r.tuples))
	for _, t := range r.tuples {
		ret = append(ret, t)
	}
	SortTuples(ret)
	return ret
}

// Clone returns a snapshot of the relation. Tuples are shared since they are immutable.
func (r *Relation) Clone() *Relation {
	ret := r.Empty()
	for k, t := range r.tuples {
		ret.tuples[k] = t
	}
	return ret
}

// Clear removes all tuples.
func (r *Relation) Clear() {
	r.tuples = map[string]Tuple{}
	r.invalidate()
}

func (r *Relation) String() string {
	ts := r.Tuples()
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return fmt.Sprintf("%s%s={%s}", r.decl.Name, r.decl.Schema, strings.Join(parts, ", "))
}

func (r *Relation) invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.indexes) > 0 {
		r.indexes = map[string]*Index{}
	}
}

// Index is a hash index of a relation over a list of columns.
type Index struct {
	cols    []int
	buckets map[string][]Tuple
}

// Index returns a hash index over the given columns. Indexes are cached until the next
// modification of the relation.
func (r *Relation) Index(cols []int) *Index {
	id := fmt.Sprint(cols)

	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.indexes[id]; ok {
		return idx
	}

	idx := &Index{cols: cols, buckets: make(map[string][]Tuple, len(r.tuples))}
	for _, t := range r.tuples {
		k := t.Project(cols).Key()
		idx.buckets[k] = append(idx.buckets[k], t)
	}
	r.indexes[id] = idx

	return idx
}

// Find returns the tuples whose indexed columns equal key.
func (idx *Index) Find(key Tuple) []Tuple {
	return idx.buckets[key.Key()]
}
