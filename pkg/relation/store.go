package relation

import (
	"fmt"
	"sort"
)

// Store is the database an evaluator runs against. Implementations may persist relations, the
// evaluator only relies on these operations.
type Store interface {
	// Create adds an empty relation. Creating an existing relation is an error.
	Create(decl Declaration) (*Relation, error)
	// Get returns a relation by name.
	Get(name string) (*Relation, bool)
	// Insert adds a tuple to a relation and reports whether the relation changed.
	Insert(name string, t Tuple) (bool, error)
	// Purge removes every tuple from a relation.
	Purge(name string) error
	// Swap exchanges the contents of two relations with the same schema.
	Swap(a, b string) error
	// Merge inserts every tuple of src into dst and returns the number of tuples that changed dst.
	Merge(dst, src string) (int, error)
	// Names lists the relations in the store.
	Names() []string
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	relations map[string]*Relation
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{relations: map[string]*Relation{}}
}

func (s *MemoryStore) Create(decl Declaration) (*Relation, error) {
	if _, ok := s.relations[decl.Name]; ok {
		return nil, NewConfigurationError("relation %q already exists", decl.Name)
	}
	r, err := New(decl)
	if err != nil {
		return nil, err
	}
	s.relations[decl.Name] = r
	return r, nil
}

func (s *MemoryStore) Get(name string) (*Relation, bool) {
	r, ok := s.relations[name]
	return r, ok
}

func (s *MemoryStore) Insert(name string, t Tuple) (bool, error) {
	r, ok := s.relations[name]
	if !ok {
		return false, NewConfigurationError("unknown relation %q", name)
	}
	_, changed, err := r.Insert(t)
	return changed, err
}

func (s *MemoryStore) Purge(name string) error {
	r, ok := s.relations[name]
	if !ok {
		return NewConfigurationError("unknown relation %q", name)
	}
	r.Clear()
	return nil
}

// Swap exchanges the relations stored under two names by pointer. Each relation is renamed to the
// name it ends up stored under.
func (s *MemoryStore) Swap(a, b string) error {
	ra, ok := s.relations[a]
	if !ok {
		return NewConfigurationError("unknown relation %q", a)
	}
	rb, ok := s.relations[b]
	if !ok {
		return NewConfigurationError("unknown relation %q", b)
	}
	if ra.decl.Schema.String() != rb.decl.Schema.String() {
		return fmt.Errorf("cannot swap %q and %q: schema mismatch", a, b)
	}

	ra.decl.Name, rb.decl.Name = rb.decl.Name, ra.decl.Name
	s.relations[a], s.relations[b] = rb, ra
	return nil
}

func (s *MemoryStore) Merge(dst, src string) (int, error) {
	rd, ok := s.relations[dst]
	if !ok {
		return 0, NewConfigurationError("unknown relation %q", dst)
	}
	rs, ok := s.relations[src]
	if !ok {
		return 0, NewConfigurationError("unknown relation %q", src)
	}
	return rd.Merge(rs)
}

func (s *MemoryStore) Names() []string {
	ret := make([]string, 0, len(s.relations))
	for n := range s.relations {
		ret = append(ret, n)
	}
	sort.Strings(ret)
	return ret
}
