package relation

import (
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"sigs.k8s.io/yaml"
)

var _ = Describe("Values", func() {
	It("should order values by kind then by value", func() {
		Expect(Compare(Unit(), NewInt(-5))).To(Equal(-1))
		Expect(Compare(NewInt(100), NewString("a"))).To(Equal(-1))
		Expect(Compare(NewInt(2), NewInt(10))).To(Equal(-1))
		Expect(Compare(NewString("b"), NewString("a"))).To(Equal(1))
		Expect(Compare(NewString("a"), NewString("a"))).To(Equal(0))
	})

	It("should unmarshal scalar values", func() {
		var vs []Value
		Expect(yaml.Unmarshal([]byte(`[12, "Rome", null, "@unit"]`), &vs)).To(Succeed())
		Expect(vs).To(Equal([]Value{NewInt(12), NewString("Rome"), Unit(), Unit()}))
	})

	It("should reject floating point values", func() {
		var v Value
		Expect(yaml.Unmarshal([]byte(`1.5`), &v)).NotTo(Succeed())
	})

	It("should encode tuple keys injectively", func() {
		Expect(tuple("a1", "b").Key()).NotTo(Equal(tuple("a", "1b").Key()))
		Expect(tuple(int64(1), "2").Key()).NotTo(Equal(tuple("1", int64(2)).Key()))
		Expect(tuple("x", int64(3)).Key()).To(Equal(tuple("x", int64(3)).Key()))
	})
})

var _ = Describe("Relation", func() {
	var edge Declaration

	BeforeEach(func() {
		edge = Declaration{
			Name:   "edge",
			Schema: NewSchema(Attribute{"src", KindInt}, Attribute{"dst", KindInt}),
		}
	})

	Describe("set merge", func() {
		It("should insert absent tuples only", func() {
			r, err := New(edge)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Discipline()).To(Equal(SetMerge))

			_, changed, err := r.Insert(tuple(1, 2))
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeTrue())

			_, changed, err = r.Insert(tuple(1, 2))
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeFalse())

			Expect(r.Len()).To(Equal(1))
			old, ok := r.Lookup(tuple(1, 2))
			Expect(ok).To(BeTrue())
			Expect(old).To(Equal(tuple(1, 2)))
			Expect(r.Improves(tuple(1, 2))).To(BeFalse())
			Expect(r.Improves(tuple(2, 3))).To(BeTrue())
		})

		It("should reject tuples violating the schema", func() {
			r, err := New(edge)
			Expect(err).NotTo(HaveOccurred())

			_, _, err = r.Insert(tuple(1, "x"))
			Expect(errors.Is(err, ErrConfiguration)).To(BeTrue())

			_, _, err = r.Insert(tuple(1))
			Expect(errors.Is(err, ErrConfiguration)).To(BeTrue())
		})

		It("should merge relations and count new tuples", func() {
			dst, err := New(edge)
			Expect(err).NotTo(HaveOccurred())
			src := dst.Empty()
			for _, t := range []Tuple{tuple(1, 2), tuple(2, 3)} {
				_, _, err = dst.Insert(t)
				Expect(err).NotTo(HaveOccurred())
			}
			for _, t := range []Tuple{tuple(2, 3), tuple(3, 4)} {
				_, _, err = src.Insert(t)
				Expect(err).NotTo(HaveOccurred())
			}

			n, err := dst.Merge(src)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
			Expect(dst.Tuples()).To(Equal([]Tuple{tuple(1, 2), tuple(2, 3), tuple(3, 4)}))
		})

		It("should list tuples in sorted order", func() {
			r, err := New(edge)
			Expect(err).NotTo(HaveOccurred())
			for _, t := range []Tuple{tuple(3, 4), tuple(1, 3), tuple(1, 2)} {
				_, _, err = r.Insert(t)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(r.Tuples()).To(Equal([]Tuple{tuple(1, 2), tuple(1, 3), tuple(3, 4)}))
		})
	})

	Describe("keyed merge", func() {
		It("should raise a merge conflict on a conflicting key", func() {
			decl := edge
			decl.Key = []string{"src"}
			r, err := New(decl)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Discipline()).To(Equal(KeyedMerge))

			_, _, err = r.Insert(tuple(1, 2))
			Expect(err).NotTo(HaveOccurred())

			_, changed, err := r.Insert(tuple(1, 2))
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeFalse())

			_, _, err = r.Insert(tuple(1, 3))
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, ErrMergeConflict)).To(BeTrue())

			var mc *MergeConflictError
			Expect(errors.As(err, &mc)).To(BeTrue())
			Expect(mc.Relation).To(Equal("edge"))
			Expect(mc.Existing).To(Equal(tuple(1, 2)))
			Expect(mc.Incoming).To(Equal(tuple(1, 3)))
		})
	})

	Describe("lattice merge", func() {
		var ready Declaration

		BeforeEach(func() {
			ready = Declaration{
				Name:          "ready_date",
				Schema:        NewSchema(Attribute{"part", KindString}, Attribute{"days", KindInt}),
				LatticeColumn: "days",
				Lattice:       Max,
			}
		})

		It("should keep the join of the values for each key", func() {
			r, err := New(ready)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Discipline()).To(Equal(LatticeMerge))
			Expect(r.KeyColumns()).To(Equal([]int{0}))

			_, changed, err := r.Insert(tuple("Engine", 5))
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeTrue())

			Expect(r.Improves(tuple("Engine", 3))).To(BeFalse())
			Expect(r.Improves(tuple("Engine", 5))).To(BeFalse())
			Expect(r.Improves(tuple("Engine", 9))).To(BeTrue())

			_, changed, err = r.Insert(tuple("Engine", 3))
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeFalse())

			stored, changed, err := r.Insert(tuple("Engine", 9))
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeTrue())
			Expect(stored).To(Equal(tuple("Engine", 9)))

			Expect(r.Tuples()).To(Equal([]Tuple{tuple("Engine", 9)}))
			old, ok := r.Lookup(tuple("Engine", 0))
			Expect(ok).To(BeTrue())
			Expect(old).To(Equal(tuple("Engine", 9)))
		})

		It("should never store bottom", func() {
			r, err := New(ready)
			Expect(err).NotTo(HaveOccurred())
			_, changed, err := r.Insert(Tuple{NewString("Car"), Max.Bottom()})
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeFalse())
			Expect(r.Len()).To(BeZero())
		})

		It("should support the min lattice", func() {
			ready.Lattice = Min
			r, err := New(ready)
			Expect(err).NotTo(HaveOccurred())
			for _, d := range []int{7, 3, 5} {
				_, _, err = r.Insert(tuple("Car", d))
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(r.Tuples()).To(Equal([]Tuple{tuple("Car", 3)}))
			Expect(r.Improves(tuple("Car", 4))).To(BeFalse())
			Expect(r.Improves(tuple("Car", 2))).To(BeTrue())
		})

		It("should reject malformed lattice declarations", func() {
			bad := ready
			bad.LatticeColumn = "part"
			_, err := New(bad)
			Expect(errors.Is(err, ErrConfiguration)).To(BeTrue())

			bad = ready
			bad.Lattice = nil
			_, err = New(bad)
			Expect(errors.Is(err, ErrConfiguration)).To(BeTrue())

			bad = ready
			bad.Key = []string{"days"}
			_, err = New(bad)
			Expect(errors.Is(err, ErrConfiguration)).To(BeTrue())

			bad = ready
			bad.LatticeColumn = "weeks"
			_, err = New(bad)
			Expect(errors.Is(err, ErrConfiguration)).To(BeTrue())
		})
	})

	Describe("indexes", func() {
		It("should look up and invalidate indexes", func() {
			r, err := New(edge)
			Expect(err).NotTo(HaveOccurred())
			for _, t := range []Tuple{tuple(1, 2), tuple(1, 3), tuple(2, 3)} {
				_, _, err = r.Insert(t)
				Expect(err).NotTo(HaveOccurred())
			}

			idx := r.Index([]int{0})
			Expect(idx.Find(tuple(1))).To(ConsistOf(tuple(1, 2), tuple(1, 3)))
			Expect(idx.Find(tuple(4))).To(BeEmpty())
			Expect(r.Index([]int{0})).To(BeIdenticalTo(idx))

			_, _, err = r.Insert(tuple(1, 4))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Index([]int{0}).Find(tuple(1))).To(HaveLen(3))
		})

		It("should be safe for concurrent readers", func() {
			r, err := New(edge)
			Expect(err).NotTo(HaveOccurred())
			for i := 0; i < 100; i++ {
				_, _, err = r.Insert(tuple(i%10, i))
				Expect(err).NotTo(HaveOccurred())
			}

			var wg sync.WaitGroup
			counts := make([]int, 8)
			for w := 0; w < 8; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					counts[w] = len(r.Index([]int{0}).Find(tuple(w)))
				}(w)
			}
			wg.Wait()
			for _, c := range counts {
				Expect(c).To(Equal(10))
			}
		})
	})
})

var _ = Describe("MemoryStore", func() {
	It("should create, insert, purge and swap relations", func() {
		s := NewMemoryStore()
		decl := Declaration{Name: "a", Schema: NewSchema(Attribute{"x", KindInt})}
		_, err := s.Create(decl)
		Expect(err).NotTo(HaveOccurred())
		_, err = s.Create(decl.WithName("b"))
		Expect(err).NotTo(HaveOccurred())
		_, err = s.Create(decl)
		Expect(errors.Is(err, ErrConfiguration)).To(BeTrue())

		changed, err := s.Insert("a", tuple(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(changed).To(BeTrue())

		Expect(s.Swap("a", "b")).To(Succeed())
		a, ok := s.Get("a")
		Expect(ok).To(BeTrue())
		Expect(a.Name()).To(Equal("a"))
		Expect(a.Len()).To(BeZero())
		b, _ := s.Get("b")
		Expect(b.Name()).To(Equal("b"))
		Expect(b.Tuples()).To(Equal([]Tuple{tuple(1)}))

		Expect(s.Purge("b")).To(Succeed())
		Expect(b.Len()).To(BeZero())
		Expect(s.Names()).To(Equal([]string{"a", "b"}))

		_, err = s.Insert("c", tuple(1))
		Expect(errors.Is(err, ErrConfiguration)).To(BeTrue())
	})

	It("should merge one relation into another", func() {
		s := NewMemoryStore()
		decl := Declaration{Name: "a", Schema: NewSchema(Attribute{"x", KindInt})}
		_, err := s.Create(decl)
		Expect(err).NotTo(HaveOccurred())
		_, err = s.Create(decl.WithName("a#new"))
		Expect(err).NotTo(HaveOccurred())
		for _, i := range []int{1, 2} {
			_, err = s.Insert("a", tuple(i))
			Expect(err).NotTo(HaveOccurred())
		}
		for _, i := range []int{2, 3, 4} {
			_, err = s.Insert("a#new", tuple(i))
			Expect(err).NotTo(HaveOccurred())
		}

		n, err := s.Merge("a", "a#new")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))
		a, _ := s.Get("a")
		Expect(a.Tuples()).To(Equal([]Tuple{tuple(1), tuple(2), tuple(3), tuple(4)}))
		nw, _ := s.Get("a#new")
		Expect(nw.Len()).To(Equal(3))

		_, err = s.Merge("a", "c")
		Expect(errors.Is(err, ErrConfiguration)).To(BeTrue())
		_, err = s.Merge("c", "a")
		Expect(errors.Is(err, ErrConfiguration)).To(BeTrue())
	})
})
