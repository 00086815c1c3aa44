package program

import (
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/l7mp/fixpoint/pkg/relation"
)

var (
	loglevel = -10
	logger   = zap.New(zap.UseFlagOptions(&zap.Options{
		Development:     true,
		DestWriter:      GinkgoWriter,
		StacktraceLevel: zapcore.Level(3),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
		Level:           zapcore.Level(loglevel),
	}))
)

func TestProgram(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Program")
}

const pathProgram = `
name: path
relations:
  - name: edge
    attributes: [{name: src, type: int}, {name: dst, type: int}]
  - name: path
    attributes: [{name: src, type: int}, {name: dst, type: int}]
facts:
  edge: [[1, 2], [2, 3], [3, 4]]
rules:
  - name: base
    head: {relation: path, columns: {src: $e.src, dst: $e.dst}}
    body: [{relation: edge, as: e}]
  - name: step
    head: {relation: path, columns: {src: $p.src, dst: $e.dst}}
    body:
      - {relation: path, as: p}
      - {relation: edge, as: e, match: {src: $p.dst}}
`

const noPumpProgram = `
name: no-pump
relations:
  - name: system
    attributes: [{name: floc, type: string}, {name: ty, type: string}, {name: parent, type: string}]
  - name: sub_system
    attributes: [{name: floc, type: string}, {name: ty, type: string}, {name: parent, type: string}]
  - name: pump
    attributes: [{name: floc, type: string}, {name: name, type: string}]
  - name: has_pump
    attributes: [{name: floc, type: string}]
  - name: no_pump
    attributes: [{name: floc, type: string}]
rules:
  - head: {relation: has_pump, columns: {floc: $s.floc}}
    body:
      - {relation: system, as: s, match: {ty: SPMS}}
      - {relation: sub_system, as: ss, match: {ty: PUMP, parent: $s.floc}}
      - {relation: pump, as: p, match: {floc: $ss.floc}}
  - head: {relation: no_pump, columns: {floc: $s.floc}}
    body:
      - {relation: system, as: s, match: {ty: SPMS}}
    not:
      - {relation: has_pump, match: {floc: $s.floc}}
`

func compile(src string, opts Options) (*Program, error) {
	spec, err := Parse([]byte(src))
	if err != nil {
		return nil, err
	}
	opts.Logger = logger
	return Compile(spec, opts)
}

func expectConfigError(src string, substr string) {
	_, err := compile(src, Options{})
	ExpectWithOffset(1, err).To(HaveOccurred())
	ExpectWithOffset(1, errors.Is(err, relation.ErrConfiguration)).To(BeTrue(), err.Error())
	ExpectWithOffset(1, err.Error()).To(ContainSubstring(substr))
}

var _ = Describe("Parse", func() {
	It("should keep YAML 1.1 boolean words as strings", func() {
		spec, err := Parse([]byte(`
name: flags
relations:
  - name: on
    attributes: [{name: y, type: string}, {name: n, type: int}]
  - name: off
    attributes: [{name: y, type: string}]
facts:
  on: [[yes, 1], [no, 2]]
rules:
  - head: {relation: off, columns: {y: $n.y}}
    body:
      - {relation: on, as: n, match: {y: yes}}
`))
		Expect(err).NotTo(HaveOccurred())
		Expect(spec.Relations[0].Name).To(Equal("on"))
		Expect(spec.Relations[0].Attributes[0].Name).To(Equal("y"))
		Expect(spec.Relations[0].Attributes[1].Name).To(Equal("n"))
		Expect(spec.Facts["on"][0][0]).To(Equal(relation.NewString("yes")))
		Expect(spec.Rules[0].Body[0].As).To(Equal("n"))
		Expect(spec.Rules[0].Body[0].Match).To(HaveKey("y"))

		p, err := Compile(spec, Options{Logger: logger})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Derived()).To(Equal([]string{"off"}))
	})

	It("should parse JSON programs", func() {
		spec, err := Parse([]byte(`{"name": "j", "relations": [{"name": "r", "attributes": [{"name": "x", "type": "int"}]}], "facts": {"r": [[1]]}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(spec.Facts["r"]).To(HaveLen(1))
	})

	It("should reject unknown fields", func() {
		_, err := Parse([]byte(`
name: x
relations:
  - name: r
    attributes: [{name: x, type: int}]
    colour: blue
`))
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, relation.ErrConfiguration)).To(BeTrue())
	})
})

var _ = Describe("Compiler", func() {
	It("should compile a recursive program", func() {
		p, err := compile(pathProgram, Options{})
		Expect(err).NotTo(HaveOccurred())

		Expect(p.Base()).To(Equal([]string{"edge"}))
		Expect(p.Derived()).To(Equal([]string{"path"}))
		Expect(p.IsDerived("path")).To(BeTrue())
		Expect(p.StratumOf("edge")).To(Equal(-1))
		Expect(p.StratumOf("path")).To(Equal(0))
		Expect(p.Strata).To(HaveLen(1))
		Expect(p.Strata[0].Rules).To(HaveLen(2))
		Expect(p.Facts["edge"]).To(HaveLen(3))

		base, step := p.Rules[0], p.Rules[1]
		Expect(base.IsRecursive()).To(BeFalse())
		Expect(step.IsRecursive()).To(BeTrue())
		Expect(step.Variants).To(HaveLen(1))
		Expect(step.Variants[0].DeltaAtom).To(Equal(0))
		Expect(step.Plan.IsVariant()).To(BeFalse())

		Expect(p.RulesFor("path")).To(HaveLen(2))
		Expect(p.RulesFor("edge")).To(BeEmpty())

		deps := p.Dependencies()
		Expect(deps).To(ContainElement(Dependency{From: "path", To: "path", Rule: "step"}))
		Expect(deps).To(ContainElement(Dependency{From: "edge", To: "path", Rule: "base"}))

		desc := p.Describe()
		Expect(desc).To(ContainSubstring("stratum 0: path"))
		Expect(desc).To(ContainSubstring("Δp:"))
		Expect(desc).To(ContainSubstring("scan path AS p [Δ]"))
	})

	It("should generate one variant per recursive atom", func() {
		p, err := compile(`
name: nonlinear
relations:
  - name: edge
    attributes: [{name: src, type: int}, {name: dst, type: int}]
  - name: path
    attributes: [{name: src, type: int}, {name: dst, type: int}]
rules:
  - head: {relation: path, columns: {src: $e.src, dst: $e.dst}}
    body: [{relation: edge, as: e}]
  - head: {relation: path, columns: {src: $p1.src, dst: $p2.dst}}
    body:
      - {relation: path, as: p1}
      - {relation: path, as: p2, match: {src: $p1.dst}}
`, Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Rules[0].Name).To(Equal("path#0"))
		Expect(p.Rules[1].Name).To(Equal("path#1"))

		vs := p.Rules[1].Variants
		Expect(vs).To(HaveLen(2))
		Expect(vs[0].DeltaAtom).To(Equal(0))
		Expect(vs[1].DeltaAtom).To(Equal(1))
	})

	It("should stratify negation", func() {
		p, err := compile(noPumpProgram, Options{})
		Expect(err).NotTo(HaveOccurred())

		Expect(p.StratumOf("has_pump")).To(Equal(0))
		Expect(p.StratumOf("no_pump")).To(Equal(1))
		Expect(p.Strata).To(HaveLen(2))
		Expect(p.Strata[1].Relations).To(Equal([]string{"no_pump"}))

		neg := p.Dependencies()
		Expect(neg).To(ContainElement(Dependency{From: "has_pump", To: "no_pump",
			Rule: "no_pump#1", Negative: true}))

		// negated atoms never yield variants
		Expect(p.Rules[1].Variants).To(BeEmpty())
	})

	It("should keep negation of base relations in the first stratum", func() {
		p, err := compile(`
name: neg-base
relations:
  - name: a
    attributes: [{name: x, type: int}]
  - name: b
    attributes: [{name: x, type: int}]
  - name: c
    attributes: [{name: x, type: int}]
rules:
  - head: {relation: c, columns: {x: $a.x}}
    body: [{relation: a}]
    not: [{relation: b, match: {x: $a.x}}]
`, Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.StratumOf("c")).To(Equal(0))
		Expect(p.Strata).To(HaveLen(1))
	})

	It("should not raise the stratum of a relation negating a base relation", func() {
		p, err := compile(`
name: neg-base-mixed
relations:
  - name: a
    attributes: [{name: x, type: int}]
  - name: b
    attributes: [{name: x, type: int}]
  - name: t
    attributes: [{name: x, type: int}]
  - name: q
    attributes: [{name: x, type: int}]
  - name: u
    attributes: [{name: x, type: int}]
rules:
  - head: {relation: t, columns: {x: $a.x}}
    body: [{relation: a}]
  - head: {relation: q, columns: {x: $a.x}}
    body: [{relation: a}]
    not: [{relation: b, match: {x: $a.x}}]
  - head: {relation: u, columns: {x: $q.x}}
    body: [{relation: q}]
    not: [{relation: t, match: {x: $q.x}}]
`, Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.StratumOf("t")).To(Equal(0))
		Expect(p.StratumOf("q")).To(Equal(0))
		Expect(p.StratumOf("u")).To(Equal(1))
		Expect(p.Strata).To(HaveLen(2))
		Expect(p.Strata[0].Relations).To(Equal([]string{"t", "q"}))
	})

	It("should reject negation through recursion", func() {
		expectConfigError(`
name: paradox
relations:
  - name: a
    attributes: [{name: x, type: int}]
  - name: p
    attributes: [{name: x, type: int}]
  - name: q
    attributes: [{name: x, type: int}]
rules:
  - head: {relation: p, columns: {x: $a.x}}
    body: [{relation: a}]
    not: [{relation: q, match: {x: $a.x}}]
  - head: {relation: q, columns: {x: $a.x}}
    body: [{relation: a}]
    not: [{relation: p, match: {x: $a.x}}]
`, "recursive cycle")
	})

	It("should override parameters", func() {
		src := `
name: params
params:
  speed: 45
relations:
  - name: road
    attributes: [{name: src, type: string}, {name: speed, type: int}]
  - name: fast
    attributes: [{name: src, type: string}]
rules:
  - head: {relation: fast, columns: {src: $r.src}}
    body: [{relation: road, as: r}]
    where: {"@gte": [$r.speed, {"@param": speed}]}
`
		p, err := compile(src, Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Params["speed"]).To(Equal(relation.NewInt(45)))

		p, err = compile(src, Options{Params: map[string]relation.Value{"speed": relation.NewInt(55)}})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Params["speed"]).To(Equal(relation.NewInt(55)))

		_, err = compile(src, Options{Params: map[string]relation.Value{"speed": relation.NewString("x")}})
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, relation.ErrConfiguration)).To(BeTrue())

		_, err = compile(src, Options{Params: map[string]relation.Value{"limit": relation.NewInt(1)}})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unknown parameter"))
	})

	It("should compile lattice heads with a gather op", func() {
		p, err := compile(`
name: latest
relations:
  - name: delivery
    attributes: [{name: part, type: string}, {name: days, type: int}]
  - name: ready
    attributes: [{name: part, type: string}, {name: days, type: int}]
    lattice: {column: days, join: max}
rules:
  - head: {relation: ready, columns: {part: $d.part, days: $d.days}}
    body: [{relation: delivery, as: d}]
`, Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Rules[0].Plan.Gather).NotTo(BeNil())
		Expect(p.Rules[0].Plan.String()).To(ContainSubstring("γ max(days)"))
	})

	DescribeTable("configuration errors",
		func(src, substr string) { expectConfigError(src, substr) },
		Entry("unknown body relation", `
name: x
relations:
  - name: a
    attributes: [{name: x, type: int}]
rules:
  - head: {relation: a, columns: {x: $b.x}}
    body: [{relation: b}]
`, "unknown relation"),
		Entry("unknown head relation", `
name: x
relations:
  - name: a
    attributes: [{name: x, type: int}]
rules:
  - head: {relation: b, columns: {x: $a.x}}
    body: [{relation: a}]
`, "unknown head relation"),
		Entry("facts for a derived relation", `
name: x
relations:
  - name: a
    attributes: [{name: x, type: int}]
  - name: b
    attributes: [{name: x, type: int}]
facts:
  b: [[1]]
rules:
  - head: {relation: b, columns: {x: $a.x}}
    body: [{relation: a}]
`, "derived relation"),
		Entry("facts with the wrong type", `
name: x
relations:
  - name: a
    attributes: [{name: x, type: int}]
facts:
  a: [[hello]]
`, "relation \"a\""),
		Entry("facts with the wrong arity", `
name: x
relations:
  - name: a
    attributes: [{name: x, type: int}]
facts:
  a: [[1, 2]]
`, "relation \"a\""),
		Entry("duplicate relation", `
name: x
relations:
  - name: a
    attributes: [{name: x, type: int}]
  - name: a
    attributes: [{name: x, type: int}]
`, "duplicate relation"),
		Entry("invalid relation name", `
name: x
relations:
  - name: a-b
    attributes: [{name: x, type: int}]
`, "invalid relation name"),
		Entry("duplicate alias", `
name: x
relations:
  - name: a
    attributes: [{name: x, type: int}]
  - name: b
    attributes: [{name: x, type: int}]
rules:
  - head: {relation: b, columns: {x: $a.x}}
    body: [{relation: a}, {relation: a}]
`, "duplicate alias"),
		Entry("reference to a later atom", `
name: x
relations:
  - name: a
    attributes: [{name: x, type: int}]
  - name: b
    attributes: [{name: x, type: int}]
rules:
  - head: {relation: b, columns: {x: $l.x}}
    body:
      - {relation: a, as: f, match: {x: $l.x}}
      - {relation: a, as: l}
`, "unknown alias"),
		Entry("self reference in a match", `
name: x
relations:
  - name: a
    attributes: [{name: x, type: int}]
  - name: b
    attributes: [{name: x, type: int}]
rules:
  - head: {relation: b, columns: {x: $f.x}}
    body: [{relation: a, as: f, match: {x: $f.x}}]
`, "not bound yet"),
		Entry("unknown attribute in a reference", `
name: x
relations:
  - name: a
    attributes: [{name: x, type: int}]
  - name: b
    attributes: [{name: x, type: int}]
rules:
  - head: {relation: b, columns: {x: $a.y}}
    body: [{relation: a}]
`, "unknown attribute \"y\""),
		Entry("incomplete head", `
name: x
relations:
  - name: a
    attributes: [{name: x, type: int}]
  - name: b
    attributes: [{name: x, type: int}, {name: z, type: int}]
rules:
  - head: {relation: b, columns: {x: $a.x}}
    body: [{relation: a}]
`, "does not set attribute \"z\""),
		Entry("unknown head attribute", `
name: x
relations:
  - name: a
    attributes: [{name: x, type: int}]
  - name: b
    attributes: [{name: x, type: int}]
rules:
  - head: {relation: b, columns: {x: $a.x, z: 1}}
    body: [{relation: a}]
`, "unknown attribute \"z\""),
		Entry("unknown parameter", `
name: x
relations:
  - name: a
    attributes: [{name: x, type: int}]
  - name: b
    attributes: [{name: x, type: int}]
rules:
  - head: {relation: b, columns: {x: {"@param": nope}}}
    body: [{relation: a}]
`, "unknown parameter"),
		Entry("lattice column not last", `
name: x
relations:
  - name: a
    attributes: [{name: v, type: int}, {name: k, type: string}]
    lattice: {column: v, join: max}
`, "relation \"a\""),
		Entry("unknown field", `
name: x
relations:
  - name: a
    attribs: [{name: v, type: int}]
`, "failed to parse"),
	)

	It("should stratify a chain of negations densely", func() {
		p, err := compile(`
name: chain
relations:
  - name: base
    attributes: [{name: x, type: int}]
  - name: r0
    attributes: [{name: x, type: int}]
  - name: r1
    attributes: [{name: x, type: int}]
  - name: r2
    attributes: [{name: x, type: int}]
rules:
  - head: {relation: r0, columns: {x: $base.x}}
    body: [{relation: base}]
  - head: {relation: r1, columns: {x: $base.x}}
    body: [{relation: base}]
    not: [{relation: r0, match: {x: $base.x}}]
  - head: {relation: r2, columns: {x: $r1.x}}
    body: [{relation: r1}]
    not: [{relation: r0, match: {x: $r1.x}}]
`, Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.StratumOf("r0")).To(Equal(0))
		Expect(p.StratumOf("r1")).To(Equal(1))
		Expect(p.StratumOf("r2")).To(Equal(1))
		Expect(p.Strata).To(HaveLen(2))
	})
})
