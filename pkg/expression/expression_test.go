package expression

import (
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zapcore"
	"k8s.io/apimachinery/pkg/util/json"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/yaml"

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

func TestExpression(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Expression")
}

// mapEnv binds tuples given as attribute maps to aliases.
type mapEnv map[string]map[string]relation.Value

func (m mapEnv) Lookup(alias, attr string) (relation.Value, bool) {
	t, ok := m[alias]
	if !ok {
		return relation.Value{}, false
	}
	v, ok := t[attr]
	return v, ok
}

var _ = Describe("Expressions", func() {
	var ctx EvalCtx

	BeforeEach(func() {
		ctx = EvalCtx{
			Env: mapEnv{
				"r": {
					"source":      relation.NewString("Rome"),
					"max_speed":   relation.NewInt(80),
					"destination": relation.NewString("Turin"),
				},
				"p": {
					"part": relation.NewString("Engine"),
					"days": relation.NewInt(7),
				},
			},
			Params: map[string]relation.Value{"drivable_speed": relation.NewInt(45)},
			Log:    logger,
		}
	})

	eval := func(text string) any {
		var exp Expression
		Expect(yaml.Unmarshal([]byte(text), &exp)).To(Succeed())
		res, err := exp.Evaluate(ctx)
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	Describe("Evaluating terminal expressions", func() {
		It("should deserialize and evaluate a bool literal expression", func() {
			var exp Expression
			err := json.Unmarshal([]byte("true"), &exp)
			Expect(err).NotTo(HaveOccurred())
			Expect(exp).To(Equal(Expression{Op: "@bool", Literal: true}))

			res, err := exp.Evaluate(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(true))
		})

		It("should deserialize and evaluate an int literal expression", func() {
			var exp Expression
			err := json.Unmarshal([]byte("10"), &exp)
			Expect(err).NotTo(HaveOccurred())
			Expect(exp).To(Equal(Expression{Op: "@int", Literal: int64(10)}))
			Expect(eval("10")).To(Equal(int64(10)))
		})

		It("should deserialize and evaluate a string literal expression", func() {
			var exp Expression
			err := json.Unmarshal([]byte(`"Florence"`), &exp)
			Expect(err).NotTo(HaveOccurred())
			Expect(exp).To(Equal(Expression{Op: "@string", Literal: "Florence"}))
			Expect(eval(`"Florence"`)).To(Equal("Florence"))
		})

		It("should deserialize the unit value", func() {
			var exp Expression
			Expect(json.Unmarshal([]byte(`"@unit"`), &exp)).To(Succeed())
			Expect(exp).To(Equal(Expression{Op: "@unit"}))
			Expect(eval(`"@unit"`)).To(Equal(relation.UnitType{}))

			// null is the unit value in JSON documents and as a field value in YAML
			exp = Expression{}
			Expect(json.Unmarshal([]byte(`null`), &exp)).To(Succeed())
			Expect(exp).To(Equal(Expression{Op: "@unit"}))

			var head struct {
				Columns map[string]Expression `json:"columns"`
			}
			Expect(yaml.Unmarshal([]byte(`columns: {unit: null}`), &head)).To(Succeed())
			Expect(head.Columns["unit"]).To(Equal(Expression{Op: "@unit"}))
			res, err := exp.Evaluate(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(relation.UnitType{}))
		})

		It("should reject floating point literals", func() {
			var exp Expression
			Expect(json.Unmarshal([]byte("1.5"), &exp)).NotTo(Succeed())
		})

		It("should resolve a column reference", func() {
			var exp Expression
			Expect(json.Unmarshal([]byte(`"$r.source"`), &exp)).To(Succeed())
			Expect(exp).To(Equal(NewRefExpression("r", "source")))
			Expect(eval(`$r.max_speed`)).To(Equal(int64(80)))
			Expect(eval(`$r.source`)).To(Equal("Rome"))
		})

		It("should err for an unbound reference", func() {
			exp := NewRefExpression("x", "source")
			_, err := exp.Evaluate(ctx)
			Expect(err).To(HaveOccurred())

			exp = NewRefExpression("r", "speed")
			_, err = exp.Evaluate(ctx)
			Expect(err).To(HaveOccurred())
		})

		It("should resolve a parameter", func() {
			Expect(eval(`{"@param": "drivable_speed"}`)).To(Equal(int64(45)))

			exp := NewParamExpression("speed")
			_, err := exp.Evaluate(ctx)
			Expect(err).To(HaveOccurred())
		})

		It("should evaluate a literal list", func() {
			Expect(eval(`[1, "a", "$p.days"]`)).To(Equal([]any{int64(1), "a", int64(7)}))
		})
	})

	Describe("Evaluating operators", func() {
		It("should compare scalars", func() {
			Expect(eval(`{"@gte": ["$r.max_speed", {"@param": "drivable_speed"}]}`)).To(BeTrue())
			Expect(eval(`{"@lt": ["$r.max_speed", 80]}`)).To(BeFalse())
			Expect(eval(`{"@lte": ["$r.max_speed", 80]}`)).To(BeTrue())
			Expect(eval(`{"@gt": ["$r.destination", "$r.source"]}`)).To(BeTrue())
			Expect(eval(`{"@eq": ["$r.source", "Rome"]}`)).To(BeTrue())
			Expect(eval(`{"@neq": ["$r.source", "Rome"]}`)).To(BeFalse())
			Expect(eval(`{"@eq": ["$r.max_speed", 80]}`)).To(BeTrue())
		})

		It("should err when ordering values of different types", func() {
			var exp Expression
			Expect(yaml.Unmarshal([]byte(`{"@lt": ["$r.source", 1]}`), &exp)).To(Succeed())
			_, err := exp.Evaluate(ctx)
			Expect(err).To(HaveOccurred())
		})

		It("should evaluate boolean operators", func() {
			Expect(eval(`{"@and": [true, {"@not": false}]}`)).To(BeTrue())
			Expect(eval(`{"@and": [true, false]}`)).To(BeFalse())
			Expect(eval(`{"@or": [false, {"@eq": [1, 1]}]}`)).To(BeTrue())
			Expect(eval(`{"@isunit": "@unit"}`)).To(BeTrue())
			Expect(eval(`{"@isunit": 1}`)).To(BeFalse())
		})

		It("should evaluate arithmetic", func() {
			Expect(eval(`{"@add": ["$p.days", 2, 7]}`)).To(Equal(int64(16)))
			Expect(eval(`{"@sub": ["$p.days", 2]}`)).To(Equal(int64(5)))
			Expect(eval(`{"@mul": [3, 4]}`)).To(Equal(int64(12)))
			Expect(eval(`{"@max": [3, 9, 4]}`)).To(Equal(int64(9)))
			Expect(eval(`{"@min": [3, 9, 4]}`)).To(Equal(int64(3)))
		})

		It("should err for arithmetic on strings", func() {
			var exp Expression
			Expect(yaml.Unmarshal([]byte(`{"@add": ["$r.source", 1]}`), &exp)).To(Succeed())
			_, err := exp.Evaluate(ctx)
			Expect(err).To(MatchError(ErrEvaluation))
			Expect(err.Error()).To(ContainSubstring("@add"))

			var ee *EvalError
			Expect(errors.As(err, &ee)).To(BeTrue())
			Expect(ee.Op).To(Equal("@add"))
		})

		It("should evaluate string and list operators", func() {
			Expect(eval(`{"@concat": ["$r.source", "-", "$r.destination"]}`)).To(Equal("Rome-Turin"))
			Expect(eval(`{"@distinct": ["a", "b", "c"]}`)).To(BeTrue())
			Expect(eval(`{"@distinct": ["a", "b", "a"]}`)).To(BeFalse())
		})

		It("should err for an unknown operator", func() {
			var exp Expression
			Expect(yaml.Unmarshal([]byte(`{"@frobnicate": 1}`), &exp)).To(Succeed())
			_, err := exp.Evaluate(ctx)
			Expect(err).To(MatchError(ErrEvaluation))
			Expect(err.Error()).To(ContainSubstring("unknown operator"))
		})
	})

	Describe("Inspecting expressions", func() {
		It("should list references and parameters", func() {
			var exp Expression
			Expect(yaml.Unmarshal([]byte(`{"@and": [{"@gte": ["$r.max_speed", {"@param": "drivable_speed"}]}, {"@eq": ["$p.part", "Car"]}]}`), &exp)).To(Succeed())
			Expect(exp.References()).To(Equal([]Ref{{"r", "max_speed"}, {"p", "part"}}))
			Expect(exp.Params()).To(Equal([]string{"drivable_speed"}))
			Expect(exp.IsConstant()).To(BeFalse())

			c, err := NewLiteralExpression(12)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.IsConstant()).To(BeTrue())
		})

		It("should marshal expressions back to their source form", func() {
			src := `{"@gte":["$r.max_speed",{"@param":"drivable_speed"}]}`
			var exp Expression
			Expect(json.Unmarshal([]byte(src), &exp)).To(Succeed())
			Expect(exp.String()).To(Equal(src))

			e := NewOpExpression("@add", NewRefExpression("a", "days"), NewRefExpression("r", "days"))
			Expect(e.String()).To(Equal(`{"@add":["$a.days","$r.days"]}`))
		})
	})
})
