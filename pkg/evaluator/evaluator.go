// Package evaluator computes the least fixpoint of a compiled program with semi-naive evaluation.
//
// Strata are evaluated in order. Each stratum is first seeded by evaluating every rule against
// the full relations, then iterated: each round only evaluates the rule variants that read the
// tuples derived in the previous round, the delta. A stratum is done when every delta is empty.
package evaluator

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/l7mp/fixpoint/pkg/algebra"
	"github.com/l7mp/fixpoint/pkg/program"
	"github.com/l7mp/fixpoint/pkg/relation"
)

// DefaultMaxIterations is the default limit on the number of rounds per stratum.
const DefaultMaxIterations = 10000

// State is the state of an evaluator.
type State int

const (
	StateInit State = iota
	StateSeed
	StateIterate
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSeed:
		return "seed"
	case StateIterate:
		return "iterate"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("<unknown:%d>", int(s))
}

// Options control evaluation.
type Options struct {
	Logger logr.Logger
	// MaxIterations bounds the number of semi-naive rounds per stratum. Zero means
	// DefaultMaxIterations.
	MaxIterations int
	// Parallel evaluates the rules of a round concurrently.
	Parallel bool
	// Registerer receives the evaluation metrics, if set.
	Registerer prometheus.Registerer
	// OnRound is called after each round.
	OnRound func(RoundInfo)
}

// RoundInfo describes a completed round.
type RoundInfo struct {
	Stratum   int
	Phase     State
	Iteration int
	// Changed is the number of tuples added or improved in the round.
	Changed int
	// Relations holds the derived relations of the stratum after the round.
	Relations map[string][]relation.Tuple
	// Deltas holds the delta relations of the stratum after the round.
	Deltas map[string][]relation.Tuple
}

// StratumStats summarizes the evaluation of a stratum.
type StratumStats struct {
	Stratum   int
	Relations []string
	// Iterations counts the rounds after the seed round, including the last one that derived
	// nothing new.
	Iterations int
	// ProductiveRounds counts the rounds after the seed that changed at least one relation.
	ProductiveRounds int
	// Derived is the number of tuples in the derived relations of the stratum.
	Derived  int
	Duration time.Duration
}

// Evaluator runs a program to its fixpoint. An evaluator can be run once.
type Evaluator struct {
	program  *program.Program
	store    relation.Store
	maxIter  int
	parallel bool
	onRound  func(RoundInfo)
	metrics  *metrics
	log      logr.Logger

	mu    sync.RWMutex
	state State
	stats []StratumStats
}

// New creates an evaluator. If store is nil the relations are kept in memory.
func New(p *program.Program, store relation.Store, opts Options) (*Evaluator, error) {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	if store == nil {
		store = relation.NewMemoryStore()
	}

	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	m, err := newMetrics(opts.Registerer, p.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &Evaluator{
		program:  p,
		store:    store,
		maxIter:  maxIter,
		parallel: opts.Parallel,
		onRound:  opts.OnRound,
		metrics:  m,
		log:      logger.WithName("evaluator").WithValues("program", p.Name),
		state:    StateInit,
	}, nil
}

// Evaluate runs a compiled program with an in-memory store.
func Evaluate(ctx context.Context, p *program.Program, opts Options) (*Result, error) {
	e, err := New(p, nil, opts)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx)
}

// State returns the current state.
func (e *Evaluator) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Stats returns the statistics of the strata evaluated so far.
func (e *Evaluator) Stats() []StratumStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]StratumStats{}, e.stats...)
}

func (e *Evaluator) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

func deltaName(name string) string { return name + "#delta" }
func newName(name string) string   { return name + "#new" }

// Run loads the base facts and evaluates every stratum to a fixpoint.
func (e *Evaluator) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.state != StateInit {
		e.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	e.mu.Unlock()

	e.log.V(1).Info("starting evaluation", "strata", len(e.program.Strata),
		"parallel", e.parallel)

	if err := e.load(); err != nil {
		e.setState(StateFailed)
		return nil, err
	}

	for _, s := range e.program.Strata {
		if err := e.runStratum(ctx, s); err != nil {
			e.setState(StateFailed)
			e.log.Error(err, "evaluation failed", "stratum", s.Index)
			return nil, err
		}
	}

	e.setState(StateDone)
	e.log.V(1).Info("fixpoint reached")

	return e.result(), nil
}

// load creates the relations and the buffers of the derived relations and inserts the facts.
func (e *Evaluator) load() error {
	for _, d := range e.program.Relations {
		if _, err := e.store.Create(d); err != nil {
			return err
		}
		if !e.program.IsDerived(d.Name) {
			continue
		}
		if _, err := e.store.Create(d.WithName(deltaName(d.Name))); err != nil {
			return err
		}
		if _, err := e.store.Create(d.WithName(newName(d.Name))); err != nil {
			return err
		}
	}

	for _, name := range e.program.Base() {
		for _, t := range e.program.Facts[name] {
			if _, err := e.store.Insert(name, t); err != nil {
				return err
			}
		}
		r, _ := e.store.Get(name)
		e.metrics.tuples.WithLabelValues(name).Set(float64(r.Len()))
		e.log.V(2).Info("base relation loaded", "relation", name, "tuples", r.Len())
	}

	return nil
}

func (e *Evaluator) runStratum(ctx context.Context, s *program.Stratum) error {
	log := e.log.WithValues("stratum", s.Index)
	start := time.Now()
	stats := StratumStats{Stratum: s.Index, Relations: s.Relations}

	seeds := map[string][]*algebra.Plan{}
	variants := map[string][]*algebra.Plan{}
	for _, r := range s.Rules {
		seeds[r.Head] = append(seeds[r.Head], r.Plan)
		variants[r.Head] = append(variants[r.Head], r.Variants...)
	}

	// seed
	e.setState(StateSeed)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("evaluation canceled in stratum %d: %w", s.Index, err)
	}
	t0 := time.Now()
	if err := e.derive(ctx, s, seeds); err != nil {
		return err
	}
	changed := 0
	for _, name := range s.Relations {
		n, err := e.mergeNew(name)
		if err != nil {
			return err
		}
		changed += n
		if err := e.store.Purge(newName(name)); err != nil {
			return err
		}

		full, _ := e.store.Get(name)
		if err := e.store.Purge(deltaName(name)); err != nil {
			return err
		}
		for _, t := range full.Tuples() {
			if _, err := e.store.Insert(deltaName(name), t); err != nil {
				return err
			}
		}
	}
	e.metrics.round(s.Index, StateSeed, time.Since(t0).Seconds())
	e.report(s, StateSeed, 0, changed)
	log.V(1).Info("stratum seeded", "tuples", changed)

	// iterate
	e.setState(StateIterate)
	for e.hasDelta(s) {
		if stats.Iterations >= e.maxIter {
			rels, deltas := e.snapshot(s)
			return NewNonTerminationError(s.Index, stats.Iterations, rels, deltas)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("evaluation canceled in stratum %d: %w", s.Index, err)
		}

		t0 := time.Now()
		if err := e.derive(ctx, s, variants); err != nil {
			return err
		}
		changed := 0
		for _, name := range s.Relations {
			n, err := e.mergeNew(name)
			if err != nil {
				return err
			}
			changed += n
		}
		for _, name := range s.Relations {
			if err := e.store.Swap(deltaName(name), newName(name)); err != nil {
				return err
			}
			if err := e.store.Purge(newName(name)); err != nil {
				return err
			}
		}

		stats.Iterations++
		if changed > 0 {
			stats.ProductiveRounds++
		}
		e.metrics.round(s.Index, StateIterate, time.Since(t0).Seconds())
		e.report(s, StateIterate, stats.Iterations, changed)
		log.V(1).Info("round ready", "iteration", stats.Iterations, "changed", changed)
	}

	for _, name := range s.Relations {
		r, _ := e.store.Get(name)
		stats.Derived += r.Len()
		e.metrics.tuples.WithLabelValues(name).Set(float64(r.Len()))
	}
	stats.Duration = time.Since(start)

	e.mu.Lock()
	e.stats = append(e.stats, stats)
	e.mu.Unlock()

	log.V(1).Info("stratum ready", "relations", s.Relations, "iterations", stats.Iterations,
		"productive-rounds", stats.ProductiveRounds, "tuples", stats.Derived)

	return nil
}

// derive evaluates the plans against the current relations and collects the candidates that
// would change a relation into its new buffer. No relation of the stratum is modified.
func (e *Evaluator) derive(ctx context.Context, s *program.Stratum, plans map[string][]*algebra.Plan) error {
	actx := &algebra.Context{
		Snapshot: &snapshot{store: e.store},
		Params:   e.program.Params,
		Log:      e.log,
	}

	var candidates map[string][]relation.Tuple
	var err error
	if e.parallel {
		candidates, err = e.evaluateParallel(ctx, actx, s.Relations, plans)
	} else {
		candidates, err = e.evaluateSerial(actx, s.Relations, plans)
	}
	if err != nil {
		return err
	}

	for _, name := range s.Relations {
		full, _ := e.store.Get(name)
		for _, t := range candidates[name] {
			if !full.Improves(t) {
				continue
			}
			if _, err := e.store.Insert(newName(name), t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Evaluator) evaluateSerial(actx *algebra.Context, names []string, plans map[string][]*algebra.Plan) (map[string][]relation.Tuple, error) {
	ret := make(map[string][]relation.Tuple, len(names))
	for _, name := range names {
		ts, err := algebra.NewUnion(name, plans[name]...).Evaluate(actx)
		if err != nil {
			return nil, err
		}
		ret[name] = ts
	}
	return ret, nil
}

func (e *Evaluator) evaluateParallel(ctx context.Context, actx *algebra.Context, names []string, plans map[string][]*algebra.Plan) (map[string][]relation.Tuple, error) {
	results := make(map[string][][]relation.Tuple, len(names))
	for _, name := range names {
		results[name] = make([][]relation.Tuple, len(plans[name]))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, name := range names {
		out := results[name]
		for i, p := range plans[name] {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				ts, err := p.Evaluate(actx)
				if err != nil {
					return err
				}
				out[i] = ts
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ret := make(map[string][]relation.Tuple, len(names))
	for _, name := range names {
		ts := []relation.Tuple{}
		for _, part := range results[name] {
			ts = append(ts, part...)
		}
		ret[name] = ts
	}
	return ret, nil
}

// mergeNew merges the new buffer of a relation into the relation and returns the number of
// tuples that changed it.
func (e *Evaluator) mergeNew(name string) (int, error) {
	n, err := e.store.Merge(name, newName(name))
	e.metrics.derived.WithLabelValues(name).Add(float64(n))
	return n, err
}

func (e *Evaluator) hasDelta(s *program.Stratum) bool {
	for _, name := range s.Relations {
		if d, ok := e.store.Get(deltaName(name)); ok && d.Len() > 0 {
			return true
		}
	}
	return false
}

func (e *Evaluator) snapshot(s *program.Stratum) (map[string][]relation.Tuple, map[string][]relation.Tuple) {
	rels := make(map[string][]relation.Tuple, len(s.Relations))
	deltas := make(map[string][]relation.Tuple, len(s.Relations))
	for _, name := range s.Relations {
		if r, ok := e.store.Get(name); ok {
			rels[name] = r.Tuples()
		}
		if d, ok := e.store.Get(deltaName(name)); ok {
			deltas[name] = d.Tuples()
		}
	}
	return rels, deltas
}

func (e *Evaluator) report(s *program.Stratum, phase State, iteration, changed int) {
	if e.onRound == nil {
		return
	}
	rels, deltas := e.snapshot(s)
	e.onRound(RoundInfo{
		Stratum:   s.Index,
		Phase:     phase,
		Iteration: iteration,
		Changed:   changed,
		Relations: rels,
		Deltas:    deltas,
	})
}

// Residual evaluates every rule once more against the final relations and returns the tuples
// that would still change a relation. The result is empty at a fixpoint.
func (e *Evaluator) Residual(ctx context.Context) (map[string][]relation.Tuple, error) {
	if st := e.State(); st != StateDone {
		return nil, fmt.Errorf("cannot compute residual in state %s", st)
	}

	actx := &algebra.Context{
		Snapshot: &snapshot{store: e.store},
		Params:   e.program.Params,
		Log:      e.log,
	}

	ret := map[string][]relation.Tuple{}
	for _, r := range e.program.Rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ts, err := r.Plan.Evaluate(actx)
		if err != nil {
			return nil, err
		}
		full, _ := e.store.Get(r.Head)
		for _, t := range ts {
			if full.Improves(t) {
				ret[r.Head] = append(ret[r.Head], t)
			}
		}
	}
	for name := range ret {
		relation.SortTuples(ret[name])
	}
	return ret, nil
}

func (e *Evaluator) result() *Result {
	res := &Result{relations: map[string]*relation.Relation{}}
	for _, d := range e.program.Relations {
		r, ok := e.store.Get(d.Name)
		if !ok {
			continue
		}
		res.names = append(res.names, d.Name)
		res.relations[d.Name] = r.Clone()
	}
	return res
}

// snapshot serves the relations of a store to plans.
type snapshot struct {
	store relation.Store
}

func (s *snapshot) Relation(name string, src algebra.Source) (*relation.Relation, error) {
	if src == algebra.Delta {
		name = deltaName(name)
	}
	r, ok := s.store.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown relation %q", name)
	}
	return r, nil
}
