package ddmin

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Search modes
const (
	ModeMinimize = "minimize"
	ModeIsolate  = "isolate"
)

// Trace phases
const (
	PhaseBaseline   = "baseline"
	PhaseSubset     = "subset"
	PhaseComplement = "complement"
	PhaseApply      = "apply"
	PhaseRevert     = "revert"
)

// Options tunes the engine
type Options struct {
	// Parallelism is the number of probes evaluated concurrently within
	// one phase of a round. Values <= 1 evaluate sequentially and stop at
	// the first decisive verdict.
	Parallelism int
}

// Engine runs delta-debugging searches against an oracle
type Engine struct {
	oracle     Oracle
	decomposer Decomposer
	opts       Options
	logger     *zap.Logger
}

// Step is one oracle query made during a search
type Step struct {
	Round   int     `json:"round"`
	Phase   string  `json:"phase"`
	Key     string  `json:"key"`
	Value   string  `json:"value"`
	Size    int     `json:"size"`
	Verdict Verdict `json:"verdict"`
	Detail  string  `json:"detail,omitempty"`
	Cached  bool    `json:"cached"`
}

// Result is the outcome of a search
type Result struct {
	Mode        string
	Granularity string

	// Failing is the 1-minimal configuration classified FAIL
	Failing Configuration
	// Passing is the passing boundary; in isolate mode the largest
	// passing configuration found
	Passing Configuration

	// Delta holds the failing-side units that make up the minimal
	// difference
	Delta []Unit
	// Displaced holds the passing-side units the delta replaces or
	// removes (isolate mode only)
	Displaced []Unit

	Trace       []Step
	Rounds      int
	OracleCalls int
	CacheHits   int
	Unresolved  int
	Duration    time.Duration
}

// HasUnresolved reports whether any oracle call could not decide, which
// weakens the minimality guarantee
func (r *Result) HasUnresolved() bool {
	return r.Unresolved > 0
}

// NewEngine creates an engine
func NewEngine(oracle Oracle, decomposer Decomposer, opts Options, logger *zap.Logger) *Engine {
	if decomposer == nil {
		decomposer = CharDecomposer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		oracle:     oracle,
		decomposer: decomposer,
		opts:       opts,
		logger:     logger,
	}
}

// Run dispatches to Minimize or Isolate by mode name
func (e *Engine) Run(ctx context.Context, mode, failing, passing string) (*Result, error) {
	switch mode {
	case "", ModeMinimize:
		return e.Minimize(ctx, failing, passing)
	case ModeIsolate:
		return e.Isolate(ctx, failing, passing)
	default:
		return nil, fmt.Errorf("unsupported mode: %s", mode)
	}
}

// Minimize runs ddmin: it shrinks the failing input until removing any
// single unit no longer reproduces the failure. The returned result is
// non-nil even when an error is returned, so callers can report the
// partial trace.
func (e *Engine) Minimize(ctx context.Context, failing, passing string) (*Result, error) {
	r := e.newRun(ctx, ModeMinimize)
	d := e.decomposer

	current := d.Decompose(failing, SideFailing)
	full := NewConfiguration(d, current)
	pass := NewConfiguration(d, d.Decompose(passing, SidePassing))

	e.logger.Info("minimization started",
		zap.String("granularity", d.Name()),
		zap.Int("units", len(current)))

	if err := r.checkBaseline(full, pass); err != nil {
		return r.finish(full, pass, nil, nil), err
	}

	n := 2
	for len(current) >= 2 {
		if err := ctx.Err(); err != nil {
			return r.finish(NewConfiguration(d, current), pass, current, nil), err
		}
		r.rounds++

		parts := split(current, n)

		subsets := make([]Configuration, len(parts))
		for i, p := range parts {
			subsets[i] = NewConfiguration(d, p)
		}
		outcomes, _ := r.probe(PhaseSubset, subsets, isFail)
		if i := firstIndex(outcomes, Fail); i >= 0 {
			current = parts[i]
			n = 2
			continue
		}

		// With two partitions each complement equals the other subset
		if n > 2 {
			complements := make([]Configuration, len(parts))
			for i := range parts {
				complements[i] = NewConfiguration(d, complement(parts, i))
			}
			outcomes, _ = r.probe(PhaseComplement, complements, isFail)
			if i := firstIndex(outcomes, Fail); i >= 0 {
				current = complement(parts, i)
				n = max(n-1, 2)
				continue
			}
		}

		if n >= len(current) {
			break
		}
		n = min(2*n, len(current))
	}

	// A single remaining unit is minimal only if the empty input passes
	if len(current) == 1 {
		empty := NewConfiguration(d, nil)
		r.rounds++
		if outcomes, _ := r.probe(PhaseComplement, []Configuration{empty}, isFail); outcomes[0].Verdict == Fail {
			current = nil
		}
	}

	result := r.finish(NewConfiguration(d, current), pass, current, nil)
	e.logger.Info("minimization finished",
		zap.Int("units", len(current)),
		zap.Int("rounds", result.Rounds),
		zap.Int("oracle_calls", result.OracleCalls),
		zap.Int("cache_hits", result.CacheHits),
		zap.Int("unresolved", result.Unresolved))

	return result, nil
}

// Isolate runs two-sided dd over the positional alignment of both inputs.
// A change is a position where the failing and passing units differ; the
// search narrows the set of applied changes from both ends until the
// passing and failing configurations differ by a 1-minimal set.
func (e *Engine) Isolate(ctx context.Context, failing, passing string) (*Result, error) {
	r := e.newRun(ctx, ModeIsolate)
	al := newAlignment(e.decomposer, failing, passing)

	passSet := []int{}
	failSet := al.changes

	fullFail := al.build(failSet)
	fullPass := al.build(passSet)

	e.logger.Info("isolation started",
		zap.String("granularity", e.decomposer.Name()),
		zap.Int("changes", len(al.changes)))

	if err := r.checkBaseline(fullFail, fullPass); err != nil {
		return r.finish(fullFail, fullPass, nil, nil), err
	}

	n := 2
	for {
		delta := difference(failSet, passSet)
		if len(delta) <= 1 {
			break
		}
		if err := ctx.Err(); err != nil {
			return r.finishIsolate(al, failSet, passSet), err
		}
		r.rounds++
		n = min(n, len(delta))

		parts := splitInts(delta, n)

		applied := make([]Configuration, len(parts))
		for i, p := range parts {
			applied[i] = al.build(union(passSet, p))
		}
		appliedOut, _ := r.probe(PhaseApply, applied, isFail)
		if i := firstIndex(appliedOut, Fail); i >= 0 {
			failSet = union(passSet, parts[i])
			n = 2
			continue
		}

		reverted := make([]Configuration, len(parts))
		for i, p := range parts {
			reverted[i] = al.build(difference(failSet, p))
		}
		revertedOut, _ := r.probe(PhaseRevert, reverted, isPass)
		if i := firstIndex(revertedOut, Pass); i >= 0 {
			passSet = difference(failSet, parts[i])
			n = 2
			continue
		}

		if i := firstIndex(appliedOut, Pass); i >= 0 {
			passSet = union(passSet, parts[i])
			n = max(n-1, 2)
			continue
		}
		if i := firstIndex(revertedOut, Fail); i >= 0 {
			failSet = difference(failSet, parts[i])
			n = max(n-1, 2)
			continue
		}

		if n >= len(delta) {
			break
		}
		n = min(2*n, len(delta))
	}

	result := r.finishIsolate(al, failSet, passSet)
	e.logger.Info("isolation finished",
		zap.Int("delta", len(result.Delta)),
		zap.Int("rounds", result.Rounds),
		zap.Int("oracle_calls", result.OracleCalls),
		zap.Int("cache_hits", result.CacheHits),
		zap.Int("unresolved", result.Unresolved))

	return result, nil
}

// run holds the state of one search. The cache lives and dies with it.
type run struct {
	ctx    context.Context
	engine *Engine
	cache  *Cache
	mode   string
	trace  []Step
	rounds int
	start  time.Time
}

func (e *Engine) newRun(ctx context.Context, mode string) *run {
	return &run{
		ctx:    ctx,
		engine: e,
		cache:  NewCache(),
		mode:   mode,
		start:  time.Now(),
	}
}

func (r *run) checkBaseline(failing, passing Configuration) error {
	out, _ := r.probe(PhaseBaseline, []Configuration{failing}, nil)
	if out[0].Verdict != Fail {
		return &BaselineError{Boundary: "failing", Value: failing.Value(), Verdict: out[0].Verdict, Detail: out[0].Detail}
	}

	out, _ = r.probe(PhaseBaseline, []Configuration{passing}, nil)
	if out[0].Verdict == Fail {
		return &BaselineError{Boundary: "passing", Value: passing.Value(), Verdict: out[0].Verdict, Detail: out[0].Detail}
	}
	return nil
}

// probe evaluates candidates through the cache and records them in the
// trace in left-to-right order. Sequential probing stops after the first
// outcome matching stop; parallel probing evaluates the whole batch and
// waits for every call before returning. The second return value is the
// number of candidates evaluated; outcomes past it are zero.
func (r *run) probe(phase string, cands []Configuration, stop func(Verdict) bool) ([]Outcome, int) {
	outcomes := make([]Outcome, len(cands))
	cached := make([]bool, len(cands))

	if r.engine.opts.Parallelism <= 1 || len(cands) == 1 {
		for i, cfg := range cands {
			outcomes[i], cached[i] = r.cache.GetOrCompute(r.ctx, cfg, r.engine.oracle)
			r.record(phase, cfg, outcomes[i], cached[i])
			if stop != nil && stop(outcomes[i].Verdict) {
				return outcomes, i + 1
			}
		}
		return outcomes, len(cands)
	}

	var g errgroup.Group
	g.SetLimit(r.engine.opts.Parallelism)
	for i, cfg := range cands {
		i, cfg := i, cfg
		g.Go(func() error {
			outcomes[i], cached[i] = r.cache.GetOrCompute(r.ctx, cfg, r.engine.oracle)
			return nil
		})
	}
	_ = g.Wait()

	for i, cfg := range cands {
		r.record(phase, cfg, outcomes[i], cached[i])
	}
	return outcomes, len(cands)
}

func (r *run) record(phase string, cfg Configuration, out Outcome, cached bool) {
	r.engine.logger.Debug("oracle verdict",
		zap.String("phase", phase),
		zap.Int("round", r.rounds),
		zap.Int("size", cfg.Len()),
		zap.String("verdict", out.Verdict.String()),
		zap.Bool("cached", cached))

	r.trace = append(r.trace, Step{
		Round:   r.rounds,
		Phase:   phase,
		Key:     cfg.Key(),
		Value:   cfg.Value(),
		Size:    cfg.Len(),
		Verdict: out.Verdict,
		Detail:  out.Detail,
		Cached:  cached,
	})
}

func (r *run) finish(failing, passing Configuration, delta, displaced []Unit) *Result {
	stats := r.cache.Stats()

	unresolved := 0
	for _, s := range r.trace {
		if !s.Cached && s.Verdict == Unresolved {
			unresolved++
		}
	}

	return &Result{
		Mode:        r.mode,
		Granularity: r.engine.decomposer.Name(),
		Failing:     failing,
		Passing:     passing,
		Delta:       delta,
		Displaced:   displaced,
		Trace:       r.trace,
		Rounds:      r.rounds,
		OracleCalls: stats.Invocations,
		CacheHits:   stats.Hits,
		Unresolved:  unresolved,
		Duration:    time.Since(r.start),
	}
}

func (r *run) finishIsolate(al *alignment, failSet, passSet []int) *Result {
	delta, displaced := al.delta(difference(failSet, passSet))
	return r.finish(al.build(failSet), al.build(passSet), delta, displaced)
}

func isFail(v Verdict) bool { return v == Fail }
func isPass(v Verdict) bool { return v == Pass }

func firstIndex(outcomes []Outcome, v Verdict) int {
	for i, o := range outcomes {
		if o.Verdict == v {
			return i
		}
	}
	return -1
}
