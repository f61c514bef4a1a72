package ddmin

import (
	"context"
	"errors"
	"math/bits"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func containsOracle(needle string) Oracle {
	return ValueOracle(func(v string) Verdict {
		if strings.Contains(v, needle) {
			return Fail
		}
		return Pass
	})
}

// countingOracle counts every real invocation of the wrapped oracle
type countingOracle struct {
	oracle Oracle
	calls  atomic.Int64
	mu     sync.Mutex
	keys   map[string]int
}

func newCountingOracle(o Oracle) *countingOracle {
	return &countingOracle{oracle: o, keys: make(map[string]int)}
}

func (c *countingOracle) Evaluate(ctx context.Context, cfg Configuration) Outcome {
	c.calls.Add(1)
	c.mu.Lock()
	c.keys[cfg.Key()]++
	c.mu.Unlock()
	return c.oracle.Evaluate(ctx, cfg)
}

// assertOneMinimal checks that removing any single unit from the result
// stops reproducing the failure
func assertOneMinimal(t *testing.T, d Decomposer, oracle Oracle, cfg Configuration) {
	t.Helper()
	units := cfg.Units()
	for i := range units {
		reduced := append(append([]Unit{}, units[:i]...), units[i+1:]...)
		out := oracle.Evaluate(context.Background(), NewConfiguration(d, reduced))
		if out.Verdict == Fail {
			t.Fatalf("result %q is not 1-minimal: removing unit %d still fails", cfg.Value(), i)
		}
	}
}

// --- Minimize tests ---

func TestMinimize_IsolatesSubstring(t *testing.T) {
	engine := NewEngine(containsOracle("!!!"), CharDecomposer{}, Options{}, nil)

	result, err := engine.Minimize(context.Background(), "bad!!!value", "value")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Failing.Value() != "!!!" {
		t.Fatalf("expected '!!!', got '%s'", result.Failing.Value())
	}
	if len(result.Delta) != 3 {
		t.Errorf("expected 3 delta units, got %d", len(result.Delta))
	}
	if result.Passing.Value() != "value" {
		t.Errorf("expected passing boundary 'value', got '%s'", result.Passing.Value())
	}
	if result.Mode != ModeMinimize {
		t.Errorf("expected mode minimize, got %s", result.Mode)
	}
	if result.Granularity != GranularityChar {
		t.Errorf("expected char granularity, got %s", result.Granularity)
	}
	if result.HasUnresolved() {
		t.Error("expected no unresolved outcomes")
	}
}

func TestMinimize_OneMinimal(t *testing.T) {
	tests := []struct {
		name    string
		failing string
		oracle  func(string) Verdict
	}{
		{
			name:    "two separated characters",
			failing: "a<b>c<d>e",
			oracle: func(v string) Verdict {
				if strings.Contains(v, "<") && strings.Contains(v, ">") {
					return Fail
				}
				return Pass
			},
		},
		{
			name:    "ordered pair",
			failing: "xxSELECTxxFROMxx",
			oracle: func(v string) Verdict {
				i := strings.Index(v, "S")
				if i >= 0 && strings.Contains(v[i:], "F") {
					return Fail
				}
				return Pass
			},
		},
		{
			name:    "length threshold",
			failing: "aaaaaaaaaaaaaaaaaaaa",
			oracle: func(v string) Verdict {
				if len(v) >= 7 {
					return Fail
				}
				return Pass
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := ValueOracle(tt.oracle)
			engine := NewEngine(oracle, CharDecomposer{}, Options{}, nil)

			result, err := engine.Minimize(context.Background(), tt.failing, "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.oracle(result.Failing.Value()) != Fail {
				t.Fatalf("result %q does not fail", result.Failing.Value())
			}
			assertOneMinimal(t, CharDecomposer{}, oracle, result.Failing)
		})
	}
}

func TestMinimize_Idempotent(t *testing.T) {
	oracle := containsOracle("'1'='1")
	engine := NewEngine(oracle, CharDecomposer{}, Options{}, nil)

	first, err := engine.Minimize(context.Background(), "id=7' OR '1'='1 --", "id=7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := engine.Minimize(context.Background(), first.Failing.Value(), "id=7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.Failing.Value() != second.Failing.Value() {
		t.Fatalf("expected idempotent result, got '%s' then '%s'", first.Failing.Value(), second.Failing.Value())
	}
}

func TestMinimize_TerminationBound(t *testing.T) {
	failing := strings.Repeat("ab", 32) + "X" + strings.Repeat("cd", 32) + "Y"
	oracle := ValueOracle(func(v string) Verdict {
		if strings.Contains(v, "X") && strings.Contains(v, "Y") {
			return Fail
		}
		return Pass
	})
	counter := newCountingOracle(oracle)
	engine := NewEngine(counter, CharDecomposer{}, Options{}, nil)

	result, err := engine.Minimize(context.Background(), failing, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failing.Value() != "XY" {
		t.Fatalf("expected 'XY', got '%s'", result.Failing.Value())
	}

	n := len(failing)
	if maxRounds := n * (bits.Len(uint(n)) + 1); result.Rounds > maxRounds {
		t.Errorf("expected at most %d rounds, got %d", maxRounds, result.Rounds)
	}
	// Classic ddmin worst case plus baseline probes and the empty probe
	if maxCalls := (n*n+7*n)/2 + 3; int(counter.calls.Load()) > maxCalls {
		t.Errorf("expected at most %d oracle calls, got %d", maxCalls, counter.calls.Load())
	}
}

func TestMinimize_EmptyProbe(t *testing.T) {
	// An oracle that fails everything means even the empty input fails
	always := ValueOracle(func(v string) Verdict {
		if v == "ok" {
			return Pass
		}
		return Fail
	})
	engine := NewEngine(always, CharDecomposer{}, Options{}, nil)

	result, err := engine.Minimize(context.Background(), "abc", "ok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failing.Len() != 0 {
		t.Fatalf("expected empty result, got '%s'", result.Failing.Value())
	}
}

func TestMinimize_TokenGranularity(t *testing.T) {
	oracle := containsOracle("OR")
	engine := NewEngine(oracle, TokenDecomposer{}, Options{}, nil)

	result, err := engine.Minimize(context.Background(), "1 OR 1=1", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failing.Value() != "OR" {
		t.Fatalf("expected 'OR', got '%s'", result.Failing.Value())
	}
}

// --- Cache tests ---

func TestMinimize_CacheCorrectness(t *testing.T) {
	counter := newCountingOracle(containsOracle("!!!"))
	engine := NewEngine(counter, CharDecomposer{}, Options{}, nil)

	result, err := engine.Minimize(context.Background(), "bad!!!value", "value")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for key, n := range counter.keys {
		if n != 1 {
			t.Errorf("configuration %s evaluated %d times", key, n)
		}
	}
	if int(counter.calls.Load()) != result.OracleCalls {
		t.Errorf("expected %d oracle calls, result reports %d", counter.calls.Load(), result.OracleCalls)
	}

	cached := 0
	for _, s := range result.Trace {
		if s.Cached {
			cached++
		}
	}
	if cached != result.CacheHits {
		t.Errorf("expected %d cache hits, trace has %d", result.CacheHits, cached)
	}
	if len(result.Trace) != result.OracleCalls+result.CacheHits {
		t.Errorf("trace length %d != calls %d + hits %d", len(result.Trace), result.OracleCalls, result.CacheHits)
	}
}

// --- Baseline tests ---

func TestMinimize_PassingInputFails(t *testing.T) {
	engine := NewEngine(containsOracle("x"), CharDecomposer{}, Options{}, nil)

	result, err := engine.Minimize(context.Background(), "xa", "xb")
	if err == nil {
		t.Fatal("expected baseline error")
	}
	if !errors.Is(err, ErrInvalidBaseline) {
		t.Fatalf("expected ErrInvalidBaseline, got %v", err)
	}

	var be *BaselineError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BaselineError, got %T", err)
	}
	if be.Boundary != "passing" {
		t.Errorf("expected passing boundary, got %s", be.Boundary)
	}
	if result == nil {
		t.Fatal("expected partial result alongside baseline error")
	}
	if result.Rounds != 0 {
		t.Errorf("expected no search rounds, got %d", result.Rounds)
	}
}

func TestMinimize_FailingInputPasses(t *testing.T) {
	engine := NewEngine(containsOracle("!!!"), CharDecomposer{}, Options{}, nil)

	_, err := engine.Minimize(context.Background(), "harmless", "")
	var be *BaselineError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BaselineError, got %v", err)
	}
	if be.Boundary != "failing" || be.Verdict != Pass {
		t.Errorf("expected failing boundary classified PASS, got %s %s", be.Boundary, be.Verdict)
	}
}

func TestMinimize_UnresolvedBaseline(t *testing.T) {
	down := OracleFunc(func(context.Context, Configuration) Outcome {
		return Outcome{Verdict: Unresolved, Detail: "connection refused"}
	})
	engine := NewEngine(down, CharDecomposer{}, Options{}, nil)

	result, err := engine.Minimize(context.Background(), "payload", "")
	if !errors.Is(err, ErrInvalidBaseline) {
		t.Fatalf("expected ErrInvalidBaseline, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected detail in error, got %q", err.Error())
	}
	if result.Unresolved != 1 {
		t.Errorf("expected 1 unresolved outcome, got %d", result.Unresolved)
	}
}

// --- Unresolved tests ---

func TestMinimize_CountsUnresolved(t *testing.T) {
	oracle := ValueOracle(func(v string) Verdict {
		switch {
		case strings.Contains(v, "?") && v != "a?!!!":
			return Unresolved
		case strings.Contains(v, "!!!"):
			return Fail
		default:
			return Pass
		}
	})
	engine := NewEngine(oracle, CharDecomposer{}, Options{}, nil)

	result, err := engine.Minimize(context.Background(), "a?!!!", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failing.Value() != "!!!" {
		t.Fatalf("expected '!!!', got '%s'", result.Failing.Value())
	}
	if !result.HasUnresolved() {
		t.Fatal("expected unresolved outcomes to be reported")
	}
	if result.Unresolved != 2 {
		t.Errorf("expected 2 unresolved outcomes, got %d", result.Unresolved)
	}
}

// --- Parallel tests ---

func TestMinimize_ParallelMatchesSequential(t *testing.T) {
	failing := "p=1&q=" + strings.Repeat("z", 40) + "<script>&r=" + strings.Repeat("w", 25)
	oracle := containsOracle("<script>")

	seq := NewEngine(oracle, CharDecomposer{}, Options{Parallelism: 1}, nil)
	par := NewEngine(oracle, CharDecomposer{}, Options{Parallelism: 8}, nil)

	want, err := seq.Minimize(context.Background(), failing, "p=1")
	if err != nil {
		t.Fatalf("sequential: unexpected error: %v", err)
	}
	got, err := par.Minimize(context.Background(), failing, "p=1")
	if err != nil {
		t.Fatalf("parallel: unexpected error: %v", err)
	}

	if want.Failing.Value() != "<script>" {
		t.Fatalf("expected '<script>', got '%s'", want.Failing.Value())
	}
	if got.Failing.Key() != want.Failing.Key() {
		t.Fatalf("parallel result %q differs from sequential %q", got.Failing.Value(), want.Failing.Value())
	}
	if got.Rounds != want.Rounds {
		t.Errorf("expected %d rounds in parallel, got %d", want.Rounds, got.Rounds)
	}
}

func TestMinimize_ParallelTieBreak(t *testing.T) {
	// Every quarter contains a failing marker; the leftmost must win
	oracle := containsOracle("!")
	engine := NewEngine(oracle, CharDecomposer{}, Options{Parallelism: 4}, nil)

	result, err := engine.Minimize(context.Background(), "!aa!bb!cc!", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	units := result.Failing.Units()
	if len(units) != 1 || units[0].Index != 0 {
		t.Fatalf("expected leftmost '!' at index 0, got %v", units)
	}
}

func TestMinimize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(containsOracle("!!!"), CharDecomposer{}, Options{}, nil)
	result, err := engine.Minimize(ctx, "bad!!!value", "value")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result == nil || result.Failing.Value() != "bad!!!value" {
		t.Fatal("expected partial result holding the unreduced input")
	}
}

// --- Isolate tests ---

func TestIsolate_MinimalDifference(t *testing.T) {
	engine := NewEngine(containsOracle("<"), CharDecomposer{}, Options{}, nil)

	result, err := engine.Isolate(context.Background(), "a'bc<d", "axbycz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Delta) != 1 || result.Delta[0].Value != "<" {
		t.Fatalf("expected delta ['<'], got %v", result.Delta)
	}
	if len(result.Displaced) != 1 || result.Displaced[0].Value != "c" {
		t.Fatalf("expected displaced ['c'], got %v", result.Displaced)
	}
	if result.Failing.Value() != "axby<z" {
		t.Errorf("expected failing boundary 'axby<z', got '%s'", result.Failing.Value())
	}
	if result.Passing.Value() != "axbycz" {
		t.Errorf("expected passing boundary 'axbycz', got '%s'", result.Passing.Value())
	}
}

func TestIsolate_LongerFailingInput(t *testing.T) {
	engine := NewEngine(containsOracle("<"), CharDecomposer{}, Options{}, nil)

	result, err := engine.Isolate(context.Background(), "ab<", "ab")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Delta) != 1 || result.Delta[0].Value != "<" {
		t.Fatalf("expected delta ['<'], got %v", result.Delta)
	}
	if len(result.Displaced) != 0 {
		t.Fatalf("expected nothing displaced, got %v", result.Displaced)
	}
}

func TestIsolate_BoundariesStayClassified(t *testing.T) {
	oracle := ValueOracle(func(v string) Verdict {
		if strings.Contains(v, "'") && strings.Contains(v, "-") {
			return Fail
		}
		return Pass
	})
	engine := NewEngine(oracle, CharDecomposer{}, Options{}, nil)

	result, err := engine.Isolate(context.Background(), "id=1' OR 1=1 --", "id=1  OR 1=1 ab")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if oracle.Evaluate(context.Background(), result.Failing).Verdict != Fail {
		t.Errorf("failing boundary %q does not fail", result.Failing.Value())
	}
	if oracle.Evaluate(context.Background(), result.Passing).Verdict == Fail {
		t.Errorf("passing boundary %q fails", result.Passing.Value())
	}
	if len(result.Delta) == 0 {
		t.Fatal("expected a non-empty delta")
	}
}

func TestIsolate_BaselineError(t *testing.T) {
	engine := NewEngine(containsOracle("a"), CharDecomposer{}, Options{}, nil)

	_, err := engine.Isolate(context.Background(), "ab", "ac")
	if !errors.Is(err, ErrInvalidBaseline) {
		t.Fatalf("expected ErrInvalidBaseline, got %v", err)
	}
}

func TestRun_Modes(t *testing.T) {
	engine := NewEngine(containsOracle("!"), CharDecomposer{}, Options{}, nil)

	if _, err := engine.Run(context.Background(), "", "a!", "a"); err != nil {
		t.Errorf("default mode: unexpected error: %v", err)
	}
	if _, err := engine.Run(context.Background(), ModeIsolate, "a!", "a"); err != nil {
		t.Errorf("isolate mode: unexpected error: %v", err)
	}
	if _, err := engine.Run(context.Background(), "bisect", "a!", "a"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
