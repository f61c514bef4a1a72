package oracle

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/su1ph3r/isolator/internal/ddmin"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// --- ProcessOracle tests ---

func TestProcessOracle_ExitCriterion(t *testing.T) {
	requireShell(t)

	o, err := NewProcessOracle(ProcessSpec{
		Command:   []string{"sh", "-c", `grep -q '!!!' && exit 3; exit 0`},
		Criterion: CriterionExit,
	}, nil)
	if err != nil {
		t.Fatalf("NewProcessOracle failed: %v", err)
	}

	out := o.Evaluate(context.Background(), valueConfig("bad!!!value"))
	if out.Verdict != ddmin.Fail {
		t.Fatalf("expected FAIL, got %s (%s)", out.Verdict, out.Detail)
	}
	if out.Detail != "exit status 3" {
		t.Errorf("expected 'exit status 3', got %q", out.Detail)
	}

	if out := o.Evaluate(context.Background(), valueConfig("value")); out.Verdict != ddmin.Pass {
		t.Fatalf("expected PASS, got %s (%s)", out.Verdict, out.Detail)
	}
}

func TestProcessOracle_PlaceholderSubstitution(t *testing.T) {
	requireShell(t)

	o, err := NewProcessOracle(ProcessSpec{
		Command:   []string{"sh", "-c", `case "$1" in *'<'*) exit 1;; esac`, "sh", "{}"},
		Criterion: CriterionExit,
	}, nil)
	if err != nil {
		t.Fatalf("NewProcessOracle failed: %v", err)
	}

	if out := o.Evaluate(context.Background(), valueConfig("a<b")); out.Verdict != ddmin.Fail {
		t.Fatalf("expected FAIL for substituted argument, got %s (%s)", out.Verdict, out.Detail)
	}
	if out := o.Evaluate(context.Background(), valueConfig("ab")); out.Verdict != ddmin.Pass {
		t.Fatalf("expected PASS, got %s (%s)", out.Verdict, out.Detail)
	}
}

func TestProcessOracle_PatternCriterion(t *testing.T) {
	requireShell(t)

	o, err := NewProcessOracle(ProcessSpec{
		Command:   []string{"sh", "-c", `read line; case "$line" in *DROP*) echo "panic: dropped" >&2;; *) echo ok;; esac`},
		Criterion: CriterionPattern,
		Pattern:   `^panic:`,
	}, nil)
	if err != nil {
		t.Fatalf("NewProcessOracle failed: %v", err)
	}

	if out := o.Evaluate(context.Background(), valueConfig("x; DROP TABLE t")); out.Verdict != ddmin.Fail {
		t.Fatalf("expected FAIL, got %s (%s)", out.Verdict, out.Detail)
	}
	if out := o.Evaluate(context.Background(), valueConfig("select")); out.Verdict != ddmin.Pass {
		t.Fatalf("expected PASS, got %s (%s)", out.Verdict, out.Detail)
	}
}

func TestProcessOracle_DiffCriterion(t *testing.T) {
	requireShell(t)

	o, err := NewProcessOracle(ProcessSpec{
		Command: []string{"sh", "-c", `tr -d '!'`},
	}, nil)
	if err != nil {
		t.Fatalf("NewProcessOracle failed: %v", err)
	}

	if out := o.Evaluate(context.Background(), valueConfig("x")); out.Verdict != ddmin.Unresolved {
		t.Fatalf("expected UNRESOLVED before calibration, got %s", out.Verdict)
	}

	if err := o.Calibrate(context.Background(), "value"); err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}

	// "va!!lue" prints the same stdout as the reference once '!' is stripped
	if out := o.Evaluate(context.Background(), valueConfig("va!!lue")); out.Verdict != ddmin.Pass {
		t.Fatalf("expected PASS for equal output, got %s (%s)", out.Verdict, out.Detail)
	}

	out := o.Evaluate(context.Background(), valueConfig("valUe"))
	if out.Verdict != ddmin.Fail {
		t.Fatalf("expected FAIL for different output, got %s", out.Verdict)
	}
	if !strings.Contains(out.Detail, "-value") || !strings.Contains(out.Detail, "+valUe") {
		t.Errorf("expected unified diff evidence, got %q", out.Detail)
	}
}

func TestProcessOracle_Minimize(t *testing.T) {
	requireShell(t)

	o, err := NewProcessOracle(ProcessSpec{
		Command:   []string{"sh", "-c", `grep -q '!!!' && exit 1; exit 0`},
		Criterion: CriterionExit,
	}, nil)
	if err != nil {
		t.Fatalf("NewProcessOracle failed: %v", err)
	}

	engine := ddmin.NewEngine(o, ddmin.CharDecomposer{}, ddmin.Options{Parallelism: 4}, nil)
	result, err := engine.Minimize(context.Background(), "bad!!!value", "value")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failing.Value() != "!!!" {
		t.Fatalf("expected '!!!', got '%s'", result.Failing.Value())
	}
	if o.Runs() != result.OracleCalls {
		t.Errorf("expected %d process runs, got %d", result.OracleCalls, o.Runs())
	}
}

func TestProcessOracle_Timeout(t *testing.T) {
	requireShell(t)

	o, err := NewProcessOracle(ProcessSpec{
		Command:   []string{"sh", "-c", "sleep 5"},
		Criterion: CriterionExit,
		Timeout:   100 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewProcessOracle failed: %v", err)
	}

	out := o.Evaluate(context.Background(), valueConfig("x"))
	if out.Verdict != ddmin.Unresolved {
		t.Fatalf("expected UNRESOLVED on timeout, got %s", out.Verdict)
	}
	if !strings.HasPrefix(out.Detail, "timeout") {
		t.Errorf("expected timeout detail, got %q", out.Detail)
	}
}

func TestProcessOracle_StartFailure(t *testing.T) {
	o, err := NewProcessOracle(ProcessSpec{
		Command:   []string{"/nonexistent/isolator-test-binary"},
		Criterion: CriterionExit,
	}, nil)
	if err != nil {
		t.Fatalf("NewProcessOracle failed: %v", err)
	}

	out := o.Evaluate(context.Background(), valueConfig("x"))
	if out.Verdict != ddmin.Unresolved {
		t.Fatalf("expected UNRESOLVED when the command cannot start, got %s", out.Verdict)
	}
}

func TestNewProcessOracle_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec ProcessSpec
	}{
		{"no command", ProcessSpec{}},
		{"unknown criterion", ProcessSpec{Command: []string{"true"}, Criterion: "stderr"}},
		{"pattern missing", ProcessSpec{Command: []string{"true"}, Criterion: CriterionPattern}},
		{"pattern invalid", ProcessSpec{Command: []string{"true"}, Criterion: CriterionPattern, Pattern: "("}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProcessOracle(tt.spec, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// --- UnifiedDiff tests ---

func TestUnifiedDiff(t *testing.T) {
	a := "one\ntwo\nthree\n"
	b := "one\n2\nthree\n"

	d := UnifiedDiff("reference", "candidate", a, b)
	for _, want := range []string{"--- reference", "+++ candidate", "-two", "+2", " one"} {
		if !strings.Contains(d, want) {
			t.Errorf("expected diff to contain %q, got:\n%s", want, d)
		}
	}
}

func TestUnifiedDiff_Truncated(t *testing.T) {
	a := strings.Repeat("a\n", 5000)
	b := strings.Repeat("b\n", 5000)

	d := UnifiedDiff("a", "b", a, b)
	if len(d) > maxDiffSize+3 {
		t.Fatalf("expected diff capped at %d bytes, got %d", maxDiffSize, len(d))
	}
}
