package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/su1ph3r/isolator/internal/ddmin"
)

// Process oracle criteria
const (
	CriterionDiff    = "diff"
	CriterionExit    = "exit"
	CriterionPattern = "pattern"
)

// placeholder in command arguments is replaced by the candidate input
const placeholder = "{}"

// ProcessSpec describes the command a ProcessOracle runs
type ProcessSpec struct {
	Command   []string
	Criterion string        // diff (default), exit, pattern
	Pattern   string        // regexp for the pattern criterion
	Timeout   time.Duration // per run; 0 means no limit
}

// ProcessResult is the observable behaviour of one run
type ProcessResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ProcessOracle evaluates candidates by running a local command. The
// candidate is substituted for {} in the arguments, or fed on stdin when
// no argument contains {}.
type ProcessOracle struct {
	spec    ProcessSpec
	pattern *regexp.Regexp
	logger  *zap.Logger
	runs    atomic.Int64

	mu        sync.RWMutex
	reference *ProcessResult
}

// NewProcessOracle creates a process oracle
func NewProcessOracle(spec ProcessSpec, logger *zap.Logger) (*ProcessOracle, error) {
	if len(spec.Command) == 0 || spec.Command[0] == "" {
		return nil, errors.New("command is required")
	}
	if spec.Criterion == "" {
		spec.Criterion = CriterionDiff
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &ProcessOracle{spec: spec, logger: logger}

	switch spec.Criterion {
	case CriterionDiff, CriterionExit:
	case CriterionPattern:
		if spec.Pattern == "" {
			return nil, errors.New("pattern criterion requires a pattern")
		}
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		p.pattern = re
	default:
		return nil, fmt.Errorf("unknown criterion: %s", spec.Criterion)
	}

	return p, nil
}

// Calibrate records the reference run on the passing input. The diff
// criterion compares every candidate against it.
func (p *ProcessOracle) Calibrate(ctx context.Context, passing string) error {
	if p.spec.Criterion != CriterionDiff {
		return nil
	}

	res, err := p.Run(ctx, passing)
	if err != nil {
		return fmt.Errorf("reference run failed: %w", err)
	}

	p.mu.Lock()
	p.reference = res
	p.mu.Unlock()

	p.logger.Debug("process reference recorded",
		zap.Int("exit_code", res.ExitCode),
		zap.Int("stdout_bytes", len(res.Stdout)))
	return nil
}

// Runs returns the number of processes started so far
func (p *ProcessOracle) Runs() int {
	return int(p.runs.Load())
}

// Evaluate runs the command on the reconstructed configuration
func (p *ProcessOracle) Evaluate(ctx context.Context, cfg ddmin.Configuration) ddmin.Outcome {
	res, err := p.Run(ctx, cfg.Value())
	if err != nil {
		return ddmin.Outcome{Verdict: ddmin.Unresolved, Detail: err.Error()}
	}

	out := p.classify(res)
	p.logger.Debug("process oracle run",
		zap.Int("size", cfg.Len()),
		zap.Int("exit_code", res.ExitCode),
		zap.String("verdict", out.Verdict.String()),
		zap.Duration("duration", res.Duration))
	return out
}

func (p *ProcessOracle) classify(res *ProcessResult) ddmin.Outcome {
	switch p.spec.Criterion {
	case CriterionExit:
		if res.ExitCode != 0 {
			return ddmin.Outcome{Verdict: ddmin.Fail, Detail: fmt.Sprintf("exit status %d", res.ExitCode)}
		}
		return ddmin.Outcome{Verdict: ddmin.Pass, Detail: "exit status 0"}

	case CriterionPattern:
		if p.pattern.MatchString(res.Stdout + res.Stderr) {
			return ddmin.Outcome{Verdict: ddmin.Fail, Detail: "output matches " + p.pattern.String()}
		}
		return ddmin.Outcome{Verdict: ddmin.Pass}

	default:
		p.mu.RLock()
		ref := p.reference
		p.mu.RUnlock()
		if ref == nil {
			return ddmin.Outcome{Verdict: ddmin.Unresolved, Detail: "no reference run recorded"}
		}

		if res.ExitCode != ref.ExitCode {
			return ddmin.Outcome{Verdict: ddmin.Fail, Detail: fmt.Sprintf("exit status %d, reference %d", res.ExitCode, ref.ExitCode)}
		}
		if res.Stdout != ref.Stdout {
			return ddmin.Outcome{Verdict: ddmin.Fail, Detail: UnifiedDiff("reference", "candidate", ref.Stdout, res.Stdout)}
		}
		return ddmin.Outcome{Verdict: ddmin.Pass}
	}
}

// Run executes the command once with input
func (p *ProcessOracle) Run(ctx context.Context, input string) (*ProcessResult, error) {
	if p.spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.spec.Timeout)
		defer cancel()
	}

	args, substituted := substitute(p.spec.Command[1:], input)
	cmd := exec.CommandContext(ctx, p.spec.Command[0], args...)
	cmd.WaitDelay = 500 * time.Millisecond
	if !substituted {
		cmd.Stdin = strings.NewReader(input)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	p.runs.Add(1)
	start := time.Now()
	err := cmd.Run()
	res := &ProcessResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("timeout: %w", ctx.Err())
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	return res, nil
}

func substitute(args []string, input string) ([]string, bool) {
	out := make([]string, len(args))
	substituted := false
	for i, a := range args {
		if strings.Contains(a, placeholder) {
			a = strings.ReplaceAll(a, placeholder, input)
			substituted = true
		}
		out[i] = a
	}
	return out, substituted
}
