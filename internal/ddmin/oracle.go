package ddmin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Verdict is an oracle's classification of one configuration
type Verdict int

const (
	// Unresolved means the oracle could not decide (error, timeout)
	Unresolved Verdict = iota
	// Pass means the bug was not reproduced
	Pass
	// Fail means the bug was reproduced
	Fail
)

// String returns the verdict name
func (v Verdict) String() string {
	switch v {
	case Fail:
		return "FAIL"
	case Pass:
		return "PASS"
	default:
		return "UNRESOLVED"
	}
}

// MarshalJSON encodes the verdict as its name
func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// ParseVerdict parses a verdict name
func ParseVerdict(s string) (Verdict, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FAIL":
		return Fail, nil
	case "PASS":
		return Pass, nil
	case "UNRESOLVED":
		return Unresolved, nil
	}
	return Unresolved, fmt.Errorf("unknown verdict: %q", s)
}

// Outcome is the result of one oracle evaluation
type Outcome struct {
	Verdict Verdict
	Detail  string // Human-readable evidence, e.g. "HTTP 500" or a transport error
}

// Oracle decides whether a candidate configuration reproduces the bug.
// Implementations must not return errors: any failure to decide is an
// Unresolved outcome.
type Oracle interface {
	Evaluate(ctx context.Context, cfg Configuration) Outcome
}

// OracleFunc adapts a function to the Oracle interface
type OracleFunc func(ctx context.Context, cfg Configuration) Outcome

// Evaluate calls f
func (f OracleFunc) Evaluate(ctx context.Context, cfg Configuration) Outcome {
	return f(ctx, cfg)
}

// ValueOracle builds an oracle from a predicate over reconstructed values
func ValueOracle(fn func(value string) Verdict) Oracle {
	return OracleFunc(func(_ context.Context, cfg Configuration) Outcome {
		return Outcome{Verdict: fn(cfg.Value())}
	})
}

// RetryOracle re-asks the wrapped oracle when it cannot decide
type RetryOracle struct {
	oracle   Oracle
	attempts int
	delay    time.Duration
	logger   *zap.Logger
}

// WithRetry wraps oracle so that Unresolved outcomes are retried up to
// attempts extra times. attempts <= 0 returns oracle unchanged.
func WithRetry(oracle Oracle, attempts int, delay time.Duration, logger *zap.Logger) Oracle {
	if attempts <= 0 {
		return oracle
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryOracle{oracle: oracle, attempts: attempts, delay: delay, logger: logger}
}

// Evaluate evaluates cfg, retrying while the outcome is Unresolved
func (r *RetryOracle) Evaluate(ctx context.Context, cfg Configuration) Outcome {
	out := r.oracle.Evaluate(ctx, cfg)
	for attempt := 1; attempt <= r.attempts && out.Verdict == Unresolved; attempt++ {
		r.logger.Debug("retrying unresolved evaluation",
			zap.Int("attempt", attempt),
			zap.String("key", cfg.Key()),
			zap.String("detail", out.Detail))

		if r.delay > 0 {
			t := time.NewTimer(r.delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return out
			case <-t.C:
			}
		}
		out = r.oracle.Evaluate(ctx, cfg)
	}
	return out
}
