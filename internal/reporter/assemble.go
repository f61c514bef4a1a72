package reporter

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/su1ph3r/isolator/internal/ddmin"
	"github.com/su1ph3r/isolator/pkg/types"
)

// NewReport starts a report for one run
func NewReport(mode, granularity string) *types.Report {
	return &types.Report{
		RunID:       uuid.New().String(),
		Mode:        mode,
		Granularity: granularity,
		StartTime:   time.Now(),
	}
}

// NewMinimization converts an engine result into its report form. res may
// be a partial result returned alongside err.
func NewMinimization(res *ddmin.Result, failing, passing string, err error) *types.Minimization {
	m := &types.Minimization{
		FailingInput: failing,
		PassingInput: passing,
	}
	if err != nil {
		m.Error = err.Error()
	}
	if res == nil {
		return m
	}

	m.Minimal = res.Failing.Value()
	m.PassingBoundary = res.Passing.Value()
	m.Delta = reportUnits(res.Delta)
	m.Displaced = reportUnits(res.Displaced)
	m.Rounds = res.Rounds
	m.OracleCalls = res.OracleCalls
	m.CacheHits = res.CacheHits
	m.Unresolved = res.Unresolved
	m.Duration = res.Duration

	m.Trace = make([]types.TraceStep, len(res.Trace))
	for i, s := range res.Trace {
		m.Trace[i] = types.TraceStep{
			Round:   s.Round,
			Phase:   s.Phase,
			Value:   s.Value,
			Size:    s.Size,
			Verdict: s.Verdict.String(),
			Detail:  s.Detail,
			Cached:  s.Cached,
		}
	}

	return m
}

func reportUnits(units []ddmin.Unit) []types.ReportUnit {
	if len(units) == 0 {
		return nil
	}
	out := make([]types.ReportUnit, len(units))
	for i, u := range units {
		out[i] = types.ReportUnit{Side: u.Side.String(), Index: u.Index, Value: u.Value}
	}
	return out
}

// Finalize stamps the end time, computes the summary and adds warnings for
// searches weakened by UNRESOLVED verdicts
func Finalize(r *types.Report) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.Summary = types.NewReportSummary(r)

	if r.Summary.Unresolved > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf(
			"%d oracle calls were UNRESOLVED and counted as PASS; the result may not be 1-minimal",
			r.Summary.Unresolved))
	}
	for _, p := range r.Payloads {
		if p.Verdict == ddmin.Unresolved.String() {
			r.Warnings = append(r.Warnings, fmt.Sprintf("payload %q could not be classified: %s", p.Payload, p.Detail))
		}
	}
}
