package types

import (
	"time"
)

// Report contains the complete result of one isolator run
type Report struct {
	RunID       string        `json:"run_id" yaml:"run_id"`
	Mode        string        `json:"mode" yaml:"mode"`
	Granularity string        `json:"granularity" yaml:"granularity"`
	Target      *ReportTarget `json:"target,omitempty" yaml:"target,omitempty"`
	Command     []string      `json:"command,omitempty" yaml:"command,omitempty"`
	StartTime   time.Time     `json:"start_time" yaml:"start_time"`
	EndTime     time.Time     `json:"end_time" yaml:"end_time"`
	Duration    time.Duration `json:"duration" yaml:"duration"`

	Primary  *Minimization   `json:"minimization,omitempty" yaml:"minimization,omitempty"`
	Payloads []PayloadResult `json:"payloads,omitempty" yaml:"payloads,omitempty"`
	Summary  *ReportSummary  `json:"summary" yaml:"summary"`
	Warnings []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// ReportTarget captures the HTTP target of the run
type ReportTarget struct {
	URL                string `json:"url" yaml:"url"`
	Method             string `json:"method" yaml:"method"`
	Parameter          string `json:"parameter" yaml:"parameter"`
	Location           string `json:"location" yaml:"location"`
	SuccessStatusCodes string `json:"success_status_codes" yaml:"success_status_codes"`
}

// Minimization is one search from a failing input to its minimal form
type Minimization struct {
	FailingInput    string        `json:"failing_input" yaml:"failing_input"`
	PassingInput    string        `json:"passing_input" yaml:"passing_input"`
	Minimal         string        `json:"minimal" yaml:"minimal"`
	PassingBoundary string        `json:"passing_boundary" yaml:"passing_boundary"`
	Delta           []ReportUnit  `json:"delta" yaml:"delta"`
	Displaced       []ReportUnit  `json:"displaced,omitempty" yaml:"displaced,omitempty"`
	Trace           []TraceStep   `json:"trace" yaml:"trace"`
	Rounds          int           `json:"rounds" yaml:"rounds"`
	OracleCalls     int           `json:"oracle_calls" yaml:"oracle_calls"`
	CacheHits       int           `json:"cache_hits" yaml:"cache_hits"`
	Unresolved      int           `json:"unresolved" yaml:"unresolved"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
	Curl            string        `json:"curl,omitempty" yaml:"curl,omitempty"`
	Error           string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// ReportUnit is one unit of the minimal difference
type ReportUnit struct {
	Side  string `json:"side" yaml:"side"`
	Index int    `json:"index" yaml:"index"`
	Value string `json:"value" yaml:"value"`
}

// TraceStep is one oracle query in report form
type TraceStep struct {
	Round   int    `json:"round" yaml:"round"`
	Phase   string `json:"phase" yaml:"phase"`
	Value   string `json:"value" yaml:"value"`
	Size    int    `json:"size" yaml:"size"`
	Verdict string `json:"verdict" yaml:"verdict"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Cached  bool   `json:"cached" yaml:"cached"`
}

// PayloadResult is the confirmation outcome of one payload from a payloads file
type PayloadResult struct {
	Payload      string        `json:"payload" yaml:"payload"`
	Verdict      string        `json:"verdict" yaml:"verdict"`
	Detail       string        `json:"detail,omitempty" yaml:"detail,omitempty"`
	Minimization *Minimization `json:"minimization,omitempty" yaml:"minimization,omitempty"`
}

// ReportSummary aggregates counters over every search in the run
type ReportSummary struct {
	Searches          int `json:"searches" yaml:"searches"`
	OracleCalls       int `json:"oracle_calls" yaml:"oracle_calls"`
	CacheHits         int `json:"cache_hits" yaml:"cache_hits"`
	Unresolved        int `json:"unresolved" yaml:"unresolved"`
	PayloadsTested    int `json:"payloads_tested" yaml:"payloads_tested"`
	PayloadsConfirmed int `json:"payloads_confirmed" yaml:"payloads_confirmed"`
}

// NewReportSummary computes the summary from a report's searches
func NewReportSummary(r *Report) *ReportSummary {
	summary := &ReportSummary{
		PayloadsTested: len(r.Payloads),
	}

	add := func(m *Minimization) {
		if m == nil {
			return
		}
		summary.Searches++
		summary.OracleCalls += m.OracleCalls
		summary.CacheHits += m.CacheHits
		summary.Unresolved += m.Unresolved
	}

	add(r.Primary)
	for _, p := range r.Payloads {
		if p.Verdict == "FAIL" {
			summary.PayloadsConfirmed++
		}
		add(p.Minimization)
	}

	return summary
}
