package reporter

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/su1ph3r/isolator/pkg/types"
)

// TextReporter generates console text reports
type TextReporter struct {
	options ReportOptions

	header  *color.Color
	fail    *color.Color
	pass    *color.Color
	unres   *color.Color
	minimal *color.Color
}

// NewTextReporter creates a new text reporter
func NewTextReporter(options ReportOptions) *TextReporter {
	r := &TextReporter{
		options: options,
		header:  color.New(color.Bold),
		fail:    color.New(color.FgRed),
		pass:    color.New(color.FgGreen),
		unres:   color.New(color.FgYellow),
		minimal: color.New(color.FgRed, color.Bold),
	}
	if options.NoColor {
		for _, c := range []*color.Color{r.header, r.fail, r.pass, r.unres, r.minimal} {
			c.DisableColor()
		}
	}
	return r
}

// Format returns the format name
func (r *TextReporter) Format() string {
	return FormatText
}

// Extension returns the file extension
func (r *TextReporter) Extension() string {
	return "txt"
}

// Generate generates a text report
func (r *TextReporter) Generate(report *types.Report) ([]byte, error) {
	var buf strings.Builder
	if err := r.Write(report, &buf); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// Write writes the text report to a writer
func (r *TextReporter) Write(report *types.Report, w io.Writer) error {
	r.writeHeader(w, report)

	if report.Primary != nil {
		r.writeMinimization(w, "MINIMIZATION", report.Primary)
	}

	r.writePayloads(w, report)
	r.writeWarnings(w, report)
	r.writeFooter(w, report)

	return nil
}

func (r *TextReporter) writeHeader(w io.Writer, report *types.Report) {
	v := r.options.Version
	if v == "" {
		v = "unknown"
	}
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Starting Isolator %s\n", v)
	fmt.Fprintf(w, "Run %s\n", report.RunID)
	if t := report.Target; t != nil {
		fmt.Fprintf(w, "Target:      %s %s\n", t.Method, t.URL)
		fmt.Fprintf(w, "Parameter:   %s (%s)\n", t.Parameter, t.Location)
		fmt.Fprintf(w, "Success:     %s\n", t.SuccessStatusCodes)
	}
	if len(report.Command) > 0 {
		fmt.Fprintf(w, "Command:     %s\n", strings.Join(report.Command, " "))
	}
	fmt.Fprintf(w, "Mode:        %s (granularity %s)\n", report.Mode, report.Granularity)
	fmt.Fprintf(w, "Started at   %s\n", report.StartTime.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(w, "\n")
}

func (r *TextReporter) writeMinimization(w io.Writer, title string, m *types.Minimization) {
	r.header.Fprintf(w, "%s\n", title)
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 70))

	fmt.Fprintf(w, "    Failing input:    %s\n", strconv.Quote(m.FailingInput))
	fmt.Fprintf(w, "    Passing input:    %s\n", strconv.Quote(m.PassingInput))

	if m.Error != "" {
		r.fail.Fprintf(w, "    Error:            %s\n", m.Error)
	}

	if len(m.Trace) > 0 {
		fmt.Fprintf(w, "    Minimal input:    ")
		r.minimal.Fprintf(w, "%s", strconv.Quote(m.Minimal))
		fmt.Fprintf(w, "\n")
		if m.PassingBoundary != m.PassingInput || len(m.Displaced) > 0 {
			fmt.Fprintf(w, "    Passing boundary: %s\n", strconv.Quote(m.PassingBoundary))
		}
		fmt.Fprintf(w, "    Delta:            %s\n", unitsString(m.Delta))
		if len(m.Displaced) > 0 {
			fmt.Fprintf(w, "    Displaced:        %s\n", unitsString(m.Displaced))
		}
		fmt.Fprintf(w, "    Rounds:           %d\n", m.Rounds)
		fmt.Fprintf(w, "    Oracle calls:     %d (%d cache hits)\n", m.OracleCalls, m.CacheHits)
		if m.Unresolved > 0 {
			r.unres.Fprintf(w, "    Unresolved:       %d\n", m.Unresolved)
		}
		fmt.Fprintf(w, "    Duration:         %s\n", formatDuration(m.Duration))
	}

	if m.Curl != "" {
		fmt.Fprintf(w, "    Replicate:        %s\n", m.Curl)
	}
	fmt.Fprintf(w, "\n")

	if r.options.Verbose && len(m.Trace) > 0 {
		r.writeTrace(w, m.Trace)
	}
}

func (r *TextReporter) writeTrace(w io.Writer, trace []types.TraceStep) {
	fmt.Fprintf(w, "    %-4s %-5s %-10s %-10s %-6s %s\n", "#", "ROUND", "PHASE", "VERDICT", "CACHED", "VALUE")
	for i, s := range trace {
		cached := ""
		if s.Cached {
			cached = "yes"
		}
		verdict := fmt.Sprintf("%-10s", s.Verdict)
		fmt.Fprintf(w, "    %-4d %-5d %-10s %s %-6s %s\n",
			i+1, s.Round, s.Phase, r.verdictColor(s.Verdict).Sprint(verdict), cached,
			TruncateString(strconv.Quote(s.Value), 60))
		if s.Detail != "" && s.Verdict != "PASS" {
			fmt.Fprintf(w, "         %s\n", TruncateString(firstLine(s.Detail), 100))
		}
	}
	fmt.Fprintf(w, "\n")
}

func (r *TextReporter) writePayloads(w io.Writer, report *types.Report) {
	if len(report.Payloads) == 0 {
		return
	}

	r.header.Fprintf(w, "PAYLOADS\n")
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 70))
	for _, p := range report.Payloads {
		tag := r.verdictColor(p.Verdict).Sprintf("[%s]", p.Verdict)
		fmt.Fprintf(w, "%s %s", tag, strconv.Quote(p.Payload))
		if p.Minimization != nil && p.Minimization.Error == "" {
			fmt.Fprintf(w, " -> minimal %s", strconv.Quote(p.Minimization.Minimal))
		}
		fmt.Fprintf(w, "\n")
		if p.Detail != "" {
			fmt.Fprintf(w, "    %s\n", TruncateString(firstLine(p.Detail), 100))
		}
	}
	fmt.Fprintf(w, "\n")

	if r.options.Verbose {
		for _, p := range report.Payloads {
			if p.Minimization != nil {
				r.writeMinimization(w, "PAYLOAD "+strconv.Quote(p.Payload), p.Minimization)
			}
		}
	}
}

func (r *TextReporter) writeWarnings(w io.Writer, report *types.Report) {
	for _, warning := range report.Warnings {
		r.unres.Fprintf(w, "[!] %s\n", warning)
	}
	if len(report.Warnings) > 0 {
		fmt.Fprintf(w, "\n")
	}
}

func (r *TextReporter) writeFooter(w io.Writer, report *types.Report) {
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 70))
	if !report.EndTime.IsZero() {
		fmt.Fprintf(w, "Run completed at %s\n", report.EndTime.Format("2006-01-02 15:04 MST"))
	}
	if s := report.Summary; s != nil {
		fmt.Fprintf(w, "Isolator done: %d searches, %d oracle calls, %d cache hits in %s\n",
			s.Searches, s.OracleCalls, s.CacheHits, formatDuration(report.Duration))
		if s.PayloadsTested > 0 {
			fmt.Fprintf(w, "Payloads: %d tested, %d confirmed\n", s.PayloadsTested, s.PayloadsConfirmed)
		}
	}
}

func (r *TextReporter) verdictColor(verdict string) *color.Color {
	switch verdict {
	case "FAIL":
		return r.fail
	case "PASS":
		return r.pass
	default:
		return r.unres
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%02ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%02dm", hours, mins)
}
