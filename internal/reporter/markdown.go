package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/su1ph3r/isolator/pkg/types"
)

// MarkdownReporter generates Markdown reports
type MarkdownReporter struct {
	options ReportOptions
}

// NewMarkdownReporter creates a new Markdown reporter
func NewMarkdownReporter(options ReportOptions) *MarkdownReporter {
	if options.Title == "" {
		options.Title = DefaultOptions().Title
	}
	return &MarkdownReporter{options: options}
}

// Format returns the format name
func (r *MarkdownReporter) Format() string {
	return FormatMarkdown
}

// Extension returns the file extension
func (r *MarkdownReporter) Extension() string {
	return "md"
}

// Generate generates a Markdown report
func (r *MarkdownReporter) Generate(report *types.Report) ([]byte, error) {
	var buf strings.Builder
	if err := r.Write(report, &buf); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// Write writes the Markdown report to a writer
func (r *MarkdownReporter) Write(report *types.Report, w io.Writer) error {
	fmt.Fprintf(w, "# %s\n\n", r.options.Title)

	// Summary
	fmt.Fprintf(w, "## Summary\n\n")
	fmt.Fprintf(w, "| Metric | Value |\n")
	fmt.Fprintf(w, "|--------|-------|\n")
	fmt.Fprintf(w, "| Run ID | `%s` |\n", report.RunID)
	if t := report.Target; t != nil {
		fmt.Fprintf(w, "| Target | `%s %s` |\n", t.Method, EscapeMarkdown(t.URL))
		fmt.Fprintf(w, "| Parameter | `%s` (%s) |\n", EscapeMarkdown(t.Parameter), t.Location)
		fmt.Fprintf(w, "| Success Codes | %s |\n", t.SuccessStatusCodes)
	}
	if len(report.Command) > 0 {
		fmt.Fprintf(w, "| Command | `%s` |\n", EscapeMarkdown(strings.Join(report.Command, " ")))
	}
	fmt.Fprintf(w, "| Mode | %s |\n", report.Mode)
	fmt.Fprintf(w, "| Granularity | %s |\n", report.Granularity)
	fmt.Fprintf(w, "| Start Time | %s |\n", report.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "| Duration | %s |\n", report.Duration)
	if s := report.Summary; s != nil {
		fmt.Fprintf(w, "| Oracle Calls | %d |\n", s.OracleCalls)
		fmt.Fprintf(w, "| Cache Hits | %d |\n", s.CacheHits)
		fmt.Fprintf(w, "| Unresolved | %d |\n", s.Unresolved)
	}
	fmt.Fprintf(w, "\n")

	if len(report.Warnings) > 0 {
		fmt.Fprintf(w, "> **Warnings**\n>\n")
		for _, warning := range report.Warnings {
			fmt.Fprintf(w, "> - %s\n", warning)
		}
		fmt.Fprintf(w, "\n")
	}

	if report.Primary != nil {
		fmt.Fprintf(w, "## Minimization\n\n")
		r.writeMinimization(w, report.Primary)
	}

	if len(report.Payloads) > 0 {
		fmt.Fprintf(w, "## Payloads\n\n")
		fmt.Fprintf(w, "| Payload | Verdict | Minimal |\n")
		fmt.Fprintf(w, "|---------|---------|---------|\n")
		for _, p := range report.Payloads {
			minimal := ""
			if p.Minimization != nil && p.Minimization.Error == "" {
				minimal = "`" + EscapeMarkdown(p.Minimization.Minimal) + "`"
			}
			fmt.Fprintf(w, "| `%s` | %s | %s |\n", EscapeMarkdown(TruncateString(p.Payload, 80)), p.Verdict, minimal)
		}
		fmt.Fprintf(w, "\n")

		for i, p := range report.Payloads {
			if p.Minimization == nil {
				continue
			}
			fmt.Fprintf(w, "### %d. `%s`\n\n", i+1, EscapeMarkdown(TruncateString(p.Payload, 80)))
			r.writeMinimization(w, p.Minimization)
		}
	}

	fmt.Fprintf(w, "---\n\n")
	fmt.Fprintf(w, "_Report generated by Isolator_\n")

	return nil
}

func (r *MarkdownReporter) writeMinimization(w io.Writer, m *types.Minimization) {
	fmt.Fprintf(w, "| Property | Value |\n")
	fmt.Fprintf(w, "|----------|-------|\n")
	fmt.Fprintf(w, "| Failing Input | `%s` |\n", EscapeMarkdown(m.FailingInput))
	fmt.Fprintf(w, "| Passing Input | `%s` |\n", EscapeMarkdown(m.PassingInput))
	if m.Error != "" {
		fmt.Fprintf(w, "| Error | %s |\n", EscapeMarkdown(m.Error))
	}
	fmt.Fprintf(w, "| **Minimal Input** | **`%s`** |\n", EscapeMarkdown(m.Minimal))
	if m.PassingBoundary != m.PassingInput || len(m.Displaced) > 0 {
		fmt.Fprintf(w, "| Passing Boundary | `%s` |\n", EscapeMarkdown(m.PassingBoundary))
	}
	fmt.Fprintf(w, "| Delta | `%s` |\n", EscapeMarkdown(unitsString(m.Delta)))
	if len(m.Displaced) > 0 {
		fmt.Fprintf(w, "| Displaced | `%s` |\n", EscapeMarkdown(unitsString(m.Displaced)))
	}
	fmt.Fprintf(w, "| Rounds | %d |\n", m.Rounds)
	fmt.Fprintf(w, "| Oracle Calls | %d |\n", m.OracleCalls)
	fmt.Fprintf(w, "| Cache Hits | %d |\n", m.CacheHits)
	fmt.Fprintf(w, "| Unresolved | %d |\n", m.Unresolved)
	fmt.Fprintf(w, "\n")

	if m.Curl != "" {
		fmt.Fprintf(w, "**Replicate:**\n\n```bash\n%s\n```\n\n", m.Curl)
	}

	if len(m.Trace) > 0 {
		fmt.Fprintf(w, "<details>\n<summary>Trace (%d steps)</summary>\n\n", len(m.Trace))
		fmt.Fprintf(w, "| # | Round | Phase | Verdict | Cached | Value |\n")
		fmt.Fprintf(w, "|---|-------|-------|---------|--------|-------|\n")
		for i, s := range m.Trace {
			fmt.Fprintf(w, "| %d | %d | %s | %s | %t | `%s` |\n",
				i+1, s.Round, s.Phase, s.Verdict, s.Cached, EscapeMarkdown(TruncateString(s.Value, 80)))
		}
		fmt.Fprintf(w, "\n</details>\n\n")
	}
}
