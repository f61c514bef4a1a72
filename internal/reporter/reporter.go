// Package reporter assembles isolator results into reports and renders
// them as text, JSON, Markdown or YAML
package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/su1ph3r/isolator/pkg/types"
)

// Reporter interface for generating reports
type Reporter interface {
	// Generate generates a report
	Generate(report *types.Report) ([]byte, error)

	// Write writes the report to a writer
	Write(report *types.Report, w io.Writer) error

	// Format returns the report format name
	Format() string

	// Extension returns the file extension for this format
	Extension() string
}

// Supported formats
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatYAML     = "yaml"
)

// Formats lists the accepted format names
var Formats = []string{FormatText, FormatJSON, FormatMarkdown, FormatYAML}

// NewReporter creates a reporter based on format
func NewReporter(format string, options ReportOptions) (Reporter, error) {
	switch strings.ToLower(format) {
	case "", FormatText, "txt":
		return NewTextReporter(options), nil
	case FormatJSON:
		return NewJSONReporter(options), nil
	case FormatMarkdown, "md":
		return NewMarkdownReporter(options), nil
	case FormatYAML, "yml":
		return NewYAMLReporter(options), nil
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

// ReportOptions contains options for report generation
type ReportOptions struct {
	Verbose bool   // Render the full trace in text output
	NoColor bool   // Disable ANSI colors in text output
	Title   string // Custom report title
	Version string
}

// DefaultOptions returns default report options
func DefaultOptions() ReportOptions {
	return ReportOptions{
		Title: "Isolator Report",
	}
}

// WriteToFile writes a report to a file
func WriteToFile(reporter Reporter, report *types.Report, filename string) error {
	dir := filepath.Dir(filename)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return reporter.Write(report, file)
}

// TruncateString truncates a string to max length
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// EscapeMarkdown escapes characters that break Markdown table cells and
// inline code
func EscapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "`", "'")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// unitsString renders units as a compact list, e.g. f3:"!" f4:"!"
func unitsString(units []types.ReportUnit) string {
	if len(units) == 0 {
		return "(none)"
	}
	parts := make([]string, len(units))
	for i, u := range units {
		side := "?"
		if u.Side != "" {
			side = u.Side[:1]
		}
		parts[i] = fmt.Sprintf("%s%d:%q", side, u.Index, u.Value)
	}
	return strings.Join(parts, " ")
}
