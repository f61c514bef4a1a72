package reporter

import (
	"encoding/json"
	"io"

	"github.com/su1ph3r/isolator/pkg/types"
)

// JSONReporter generates JSON reports
type JSONReporter struct {
	options ReportOptions
}

// NewJSONReporter creates a new JSON reporter
func NewJSONReporter(options ReportOptions) *JSONReporter {
	return &JSONReporter{options: options}
}

// Format returns the format name
func (r *JSONReporter) Format() string {
	return FormatJSON
}

// Extension returns the file extension
func (r *JSONReporter) Extension() string {
	return "json"
}

// Generate generates a JSON report
func (r *JSONReporter) Generate(report *types.Report) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Write writes the JSON report to a writer
func (r *JSONReporter) Write(report *types.Report, w io.Writer) error {
	data, err := r.Generate(report)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
