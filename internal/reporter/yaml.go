package reporter

import (
	"bytes"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/su1ph3r/isolator/pkg/types"
)

// YAMLReporter generates YAML reports
type YAMLReporter struct {
	options ReportOptions
}

// NewYAMLReporter creates a new YAML reporter
func NewYAMLReporter(options ReportOptions) *YAMLReporter {
	return &YAMLReporter{options: options}
}

// Format returns the format name
func (r *YAMLReporter) Format() string {
	return FormatYAML
}

// Extension returns the file extension
func (r *YAMLReporter) Extension() string {
	return "yaml"
}

// Generate generates a YAML report
func (r *YAMLReporter) Generate(report *types.Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Write(report, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write writes the YAML report to a writer
func (r *YAMLReporter) Write(report *types.Report, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}
