package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/su1ph3r/isolator/internal/ddmin"
	"github.com/su1ph3r/isolator/pkg/types"
)

func bangOracle() ddmin.Oracle {
	return ddmin.ValueOracle(func(v string) ddmin.Verdict {
		if strings.Contains(v, "!!!") {
			return ddmin.Fail
		}
		return ddmin.Pass
	})
}

func sampleReport(t *testing.T) *types.Report {
	t.Helper()

	engine := ddmin.NewEngine(bangOracle(), ddmin.CharDecomposer{}, ddmin.Options{}, nil)
	res, err := engine.Minimize(context.Background(), "bad!!!value", "value")
	if err != nil {
		t.Fatalf("Minimize failed: %v", err)
	}

	report := NewReport(ddmin.ModeMinimize, ddmin.GranularityChar)
	report.Target = &types.ReportTarget{
		URL:                "http://localhost:8080/search",
		Method:             "GET",
		Parameter:          "q",
		Location:           types.LocationQuery,
		SuccessStatusCodes: "200",
	}
	report.Primary = NewMinimization(res, "bad!!!value", "value", nil)
	report.Primary.Curl = GenerateCurlCommand(&types.HTTPRequest{
		Method: "GET",
		URL:    "http://localhost:8080/search?q=%21%21%21",
	})
	report.Payloads = []types.PayloadResult{
		{Payload: "x!!!", Verdict: "FAIL", Detail: "HTTP 500"},
		{Payload: "plain", Verdict: "PASS", Detail: "HTTP 200"},
	}
	Finalize(report)
	return report
}

// --- Assembler tests ---

func TestNewReport(t *testing.T) {
	a := NewReport(ddmin.ModeMinimize, ddmin.GranularityChar)
	b := NewReport(ddmin.ModeIsolate, ddmin.GranularityToken)

	if a.RunID == "" || a.RunID == b.RunID {
		t.Fatalf("expected unique run IDs, got %q and %q", a.RunID, b.RunID)
	}
	if a.StartTime.IsZero() {
		t.Fatal("expected start time to be set")
	}
}

func TestNewMinimization(t *testing.T) {
	report := sampleReport(t)
	m := report.Primary

	if m.Minimal != "!!!" {
		t.Fatalf("expected minimal '!!!', got %q", m.Minimal)
	}
	if len(m.Delta) != 3 || m.Delta[0].Side != "failing" || m.Delta[0].Index != 3 {
		t.Fatalf("expected delta f3..f5, got %+v", m.Delta)
	}
	if len(m.Trace) != m.OracleCalls+m.CacheHits {
		t.Errorf("expected %d trace steps, got %d", m.OracleCalls+m.CacheHits, len(m.Trace))
	}
	if m.Trace[0].Phase != ddmin.PhaseBaseline {
		t.Errorf("expected trace to start with baseline, got %s", m.Trace[0].Phase)
	}
	for _, s := range m.Trace {
		if s.Verdict != "PASS" && s.Verdict != "FAIL" {
			t.Errorf("unexpected verdict %q", s.Verdict)
		}
	}
}

func TestNewMinimization_Error(t *testing.T) {
	m := NewMinimization(nil, "a", "b", errors.New("boom"))
	if m.Error != "boom" {
		t.Fatalf("expected error 'boom', got %q", m.Error)
	}
	if m.Trace != nil {
		t.Errorf("expected no trace without a result")
	}
}

func TestFinalize(t *testing.T) {
	report := NewReport(ddmin.ModeMinimize, ddmin.GranularityChar)
	report.Primary = &types.Minimization{OracleCalls: 10, CacheHits: 2, Unresolved: 3}
	report.Payloads = []types.PayloadResult{
		{Payload: "p1", Verdict: "UNRESOLVED", Detail: "timeout: context deadline exceeded"},
		{Payload: "p2", Verdict: "FAIL", Minimization: &types.Minimization{OracleCalls: 5}},
	}

	Finalize(report)

	if report.Summary.Searches != 2 {
		t.Errorf("expected 2 searches, got %d", report.Summary.Searches)
	}
	if report.Summary.OracleCalls != 15 {
		t.Errorf("expected 15 oracle calls, got %d", report.Summary.OracleCalls)
	}
	if report.Summary.PayloadsConfirmed != 1 {
		t.Errorf("expected 1 confirmed payload, got %d", report.Summary.PayloadsConfirmed)
	}
	if len(report.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %d: %v", len(report.Warnings), report.Warnings)
	}
	if !strings.Contains(report.Warnings[0], "3 oracle calls were UNRESOLVED") {
		t.Errorf("unexpected warning %q", report.Warnings[0])
	}
	if report.EndTime.Before(report.StartTime) {
		t.Error("expected end time after start time")
	}
}

// --- Reporter tests ---

func TestNewReporter(t *testing.T) {
	tests := map[string]string{
		"":         FormatText,
		"text":     FormatText,
		"JSON":     FormatJSON,
		"md":       FormatMarkdown,
		"markdown": FormatMarkdown,
		"yml":      FormatYAML,
	}
	for in, expected := range tests {
		r, err := NewReporter(in, DefaultOptions())
		if err != nil {
			t.Fatalf("NewReporter(%q) failed: %v", in, err)
		}
		if r.Format() != expected {
			t.Errorf("NewReporter(%q).Format() = %s, expected %s", in, r.Format(), expected)
		}
	}

	if _, err := NewReporter("sarif", DefaultOptions()); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestJSONReporter(t *testing.T) {
	report := sampleReport(t)

	data, err := NewJSONReporter(DefaultOptions()).Generate(report)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["run_id"] != report.RunID {
		t.Errorf("expected run_id %s, got %v", report.RunID, decoded["run_id"])
	}
	m, ok := decoded["minimization"].(map[string]any)
	if !ok {
		t.Fatal("expected minimization object")
	}
	if m["minimal"] != "!!!" {
		t.Errorf("expected minimal '!!!', got %v", m["minimal"])
	}
	if trace, ok := m["trace"].([]any); !ok || len(trace) == 0 {
		t.Error("expected a non-empty trace")
	}
}

func TestYAMLReporter(t *testing.T) {
	report := sampleReport(t)

	data, err := NewYAMLReporter(DefaultOptions()).Generate(report)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var decoded struct {
		RunID        string `yaml:"run_id"`
		Minimization struct {
			Minimal string `yaml:"minimal"`
			Trace   []struct {
				Verdict string `yaml:"verdict"`
			} `yaml:"trace"`
		} `yaml:"minimization"`
		Payloads []struct {
			Payload string `yaml:"payload"`
		} `yaml:"payloads"`
	}
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if decoded.RunID != report.RunID {
		t.Errorf("expected run_id %s, got %s", report.RunID, decoded.RunID)
	}
	if decoded.Minimization.Minimal != "!!!" {
		t.Errorf("expected minimal '!!!', got %q", decoded.Minimization.Minimal)
	}
	if len(decoded.Minimization.Trace) != len(report.Primary.Trace) {
		t.Errorf("expected %d trace steps, got %d", len(report.Primary.Trace), len(decoded.Minimization.Trace))
	}
	if len(decoded.Payloads) != 2 {
		t.Errorf("expected 2 payloads, got %d", len(decoded.Payloads))
	}
}

func TestTextReporter(t *testing.T) {
	report := sampleReport(t)

	var buf bytes.Buffer
	r := NewTextReporter(ReportOptions{NoColor: true, Verbose: true})
	if err := r.Write(report, &buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Run " + report.RunID,
		"GET http://localhost:8080/search",
		`Minimal input:    "!!!"`,
		`f3:"!" f4:"!" f5:"!"`,
		"Replicate:        curl 'http://localhost:8080/search?q=%21%21%21'",
		"ROUND",
		`[FAIL] "x!!!"`,
		"Payloads: 2 tested, 1 confirmed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("expected no ANSI codes with NoColor")
	}
}

func TestTextReporter_Warnings(t *testing.T) {
	report := NewReport(ddmin.ModeMinimize, ddmin.GranularityChar)
	report.Primary = &types.Minimization{FailingInput: "a", PassingInput: "b", Unresolved: 1, Error: "invalid baseline"}
	Finalize(report)

	out, err := NewTextReporter(ReportOptions{NoColor: true}).Generate(report)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.Contains(string(out), "[!] 1 oracle calls were UNRESOLVED") {
		t.Errorf("expected UNRESOLVED warning, got:\n%s", out)
	}
	if !strings.Contains(string(out), "Error:            invalid baseline") {
		t.Errorf("expected error line, got:\n%s", out)
	}
}

func TestMarkdownReporter(t *testing.T) {
	report := sampleReport(t)

	out, err := NewMarkdownReporter(ReportOptions{}).Generate(report)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	md := string(out)

	for _, want := range []string{
		"# Isolator Report",
		"| **Minimal Input** | **`!!!`** |",
		"<summary>Trace (",
		"## Payloads",
		"```bash\ncurl",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected markdown to contain %q", want)
		}
	}
}

func TestWriteToFile(t *testing.T) {
	report := sampleReport(t)
	path := filepath.Join(t.TempDir(), "nested", "report.json")

	if err := WriteToFile(NewJSONReporter(DefaultOptions()), report, path); err != nil {
		t.Fatalf("WriteToFile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	if !json.Valid(data) {
		t.Fatal("expected valid JSON in file")
	}
}

// --- Curl tests ---

func TestGenerateCurlCommand(t *testing.T) {
	tests := []struct {
		name     string
		req      *types.HTTPRequest
		opts     CurlOptions
		expected string
	}{
		{
			name:     "nil request",
			req:      nil,
			expected: "",
		},
		{
			name:     "simple GET",
			req:      &types.HTTPRequest{Method: "GET", URL: "http://example.com/a"},
			expected: "curl http://example.com/a",
		},
		{
			name: "form POST",
			req: &types.HTTPRequest{
				Method:  "POST",
				URL:     "http://example.com/login",
				Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded", "Host": "example.com"},
				Body:    "user=a%27b",
			},
			expected: "curl -X POST -H 'Content-Type: application/x-www-form-urlencoded' --data-raw 'user=a%27b' http://example.com/login",
		},
		{
			name:     "quote in url",
			req:      &types.HTTPRequest{Method: "GET", URL: "http://example.com/?q=it's"},
			expected: `curl 'http://example.com/?q=it'\''s'`,
		},
		{
			name:     "options",
			req:      &types.HTTPRequest{Method: "GET", URL: "https://example.com/"},
			opts:     CurlOptions{Insecure: true, MaxTime: 10, ProxyURL: "http://127.0.0.1:8080"},
			expected: "curl -k --max-time 10 --proxy http://127.0.0.1:8080 https://example.com/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateCurlCommandWithOptions(tt.req, tt.opts)
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCurlOptionsFromConfig(t *testing.T) {
	config := types.DefaultConfig()
	config.Scan.VerifySSL = false
	config.HTTP.ProxyURL = "http://proxy:3128"

	opts := CurlOptionsFromConfig(config)
	if !opts.Insecure || opts.ProxyURL != "http://proxy:3128" || opts.MaxTime != 10 {
		t.Errorf("unexpected options: %+v", opts)
	}
}
