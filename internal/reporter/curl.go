package reporter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/su1ph3r/isolator/pkg/types"
)

// CurlOptions provides options for curl command generation
type CurlOptions struct {
	Insecure bool   // Add -k when TLS verification is off
	ProxyURL string // Add --proxy
	MaxTime  int    // Timeout in seconds
}

// CurlOptionsFromConfig derives curl flags from the run configuration
func CurlOptionsFromConfig(config *types.Config) CurlOptions {
	return CurlOptions{
		Insecure: !config.Scan.VerifySSL,
		ProxyURL: config.HTTP.ProxyURL,
		MaxTime:  int(config.Scan.Timeout.Seconds()),
	}
}

// GenerateCurlCommand generates a curl command from an HTTP request
func GenerateCurlCommand(req *types.HTTPRequest) string {
	return GenerateCurlCommandWithOptions(req, CurlOptions{})
}

// GenerateCurlCommandWithOptions generates a curl command with additional options
func GenerateCurlCommandWithOptions(req *types.HTTPRequest, opts CurlOptions) string {
	if req == nil {
		return ""
	}

	parts := []string{"curl"}

	if opts.Insecure {
		parts = append(parts, "-k")
	}
	if opts.MaxTime > 0 {
		parts = append(parts, "--max-time", fmt.Sprintf("%d", opts.MaxTime))
	}
	if opts.ProxyURL != "" {
		parts = append(parts, "--proxy", shellEscape(opts.ProxyURL))
	}

	// Method (only add if not GET)
	if req.Method != "" && req.Method != "GET" {
		parts = append(parts, "-X", req.Method)
	}

	// Headers (sorted for consistency)
	if len(req.Headers) > 0 {
		headerNames := make([]string, 0, len(req.Headers))
		for name := range req.Headers {
			headerNames = append(headerNames, name)
		}
		sort.Strings(headerNames)

		for _, name := range headerNames {
			// Skip headers that curl handles automatically
			lowerName := strings.ToLower(name)
			if lowerName == "content-length" || lowerName == "host" {
				continue
			}
			parts = append(parts, "-H", shellEscape(fmt.Sprintf("%s: %s", name, req.Headers[name])))
		}
	}

	// --data-raw keeps a leading @ literal
	if req.Body != "" {
		parts = append(parts, "--data-raw", shellEscape(req.Body))
	}

	// URL (always last)
	parts = append(parts, shellEscape(req.URL))

	return strings.Join(parts, " ")
}

// shellEscape safely escapes a string for use in POSIX shell commands
func shellEscape(s string) string {
	if s == "" {
		return "''"
	}

	if isSafeString(s) {
		return s
	}

	// ' -> '\'' (end quote, escaped quote, start quote)
	escaped := strings.ReplaceAll(s, "'", "'\\''")
	return "'" + escaped + "'"
}

// isSafeString returns true if the string only contains safe characters
// that don't require escaping in shell commands
func isSafeString(s string) bool {
	for _, c := range s {
		if (c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') ||
			c == '.' || c == '-' || c == '_' || c == '/' || c == ':' {
			continue
		}
		return false
	}
	return true
}
