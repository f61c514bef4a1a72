package types

import (
	"time"
)

// Config represents the application configuration
type Config struct {
	// Target under test
	Target TargetSettings `yaml:"target" mapstructure:"target"`

	// Request pacing and transport behaviour
	Scan ScanSettings `yaml:"scan" mapstructure:"scan"`

	// HTTP settings
	HTTP HTTPSettings `yaml:"http" mapstructure:"http"`

	// Delta-debugging search settings
	Minimize MinimizeSettings `yaml:"minimize" mapstructure:"minimize"`

	// Output settings
	Output OutputSettings `yaml:"output" mapstructure:"output"`

	// Logging settings
	Log LogSettings `yaml:"log" mapstructure:"log"`
}

// TargetSettings describes the endpoint and parameter the oracle drives
type TargetSettings struct {
	URL                string `yaml:"url" mapstructure:"url"`
	Parameter          string `yaml:"parameter" mapstructure:"parameter"`
	Method             string `yaml:"method" mapstructure:"method"`
	Location           string `yaml:"location" mapstructure:"location"`                         // query, form, header, json; empty = by method
	SuccessStatusCodes string `yaml:"success_status_codes" mapstructure:"success_status_codes"` // comma-separated
	OpenAPI            string `yaml:"openapi" mapstructure:"openapi"`                           // spec used to resolve Location
}

// ScanSettings holds request pacing configuration
type ScanSettings struct {
	RateLimit       float64       `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries      int           `yaml:"max_retries" mapstructure:"max_retries"` // extra attempts on UNRESOLVED
	RetryDelay      time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	FollowRedirects bool          `yaml:"follow_redirects" mapstructure:"follow_redirects"`
	MaxRedirects    int           `yaml:"max_redirects" mapstructure:"max_redirects"`
	VerifySSL       bool          `yaml:"verify_ssl" mapstructure:"verify_ssl"`
}

// HTTPSettings holds HTTP client configuration
type HTTPSettings struct {
	ProxyURL  string            `yaml:"proxy_url" mapstructure:"proxy_url"`
	Headers   map[string]string `yaml:"headers" mapstructure:"headers"`
	UserAgent string            `yaml:"user_agent" mapstructure:"user_agent"`
	Cookies   map[string]string `yaml:"cookies" mapstructure:"cookies"`
}

// MinimizeSettings holds search configuration
type MinimizeSettings struct {
	Mode           string `yaml:"mode" mapstructure:"mode"`               // minimize, isolate
	Granularity    string `yaml:"granularity" mapstructure:"granularity"` // char, token, line, field
	Parallelism    int    `yaml:"parallelism" mapstructure:"parallelism"`
	MaxInputLength int    `yaml:"max_input_length" mapstructure:"max_input_length"` // 0 disables the check
}

// OutputSettings holds output configuration
type OutputSettings struct {
	Format  string `yaml:"format" mapstructure:"format"` // text, json, markdown, yaml
	File    string `yaml:"file" mapstructure:"file"`
	Verbose bool   `yaml:"verbose" mapstructure:"verbose"`
	Color   bool   `yaml:"color" mapstructure:"color"`
}

// LogSettings holds structured logging configuration
type LogSettings struct {
	Level      string `yaml:"level" mapstructure:"level"` // debug, info, warn, error
	File       string `yaml:"file" mapstructure:"file"`
	RequestLog string `yaml:"request_log" mapstructure:"request_log"` // JSON log of oracle exchanges
}

// Parameter locations
const (
	LocationQuery  = "query"
	LocationForm   = "form"
	LocationHeader = "header"
	LocationJSON   = "json"
)

// Search modes
const (
	ModeMinimize = "minimize"
	ModeIsolate  = "isolate"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Target: TargetSettings{
			Method:             "GET",
			SuccessStatusCodes: "200",
		},
		Scan: ScanSettings{
			RateLimit:       10.0,
			Timeout:         10 * time.Second,
			MaxRetries:      0,
			RetryDelay:      500 * time.Millisecond,
			FollowRedirects: true,
			MaxRedirects:    5,
			VerifySSL:       true,
		},
		HTTP: HTTPSettings{
			UserAgent: "Isolator/1.0",
			Headers:   make(map[string]string),
			Cookies:   make(map[string]string),
		},
		Minimize: MinimizeSettings{
			Mode:           ModeMinimize,
			Granularity:    "char",
			Parallelism:    1,
			MaxInputLength: 1000,
		},
		Output: OutputSettings{
			Format: "text",
			Color:  true,
		},
		Log: LogSettings{
			Level: "warn",
		},
	}
}
