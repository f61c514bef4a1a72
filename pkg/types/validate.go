// Package types provides core data structures for Isolator
package types

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrConfiguration is matched by every configuration problem detected before
// the first oracle call
var ErrConfiguration = errors.New("configuration error")

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap allows errors.Is(err, ErrConfiguration)
func (e *ValidationError) Unwrap() error {
	return ErrConfiguration
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
	}
	return sb.String()
}

// Unwrap allows errors.Is(err, ErrConfiguration)
func (e ValidationErrors) Unwrap() error {
	if len(e) == 0 {
		return nil
	}
	return ErrConfiguration
}

// HasErrors returns true if there are any validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// StatusSet is a set of HTTP status codes
type StatusSet map[int]bool

// Contains reports whether code is in the set
func (s StatusSet) Contains(code int) bool {
	return s[code]
}

// Codes returns the sorted codes
func (s StatusSet) Codes() []int {
	codes := make([]int, 0, len(s))
	for c := range s {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	return codes
}

// String renders the set the way it is written on the command line
func (s StatusSet) String() string {
	parts := make([]string, 0, len(s))
	for _, c := range s.Codes() {
		parts = append(parts, strconv.Itoa(c))
	}
	return strings.Join(parts, ",")
}

// ParseStatusCodes parses a comma-separated list such as "200, 500".
// An empty list yields {200}.
func ParseStatusCodes(raw string) (StatusSet, error) {
	set := make(StatusSet)
	if strings.TrimSpace(raw) == "" {
		set[200] = true
		return set, nil
	}

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("%w: empty entry in status code list %q", ErrConfiguration, raw)
		}
		code, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid status code %q", ErrConfiguration, part)
		}
		if code < 100 || code > 599 {
			return nil, fmt.Errorf("%w: status code %d out of range 100-599", ErrConfiguration, code)
		}
		set[code] = true
	}
	return set, nil
}

var (
	validMethods      = map[string]bool{"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true}
	validLocations    = map[string]bool{"": true, LocationQuery: true, LocationForm: true, LocationHeader: true, LocationJSON: true}
	validModes        = map[string]bool{ModeMinimize: true, ModeIsolate: true}
	validGranularity  = map[string]bool{"char": true, "token": true, "line": true, "field": true}
	validOutputFormat = map[string]bool{"text": true, "json": true, "markdown": true, "yaml": true}
	validLogLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// ConfigValidator validates configuration settings
type ConfigValidator struct {
	errors ValidationErrors
}

// NewConfigValidator creates a new config validator
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// Validate performs validation of the whole config. requireTarget is false
// for commands that never talk HTTP.
func (v *ConfigValidator) Validate(config *Config, requireTarget bool) ValidationErrors {
	v.errors = nil

	if requireTarget {
		v.validateTargetSettings(config.Target)
	}
	v.validateScanSettings(config.Scan)
	v.validateHTTPSettings(config.HTTP)
	v.validateMinimizeSettings(config.Minimize)
	v.validateOutputSettings(config.Output)
	v.validateLogSettings(config.Log)

	return v.errors
}

// ValidateInputs checks the boundary inputs against the configured length cap
func (v *ConfigValidator) ValidateInputs(failing, passing string, maxLength int) ValidationErrors {
	v.errors = nil

	if failing == "" {
		v.addError("bug_triggering_input", "is required", failing)
	}
	if maxLength > 0 {
		if len(failing) > maxLength {
			v.addError("bug_triggering_input", fmt.Sprintf("exceeds maximum length of %d", maxLength), len(failing))
		}
		if len(passing) > maxLength {
			v.addError("non_triggering_input", fmt.Sprintf("exceeds maximum length of %d", maxLength), len(passing))
		}
	}

	return v.errors
}

// ValidatePayload checks a payload from a payloads file before it is minimized
func (v *ConfigValidator) ValidatePayload(payload string, maxLength int) ValidationErrors {
	v.errors = nil

	if maxLength > 0 && len(payload) > maxLength {
		v.addError("payload", fmt.Sprintf("exceeds maximum length of %d", maxLength), len(payload))
	}

	return v.errors
}

func (v *ConfigValidator) addError(field, message string, value interface{}) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	})
}

func (v *ConfigValidator) validateTargetSettings(t TargetSettings) {
	if err := ValidateURL(t.URL); err != nil {
		v.addError("target.url", err.Error(), t.URL)
	}

	if strings.TrimSpace(t.Parameter) == "" {
		v.addError("target.parameter", "is required", t.Parameter)
	}

	if !validMethods[strings.ToUpper(t.Method)] {
		v.addError("target.method", "must be one of GET, POST, PUT, PATCH, DELETE", t.Method)
	}

	if !validLocations[t.Location] {
		v.addError("target.location", "must be one of query, form, header, json", t.Location)
	}

	if _, err := ParseStatusCodes(t.SuccessStatusCodes); err != nil {
		v.addError("target.success_status_codes", strings.TrimPrefix(err.Error(), ErrConfiguration.Error()+": "), t.SuccessStatusCodes)
	}

	if t.OpenAPI != "" {
		if err := ValidateInputFile(t.OpenAPI); err != nil {
			v.addError("target.openapi", err.Error(), t.OpenAPI)
		}
	}
}

func (v *ConfigValidator) validateScanSettings(s ScanSettings) {
	if s.RateLimit < 0 {
		v.addError("scan.rate_limit", "cannot be negative", s.RateLimit)
	}
	if s.RateLimit > 1000 {
		v.addError("scan.rate_limit", "extremely high rate limits may cause issues", s.RateLimit)
	}

	if s.Timeout <= 0 {
		v.addError("scan.timeout", "must be positive", s.Timeout)
	}
	if s.Timeout > 5*time.Minute {
		v.addError("scan.timeout", "timeout exceeds 5 minutes which may cause issues", s.Timeout)
	}

	if s.MaxRetries < 0 {
		v.addError("scan.max_retries", "cannot be negative", s.MaxRetries)
	}
	if s.MaxRetries > 10 {
		v.addError("scan.max_retries", "excessive retries may slow down the search", s.MaxRetries)
	}

	if s.RetryDelay < 0 {
		v.addError("scan.retry_delay", "cannot be negative", s.RetryDelay)
	}

	if s.MaxRedirects < 0 {
		v.addError("scan.max_redirects", "cannot be negative", s.MaxRedirects)
	}
}

func (v *ConfigValidator) validateHTTPSettings(h HTTPSettings) {
	if h.ProxyURL != "" {
		if _, err := url.Parse(h.ProxyURL); err != nil {
			v.addError("http.proxy_url", "invalid URL format", h.ProxyURL)
		}
	}

	if h.UserAgent == "" {
		v.addError("http.user_agent", "should not be empty", h.UserAgent)
	}
}

func (v *ConfigValidator) validateMinimizeSettings(m MinimizeSettings) {
	if !validModes[m.Mode] {
		v.addError("minimize.mode", "must be minimize or isolate", m.Mode)
	}
	if !validGranularity[m.Granularity] {
		v.addError("minimize.granularity", "must be one of char, token, line, field", m.Granularity)
	}
	if m.Parallelism < 1 {
		v.addError("minimize.parallelism", "must be at least 1", m.Parallelism)
	}
	if m.Parallelism > 64 {
		v.addError("minimize.parallelism", "should not exceed 64 to avoid overwhelming targets", m.Parallelism)
	}
	if m.MaxInputLength < 0 {
		v.addError("minimize.max_input_length", "cannot be negative", m.MaxInputLength)
	}
}

func (v *ConfigValidator) validateOutputSettings(o OutputSettings) {
	if o.Format != "" && !validOutputFormat[o.Format] {
		v.addError("output.format", "unknown format", o.Format)
	}
}

func (v *ConfigValidator) validateLogSettings(l LogSettings) {
	if l.Level != "" && !validLogLevels[l.Level] {
		v.addError("log.level", "unknown level", l.Level)
	}
}

// ValidateConfig is a convenience function to validate a config
func ValidateConfig(config *Config, requireTarget bool) error {
	validator := NewConfigValidator()
	errors := validator.Validate(config, requireTarget)
	if errors.HasErrors() {
		return errors
	}
	return nil
}

// ValidateInputFile validates an input file exists and is readable
func ValidateInputFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", path)
	}
	if err != nil {
		return fmt.Errorf("cannot access input file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input path is a directory, not a file: %s", path)
	}
	return nil
}

// ValidateURL validates a URL string
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme == "" {
		return fmt.Errorf("URL must have a scheme (http or https)")
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	return nil
}
