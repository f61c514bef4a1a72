// Package parser resolves where a fuzzed parameter lives from an API
// description
package parser

import (
	"errors"
	"strings"
)

// Errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrFileNotFound      = errors.New("file not found")
	ErrParseFailed       = errors.New("failed to parse input")
	ErrEndpointNotFound  = errors.New("endpoint not found")
	ErrParameterNotFound = errors.New("parameter not found")
	ErrUnsupportedFormat = errors.New("unsupported parameter location")
)

// NormalizeMethod normalizes HTTP method to uppercase
func NormalizeMethod(method string) string {
	return strings.ToUpper(strings.TrimSpace(method))
}

// NormalizePath normalizes a URL path
func NormalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimSuffix(path, "/")
}

// MatchPath reports whether a concrete request path matches an OpenAPI path
// template such as /users/{id}
func MatchPath(template, path string) bool {
	tSegs := strings.Split(NormalizePath(template), "/")
	pSegs := strings.Split(NormalizePath(path), "/")
	if len(tSegs) != len(pSegs) {
		return false
	}
	for i, seg := range tSegs {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if pSegs[i] == "" {
				return false
			}
			continue
		}
		if seg != pSegs[i] {
			return false
		}
	}
	return true
}
