package types

import (
	"time"
)

// HTTPRequest is what the HTTP oracle sent for one candidate value
type HTTPRequest struct {
	Method    string            `json:"method" yaml:"method"`
	URL       string            `json:"url" yaml:"url"`
	Headers   map[string]string `json:"headers" yaml:"headers"`
	Body      string            `json:"body,omitempty" yaml:"body,omitempty"`
	Parameter string            `json:"parameter" yaml:"parameter"`
	Location  string            `json:"location" yaml:"location"`
	Payload   string            `json:"payload" yaml:"payload"`
}

// HTTPResponse is the evidence kept from a target's answer. Body is cut at
// the oracle's read limit and Truncated is set when that happened.
type HTTPResponse struct {
	StatusCode    int               `json:"status_code" yaml:"status_code"`
	Status        string            `json:"status" yaml:"status"`
	Headers       map[string]string `json:"headers" yaml:"headers"`
	Body          string            `json:"body" yaml:"body"`
	Truncated     bool              `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	ContentLength int64             `json:"content_length" yaml:"content_length"`
	ResponseTime  time.Duration     `json:"response_time" yaml:"response_time"`
}
