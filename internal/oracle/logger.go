package oracle

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/su1ph3r/isolator/pkg/types"
)

// RequestLogger logs oracle exchanges to a file as a JSON array
type RequestLogger struct {
	mu      sync.Mutex
	file    *os.File
	count   int
	enabled bool
}

// LogEntry represents one logged oracle exchange
type LogEntry struct {
	Timestamp  time.Time       `json:"timestamp"`
	RequestNum int             `json:"request_num"`
	Parameter  string          `json:"parameter,omitempty"`
	Location   string          `json:"location,omitempty"`
	Payload    string          `json:"payload"`
	Verdict    string          `json:"verdict"`
	Request    *LoggedRequest  `json:"request,omitempty"`
	Response   *LoggedResponse `json:"response,omitempty"`
	Duration   string          `json:"duration"`
	Error      string          `json:"error,omitempty"`
}

// LoggedRequest contains request details for logging
type LoggedRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// LoggedResponse contains response details for logging
type LoggedResponse struct {
	StatusCode    int               `json:"status_code"`
	Status        string            `json:"status"`
	Headers       map[string]string `json:"headers,omitempty"`
	ContentLength int64             `json:"content_length"`
	ResponseTime  string            `json:"response_time"`
	BodyPreview   string            `json:"body_preview,omitempty"`
	Truncated     bool              `json:"truncated,omitempty"`
}

// exchange is everything the oracle knows about one request
type exchange struct {
	timestamp time.Time
	parameter string
	location  string
	payload   string
	verdict   string
	request   *types.HTTPRequest
	response  *types.HTTPResponse
	duration  time.Duration
	err       error
}

// NewRequestLogger creates a new request logger. An empty path returns a
// disabled logger.
func NewRequestLogger(filePath string) (*RequestLogger, error) {
	if filePath == "" {
		return &RequestLogger{enabled: false}, nil
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create request log: %w", err)
	}

	if _, err := file.WriteString("[\n"); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write request log: %w", err)
	}

	return &RequestLogger{
		file:    file,
		enabled: true,
	}, nil
}

// log writes one exchange to the log file
func (l *RequestLogger) log(ex *exchange) error {
	if l == nil || !l.enabled || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++

	entry := LogEntry{
		Timestamp:  ex.timestamp,
		RequestNum: l.count,
		Parameter:  ex.parameter,
		Location:   ex.location,
		Payload:    ex.payload,
		Verdict:    ex.verdict,
		Duration:   ex.duration.String(),
	}

	if ex.request != nil {
		entry.Request = &LoggedRequest{
			Method:  ex.request.Method,
			URL:     ex.request.URL,
			Headers: ex.request.Headers,
			Body:    ex.request.Body,
		}
	}

	if resp := ex.response; resp != nil {
		entry.Response = &LoggedResponse{
			StatusCode:    resp.StatusCode,
			Status:        resp.Status,
			Headers:       resp.Headers,
			ContentLength: resp.ContentLength,
			ResponseTime:  resp.ResponseTime.String(),
			BodyPreview:   preview(resp.Body, 500),
			Truncated:     resp.Truncated,
		}
	}

	if ex.err != nil {
		entry.Error = ex.err.Error()
	}

	if l.count > 1 {
		if _, err := l.file.WriteString(",\n"); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(entry, "  ", "  ")
	if err != nil {
		return err
	}

	_, err = l.file.Write(append([]byte("  "), data...))
	return err
}

// Close writes the closing bracket and closes the log file
func (l *RequestLogger) Close() error {
	if l == nil || !l.enabled || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.WriteString("\n]\n"); err != nil {
		l.file.Close()
		return err
	}

	return l.file.Close()
}

// Count returns the number of logged entries
func (l *RequestLogger) Count() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}
