package oracle

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/su1ph3r/isolator/pkg/types"
)

// maxBodySize caps how much of a response body is read
const maxBodySize = 10 * 1024 * 1024

// readResponse reads an HTTP response into our response type
func readResponse(resp *http.Response, elapsed time.Duration) (*types.HTTPResponse, error) {
	defer resp.Body.Close()

	body, truncated, err := readBody(resp.Body, maxBodySize)
	if err != nil {
		return nil, err
	}

	return &types.HTTPResponse{
		StatusCode:    resp.StatusCode,
		Status:        resp.Status,
		Headers:       flattenHeaders(resp.Header),
		Body:          string(body),
		Truncated:     truncated,
		ContentLength: resp.ContentLength,
		ResponseTime:  elapsed,
	}, nil
}

// readBody reads at most limit bytes and reports whether more were available
func readBody(reader io.Reader, limit int64) ([]byte, bool, error) {
	body, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) > limit {
		return body[:limit], true, nil
	}
	return body, false, nil
}

func flattenHeaders(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for key, values := range h {
		headers[key] = strings.Join(values, ", ")
	}
	return headers
}

// preview truncates a body for logs and reports
func preview(body string, limit int) string {
	if len(body) <= limit {
		return body
	}
	return body[:limit] + "..."
}
