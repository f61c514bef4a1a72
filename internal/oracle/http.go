// Package oracle provides the concrete oracles the minimization engine
// queries: an HTTP fuzz oracle and a process/diff oracle
package oracle

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/su1ph3r/isolator/internal/ddmin"
	"github.com/su1ph3r/isolator/pkg/types"
)

// RequestSpec describes where candidate payloads are sent
type RequestSpec struct {
	URL          string
	Method       string
	Parameter    string
	Location     string // query, form, header, json; empty picks one by method
	SuccessCodes types.StatusSet
}

// DefaultLocation picks the parameter location for a method: bodiless
// methods carry the payload in the query string, the rest as a form field
func DefaultLocation(method string) string {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodDelete, http.MethodHead:
		return types.LocationQuery
	default:
		return types.LocationForm
	}
}

// Classify maps a response status to a verdict: a status in the success set
// reproduces the bug
func Classify(statusCode int, success types.StatusSet) ddmin.Verdict {
	if success.Contains(statusCode) {
		return ddmin.Fail
	}
	return ddmin.Pass
}

// HTTPOracle evaluates candidates by sending them to a live target. Every
// evaluation is one independent request; transport failures are reported
// as Unresolved outcomes.
type HTTPOracle struct {
	spec     RequestSpec
	target   *url.URL
	settings types.HTTPSettings
	timeout  time.Duration
	client   *http.Client
	limiter  *AdaptiveRateLimiter
	reqLog   *RequestLogger
	logger   *zap.Logger
	requests atomic.Int64
}

// NewHTTPOracle creates an HTTP oracle. reqLog and logger may be nil.
func NewHTTPOracle(spec RequestSpec, config types.Config, reqLog *RequestLogger, logger *zap.Logger) (*HTTPOracle, error) {
	if err := types.ValidateURL(spec.URL); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	target, _ := url.Parse(spec.URL)

	if strings.TrimSpace(spec.Parameter) == "" {
		return nil, fmt.Errorf("%w: parameter name is required", types.ErrConfiguration)
	}

	spec.Method = strings.ToUpper(spec.Method)
	if spec.Method == "" {
		spec.Method = http.MethodGet
	}
	if spec.Location == "" {
		spec.Location = DefaultLocation(spec.Method)
	}
	if len(spec.SuccessCodes) == 0 {
		spec.SuccessCodes = types.StatusSet{http.StatusOK: true}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !config.Scan.VerifySSL,
		},
	}

	if config.HTTP.ProxyURL != "" {
		proxyURL, err := url.Parse(config.HTTP.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid proxy URL: %v", types.ErrConfiguration, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   config.Scan.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !config.Scan.FollowRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) >= config.Scan.MaxRedirects {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	base := config.Scan.RateLimit
	return &HTTPOracle{
		spec:     spec,
		target:   target,
		settings: config.HTTP,
		timeout:  config.Scan.Timeout,
		client:   client,
		limiter:  NewAdaptiveRateLimiter(base, base/10, base),
		reqLog:   reqLog,
		logger:   logger,
	}, nil
}

// Spec returns the effective request spec after defaults were applied
func (o *HTTPOracle) Spec() RequestSpec {
	return o.spec
}

// Requests returns the number of requests sent so far
func (o *HTTPOracle) Requests() int {
	return int(o.requests.Load())
}

// Evaluate sends the reconstructed configuration as the parameter value
func (o *HTTPOracle) Evaluate(ctx context.Context, cfg ddmin.Configuration) ddmin.Outcome {
	return o.Probe(ctx, cfg.Value())
}

// Probe sends a single payload and classifies the response
func (o *HTTPOracle) Probe(ctx context.Context, payload string) ddmin.Outcome {
	ex := &exchange{
		timestamp: time.Now(),
		parameter: o.spec.Parameter,
		location:  o.spec.Location,
		payload:   payload,
	}

	out := o.execute(ctx, ex)
	ex.verdict = out.Verdict.String()

	if err := o.reqLog.log(ex); err != nil {
		o.logger.Warn("failed to write request log", zap.Error(err))
	}

	o.logger.Debug("http oracle exchange",
		zap.String("payload", payload),
		zap.String("verdict", ex.verdict),
		zap.String("detail", out.Detail),
		zap.Duration("duration", ex.duration))

	return out
}

func (o *HTTPOracle) execute(ctx context.Context, ex *exchange) ddmin.Outcome {
	// The timeout bounds the exchange only, not the wait for a token
	if err := o.limiter.Wait(ctx); err != nil {
		ex.err = err
		if errors.Is(err, context.Canceled) {
			return ddmin.Outcome{Verdict: ddmin.Unresolved, Detail: "canceled"}
		}
		return ddmin.Outcome{Verdict: ddmin.Unresolved, Detail: "rate limiter: " + err.Error()}
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	req, captured, err := o.buildRequest(ctx, ex.payload)
	if err != nil {
		ex.err = err
		return ddmin.Outcome{Verdict: ddmin.Unresolved, Detail: "failed to build request: " + err.Error()}
	}
	ex.request = captured

	o.requests.Add(1)
	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		ex.duration = time.Since(start)
		ex.err = err
		o.limiter.RecordError(0)
		return ddmin.Outcome{Verdict: ddmin.Unresolved, Detail: describeError(err)}
	}

	httpResp, err := readResponse(resp, time.Since(start))
	ex.duration = time.Since(start)
	if err != nil {
		ex.err = err
		o.limiter.RecordError(0)
		return ddmin.Outcome{Verdict: ddmin.Unresolved, Detail: "failed to read response: " + describeError(err)}
	}
	ex.response = httpResp

	if httpResp.StatusCode == http.StatusTooManyRequests {
		o.limiter.RecordError(httpResp.StatusCode)
	} else {
		o.limiter.RecordSuccess()
	}
	o.limiter.RecordResponseHeaders(httpResp.Headers)

	return ddmin.Outcome{
		Verdict: Classify(httpResp.StatusCode, o.spec.SuccessCodes),
		Detail:  fmt.Sprintf("HTTP %d", httpResp.StatusCode),
	}
}

// BuildRequest renders the request that would carry payload, for
// reproduction commands
func (o *HTTPOracle) BuildRequest(payload string) (*types.HTTPRequest, error) {
	_, captured, err := o.buildRequest(context.Background(), payload)
	return captured, err
}

// buildRequest places payload in the configured location. It returns the
// http.Request and a copy of what was sent, for evidence capture.
func (o *HTTPOracle) buildRequest(ctx context.Context, payload string) (*http.Request, *types.HTTPRequest, error) {
	target := *o.target
	var body, contentType string

	switch o.spec.Location {
	case types.LocationQuery:
		q := target.Query()
		q.Set(o.spec.Parameter, payload)
		target.RawQuery = q.Encode()
	case types.LocationForm:
		body = url.Values{o.spec.Parameter: []string{payload}}.Encode()
		contentType = "application/x-www-form-urlencoded"
	case types.LocationJSON:
		data, err := json.Marshal(map[string]string{o.spec.Parameter: payload})
		if err != nil {
			return nil, nil, err
		}
		body = string(data)
		contentType = "application/json"
	case types.LocationHeader:
	default:
		return nil, nil, fmt.Errorf("unsupported parameter location: %s", o.spec.Location)
	}

	var req *http.Request
	var err error
	if body != "" {
		req, err = http.NewRequestWithContext(ctx, o.spec.Method, target.String(), strings.NewReader(body))
	} else {
		req, err = http.NewRequestWithContext(ctx, o.spec.Method, target.String(), nil)
	}
	if err != nil {
		return nil, nil, err
	}

	for key, value := range o.settings.Headers {
		req.Header.Set(key, value)
	}
	for name, value := range o.settings.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	if req.Header.Get("User-Agent") == "" && o.settings.UserAgent != "" {
		req.Header.Set("User-Agent", o.settings.UserAgent)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if o.spec.Location == types.LocationHeader {
		req.Header.Set(o.spec.Parameter, payload)
	}

	captured := &types.HTTPRequest{
		Method:    req.Method,
		URL:       req.URL.String(),
		Headers:   flattenHeaders(req.Header),
		Body:      body,
		Parameter: o.spec.Parameter,
		Location:  o.spec.Location,
		Payload:   payload,
	}
	return req, captured, nil
}

// describeError renders a transport error for the trace
func describeError(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout: " + err.Error()
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout: " + err.Error()
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transport error: " + err.Error()
	}
}
