package oracle

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter controls request rate
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	enabled bool
}

// NewRateLimiter creates a new rate limiter. A non-positive rate disables it.
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	if requestsPerSecond <= 0 {
		return &RateLimiter{enabled: false}
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst(requestsPerSecond)),
		enabled: true,
	}
}

// Wait waits until a request can be made
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	enabled, limiter := r.enabled, r.limiter
	r.mu.Unlock()

	if !enabled {
		return nil
	}
	return limiter.Wait(ctx)
}

// Allow checks if a request is allowed
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	enabled, limiter := r.enabled, r.limiter
	r.mu.Unlock()

	if !enabled {
		return true
	}
	return limiter.Allow()
}

// SetRate updates the rate limit
func (r *RateLimiter) SetRate(requestsPerSecond float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if requestsPerSecond <= 0 {
		r.enabled = false
		return
	}

	r.enabled = true
	if r.limiter == nil {
		r.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst(requestsPerSecond))
	} else {
		r.limiter.SetLimit(rate.Limit(requestsPerSecond))
		r.limiter.SetBurst(burst(requestsPerSecond))
	}
}

// burst keeps sub-1 rates usable: a zero burst would block forever
func burst(requestsPerSecond float64) int {
	if requestsPerSecond < 1 {
		return 1
	}
	return int(requestsPerSecond)
}

// AdaptiveRateLimiter slows down when the target pushes back
type AdaptiveRateLimiter struct {
	mu           sync.Mutex
	limiter      *RateLimiter
	currentRate  float64
	minRate      float64
	maxRate      float64
	errorCount   int
	successCount int
	windowSize   int
	pausedUntil  time.Time
}

// maxRetryAfter caps how long a Retry-After header can pause requests
const maxRetryAfter = 60 * time.Second

// NewAdaptiveRateLimiter creates an adaptive rate limiter starting at baseRate
func NewAdaptiveRateLimiter(baseRate, minRate, maxRate float64) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		limiter:     NewRateLimiter(baseRate),
		currentRate: baseRate,
		minRate:     minRate,
		maxRate:     maxRate,
		windowSize:  50,
	}
}

// Wait waits out any Retry-After pause, then for a rate token
func (a *AdaptiveRateLimiter) Wait(ctx context.Context) error {
	a.mu.Lock()
	pause := time.Until(a.pausedUntil)
	a.mu.Unlock()

	if pause > 0 {
		timer := time.NewTimer(pause)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return a.limiter.Wait(ctx)
}

// PausedUntil returns when a Retry-After pause ends; zero if none was set
func (a *AdaptiveRateLimiter) PausedUntil() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pausedUntil
}

// RecordSuccess records a request the target answered normally
func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.maybeAdjustRate()
}

// RecordError records a transport failure or an error status
func (a *AdaptiveRateLimiter) RecordError(statusCode int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++

	if statusCode == http.StatusTooManyRequests {
		a.setRate(a.currentRate * 0.5)
		return
	}
	a.maybeAdjustRate()
}

// RecordResponseHeaders reacts to Retry-After and X-RateLimit-Remaining.
// Retry-After drops to the minimum rate and pauses requests for the delay.
func (a *AdaptiveRateLimiter) RecordResponseHeaders(headers map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, value := range headers {
		switch strings.ToLower(key) {
		case "retry-after":
			now := time.Now()
			if delay, ok := retryAfter(value, now); ok {
				a.setRate(a.minRate)
				if delay > 0 {
					a.pausedUntil = now.Add(min(delay, maxRetryAfter))
				}
				return
			}
		case "x-ratelimit-remaining":
			if remaining, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && remaining <= 2 {
				a.setRate(a.currentRate * 0.5)
				return
			}
		}
	}
}

// setRate must be called with a.mu held
func (a *AdaptiveRateLimiter) setRate(r float64) {
	if r < a.minRate {
		r = a.minRate
	}
	a.currentRate = r
	a.limiter.SetRate(r)
	a.errorCount = 0
	a.successCount = 0
}

// maybeAdjustRate must be called with a.mu held
func (a *AdaptiveRateLimiter) maybeAdjustRate() {
	total := a.errorCount + a.successCount
	if total < a.windowSize {
		return
	}

	errorRate := float64(a.errorCount) / float64(total)

	r := a.currentRate
	if errorRate > 0.2 {
		r *= 0.8
	} else if errorRate < 0.05 {
		r *= 1.2
		if r > a.maxRate {
			r = a.maxRate
		}
	}
	a.setRate(r)
}

// CurrentRate returns the current rate
func (a *AdaptiveRateLimiter) CurrentRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// retryAfter parses a Retry-After header as a delay
func retryAfter(value string, now time.Time) (time.Duration, bool) {
	if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(value); err == nil {
		return t.Sub(now), true
	}
	return 0, false
}
