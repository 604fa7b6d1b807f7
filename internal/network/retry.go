// Package network provides the retry-with-backoff helper used by the
// download workers.
package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const defNumAttempts = 3

// maxAllowedWaitTime caps the backoff delay for a transient error.
var maxAllowedWaitTime = 5 * time.Minute

// waitFn exists as a variable to keep the retry tests fast.
var waitFn = cubicWait

// ErrRetryFailed is returned when the callback could not complete within the
// allowed number of attempts.
var ErrRetryFailed = errors.New("callback was unable to complete without errors within the allowed number of retries")

// StatusError is returned by fetchers for a non-2xx response, so WithRetry
// can tell transient server trouble from a permanent failure.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("invalid server status code: %d (%s)", e.Code, e.Status)
}

// WithRetry runs fn up to maxAttempts times, waiting on the limiter before
// each attempt.  Recoverable status codes (5xx except 501, 408, 429) back
// off and retry; anything else fails immediately.
func WithRetry(ctx context.Context, lim *rate.Limiter, maxAttempts int, fn func() error) error {
	if maxAttempts == 0 {
		maxAttempts = defNumAttempts
	}
	var ok bool
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}

		cbErr := fn()
		if cbErr == nil {
			ok = true
			break
		}

		var se *StatusError
		if errors.As(cbErr, &se) && isRecoverable(se.Code) {
			delay := waitFn(attempt)
			select {
			case <-ctx.Done():
				return context.Cause(ctx)
			case <-time.After(delay):
			}
			continue
		}
		return fmt.Errorf("callback error: %w", cbErr)
	}
	if !ok {
		return ErrRetryFailed
	}
	return nil
}

// isRecoverable returns true if the status code is worth another attempt.
func isRecoverable(statusCode int) bool {
	return (statusCode >= http.StatusInternalServerError && statusCode <= 599 && statusCode != 501) ||
		statusCode == http.StatusRequestTimeout ||
		statusCode == http.StatusTooManyRequests
}

// cubicWait returns (x+2)^3 seconds where x is the attempt number, capped at
// maxAllowedWaitTime.
func cubicWait(attempt int) time.Duration {
	x := attempt + 2
	delay := time.Duration(x*x*x) * time.Second
	if delay > maxAllowedWaitTime {
		return maxAllowedWaitTime
	}
	return delay
}
