package network

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func fastWait(t *testing.T) {
	t.Helper()
	old := waitFn
	waitFn = func(int) time.Duration { return time.Millisecond }
	t.Cleanup(func() { waitFn = old })
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	lim := rate.NewLimiter(rate.Inf, 1)

	t.Run("success first try", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, lim, 3, func() error {
			calls++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
	})
	t.Run("recoverable status retried", func(t *testing.T) {
		fastWait(t)
		calls := 0
		err := WithRetry(ctx, lim, 3, func() error {
			calls++
			if calls < 3 {
				return &StatusError{Code: 503, Status: "Service Unavailable"}
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})
	t.Run("permanent error fails immediately", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, lim, 3, func() error {
			calls++
			return errors.New("no such host")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
	t.Run("404 is not recoverable", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, lim, 3, func() error {
			calls++
			return &StatusError{Code: 404, Status: "Not Found"}
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
	t.Run("attempts exhausted", func(t *testing.T) {
		fastWait(t)
		err := WithRetry(ctx, lim, 2, func() error {
			return &StatusError{Code: 500, Status: "Internal Server Error"}
		})
		assert.ErrorIs(t, err, ErrRetryFailed)
	})
}

func Test_isRecoverable(t *testing.T) {
	assert.True(t, isRecoverable(500))
	assert.True(t, isRecoverable(599))
	assert.True(t, isRecoverable(408))
	assert.True(t, isRecoverable(429))
	assert.False(t, isRecoverable(501))
	assert.False(t, isRecoverable(403))
	assert.False(t, isRecoverable(200))
}
