// Package retry runs outbound calls with a per-attempt timeout and
// bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Policy bounds one retried call
type Policy struct {
	MaxTries        uint
	MaxElapsed      time.Duration
	AttemptTimeout  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy returns the policy used for external calls when none is
// configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxTries:        5,
		MaxElapsed:      2 * time.Minute,
		AttemptTimeout:  10 * time.Second,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxTries == 0 {
		p.MaxTries = d.MaxTries
	}
	if p.MaxElapsed <= 0 {
		p.MaxElapsed = d.MaxElapsed
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = d.AttemptTimeout
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	return p
}

// Do calls op until it succeeds, returns a permanent error, or the
// policy runs out. Each attempt gets its own context deadline.
func Do[T any](ctx context.Context, p Policy, logger *zap.Logger, name string, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval

	attempt := 0
	operation := func() (T, error) {
		attempt++
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, backoff.Permanent(err)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
		defer cancel()
		return op(attemptCtx)
	}

	notify := func(err error, wait time.Duration) {
		if logger == nil {
			return
		}
		logger.Warn("Retrying external call",
			zap.String("call", name),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.MaxTries),
		backoff.WithMaxElapsedTime(p.MaxElapsed),
		backoff.WithNotify(notify),
	)
	if err != nil {
		return result, fmt.Errorf("%s failed after %d attempt(s): %w", name, attempt, err)
	}
	return result, nil
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// ForStatus wraps a non-2xx status as an error. Client errors other
// than timeouts and rate limits are permanent.
func ForStatus(statusCode int, body string) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	err := &StatusError{StatusCode: statusCode, Body: truncate(body, 512)}
	if IsClientError(statusCode) {
		return backoff.Permanent(err)
	}
	return err
}

// IsClientError reports whether statusCode means the request itself
// was wrong, so sending it again cannot help.
func IsClientError(statusCode int) bool {
	if statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests {
		return false
	}
	return statusCode >= 400 && statusCode < 500
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, statusCode int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == statusCode
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
