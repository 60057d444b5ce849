package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds retries of transient storage failures.
type RetryPolicy struct {
	Attempts uint64
	Base     time.Duration
	Max      time.Duration
}

// DefaultRetryPolicy is used when a service is built without an explicit one.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Base: 50 * time.Millisecond, Max: 2 * time.Second}

// Retry runs fn, retrying with exponential backoff while it fails with a
// transient error. Any other error is returned immediately.
func (p RetryPolicy) Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	base := p.Base
	if base <= 0 {
		base = DefaultRetryPolicy.Base
	}
	maxDelay := p.Max
	if maxDelay <= 0 {
		maxDelay = DefaultRetryPolicy.Max
	}

	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(maxDelay, b)
	b = retry.WithMaxRetries(p.Attempts, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// IsTransient reports whether err is a storage failure worth retrying:
// a busy or locked SQLite database, or a dropped connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "database table is locked")
}

// IsUniqueViolation reports whether err comes from a UNIQUE constraint.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
