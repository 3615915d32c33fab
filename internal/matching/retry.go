package matching

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	txAttempts   = 3
	txRetryDelay = 20 * time.Millisecond
)

// MySQL error numbers for a transaction InnoDB rolled back on its own.
const (
	errLockDeadlock = 1213
	errLockWaitTime = 1205
)

// withRetry reruns fn while it fails with a retryable lock error.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		if err = fn(); err == nil || !IsRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * txRetryDelay):
		}
	}
	return err
}

// IsRetryable reports whether err is a deadlock or lock wait timeout
// after which the whole transaction can run again.
func IsRetryable(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	return myErr.Number == errLockDeadlock || myErr.Number == errLockWaitTime
}
