package store

import (
	"log/slog"
	"strings"
	"time"
)

// isBusyError checks for SQLite concurrency errors (SQLITE_BUSY or
// "database is locked") that warrant a retry.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withBusyRetry runs op, retrying with exponential backoff when the
// database is locked by a concurrent writer. Transactions that touch
// multiple rows (inbox drain, rate admission) go through this.
func withBusyRetry(what string, op func() error) error {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = op()
		if err == nil || !isBusyError(err) {
			return err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("database locked, retrying",
				"op", what, "attempt", i+1, "delay", delay)
			time.Sleep(delay)
		}
	}
	return err
}
