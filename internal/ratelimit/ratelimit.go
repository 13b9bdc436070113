package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB interface for database operations
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// FailureTracker counts failed verifications per client in PostgreSQL.
// The window slides: every failure pushes window_end forward, and a failure
// arriving after window_end starts a new count.
type FailureTracker struct {
	db        DB
	window    time.Duration
	threshold int
}

// NewFailureTracker creates a tracker that blocks a client after threshold
// failures inside window
func NewFailureTracker(db DB, window time.Duration, threshold int) *FailureTracker {
	return &FailureTracker{
		db:        db,
		window:    window,
		threshold: threshold,
	}
}

// RecordFailure atomically increments the counter and returns the new count
func (t *FailureTracker) RecordFailure(ctx context.Context, clientIP string) (int, error) {
	now := time.Now()

	query := `
		INSERT INTO captcha_failure_counters (client_ip, count, window_start, window_end)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (client_ip)
		DO UPDATE SET
			count = CASE
				WHEN captcha_failure_counters.window_end < $2 THEN 1
				ELSE captcha_failure_counters.count + 1
			END,
			window_start = CASE
				WHEN captcha_failure_counters.window_end < $2 THEN $2
				ELSE captcha_failure_counters.window_start
			END,
			window_end = $3
		RETURNING count
	`

	var count int
	err := t.db.QueryRow(ctx, query, clientIP, now, now.Add(t.window)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("record failure: %w", err)
	}

	return count, nil
}

// IsBlocked reports whether the client reached the threshold inside the
// current window
func (t *FailureTracker) IsBlocked(ctx context.Context, clientIP string) (bool, error) {
	if t.threshold <= 0 {
		return false, nil // No limit configured
	}

	count, err := t.GetCurrentCount(ctx, clientIP)
	if err != nil {
		return false, err
	}

	return count >= t.threshold, nil
}

// GetCurrentCount returns the live failure count for a client
func (t *FailureTracker) GetCurrentCount(ctx context.Context, clientIP string) (int, error) {
	query := `
		SELECT count
		FROM captcha_failure_counters
		WHERE client_ip = $1 AND window_end > $2
	`

	var count int
	err := t.db.QueryRow(ctx, query, clientIP, time.Now()).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get failure count: %w", err)
	}

	return count, nil
}

// Reset clears the counter of a client after a successful verification
func (t *FailureTracker) Reset(ctx context.Context, clientIP string) error {
	query := `DELETE FROM captcha_failure_counters WHERE client_ip = $1`
	if _, err := t.db.Exec(ctx, query, clientIP); err != nil {
		return fmt.Errorf("reset failures: %w", err)
	}
	return nil
}

// CleanupExpired removes counters whose window is over
func (t *FailureTracker) CleanupExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM captcha_failure_counters WHERE window_end < NOW()`
	result, err := t.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("cleanup failure counters: %w", err)
	}
	return result.RowsAffected(), nil
}
