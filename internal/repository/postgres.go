package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/ratelimit"
)

// PgxPool is the subset of pgxpool.Pool used by the store (also satisfied by pgxmock)
type PgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresStore keeps challenges as versioned JSONB snapshots. Failure
// counters are delegated to ratelimit.FailureTracker.
type PostgresStore struct {
	pool     PgxPool
	failures *ratelimit.FailureTracker

	hits   atomic.Int64
	misses atomic.Int64
}

func NewPostgresStore(pool PgxPool, policy BlockPolicy) *PostgresStore {
	return &PostgresStore{
		pool:     pool,
		failures: ratelimit.NewFailureTracker(pool, policy.Window, policy.Threshold),
	}
}

// SaveChallenge inserts a challenge or replaces an older version of it.
func (s *PostgresStore) SaveChallenge(ctx context.Context, challenge domain.Challenge) error {
	payload, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}

	query := `
		INSERT INTO captcha_challenges (id, type, payload, version, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE
		SET payload = EXCLUDED.payload,
		    version = EXCLUDED.version,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = NOW()
		WHERE captcha_challenges.version < EXCLUDED.version
	`

	result, err := s.pool.Exec(ctx, query,
		challenge.ID,
		string(challenge.Type),
		payload,
		challenge.Version,
		challenge.ExpireTime,
	)
	if err != nil {
		return unavailable("save challenge", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrChallengeConflict.WithError(
			fmt.Errorf("challenge %s: version %d is not newer than stored", challenge.ID, challenge.Version),
		)
	}

	return nil
}

func (s *PostgresStore) GetChallenge(ctx context.Context, id string) (domain.Challenge, error) {
	query := `
		SELECT payload
		FROM captcha_challenges
		WHERE id = $1
	`

	var payload []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		s.misses.Add(1)
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	if err != nil {
		return domain.Challenge{}, unavailable("get challenge", err)
	}

	var challenge domain.Challenge
	if err := json.Unmarshal(payload, &challenge); err != nil {
		return domain.Challenge{}, fmt.Errorf("decode challenge %s: %w", id, err)
	}

	s.hits.Add(1)
	return challenge, nil
}

func (s *PostgresStore) RemoveChallenge(ctx context.Context, id string) error {
	query := `DELETE FROM captcha_challenges WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return unavailable("remove challenge", err)
	}
	return nil
}

func (s *PostgresStore) SaveTicket(ctx context.Context, ticket string, ttl time.Duration) error {
	if ttl <= 0 {
		return domain.ErrValidationFailed.WithError(fmt.Errorf("ticket ttl must be positive"))
	}

	query := `
		INSERT INTO captcha_tickets (ticket, expires_at, created_at)
		VALUES ($1, $2, NOW())
	`

	if _, err := s.pool.Exec(ctx, query, ticket, time.Now().Add(ttl)); err != nil {
		return unavailable("save ticket", err)
	}
	return nil
}

func (s *PostgresStore) VerifyTicket(ctx context.Context, ticket string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM captcha_tickets
			WHERE ticket = $1 AND consumed_at IS NULL AND expires_at > NOW()
		)
	`

	var exists bool
	if err := s.pool.QueryRow(ctx, query, ticket).Scan(&exists); err != nil {
		return false, unavailable("verify ticket", err)
	}
	return exists, nil
}

// ConsumeTicket relies on the row lock taken by UPDATE: of two concurrent
// callers only one sees consumed_at IS NULL.
func (s *PostgresStore) ConsumeTicket(ctx context.Context, ticket string) (bool, error) {
	query := `
		UPDATE captcha_tickets
		SET consumed_at = NOW()
		WHERE ticket = $1 AND consumed_at IS NULL AND expires_at > NOW()
	`

	result, err := s.pool.Exec(ctx, query, ticket)
	if err != nil {
		return false, unavailable("consume ticket", err)
	}
	return result.RowsAffected() == 1, nil
}

func (s *PostgresStore) RecordVerificationFailure(ctx context.Context, clientIP string) (int, error) {
	count, err := s.failures.RecordFailure(ctx, clientIP)
	if err != nil {
		return 0, unavailable("record verification failure", err)
	}
	return count, nil
}

func (s *PostgresStore) RecordVerificationSuccess(ctx context.Context, clientIP string) error {
	return unavailable("record verification success", s.failures.Reset(ctx, clientIP))
}

func (s *PostgresStore) IsIPBlocked(ctx context.Context, clientIP string) (bool, error) {
	blocked, err := s.failures.IsBlocked(ctx, clientIP)
	if err != nil {
		return false, unavailable("check blocked ip", err)
	}
	return blocked, nil
}

// CleanupExpired deletes expired challenges and spent or expired tickets.
func (s *PostgresStore) CleanupExpired(ctx context.Context) (int64, error) {
	var removed int64

	result, err := s.pool.Exec(ctx, `DELETE FROM captcha_challenges WHERE expires_at < NOW()`)
	if err != nil {
		return removed, unavailable("cleanup challenges", err)
	}
	removed += result.RowsAffected()

	result, err = s.pool.Exec(ctx, `DELETE FROM captcha_tickets WHERE expires_at < NOW() OR consumed_at IS NOT NULL`)
	if err != nil {
		return removed, unavailable("cleanup tickets", err)
	}
	removed += result.RowsAffected()

	if _, err := s.failures.CleanupExpired(ctx); err != nil {
		return removed, unavailable("cleanup failure counters", err)
	}

	return removed, nil
}

func (s *PostgresStore) GetStatistics(ctx context.Context) (Statistics, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM captcha_challenges),
			(SELECT COUNT(*) FROM captcha_tickets WHERE consumed_at IS NULL AND expires_at > NOW()),
			(SELECT COALESCE(SUM(count), 0) FROM captcha_failure_counters),
			pg_total_relation_size('captcha_challenges') + pg_total_relation_size('captcha_tickets')
	`

	stats := Statistics{Backend: "postgres"}
	err := s.pool.QueryRow(ctx, query).Scan(
		&stats.TotalChallenges,
		&stats.TotalTickets,
		&stats.TotalFailures,
		&stats.MemoryUsage,
	)
	if err != nil {
		return Statistics{}, unavailable("get statistics", err)
	}

	stats.HitRate = hitRate(s.hits.Load(), s.misses.Load())
	return stats, nil
}

func (s *PostgresStore) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return s.pool.Ping(ctx) == nil
}
