package repository

import (
	"context"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// StorageRepository persists challenges, tickets and per-client failure
// counters. Implementations must make ConsumeTicket an atomic
// test-and-invalidate, reject stale challenge snapshots with
// domain.ErrChallengeConflict, and increment failure counters without lost
// updates. Backend faults are reported as domain.ErrStorageUnavailable.
type StorageRepository interface {
	SaveChallenge(ctx context.Context, challenge domain.Challenge) error
	GetChallenge(ctx context.Context, id string) (domain.Challenge, error)
	RemoveChallenge(ctx context.Context, id string) error

	SaveTicket(ctx context.Context, ticket string, ttl time.Duration) error
	// VerifyTicket is read-only.
	VerifyTicket(ctx context.Context, ticket string) (bool, error)
	// ConsumeTicket returns true for exactly one caller per ticket.
	ConsumeTicket(ctx context.Context, ticket string) (bool, error)

	// RecordVerificationFailure returns the failure count after the increment.
	RecordVerificationFailure(ctx context.Context, clientIP string) (int, error)
	RecordVerificationSuccess(ctx context.Context, clientIP string) error
	IsIPBlocked(ctx context.Context, clientIP string) (bool, error)

	CleanupExpired(ctx context.Context) (int64, error)
	GetStatistics(ctx context.Context) (Statistics, error)
	IsHealthy(ctx context.Context) bool
}

// Statistics is a best-effort snapshot of the storage.
type Statistics struct {
	Backend         string  `json:"backend"`
	TotalChallenges int64   `json:"total_challenges"`
	TotalTickets    int64   `json:"total_tickets"`
	TotalFailures   int64   `json:"total_failures"`
	HitRate         float64 `json:"hit_rate"`
	MemoryUsage     int64   `json:"memory_usage_bytes"`
}

// BlockPolicy decides when a client is blocked: Threshold failures inside a
// Window that slides forward with every failure.
type BlockPolicy struct {
	Threshold int
	Window    time.Duration
}

func DefaultBlockPolicy() BlockPolicy {
	return BlockPolicy{
		Threshold: 5,
		Window:    15 * time.Minute,
	}
}

func (p BlockPolicy) Blocks(failures int) bool {
	return p.Threshold > 0 && failures >= p.Threshold
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
