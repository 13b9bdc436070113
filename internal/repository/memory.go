package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

type failureCounter struct {
	count     int
	windowEnd time.Time
}

// MemoryStore keeps everything in process memory behind a single mutex.
// Suitable for a single instance; use RedisStore or PostgresStore when
// several instances share challenges.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]domain.Challenge
	tickets    map[string]time.Time
	failures   map[string]*failureCounter
	policy     BlockPolicy
	now        func() time.Time

	hits          int64
	misses        int64
	totalFailures int64
}

func NewMemoryStore(policy BlockPolicy) *MemoryStore {
	return &MemoryStore{
		challenges: make(map[string]domain.Challenge),
		tickets:    make(map[string]time.Time),
		failures:   make(map[string]*failureCounter),
		policy:     policy,
		now:        time.Now,
	}
}

func (s *MemoryStore) SaveChallenge(_ context.Context, challenge domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.challenges[challenge.ID]; ok && current.Version >= challenge.Version {
		return domain.ErrChallengeConflict.WithError(
			fmt.Errorf("challenge %s: stored version %d, got %d", challenge.ID, current.Version, challenge.Version),
		)
	}
	s.challenges[challenge.ID] = challenge
	return nil
}

func (s *MemoryStore) GetChallenge(_ context.Context, id string) (domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[id]
	if !ok {
		s.misses++
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	s.hits++
	return challenge, nil
}

func (s *MemoryStore) RemoveChallenge(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.challenges, id)
	return nil
}

func (s *MemoryStore) SaveTicket(_ context.Context, ticket string, ttl time.Duration) error {
	if ttl <= 0 {
		return domain.ErrValidationFailed.WithError(fmt.Errorf("ticket ttl must be positive"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tickets[ticket] = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) VerifyTicket(_ context.Context, ticket string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.tickets[ticket]
	return ok && !s.now().After(expiresAt), nil
}

func (s *MemoryStore) ConsumeTicket(_ context.Context, ticket string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.tickets[ticket]
	if !ok {
		return false, nil
	}
	delete(s.tickets, ticket)
	return !s.now().After(expiresAt), nil
}

func (s *MemoryStore) RecordVerificationFailure(_ context.Context, clientIP string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	counter, ok := s.failures[clientIP]
	if !ok || now.After(counter.windowEnd) {
		counter = &failureCounter{}
		s.failures[clientIP] = counter
	}
	counter.count++
	counter.windowEnd = now.Add(s.policy.Window)
	s.totalFailures++

	return counter.count, nil
}

func (s *MemoryStore) RecordVerificationSuccess(_ context.Context, clientIP string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.failures, clientIP)
	return nil
}

func (s *MemoryStore) IsIPBlocked(_ context.Context, clientIP string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.failures[clientIP]
	if !ok || s.now().After(counter.windowEnd) {
		return false, nil
	}
	return s.policy.Blocks(counter.count), nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64

	for id, challenge := range s.challenges {
		if challenge.IsExpiredAt(now) {
			delete(s.challenges, id)
			removed++
		}
	}
	for ticket, expiresAt := range s.tickets {
		if now.After(expiresAt) {
			delete(s.tickets, ticket)
			removed++
		}
	}
	for ip, counter := range s.failures {
		if now.After(counter.windowEnd) {
			delete(s.failures, ip)
		}
	}

	return removed, nil
}

func (s *MemoryStore) GetStatistics(_ context.Context) (Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var usage int64
	for _, c := range s.challenges {
		usage += int64(len(c.ID) + len(c.BackgroundImage) + len(c.PuzzleImage))
	}
	for ticket := range s.tickets {
		usage += int64(len(ticket))
	}

	return Statistics{
		Backend:         "memory",
		TotalChallenges: int64(len(s.challenges)),
		TotalTickets:    int64(len(s.tickets)),
		TotalFailures:   s.totalFailures,
		HitRate:         hitRate(s.hits, s.misses),
		MemoryUsage:     usage,
	}, nil
}

func (s *MemoryStore) IsHealthy(_ context.Context) bool {
	return true
}
