package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

const statsKey = "captcha:stats"

// ConnectRedis accepts either a redis:// URL or a bare host:port.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisStore shares challenges between instances. Keys expire on their own,
// so CleanupExpired has nothing to sweep.
type RedisStore struct {
	client *redis.Client
	policy BlockPolicy
}

func NewRedisStore(client *redis.Client, policy BlockPolicy) *RedisStore {
	return &RedisStore{client: client, policy: policy}
}

// SaveChallenge uses WATCH so that a concurrent writer of the same id
// aborts the transaction instead of overwriting a newer snapshot.
func (s *RedisStore) SaveChallenge(ctx context.Context, challenge domain.Challenge) error {
	payload, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}

	ttl := time.Until(challenge.ExpireTime)
	if ttl < time.Second {
		ttl = time.Second
	}

	key := challengeKey(challenge.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var current domain.Challenge
			if err := json.Unmarshal(raw, &current); err != nil {
				return fmt.Errorf("decode stored challenge: %w", err)
			}
			if current.Version >= challenge.Version {
				return domain.ErrChallengeConflict.WithError(
					fmt.Errorf("challenge %s: stored version %d, got %d", challenge.ID, current.Version, challenge.Version),
				)
			}
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrChallengeConflict.WithError(fmt.Errorf("challenge %s modified concurrently", challenge.ID))
	}
	return unavailable("save challenge", err)
}

func (s *RedisStore) GetChallenge(ctx context.Context, id string) (domain.Challenge, error) {
	raw, err := s.client.Get(ctx, challengeKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		_ = s.client.HIncrBy(ctx, statsKey, "misses", 1).Err()
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	if err != nil {
		return domain.Challenge{}, unavailable("get challenge", err)
	}

	var challenge domain.Challenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return domain.Challenge{}, fmt.Errorf("decode challenge %s: %w", id, err)
	}

	_ = s.client.HIncrBy(ctx, statsKey, "hits", 1).Err()
	return challenge, nil
}

func (s *RedisStore) RemoveChallenge(ctx context.Context, id string) error {
	return unavailable("remove challenge", s.client.Del(ctx, challengeKey(id)).Err())
}

func (s *RedisStore) SaveTicket(ctx context.Context, ticket string, ttl time.Duration) error {
	if ttl <= 0 {
		return domain.ErrValidationFailed.WithError(fmt.Errorf("ticket ttl must be positive"))
	}
	return unavailable("save ticket", s.client.Set(ctx, ticketKey(ticket), "1", ttl).Err())
}

func (s *RedisStore) VerifyTicket(ctx context.Context, ticket string) (bool, error) {
	n, err := s.client.Exists(ctx, ticketKey(ticket)).Result()
	if err != nil {
		return false, unavailable("verify ticket", err)
	}
	return n > 0, nil
}

// ConsumeTicket uses GETDEL, which is atomic on the server.
func (s *RedisStore) ConsumeTicket(ctx context.Context, ticket string) (bool, error) {
	err := s.client.GetDel(ctx, ticketKey(ticket)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("consume ticket", err)
	}
	return true, nil
}

func (s *RedisStore) RecordVerificationFailure(ctx context.Context, clientIP string) (int, error) {
	key := failureKey(clientIP)

	pipe := s.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, "failed_count", 1)
	pipe.Expire(ctx, key, s.policy.Window)
	pipe.HIncrBy(ctx, statsKey, "failures", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, unavailable("record verification failure", err)
	}

	return int(incr.Val()), nil
}

func (s *RedisStore) RecordVerificationSuccess(ctx context.Context, clientIP string) error {
	return unavailable("record verification success", s.client.Del(ctx, failureKey(clientIP)).Err())
}

func (s *RedisStore) IsIPBlocked(ctx context.Context, clientIP string) (bool, error) {
	raw, err := s.client.HGet(ctx, failureKey(clientIP), "failed_count").Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("check blocked ip", err)
	}

	count, err := strconv.Atoi(raw)
	if err != nil {
		return false, fmt.Errorf("parse failure count %q: %w", raw, err)
	}
	return s.policy.Blocks(count), nil
}

func (s *RedisStore) CleanupExpired(_ context.Context) (int64, error) {
	return 0, nil
}

func (s *RedisStore) GetStatistics(ctx context.Context) (Statistics, error) {
	stats := Statistics{Backend: "redis"}

	challenges, err := s.countKeys(ctx, challengeKey("*"))
	if err != nil {
		return Statistics{}, unavailable("count challenges", err)
	}
	tickets, err := s.countKeys(ctx, ticketKey("*"))
	if err != nil {
		return Statistics{}, unavailable("count tickets", err)
	}
	stats.TotalChallenges = challenges
	stats.TotalTickets = tickets

	counters, err := s.client.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return Statistics{}, unavailable("read counters", err)
	}
	hits, _ := strconv.ParseInt(counters["hits"], 10, 64)
	misses, _ := strconv.ParseInt(counters["misses"], 10, 64)
	stats.TotalFailures, _ = strconv.ParseInt(counters["failures"], 10, 64)
	stats.HitRate = hitRate(hits, misses)

	info, err := s.client.Info(ctx, "memory").Result()
	if err == nil {
		stats.MemoryUsage = parseUsedMemory(info)
	}

	return stats, nil
}

func (s *RedisStore) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return s.client.Ping(ctx).Err() == nil
}

func (s *RedisStore) countKeys(ctx context.Context, pattern string) (int64, error) {
	var (
		total  int64
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return 0, err
		}
		total += int64(len(keys))
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}

// parseUsedMemory extracts used_memory from an INFO memory reply.
func parseUsedMemory(info string) int64 {
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if v, ok := strings.CutPrefix(line, "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}
