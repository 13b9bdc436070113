package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

var contractPolicy = BlockPolicy{Threshold: 3, Window: time.Minute}

// runStoreContract exercises the behaviour every StorageRepository must share.
// newStore must return an empty store built with contractPolicy.
func runStoreContract(t *testing.T, newStore func(t *testing.T) StorageRepository) {
	ctx := context.Background()

	newChallenge := func(t *testing.T) domain.Challenge {
		t.Helper()
		c, err := domain.NewChallenge(domain.ChallengeTypeSlider,
			domain.WithCorrectPosition(domain.NewCoordinate(150, 0)),
			domain.WithTolerance(8),
			domain.WithMetadata("origin", "contract"),
		)
		require.NoError(t, err)
		return c
	}

	t.Run("challenge round trip", func(t *testing.T) {
		store := newStore(t)
		c := newChallenge(t)
		require.NoError(t, store.SaveChallenge(ctx, c))

		got, err := store.GetChallenge(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
		assert.Equal(t, c.Type, got.Type)
		assert.Equal(t, c.CorrectPosition, got.CorrectPosition)
		assert.Equal(t, c.Tolerance, got.Tolerance)
		assert.Equal(t, c.Version, got.Version)
		assert.Equal(t, "contract", got.Metadata["origin"])
		assert.WithinDuration(t, c.ExpireTime, got.ExpireTime, time.Millisecond)
	})

	t.Run("missing challenge", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetChallenge(ctx, "does-not-exist")
		assert.True(t, errors.Is(err, domain.ErrChallengeNotFound))
	})

	t.Run("stale snapshot is rejected", func(t *testing.T) {
		store := newStore(t)
		c := newChallenge(t)
		require.NoError(t, store.SaveChallenge(ctx, c))

		err := store.SaveChallenge(ctx, c)
		assert.True(t, errors.Is(err, domain.ErrChallengeConflict))

		next, _ := c.VerifyAnswer(domain.NewCoordinate(0, 0))
		require.NoError(t, store.SaveChallenge(ctx, next))

		got, err := store.GetChallenge(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.AttemptCount)
	})

	t.Run("concurrent attempts on one challenge", func(t *testing.T) {
		store := newStore(t)
		c := newChallenge(t)
		require.NoError(t, store.SaveChallenge(ctx, c))

		var wg sync.WaitGroup
		var saved atomic.Int32
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next, _ := c.VerifyAnswer(domain.NewCoordinate(0, 0))
				if store.SaveChallenge(ctx, next) == nil {
					saved.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), saved.Load())
		got, err := store.GetChallenge(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.AttemptCount)
	})

	t.Run("remove challenge", func(t *testing.T) {
		store := newStore(t)
		c := newChallenge(t)
		require.NoError(t, store.SaveChallenge(ctx, c))
		require.NoError(t, store.RemoveChallenge(ctx, c.ID))

		_, err := store.GetChallenge(ctx, c.ID)
		assert.True(t, errors.Is(err, domain.ErrChallengeNotFound))

		assert.NoError(t, store.RemoveChallenge(ctx, c.ID), "removing twice is not an error")
	})

	t.Run("ticket is consumed once", func(t *testing.T) {
		store := newStore(t)
		ticket := "ticket-" + newChallenge(t).ID
		require.NoError(t, store.SaveTicket(ctx, ticket, time.Minute))

		ok, err := store.VerifyTicket(ctx, ticket)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.VerifyTicket(ctx, ticket)
		require.NoError(t, err)
		assert.True(t, ok, "verify is non-destructive")

		ok, err = store.ConsumeTicket(ctx, ticket)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.ConsumeTicket(ctx, ticket)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.VerifyTicket(ctx, ticket)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown ticket", func(t *testing.T) {
		store := newStore(t)
		ok, err := store.ConsumeTicket(ctx, "never-issued")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("concurrent ticket consumption", func(t *testing.T) {
		store := newStore(t)
		ticket := "ticket-" + newChallenge(t).ID
		require.NoError(t, store.SaveTicket(ctx, ticket, time.Minute))

		var wg sync.WaitGroup
		var wins atomic.Int32
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.ConsumeTicket(ctx, ticket)
				if err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("failures block and success resets", func(t *testing.T) {
		store := newStore(t)
		ip := "1.2.3.4"

		for i := 1; i <= 3; i++ {
			blocked, err := store.IsIPBlocked(ctx, ip)
			require.NoError(t, err)
			assert.False(t, blocked)

			count, err := store.RecordVerificationFailure(ctx, ip)
			require.NoError(t, err)
			assert.Equal(t, i, count)
		}

		blocked, err := store.IsIPBlocked(ctx, ip)
		require.NoError(t, err)
		assert.True(t, blocked)

		other, err := store.IsIPBlocked(ctx, "5.6.7.8")
		require.NoError(t, err)
		assert.False(t, other, "counters are per client")

		require.NoError(t, store.RecordVerificationSuccess(ctx, ip))
		blocked, err = store.IsIPBlocked(ctx, ip)
		require.NoError(t, err)
		assert.False(t, blocked)

		count, err := store.RecordVerificationFailure(ctx, ip)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "success resets the counter")
	})

	t.Run("concurrent failures are not lost", func(t *testing.T) {
		store := newStore(t)
		ip := fmt.Sprintf("10.0.0.%d", time.Now().UnixNano()%200)

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = store.RecordVerificationFailure(ctx, ip)
			}()
		}
		wg.Wait()

		count, err := store.RecordVerificationFailure(ctx, ip)
		require.NoError(t, err)
		assert.Equal(t, 51, count)
	})

	t.Run("statistics and health", func(t *testing.T) {
		store := newStore(t)
		c := newChallenge(t)
		require.NoError(t, store.SaveChallenge(ctx, c))
		_, _ = store.GetChallenge(ctx, c.ID)
		_, _ = store.RecordVerificationFailure(ctx, "9.9.9.9")

		stats, err := store.GetStatistics(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stats.TotalChallenges, int64(1))
		assert.GreaterOrEqual(t, stats.TotalFailures, int64(1))
		assert.Greater(t, stats.HitRate, 0.0)
		assert.NotEmpty(t, stats.Backend)

		assert.True(t, store.IsHealthy(ctx))
	})
}
