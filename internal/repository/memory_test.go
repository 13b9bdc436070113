package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) StorageRepository {
		return NewMemoryStore(contractPolicy)
	})
}

// fakeClock lets tests move the store's notion of now
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newMemoryStoreWithClock() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Now()}
	store := NewMemoryStore(contractPolicy)
	store.now = clock.Now
	return store, clock
}

func TestMemoryStore_TicketExpiry(t *testing.T) {
	ctx := context.Background()
	store, clock := newMemoryStoreWithClock()

	require.NoError(t, store.SaveTicket(ctx, "t1", time.Minute))
	require.NoError(t, store.SaveTicket(ctx, "t2", time.Minute))

	clock.now = clock.now.Add(2 * time.Minute)

	ok, err := store.VerifyTicket(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.ConsumeTicket(ctx, "t2")
	require.NoError(t, err)
	assert.False(t, ok, "expired ticket cannot be redeemed")

	err = store.SaveTicket(ctx, "t3", 0)
	assert.Error(t, err)
}

func TestMemoryStore_BlockWindowSlides(t *testing.T) {
	ctx := context.Background()
	store, clock := newMemoryStoreWithClock()
	ip := "1.2.3.4"

	for i := 0; i < 3; i++ {
		_, err := store.RecordVerificationFailure(ctx, ip)
		require.NoError(t, err)
	}
	blocked, _ := store.IsIPBlocked(ctx, ip)
	require.True(t, blocked)

	clock.now = clock.now.Add(59 * time.Second)
	blocked, _ = store.IsIPBlocked(ctx, ip)
	assert.True(t, blocked, "still inside the window")

	clock.now = clock.now.Add(2 * time.Second)
	blocked, _ = store.IsIPBlocked(ctx, ip)
	assert.False(t, blocked, "window is over")

	count, err := store.RecordVerificationFailure(ctx, ip)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "a new window starts from scratch")
}

func TestMemoryStore_CleanupExpired(t *testing.T) {
	ctx := context.Background()
	store, clock := newMemoryStoreWithClock()

	live, err := domain.NewChallenge(domain.ChallengeTypeClick, domain.WithCreatedAt(clock.now))
	require.NoError(t, err)
	stale, err := domain.NewChallenge(domain.ChallengeTypeClick, domain.WithCreatedAt(clock.now.Add(-time.Hour)))
	require.NoError(t, err)

	require.NoError(t, store.SaveChallenge(ctx, live))
	require.NoError(t, store.SaveChallenge(ctx, stale))
	require.NoError(t, store.SaveTicket(ctx, "fresh", time.Hour))
	require.NoError(t, store.SaveTicket(ctx, "old", time.Second))
	_, _ = store.RecordVerificationFailure(ctx, "1.1.1.1")

	clock.now = clock.now.Add(2 * time.Minute)

	removed, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = store.GetChallenge(ctx, stale.ID)
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
	_, err = store.GetChallenge(ctx, live.ID)
	assert.NoError(t, err)

	stats, err := store.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalChallenges)
	assert.Equal(t, int64(1), stats.TotalTickets)
	assert.Equal(t, int64(1), stats.TotalFailures)
}

func TestMemoryStore_ExpiredChallengeStillReadable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(contractPolicy)

	c, err := domain.NewChallenge(domain.ChallengeTypeSlider, domain.WithCreatedAt(time.Now().Add(-time.Hour)))
	require.NoError(t, err)
	require.NoError(t, store.SaveChallenge(ctx, c))

	got, err := store.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status())
}

func TestBlockPolicy_Blocks(t *testing.T) {
	p := BlockPolicy{Threshold: 3, Window: time.Minute}
	assert.False(t, p.Blocks(2))
	assert.True(t, p.Blocks(3))
	assert.True(t, p.Blocks(4))

	assert.False(t, BlockPolicy{}.Blocks(100), "zero threshold never blocks")
}

func TestHitRate(t *testing.T) {
	assert.Equal(t, 0.0, hitRate(0, 0))
	assert.InDelta(t, 0.75, hitRate(3, 1), 1e-9)
}

func TestParseUsedMemory(t *testing.T) {
	info := "# Memory\r\nused_memory:1048576\r\nused_memory_human:1.00M\r\n"
	assert.Equal(t, int64(1048576), parseUsedMemory(info))
	assert.Equal(t, int64(0), parseUsedMemory("# Memory\r\n"))
}
