package governance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigw/backend/internal/domain/shared"
	"github.com/aigw/backend/internal/infrastructure/counter"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	store := counter.NewMemoryStore()
	defer store.Close()
	limiter := NewRateLimiter(store)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		decision, err := limiter.Allow(ctx, "api-key-1", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "request %d should pass", i+1)
		assert.Equal(t, int64(5-i-1), decision.Remaining)
	}

	decision, err := limiter.Allow(ctx, "api-key-1", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, int64(0), decision.Remaining)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
	require.NotNil(t, decision.Err)
	assert.Equal(t, int64(5), decision.Err.Limit)
}

func TestRateLimiter_SlidingWindowFreesSlots(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	now := base
	store := counter.NewMemoryStore(counter.WithClock(func() time.Time { return now }))
	defer store.Close()
	limiter := NewRateLimiter(store)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
		now = now.Add(10 * time.Second)
	}

	// window still holds all three events
	decision, err := limiter.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// once the first event ages out, a slot frees up
	now = base.Add(61 * time.Second)
	decision, err = limiter.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestRateLimiter_NegativeLimitDisables(t *testing.T) {
	store := counter.NewMemoryStore()
	defer store.Close()
	limiter := NewRateLimiter(store)

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		decision, err := limiter.Allow(ctx, "unlimited", -1, time.Second)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	}
}

func TestRateLimiter_ZeroLimitRejectsEverything(t *testing.T) {
	store := counter.NewMemoryStore()
	defer store.Close()
	limiter := NewRateLimiter(store)

	decision, err := limiter.Allow(context.Background(), "blocked", 0, time.Minute)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestRateLimiter_RemainingDoesNotRecord(t *testing.T) {
	store := counter.NewMemoryStore()
	defer store.Close()
	limiter := NewRateLimiter(store)

	ctx := context.Background()
	_, err := limiter.Allow(ctx, "k", 10, time.Minute)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		remaining, err := limiter.Remaining(ctx, "k", 10, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(9), remaining)
	}
}

func TestRateLimiter_EmptyKeyRejected(t *testing.T) {
	store := counter.NewMemoryStore()
	defer store.Close()
	limiter := NewRateLimiter(store)

	_, err := limiter.Allow(context.Background(), "", 10, time.Minute)
	assert.ErrorIs(t, err, shared.ErrInvalidPrincipal)
}

func TestRateLimiter_DefaultWindowApplied(t *testing.T) {
	store := counter.NewMemoryStore()
	defer store.Close()
	limiter := NewRateLimiter(store, WithRateWindow(30*time.Second))

	assert.Equal(t, 30*time.Second, limiter.Window())

	decision, err := limiter.Allow(context.Background(), "k", 10, 0)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}
