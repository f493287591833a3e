package quota

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/gobacklinks/internal/logger"
)

func newTestService(t *testing.T, limits Limits) (*RedisService, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisService(client, limits, logger.NewNop()), mr
}

func TestCanPerformSearchEnforcesLimit(t *testing.T) {
	svc, _ := newTestService(t, Limits{FreeSearches: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, msg, err := svc.CanPerformSearch(ctx, "user-1", PlanFree)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, msg)
		require.NoError(t, svc.RecordSearch(ctx, "user-1", "example.com", 3))
	}

	ok, msg, err := svc.CanPerformSearch(ctx, "user-1", PlanFree)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, msg, "limit of 2")
}

func TestCanPerformSearchUnlimitedPlanSkipsCounter(t *testing.T) {
	svc, mr := newTestService(t, Limits{FreeSearches: 1})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, _, err := svc.CanPerformSearch(ctx, "user-1", PlanUnlimited)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Empty(t, mr.Keys())
}

func TestCountersAreIsolatedPerUser(t *testing.T) {
	svc, _ := newTestService(t, Limits{FreeSearches: 1})
	ctx := context.Background()

	require.NoError(t, svc.RecordSearch(ctx, "user-1", "example.com", 1))

	ok, _, err := svc.CanPerformSearch(ctx, "user-1", PlanFree)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _, err = svc.CanPerformSearch(ctx, "user-2", PlanFree)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanPerformSearchFailsOpen(t *testing.T) {
	svc, mr := newTestService(t, Limits{FreeSearches: 1})
	mr.Close()

	ok, _, err := svc.CanPerformSearch(context.Background(), "user-1", PlanFree)
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestRecordSearchSetsExpiry(t *testing.T) {
	svc, mr := newTestService(t, Limits{FreeSearches: 10})
	ctx := context.Background()

	require.NoError(t, svc.RecordSearch(ctx, "user-1", "example.com", 1))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Greater(t, mr.TTL(keys[0]), time.Duration(0))
}
