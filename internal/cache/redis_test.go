//go:build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: go test -v -tags=integration ./internal/cache/...

func setupTestCache(t *testing.T) *RedisCache {
	host := os.Getenv("TEST_REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	c, err := NewRedisCache(Config{Addr: host + ":6379", DB: 15})
	require.NoError(t, err, "Failed to connect to test redis")
	require.NoError(t, c.client.FlushDB(context.Background()).Err())
	return c
}

func TestAcquireLock_Exclusive(t *testing.T) {
	c := setupTestCache(t)
	defer c.Close()
	ctx := context.Background()

	release, ok, err := c.AcquireLock(ctx, "sync_odds", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.AcquireLock(ctx, "sync_odds", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "Second holder should be refused")

	_, ok, err = c.AcquireLock(ctx, "predictions", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "Locks are per name")

	release()

	release2, ok, err := c.AcquireLock(ctx, "sync_odds", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "Lock is free after release")
	release2()
}

func TestAcquireLock_ReleaseDoesNotStealNewHolder(t *testing.T) {
	c := setupTestCache(t)
	defer c.Close()
	ctx := context.Background()

	staleRelease, ok, err := c.AcquireLock(ctx, "sync_odds", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)

	_, ok, err = c.AcquireLock(ctx, "sync_odds", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	staleRelease()

	_, ok, err = c.AcquireLock(ctx, "sync_odds", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "Expired holder must not release the new lock")
}

func TestJSONRoundTripAndInvalidate(t *testing.T) {
	c := setupTestCache(t)
	defer c.Close()
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
	}

	var got payload
	found, err := c.GetJSON(ctx, UpcomingEventsKey("nfl"), &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetJSON(ctx, UpcomingEventsKey("nfl"), payload{Name: "lions"}, time.Minute))
	require.NoError(t, c.SetJSON(ctx, EventKey("evt-1"), payload{Name: "detail"}, time.Minute))
	require.NoError(t, c.SetJSON(ctx, "other", payload{Name: "kept"}, time.Minute))

	found, err = c.GetJSON(ctx, UpcomingEventsKey("NFL"), &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "lions", got.Name)

	require.NoError(t, c.InvalidateEvents(ctx))

	found, err = c.GetJSON(ctx, UpcomingEventsKey("NFL"), &got)
	require.NoError(t, err)
	assert.False(t, found)
	found, err = c.GetJSON(ctx, EventKey("evt-1"), &got)
	require.NoError(t, err)
	assert.False(t, found)
	found, err = c.GetJSON(ctx, "other", &got)
	require.NoError(t, err)
	assert.True(t, found)
}
