package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCacheFromClient(client)
}

func TestRedisCacheJSONRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	err := cache.SetJSON(ctx, "test:key", payload{Name: "daily-swap", Count: 3}, time.Minute)
	require.NoError(t, err)

	var got payload
	hit, err := cache.GetJSON(ctx, "test:key", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "daily-swap", got.Name)
	assert.Equal(t, 3, got.Count)
}

func TestRedisCacheJSONMiss(t *testing.T) {
	cache := newTestCache(t)

	var got map[string]any
	hit, err := cache.GetJSON(context.Background(), "missing", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisCacheInvalidateQuests(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetJSON(ctx, ActiveQuestsKey, []int{1, 2}, time.Minute))
	require.NoError(t, cache.InvalidateQuests(ctx))

	var got []int
	hit, err := cache.GetJSON(ctx, ActiveQuestsKey, &got)
	require.NoError(t, err)
	assert.False(t, hit)
}
