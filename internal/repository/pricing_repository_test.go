package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/medride/internal/model"
)

type countingPricingStore struct {
	*MemoryPricingStore
	loads int
}

func (c *countingPricingStore) Load(ctx context.Context) (*model.PricingConfig, error) {
	c.loads++
	return c.MemoryPricingStore.Load(ctx)
}

func newCachedStore(t *testing.T) (*CachedPricingStore, *countingPricingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backing := &countingPricingStore{MemoryPricingStore: NewMemoryPricingStore()}
	return NewCachedPricingStore(backing, client, time.Minute, zerolog.Nop()), backing, mr
}

func TestCachedPricingStore_FastPath(t *testing.T) {
	ctx := context.Background()
	cache, backing, mr := newCachedStore(t)
	require.NoError(t, backing.Save(ctx, model.DefaultPricingConfig()))

	first, err := cache.Load(ctx)
	require.NoError(t, err)
	second, err := cache.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, backing.loads)
	assert.Equal(t, first.BaseFare, second.BaseFare)
	assert.True(t, mr.Exists(redisPricingKey))

	mr.FastForward(2 * time.Minute)
	_, err = cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, backing.loads)
}

func TestCachedPricingStore_SaveInvalidates(t *testing.T) {
	ctx := context.Background()
	cache, backing, mr := newCachedStore(t)
	require.NoError(t, backing.Save(ctx, model.DefaultPricingConfig()))

	_, err := cache.Load(ctx)
	require.NoError(t, err)

	updated := model.DefaultPricingConfig()
	updated.BaseFare = 7.25
	require.NoError(t, cache.Save(ctx, updated))
	assert.False(t, mr.Exists(redisPricingKey))

	got, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7.25, got.BaseFare)
}

func TestCachedPricingStore_NotFoundPassesThrough(t *testing.T) {
	cache, _, mr := newCachedStore(t)
	_, err := cache.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists(redisPricingKey))
}

func TestCachedPricingStore_RedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	cache, backing, mr := newCachedStore(t)
	require.NoError(t, backing.Save(ctx, model.DefaultPricingConfig()))
	mr.Close()

	got, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5.00, got.BaseFare)
}

func TestCachedPricingStore_SaveSucceedsWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	cache, backing, mr := newCachedStore(t)
	mr.Close()

	updated := model.DefaultPricingConfig()
	updated.BaseFare = 9.00
	require.NoError(t, cache.Save(ctx, updated))

	got, err := backing.MemoryPricingStore.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9.00, got.BaseFare)
}

func TestCachedPricingStore_SaveIfAbsent(t *testing.T) {
	ctx := context.Background()
	cache, backing, _ := newCachedStore(t)

	first := model.DefaultPricingConfig()
	inserted, err := cache.SaveIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	second := model.DefaultPricingConfig()
	second.BaseFare = 99
	inserted, err = cache.SaveIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := backing.MemoryPricingStore.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5.00, got.BaseFare)
}
