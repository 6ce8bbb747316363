package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCacheContract 对任意缓存实现执行相同的基本测试
func runCacheContract(t *testing.T, c Cache) {
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "key1", []byte("value1"), 0))

		val, found, err := c.Get(ctx, "key1")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("value1"), val)
	})

	t.Run("missing key", func(t *testing.T) {
		val, found, err := c.Get(ctx, "non-existent")
		assert.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, val)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "to-delete", []byte("delete-me"), 0))
		require.NoError(t, c.Delete(ctx, "to-delete"))

		_, found, err := c.Get(ctx, "to-delete")
		assert.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
		require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
		require.NoError(t, c.Clear(ctx))

		_, found, _ := c.Get(ctx, "a")
		assert.False(t, found)
		_, found, _ = c.Get(ctx, "b")
		assert.False(t, found)
	})
}

func TestMemoryCache(t *testing.T) {
	config := Config{
		Type:            "memory",
		KeyPrefix:       "test",
		DefaultTTL:      time.Second * 2,
		CleanupInterval: time.Second,
	}
	c, err := NewMemoryCache(config)
	require.NoError(t, err)
	defer c.Close()

	runCacheContract(t, c)

	t.Run("expiration", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, c.Set(ctx, "expire-soon", []byte("temp"), time.Millisecond*100))
		time.Sleep(time.Millisecond * 300)

		_, found, err := c.Get(ctx, "expire-soon")
		assert.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, c.Set(ctx, "copy", []byte("abc"), 0))

		val, _, _ := c.Get(ctx, "copy")
		val[0] = 'x'

		again, _, _ := c.Get(ctx, "copy")
		assert.Equal(t, []byte("abc"), again)
	})
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewCache(Config{Type: "redis", RedisAddr: mr.Addr(), KeyPrefix: "test", DefaultTTL: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	runCacheContract(t, c)

	t.Run("expiration", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, c.Set(ctx, "expire-soon", []byte("temp"), time.Second))
		mr.FastForward(2 * time.Second)

		_, found, err := c.Get(ctx, "expire-soon")
		assert.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("clear keeps foreign keys", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, mr.Set("other:key", "keep"))
		require.NoError(t, c.Set(ctx, "mine", []byte("drop"), 0))
		require.NoError(t, c.Clear(ctx))

		assert.True(t, mr.Exists("other:key"))
		assert.False(t, mr.Exists("test:mine"))
	})
}

func TestRedisCacheConnectionError(t *testing.T) {
	_, err := NewRedisCache(Config{RedisAddr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestNewRedisCacheWithClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	c := NewRedisCacheWithClient(client, Config{})
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "plain", []byte("v"), 0))
	assert.True(t, mr.Exists("plain"), "没有前缀时直接使用原始键")
}

func TestNewCache(t *testing.T) {
	c, err := NewCache(Config{})
	require.NoError(t, err)
	mem, ok := c.(*MemoryCache)
	require.True(t, ok)

	require.NoError(t, mem.Set(context.Background(), "k", []byte("v"), 0))
	assert.Equal(t, 1, mem.Len())

	_, err = NewCache(Config{Type: "memcached"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory, redis")
}

func TestGenerateCacheKey(t *testing.T) {
	assert.Equal(t, "emb", GenerateCacheKey("emb"))
	assert.Equal(t, "emb:model:hash", GenerateCacheKey("emb", "model", "hash"))
}
