package genwire

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey(t *testing.T) {
	k := CacheKey{Scope: "query", Document: "abc", Operation: "GetUser", Variant: "v1"}
	assert.Equal(t, "query:abc:GetUser:v1", k.String())
	assert.Equal(t, "generate:abc::", CacheKey{Scope: "generate", Document: "abc"}.String())
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		c := NewMemoryCache()
		v, err := c.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("set and get", func(t *testing.T) {
		c := NewMemoryCache()
		require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
		v, err := c.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), v)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		now := time.Unix(1000, 0)
		c := NewMemoryCache()
		c.now = func() time.Time { return now }

		require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
		v, _ := c.Get(ctx, "a")
		assert.Equal(t, []byte("1"), v)

		now = now.Add(time.Minute)
		v, _ = c.Get(ctx, "a")
		assert.Nil(t, v)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("delete prefix and clear", func(t *testing.T) {
		c := NewMemoryCache()
		require.NoError(t, c.Set(ctx, "query:1", []byte("1"), 0))
		require.NoError(t, c.Set(ctx, "query:2", []byte("2"), 0))
		require.NoError(t, c.Set(ctx, "generate:1", []byte("3"), 0))

		require.NoError(t, c.DeletePrefix(ctx, "query:"))
		assert.Equal(t, 1, c.Len())

		require.NoError(t, c.Delete(ctx, "generate:1"))
		assert.Equal(t, 0, c.Len())

		require.NoError(t, c.Set(ctx, "x", []byte("x"), 0))
		require.NoError(t, c.Clear(ctx))
		assert.Equal(t, 0, c.Len())
	})
}
