package cachecontrol

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

	"github.com/syssam/genwire"
)

// recordingCache remembers the TTL of every write.
type recordingCache struct {
	*genwire.MemoryCache
	mu   sync.Mutex
	ttls []time.Duration
}

func (c *recordingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	c.ttls = append(c.ttls, ttl)
	c.mu.Unlock()
	return c.MemoryCache.Set(ctx, key, value, ttl)
}

// failingCache fails every operation.
type failingCache struct{}

var errCacheDown = errors.New("cache down")

func (failingCache) Get(context.Context, string) ([]byte, error) { return nil, errCacheDown }
func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errCacheDown
}
func (failingCache) Delete(context.Context, string) error { return errCacheDown }
func (failingCache) DeletePrefix(context.Context, string) error { return errCacheDown }
func (failingCache) Clear(context.Context) error { return errCacheDown }

type counter struct {
	calls atomic.Int32
}

func (c *counter) handle(_ context.Context, req *Request) ([]byte, error) {
	n := c.calls.Add(1)
	return fmt.Appendf(nil, `{"call":%d,"vars":%d}`, n, len(req.Variables)), nil
}

func newMiddleware(t *testing.T, opts ...MiddlewareOption) (*Middleware, *recordingCache) {
	t.Helper()
	cache := &recordingCache{MemoryCache: genwire.NewMemoryCache()}
	opts = append([]MiddlewareOption{WithOptions(Options{DefaultMaxAge: 60})}, opts...)
	return NewMiddleware(loadSchema(t), cache, opts...), cache
}

func TestMiddlewareServesFromCache(t *testing.T) {
	t.Parallel()
	m, cache := newMiddleware(t)
	var c counter
	h := m.Wrap(c.handle)
	ctx := context.Background()
	req := &Request{Query: `{ posts { title } }`}

	first, err := h(ctx, req)
	require.NoError(t, err)
	second, err := h(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, c.calls.Load())
	assert.Equal(t, []time.Duration{300 * time.Second}, cache.ttls)
}

func TestMiddlewareKeysOnVariables(t *testing.T) {
	t.Parallel()
	m, _ := newMiddleware(t)
	var c counter
	h := m.Wrap(c.handle)
	ctx := context.Background()
	query := `query Post($id: ID!) { post(id: $id) { title } }`

	for range 2 {
		for _, id := range []string{"1", "2"} {
			_, err := h(ctx, &Request{Query: query, Variables: map[string]any{"id": id}})
			require.NoError(t, err)
		}
	}
	assert.EqualValues(t, 2, c.calls.Load())
}

func TestMiddlewarePrivateResults(t *testing.T) {
	t.Parallel()
	m, _ := newMiddleware(t)
	var c counter
	h := m.Wrap(c.handle)
	ctx := context.Background()
	query := `{ me { name } }`

	// Without a principal nothing is cached.
	for range 2 {
		_, err := h(ctx, &Request{Query: query})
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, c.calls.Load())

	// With one, each caller gets its own entry.
	for range 2 {
		for _, who := range []string{"alice", "bob"} {
			_, err := h(ctx, &Request{Query: query, Principal: who})
			require.NoError(t, err)
		}
	}
	assert.EqualValues(t, 4, c.calls.Load())
}

func TestMiddlewarePassThrough(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []MiddlewareOption
		req  *Request
	}{
		{"disabled", []MiddlewareOption{WithEnabled(false)}, &Request{Query: `{ posts { title } }`}},
		{"skip cache", nil, &Request{Query: `{ posts { title } }`, SkipCache: true}},
		{"mutation", nil, &Request{Query: `mutation { like(id: "1") { title } }`}},
		{"invalid query", nil, &Request{Query: `{ nope }`}},
		{"unknown operation", nil, &Request{Query: `query A { version }`, OperationName: "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, cache := newMiddleware(t, tt.opts...)
			var c counter
			h := m.Wrap(c.handle)
			for range 2 {
				_, err := h(context.Background(), tt.req)
				require.NoError(t, err)
			}
			assert.EqualValues(t, 2, c.calls.Load())
			assert.Zero(t, cache.Len())
		})
	}
}

func TestMiddlewareDoesNotCacheFailures(t *testing.T) {
	m, cache := newMiddleware(t)
	boom := errors.New("boom")
	h := m.Wrap(func(context.Context, *Request) ([]byte, error) { return nil, boom })

	_, err := h(context.Background(), &Request{Query: `{ posts { title } }`})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, cache.Len())
}

func TestMiddlewareToleratesCacheFailures(t *testing.T) {
	m := NewMiddleware(loadSchema(t), failingCache{}, WithOptions(Options{DefaultMaxAge: 60}))
	var c counter
	h := m.Wrap(c.handle)

	for range 2 {
		res, err := h(context.Background(), &Request{Query: `{ posts { title } }`})
		require.NoError(t, err)
		assert.NotEmpty(t, res)
	}
	assert.EqualValues(t, 2, c.calls.Load())
}

func TestMiddlewareInvalidate(t *testing.T) {
	m, cache := newMiddleware(t)
	var c counter
	h := m.Wrap(c.handle)
	ctx := context.Background()
	req := &Request{Query: `{ posts { title } }`}

	_, err := h(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	require.NoError(t, m.Invalidate(ctx))
	assert.Zero(t, cache.Len())

	_, err = h(ctx, req)
	require.NoError(t, err)
	assert.EqualValues(t, 2, c.calls.Load())
}

func TestMiddlewareHintIsRemembered(t *testing.T) {
	m, _ := newMiddleware(t)
	a, err := m.Hint(`{ count }`, "")
	require.NoError(t, err)
	b, err := m.Hint(`{ count }`, "")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 5, a.MaxAge)
}
