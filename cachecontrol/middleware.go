package cachecontrol

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/genwire"
)

// cacheScope is the CacheKey scope of cached query results.
const cacheScope = "query"

// Request is one GraphQL request seen by the middleware.
type Request struct {
	Query         string
	OperationName string
	Variables     map[string]any
	// Principal identifies the caller. Results with a PRIVATE hint are only
	// cached when it is set, and only for that caller.
	Principal string
	// SkipCache bypasses the cache for this request.
	SkipCache bool
}

// Handler executes a request and returns its serialized result.
type Handler func(ctx context.Context, req *Request) ([]byte, error)

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware)

// WithOptions sets the options used to compute hints.
func WithOptions(opts Options) MiddlewareOption {
	return func(m *Middleware) {
		m.opts = opts.withDefaults()
	}
}

// WithEnabled turns caching on or off. It is on by default.
func WithEnabled(enabled bool) MiddlewareOption {
	return func(m *Middleware) {
		m.enabled = enabled
	}
}

// WithLogger sets the middleware logger.
func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(m *Middleware) {
		if l != nil {
			m.log = l
		}
	}
}

// Middleware serves cacheable queries from a genwire.Cache and stores the
// results of executed ones for their maxAge.
type Middleware struct {
	schema  *ast.Schema
	cache   genwire.Cache
	opts    Options
	enabled bool
	log     *slog.Logger

	mu    sync.Mutex
	hints map[string]*Result // by document hash and operation name
}

// NewMiddleware returns a Middleware computing hints against schema and
// storing results in cache.
func NewMiddleware(schema *ast.Schema, cache genwire.Cache, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		schema:  schema,
		cache:   cache,
		opts:    Options{}.withDefaults(),
		enabled: true,
		log:     slog.Default(),
		hints:   make(map[string]*Result),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wrap returns a Handler that consults the cache before calling next.
// Requests that cannot be parsed, that are not cacheable or that fail are
// passed through untouched. Cache failures are logged and never fail the
// request.
func (m *Middleware) Wrap(next Handler) Handler {
	return func(ctx context.Context, req *Request) ([]byte, error) {
		if !m.enabled || req.SkipCache {
			return next(ctx, req)
		}
		hint, err := m.Hint(req.Query, req.OperationName)
		if err != nil {
			m.log.Debug("genwire: no cache hint", "operation", req.OperationName, "error", err)
			return next(ctx, req)
		}
		key, ok := m.key(req, hint)
		if !ok {
			return next(ctx, req)
		}

		cached, err := m.cache.Get(ctx, key)
		switch {
		case err != nil:
			m.log.Warn("genwire: cache read failed", "key", key, "error", err)
		case cached != nil:
			m.log.Debug("genwire: cache hit", "key", key)
			return cached, nil
		}

		res, err := next(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := m.cache.Set(ctx, key, res, time.Duration(hint.MaxAge)*time.Second); err != nil {
			m.log.Warn("genwire: cache write failed", "key", key, "error", err)
		}
		return res, nil
	}
}

// Hint returns the cache hint of the named operation in query. Hints are
// remembered per document.
func (m *Middleware) Hint(query, operation string) (*Result, error) {
	id := hashString(query) + "#" + operation
	m.mu.Lock()
	r, ok := m.hints[id]
	m.mu.Unlock()
	if ok {
		return r, nil
	}

	doc, errs := gqlparser.LoadQuery(m.schema, query)
	if len(errs) > 0 {
		return nil, errs
	}
	r, err := ForOperation(m.schema, doc, operation, m.opts)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.hints[id] = r
	m.mu.Unlock()
	return r, nil
}

// Invalidate drops every cached query result.
func (m *Middleware) Invalidate(ctx context.Context) error {
	return m.cache.DeletePrefix(ctx, cacheScope+":")
}

func (m *Middleware) key(req *Request, hint *Result) (string, bool) {
	if !hint.Cacheable() {
		return "", false
	}
	vars, err := hashVariables(req.Variables)
	if err != nil {
		m.log.Debug("genwire: variables not hashable", "error", err)
		return "", false
	}
	if hint.Scope == ScopePrivate {
		if req.Principal == "" {
			return "", false
		}
		vars += "@" + req.Principal
	}
	return genwire.CacheKey{
		Scope:     cacheScope,
		Document:  hashString(req.Query),
		Operation: hint.Operation,
		Variant:   vars,
	}.String(), true
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// hashVariables hashes vars independently of map iteration order.
func hashVariables(vars map[string]any) (string, error) {
	if len(vars) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(vars); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:16]), nil
}
