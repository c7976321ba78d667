package generator

import (
	"errors"
	"log/slog"
	"maps"
	"runtime"
	"time"

	"github.com/syssam/genwire"
	"github.com/syssam/genwire/cachecontrol"
)

// DefaultHeader is the comment placed at the top of every generated file.
const DefaultHeader = "Code generated by genwire. DO NOT EDIT."

// Config holds the generator settings.
type Config struct {
	// Header is the comment placed at the top of generated Go files.
	Header string
	// Workers bounds the number of files emitted in parallel.
	Workers int
	// Scalars maps custom GraphQL scalars to Go types.
	Scalars map[string]GoType
	// CacheControl holds the defaults for computed cache hints.
	CacheControl cachecontrol.Options
	// Cache, when set, stores responses keyed by a hash of the inputs.
	Cache    genwire.Cache
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// GoType names a Go type: the identifier Name in the package at Path.
// An empty Path names a predeclared type.
type GoType struct {
	Path string
	Name string
}

// NewConfig returns a Config with defaults applied, then opts.
func NewConfig(opts ...Option) (*Config, error) {
	c := &Config{
		Header:  DefaultHeader,
		Workers: runtime.GOMAXPROCS(0),
		Scalars: make(map[string]GoType),
		Logger:  slog.Default(),
	}
	if err := c.Apply(opts...); err != nil {
		return nil, err
	}
	return c, nil
}

// Option configures code generation.
type Option func(*Config) error

// WithHeader sets the file header comment.
func WithHeader(header string) Option {
	return func(c *Config) error {
		c.Header = header
		return nil
	}
}

// WithWorkers sets the number of parallel workers.
func WithWorkers(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return NewConfigError("Workers", n, "must be positive")
		}
		c.Workers = n
		return nil
	}
}

// WithScalar maps the GraphQL scalar name to a Go type.
// For example: WithScalar("Time", "time", "Time").
func WithScalar(name, pkgPath, typeName string) Option {
	return func(c *Config) error {
		if name == "" || typeName == "" {
			return NewConfigError("Scalar", name, "scalar and type name cannot be empty")
		}
		if c.Scalars == nil {
			c.Scalars = make(map[string]GoType)
		}
		c.Scalars[name] = GoType{Path: pkgPath, Name: typeName}
		return nil
	}
}

// WithScalars adds several scalar mappings at once.
func WithScalars(scalars map[string]GoType) Option {
	return func(c *Config) error {
		if c.Scalars == nil {
			c.Scalars = make(map[string]GoType)
		}
		maps.Copy(c.Scalars, scalars)
		return nil
	}
}

// WithCacheControl sets the defaults used to compute cache hints. Requests
// may override them with the cacheControl.* options.
func WithCacheControl(opts cachecontrol.Options) Option {
	return func(c *Config) error {
		switch opts.DefaultScope {
		case "", cachecontrol.ScopePublic, cachecontrol.ScopePrivate:
		default:
			return NewConfigError("CacheControl.DefaultScope", opts.DefaultScope, "use PUBLIC or PRIVATE")
		}
		if opts.DefaultMaxAge < 0 {
			return NewConfigError("CacheControl.DefaultMaxAge", opts.DefaultMaxAge, "cannot be negative")
		}
		c.CacheControl = opts
		return nil
	}
}

// WithCache enables the response cache. A zero ttl keeps entries until
// they are evicted.
func WithCache(cache genwire.Cache, ttl time.Duration) Option {
	return func(c *Config) error {
		if cache == nil {
			return NewConfigError("Cache", nil, "cache cannot be nil")
		}
		c.Cache = cache
		c.CacheTTL = ttl
		return nil
	}
}

// WithLogger sets the generator logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) error {
		if l == nil {
			return NewConfigError("Logger", nil, "logger cannot be nil")
		}
		c.Logger = l
		return nil
	}
}

// Apply applies options to the config.
// It returns the first error encountered.
func (c *Config) Apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return err
		}
	}
	return nil
}

// ApplyAll applies options and collects all errors.
// Returns a joined error if any options failed.
func (c *Config) ApplyAll(opts ...Option) error {
	var errs []error
	for _, opt := range opts {
		if err := opt(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
