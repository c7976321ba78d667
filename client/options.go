package client

import (
	"io"
	"log/slog"
	"time"
)

// DefaultGracePeriod is how long Process.Close waits for the worker to exit
// before killing it.
const DefaultGracePeriod = 5 * time.Second

// options holds the settings shared by New and Start.
type options struct {
	log      *slog.Logger
	maxFrame int
	stderr   io.Writer
	grace    time.Duration
}

func newOptions(opts []Option) *options {
	o := &options{
		log:   slog.Default(),
		grace: DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a Client or a Process.
type Option func(*options)

// WithLogger sets the logger for the client and its bus.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMaxFrameSize bounds the size of inbound frames.
func WithMaxFrameSize(n int) Option {
	return func(o *options) {
		o.maxFrame = n
	}
}

// WithStderr forwards the standard error of a worker started by Start.
// By default it is discarded.
func WithStderr(w io.Writer) Option {
	return func(o *options) {
		o.stderr = w
	}
}

// WithGracePeriod sets how long Process.Close waits before killing the
// worker.
func WithGracePeriod(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.grace = d
		}
	}
}
