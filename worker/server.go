package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/syssam/genwire/bus"
	"github.com/syssam/genwire/protocol"
)

// CodeGeneratorFailed is the GeneratorError code reported for a failure
// that carries no protocol errors of its own.
const CodeGeneratorFailed = "GENERATOR_FAILED"

// Generator produces the response to one request.
type Generator interface {
	Generate(ctx context.Context, req *protocol.GeneratorRequest) (*protocol.GeneratorResponse, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req *protocol.GeneratorRequest) (*protocol.GeneratorResponse, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, req *protocol.GeneratorRequest) (*protocol.GeneratorResponse, error) {
	return f(ctx, req)
}

// ErrorLister is implemented by errors that map to several protocol errors,
// such as a list of validation failures.
type ErrorLister interface {
	GeneratorErrors() []protocol.GeneratorError
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxFrameSize bounds the size of inbound frames.
func WithMaxFrameSize(n int) Option {
	return func(s *Server) {
		s.maxFrame = n
	}
}

// Server answers the requests read from one stream pair.
type Server struct {
	r        io.Reader
	w        io.Writer
	gen      Generator
	log      *slog.Logger
	maxFrame int

	stats         Stats
	slowThreshold time.Duration
	slowHook      SlowRequestHook
}

// NewServer returns a Server reading requests from r and writing responses
// to w.
func NewServer(r io.Reader, w io.Writer, gen Generator, opts ...Option) *Server {
	s := &Server{r: r, w: w, gen: gen, log: slog.Default(), slowThreshold: DefaultSlowThreshold}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve answers requests in arrival order until the client sends a close
// message or its stream ends, which both return nil, until the stream
// breaks, or until ctx ends. The streams are closed when Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	b := bus.New(s.r, s.w, bus.WithLogger(s.log), bus.WithMaxFrameSize(s.maxFrame))
	defer b.Close()

	var (
		msgs = make(chan protocol.Message)
		term = make(chan error, 1)
		stop = make(chan struct{})
	)
	defer close(stop)
	sub := b.Subscribe(bus.ObserverFuncs{
		Next: func(m protocol.Message) {
			select {
			case msgs <- m:
			case <-stop:
			}
		},
		Error:     func(err error) { term <- err },
		Completed: func() { term <- nil },
	})
	defer sub.Unsubscribe()

	s.log.Debug("genwire: worker serving")
	defer func() { s.log.Info("genwire: worker stopped", "stats", s.stats.Snapshot()) }()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-term:
			if err == nil {
				s.log.Debug("genwire: client stream ended")
			}
			return err
		case m := <-msgs:
			switch m := m.(type) {
			case *protocol.CloseMessage:
				s.log.Debug("genwire: close requested")
				return nil
			case *protocol.GeneratorRequest:
				if err := b.Send(ctx, s.handle(ctx, m)); err != nil {
					return err
				}
			default:
				s.log.Debug("genwire: ignoring message", "kind", m.Kind())
			}
		}
	}
}

// handle runs the generator. It always produces a response.
func (s *Server) handle(ctx context.Context, req *protocol.GeneratorRequest) *protocol.GeneratorResponse {
	start := time.Now()
	resp, err := s.gen.Generate(ctx, req)
	if resp == nil {
		resp = &protocol.GeneratorResponse{}
	}
	if err != nil {
		resp.Errors = append(resp.Errors, toGeneratorErrors(err)...)
	}
	resp.ID = req.ID
	duration := time.Since(start)
	s.record(ctx, req, resp, duration)
	s.log.Info("genwire: request served",
		"id", req.ID,
		"documents", len(resp.Documents),
		"errors", len(resp.Errors),
		"duration", duration,
	)
	return resp
}

func toGeneratorErrors(err error) []protocol.GeneratorError {
	var lister ErrorLister
	if errors.As(err, &lister) {
		if errs := lister.GeneratorErrors(); len(errs) > 0 {
			return errs
		}
	}
	var ge protocol.GeneratorError
	if errors.As(err, &ge) {
		return []protocol.GeneratorError{ge}
	}
	var gep *protocol.GeneratorError
	if errors.As(err, &gep) && gep != nil {
		return []protocol.GeneratorError{*gep}
	}
	return []protocol.GeneratorError{{Code: CodeGeneratorFailed, Message: err.Error()}}
}
