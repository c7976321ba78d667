package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/syssam/genwire/protocol"
)

// DefaultSlowThreshold is the duration after which a request counts as slow.
const DefaultSlowThreshold = 5 * time.Second

// Stats holds request statistics of a Server.
type Stats struct {
	// Requests is the number of requests answered.
	Requests atomic.Int64
	// Failed is the number of responses carrying errors.
	Failed atomic.Int64
	// Documents is the number of documents returned.
	Documents atomic.Int64
	// TotalDuration is the total time spent generating.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowRequests is the count of requests exceeding the slow threshold.
	SlowRequests atomic.Int64
}

// Snapshot returns a snapshot of the current statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Requests:      s.Requests.Load(),
		Failed:        s.Failed.Load(),
		Documents:     s.Documents.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowRequests:  s.SlowRequests.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *Stats) Reset() {
	s.Requests.Store(0)
	s.Failed.Store(0)
	s.Documents.Store(0)
	s.TotalDuration.Store(0)
	s.SlowRequests.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of request statistics.
type StatsSnapshot struct {
	Requests      int64
	Failed        int64
	Documents     int64
	TotalDuration time.Duration
	SlowRequests  int64
}

// AvgDuration returns the average request duration.
func (s StatsSnapshot) AvgDuration() time.Duration {
	if s.Requests == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Requests)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"requests=%d failed=%d documents=%d duration=%s avg=%s slow=%d",
		s.Requests, s.Failed, s.Documents, s.TotalDuration, s.AvgDuration(), s.SlowRequests,
	)
}

// LogValue implements slog.LogValuer.
func (s StatsSnapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("requests", s.Requests),
		slog.Int64("failed", s.Failed),
		slog.Int64("documents", s.Documents),
		slog.Duration("duration", s.TotalDuration),
		slog.Int64("slow", s.SlowRequests),
	)
}

// SlowRequestHook is called when a request takes longer than the slow
// threshold.
type SlowRequestHook func(ctx context.Context, req *protocol.GeneratorRequest, duration time.Duration)

// WithSlowThreshold sets the threshold for slow request detection.
// Default is DefaultSlowThreshold.
func WithSlowThreshold(d time.Duration) Option {
	return func(s *Server) {
		s.slowThreshold = d
	}
}

// WithSlowRequestHook sets a callback for slow requests. Without one, slow
// requests are logged.
func WithSlowRequestHook(hook SlowRequestHook) Option {
	return func(s *Server) {
		s.slowHook = hook
	}
}

// Stats returns the statistics of the server.
func (s *Server) Stats() *Stats {
	return &s.stats
}

func (s *Server) record(ctx context.Context, req *protocol.GeneratorRequest, resp *protocol.GeneratorResponse, duration time.Duration) {
	s.stats.Requests.Add(1)
	s.stats.Documents.Add(int64(len(resp.Documents)))
	s.stats.TotalDuration.Add(int64(duration))
	if resp.HasErrors() {
		s.stats.Failed.Add(1)
	}
	if duration <= s.slowThreshold {
		return
	}
	s.stats.SlowRequests.Add(1)
	if s.slowHook != nil {
		s.slowHook(ctx, req, duration)
		return
	}
	s.log.Warn("genwire: slow request", "id", req.ID, "duration", duration, "documents", len(req.DocumentFileNames))
}
