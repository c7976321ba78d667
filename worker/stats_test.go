package worker_test

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/genwire/client"
	"github.com/syssam/genwire/protocol"
	"github.com/syssam/genwire/worker"
)

func TestStatsSnapshot(t *testing.T) {
	var s worker.Stats
	s.Requests.Add(4)
	s.Failed.Add(1)
	s.Documents.Add(6)
	s.TotalDuration.Add(int64(2 * time.Second))
	s.SlowRequests.Add(1)

	snap := s.Snapshot()
	assert.Equal(t, int64(4), snap.Requests)
	assert.Equal(t, 500*time.Millisecond, snap.AvgDuration())
	assert.Equal(t, "requests=4 failed=1 documents=6 duration=2s avg=500ms slow=1", snap.String())

	s.Reset()
	assert.Equal(t, worker.StatsSnapshot{}, s.Snapshot())
	assert.Zero(t, s.Snapshot().AvgDuration())
}

func TestServerRecordsStats(t *testing.T) {
	t.Parallel()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	var slow atomic.Int64
	gen := worker.GeneratorFunc(func(ctx context.Context, req *protocol.GeneratorRequest) (*protocol.GeneratorResponse, error) {
		switch req.Option("mode", "") {
		case "fail":
			return nil, errors.New("boom")
		case "slow":
			time.Sleep(80 * time.Millisecond)
		}
		return echo(ctx, req)
	})
	srv := worker.NewServer(reqR, respW, gen,
		worker.WithSlowThreshold(50*time.Millisecond),
		worker.WithSlowRequestHook(func(_ context.Context, _ *protocol.GeneratorRequest, d time.Duration) {
			slow.Add(1)
			assert.Greater(t, d, 50*time.Millisecond)
		}),
	)
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(context.Background()) }()

	c, err := client.New(respR, reqW)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	for _, mode := range []string{"", "fail", "slow"} {
		_, err := c.Generate(ctx, &protocol.GeneratorRequest{Options: map[string]string{"mode": mode}})
		require.NoError(t, err)
	}
	require.NoError(t, c.Shutdown(ctx))
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	snap := srv.Stats().Snapshot()
	assert.Equal(t, int64(3), snap.Requests)
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, int64(2), snap.Documents)
	assert.Equal(t, int64(1), snap.SlowRequests)
	assert.Equal(t, int64(1), slow.Load())
	assert.GreaterOrEqual(t, snap.TotalDuration, 80*time.Millisecond)
}
