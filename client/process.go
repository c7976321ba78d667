package client

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// Process is a Client connected to a worker it started itself.
type Process struct {
	*Client

	cmd   *exec.Cmd
	log   *slog.Logger
	grace time.Duration

	closeOnce sync.Once
	waitErr   error
}

// Start runs name with args as a worker and connects a Client to its
// standard input and output. The worker is killed when ctx ends.
func Start(ctx context.Context, name string, args []string, opts ...Option) (*Process, error) {
	o := newOptions(opts)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = o.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("genwire/client: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("genwire/client: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("genwire/client: start %s: %w", name, err)
	}
	o.log.Debug("genwire: worker started", "cmd", name, "pid", cmd.Process.Pid)

	c, err := New(stdout, stdin, opts...)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	return &Process{Client: c, cmd: cmd, log: o.log, grace: o.grace}, nil
}

// Pid returns the operating system process ID of the worker.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Close disposes the client, which closes the worker's standard input, and
// waits for the worker to exit. A worker still running after the grace
// period is killed. The returned error is the worker's exit status.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		_ = p.Client.Close()

		done := make(chan error, 1)
		go func() { done <- p.cmd.Wait() }()

		timer := time.NewTimer(p.grace)
		defer timer.Stop()
		select {
		case p.waitErr = <-done:
		case <-timer.C:
			p.log.Warn("genwire: worker did not exit, killing it", "pid", p.cmd.Process.Pid)
			_ = p.cmd.Process.Kill()
			p.waitErr = <-done
		}
	})
	return p.waitErr
}
