package dap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// Process is a debug adapter started by Spawn.
type Process struct {
	Client *Client
	Cmd    *exec.Cmd
}

// Spawn starts 'flutter debug-adapter' in dir and returns a client connected
// via the process's stdin/stdout pipes.
func Spawn(ctx context.Context, flutterPath, dir string, logger *slog.Logger) (*Process, error) {
	if flutterPath == "" {
		flutterPath = "flutter"
	}

	cmd := exec.CommandContext(ctx, flutterPath, "debug-adapter")
	cmd.Env = os.Environ()
	// Set platform-specific process attributes (process_unix.go / process_windows.go)
	setProcAttr(cmd)
	if dir != "" {
		cmd.Dir = dir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	// stdout carries the protocol; adapter diagnostics go to our stderr.
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("failed to start %s debug-adapter: %w", flutterPath, err)
	}

	return &Process{
		Client: NewClient(NewStdioTransport(stdin, stdout), logger),
		Cmd:    cmd,
	}, nil
}

// Dial connects to an adapter listening on a TCP address, retrying while it
// starts up.
func Dial(ctx context.Context, address string, maxRetries int, logger *slog.Logger) (*Client, error) {
	var transport *Transport
	var err error

	for i := 0; i < maxRetries; i++ {
		transport, err = NewTCPTransport(address)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to debug adapter at %s: %w", address, err)
	}

	return NewClient(transport, logger), nil
}

// Stop disconnects, closes the client and kills the adapter's process group.
func (p *Process) Stop(ctx context.Context, terminateDebuggee bool) error {
	logger := p.Client.logger
	if err := p.Client.Disconnect(ctx, terminateDebuggee); err != nil {
		logger.Warn("failed to disconnect debug adapter (continuing cleanup)", "error", err)
	}
	if err := p.Client.Close(); err != nil {
		logger.Warn("failed to close debug adapter client (continuing cleanup)", "error", err)
	}

	pid := 0
	if p.Cmd != nil && p.Cmd.Process != nil {
		pid = p.Cmd.Process.Pid
	}
	// Uses platform-specific implementation (process_unix.go / process_windows.go)
	if err := killProcessGroup(pid, p.Cmd); err != nil {
		return fmt.Errorf("failed to kill debug adapter (PID %d): %w", pid, err)
	}
	if p.Cmd != nil {
		_ = p.Cmd.Wait()
	}
	return nil
}
