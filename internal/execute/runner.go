// Package execute runs the fetched bootstrap script as a child process.
package execute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"
)

const (
	ProxyEnv = "CVPROXY"

	// SignalExitBase is added to the number of a forwarded signal to form
	// the exit code.
	SignalExitBase = 127

	killGrace = 10 * time.Second
)

var forwardedSignals = []os.Signal{syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP}

// Runner owns the script's child process for its whole lifetime. It is the
// only component that signals the child.
type Runner struct {
	proxy   string
	signals <-chan os.Signal
}

func NewRunner(proxy string) *Runner {
	return &Runner{proxy: proxy}
}

// SetSignalSource replaces the process signal subscription, for callers that
// already receive signals themselves.
func (r *Runner) SetSignalSource(ch <-chan os.Signal) {
	r.signals = ch
}

// Run marks scriptPath executable, runs it and returns the exit code the
// bootstrap process should exit with. A termination signal received while
// the script runs is forwarded to it and yields 127+signal.
func (r *Runner) Run(ctx context.Context, scriptPath string) (int, error) {
	if err := os.Chmod(scriptPath, 0755); err != nil {
		return 1, fmt.Errorf("failed to make script executable: %w", err)
	}

	sigs := r.signals
	if sigs == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, forwardedSignals...)
		defer signal.Stop(ch)
		sigs = ch
	}

	cmd := exec.Command(scriptPath)
	cmd.Env = append(os.Environ(), ProxyEnv+"="+r.proxy)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("failed to start bootstrap script: %w", err)
	}
	slog.Info("Executing bootstrap script", "path", scriptPath, "pid", cmd.Process.Pid)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return exitCode(err)

	case sig := <-sigs:
		slog.Warn("Forwarding signal to bootstrap script", "signal", sig.String(), "pid", cmd.Process.Pid)
		if err := cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
			slog.Error("Failed to forward signal", "signal", sig.String(), "error", err)
		}
		r.reap(cmd, done)
		return SignalExitBase + signalNumber(sig), nil

	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return 1, ctx.Err()
	}
}

// reap waits for the signalled child, killing it if it ignores the signal.
func (r *Runner) reap(cmd *exec.Cmd, done <-chan error) {
	select {
	case <-done:
	case <-time.After(killGrace):
		slog.Warn("Bootstrap script did not exit after signal, killing it", "pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		<-done
	}
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 1, fmt.Errorf("bootstrap script failed: %w", err)
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal()), nil
	}
	return exitErr.ExitCode(), nil
}

func signalNumber(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return int(syscall.SIGTERM)
}
