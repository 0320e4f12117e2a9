// Package eoscli runs configuration and show commands through the device's
// non-interactive CLI.
package eoscli

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

const (
	DefaultPath      = "/usr/bin/FastCli"
	privilegeLevel   = "15"
	maxOutputInError = 2048
)

type Config struct {
	Path string `mapstructure:"path"`
}

// Runner is the subset of the CLI used by the time and upgrade steps.
type Runner interface {
	Run(ctx context.Context, commands ...string) ([]byte, error)
}

type CLI struct {
	path string
}

func New(config Config) *CLI {
	path := config.Path
	if path == "" {
		path = DefaultPath
	}
	return &CLI{path: path}
}

// Run executes the commands as a single privileged CLI session and returns
// the combined output. Commands are sent in order, one per line.
func (c *CLI) Run(ctx context.Context, commands ...string) ([]byte, error) {
	if len(commands) == 0 {
		return nil, nil
	}
	script := strings.Join(commands, "\n")

	slog.Debug("Running CLI commands", "commands", commands)

	out, err := exec.CommandContext(ctx, c.path, "-p", privilegeLevel, "-c", script).CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, fmt.Errorf("cli %q failed: %w: %s", commands[len(commands)-1], err, excerpt(out))
	}
	return out, nil
}

// Configure wraps commands in a configuration session.
func Configure(commands ...string) []string {
	session := make([]string, 0, len(commands)+2)
	session = append(session, "configure")
	session = append(session, commands...)
	return append(session, "end")
}

func excerpt(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > maxOutputInError {
		return s[:maxOutputInError] + "..."
	}
	return s
}
