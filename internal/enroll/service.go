package enroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/certs"
)

const (
	DefaultAgentPath      = "/usr/bin/TerminAttr"
	DefaultTokenFile      = "/tmp/token.tok"
	DefaultTimeout        = 60 * time.Second
	DefaultCertDir        = "/persist/secure/ssl/terminattr/primary"
	waitDelay             = 2 * time.Second
	maxOutputInErrorBytes = 4096
)

// ErrCapabilityMissing means the local agent could not perform the
// enrollment at all (absent, or too old to understand its flags and hanging
// until the timeout). Only an image upgrade recovers from it.
var ErrCapabilityMissing = errors.New("enrollment agent lacks a required capability")

type Config struct {
	AgentPath      string        `mapstructure:"agent_path"`
	TokenFile      string        `mapstructure:"token_file"`
	Timeout        time.Duration `mapstructure:"timeout"`
	DefaultCertDir string        `mapstructure:"default_cert_dir"`
}

type Service struct {
	config Config
}

func NewService(config Config) *Service {
	if config.AgentPath == "" {
		config.AgentPath = DefaultAgentPath
	}
	if config.TokenFile == "" {
		config.TokenFile = DefaultTokenFile
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.DefaultCertDir == "" {
		config.DefaultCertDir = DefaultCertDir
	}
	return &Service{config: config}
}

// Enroll exchanges the one-time token for a client certificate. The agent
// stores the issued material itself; use Locate to find it afterwards.
func (s *Service) Enroll(ctx context.Context, token, enrollAddr, tokenType, proxy string) error {
	if err := os.WriteFile(s.config.TokenFile, []byte(token), 0644); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	args := []string{
		"-cvauth", tokenType + "," + s.config.TokenFile,
		"-cvaddr", enrollAddr,
		"-enrollonly",
	}
	if proxy != "" {
		args = append(args, "-cvproxy="+proxy)
	}

	slog.Info("Enrolling device", "agent", s.config.AgentPath, "enroll_addr", enrollAddr, "token_type", tokenType, "timeout", s.config.Timeout)

	runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.config.AgentPath, args...)
	cmd.WaitDelay = waitDelay
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %v", ErrCapabilityMissing, err)
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: agent did not finish within %s", ErrCapabilityMissing, s.config.Timeout)
		}
		return fmt.Errorf("enrollment agent failed: %w\n%s", err, truncate(out))
	}

	slog.Info("Exchanged enrollment token for client certificates")
	return nil
}

// Locate asks the agent where it stored the credential for enrollAddr. When
// the agent cannot answer, the well-known default location is returned.
func (s *Service) Locate(ctx context.Context, enrollAddr string) (certs.Credential, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.config.AgentPath, "-cvaddr", enrollAddr, "-certsconfig")
	cmd.WaitDelay = waitDelay
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return certs.Credential{}, ctx.Err()
		}
		cred := certs.DefaultCredential(s.config.DefaultCertDir)
		slog.Warn("Agent could not report certificate paths, using default location",
			"error", err,
			"cert_file", cred.CertFile,
			"key_file", cred.KeyFile)
		return cred, nil
	}

	var entries map[string]certs.Credential
	if err := json.Unmarshal(out, &entries); err != nil {
		return certs.Credential{}, fmt.Errorf("failed to parse agent certificate config: %w", err)
	}

	cred, ok := entries[enrollAddr]
	if !ok {
		return certs.Credential{}, fmt.Errorf("agent certificate config has no entry for %s", enrollAddr)
	}
	if cred.CertFile == "" || cred.KeyFile == "" {
		return certs.Credential{}, fmt.Errorf("agent certificate config for %s is incomplete", enrollAddr)
	}

	slog.Info("Obtained client certificate location from agent", "cert_file", cred.CertFile, "key_file", cred.KeyFile)
	return cred, nil
}

func truncate(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > maxOutputInErrorBytes {
		return s[:maxOutputInErrorBytes] + "..."
	}
	return s
}
