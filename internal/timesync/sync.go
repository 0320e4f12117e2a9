// Package timesync sets the device clock before enrollment, either directly or
// through NTP.
package timesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/eoscli"
	"github.com/cenkalti/backoff/v4"
)

const (
	MaxChecks       = 5
	InitialInterval = 10 * time.Second
	Multiplier      = 2
)

var (
	ErrNotSynchronized   = errors.New("ntp did not synchronise")
	ErrConflictingModes  = errors.New("clock and ntp time synchronisation are mutually exclusive")
	ErrTimezoneWithoutDT = errors.New("clock timezone requires clock datetime")
)

type Config struct {
	Timezone   string   `mapstructure:"timezone"`
	DateTime   string   `mapstructure:"datetime"`
	NTPServers []string `mapstructure:"ntp_servers"`
}

func (c Config) clockMode() bool { return c.DateTime != "" }
func (c Config) ntpMode() bool   { return len(c.NTPServers) > 0 }

func (c Config) Validate() error {
	if c.clockMode() && c.ntpMode() {
		return ErrConflictingModes
	}
	if c.Timezone != "" && !c.clockMode() {
		return ErrTimezoneWithoutDT
	}
	return nil
}

type Service struct {
	cli    eoscli.Runner
	config Config
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewService(cli eoscli.Runner, config Config) *Service {
	return &Service{cli: cli, config: config, sleep: sleepContext}
}

func (s *Service) Enabled() bool {
	return s.config.clockMode() || s.config.ntpMode()
}

// Sync applies the configured mode. It is a no-op when neither mode is set.
func (s *Service) Sync(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return err
	}
	switch {
	case s.config.clockMode():
		return s.setClock(ctx)
	case s.config.ntpMode():
		return s.syncNTP(ctx)
	}
	return nil
}

func (s *Service) setClock(ctx context.Context) error {
	if s.config.Timezone != "" {
		if _, err := s.cli.Run(ctx, eoscli.Configure("clock timezone "+s.config.Timezone)...); err != nil {
			return fmt.Errorf("failed to set timezone: %w", err)
		}
	}
	if _, err := s.cli.Run(ctx, "clock set "+s.config.DateTime); err != nil {
		return fmt.Errorf("failed to set clock: %w", err)
	}
	slog.Info("Device clock set", "timezone", s.config.Timezone, "datetime", s.config.DateTime)
	return nil
}

func (s *Service) syncNTP(ctx context.Context) error {
	commands := make([]string, 0, len(s.config.NTPServers))
	for _, server := range s.config.NTPServers {
		commands = append(commands, "ntp server "+server)
	}
	if _, err := s.cli.Run(ctx, eoscli.Configure(commands...)...); err != nil {
		return fmt.Errorf("failed to configure ntp servers: %w", err)
	}
	slog.Info("Configured NTP servers", "servers", s.config.NTPServers)

	b := newBackOff()
	for check := 1; check <= MaxChecks; check++ {
		wait := b.NextBackOff()
		slog.Info("Waiting for NTP synchronisation", "check", check, "wait", wait)
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}

		out, err := s.cli.Run(ctx, "show ntp status")
		if err != nil {
			slog.Warn("NTP status query failed", "check", check, "error", err)
			continue
		}
		if synchronised(string(out)) {
			slog.Info("NTP synchronised", "check", check)
			return nil
		}
	}
	return fmt.Errorf("%w after %d checks", ErrNotSynchronized, MaxChecks)
}

func newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     InitialInterval,
		RandomizationFactor: 0,
		Multiplier:          Multiplier,
		MaxInterval:         InitialInterval << (MaxChecks - 1),
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

func synchronised(status string) bool {
	status = strings.ToLower(status)
	return strings.Contains(status, "synchronised") && !strings.Contains(status, "unsynchronised")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
