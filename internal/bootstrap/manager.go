// Package bootstrap runs the provisioning flow: time sync, enrollment,
// certificate lookup, script fetch and script execution.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/address"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/certs"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/controller"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/enroll"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/eoscli"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/execute"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/sysinfo"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/timesync"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/upgrade"
)

type TimeSyncer interface {
	Sync(ctx context.Context) error
}

type Enroller interface {
	Enroll(ctx context.Context, token, enrollAddr, tokenType, proxy string) error
	Locate(ctx context.Context, enrollAddr string) (certs.Credential, error)
}

type IdentityReader interface {
	Read(ctx context.Context) (sysinfo.Identity, error)
}

type Controller interface {
	Redirect(ctx context.Context, redirectorURL, serial string) (string, error)
	FetchScript(ctx context.Context, endpoint string, headers map[string]string, dest string) error
}

type ScriptRunner interface {
	Run(ctx context.Context, scriptPath string) (int, error)
}

type Upgrader interface {
	Upgrade(ctx context.Context) error
}

// Deps are the collaborators of a Manager. NewDeps builds the production set.
type Deps struct {
	Time     TimeSyncer
	Enroller Enroller
	Identity IdentityReader
	// NewController is called once the client credential is known.
	NewController func(cred certs.Credential) (Controller, error)
	Runner        ScriptRunner
	Upgrader      Upgrader
}

func NewDeps(config Config) (Deps, error) {
	cli := eoscli.New(config.CLI)

	provider, err := sysinfo.NewProvider(config.Device)
	if err != nil {
		return Deps{}, err
	}

	upgrader, err := upgrade.NewService(cli, config.Upgrade, config.Proxy)
	if err != nil {
		return Deps{}, err
	}

	return Deps{
		Time:     timesync.NewService(cli, config.Time),
		Enroller: enroll.NewService(config.Enroll),
		Identity: sysinfo.NewReader(provider, config.Device),
		NewController: func(cred certs.Credential) (Controller, error) {
			client, err := controller.NewClient(controller.Config{
				Credential:         cred,
				Proxy:              config.Proxy,
				Timeout:            config.Controller.Timeout,
				CAFile:             config.Controller.CAFile,
				InsecureSkipVerify: config.Controller.InsecureSkipVerify,
			})
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		Runner:   execute.NewRunner(config.Proxy),
		Upgrader: upgrader,
	}, nil
}

type Manager struct {
	config Config
	deps   Deps
	now    func() time.Time
}

// NewManager validates config; nothing external has been touched when it
// returns an error.
func NewManager(config Config, deps Deps) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Manager{config: config.withDefaults(), deps: deps, now: time.Now}, nil
}

// Run executes the whole flow and returns the exit code for the process.
// A non-nil error always comes with a non-zero code.
func (m *Manager) Run(ctx context.Context) (int, error) {
	if err := m.deps.Time.Sync(ctx); err != nil {
		return 1, fmt.Errorf("time synchronisation failed: %w", err)
	}

	mode := address.DetectMode(m.config.Address, m.config.CloudDomain)
	profile := address.ProfileFor(mode)
	endpoint, err := address.Resolve(m.config.Address, mode)
	if err != nil {
		return 1, err
	}
	enrollAddr := address.EnrollAddr(endpoint, mode)
	slog.Info("Resolved controller address",
		"mode", mode.String(),
		"bootstrap_url", endpoint.String(),
		"enroll_addr", enrollAddr)

	if info := enroll.InspectToken(m.config.Token, m.now()); info.Expired {
		slog.Warn("Enrollment token appears to be expired", "expires_at", info.ExpiresAt, "issuer", info.Issuer)
	}

	if err := m.deps.Enroller.Enroll(ctx, m.config.Token, enrollAddr, profile.TokenType, m.config.Proxy); err != nil {
		if errors.Is(err, enroll.ErrCapabilityMissing) {
			return m.upgrade(ctx, err)
		}
		return 1, fmt.Errorf("enrollment failed: %w", err)
	}

	if m.config.Controller.ScrubToken {
		if err := scrubToken(m.config.ConfigFile, m.now()); err != nil {
			slog.Warn("Failed to remove enrollment token from config", "config_path", m.config.ConfigFile, "error", err)
		} else {
			slog.Info("Enrollment token removed from config", "config_path", m.config.ConfigFile)
		}
	}

	cred, err := m.deps.Enroller.Locate(ctx, enrollAddr)
	if err != nil {
		return 1, fmt.Errorf("failed to locate client certificate: %w", err)
	}
	if err := cred.Check(); err != nil {
		return 1, err
	}

	identity, err := m.deps.Identity.Read(ctx)
	if err != nil {
		return 1, fmt.Errorf("failed to read device identity: %w", err)
	}

	client, err := m.deps.NewController(cred)
	if err != nil {
		return 1, err
	}

	endpoint = m.redirect(ctx, client, endpoint, mode, identity.Serial)

	if err := client.FetchScript(ctx, endpoint.String(), identity.Headers(), m.config.ScriptPath); err != nil {
		return 1, fmt.Errorf("failed to fetch bootstrap script: %w", err)
	}

	code, err := m.deps.Runner.Run(ctx, m.config.ScriptPath)
	if err != nil {
		return code, err
	}
	if code != 0 {
		slog.Error("Bootstrap script exited with non-zero status", "exit_code", code)
	} else {
		slog.Info("Bootstrap script completed")
	}
	return code, nil
}

// redirect asks the redirector for the device's cluster. Failures keep the
// configured endpoint.
func (m *Manager) redirect(ctx context.Context, client Controller, endpoint address.Endpoint, mode address.Mode, serial string) address.Endpoint {
	redirectorURL, ok := address.RedirectorURL(endpoint, mode)
	if !ok {
		return endpoint
	}

	host, err := client.Redirect(ctx, redirectorURL.String(), serial)
	if err != nil {
		slog.Warn("No assignment found from redirector", "error", err)
		return endpoint
	}

	assigned, err := address.Resolve(host, mode)
	if err != nil {
		slog.Warn("Redirector returned an unusable assignment", "assignment", host, "error", err)
		return endpoint
	}
	slog.Info("Redirector assigned bootstrap endpoint", "bootstrap_url", assigned.String())
	return assigned
}

func (m *Manager) upgrade(ctx context.Context, cause error) (int, error) {
	slog.Warn("Enrollment agent cannot complete enrollment, upgrading image", "error", cause)

	err := m.deps.Upgrader.Upgrade(ctx)
	if errors.Is(err, upgrade.ErrRebooting) {
		slog.Info("Device is rebooting, provisioning resumes after boot")
		return 0, nil
	}
	if err == nil {
		err = errors.New("upgrade finished without reloading the device")
	}
	return 1, fmt.Errorf("%w: %w", cause, err)
}
