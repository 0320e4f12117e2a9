// Package upgrade replaces the device image and reboots when the installed
// software cannot complete enrollment.
package upgrade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/eoscli"
)

const (
	DefaultFlashDir  = "/mnt/flash"
	DefaultImageName = "EOS.swi"
	DefaultTimeout   = 30 * time.Minute
	backupSuffix     = ".bak"
)

var (
	ErrImageURLMissing = errors.New("specify eosUrl to upgrade the device image; the installed software cannot complete enrollment")
	// ErrRebooting is returned once the reload has been issued. It is not a
	// failure: the next boot reruns provisioning on the new image.
	ErrRebooting = errors.New("device is rebooting into the upgraded image")
)

type Config struct {
	EOSURL    string        `mapstructure:"eos_url"`
	FlashDir  string        `mapstructure:"flash_dir"`
	ImageName string        `mapstructure:"image_name"`
	Timeout   time.Duration `mapstructure:"timeout"`
	S3Region  string        `mapstructure:"s3_region"`
}

type Service struct {
	cli        eoscli.Runner
	config     Config
	httpClient *http.Client
}

func NewService(cli eoscli.Runner, config Config, proxy string) (*Service, error) {
	if config.FlashDir == "" {
		config.FlashDir = DefaultFlashDir
	}
	if config.ImageName == "" {
		config.ImageName = DefaultImageName
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &Service{
		cli:        cli,
		config:     config,
		httpClient: &http.Client{Transport: transport, Timeout: config.Timeout},
	}, nil
}

// Upgrade installs the configured image, makes it the boot image and reloads
// the device. On success it returns ErrRebooting. If anything fails before the
// reload the previous image is put back.
func (s *Service) Upgrade(ctx context.Context) error {
	if s.config.EOSURL == "" {
		return ErrImageURLMissing
	}

	image := filepath.Join(s.config.FlashDir, s.config.ImageName)
	backup := image + backupSuffix

	hadImage, err := exists(image)
	if err != nil {
		return err
	}
	if hadImage {
		if err := os.Rename(image, backup); err != nil {
			return fmt.Errorf("failed to back up %s: %w", image, err)
		}
		slog.Info("Backed up current image", "path", backup)
	}

	if err := s.install(ctx, image); err != nil {
		s.restore(image, backup, hadImage)
		return err
	}

	if hadImage {
		if err := os.Remove(backup); err != nil {
			slog.Warn("Failed to remove image backup", "path", backup, "error", err)
		}
	}

	slog.Info("Reloading device into upgraded image")
	if _, err := s.cli.Run(ctx, "reload now"); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	return ErrRebooting
}

func (s *Service) install(ctx context.Context, image string) error {
	if err := s.download(ctx, s.config.EOSURL, image); err != nil {
		return err
	}

	commands := append(eoscli.Configure("boot system flash:"+s.config.ImageName), "write memory")
	if _, err := s.cli.Run(ctx, commands...); err != nil {
		return fmt.Errorf("failed to set boot image: %w", err)
	}
	return nil
}

func (s *Service) restore(image, backup string, hadImage bool) {
	if err := os.Remove(image); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("Failed to remove new image", "path", image, "error", err)
	}
	if !hadImage {
		return
	}
	if err := os.Rename(backup, image); err != nil {
		slog.Error("Failed to restore image backup", "path", backup, "error", err)
		return
	}
	slog.Info("Restored previous image", "path", image)
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
}
