package bootstrap

import (
	"errors"
	"strings"
	"time"

	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/address"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/enroll"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/eoscli"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/sysinfo"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/timesync"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/upgrade"
)

const DefaultScriptPath = "/tmp/bootstrap-script"

var (
	ErrMissingAddress = errors.New("address of the controller is missing")
	ErrMissingToken   = errors.New("enrollment token is missing")
)

type ControllerConfig struct {
	CAFile             string        `mapstructure:"ca_file"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	Timeout            time.Duration `mapstructure:"timeout"`
	ScrubToken         bool          `mapstructure:"scrub_token"`
}

type Config struct {
	Address     string `mapstructure:"address"`
	Token       string `mapstructure:"token"`
	Proxy       string `mapstructure:"proxy"`
	CloudDomain string `mapstructure:"cloud_domain"`
	ScriptPath  string `mapstructure:"script_path"`

	// ConfigFile is the file the configuration was loaded from, if any.
	ConfigFile string `mapstructure:"-"`

	Controller ControllerConfig `mapstructure:"controller"`
	Enroll     enroll.Config    `mapstructure:"enroll"`
	Device     sysinfo.Config   `mapstructure:"device"`
	Time       timesync.Config  `mapstructure:"time"`
	Upgrade    upgrade.Config   `mapstructure:"upgrade"`
	CLI        eoscli.Config    `mapstructure:"cli"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return ErrMissingAddress
	}
	if strings.TrimSpace(c.Token) == "" {
		return ErrMissingToken
	}
	return c.Time.Validate()
}

func (c Config) withDefaults() Config {
	if c.CloudDomain == "" {
		c.CloudDomain = address.DefaultCloudDomain
	}
	if c.ScriptPath == "" {
		c.ScriptPath = DefaultScriptPath
	}
	return c
}
