package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/bootstrap"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Log       LogConfig
	Bootstrap bootstrap.Config `mapstructure:",squash"`
}

// Names used by earlier releases of the bootstrap script.
var envAliases = map[string]string{
	"address":          "CVADDR",
	"token":            "ENROLLMENT_TOKEN",
	"proxy":            "CVPROXY",
	"upgrade.eos_url":  "EOSURL",
	"time.ntp_servers": "NTPSERVER",
	"device.sysname":   "SYSNAME",
}

var flagKeys = map[string]string{
	"address":    "address",
	"token":      "token",
	"proxy":      "proxy",
	"eos-url":    "upgrade.eos_url",
	"ntp-server": "time.ntp_servers",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// LoadConfig reads .env, the optional application.yaml, the environment and
// the command line, in increasing order of precedence.
func LoadConfig(args []string) (Config, error) {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("ztp-bootstrap", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to application.yaml")
	fs.String("address", "", "controller address (host, host:port or URL)")
	fs.String("token", "", "one-time enrollment token")
	fs.String("proxy", "", "proxy URL for controller traffic")
	fs.String("eos-url", "", "image URL used when the device must be upgraded (http, https or s3)")
	fs.StringSlice("ntp-server", nil, "NTP server to synchronise with, repeatable")
	fs.String("log-level", "", "ERROR, WARNING, INFO or DEBUG")
	fs.String("log-format", "", "text or json")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if *configFile != "" {
		v.SetConfigFile(*configFile)
	} else {
		v.SetConfigName("application")
		v.AddConfigPath(".")
		v.AddConfigPath("/mnt/flash/ztp")
		v.AddConfigPath("./cmd/ztp-bootstrap")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", LOG_LEVEL_INFO)
	v.SetDefault("log.format", LOG_FORMAT_TEXT)

	for key, env := range envAliases {
		_ = v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return Config{}, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if *configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	config.Bootstrap.ConfigFile = v.ConfigFileUsed()
	return config, nil
}

// Redacted renders the config for debug output with secrets masked.
func (c Config) Redacted() string {
	if c.Bootstrap.Token != "" {
		c.Bootstrap.Token = "***"
	}
	configJSON, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(configJSON)
}
