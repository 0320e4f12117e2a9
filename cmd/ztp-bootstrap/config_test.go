package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "application.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const sampleConfig = `
address: cvp.corp.example.com
token: from-file
log:
  level: DEBUG
  format: json
enroll:
  timeout: 90s
  token_file: /tmp/custom.tok
controller:
  ca_file: /etc/ztp/ca.pem
  scrub_token: true
device:
  tpm_schema: config
  cell_id: 2
time:
  ntp_servers:
    - 10.0.0.1
    - 10.0.0.2
upgrade:
  eos_url: https://images.corp.example.com/EOS-4.30.1F.swi
`

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	config, err := LoadConfig([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "cvp.corp.example.com", config.Bootstrap.Address)
	assert.Equal(t, "from-file", config.Bootstrap.Token)
	assert.Equal(t, "DEBUG", config.Log.Level)
	assert.Equal(t, "json", config.Log.Format)
	assert.Equal(t, 90*time.Second, config.Bootstrap.Enroll.Timeout)
	assert.Equal(t, "/tmp/custom.tok", config.Bootstrap.Enroll.TokenFile)
	assert.Equal(t, "/etc/ztp/ca.pem", config.Bootstrap.Controller.CAFile)
	assert.True(t, config.Bootstrap.Controller.ScrubToken)
	assert.Equal(t, "config", config.Bootstrap.Device.TPMSchema)
	assert.Equal(t, 2, config.Bootstrap.Device.CellID)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, config.Bootstrap.Time.NTPServers)
	assert.Equal(t, "https://images.corp.example.com/EOS-4.30.1F.swi", config.Bootstrap.Upgrade.EOSURL)
	assert.Equal(t, path, config.Bootstrap.ConfigFile)
}

func TestLoadConfigLegacyEnvironment(t *testing.T) {
	t.Setenv("CVADDR", "www.arista.io")
	t.Setenv("ENROLLMENT_TOKEN", "from-env")
	t.Setenv("CVPROXY", "http://proxy.corp:3128")
	t.Setenv("EOSURL", "s3://images/EOS.swi")
	t.Setenv("NTPSERVER", "10.0.0.1,10.0.0.2")
	t.Setenv("SYSNAME", "sw1")
	path := writeConfig(t, "log:\n  level: INFO\n")

	config, err := LoadConfig([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "www.arista.io", config.Bootstrap.Address)
	assert.Equal(t, "from-env", config.Bootstrap.Token)
	assert.Equal(t, "http://proxy.corp:3128", config.Bootstrap.Proxy)
	assert.Equal(t, "s3://images/EOS.swi", config.Bootstrap.Upgrade.EOSURL)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, config.Bootstrap.Time.NTPServers)
	assert.Equal(t, "sw1", config.Bootstrap.Device.Sysname)
}

func TestLoadConfigFlagsOverrideFileAndEnv(t *testing.T) {
	t.Setenv("ENROLLMENT_TOKEN", "from-env")
	path := writeConfig(t, sampleConfig)

	config, err := LoadConfig([]string{
		"--config", path,
		"--address", "10.1.1.5",
		"--token", "from-flag",
		"--ntp-server", "pool.ntp.org",
		"--log-level", "WARNING",
	})
	require.NoError(t, err)

	assert.Equal(t, "10.1.1.5", config.Bootstrap.Address)
	assert.Equal(t, "from-flag", config.Bootstrap.Token)
	assert.Equal(t, []string{"pool.ntp.org"}, config.Bootstrap.Time.NTPServers)
	assert.Equal(t, "WARNING", config.Log.Level)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	_, err = LoadConfig([]string{"--no-such-flag"})
	assert.Error(t, err)

	_, err = LoadConfig([]string{"--config", writeConfig(t, "address: [unterminated")})
	assert.Error(t, err)
}

func TestRedactedHidesToken(t *testing.T) {
	config, err := LoadConfig([]string{"--config", writeConfig(t, sampleConfig)})
	require.NoError(t, err)

	out := config.Redacted()
	assert.NotContains(t, out, "from-file")
	assert.Contains(t, out, "cvp.corp.example.com")
	assert.Equal(t, "from-file", config.Bootstrap.Token)
}

func TestInitLoggerAddsRunID(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	initLogger(&buf, LogConfig{Level: "WARNING", Format: "json"}, "run-1234")

	slog.Info("Hidden")
	slog.Warn("Shown", "step", "enroll")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "Shown", record["msg"])
	assert.Equal(t, "run-1234", record["run_id"])
	assert.Equal(t, "enroll", record["step"])
}
