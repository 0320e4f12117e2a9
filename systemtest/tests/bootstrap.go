package tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/bootstrap"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/upgrade"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, config bootstrap.Config) (int, error) {
	t.Helper()
	deps, err := bootstrap.NewDeps(config)
	require.NoError(t, err)
	manager, err := bootstrap.NewManager(config, deps)
	require.NoError(t, err)
	return manager.Run(context.Background())
}

func TestOnPremBootstrap(t *testing.T, e *Env) {
	marker := filepath.Join(e.Dir, "script-ran")
	e.Controller.SetScript("#!/bin/sh\nprintf '%s' \"proxy=$CVPROXY\" > " + marker + "\nexit 7\n")

	code, err := run(t, e.Config)
	require.NoError(t, err)
	assert.Equal(t, 7, code)

	token, err := os.ReadFile(e.Config.Enroll.TokenFile)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", string(token))

	assert.Equal(t, []string{
		"-cvauth token," + e.Config.Enroll.TokenFile + " -cvaddr 127.0.0.1:9910 -enrollonly",
		"-cvaddr 127.0.0.1:9910 -certsconfig",
	}, readLines(t, e.AgentLog()))

	headers := e.Controller.Headers()
	assert.Equal(t, "JPE00000000", headers.Get("X-Arista-Serial"))
	assert.Equal(t, "DCS-7050SX3-48YC8", headers.Get("X-Arista-ModelName"))
	assert.Equal(t, "True", headers.Get("X-Arista-SecureZtp"))
	assert.Equal(t, "x86_64", headers.Get("X-Arista-Architecture"))

	assert.Empty(t, e.Controller.Serials())

	ran, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "proxy=", string(ran))
}

// TestCloudRedirect treats the fake controller's host as the cloud domain so
// the redirector is consulted, and assigns the device to "localhost".
func TestCloudRedirect(t *testing.T, e *Env) {
	u, err := url.Parse(e.Controller.URL)
	require.NoError(t, err)

	config := e.Config
	config.CloudDomain = u.Hostname()
	e.Controller.SetAssignment("https://localhost:" + u.Port())
	e.Controller.SetScript("#!/bin/sh\nexit 0\n")

	code, err := run(t, config)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	assert.Equal(t, []string{"JPE00000000"}, e.Controller.Serials())
	assert.Equal(t, "localhost:"+u.Port(), e.Controller.Host())
	assert.Equal(t,
		"-cvauth token-secure,"+config.Enroll.TokenFile+" -cvaddr 127.0.0.1:443 -enrollonly",
		readLines(t, e.AgentLog())[0])
}

func TestBootstrapScriptNotFound(t *testing.T, e *Env) {
	e.Controller.SetBootstrapStatus(http.StatusNotFound)

	code, err := run(t, e.Config)
	assert.Equal(t, 1, code)
	assert.ErrorContains(t, err, "404")
	assert.NoFileExists(t, e.Config.ScriptPath)
}

func TestCapabilityMissingWithoutImage(t *testing.T, e *Env) {
	config := e.Config
	config.Enroll.Timeout = 300 * time.Millisecond

	code, err := run(t, config)
	assert.Equal(t, 1, code)
	assert.ErrorIs(t, err, upgrade.ErrImageURLMissing)
	assert.ErrorContains(t, err, "specify eosUrl")

	assert.NoFileExists(t, e.CLILog())
	assert.Zero(t, e.Controller.Fetches())
}

func TestCapabilityMissingUpgradesImage(t *testing.T, e *Env) {
	images := gin.New()
	images.GET("/EOS-4.30.1F.swi", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/octet-stream", []byte("upgraded image"))
	})
	imageServer := httptest.NewServer(images)
	defer imageServer.Close()

	require.NoError(t, os.WriteFile(filepath.Join(e.Flash(), "EOS.swi"), []byte("old image"), 0644))

	config := e.Config
	config.Enroll.Timeout = 300 * time.Millisecond
	config.Upgrade.EOSURL = imageServer.URL + "/EOS-4.30.1F.swi"

	code, err := run(t, config)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	image, err := os.ReadFile(filepath.Join(e.Flash(), "EOS.swi"))
	require.NoError(t, err)
	assert.Equal(t, "upgraded image", string(image))
	assert.NoFileExists(t, filepath.Join(e.Flash(), "EOS.swi.bak"))

	assert.Equal(t, []string{
		"configure", "boot system flash:EOS.swi", "end", "write memory", "---",
		"reload now", "---",
	}, readLines(t, e.CLILog()))
	assert.Zero(t, e.Controller.Fetches())
}
