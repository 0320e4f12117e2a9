package tests

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/bootstrap"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/certs/certstest"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/controller/controllertest"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/enroll"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/eoscli"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/sysinfo/sysinfotest"
	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/upgrade"
	"github.com/stretchr/testify/require"
)

// Env is a fake device: an enrollment agent, a CLI, a system-information
// tree and flash storage, plus a controller that trusts the device.
type Env struct {
	Dir        string
	PKI        *certstest.PKI
	Controller *controllertest.Server
	Config     bootstrap.Config
}

// AgentOK enrolls instantly and reports the test PKI's client pair.
const AgentOK = "enroll"

// AgentHangs never finishes, like an agent that does not know -cvproxy.
const AgentHangs = "hang"

func NewEnv(t *testing.T, agent string) *Env {
	t.Helper()
	dir := t.TempDir()
	pki := certstest.New(t)
	srv := controllertest.New(t, pki)

	e := &Env{Dir: dir, PKI: pki, Controller: srv}

	agentPath := e.writeExecutable(t, "TerminAttr", e.agentScript(agent))
	cliPath := e.writeExecutable(t, "FastCli", fmt.Sprintf(`printf '%%s\n---\n' "$4" >> %s`, e.CLILog()))

	flash := filepath.Join(dir, "flash")
	require.NoError(t, os.MkdirAll(flash, 0755))

	e.Config = bootstrap.Config{
		Address:    srv.URL,
		Token:      "s3cr3t",
		ScriptPath: filepath.Join(dir, "bootstrap-script"),
		Controller: bootstrap.ControllerConfig{CAFile: pki.CACertFile},
		Enroll: enroll.Config{
			AgentPath: agentPath,
			TokenFile: filepath.Join(dir, "token.tok"),
		},
		Device:  sysinfotest.Write(t, sysinfotest.DefaultDevice()),
		Upgrade: upgrade.Config{FlashDir: flash},
		CLI:     eoscli.Config{Path: cliPath},
	}
	return e
}

func (e *Env) AgentLog() string { return filepath.Join(e.Dir, "agent.log") }
func (e *Env) CLILog() string   { return filepath.Join(e.Dir, "cli.log") }
func (e *Env) Flash() string    { return e.Config.Upgrade.FlashDir }

func (e *Env) agentScript(kind string) string {
	if kind == AgentHangs {
		return "exec sleep 30"
	}
	return fmt.Sprintf(`echo "$@" >> %s
case "$*" in
*-certsconfig*) printf '{"%%s": {"certFile": "%s", "keyFile": "%s"}}' "$2" ;;
esac`, e.AgentLog(), e.PKI.Client.CertFile, e.PKI.Client.KeyFile)
}

func (e *Env) writeExecutable(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(e.Dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}
