package execute

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript writes a non-executable script; Run must fix the mode.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bootstrap-script")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0644))
	return path
}

func TestRunSuccess(t *testing.T) {
	script := writeScript(t, "exit 0")

	code, err := NewRunner("").Run(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	info, err := os.Stat(script)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestRunPropagatesExitCode(t *testing.T) {
	script := writeScript(t, "exit 3")

	code, err := NewRunner("").Run(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestRunExportsProxy(t *testing.T) {
	out := filepath.Join(t.TempDir(), "env")
	script := writeScript(t, `printf '%s' "$CVPROXY" > `+out)

	code, err := NewRunner("http://proxy.corp:3128").Run(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "http://proxy.corp:3128", string(data))
}

func TestRunForwardsSignal(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "terminated")
	script := writeScript(t, `trap 'touch `+marker+`; exit 0' TERM
while true; do sleep 0.1; done`)

	sigs := make(chan os.Signal, 1)
	r := NewRunner("")
	r.SetSignalSource(sigs)

	go func() {
		time.Sleep(300 * time.Millisecond)
		sigs <- syscall.SIGTERM
	}()

	code, err := r.Run(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, 127+int(syscall.SIGTERM), code)
	assert.FileExists(t, marker)
}

func TestRunForwardsInterrupt(t *testing.T) {
	script := writeScript(t, "exec sleep 30")

	sigs := make(chan os.Signal, 1)
	sigs <- syscall.SIGINT
	r := NewRunner("")
	r.SetSignalSource(sigs)

	code, err := r.Run(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, 127+int(syscall.SIGINT), code)
}

func TestRunCanceled(t *testing.T) {
	script := writeScript(t, "exec sleep 30")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := NewRunner("").Run(ctx, script)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunMissingScript(t *testing.T) {
	code, err := NewRunner("").Run(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
	assert.Equal(t, 1, code)
}
