// Package sysinfotest writes a file-provider tree describing a fake device.
package sysinfotest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/sysinfo"
	"github.com/stretchr/testify/require"
)

type Device struct {
	SystemMAC       string
	ModelName       string
	HardwareRev     string
	Serial          string
	TPMVersion      string
	FirmwareVersion string
	BoardValidated  bool
	AntiCounterfeit bool
	SwiVersion      string
	Arch            string
}

func DefaultDevice() Device {
	return Device{
		SystemMAC:       "00:1c:73:aa:bb:cc",
		ModelName:       "DCS-7050SX3-48YC8",
		HardwareRev:     "11.02",
		Serial:          "JPE00000000",
		TPMVersion:      "2.0",
		FirmwareVersion: "7.85",
		BoardValidated:  true,
		AntiCounterfeit: false,
		SwiVersion:      "4.30.1F-32308478.4301F",
		Arch:            "x86_64",
	}
}

// Write lays the device out under a temporary directory and returns a config
// pointing the file provider at it.
func Write(t testing.TB, d Device) sysinfo.Config {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "sysinfo")

	writeJSON(t, filepath.Join(root, "ar", "hardware", "entmib.json"), map[string]any{
		"systemMacAddr": d.SystemMAC,
		"root": map[string]any{
			"modelName":   d.ModelName,
			"hardwareRev": d.HardwareRev,
			"serialNum":   d.Serial,
		},
	})
	tpm := filepath.Join(root, "ar", "cell", "1", "hardware", "tpm")
	writeJSON(t, filepath.Join(tpm, "status.json"), map[string]any{
		"tpmVersion":      d.TPMVersion,
		"firmwareVersion": d.FirmwareVersion,
		"boardValidated":  d.BoardValidated,
	})
	writeJSON(t, filepath.Join(tpm, "config.json"), map[string]any{
		"antiCounterfeitingSupported": d.AntiCounterfeit,
	})

	swi := filepath.Join(dir, "swi-version")
	require.NoError(t, os.WriteFile(swi, []byte("SWI_RELEASE=4.30.1F\nSWI_VERSION="+d.SwiVersion+"\nSWI_ARCH="+d.Arch+"\n"), 0644))
	arch := filepath.Join(dir, "arch")
	require.NoError(t, os.WriteFile(arch, []byte(d.Arch+"\n"), 0644))

	return sysinfo.Config{
		Sysname:        "ar",
		CellID:         1,
		Provider:       sysinfo.ProviderFile,
		Root:           root,
		TPMSchema:      sysinfo.TPMSchemaStatus,
		SwiVersionFile: swi,
		ArchFile:       arch,
	}
}

func writeJSON(t testing.TB, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}
