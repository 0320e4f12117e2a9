// Package sysinfo reads the device identity from the local system-information
// store and renders it as bootstrap request headers.
package sysinfo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultSysname = "ar"
	DefaultRoot    = "/var/run/sysinfo"

	ProviderFile    = "file"
	ProviderCommand = "command"
)

// Provider returns the attributes stored under a system-information path
// such as "hardware/entmib".
type Provider interface {
	Entity(ctx context.Context, path string) (Entity, error)
}

// Entity is a nested attribute map. Nested attributes are addressed with
// slash separated paths, e.g. "root/serialNum".
type Entity map[string]any

func (e Entity) Value(path string) (any, bool) {
	var cur any = map[string]any(e)
	for _, part := range strings.Split(path, "/") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String renders the attribute at path, or "" when absent.
func (e Entity) String(path string) string {
	v, ok := e.Value(path)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Bool accepts JSON booleans and their string spellings. Absent or
// unrecognised values are false.
func (e Entity) Bool(path string) bool {
	v, ok := e.Value(path)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(t)
		return err == nil && b
	case float64:
		return t != 0
	}
	return false
}

// FileProvider serves entities from <Root>/<Sysname>/<path>.json.
type FileProvider struct {
	Root    string
	Sysname string
}

func (p FileProvider) Entity(_ context.Context, path string) (Entity, error) {
	file := filepath.Join(p.Root, p.Sysname, filepath.FromSlash(path)+".json")
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity %s: %w", path, err)
	}
	return decodeEntity(path, data)
}

// CommandProvider runs Argv with {sysname} and {path} substituted and decodes
// the JSON it prints.
type CommandProvider struct {
	Argv    []string
	Sysname string
}

func (p CommandProvider) Entity(ctx context.Context, path string) (Entity, error) {
	if len(p.Argv) == 0 {
		return nil, fmt.Errorf("no sysinfo command configured")
	}
	r := strings.NewReplacer("{sysname}", p.Sysname, "{path}", path)
	argv := make([]string, len(p.Argv))
	for i, a := range p.Argv {
		argv[i] = r.Replace(a)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to query entity %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return decodeEntity(path, out)
}

func decodeEntity(path string, data []byte) (Entity, error) {
	var e Entity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode entity %s: %w", path, err)
	}
	if e == nil {
		return nil, fmt.Errorf("entity %s is empty", path)
	}
	return e, nil
}
