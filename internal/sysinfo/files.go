package sysinfo

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultSwiVersionFile = "/etc/swi-version"
	DefaultArchFile       = "/etc/arch"
	swiVersionKey         = "SWI_VERSION"
)

// softwareVersion reads SWI_VERSION from the KEY=VALUE release file.
func softwareVersion(path string) (string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	v, ok := env[swiVersionKey]
	if !ok {
		return "", fmt.Errorf("%s not set in %s", swiVersionKey, path)
	}
	return v, nil
}

// architecture returns the first word of the first line of path.
func architecture(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if sc.Scan() {
		if fields := strings.Fields(sc.Text()); len(fields) > 0 {
			return fields[0], nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return "", fmt.Errorf("%s is empty", path)
}
