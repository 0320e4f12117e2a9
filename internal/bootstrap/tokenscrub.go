package bootstrap

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// scrubToken removes the consumed enrollment token from the config file and
// records when enrollment happened.
func scrubToken(configPath string, now time.Time) error {
	if configPath == "" {
		return fmt.Errorf("config path not set")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config map[string]interface{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if config == nil {
		config = make(map[string]interface{})
	}

	delete(config, "token")
	config["enrolled_at"] = now.UTC().Format(time.RFC3339)

	updatedData, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	comment := "# Device enrolled on " + now.UTC().Format(time.RFC3339) + ", enrollment token removed\n"
	if err := os.WriteFile(configPath, []byte(comment+string(updatedData)), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
