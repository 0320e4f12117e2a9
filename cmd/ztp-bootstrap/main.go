package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aristanetworks/cloudvision-ztpaas-utils/internal/bootstrap"
	"github.com/google/uuid"
)

var AppVersion string

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	config, err := LoadConfig(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	initLogger(os.Stdout, config.Log, uuid.NewString())

	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		fmt.Println("Config loaded:")
		fmt.Println(config.Redacted())
	}

	slog.Info("ZTP Bootstrap", "version", AppVersion, "config_file", config.Bootstrap.ConfigFile)

	if err := config.Bootstrap.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		return 1
	}

	deps, err := bootstrap.NewDeps(config.Bootstrap)
	if err != nil {
		slog.Error("Failed to initialise bootstrap", "error", err)
		return 1
	}
	manager, err := bootstrap.NewManager(config.Bootstrap, deps)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		return 1
	}

	// Signals are left to the script runner, which forwards them to the
	// script it owns.
	code, err := manager.Run(context.Background())
	if err != nil {
		slog.Error("Bootstrap failed", "error", err)
	}
	return code
}
