// AIZoo - persona chat bots for a shared Discord channel
// License: MIT
//
// Copyright (c) 2026 AIZoo contributors

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dotsetgreg/aizoo/pkg/config"
	"github.com/dotsetgreg/aizoo/pkg/logger"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "aizoo"

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// formatBuildInfo returns build time and go version info
func formatBuildInfo() (build string, goVer string) {
	if buildTime != "" {
		build = buildTime
	}
	goVer = goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", appName, formatVersion())
	build, goVer := formatBuildInfo()
	if build != "" {
		fmt.Fprintf(w, "  Build: %s\n", build)
	}
	if goVer != "" {
		fmt.Fprintf(w, "  Go: %s\n", goVer)
	}
}

func main() {
	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".aizoo", "config.json")
}

// envFiles are loaded in order; variables already set win.
func envFiles() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join("config", ".env"),
		filepath.Join(home, ".aizoo", ".env"),
	}
}

func loadConfig(path string) (*config.Config, error) {
	if strings.TrimSpace(path) == "" {
		path = getConfigPath()
	}
	cfg, err := config.LoadConfig(path, envFiles()...)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config, debug bool) error {
	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	if debug {
		level = logger.DEBUG
	}
	logger.SetLevel(level)
	return logger.SetFormat(cfg.Logging.Format)
}
