package internal

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tinyland-inc/beamcast/pkg/config"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".beamcast", "config.json")
}

func LoadConfig() (*config.Config, error) {
	return config.LoadConfig(GetConfigPath())
}

// GetVersion returns the version string.
func GetVersion() string {
	return version
}

// FormatVersion returns the version string with optional git commit.
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += " (git: " + gitCommit + ")"
	}
	return v
}

// FormatBuildInfo returns build time and go version info.
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}
