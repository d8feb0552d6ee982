// Package service installs and removes the platform service manifest
// (a systemd unit on Linux, a launchd daemon plist on macOS) that
// starts the resolver at boot.
package service

import (
	"fmt"
	"os"
	"path/filepath"

	"leshy/internal/brand"
)

// DefaultName is the service name used when none is given on the CLI.
var DefaultName = brand.Name

// FallbackBinary is used when the running binary's own path cannot be
// determined (os.Executable failing, or its target unresolvable).
var FallbackBinary = "/usr/local/bin/" + brand.Name

// platform is implemented per-OS in service_linux.go / service_darwin.go
// / service_other.go.
type platform interface {
	install(name string, binary, config string) error
	uninstall(name string) error
}

// Install detects the running binary's real path and writes + enables a
// service manifest naming it and config as the arguments to run at
// startup. name and config default to DefaultName and
// brand.DefaultConfigPath() when empty.
func Install(name, config string) error {
	if name == "" {
		name = DefaultName
	}
	if config == "" {
		config = brand.DefaultConfigPath()
	}
	binary := detectBinary()

	fmt.Printf("Installing service %q (binary: %s, config: %s)\n", name, binary, config)
	return currentPlatform().install(name, binary, config)
}

// Uninstall stops, disables, and removes the named service's manifest.
func Uninstall(name string) error {
	if name == "" {
		name = DefaultName
	}
	fmt.Printf("Uninstalling service %q\n", name)
	return currentPlatform().uninstall(name)
}

// detectBinary resolves the running executable's canonical path,
// falling back to FallbackBinary when os.Executable or symlink
// resolution fails.
func detectBinary() string {
	exe, err := os.Executable()
	if err != nil {
		return FallbackBinary
	}
	real, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return FallbackBinary
	}
	return real
}
