// Package brand provides the identity constants shared by the CLI, service
// installers, and default path layout.
package brand

import (
	"os"
	"path/filepath"
)

// Exported identity, fixed at build time rather than loaded from a data
// file: the binary only ever ships under one name.
var (
	Name             = "leshy"
	ConfigEnvPrefix  = "LESHY"
	DefaultConfigDir = "/etc/leshy"
	BinaryName       = "leshy"
	ConfigFileName   = "config.toml"

	// Version is set at build time via -ldflags.
	Version = "dev"
)

// GetConfigDir returns the config directory, checking env vars first.
// Priority: LESHY_CONFIG_DIR > LESHY_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "config")
	}
	return DefaultConfigDir
}

// DefaultConfigPath returns the default main config file path.
func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}
