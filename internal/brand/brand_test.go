package brand

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIdentityInitialized(t *testing.T) {
	if Name == "" {
		t.Error("Global Name should be initialized")
	}
	if Version == "" {
		t.Error("Global Version should be initialized (to dev default)")
	}
}

func TestGetConfigDir(t *testing.T) {
	cleanEnv := func() {
		os.Unsetenv(ConfigEnvPrefix + "_PREFIX")
		os.Unsetenv(ConfigEnvPrefix + "_CONFIG_DIR")
	}
	cleanEnv()
	defer cleanEnv()

	if GetConfigDir() != DefaultConfigDir {
		t.Errorf("Expected default config dir %s, got %s", DefaultConfigDir, GetConfigDir())
	}

	os.Setenv(ConfigEnvPrefix+"_PREFIX", "/tmp/leshy")
	if GetConfigDir() != "/tmp/leshy/config" {
		t.Errorf("Expected prefix config dir, got %s", GetConfigDir())
	}

	// Direct override wins over the prefix.
	os.Setenv(ConfigEnvPrefix+"_CONFIG_DIR", "/custom/config")
	if GetConfigDir() != "/custom/config" {
		t.Errorf("Expected custom config dir, got %s", GetConfigDir())
	}
}

func TestDefaultConfigPath(t *testing.T) {
	os.Unsetenv(ConfigEnvPrefix + "_PREFIX")
	os.Unsetenv(ConfigEnvPrefix + "_CONFIG_DIR")

	expected := filepath.Join(DefaultConfigDir, ConfigFileName)
	if DefaultConfigPath() != expected {
		t.Errorf("Expected %s, got %s", expected, DefaultConfigPath())
	}
}
