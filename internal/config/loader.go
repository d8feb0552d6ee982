package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"leshy/internal/logging"
)

// Load parses a single TOML file with no config.d merging, applies
// defaults, and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWithIncludes parses the main config file at path, then merges in
// every *.toml file under the effective config.d directory (explicit
// server.config_dir, or <dir of path>/config.d), in filename-sorted
// order. Each include may be a full Config (only its zones are used) or
// a zones-only document. Malformed include files are logged and
// skipped; duplicate zone names across all loaded files abort loading.
func LoadWithIncludes(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.defaults()

	includeDir := cfg.Server.ConfigDir
	if includeDir == "" {
		includeDir = filepath.Join(filepath.Dir(path), "config.d")
	}

	names, err := includeFiles(includeDir)
	if err != nil {
		return nil, fmt.Errorf("list config.d %s: %w", includeDir, err)
	}

	seen := make(map[string]bool, len(cfg.Zones))
	for _, z := range cfg.Zones {
		seen[z.Name] = true
	}

	for _, name := range names {
		full := filepath.Join(includeDir, name)
		zones, err := loadZonesFromFile(full)
		if err != nil {
			logging.WithComponent("config").Warn("skipping malformed config.d file", "path", full, "error", err)
			continue
		}
		for _, z := range zones {
			if seen[z.Name] {
				return nil, fmt.Errorf("duplicate zone name %q (from %s)", z.Name, full)
			}
			seen[z.Name] = true
			cfg.Zones = append(cfg.Zones, z)
		}
	}

	cfg.defaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func includeFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".toml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// loadZonesFromFile tries to parse a config.d entry as a full Config
// first, then as a zones-only document. Either shape is accepted; only
// the zones are merged.
func loadZonesFromFile(path string) ([]Zone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var full Config
	if err := toml.Unmarshal(data, &full); err == nil && len(full.Zones) > 0 {
		return full.Zones, nil
	}

	var zo zonesOnly
	if err := toml.Unmarshal(data, &zo); err != nil {
		return nil, err
	}
	return zo.Zones, nil
}
