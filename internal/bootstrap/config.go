package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"blackswan/internal/config"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig delegates to the project's config loader. An empty path yields
// the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		cfg := config.DefaultConfig()
		return cfg, cfg.Validate()
	}
	return config.LoadConfig(path)
}

// CheckPreFlight performs environment checks beyond schema validation
func CheckPreFlight(cfg *Config) error {
	if cfg.Data.PricesCSV != "" {
		f, err := os.Open(cfg.Data.PricesCSV)
		if err != nil {
			return fmt.Errorf("prices_csv not readable: %w", err)
		}
		f.Close()
	}

	if cfg.Store.Enabled {
		dir := filepath.Dir(cfg.Store.Path)
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("store directory %s: %w", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("store directory %s is not a directory", dir)
		}
		probe, err := os.CreateTemp(dir, ".blackswan-probe-*")
		if err != nil {
			return fmt.Errorf("store directory %s is not writable: %w", dir, err)
		}
		probe.Close()
		os.Remove(probe.Name())
	}

	return nil
}
