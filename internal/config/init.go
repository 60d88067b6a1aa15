package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Init loads the configuration and prepares the data directory layout.
func Init(workingDir, dataDir string, debug bool, env []string) (*Config, error) {
	cfg, err := Load(workingDir, dataDir, debug, env)
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{
		cfg.Options.DataDirectory,
		filepath.Join(cfg.Options.DataDirectory, "logs"),
	} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}
	return cfg, nil
}
