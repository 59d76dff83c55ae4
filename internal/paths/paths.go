// Package paths resolves the configuration and data directory locations.
// Every resolved path is absolute.
package paths

import (
	"os"
	"path/filepath"
)

// CWD-relative default directory names.
const (
	DefaultConfigDirName = ".carechain"
	DefaultDataDirName   = ".carechain-db"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "CARECHAIN_CONFIG_DIR"
	EnvDataDir   = "CARECHAIN_DATA_DIR"
)

// ResolveConfigDir returns the configuration directory following the
// precedence chain: flag > CARECHAIN_CONFIG_DIR env > $(CWD)/.carechain.
func ResolveConfigDir(flag string) (string, error) {
	return firstAbs(DefaultConfigDirName, flag, os.Getenv(EnvConfigDir))
}

// ResolveDataDir returns the data directory following the precedence chain:
// flag > data_dir from config.yaml > CARECHAIN_DATA_DIR env >
// $(CWD)/.carechain-db.
func ResolveDataDir(flag, configYAMLValue string) (string, error) {
	return firstAbs(DefaultDataDirName, flag, configYAMLValue, os.Getenv(EnvDataDir))
}

// firstAbs returns the first non-empty candidate made absolute, or
// fallback joined to the working directory.
func firstAbs(fallback string, candidates ...string) (string, error) {
	for _, c := range candidates {
		if c != "" {
			return filepath.Abs(c)
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, fallback), nil
}
