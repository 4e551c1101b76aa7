package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/bianoble/repo-guardian/internal/sandbox"
)

const (
	configFileName = "repo-guardian.yaml"
	appDirName     = "repo-guardian"

	// EnvConfig overrides the default config path.
	EnvConfig = "REPO_GUARDIAN_CONFIG"
)

// DefaultPath returns the config file to use when --config is not given:
// $REPO_GUARDIAN_CONFIG, then ./repo-guardian.yaml if present, then
// $XDG_CONFIG_HOME/repo-guardian/repo-guardian.yaml.
func DefaultPath() string {
	if p := strings.TrimSpace(os.Getenv(EnvConfig)); p != "" {
		return p
	}
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName
	}
	return filepath.Join(xdg.ConfigHome, appDirName, configFileName)
}

// DefaultBackupDir is where snapshots go when backup_dir is unset.
func DefaultBackupDir() string {
	return filepath.Join(xdg.DataHome, appDirName, "backups")
}

// DefaultDatabasePath is the record store location when database is unset.
func DefaultDatabasePath() string {
	return filepath.Join(xdg.DataHome, appDirName, "repositories.db")
}

// DefaultReportPath is the last-run report location when report is unset.
func DefaultReportPath() string {
	return filepath.Join(xdg.StateHome, appDirName, "last-run.yaml")
}

// DefaultLogDir is the log directory when log.dir is unset.
func DefaultLogDir() string {
	return filepath.Join(xdg.StateHome, appDirName, "logs")
}

// Save writes cfg to path atomically. The parent directory is created.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := sandbox.SafeWrite(dir, filepath.Base(abs), data, 0644); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}
