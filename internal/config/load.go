package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bianoble/repo-guardian/internal/repourl"
)

const (
	// DefaultConcurrency is the worker count used when none is configured.
	DefaultConcurrency = 4

	// DefaultKeepBackups is how many snapshots per repository survive pruning.
	DefaultKeepBackups = 5

	// DefaultMaxAttempts bounds clone and pull attempts.
	DefaultMaxAttempts = 3

	// MaxAttemptsLimit is the largest accepted retry.max_attempts.
	MaxAttemptsLimit = 10

	// DefaultBaseDelay is the first retry backoff.
	DefaultBaseDelay = Duration(time.Second)
)

// Load reads, defaults and validates a repo-guardian.yaml configuration file.
// Relative paths in the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	cfg.dir = filepath.Dir(abs)
	cfg.ApplyDefaults()

	if errs := Validate(cfg); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}

// Parse decodes YAML without defaulting or validating.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields and resolves relative paths against the
// config directory. Calling it twice is harmless.
func (c *Config) ApplyDefaults() {
	if c.BackupDir == "" {
		c.BackupDir = DefaultBackupDir()
	}
	if c.Database == "" {
		c.Database = DefaultDatabasePath()
	}
	if c.Report == "" {
		c.Report = DefaultReportPath()
	}
	if c.Log.Dir == "" {
		c.Log.Dir = DefaultLogDir()
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.KeepBackups == 0 {
		c.KeepBackups = DefaultKeepBackups
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = DefaultBaseDelay
	}
	if len(c.AllowedHosts) == 0 {
		c.AllowedHosts = append([]string(nil), repourl.DefaultHosts...)
	}

	c.BackupDir = c.resolve(c.BackupDir)
	c.Database = c.resolve(c.Database)
	c.Report = c.resolve(c.Report)
	c.Log.Dir = c.resolve(c.Log.Dir)
	for i := range c.Repositories {
		r := &c.Repositories[i]
		if r.LocalPath == "" && r.Name != "" {
			r.LocalPath = filepath.Join("repos", r.Name)
		}
		r.LocalPath = c.resolve(r.LocalPath)
	}
}

func (c *Config) resolve(p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks a Config for semantic correctness.
// Returns a list of validation error messages (empty if valid).
func Validate(cfg *Config) []string {
	var errs []string

	if cfg.Version != 1 {
		errs = append(errs, fmt.Sprintf("unsupported version %d: only version 1 is supported", cfg.Version))
	}

	if cfg.Concurrency < 0 {
		errs = append(errs, fmt.Sprintf("concurrency must not be negative, got %d", cfg.Concurrency))
	}
	if cfg.KeepBackups < 0 {
		errs = append(errs, fmt.Sprintf("keep_backups must not be negative, got %d", cfg.KeepBackups))
	}
	if cfg.Retry.MaxAttempts < 0 || cfg.Retry.MaxAttempts > MaxAttemptsLimit {
		errs = append(errs, fmt.Sprintf("retry.max_attempts must be between 0 and %d, got %d", MaxAttemptsLimit, cfg.Retry.MaxAttempts))
	}
	if cfg.Retry.BaseDelay < 0 {
		errs = append(errs, "retry.base_delay must not be negative")
	}
	if cfg.OperationTimeout < 0 {
		errs = append(errs, "operation_timeout must not be negative")
	}

	if m := cfg.Mirror.S3; m != nil && m.Bucket == "" {
		errs = append(errs, "mirror.s3: 'bucket' is required")
	}

	if len(cfg.Repositories) == 0 {
		errs = append(errs, "at least one repository is required")
	}

	validator := repourl.New(cfg.AllowedHosts...)
	names := make(map[string]bool)
	for i, repo := range cfg.Repositories {
		prefix := fmt.Sprintf("repository[%d]", i)
		if repo.Name != "" {
			prefix = fmt.Sprintf("repository '%s'", repo.Name)
		}

		switch {
		case repo.Name == "":
			errs = append(errs, fmt.Sprintf("%s: 'name' is required", prefix))
		case strings.ContainsAny(repo.Name, `/\`):
			errs = append(errs, fmt.Sprintf("%s: name must not contain path separators", prefix))
		case strings.HasPrefix(repo.Name, "."):
			// Dot entries in the backup directory are reserved for temporary snapshots.
			errs = append(errs, fmt.Sprintf("%s: name must not start with '.'", prefix))
		case names[repo.Name]:
			errs = append(errs, fmt.Sprintf("%s: duplicate repository name '%s'", prefix, repo.Name))
		default:
			names[repo.Name] = true
		}

		if repo.URL == "" {
			errs = append(errs, fmt.Sprintf("%s: 'url' is required", prefix))
		} else if _, err := validator.Normalize(repo.URL); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", prefix, err))
		}
	}

	return errs
}
