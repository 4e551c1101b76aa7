package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const exampleConfig = `version: 1
backup_dir: backups
database: state/repositories.db
concurrency: 6
keep_backups: 3
operation_timeout: 2m
retry:
  max_attempts: 4
  base_delay: 500ms
auth:
  token_env: GITHUB_TOKEN
mirror:
  s3:
    bucket: offsite
    prefix: guardian/
repositories:
  - name: demo
    url: https://github.com/acme/demo
  - name: tools
    url: https://gitlab.com/acme/tools.git
    local_path: /srv/checkouts/tools
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repo-guardian.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func containsSubstring(errs []string, sub string) bool {
	for _, e := range errs {
		if strings.Contains(e, sub) {
			return true
		}
	}
	return false
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, exampleConfig)
	dir := filepath.Dir(path)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Concurrency != 6 || cfg.KeepBackups != 3 {
		t.Errorf("concurrency/keep = %d/%d, want 6/3", cfg.Concurrency, cfg.KeepBackups)
	}
	if time.Duration(cfg.OperationTimeout) != 2*time.Minute {
		t.Errorf("operation_timeout = %v, want 2m", time.Duration(cfg.OperationTimeout))
	}
	if cfg.Retry.MaxAttempts != 4 || time.Duration(cfg.Retry.BaseDelay) != 500*time.Millisecond {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.BackupDir != filepath.Join(dir, "backups") {
		t.Errorf("backup_dir = %q, want it resolved against %q", cfg.BackupDir, dir)
	}
	if cfg.Database != filepath.Join(dir, "state", "repositories.db") {
		t.Errorf("database = %q", cfg.Database)
	}
	if cfg.Repositories[0].LocalPath != filepath.Join(dir, "repos", "demo") {
		t.Errorf("default local_path = %q", cfg.Repositories[0].LocalPath)
	}
	if cfg.Repositories[1].LocalPath != "/srv/checkouts/tools" {
		t.Errorf("absolute local_path changed: %q", cfg.Repositories[1].LocalPath)
	}
	if cfg.Mirror.S3 == nil || cfg.Mirror.S3.Bucket != "offsite" {
		t.Errorf("mirror = %+v", cfg.Mirror)
	}
	if len(cfg.AllowedHosts) != 3 {
		t.Errorf("allowed_hosts = %v, want defaults", cfg.AllowedHosts)
	}
	if cfg.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", cfg.Dir(), dir)
	}
	if got := cfg.Names(); len(got) != 2 || got[0] != "demo" || got[1] != "tools" {
		t.Errorf("Names() = %v", got)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "version: 1\nrepositories:\n  - name: demo\n    url: https://github.com/acme/demo\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Concurrency != DefaultConcurrency {
		t.Errorf("concurrency = %d, want %d", cfg.Concurrency, DefaultConcurrency)
	}
	if cfg.KeepBackups != DefaultKeepBackups {
		t.Errorf("keep_backups = %d, want %d", cfg.KeepBackups, DefaultKeepBackups)
	}
	if cfg.Retry.MaxAttempts != DefaultMaxAttempts || cfg.Retry.BaseDelay != DefaultBaseDelay {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if cfg.BackupDir == "" || cfg.Database == "" || cfg.Report == "" || cfg.Log.Dir == "" {
		t.Errorf("xdg defaults not applied: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/repo-guardian.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "version: [1\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parsing config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoadBadDuration(t *testing.T) {
	path := writeConfig(t, "version: 1\nretry:\n  base_delay: soon\nrepositories:\n  - name: demo\n    url: https://github.com/acme/demo\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestLoadReturnsValidationError(t *testing.T) {
	path := writeConfig(t, "version: 2\nrepositories: []\n")

	_, err := Load(path)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if len(vErr.Errors) != 2 {
		t.Errorf("errors = %v, want version and repository errors", vErr.Errors)
	}
	if !strings.HasPrefix(err.Error(), "config validation failed:\n  - ") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Version:      1,
			Repositories: []Repository{{Name: "demo", URL: "https://github.com/acme/demo"}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad version", mutate: func(c *Config) { c.Version = 0 }, want: "unsupported version"},
		{name: "no repositories", mutate: func(c *Config) { c.Repositories = nil }, want: "at least one repository"},
		{name: "missing name", mutate: func(c *Config) { c.Repositories[0].Name = "" }, want: "'name' is required"},
		{name: "separator in name", mutate: func(c *Config) { c.Repositories[0].Name = "a/b" }, want: "path separators"},
		{name: "dot dot name", mutate: func(c *Config) { c.Repositories[0].Name = ".." }, want: "must not start with '.'"},
		{name: "hidden name", mutate: func(c *Config) { c.Repositories[0].Name = ".hidden" }, want: "must not start with '.'"},
		{name: "temp prefixed name", mutate: func(c *Config) { c.Repositories[0].Name = ".tmp-demo" }, want: "must not start with '.'"},
		{
			name: "duplicate name",
			mutate: func(c *Config) {
				c.Repositories = append(c.Repositories, Repository{Name: "demo", URL: "https://github.com/acme/other"})
			},
			want: "duplicate repository name",
		},
		{name: "missing url", mutate: func(c *Config) { c.Repositories[0].URL = "" }, want: "'url' is required"},
		{name: "host not allowed", mutate: func(c *Config) { c.Repositories[0].URL = "https://example.com/a/b" }, want: "not in the allowed list"},
		{
			name: "custom host allowed",
			mutate: func(c *Config) {
				c.AllowedHosts = []string{"git.internal"}
				c.Repositories[0].URL = "https://git.internal/team/app"
			},
		},
		{name: "negative concurrency", mutate: func(c *Config) { c.Concurrency = -1 }, want: "concurrency"},
		{name: "negative keep", mutate: func(c *Config) { c.KeepBackups = -2 }, want: "keep_backups"},
		{name: "negative attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = -1 }, want: "max_attempts"},
		{name: "too many attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = MaxAttemptsLimit + 1 }, want: "max_attempts must be between 0 and 10"},
		{name: "attempts at limit", mutate: func(c *Config) { c.Retry.MaxAttempts = MaxAttemptsLimit }},
		{name: "mirror without bucket", mutate: func(c *Config) { c.Mirror.S3 = &S3Mirror{} }, want: "'bucket' is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			errs := Validate(cfg)
			if tt.want == "" {
				if len(errs) != 0 {
					t.Fatalf("unexpected errors: %v", errs)
				}
				return
			}
			if !containsSubstring(errs, tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, errs)
			}
		})
	}
}
