package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultPathFromEnv(t *testing.T) {
	t.Setenv(EnvConfig, "/etc/guardian.yaml")
	if got := DefaultPath(); got != "/etc/guardian.yaml" {
		t.Errorf("DefaultPath() = %q", got)
	}
}

func TestDefaultPathFallsBackToXDG(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Chdir(t.TempDir())

	got := DefaultPath()
	if !strings.HasSuffix(got, filepath.Join("repo-guardian", "repo-guardian.yaml")) {
		t.Errorf("DefaultPath() = %q, want a path under the user config dir", got)
	}
}

func TestDefaultPathPrefersWorkingDirectory(t *testing.T) {
	t.Setenv(EnvConfig, "")
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(configFileName, []byte("version: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if got := DefaultPath(); got != configFileName {
		t.Errorf("DefaultPath() = %q, want %q", got, configFileName)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "repo-guardian.yaml")
	cfg := &Config{
		Version:      1,
		KeepBackups:  7,
		Retry:        Retry{BaseDelay: Duration(2 * time.Second)},
		Repositories: []Repository{{Name: "demo", URL: "https://github.com/acme/demo", LocalPath: "repos/demo"}},
	}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "base_delay: 2s") {
		t.Errorf("duration not written as text:\n%s", data)
	}
	if strings.Contains(string(data), "mirror") {
		t.Errorf("empty mirror section should be omitted:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.KeepBackups != 7 {
		t.Errorf("keep_backups = %d, want 7", loaded.KeepBackups)
	}
	if want := filepath.Join(filepath.Dir(path), "repos", "demo"); loaded.Repositories[0].LocalPath != want {
		t.Errorf("local_path = %q, want %q", loaded.Repositories[0].LocalPath, want)
	}
}
