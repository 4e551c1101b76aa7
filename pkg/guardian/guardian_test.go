package guardian

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bianoble/repo-guardian/internal/vcs"
)

const testConfig = `version: 1
backup_dir: backups
database: state/guardian.db
report: state/last-run.yaml
keep_backups: 2
retry:
  base_delay: 1ms
repositories:
  - name: alpha
    url: https://github.com/acme/alpha
  - name: beta
    url: https://gitlab.com/acme/beta.git
`

// stubVCS "clones" by writing a marker file and never touches the network.
type stubVCS struct {
	mu     sync.Mutex
	failOn map[string]bool
}

func (s *stubVCS) HasCheckout(path string) bool {
	return vcs.HasCheckout(path)
}

func (s *stubVCS) Clone(_ context.Context, url, dest string, progress vcs.ProgressFunc) error {
	s.mu.Lock()
	fail := s.failOn[url]
	s.mu.Unlock()
	if fail {
		return &vcs.OpError{Op: "clone", Target: url, Kind: vcs.ErrCloneFailed, Err: errors.New("remote hung up")}
	}
	if err := os.MkdirAll(filepath.Join(dest, ".git"), 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dest, "README.md"), []byte(url), 0644)
}

func (s *stubVCS) FetchAndPull(_ context.Context, path string, _ vcs.ProgressFunc) (vcs.PullResult, error) {
	return vcs.PullResult{Status: vcs.PullSuccess, Branch: "main", HeadCommit: "abc123"}, nil
}

func (s *stubVCS) HeadInfo(context.Context, string) (vcs.Head, error) {
	return vcs.Head{Branch: "main", Commit: "abc123"}, nil
}

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "repo-guardian.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0644); err != nil {
		t.Fatal(err)
	}

	client, err := New(Options{ConfigPath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	client.vcs = &stubVCS{}
	return client, dir
}

func TestNewResolvesPaths(t *testing.T) {
	client, dir := newTestClient(t)
	cfg := client.Config()

	if cfg.BackupDir != filepath.Join(dir, "backups") {
		t.Errorf("BackupDir = %q", cfg.BackupDir)
	}
	if cfg.Repositories[1].LocalPath != filepath.Join(dir, "repos", "beta") {
		t.Errorf("LocalPath = %q", cfg.Repositories[1].LocalPath)
	}
	if _, err := os.Stat(cfg.BackupDir); err != nil {
		t.Errorf("backup dir not created: %v", err)
	}
}

func TestNewInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo-guardian.yaml")
	if err := os.WriteFile(path, []byte("version: 1\nrepositories: []\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(Options{ConfigPath: path}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSyncWritesSnapshotsRecordsAndReport(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	var mu sync.Mutex
	var events int
	res, err := client.Sync(ctx, SyncOptions{Progress: ProgressFunc(func(ProgressEvent) {
		mu.Lock()
		events++
		mu.Unlock()
	})})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Count(StatusSuccess) != 2 {
		t.Fatalf("success = %d, outcomes = %+v", res.Count(StatusSuccess), res.Outcomes)
	}
	if events == 0 {
		t.Error("expected progress events")
	}

	snaps, err := client.Snapshots("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 || snaps[0].Path != res.Outcomes["alpha"].BackupPath {
		t.Errorf("alpha snapshots = %+v", snaps)
	}

	stats, err := client.Statistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.NeverSynced != 0 || stats.LastSync == nil {
		t.Errorf("stats = %+v", stats)
	}
	repos, err := client.Repositories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(repos) != 2 {
		t.Errorf("repositories = %d, want 2", len(repos))
	}

	rep, err := client.LastReport()
	if err != nil {
		t.Fatalf("LastReport: %v", err)
	}
	if len(rep.Repositories) != 2 || rep.Count("success") != 2 {
		t.Errorf("report = %+v", rep)
	}
}

func TestSyncSelectedNames(t *testing.T) {
	client, _ := newTestClient(t)

	res, err := client.Sync(context.Background(), SyncOptions{Names: []string{"beta"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Outcomes) != 1 || res.Outcomes["beta"].Status != StatusSuccess {
		t.Errorf("outcomes = %+v", res.Outcomes)
	}

	_, err = client.Sync(context.Background(), SyncOptions{Names: []string{"beta", "nope"}})
	if err == nil || !strings.Contains(err.Error(), "'nope' is not configured") {
		t.Errorf("err = %v", err)
	}
}

func TestSyncPartialFailure(t *testing.T) {
	client, _ := newTestClient(t)
	client.vcs = &stubVCS{failOn: map[string]bool{"https://gitlab.com/acme/beta.git": true}}

	res, err := client.Sync(context.Background(), SyncOptions{Concurrency: 1})
	if err != nil {
		t.Fatal(err)
	}
	beta := res.Outcomes["beta"]
	if beta.Status != StatusFailed || !errors.Is(beta.Err, ErrCloneFailed) {
		t.Errorf("beta = %+v", beta)
	}
	if res.Outcomes["alpha"].Status != StatusSuccess {
		t.Errorf("alpha = %+v", res.Outcomes["alpha"])
	}
	if res.Prune == nil {
		t.Error("prune should still run after a partial failure")
	}
}

func TestPruneAndRestore(t *testing.T) {
	client, dir := newTestClient(t)
	ctx := context.Background()

	if _, err := client.Sync(ctx, SyncOptions{Names: []string{"alpha"}}); err != nil {
		t.Fatal(err)
	}
	snaps, err := client.Snapshots("")
	if err != nil || len(snaps) != 1 {
		t.Fatalf("snapshots = %v, err = %v", snaps, err)
	}

	plan, err := client.Prune(ctx, PruneOptions{Keep: 1, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Removed) != 0 || len(plan.Kept) != 1 {
		t.Errorf("plan = %+v", plan)
	}

	dest := filepath.Join(dir, "restored")
	if _, err := client.Restore(snaps[0].Name(), dest, false); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "README.md"))
	if err != nil || string(data) != "https://github.com/acme/alpha" {
		t.Errorf("restored README = %q, err = %v", data, err)
	}
}

func TestSyncDeactivatesRemovedRepositories(t *testing.T) {
	client, dir := newTestClient(t)
	ctx := context.Background()

	if _, err := client.store.UpsertRepository(ctx, "gone", "https://github.com/acme/gone", filepath.Join(dir, "repos", "gone")); err != nil {
		t.Fatal(err)
	}
	moved := filepath.Join(dir, "elsewhere", "alpha")
	if _, err := client.store.UpsertRepository(ctx, "alpha", "https://github.com/acme/alpha", moved); err != nil {
		t.Fatal(err)
	}

	// A selective run leaves unrelated records alone.
	if _, err := client.Sync(ctx, SyncOptions{Names: []string{"beta"}}); err != nil {
		t.Fatal(err)
	}
	gone, err := client.Repository(ctx, "gone")
	if err != nil {
		t.Fatalf("Repository: %v", err)
	}
	if !gone.Active {
		t.Fatal("selective sync should not deactivate records")
	}

	if _, err := client.Sync(ctx, SyncOptions{}); err != nil {
		t.Fatal(err)
	}
	gone, err = client.Repository(ctx, "gone")
	if err != nil {
		t.Fatalf("Repository: %v", err)
	}
	if gone.Active {
		t.Error("record for a removed repository should be inactive")
	}

	alpha, err := client.Repository(ctx, "alpha")
	if err != nil {
		t.Fatalf("Repository: %v", err)
	}
	if !alpha.Active || alpha.LocalPath == moved || alpha.LastSync == nil {
		t.Errorf("alpha = %+v, want the configured, synced record", alpha)
	}

	stats, err := client.Statistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 4 || stats.Active != 2 {
		t.Errorf("stats = %+v, want 4 total and 2 active", stats)
	}
}

func TestRepositoryNotFound(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.Repository(context.Background(), "nope")
	if !errors.Is(err, ErrRepositoryNotFound) {
		t.Errorf("err = %v, want ErrRepositoryNotFound", err)
	}
}
