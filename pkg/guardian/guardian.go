// Package guardian provides the public Go library API for repo-guardian.
//
// repo-guardian keeps local clones of many remote Git repositories up to
// date, takes a timestamped snapshot of each working copy after a
// successful sync and records sync times in a SQLite database.
//
// # Basic Usage
//
//	client, err := guardian.New(guardian.Options{
//	    ConfigPath: "repo-guardian.yaml",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Sync every configured repository, then prune old snapshots
//	result, err := client.Sync(ctx, guardian.SyncOptions{})
//
//	// Inspect what is on disk
//	snapshots, err := client.Snapshots("demo")
package guardian

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bianoble/repo-guardian/internal/backup"
	"github.com/bianoble/repo-guardian/internal/config"
	"github.com/bianoble/repo-guardian/internal/engine"
	"github.com/bianoble/repo-guardian/internal/logging"
	"github.com/bianoble/repo-guardian/internal/mirror"
	"github.com/bianoble/repo-guardian/internal/report"
	"github.com/bianoble/repo-guardian/internal/repourl"
	"github.com/bianoble/repo-guardian/internal/retry"
	"github.com/bianoble/repo-guardian/internal/store"
	"github.com/bianoble/repo-guardian/internal/vcs"
)

// Options configures a repo-guardian client.
type Options struct {
	// ConfigPath is the path to the config file. Default: config.DefaultPath().
	ConfigPath string

	// Logger receives structured logs. Default: discard.
	Logger *slog.Logger
}

// SyncOptions configures a sync run.
type SyncOptions struct {
	// Names restricts the run to these repositories. Empty = all.
	Names []string

	// Concurrency overrides the configured worker count when > 0.
	Concurrency int

	// KeepBackups overrides the configured retention when > 0. A negative
	// value disables the final prune.
	KeepBackups int

	// Progress receives per-repository progress events.
	Progress ProgressSink
}

// PruneOptions configures a prune operation.
type PruneOptions struct {
	// Keep overrides the configured retention when > 0.
	Keep   int
	DryRun bool
}

// Client is the main entry point for the repo-guardian library.
type Client struct {
	cfg     *config.Config
	backups *backup.Manager
	store   *store.Store
	vcs     vcs.Client
	mirror  engine.Mirror
	logger  *slog.Logger
}

// New loads the config file and opens the backup directory and database.
func New(opts Options) (*Client, error) {
	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg, opts.Logger)
}

// NewWithConfig builds a client from an already loaded and validated config.
func NewWithConfig(cfg *Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	bm, err := backup.New(cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("initializing backup directory: %w", err)
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		backups: bm,
		store:   st,
		vcs:     &vcs.GoGit{Auth: vcs.TokenFromEnv(cfg.Auth.TokenEnv, cfg.Auth.Username)},
		logger:  logger,
	}

	if s3 := cfg.Mirror.S3; s3 != nil {
		m, err := mirror.New(context.Background(), mirror.Options{
			Bucket:   s3.Bucket,
			Prefix:   s3.Prefix,
			Region:   s3.Region,
			Endpoint: s3.Endpoint,
		})
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("initializing mirror: %w", err)
		}
		c.mirror = m
	}

	return c, nil
}

// Config returns the loaded configuration.
func (c *Client) Config() *Config {
	return c.cfg
}

// Close releases the database handle.
func (c *Client) Close() error {
	return c.store.Close()
}

// Sync clones or updates the selected repositories, snapshots each one and
// prunes old snapshots. The run report is written to the configured path.
// A non-nil error means the run could not start; per-repository failures
// are reported in the result.
func (c *Client) Sync(ctx context.Context, opts SyncOptions) (*RunResult, error) {
	descriptors, err := c.descriptors(opts.Names)
	if err != nil {
		return nil, err
	}

	orch := &engine.Orchestrator{
		VCS:       c.vcs,
		Validator: repourl.New(c.cfg.AllowedHosts...),
		Backups:   c.backups,
		Records:   c.store,
		Progress:  opts.Progress,
		Logger:    c.logger,
		Retry: retry.Policy{
			MaxAttempts: c.cfg.Retry.MaxAttempts,
			BaseDelay:   c.cfg.Retry.BaseDelay.Std(),
		},
		OperationTimeout: c.cfg.OperationTimeout.Std(),
		Mirror:           c.mirror,
	}

	if len(opts.Names) == 0 {
		if err := c.deactivateRemoved(ctx); err != nil {
			c.logger.Warn("deactivating removed repositories", "err", err)
		}
	}

	concurrency := c.cfg.Concurrency
	if opts.Concurrency > 0 {
		concurrency = opts.Concurrency
	}
	keep := c.cfg.KeepBackups
	if opts.KeepBackups != 0 {
		keep = opts.KeepBackups
	}

	runner := &engine.Runner{
		Processor:   orch,
		Pruner:      c.backups,
		Concurrency: concurrency,
		KeepBackups: keep,
		Logger:      c.logger,
	}
	res, err := runner.RunAll(ctx, descriptors)
	if err != nil {
		return nil, err
	}

	if c.cfg.Report != "" {
		if err := report.Save(c.cfg.Report, report.FromResult(res)); err != nil {
			c.logger.Warn("saving run report", "path", c.cfg.Report, "err", err)
		}
	}
	return res, nil
}

func (c *Client) descriptors(names []string) ([]Descriptor, error) {
	byName := make(map[string]config.Repository, len(c.cfg.Repositories))
	for _, r := range c.cfg.Repositories {
		byName[r.Name] = r
	}

	if len(names) == 0 {
		names = c.cfg.Names()
	}
	out := make([]Descriptor, 0, len(names))
	var errs []error
	for _, n := range names {
		r, ok := byName[n]
		if !ok {
			errs = append(errs, fmt.Errorf("repository '%s' is not configured", n))
			continue
		}
		out = append(out, Descriptor{Name: r.Name, URL: r.URL, LocalPath: r.LocalPath})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// deactivateRemoved marks active records that no longer match a configured
// repository inactive. Their sync history is kept.
func (c *Client) deactivateRemoved(ctx context.Context) error {
	configured := make(map[string]config.Repository, len(c.cfg.Repositories))
	for _, r := range c.cfg.Repositories {
		configured[r.Name] = r
	}

	records, err := c.store.ListRepositories(ctx, true)
	if err != nil {
		return err
	}
	var errs []error
	for _, rec := range records {
		if r, ok := configured[rec.Name]; ok && r.URL == rec.URL && r.LocalPath == rec.LocalPath {
			continue
		}
		if err := c.store.Deactivate(ctx, rec.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		c.logger.Info("repository deactivated", "repository", rec.Name, "url", rec.URL)
	}
	return errors.Join(errs...)
}

// Prune removes all but the newest snapshots of every repository. With
// DryRun nothing is removed and the result lists what would be.
func (c *Client) Prune(_ context.Context, opts PruneOptions) (*PruneResult, error) {
	keep := c.cfg.KeepBackups
	if opts.Keep > 0 {
		keep = opts.Keep
	}
	if opts.DryRun {
		return c.backups.Plan(keep)
	}
	return c.backups.Prune(keep)
}

// Statistics returns aggregate sync statistics from the database.
func (c *Client) Statistics(ctx context.Context) (Statistics, error) {
	return c.store.Statistics(ctx)
}

// Repositories returns every repository record, active or not.
func (c *Client) Repositories(ctx context.Context) ([]Repository, error) {
	return c.store.ListRepositories(ctx, false)
}

// Repository returns the record for name. Unknown names return an error
// matching ErrRepositoryNotFound.
func (c *Client) Repository(ctx context.Context, name string) (*Repository, error) {
	return c.store.GetByName(ctx, name)
}

// Snapshots lists snapshots newest first. An empty name lists all of them.
func (c *Client) Snapshots(name string) ([]Snapshot, error) {
	return c.backups.List(name)
}

// Restore copies a snapshot, given by name or path, into dest.
func (c *Client) Restore(snapshot, dest string, force bool) (Snapshot, error) {
	return c.backups.Restore(snapshot, dest, force)
}

// LastReport loads the report of the most recent sync run.
func (c *Client) LastReport() (*RunReport, error) {
	return report.Load(c.cfg.Report)
}

// SnapshotSize returns the total size of the regular files in snap.
func (c *Client) SnapshotSize(snap Snapshot) (int64, error) {
	return c.backups.Size(snap.Path)
}
