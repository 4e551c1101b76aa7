package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bianoble/repo-guardian/internal/engine"
	"github.com/bianoble/repo-guardian/pkg/guardian"
)

var (
	syncConcurrency int
	syncKeep        int
)

var syncCmd = &cobra.Command{
	Use:   "sync [repository-name...]",
	Short: "Clone or update repositories and snapshot them",
	Long: `Clones missing repositories and fetches and pulls existing ones, in parallel.
Every repository that syncs successfully is copied to a timestamped snapshot
in the backup directory. After all repositories have finished, old snapshots
beyond the retention limit are pruned.

Press Ctrl-C to cancel: running repositories stop at their next stage and
repositories that have not started are skipped. Exits non-zero when any
repository failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeClient, err := openClient()
		if err != nil {
			return err
		}
		defer closeClient()

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := guardian.SyncOptions{
			Names:       args,
			Concurrency: syncConcurrency,
			KeepBackups: syncKeep,
		}
		if verbose {
			opts.Progress = guardian.ProgressFunc(func(e guardian.ProgressEvent) {
				detail("%-24s %-11s %3d%%", e.Repository, e.Stage, e.Percent)
			})
		}

		result, err := client.Sync(ctx, opts)
		if err != nil {
			return err
		}

		printRunSummary(result)

		if stats, err := client.Statistics(ctx); err == nil {
			info("Repositories: %d total, %d active, %d never synced; last sync %s",
				stats.Total, stats.Active, stats.NeverSynced, formatTime(stats.LastSync))
		}

		if result.Cancelled {
			return fmt.Errorf("sync cancelled")
		}
		if n := result.Count(engine.StatusFailed); n > 0 {
			return fmt.Errorf("%d repository(ies) failed", n)
		}
		return nil
	},
}

func printRunSummary(result *guardian.RunResult) {
	for _, name := range result.Names() {
		o := result.Outcomes[name]
		switch o.Status {
		case engine.StatusSuccess:
			info("  %-9s %-24s %s", statusLabel(o.Status), name, o.BackupPath)
			detail("%s@%s (attempts: %d)", o.Branch, shortCommit(o.HeadCommit), o.Attempts)
			if o.ErrorDetail != "" {
				info("            warning: %s", o.ErrorDetail)
			}
		default:
			info("  %-9s %-24s %s", statusLabel(o.Status), name, o.ErrorDetail)
		}
	}

	if p := result.Prune; p != nil {
		info("")
		info("Pruned %d snapshot(s).", len(p.Removed))
		for _, s := range p.Removed {
			detail("removed %s", s.Name())
		}
		for _, e := range p.Errors {
			errorf("prune: %v", e)
		}
	}
	if result.PruneErr != nil {
		errorf("prune: %v", result.PruneErr)
	}

	info("")
	info("Sync complete: %d succeeded, %d failed, %d cancelled in %s.",
		result.Count(engine.StatusSuccess),
		result.Count(engine.StatusFailed),
		result.Count(engine.StatusCancelled),
		result.Finished.Sub(result.Started).Round(time.Millisecond))
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}

func init() {
	syncCmd.Flags().IntVar(&syncConcurrency, "concurrency", 0, "number of repositories processed in parallel (1-10, default from config)")
	syncCmd.Flags().IntVar(&syncKeep, "keep", 0, "snapshots kept per repository (default from config)")
	rootCmd.AddCommand(syncCmd)
}
