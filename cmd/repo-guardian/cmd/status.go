package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"

	"github.com/bianoble/repo-guardian/internal/engine"
	"github.com/bianoble/repo-guardian/pkg/guardian"
)

var statusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Show sync statistics, known repositories and the last run",
	Long: `Show sync statistics, known repositories and the last run.

With a name, show the stored record and snapshots of that repository only.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeClient, err := openClient()
		if err != nil {
			return err
		}
		defer closeClient()
		ctx := commandContext(cmd)

		if len(args) == 1 {
			return showRepository(ctx, client, args[0])
		}

		stats, err := client.Statistics(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Repositories:  %d total, %d active, %d never synced\n", stats.Total, stats.Active, stats.NeverSynced)
		fmt.Printf("Last sync:     %s\n", formatTime(stats.LastSync))

		repos, err := client.Repositories(ctx)
		if err != nil {
			return err
		}
		if len(repos) > 0 {
			fmt.Printf("\n%-24s %-20s %-8s %s\n", "NAME", "LAST SYNC", "ACTIVE", "URL")
			for _, r := range repos {
				fmt.Printf("%-24s %-20s %-8t %s\n", r.Name, formatTime(r.LastSync), r.Active, r.URL)
			}
		}

		rep, err := client.LastReport()
		switch {
		case errors.Is(err, fs.ErrNotExist):
			fmt.Println("\nNo sync run recorded yet.")
			return nil
		case err != nil:
			errorf("reading last run report: %v", err)
			return nil
		}

		fmt.Printf("\nLast run %s (%s, %s)\n", rep.RunID, rep.StartedAt.Local().Format("2006-01-02 15:04:05"), rep.Duration().Round(time.Millisecond))
		if rep.Cancelled {
			fmt.Println("  run was cancelled")
		}
		for _, e := range rep.Repositories {
			msg := e.BackupPath
			if e.Status != string(engine.StatusSuccess) {
				msg = e.Error
			}
			fmt.Printf("  %-9s %-24s %s\n", statusLabel(engine.Status(e.Status)), e.Name, msg)
		}
		if len(rep.Pruned) > 0 {
			fmt.Printf("  pruned %d snapshot(s)\n", len(rep.Pruned))
		}
		return nil
	},
}

func showRepository(ctx context.Context, client *guardian.Client, name string) error {
	r, err := client.Repository(ctx, name)
	if errors.Is(err, guardian.ErrRepositoryNotFound) {
		return fmt.Errorf("repository '%s' has no sync record", name)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Name:        %s\n", r.Name)
	fmt.Printf("URL:         %s\n", r.URL)
	fmt.Printf("Local path:  %s\n", r.LocalPath)
	fmt.Printf("Active:      %t\n", r.Active)
	fmt.Printf("Last sync:   %s\n", formatTime(r.LastSync))

	snaps, err := client.Snapshots(name)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("Snapshots:   none")
		return nil
	}
	fmt.Printf("Snapshots:   %d, newest %s\n", len(snaps), snaps[0].Name())
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
