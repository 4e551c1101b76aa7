package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bianoble/repo-guardian/pkg/guardian"
)

var (
	pruneKeep   int
	pruneDryRun bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old snapshots beyond the retention limit",
	Long: `Keeps the newest snapshots of every repository and removes the rest.
The limit comes from keep_backups in the config unless --keep is given.
Use --dry-run to see what would be removed without acting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeClient, err := openClient()
		if err != nil {
			return err
		}
		defer closeClient()

		result, err := client.Prune(commandContext(cmd), guardian.PruneOptions{Keep: pruneKeep, DryRun: pruneDryRun})
		if err != nil {
			return err
		}

		if pruneDryRun {
			info("Dry run: no snapshots removed.")
		}
		for _, dir := range result.Stale {
			detail("stale temporary directory %s", dir)
		}
		if len(result.Removed) == 0 {
			info("Nothing to prune.")
		}
		for _, s := range result.Removed {
			info("  remove  %s", s.Name())
		}
		if len(result.Removed) > 0 {
			info("\nPruned %d snapshot(s), kept %d.", len(result.Removed), len(result.Kept))
		}

		if len(result.Errors) > 0 {
			for _, e := range result.Errors {
				errorf("%v", e)
			}
			return fmt.Errorf("%d error(s) during prune", len(result.Errors))
		}
		return nil
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneKeep, "keep", 0, "snapshots kept per repository (default from config)")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "show what would be removed without acting")
	rootCmd.AddCommand(pruneCmd)
}
