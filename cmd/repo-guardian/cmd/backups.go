package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backupsCmd = &cobra.Command{
	Use:   "backups [repository-name]",
	Short: "List snapshots, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeClient, err := openClient()
		if err != nil {
			return err
		}
		defer closeClient()

		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		snaps, err := client.Snapshots(name)
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			info("No snapshots in %s.", client.Config().BackupDir)
			return nil
		}

		fmt.Printf("%-24s %-20s %-10s %s\n", "REPOSITORY", "CREATED", "SIZE", "SNAPSHOT")
		for _, s := range snaps {
			size := "?"
			if n, err := client.SnapshotSize(s); err == nil {
				size = humanSize(n)
			}
			fmt.Printf("%-24s %-20s %-10s %s\n", s.Repository, s.CreatedAt.Format("2006-01-02 15:04:05"), size, s.Name())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupsCmd)
}
