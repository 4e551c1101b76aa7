package cmd

import (
	"github.com/spf13/cobra"
)

var restoreForce bool

var restoreCmd = &cobra.Command{
	Use:   "restore <snapshot> <destination>",
	Short: "Copy a snapshot back into a working directory",
	Long: `Copies the snapshot, given by directory name or path inside the backup
directory, to the destination. A non-empty destination is refused unless
--force is given, in which case its contents are replaced.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeClient, err := openClient()
		if err != nil {
			return err
		}
		defer closeClient()

		snap, err := client.Restore(args[0], args[1], restoreForce)
		if err != nil {
			return err
		}
		info("Restored %s (%s) to %s", snap.Name(), snap.CreatedAt.Format("2006-01-02 15:04:05"), args[1])
		return nil
	},
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreForce, "force", false, "replace a non-empty destination")
	rootCmd.AddCommand(restoreCmd)
}
