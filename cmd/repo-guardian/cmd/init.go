package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bianoble/repo-guardian/internal/config"
	"github.com/bianoble/repo-guardian/internal/repourl"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively create a repo-guardian.yaml configuration",
	Long: `Prompts for repositories (name, URL and optional local path) until an empty
name is entered, then writes the configuration file. Defaults are used for
the backup directory, database and logs.

Use --force to overwrite an existing configuration file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath, err := filepath.Abs(resolvedConfigPath())
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		if !initForce {
			if _, err := os.Stat(outPath); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", outPath)
			}
		}

		repos, err := promptRepositories(cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if len(repos) == 0 {
			return fmt.Errorf("no repositories entered, nothing written")
		}

		cfg := &config.Config{
			Version:      1,
			KeepBackups:  config.DefaultKeepBackups,
			Repositories: repos,
		}
		if err := config.Save(outPath, cfg); err != nil {
			return err
		}

		info("Created %s with %d repository(ies)", outPath, len(repos))
		info("")
		info("Next steps:")
		info("  1. Review backup_dir, keep_backups and auth in the file")
		info("  2. Run 'repo-guardian sync' to clone and snapshot everything")
		return nil
	},
}

// promptRepositories reads repository entries until an empty name or EOF.
// Invalid or duplicate input is reported and asked for again.
func promptRepositories(in io.Reader, out io.Writer) ([]config.Repository, error) {
	sc := bufio.NewScanner(in)
	validator := repourl.New()
	seen := make(map[string]bool)

	ask := func(prompt string) (string, bool) {
		fmt.Fprint(out, prompt)
		if !sc.Scan() {
			return "", false
		}
		return strings.TrimSpace(sc.Text()), true
	}

	var repos []config.Repository
	for {
		name, ok := ask("Repository name (empty to finish): ")
		if !ok || name == "" {
			break
		}
		if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") || seen[name] {
			fmt.Fprintf(out, "  invalid or duplicate name %q\n", name)
			continue
		}

		var url string
		for {
			url, ok = ask("  URL: ")
			if !ok {
				return repos, sc.Err()
			}
			if _, err := validator.Normalize(url); err != nil {
				fmt.Fprintf(out, "  %v\n", err)
				continue
			}
			break
		}

		localPath, ok := ask(fmt.Sprintf("  Local path [repos/%s]: ", name))
		if !ok {
			return repos, sc.Err()
		}

		seen[name] = true
		repos = append(repos, config.Repository{Name: name, URL: url, LocalPath: localPath})
	}
	return repos, sc.Err()
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing config file")
	rootCmd.AddCommand(initCmd)
}
