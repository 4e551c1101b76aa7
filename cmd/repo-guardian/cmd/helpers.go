package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bianoble/repo-guardian/internal/config"
	"github.com/bianoble/repo-guardian/internal/engine"
	"github.com/bianoble/repo-guardian/internal/logging"
	"github.com/bianoble/repo-guardian/pkg/guardian"
)

// resolvedConfigPath returns --config or the discovered default.
func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

// loadConfig reads and validates the config file.
func loadConfig() (*config.Config, error) {
	path := resolvedConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// openClient loads the config and opens a client logging to the configured
// log directory. The returned func releases both.
func openClient() (*guardian.Client, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	log := logging.New(logging.Options{
		Dir:     cfg.Log.Dir,
		Level:   cfg.Log.Level,
		Verbose: verbose,
		Quiet:   quiet,
	})
	client, err := guardian.NewWithConfig(cfg, log.Logger)
	if err != nil {
		_ = log.Close()
		return nil, nil, err
	}
	return client, func() {
		_ = client.Close()
		_ = log.Close()
	}, nil
}

// commandContext returns the command's context, or Background when the
// command is invoked directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// statusLabel renders an outcome status for the summary table.
func statusLabel(s engine.Status) string {
	switch s {
	case engine.StatusSuccess:
		return color.New(color.FgHiGreen).Sprint("ok")
	case engine.StatusFailed:
		return color.New(color.FgRed).Sprint("FAILED")
	case engine.StatusCancelled:
		return color.New(color.FgYellow).Sprint("cancelled")
	default:
		return string(s)
	}
}

// formatTime renders an optional timestamp.
func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func humanSize(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB"}
	size := float64(bytes)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", bytes)
	}
	return fmt.Sprintf("%.1f %s", size, units[i])
}

// info prints a line unless quiet mode is active.
func info(format string, args ...any) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}

// detail prints a line only in verbose mode.
func detail(format string, args ...any) {
	if verbose {
		fmt.Printf("  "+format+"\n", args...)
	}
}

// errorf prints an error message to stderr.
func errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
