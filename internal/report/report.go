// Package report persists a summary of the most recent sync run.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/bianoble/repo-guardian/internal/engine"
	"github.com/bianoble/repo-guardian/internal/sandbox"
)

// CurrentVersion is the only report version understood by Load.
const CurrentVersion = 1

var validStatuses = map[string]bool{
	string(engine.StatusSuccess):   true,
	string(engine.StatusFailed):    true,
	string(engine.StatusCancelled): true,
}

// FromResult builds a report for res with a fresh run ID. Entries are
// ordered by repository name.
func FromResult(res *engine.RunResult) *RunReport {
	r := &RunReport{
		Version:    CurrentVersion,
		RunID:      uuid.NewString(),
		StartedAt:  res.Started,
		FinishedAt: res.Finished,
		Cancelled:  res.Cancelled,
	}
	for _, name := range res.Names() {
		o := res.Outcomes[name]
		r.Repositories = append(r.Repositories, Entry{
			Name:       name,
			Status:     string(o.Status),
			Timestamp:  o.Timestamp,
			Branch:     o.Branch,
			HeadCommit: o.HeadCommit,
			BackupPath: o.BackupPath,
			Error:      o.ErrorDetail,
			Attempts:   o.Attempts,
			Cloned:     o.Cloned,
		})
	}
	if res.Prune != nil {
		for _, s := range res.Prune.Removed {
			r.Pruned = append(r.Pruned, s.Name())
		}
		for _, err := range res.Prune.Errors {
			r.PruneErrors = append(r.PruneErrors, err.Error())
		}
	}
	if res.PruneErr != nil {
		r.PruneErrors = append(r.PruneErrors, res.PruneErr.Error())
	}
	return r
}

// Load reads and validates a report file.
func Load(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run report %s: %w", path, err)
	}

	var r RunReport
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing run report %s: %w", path, err)
	}

	if errs := Validate(&r); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	return &r, nil
}

// Save writes a report atomically, creating the parent directory.
func Save(path string, r *RunReport) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling run report: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating report directory %s: %w", dir, err)
	}
	if err := sandbox.SafeWrite(dir, filepath.Base(path), data, 0644); err != nil {
		return fmt.Errorf("writing run report %s: %w", path, err)
	}
	return nil
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("run report validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks a RunReport for semantic correctness.
// Returns a list of validation error messages (empty if valid).
func Validate(r *RunReport) []string {
	var errs []string

	if r.Version != CurrentVersion {
		errs = append(errs, fmt.Sprintf("unsupported version %d, only version %d is supported", r.Version, CurrentVersion))
	}
	if r.RunID != "" {
		if _, err := uuid.Parse(r.RunID); err != nil {
			errs = append(errs, fmt.Sprintf("invalid run_id '%s'", r.RunID))
		}
	}
	if !r.FinishedAt.IsZero() && r.FinishedAt.Before(r.StartedAt) {
		errs = append(errs, "finished_at is before started_at")
	}

	names := make(map[string]bool)
	for i, e := range r.Repositories {
		prefix := fmt.Sprintf("repositories[%d]", i)
		if e.Name != "" {
			prefix = fmt.Sprintf("repository '%s'", e.Name)
		}

		if e.Name == "" {
			errs = append(errs, fmt.Sprintf("%s: 'name' is required", prefix))
		} else if names[e.Name] {
			errs = append(errs, fmt.Sprintf("%s: duplicate repository name '%s'", prefix, e.Name))
		} else {
			names[e.Name] = true
		}

		if !validStatuses[e.Status] {
			errs = append(errs, fmt.Sprintf("%s: unknown status '%s'", prefix, e.Status))
		}
	}

	return errs
}
